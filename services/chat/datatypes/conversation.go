// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// =============================================================================
// Persisted Entities
// =============================================================================

// Conversation is the persisted conversation record.
//
// # Description
//
// A Conversation owns aggregate fields that the chat turn flow updates
// after each exchange. It is created at most once per chat session unless
// the client reuses an existing ID. The chat core never deletes or edits a
// conversation's messages; deletion goes through the dedicated endpoint.
//
// # Fields
//
//   - ID: Store-assigned identifier (Mongo ObjectID hex).
//   - UserID: Ownership key from the identity provider. Every read is
//     filtered by (ID, UserID); a conversation owned by another user is
//     indistinguishable from an absent one.
//   - Title: Display title, max 200 chars.
//   - MessageCount: Total persisted messages. Updated via atomic store
//     increments, never read-modify-write.
//   - LastMessageAt: Timestamp of the most recent turn, drives listing
//     order.
//   - IsArchived: Archived conversations are excluded from listings.
type Conversation struct {
	ID            string    `json:"id" bson:"_id,omitempty"`
	UserID        string    `json:"user_id" bson:"userId"`
	Title         string    `json:"title" bson:"title"`
	MessageCount  int       `json:"message_count" bson:"messageCount"`
	LastMessageAt time.Time `json:"last_message_at" bson:"lastMessageAt"`
	IsArchived    bool      `json:"is_archived" bson:"isArchived"`
	CreatedAt     time.Time `json:"created_at" bson:"createdAt"`
	UpdatedAt     time.Time `json:"updated_at" bson:"updatedAt"`
}

// StoredMessage is the persisted form of a single chat message.
//
// # Description
//
// StoredMessages belong to exactly one Conversation and are append-only:
// created once per turn side (one for the user turn, one for the
// assistant turn) and never mutated afterwards.
type StoredMessage struct {
	ID             string           `json:"id" bson:"_id,omitempty"`
	ConversationID string           `json:"conversation_id" bson:"conversationId"`
	Role           string           `json:"role" bson:"role"`
	Content        string           `json:"content" bson:"content"`
	Attachments    []Attachment     `json:"attachments,omitempty" bson:"attachments,omitempty"`
	Metadata       *MessageMetadata `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt      time.Time        `json:"created_at" bson:"createdAt"`
}

// Attachment describes a file attached to a message. The chat core treats
// the URLs as opaque strings produced by the upload pipeline.
type Attachment struct {
	ID       string `json:"id,omitempty" bson:"id,omitempty"`
	Name     string `json:"name,omitempty" bson:"name,omitempty"`
	Size     int64  `json:"size,omitempty" bson:"size,omitempty"`
	MimeType string `json:"type,omitempty" bson:"type,omitempty"`
	URL      string `json:"url,omitempty" bson:"url,omitempty"`
	IsImage  bool   `json:"is_image,omitempty" bson:"isImage,omitempty"`
}

// MessageMetadata records how an assistant message was produced: the model,
// the provider-reported token usage, and whether the prompt was trimmed to
// fit the context budget.
type MessageMetadata struct {
	Model                string      `json:"model,omitempty" bson:"model,omitempty"`
	Tokens               *TokenUsage `json:"tokens,omitempty" bson:"tokens,omitempty"`
	Trimmed              bool        `json:"trimmed" bson:"trimmed"`
	OriginalMessageCount int         `json:"original_message_count,omitempty" bson:"originalMessageCount,omitempty"`
	TrimmedMessageCount  int         `json:"trimmed_message_count,omitempty" bson:"trimmedMessageCount,omitempty"`
}

// =============================================================================
// Secondary Wire Types
// =============================================================================

// CreateConversationRequest is the body of POST /v1/conversations.
type CreateConversationRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

// Validate validates the request after JSON binding.
func (r *CreateConversationRequest) Validate() error {
	return chatValidate.Struct(r)
}

// AppendMessageRequest is the body of POST /v1/conversations/:id/messages.
// Manual appends only accept the persisted roles.
type AppendMessageRequest struct {
	Role     string           `json:"role" validate:"required,oneof=user assistant"`
	Content  string           `json:"content" validate:"required,maxbytes"`
	Metadata *MessageMetadata `json:"metadata,omitempty"`
}

// Validate validates the request after JSON binding.
func (r *AppendMessageRequest) Validate() error {
	return chatValidate.Struct(r)
}
