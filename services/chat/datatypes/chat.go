// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides request, response, and persisted data
// structures for the chat service.
//
// This file contains the wire types for the chat turn endpoint. Persisted
// entities live in conversation.go.
package datatypes

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

// Message roles. Inbound histories may also carry system messages; only
// user and assistant messages are ever persisted.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

const (
	// MaxMessageContentBytes is the maximum size of a single message
	// content. Byte length, not rune count, to bound memory.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxMessagesPerRequest is the maximum number of messages accepted in
	// a single chat turn request.
	MaxMessagesPerRequest = 100

	// MaxTitleLength is the maximum conversation title length.
	MaxTitleLength = 200

	// titlePrefixLength is how much of the latest message becomes the
	// auto-derived conversation title.
	titlePrefixLength = 50

	// DefaultConversationTitle is used when no title can be derived.
	DefaultConversationTitle = "New Chat"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces the MaxMessageContentBytes cap on a string
// field. Checks byte length to prevent memory exhaustion with large
// multi-byte payloads.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Message
// =============================================================================

// Message is the unit the estimator, trimmer, and completion provider
// operate on: a role plus text content.
//
// # Description
//
// Messages are ephemeral. They are constructed per request from the client
// payload; once a turn completes, ownership of the durable copy belongs to
// the store as a StoredMessage.
//
// # Validation
//
//   - Role: required, one of user|assistant|system
//   - Content: required, max 32KB
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required,maxbytes"`
}

// =============================================================================
// Chat Turn Request / Response
// =============================================================================

// ChatRequest is the body of POST /v1/chat.
//
// # Fields
//
//   - Messages: Required. Full conversation history, oldest first,
//     1-100 entries. The server trims to the context budget itself; the
//     client always sends everything it has.
//   - ConversationID: Optional. Existing conversation to append to. When
//     absent a conversation is created lazily on this turn.
//   - Title: Optional. Title for a lazily created conversation. Ignored
//     when ConversationID is set.
//   - Stream: Whether to stream the response body. Defaults to true; set
//     to false for the buffered JSON variant.
//   - Attachments: Optional. Opaque attachment descriptors carried onto
//     the stored user message. Upload mechanics are out of scope here.
type ChatRequest struct {
	Messages       []Message    `json:"messages" validate:"required,min=1,max=100,dive"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Title          string       `json:"title,omitempty" validate:"omitempty,max=200"`
	Stream         *bool        `json:"stream,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// Validate validates the ChatRequest fields after JSON binding.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// Streaming reports whether the caller asked for the streaming variant.
// Streaming is the default protocol.
func (r *ChatRequest) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

// LatestMessage returns the last message in the request, or a zero Message
// when the list is empty.
func (r *ChatRequest) LatestMessage() Message {
	if len(r.Messages) == 0 {
		return Message{}
	}
	return r.Messages[len(r.Messages)-1]
}

// DeriveTitle resolves the title for a lazily created conversation:
// the supplied title, else the first 50 characters of the latest message
// content, else a default placeholder.
func (r *ChatRequest) DeriveTitle() string {
	if t := strings.TrimSpace(r.Title); t != "" {
		if len(t) > MaxTitleLength {
			t = t[:MaxTitleLength]
		}
		return t
	}
	content := strings.TrimSpace(r.LatestMessage().Content)
	if content == "" {
		return DefaultConversationTitle
	}
	if len(content) > titlePrefixLength {
		return content[:titlePrefixLength] + "..."
	}
	return content
}

// ChatResponse is the buffered-variant response of POST /v1/chat.
type ChatResponse struct {
	Message        string      `json:"message"`
	ConversationID string      `json:"conversation_id"`
	Usage          *TokenUsage `json:"usage,omitempty"`
}

// =============================================================================
// Token Usage
// =============================================================================

// TokenUsage contains provider-reported token consumption for one turn.
// These are the provider's counts, not the estimator's.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
