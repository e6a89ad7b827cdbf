// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists conversations and messages.
//
// The chat handlers consume the ConversationStore interface; the concrete
// backend is selected at startup. MongoStore is the production backend,
// MemoryStore backs tests and the lightweight no-database mode.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/AleutianAI/AleutianChat/services/chat/datatypes"
)

// ErrNotFound is returned when a conversation does not exist or is owned by
// a different user. The two cases are deliberately indistinguishable so
// that ownership cannot be probed.
var ErrNotFound = errors.New("store: conversation not found")

// DefaultListLimit caps conversation listings.
const DefaultListLimit = 50

// ConversationStore is the persistence surface the chat flow needs.
//
// # Description
//
// All reads are scoped by ownership: operations taking a userID treat a
// conversation owned by someone else as absent. Messages are append-only;
// nothing in this interface mutates a stored message.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. IncrementStats in
// particular must be atomic at the store layer (no read-modify-write), so
// concurrent turns on the same conversation do not lose counter updates.
type ConversationStore interface {
	// CreateConversation persists a new conversation and fills in its ID
	// and timestamps.
	CreateConversation(ctx context.Context, conv *datatypes.Conversation) error

	// GetConversation fetches a conversation by (id, userID).
	// Returns ErrNotFound when absent or owned by another user.
	GetConversation(ctx context.Context, id, userID string) (*datatypes.Conversation, error)

	// ListConversations returns the user's unarchived conversations,
	// newest activity first. limit <= 0 applies DefaultListLimit.
	ListConversations(ctx context.Context, userID string, limit int) ([]datatypes.Conversation, error)

	// DeleteConversation removes a conversation and all of its messages.
	// Returns ErrNotFound when absent or owned by another user.
	DeleteConversation(ctx context.Context, id, userID string) error

	// AppendMessage persists a message and fills in its ID and timestamp.
	AppendMessage(ctx context.Context, msg *datatypes.StoredMessage) error

	// ListMessages returns a conversation's messages in chronological
	// order. Ownership must be checked by the caller via GetConversation.
	ListMessages(ctx context.Context, conversationID string) ([]datatypes.StoredMessage, error)

	// IncrementStats atomically bumps messageCount by delta and sets
	// lastMessageAt.
	IncrementStats(ctx context.Context, conversationID string, delta int, lastMessageAt time.Time) error
}
