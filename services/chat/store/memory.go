// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianChat/services/chat/datatypes"
	"github.com/google/uuid"
)

// MemoryStore implements ConversationStore in process memory.
//
// # Description
//
// Used by tests and by the lightweight mode when no MongoDB URL is
// configured. Semantics mirror MongoStore: ownership-scoped reads,
// archived conversations hidden from listings, counter updates atomic
// under the store mutex.
//
// # Limitations
//
//   - Everything is lost on process exit.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*datatypes.Conversation
	messages      map[string][]datatypes.StoredMessage // keyed by conversation ID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*datatypes.Conversation),
		messages:      make(map[string][]datatypes.StoredMessage),
	}
}

// CreateConversation implements ConversationStore.
func (s *MemoryStore) CreateConversation(_ context.Context, conv *datatypes.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	conv.ID = uuid.New().String()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	if conv.LastMessageAt.IsZero() {
		conv.LastMessageAt = now
	}

	cp := *conv
	s.conversations[conv.ID] = &cp
	return nil
}

// GetConversation implements ConversationStore.
func (s *MemoryStore) GetConversation(_ context.Context, id, userID string) (*datatypes.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok || conv.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *conv
	return &cp, nil
}

// ListConversations implements ConversationStore.
func (s *MemoryStore) ListConversations(_ context.Context, userID string, limit int) ([]datatypes.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultListLimit
	}

	result := make([]datatypes.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.UserID == userID && !conv.IsArchived {
			result = append(result, *conv)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastMessageAt.After(result[j].LastMessageAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// DeleteConversation implements ConversationStore.
func (s *MemoryStore) DeleteConversation(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok || conv.UserID != userID {
		return ErrNotFound
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	return nil
}

// AppendMessage implements ConversationStore.
func (s *MemoryStore) AppendMessage(_ context.Context, msg *datatypes.StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = uuid.New().String()
	msg.CreatedAt = time.Now().UTC()
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	return nil
}

// ListMessages implements ConversationStore.
func (s *MemoryStore) ListMessages(_ context.Context, conversationID string) ([]datatypes.StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	result := make([]datatypes.StoredMessage, len(msgs))
	copy(result, msgs)
	return result, nil
}

// IncrementStats implements ConversationStore.
func (s *MemoryStore) IncrementStats(_ context.Context, conversationID string, delta int, lastMessageAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	conv.MessageCount += delta
	conv.LastMessageAt = lastMessageAt
	conv.UpdatedAt = lastMessageAt
	return nil
}

// Compile-time interface check.
var _ ConversationStore = (*MemoryStore)(nil)
