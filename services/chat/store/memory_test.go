// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianChat/services/chat/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Conversation CRUD Tests
// =============================================================================

func TestMemoryStore_CreateAndGetConversation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conv := &datatypes.Conversation{UserID: "user-1", Title: "First chat"}
	require.NoError(t, s.CreateConversation(ctx, conv))
	require.NotEmpty(t, conv.ID)
	assert.False(t, conv.CreatedAt.IsZero())

	got, err := s.GetConversation(ctx, conv.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "First chat", got.Title)
	assert.Equal(t, 0, got.MessageCount)
}

func TestMemoryStore_GetConversation_WrongOwnerIsNotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conv := &datatypes.Conversation{UserID: "user-1", Title: "Private"}
	require.NoError(t, s.CreateConversation(ctx, conv))

	_, err := s.GetConversation(ctx, conv.ID, "user-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListConversations_OrderAndArchive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	older := &datatypes.Conversation{UserID: "user-1", Title: "older"}
	newer := &datatypes.Conversation{UserID: "user-1", Title: "newer"}
	archived := &datatypes.Conversation{UserID: "user-1", Title: "archived", IsArchived: true}
	other := &datatypes.Conversation{UserID: "user-2", Title: "other user"}
	for _, c := range []*datatypes.Conversation{older, newer, archived, other} {
		require.NoError(t, s.CreateConversation(ctx, c))
	}

	now := time.Now().UTC()
	require.NoError(t, s.IncrementStats(ctx, older.ID, 2, now.Add(-time.Hour)))
	require.NoError(t, s.IncrementStats(ctx, newer.ID, 2, now))

	list, err := s.ListConversations(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "newer", list[0].Title)
	assert.Equal(t, "older", list[1].Title)
}

func TestMemoryStore_ListConversations_Limit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.CreateConversation(ctx, &datatypes.Conversation{
			UserID: "user-1", Title: "chat",
		}))
	}

	list, err := s.ListConversations(ctx, "user-1", 3)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestMemoryStore_DeleteConversation_CascadesMessages(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conv := &datatypes.Conversation{UserID: "user-1", Title: "doomed"}
	require.NoError(t, s.CreateConversation(ctx, conv))
	require.NoError(t, s.AppendMessage(ctx, &datatypes.StoredMessage{
		ConversationID: conv.ID, Role: datatypes.RoleUser, Content: "hi",
	}))

	require.NoError(t, s.DeleteConversation(ctx, conv.ID, "user-1"))

	_, err := s.GetConversation(ctx, conv.ID, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMemoryStore_DeleteConversation_WrongOwner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conv := &datatypes.Conversation{UserID: "user-1", Title: "kept"}
	require.NoError(t, s.CreateConversation(ctx, conv))

	err := s.DeleteConversation(ctx, conv.ID, "user-2")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetConversation(ctx, conv.ID, "user-1")
	assert.NoError(t, err)
}

// =============================================================================
// Message Tests
// =============================================================================

func TestMemoryStore_AppendAndListMessages_Chronological(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conv := &datatypes.Conversation{UserID: "user-1", Title: "chat"}
	require.NoError(t, s.CreateConversation(ctx, conv))

	for _, content := range []string{"one", "two", "three"} {
		require.NoError(t, s.AppendMessage(ctx, &datatypes.StoredMessage{
			ConversationID: conv.ID,
			Role:           datatypes.RoleUser,
			Content:        content,
		}))
	}

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "three", msgs[2].Content)
	for _, m := range msgs {
		assert.NotEmpty(t, m.ID)
		assert.False(t, m.CreatedAt.IsZero())
	}
}

func TestMemoryStore_AppendMessage_PreservesMetadata(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	msg := &datatypes.StoredMessage{
		ConversationID: "conv-1",
		Role:           datatypes.RoleAssistant,
		Content:        "answer",
		Metadata: &datatypes.MessageMetadata{
			Model:                "gpt-3.5-turbo",
			Tokens:               &datatypes.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			Trimmed:              true,
			OriginalMessageCount: 20,
			TrimmedMessageCount:  8,
		},
	}
	require.NoError(t, s.AppendMessage(ctx, msg))

	msgs, err := s.ListMessages(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Metadata)
	assert.True(t, msgs[0].Metadata.Trimmed)
	assert.Equal(t, 15, msgs[0].Metadata.Tokens.TotalTokens)
}

// =============================================================================
// Stats Tests
// =============================================================================

func TestMemoryStore_IncrementStats(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conv := &datatypes.Conversation{UserID: "user-1", Title: "chat"}
	require.NoError(t, s.CreateConversation(ctx, conv))

	at := time.Now().UTC().Add(time.Minute)
	require.NoError(t, s.IncrementStats(ctx, conv.ID, 2, at))
	require.NoError(t, s.IncrementStats(ctx, conv.ID, 1, at.Add(time.Minute)))

	got, err := s.GetConversation(ctx, conv.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.MessageCount)
	assert.Equal(t, at.Add(time.Minute), got.LastMessageAt)
}

func TestMemoryStore_IncrementStats_Concurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conv := &datatypes.Conversation{UserID: "user-1", Title: "busy"}
	require.NoError(t, s.CreateConversation(ctx, conv))

	const turns = 50
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.IncrementStats(ctx, conv.ID, 2, time.Now().UTC())
		}()
	}
	wg.Wait()

	got, err := s.GetConversation(ctx, conv.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, turns*2, got.MessageCount, "concurrent increments must not lose updates")
}

func TestMemoryStore_IncrementStats_MissingConversation(t *testing.T) {
	s := NewMemoryStore()

	err := s.IncrementStats(context.Background(), "nope", 1, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}
