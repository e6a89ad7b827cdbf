// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianChat/services/chat/datatypes"
	"github.com/AleutianAI/AleutianChat/services/chat/middleware"
	"github.com/AleutianAI/AleutianChat/services/chat/store"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// =============================================================================
// Message Endpoints
// =============================================================================

// HandleListMessages handles GET /v1/conversations/:id/messages.
//
// Returns every message in the conversation in chronological order.
// Ownership is checked before reading messages so an unowned ID never
// leaks whether it exists.
func (h *ConversationHandler) HandleListMessages(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "ListMessages")
	defer span.End()

	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	id := c.Param("id")
	span.SetAttributes(attribute.String("chat.conversation_id", id))

	if _, err := h.store.GetConversation(ctx, id, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "ownership check failed")
		slog.Error("Failed to check conversation ownership", "error", err, "conversationId", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch messages"})
		return
	}

	msgs, err := h.store.ListMessages(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list messages failed")
		slog.Error("Failed to list messages", "error", err, "conversationId", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch messages"})
		return
	}

	span.SetAttributes(attribute.Int("chat.message_count", len(msgs)))
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// HandleAppendMessage handles POST /v1/conversations/:id/messages.
//
// Manually appends a single message. The role is restricted to user or
// assistant; system messages are never persisted. Bumps the conversation
// counters by one.
func (h *ConversationHandler) HandleAppendMessage(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "AppendMessage")
	defer span.End()

	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	id := c.Param("id")
	span.SetAttributes(attribute.String("chat.conversation_id", id))

	var req datatypes.AppendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed: " + err.Error()})
		return
	}

	if _, err := h.store.GetConversation(ctx, id, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "ownership check failed")
		slog.Error("Failed to check conversation ownership", "error", err, "conversationId", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to append message"})
		return
	}

	msg := &datatypes.StoredMessage{
		ConversationID: id,
		Role:           req.Role,
		Content:        req.Content,
		Metadata:       req.Metadata,
	}
	if err := h.store.AppendMessage(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		slog.Error("Failed to append message", "error", err, "conversationId", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to append message"})
		return
	}

	if err := h.store.IncrementStats(ctx, id, 1, time.Now().UTC()); err != nil {
		// The message is durable; a stale counter is tolerable.
		slog.Error("Failed to update conversation stats", "error", err, "conversationId", id)
	}

	c.JSON(http.StatusCreated, msg)
}
