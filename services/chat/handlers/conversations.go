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

	"github.com/AleutianAI/AleutianChat/services/chat/datatypes"
	"github.com/AleutianAI/AleutianChat/services/chat/middleware"
	"github.com/AleutianAI/AleutianChat/services/chat/store"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Handler Definition
// =============================================================================

// ConversationHandler serves the conversation sidebar API: list, create,
// fetch, and delete. All operations are scoped to the authenticated user;
// a conversation owned by someone else is indistinguishable from one that
// does not exist.
type ConversationHandler struct {
	store  store.ConversationStore
	tracer trace.Tracer
}

// NewConversationHandler creates a ConversationHandler.
func NewConversationHandler(st store.ConversationStore) *ConversationHandler {
	return &ConversationHandler{
		store:  st,
		tracer: otel.Tracer("aleutian.chat.handlers"),
	}
}

// =============================================================================
// Endpoints
// =============================================================================

// HandleList handles GET /v1/conversations.
//
// Returns the user's conversations newest-first by last activity,
// excluding archived ones, capped at the store's default limit.
func (h *ConversationHandler) HandleList(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "ListConversations")
	defer span.End()

	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	convs, err := h.store.ListConversations(ctx, userID, store.DefaultListLimit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		slog.Error("Failed to list conversations", "error", err, "userId", userID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	span.SetAttributes(attribute.Int("chat.conversation_count", len(convs)))
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// HandleCreate handles POST /v1/conversations.
//
// Creates an empty conversation with an explicit title. Most conversations
// are instead created lazily by the first chat turn; this endpoint exists
// for clients that want the ID up front.
func (h *ConversationHandler) HandleCreate(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "CreateConversation")
	defer span.End()

	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req datatypes.CreateConversationRequest
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

	conv := &datatypes.Conversation{
		UserID: userID,
		Title:  req.Title,
	}
	if err := h.store.CreateConversation(ctx, conv); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		slog.Error("Failed to create conversation", "error", err, "userId", userID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
		return
	}

	span.SetAttributes(attribute.String("chat.conversation_id", conv.ID))
	slog.Info("Created conversation", "conversationId", conv.ID, "userId", userID)
	c.JSON(http.StatusCreated, conv)
}

// HandleGet handles GET /v1/conversations/:id.
func (h *ConversationHandler) HandleGet(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "GetConversation")
	defer span.End()

	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	id := c.Param("id")
	span.SetAttributes(attribute.String("chat.conversation_id", id))

	conv, err := h.store.GetConversation(ctx, id, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "get failed")
		slog.Error("Failed to fetch conversation", "error", err, "conversationId", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch conversation"})
		return
	}

	c.JSON(http.StatusOK, conv)
}

// HandleDelete handles DELETE /v1/conversations/:id.
//
// Deletes the conversation and every message in it. Returns 404 for an
// absent or unowned ID, 204 on success.
func (h *ConversationHandler) HandleDelete(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "DeleteConversation")
	defer span.End()

	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	id := c.Param("id")
	span.SetAttributes(attribute.String("chat.conversation_id", id))

	if err := h.store.DeleteConversation(ctx, id, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		slog.Error("Failed to delete conversation", "error", err, "conversationId", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete conversation"})
		return
	}

	slog.Info("Deleted conversation", "conversationId", id, "userId", userID)
	c.Status(http.StatusNoContent)
}
