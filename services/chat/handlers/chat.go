// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP handlers for the chat service.
//
// # Description
//
// The central handler is the chat turn orchestrator (HandleChat), which
// owns the full request lifecycle:
//
//	Request
//	   │
//	   ▼
//	Validate body ──► Resolve or lazily create conversation
//	   │
//	   ▼
//	Persist user message (durable before the model call)
//	   │
//	   ▼
//	Trim history to the context budget
//	   │
//	   ▼
//	Provider completion ──► stream relay OR buffered JSON
//	   │
//	   ▼
//	Persist assistant message + metadata, bump counters
//
// The user message is written before the provider call so a failed or
// interrupted completion never loses what the user typed. Post-stream
// persistence failures are logged, never surfaced: the client already has
// the full response body by then.
//
// Conversation CRUD endpoints live in conversations.go and messages.go.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianChat/services/chat/datatypes"
	"github.com/AleutianAI/AleutianChat/services/chat/history"
	"github.com/AleutianAI/AleutianChat/services/chat/middleware"
	"github.com/AleutianAI/AleutianChat/services/chat/observability"
	"github.com/AleutianAI/AleutianChat/services/chat/store"
	"github.com/AleutianAI/AleutianChat/services/llm"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// DefaultContextBudgetTokens is the trimming budget when
	// CHAT_CONTEXT_BUDGET_TOKENS is unset.
	DefaultContextBudgetTokens = 15000

	// Completion sampling defaults for chat turns.
	defaultTemperature     = float32(0.7)
	defaultMaxOutputTokens = 1000
)

// =============================================================================
// Handler Definition
// =============================================================================

// ChatHandler orchestrates chat turns against a completion provider and a
// conversation store.
//
// # Description
//
// All dependencies are injected; the handler holds no global state and is
// safe for concurrent requests.
//
// # Fields
//
//   - store: Conversation persistence. Must not be nil.
//   - llm: Completion provider. Must not be nil.
//   - budget: Token budget for history trimming.
//   - production: Hides provider error detail from clients when true.
//   - tracer: OpenTelemetry tracer for distributed tracing.
//
// # Thread Safety
//
// Thread-safe. All fields are set at construction and never mutated.
type ChatHandler struct {
	store      store.ConversationStore
	llm        llm.Client
	budget     int
	production bool
	tracer     trace.Tracer
}

// NewChatHandler creates a ChatHandler with the given dependencies.
//
// # Description
//
// The trimming budget comes from CHAT_CONTEXT_BUDGET_TOKENS when set to a
// positive integer, else DefaultContextBudgetTokens. Error detail gating
// follows CHAT_ENV: "production" hides provider messages from clients.
//
// # Inputs
//
//   - st: Conversation store. Must not be nil.
//   - client: Completion provider. Must not be nil.
//
// # Outputs
//
//   - *ChatHandler: Ready to register routes against.
func NewChatHandler(st store.ConversationStore, client llm.Client) *ChatHandler {
	budget := DefaultContextBudgetTokens
	if v := os.Getenv("CHAT_CONTEXT_BUDGET_TOKENS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			budget = parsed
		} else {
			slog.Warn("Ignoring invalid CHAT_CONTEXT_BUDGET_TOKENS", "value", v)
		}
	}

	return &ChatHandler{
		store:      st,
		llm:        client,
		budget:     budget,
		production: strings.EqualFold(os.Getenv("CHAT_ENV"), "production"),
		tracer:     otel.Tracer("aleutian.chat.handlers"),
	}
}

// =============================================================================
// Chat Turn Endpoint
// =============================================================================

// HandleChat handles POST /v1/chat.
//
// # Description
//
// Runs one chat turn: validates the request, resolves or lazily creates
// the conversation, persists the user message, trims history to the
// context budget, calls the provider, and relays the reply. The streaming
// variant (default) returns chunked text/plain with turn metadata in
// X- headers; `"stream": false` returns buffered JSON.
//
// # Responses
//
//   - 200: Reply body (streamed text or JSON).
//   - 400: Malformed body or validation failure.
//   - 401: Missing auth, or the provider rejected its credential.
//   - 404: conversation_id not found or owned by another user.
//   - 429: Provider quota exhausted or rate limited.
//   - 500: Provider or store failure.
func (h *ChatHandler) HandleChat(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "HandleChat")
	defer span.End()

	start := time.Now()

	userID := middleware.UserID(c)
	if userID == "" {
		span.SetStatus(codes.Error, "missing auth info")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	span.SetAttributes(attribute.String("user.id", userID))

	var req datatypes.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		slog.Error("Failed to parse chat request", "error", err)
		recordErr(endpointFor(true), observability.ErrorCodeValidation)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	endpoint := endpointFor(req.Streaming())

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		slog.Error("Chat request validation failed", "error", err, "userId", userID)
		recordErr(endpoint, observability.ErrorCodeValidation)
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed: " + err.Error()})
		return
	}

	span.SetAttributes(
		attribute.Int("chat.message_count", len(req.Messages)),
		attribute.Bool("chat.streaming", req.Streaming()),
	)

	conv, err := h.resolveConversation(ctx, &req, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			span.SetStatus(codes.Error, "conversation not found")
			recordErr(endpoint, observability.ErrorCodeNotFound)
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "conversation resolution failed")
		slog.Error("Failed to resolve conversation", "error", err, "userId", userID)
		recordErr(endpoint, observability.ErrorCodeStore)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve conversation"})
		return
	}
	span.SetAttributes(attribute.String("chat.conversation_id", conv.ID))

	// Persist the user message before calling the provider. A failed or
	// interrupted completion must never lose what the user typed.
	persistedUser := 0
	if latest := req.LatestMessage(); latest.Role == datatypes.RoleUser {
		userMsg := &datatypes.StoredMessage{
			ConversationID: conv.ID,
			Role:           datatypes.RoleUser,
			Content:        latest.Content,
			Attachments:    req.Attachments,
		}
		if err := h.store.AppendMessage(ctx, userMsg); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "user message persistence failed")
			slog.Error("Failed to persist user message",
				"error", err, "conversationId", conv.ID)
			recordErr(endpoint, observability.ErrorCodeStore)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist message"})
			return
		}
		persistedUser = 1
	}

	trimmed := history.Trim(req.Messages, h.budget)
	span.SetAttributes(
		attribute.Bool("chat.trimmed", trimmed.Trimmed()),
		attribute.Int("chat.trimmed_message_count", trimmed.TrimmedCount),
		attribute.Int("chat.estimated_tokens", trimmed.EstimatedTokens),
	)
	if trimmed.Trimmed() {
		slog.Info("Trimmed chat history to context budget",
			"conversationId", conv.ID,
			"originalCount", trimmed.OriginalCount,
			"trimmedCount", trimmed.TrimmedCount,
			"estimatedTokens", trimmed.EstimatedTokens)
	}
	if m := observability.DefaultMetrics; m != nil {
		m.RecordTrim(endpoint, trimmed.OriginalCount-trimmed.TrimmedCount)
	}

	params := llm.GenerationParams{
		Temperature: ptr(defaultTemperature),
		MaxTokens:   ptr(defaultMaxOutputTokens),
	}

	var success bool
	if req.Streaming() {
		success = h.streamTurn(c, span, conv, trimmed, params, persistedUser, start)
	} else {
		success = h.bufferedTurn(c, span, conv, trimmed, params, persistedUser)
	}

	if m := observability.DefaultMetrics; m != nil {
		m.RecordRequest(endpoint, success)
		m.RecordTurnDuration(endpoint, time.Since(start).Seconds(), success)
	}
	if success {
		span.SetStatus(codes.Ok, "chat turn completed")
	}
}

// =============================================================================
// Streaming Variant
// =============================================================================

// streamTurn relays the provider stream to the client as chunked text.
// Returns true when the turn completed and the assistant reply was
// persisted.
func (h *ChatHandler) streamTurn(
	c *gin.Context,
	span trace.Span,
	conv *datatypes.Conversation,
	trimmed history.TrimResult,
	params llm.GenerationParams,
	persistedUser int,
	start time.Time,
) bool {
	ctx := c.Request.Context()
	endpoint := observability.EndpointChatStream

	stream, err := h.llm.CompleteStream(ctx, trimmed.Messages, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider stream setup failed")
		slog.Error("Failed to start completion stream",
			"error", err, "conversationId", conv.ID)
		h.writeProviderError(c, endpoint, err)
		h.bumpStats(conv, persistedUser)
		return false
	}
	defer stream.Close()

	SetStreamHeaders(c.Writer, StreamMeta{
		ConversationID:       conv.ID,
		Trimmed:              trimmed.Trimmed(),
		MessageCount:         trimmed.TrimmedCount,
		OriginalMessageCount: trimmed.OriginalCount,
	})

	writer, err := NewStreamWriter(c.Writer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "streaming unsupported")
		recordErr(endpoint, observability.ErrorCodeInternal)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return false
	}

	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted(endpoint)
		defer m.StreamEnded(endpoint)
	}

	var reply strings.Builder
	firstChunk := true
	for {
		chunk, recvErr := stream.Recv()
		if recvErr != nil {
			if errors.Is(recvErr, io.EOF) {
				break
			}
			span.RecordError(recvErr)
			span.SetStatus(codes.Error, "provider stream broke")
			slog.Error("Completion stream failed mid-relay",
				"error", recvErr,
				"conversationId", conv.ID,
				"bytesRelayed", writer.BytesWritten())
			recordErr(endpoint, observability.ErrorCodeLLMError)
			// Headers and partial body are already out; nothing more to send.
			h.bumpStats(conv, persistedUser)
			return false
		}

		if firstChunk && chunk != "" {
			firstChunk = false
			ttft := time.Since(start).Seconds()
			span.SetAttributes(attribute.Float64("chat.time_to_first_token_seconds", ttft))
			if m := observability.DefaultMetrics; m != nil {
				m.RecordTimeToFirstToken(endpoint, ttft)
			}
		}

		reply.WriteString(chunk)
		if writeErr := writer.WriteChunk(chunk); writeErr != nil {
			// Client went away. The turn is abandoned: the assistant reply
			// is not persisted, so the stored history never contains a
			// message the user never saw.
			span.SetStatus(codes.Error, "client disconnected")
			slog.Warn("Client disconnected during stream",
				"conversationId", conv.ID,
				"bytesRelayed", writer.BytesWritten())
			if m := observability.DefaultMetrics; m != nil {
				m.RecordClientDisconnect(endpoint)
				m.RecordError(endpoint, observability.ErrorCodeClientDisconnect)
			}
			h.bumpStats(conv, persistedUser)
			return false
		}
	}

	usage := stream.Usage()
	h.persistAssistantTurn(conv, reply.String(), usage, trimmed, persistedUser)

	if usage != nil {
		span.SetAttributes(attribute.Int("chat.total_tokens", usage.TotalTokens))
		if m := observability.DefaultMetrics; m != nil {
			m.RecordTokens(usage.PromptTokens, usage.CompletionTokens, h.llm.Model())
		}
	}
	return true
}

// =============================================================================
// Buffered Variant
// =============================================================================

// bufferedTurn performs a non-streaming completion and returns JSON.
func (h *ChatHandler) bufferedTurn(
	c *gin.Context,
	span trace.Span,
	conv *datatypes.Conversation,
	trimmed history.TrimResult,
	params llm.GenerationParams,
	persistedUser int,
) bool {
	endpoint := observability.EndpointChatBuffered

	completion, err := h.llm.Complete(c.Request.Context(), trimmed.Messages, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider completion failed")
		slog.Error("Completion failed",
			"error", err, "conversationId", conv.ID)
		h.writeProviderError(c, endpoint, err)
		h.bumpStats(conv, persistedUser)
		return false
	}

	h.persistAssistantTurn(conv, completion.Content, completion.Usage, trimmed, persistedUser)

	if completion.Usage != nil {
		span.SetAttributes(attribute.Int("chat.total_tokens", completion.Usage.TotalTokens))
		if m := observability.DefaultMetrics; m != nil {
			m.RecordTokens(completion.Usage.PromptTokens, completion.Usage.CompletionTokens, h.llm.Model())
		}
	}

	c.JSON(http.StatusOK, datatypes.ChatResponse{
		Message:        completion.Content,
		ConversationID: conv.ID,
		Usage:          completion.Usage,
	})
	return true
}

// =============================================================================
// Helpers
// =============================================================================

// resolveConversation fetches the conversation named by the request, or
// lazily creates one when no ID was supplied. Ownership is enforced by the
// store: an ID owned by another user surfaces as ErrNotFound.
func (h *ChatHandler) resolveConversation(
	ctx context.Context,
	req *datatypes.ChatRequest,
	userID string,
) (*datatypes.Conversation, error) {
	if req.ConversationID != "" {
		return h.store.GetConversation(ctx, req.ConversationID, userID)
	}

	conv := &datatypes.Conversation{
		UserID: userID,
		Title:  req.DeriveTitle(),
	}
	if err := h.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	slog.Info("Created conversation", "conversationId", conv.ID, "userId", userID)
	return conv, nil
}

// persistAssistantTurn stores the assistant reply with its metadata and
// bumps the conversation counters. Failures here are logged only: the
// client already has the response body.
func (h *ChatHandler) persistAssistantTurn(
	conv *datatypes.Conversation,
	content string,
	usage *datatypes.TokenUsage,
	trimmed history.TrimResult,
	persistedUser int,
) {
	// Persistence outlives the request context: the reply has been
	// delivered, so a client disconnect must not cancel the write.
	ctx, cancel := persistContext()
	defer cancel()

	persisted := persistedUser
	if content != "" {
		msg := &datatypes.StoredMessage{
			ConversationID: conv.ID,
			Role:           datatypes.RoleAssistant,
			Content:        content,
			Metadata: &datatypes.MessageMetadata{
				Model:                h.llm.Model(),
				Tokens:               usage,
				Trimmed:              trimmed.Trimmed(),
				OriginalMessageCount: trimmed.OriginalCount,
				TrimmedMessageCount:  trimmed.TrimmedCount,
			},
		}
		if err := h.store.AppendMessage(ctx, msg); err != nil {
			slog.Error("Failed to persist assistant message",
				"error", err, "conversationId", conv.ID)
		} else {
			persisted++
		}
	}

	if persisted > 0 {
		if err := h.store.IncrementStats(ctx, conv.ID, persisted, time.Now().UTC()); err != nil {
			slog.Error("Failed to update conversation stats",
				"error", err, "conversationId", conv.ID)
		}
	}
}

// bumpStats updates counters for turns that persisted only the user
// message (abandoned streams).
func (h *ChatHandler) bumpStats(conv *datatypes.Conversation, persisted int) {
	if persisted == 0 {
		return
	}
	ctx, cancel := persistContext()
	defer cancel()
	if err := h.store.IncrementStats(ctx, conv.ID, persisted, time.Now().UTC()); err != nil {
		slog.Error("Failed to update conversation stats",
			"error", err, "conversationId", conv.ID)
	}
}

// writeProviderError maps a provider sentinel to an HTTP response.
// Uncategorized errors return 500; the underlying message is included
// only outside production.
func (h *ChatHandler) writeProviderError(c *gin.Context, endpoint observability.Endpoint, err error) {
	switch {
	case errors.Is(err, llm.ErrQuotaExceeded):
		recordErr(endpoint, observability.ErrorCodeQuota)
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "provider quota exceeded"})
	case errors.Is(err, llm.ErrRateLimited):
		recordErr(endpoint, observability.ErrorCodeRateLimited)
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "provider rate limit exceeded, retry shortly"})
	case errors.Is(err, llm.ErrProviderAuth):
		recordErr(endpoint, observability.ErrorCodeProviderAuth)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "provider rejected credentials"})
	default:
		recordErr(endpoint, observability.ErrorCodeLLMError)
		detail := "completion failed"
		if !h.production {
			detail = fmt.Sprintf("completion failed: %v", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": detail})
	}
}

// persistTimeout bounds post-delivery store writes.
const persistTimeout = 10 * time.Second

// persistContext returns a context detached from the request, so writes
// that happen after the reply was delivered survive client disconnects.
func persistContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), persistTimeout)
}

// recordErr is a nil-safe metrics helper.
func recordErr(endpoint observability.Endpoint, code observability.ErrorCode) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordError(endpoint, code)
	}
}

// endpointFor maps the stream flag to a metrics endpoint label.
func endpointFor(streaming bool) observability.Endpoint {
	if streaming {
		return observability.EndpointChatStream
	}
	return observability.EndpointChatBuffered
}

func ptr[T any](v T) *T {
	return &v
}
