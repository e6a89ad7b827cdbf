// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm wraps completion providers behind a small interface so the
// chat handlers never see vendor SDK types or duck-typed vendor errors.
package llm

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianChat/services/chat/datatypes"
)

// =============================================================================
// Error Taxonomy
// =============================================================================

// Provider failures are mapped to this closed set of sentinels at the
// adapter boundary. Handlers switch on errors.Is and never inspect vendor
// error codes.
var (
	// ErrProviderAuth means the upstream credential was rejected.
	ErrProviderAuth = errors.New("llm: provider rejected credentials")

	// ErrQuotaExceeded means the account is out of quota (billing).
	ErrQuotaExceeded = errors.New("llm: provider quota exceeded")

	// ErrRateLimited means the provider throttled the request.
	ErrRateLimited = errors.New("llm: provider rate limit exceeded")

	// ErrNotConfigured means no provider credentials were supplied at
	// startup, so the client cannot be constructed.
	ErrNotConfigured = errors.New("llm: provider not configured")
)

// =============================================================================
// Generation Parameters
// =============================================================================

// GenerationParams carries optional sampling parameters for a completion.
// Nil fields leave the provider default in place.
type GenerationParams struct {
	Temperature *float32
	MaxTokens   *int
	Stop        []string
}

// =============================================================================
// Results
// =============================================================================

// Completion is the buffered result of a chat completion call.
type Completion struct {
	Content string
	Model   string
	Usage   *datatypes.TokenUsage
}

// Stream is an ordered sequence of text chunks from a streaming
// completion, followed by a terminal usage report.
//
// # Description
//
// Recv blocks for the next chunk and returns io.EOF when the provider is
// done. After EOF, Usage returns the provider-reported token counts when
// the provider supplies them in the final frame, else nil. This replaces
// callback-style stream handling with an explicit ordering contract:
// chunks first, terminal value after, exactly one end.
//
// # Thread Safety
//
// A Stream is owned by one goroutine; Recv must not be called
// concurrently.
type Stream interface {
	// Recv returns the next text chunk. io.EOF signals normal completion;
	// any other error means the stream broke and no further chunks follow.
	Recv() (string, error)

	// Usage returns provider-reported token usage. Valid only after Recv
	// returned io.EOF; nil when the provider did not report usage.
	Usage() *datatypes.TokenUsage

	// Close releases the underlying connection. Safe to call after EOF.
	Close() error
}

// Client is the completion provider interface consumed by the chat
// handlers.
//
// Implementations must be safe for concurrent use by multiple goroutines
// and must translate vendor errors into the package sentinels above.
type Client interface {
	// Complete performs a buffered chat completion.
	Complete(ctx context.Context, messages []datatypes.Message, params GenerationParams) (*Completion, error)

	// CompleteStream starts a streaming chat completion. The returned
	// Stream must be closed by the caller.
	CompleteStream(ctx context.Context, messages []datatypes.Message, params GenerationParams) (Stream, error)

	// Model returns the model name requests are issued against, for
	// persistence metadata.
	Model() string
}
