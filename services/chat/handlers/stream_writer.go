// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
)

// =============================================================================
// Interface Definition
// =============================================================================

// StreamWriter defines the contract for relaying model output to the client
// as a plain-text chunked response.
//
// # Description
//
// StreamWriter abstracts the incremental write-and-flush loop of a chat
// turn, enabling testability and separation from HTTP response mechanics.
// Unlike an SSE writer there is no event framing: each chunk is the raw
// token text, appended to the response body as it arrives, so the client
// can render the reply by concatenating everything it reads.
//
// Turn metadata (conversation ID, trimming info) travels in response
// headers set before the first chunk, since the body carries only text.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Limitations
//
//   - Must be used with an http.Flusher-compatible ResponseWriter
//   - Headers must be set before the first write
type StreamWriter interface {
	// WriteChunk appends one chunk of token text to the response and
	// flushes immediately. Returns a non-nil error if the write failed,
	// which usually means the client went away.
	WriteChunk(content string) error

	// BytesWritten reports the total number of body bytes written so far.
	BytesWritten() int
}

// =============================================================================
// Struct Definition
// =============================================================================

// textStreamWriter implements StreamWriter for chunked text responses.
//
// # Description
//
// Wraps an http.ResponseWriter and flushes after every chunk so tokens
// reach the client as the provider produces them rather than when the
// handler returns.
//
// # Thread Safety
//
// Thread-safe via mutex.
//
// # Limitations
//
//   - Cannot be reused across requests
type textStreamWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	written int
	mu      sync.Mutex
}

// =============================================================================
// Constructor
// =============================================================================

// NewStreamWriter creates a StreamWriter for the given ResponseWriter.
//
// # Description
//
// The caller must set response headers (via SetStreamHeaders) before the
// first WriteChunk call.
//
// # Inputs
//
//   - w: HTTP ResponseWriter. Must implement http.Flusher.
//
// # Outputs
//
//   - StreamWriter: Ready to relay chunks.
//   - error: Non-nil if the ResponseWriter doesn't support flushing.
//
// # Examples
//
//	SetStreamHeaders(c.Writer, meta)
//	writer, err := NewStreamWriter(c.Writer)
//	if err != nil {
//	    c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
//	    return
//	}
//	writer.WriteChunk("Hello")
func NewStreamWriter(w http.ResponseWriter) (StreamWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}

	return &textStreamWriter{
		writer:  w,
		flusher: flusher,
	}, nil
}

// =============================================================================
// Methods
// =============================================================================

// WriteChunk appends one chunk of token text and flushes immediately.
func (w *textStreamWriter) WriteChunk(content string) error {
	if content == "" {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.writer.Write([]byte(content))
	w.written += n
	if err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// BytesWritten reports the total number of body bytes written so far.
func (w *textStreamWriter) BytesWritten() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// =============================================================================
// Helper Functions
// =============================================================================

// StreamMeta carries the turn metadata exposed to clients via headers.
type StreamMeta struct {
	ConversationID       string
	Trimmed              bool
	MessageCount         int
	OriginalMessageCount int
}

// SetStreamHeaders configures HTTP response headers for a chunked text
// streaming chat turn.
//
// # Description
//
// Sets the content headers for incremental text delivery plus the
// X-Conversation-Id / X-Trimmed family that carries turn metadata the
// plain-text body cannot:
//
//   - Content-Type: text/plain; charset=utf-8
//   - Cache-Control: no-cache
//   - X-Accel-Buffering: no (disables nginx buffering)
//   - X-Conversation-Id: conversation the turn belongs to
//   - X-Trimmed: "true" when history trimming dropped messages
//   - X-Message-Count: messages actually sent to the model
//   - X-Original-Message-Count: messages before trimming
//
// Must be called before writing any response body.
func SetStreamHeaders(w http.ResponseWriter, meta StreamMeta) {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	h.Set("X-Conversation-Id", meta.ConversationID)
	h.Set("X-Trimmed", strconv.FormatBool(meta.Trimmed))
	h.Set("X-Message-Count", strconv.Itoa(meta.MessageCount))
	h.Set("X-Original-Message-Count", strconv.Itoa(meta.OriginalMessageCount))
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ StreamWriter = (*textStreamWriter)(nil)
