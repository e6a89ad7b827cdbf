// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/AleutianAI/AleutianChat/services/chat/datatypes"
	"github.com/sashabaranov/go-openai"
)

// Vendor error codes the adapter recognizes. Anything else passes through
// as a generic wrapped error.
const (
	codeInsufficientQuota = "insufficient_quota"
	codeInvalidAPIKey     = "invalid_api_key"
	codeRateLimitExceeded = "rate_limit_exceeded"
)

type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds a client from OPENAI_API_KEY and OPENAI_MODEL.
// Falls back to the container secret path when the env var is unset.
// Returns ErrNotConfigured when no key can be found.
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	model := os.Getenv("OPENAI_MODEL")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from Podman Secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, ErrNotConfigured
		}
	}
	if model == "" {
		model = openai.GPT3Dot5Turbo
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-3.5-turbo")
	}
	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Model implements the Client interface.
func (o *OpenAIClient) Model() string {
	return o.model
}

// Complete implements the Client interface with a buffered completion.
func (o *OpenAIClient) Complete(ctx context.Context, messages []datatypes.Message,
	params GenerationParams) (*Completion, error) {

	slog.Debug("Requesting buffered completion from OpenAI", "model", o.model, "messages", len(messages))

	resp, err := o.client.CreateChatCompletion(ctx, o.buildRequest(messages, params, false))
	if err != nil {
		return nil, mapProviderError(err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices")
		return nil, fmt.Errorf("OpenAI returned no choices")
	}

	return &Completion{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: &datatypes.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// CompleteStream implements the Client interface. Usage reporting is
// requested in the final stream frame so the streaming path can persist
// real token counts.
func (o *OpenAIClient) CompleteStream(ctx context.Context, messages []datatypes.Message,
	params GenerationParams) (Stream, error) {

	slog.Debug("Requesting streaming completion from OpenAI", "model", o.model, "messages", len(messages))

	req := o.buildRequest(messages, params, true)
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, mapProviderError(err)
	}
	return &openaiStream{stream: stream}, nil
}

func (o *OpenAIClient) buildRequest(messages []datatypes.Message,
	params GenerationParams, stream bool) openai.ChatCompletionRequest {

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
		Stream:   stream,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
	return req
}

// =============================================================================
// Stream Adapter
// =============================================================================

// openaiStream adapts the SDK stream to the package Stream interface,
// skipping the trailing usage-only frame and capturing its counts.
type openaiStream struct {
	stream *openai.ChatCompletionStream
	usage  *datatypes.TokenUsage
}

// Recv returns the next non-empty content delta. Frames without choices
// (the usage frame) are consumed silently.
func (s *openaiStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", err
			}
			return "", mapProviderError(err)
		}
		if resp.Usage != nil {
			s.usage = &datatypes.TokenUsage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

// Usage implements the Stream interface.
func (s *openaiStream) Usage() *datatypes.TokenUsage {
	return s.usage
}

// Close implements the Stream interface.
func (s *openaiStream) Close() error {
	return s.stream.Close()
}

// =============================================================================
// Error Mapping
// =============================================================================

// mapProviderError converts the SDK's duck-typed errors into the package
// sentinels so handler error mapping is exhaustive.
func mapProviderError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok {
			switch code {
			case codeInsufficientQuota:
				return fmt.Errorf("%w: %s", ErrQuotaExceeded, apiErr.Message)
			case codeInvalidAPIKey:
				return fmt.Errorf("%w: %s", ErrProviderAuth, apiErr.Message)
			case codeRateLimitExceeded:
				return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
			}
		}
		// Codes are not stable across providers behind the OpenAI wire
		// format; fall back to the HTTP status.
		switch apiErr.HTTPStatusCode {
		case 401:
			return fmt.Errorf("%w: %s", ErrProviderAuth, apiErr.Message)
		case 429:
			return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
		}
	}
	return fmt.Errorf("OpenAI API call failed: %w", err)
}

// Compile-time interface check.
var _ Client = (*OpenAIClient)(nil)
