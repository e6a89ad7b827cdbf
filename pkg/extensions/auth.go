// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the pluggable identity surface for the chat
// service.
//
// The chat service never talks to an identity provider directly. It consumes
// the AuthProvider interface, and deployments pick an implementation:
//
//   - NopAuthProvider: local development, every request is "local-user"
//   - StaticTokenProvider: a fixed token-to-user map from configuration
//   - Hosted providers (Clerk, Auth0, Okta): implemented out of tree
//
// Handlers only ever see the resulting AuthInfo, stored in the request
// context by the auth middleware.
package extensions

import (
	"context"
	"errors"
	"strings"
)

// ErrUnauthorized is returned when token validation fails. Provider
// implementations should wrap it so callers can classify with errors.Is.
//
// Example:
//
//	if !validToken {
//	    return nil, fmt.Errorf("token expired: %w", extensions.ErrUnauthorized)
//	}
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo contains identity information returned after successful
// authentication.
//
// # Fields
//
//   - UserID: Unique identifier for the user. The only required field;
//     conversation ownership keys on it.
//   - Email: User's email address, may be empty.
//   - Roles: Role memberships for authorization decisions.
//
// # Limitations
//
//   - No per-claim metadata; hosted providers that need extra claims should
//     resolve them before constructing AuthInfo.
type AuthInfo struct {
	UserID string
	Email  string
	Roles  []string
}

// HasRole checks if the user has a specific role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates authentication tokens and returns user identity.
//
// Implementations must be safe for concurrent use by multiple goroutines;
// Validate is called once per request.
type AuthProvider interface {
	// Validate checks the token and returns the user's identity.
	//
	// Returns ErrUnauthorized (possibly wrapped) when the token is invalid.
	// Any other error is treated as a provider failure, which also rejects
	// the request.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopAuthProvider accepts every request as "local-user". It is the default
// provider so the service runs without identity infrastructure in local
// setups.
type NopAuthProvider struct{}

// Validate implements AuthProvider. The token is ignored.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-user",
		Roles:  []string{"admin"},
	}, nil
}

// StaticTokenProvider validates bearer tokens against a fixed map. Intended
// for single-box deployments where a handful of API tokens are issued by
// hand; anything multi-user belongs in a hosted provider.
type StaticTokenProvider struct {
	// tokens maps bearer token -> user ID. Read-only after construction.
	tokens map[string]string
}

// NewStaticTokenProvider builds a provider from a token-to-userID map.
// The map is copied; later mutation of the argument has no effect.
func NewStaticTokenProvider(tokens map[string]string) *StaticTokenProvider {
	cp := make(map[string]string, len(tokens))
	for k, v := range tokens {
		cp[k] = v
	}
	return &StaticTokenProvider{tokens: cp}
}

// Validate implements AuthProvider.
func (p *StaticTokenProvider) Validate(_ context.Context, token string) (*AuthInfo, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	userID, ok := p.tokens[token]
	if !ok {
		return nil, ErrUnauthorized
	}
	return &AuthInfo{UserID: userID}, nil
}

// ParseTokenPairs parses a comma-separated list of token:userID pairs,
// the format of the CHAT_AUTH_TOKENS environment variable. Malformed or
// empty entries are skipped.
//
// Example:
//
//	ParseTokenPairs("tok-a:alice,tok-b:bob")
//	// map[string]string{"tok-a": "alice", "tok-b": "bob"}
func ParseTokenPairs(raw string) map[string]string {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, userID, ok := strings.Cut(pair, ":")
		token = strings.TrimSpace(token)
		userID = strings.TrimSpace(userID)
		if !ok || token == "" || userID == "" {
			continue
		}
		tokens[token] = userID
	}
	return tokens
}

// Compile-time interface checks.
var (
	_ AuthProvider = (*NopAuthProvider)(nil)
	_ AuthProvider = (*StaticTokenProvider)(nil)
)
