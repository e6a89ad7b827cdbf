// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package history

import (
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianChat/services/chat/datatypes"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// EstimateTokens Tests
// =============================================================================

func TestEstimateTokens_EmptyString(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
}

func TestEstimateTokens_KnownLengths(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"single char", "a", 1},
		{"three chars", "abc", 1},
		{"four chars", "abcd", 2}, // ceil(4/3.5)
		{"seven chars", "1234567", 2},
		{"eight chars", "12345678", 3},
		{"thirty-five chars", strings.Repeat("x", 35), 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.text))
		})
	}
}

func TestEstimateTokens_MonotonicInLength(t *testing.T) {
	prev := 0
	for n := 0; n <= 500; n++ {
		got := EstimateTokens(strings.Repeat("a", n))
		assert.GreaterOrEqual(t, got, prev, "length %d", n)
		prev = got
	}
}

// =============================================================================
// EstimateMessageTokens Tests
// =============================================================================

func TestEstimateMessageTokens_IncludesRoleAndOverhead(t *testing.T) {
	msg := datatypes.Message{Role: datatypes.RoleUser, Content: "hello"}

	want := EstimateTokens("hello") + EstimateTokens("user") + 4
	assert.Equal(t, want, EstimateMessageTokens(msg))
}

func TestEstimateMessageTokens_EmptyContentStillCosts(t *testing.T) {
	msg := datatypes.Message{Role: datatypes.RoleAssistant}

	// Role and formatting overhead are never free.
	assert.Greater(t, EstimateMessageTokens(msg), 0)
}
