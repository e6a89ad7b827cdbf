// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package history implements token estimation and context-window trimming
// for chat message lists.
//
// Estimation is a character-count heuristic, not a real tokenizer. It only
// needs to be consistent and monotonic: the trimmer compares estimates
// against a budget chosen conservatively below the model's true context
// limit, so a few percent of error is absorbed by headroom.
package history

import (
	"math"

	"github.com/AleutianAI/AleutianChat/services/chat/datatypes"
)

const (
	// charsPerToken approximates tokens from character count for English
	// text. GPT-family tokenizers average closer to 4 chars/token; 3.5
	// deliberately overestimates so trimming errs toward shorter prompts.
	charsPerToken = 3.5

	// messageOverheadTokens is the fixed per-message formatting cost the
	// chat wire format adds around role and content.
	messageOverheadTokens = 4
)

// EstimateTokens approximates the token cost of a text string.
//
// # Description
//
// Returns ceil(len(text) / 3.5). The result is zero for the empty string
// and non-decreasing in the length of the input.
//
// # Inputs
//
//   - text: Text to estimate. May be empty.
//
// # Outputs
//
//   - int: Estimated token count, >= 0.
//
// # Limitations
//
//   - Byte length, not rune count: multi-byte scripts are overestimated,
//     which is the safe direction for budget trimming.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / charsPerToken))
}

// EstimateMessageTokens approximates the token cost of a single message,
// including the per-message formatting overhead.
//
// # Inputs
//
//   - msg: Message with role and content.
//
// # Outputs
//
//   - int: Estimated cost of content + role + fixed overhead.
func EstimateMessageTokens(msg datatypes.Message) int {
	return EstimateTokens(msg.Content) + EstimateTokens(msg.Role) + messageOverheadTokens
}
