// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package history

import "github.com/AleutianAI/AleutianChat/services/chat/datatypes"

// TrimResult reports the outcome of a context-window trim.
//
// # Fields
//
//   - Messages: The selected suffix of the input, in original order.
//   - OriginalCount: Number of messages before trimming.
//   - TrimmedCount: Number of messages kept. Always <= OriginalCount.
//   - EstimatedTokens: Estimated cost of the kept messages.
//
// # Invariants
//
//   - Messages is a contiguous suffix of the input.
//   - If the input is non-empty and its last message is a user message,
//     that message is always present, regardless of budget.
type TrimResult struct {
	Messages        []datatypes.Message
	OriginalCount   int
	TrimmedCount    int
	EstimatedTokens int
}

// Trimmed reports whether any messages were dropped.
func (r TrimResult) Trimmed() bool {
	return r.TrimmedCount < r.OriginalCount
}

// Trim selects the longest suffix of messages that fits maxTokens.
//
// # Description
//
// Walks the list from newest to oldest, accumulating estimated token cost:
//
//  1. The final message, when it is a user message, is force-included
//     without a budget check. The newest user turn must always reach the
//     model, even if it alone exceeds the budget.
//  2. Every older message is included only if it fits the remaining
//     budget. The first message that does not fit stops the walk: older
//     messages are dropped wholesale rather than skipped individually, so
//     the result never has mid-conversation gaps.
//
// Keeping a suffix rather than cherry-picking preserves the local
// coherence of the recent exchange, which matters more to response quality
// than any individual older message.
//
// # Inputs
//
//   - messages: Full conversation, oldest first.
//   - maxTokens: Token budget. Zero or negative keeps only the forced
//     final user message, if any.
//
// # Outputs
//
//   - TrimResult: Kept suffix plus counts for observability. Counts are
//     populated even when nothing was trimmed.
//
// # Limitations
//
//   - A non-user final message (e.g. regeneration flows ending on an
//     assistant turn) gets no forced inclusion; with a tiny budget the
//     result may legitimately be empty.
func Trim(messages []datatypes.Message, maxTokens int) TrimResult {
	totalTokens := 0
	kept := make([]datatypes.Message, 0, len(messages))

	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		cost := EstimateMessageTokens(msg)

		// The newest user turn always survives the trim.
		if i == len(messages)-1 && msg.Role == datatypes.RoleUser {
			kept = append([]datatypes.Message{msg}, kept...)
			totalTokens += cost
			continue
		}

		if totalTokens+cost > maxTokens {
			break
		}

		kept = append([]datatypes.Message{msg}, kept...)
		totalTokens += cost
	}

	if len(kept) == 0 && len(messages) > 0 {
		last := messages[len(messages)-1]
		if last.Role == datatypes.RoleUser {
			kept = append(kept, last)
		}
	}

	return TrimResult{
		Messages:        kept,
		OriginalCount:   len(messages),
		TrimmedCount:    len(kept),
		EstimatedTokens: totalTokens,
	}
}
