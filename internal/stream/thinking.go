// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import "strings"

// Reserved markers that delimit a model's thinking preamble.
const (
	ThinkOpen  = "<think>"
	ThinkClose = "</think>"
)

// Thinking is the split of an answer into its thinking preamble and the
// response proper.
type Thinking struct {
	// Thinking is the trimmed text between the markers. Empty when absent.
	Thinking string

	// Response is what the user should see as the answer.
	Response string

	// HasThinking is true when the answer starts with ThinkOpen.
	HasThinking bool

	// InProgress is true when ThinkOpen was seen but ThinkClose was not.
	// Thinking then holds everything after the opening marker.
	InProgress bool
}

// ExtractThinking splits text according to the thinking markers.
//
// The opening marker only counts at byte 0. Without it the whole text is the
// response, unchanged. With it but no closing marker, the remainder is
// (still growing) thinking and the response is empty. The function is pure, so
// callers re-run it over the whole buffer on every delta.
func ExtractThinking(text string) Thinking {
	if !strings.HasPrefix(text, ThinkOpen) {
		return Thinking{Response: text}
	}

	rest := text[len(ThinkOpen):]
	end := strings.Index(rest, ThinkClose)
	if end < 0 {
		return Thinking{
			Thinking:    strings.TrimSpace(rest),
			HasThinking: true,
			InProgress:  true,
		}
	}

	return Thinking{
		Thinking:    strings.TrimSpace(rest[:end]),
		Response:    strings.TrimSpace(rest[end+len(ThinkClose):]),
		HasThinking: true,
	}
}
