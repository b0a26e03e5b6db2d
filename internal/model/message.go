// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/jeranaias/ragchat/internal/stream"
)

// =============================================================================
// EDIT TYPE
// =============================================================================

// Edit is one revision of a message: a question, the answer a model gave to
// it, and when it was created.
type Edit struct {
	ID        string    `json:"edit_id"`
	Model     string    `json:"model"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`

	// Elapsed is how long the answer took to generate, when recorded.
	Elapsed time.Duration `json:"-"`

	// Thinking is derived from Answer, not persisted separately.
	Thinking string `json:"-"`
}

// NewEdit builds an edit and derives its thinking text from the answer.
func NewEdit(id, modelName, question, answer string, createdAt time.Time) Edit {
	return Edit{
		ID:        id,
		Model:     modelName,
		Question:  question,
		Answer:    answer,
		CreatedAt: createdAt,
		Thinking:  stream.ExtractThinking(answer).Thinking,
	}
}

// Response returns the answer with any thinking preamble removed.
func (e Edit) Response() string {
	return stream.ExtractThinking(e.Answer).Response
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one question slot in a thread. Edits is never empty once a
// message exists, and is only ever appended to.
type Message struct {
	ID    string `json:"message_id"`
	Edits []Edit `json:"edits"`
}

// Latest returns the most recent edit, which is authoritative for display.
func (m *Message) Latest() Edit {
	if len(m.Edits) == 0 {
		return Edit{}
	}
	return m.Edits[len(m.Edits)-1]
}

// LatestIndex returns the index of the most recent edit, or -1 when empty.
func (m *Message) LatestIndex() int {
	return len(m.Edits) - 1
}

// EditAt returns the edit at index i.
func (m *Message) EditAt(i int) (Edit, bool) {
	if i < 0 || i >= len(m.Edits) {
		return Edit{}, false
	}
	return m.Edits[i], true
}

// EditCount returns how many revisions the message has.
func (m *Message) EditCount() int {
	return len(m.Edits)
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	clone := &Message{ID: m.ID}
	if m.Edits != nil {
		clone.Edits = make([]Edit, len(m.Edits))
		copy(clone.Edits, m.Edits)
	}
	return clone
}

// StepEditIndex moves a displayed-edit index by delta within [0, count-1].
// A move that would leave the range is a no-op and reports false.
func StepEditIndex(current, delta, count int) (int, bool) {
	if count <= 0 {
		return 0, false
	}
	if current < 0 || current >= count {
		current = count - 1
	}
	next := current + delta
	if next < 0 || next >= count || delta == 0 {
		return current, false
	}
	return next, true
}

// =============================================================================
// EXCHANGE TYPES
// =============================================================================

// Exchange is a finished question/answer pair ready to be persisted.
type Exchange struct {
	Question string
	Answer   string
	Model    string

	// First is true for the first message of a thread.
	First bool

	// Elapsed is the wall time from request to end of stream.
	Elapsed time.Duration
}

// Receipt is the backend's acknowledgement of a persisted exchange.
type Receipt struct {
	ThreadID   string
	MessageID  string
	EditID     string
	Model      string
	CreatedAt  time.Time
	TotalEdits int
	Status     string
}
