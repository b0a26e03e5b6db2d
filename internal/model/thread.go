// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// ProvisionalPrefix marks ids issued locally before the backend has
	// created the thread.
	ProvisionalPrefix = "temp_"

	// DefaultTitle is the title shown for threads with no questions yet.
	DefaultTitle = "New Chat"
)

// =============================================================================
// THREAD TYPES
// =============================================================================

// ThreadInfo is one row of the thread listing.
type ThreadInfo struct {
	ID        string    `json:"thread_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Thread is a conversation. Its ID is a placeholder until the backend issues
// a real one; after that the ID never changes.
type Thread struct {
	ID        string     `json:"thread_id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	Model     string     `json:"model"`
	Messages  []*Message `json:"messages"`

	// Loaded is true once the message list reflects the backend.
	Loaded bool `json:"-"`
}

// NewProvisionalThread creates an empty thread with a fresh placeholder id.
func NewProvisionalThread(title, modelName string) *Thread {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	return &Thread{
		ID:        ProvisionalPrefix + uuid.NewString(),
		Title:     title,
		CreatedAt: time.Now(),
		Model:     modelName,
		Messages:  []*Message{},
		Loaded:    true,
	}
}

// IsProvisionalID reports whether id is a locally issued placeholder.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// IsProvisional reports whether the backend has not yet created the thread.
func (t *Thread) IsProvisional() bool {
	return IsProvisionalID(t.ID)
}

// Info returns the listing row for the thread.
func (t *Thread) Info() ThreadInfo {
	return ThreadInfo{ID: t.ID, Title: t.Title, CreatedAt: t.CreatedAt}
}

// MessageByID returns the message with the given id, or nil.
func (t *Thread) MessageByID(id string) *Message {
	for _, m := range t.Messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// MessageCount returns the number of messages in the thread.
func (t *Thread) MessageCount() int {
	return len(t.Messages)
}

// IsEmpty returns true if the thread has no messages.
func (t *Thread) IsEmpty() bool {
	return len(t.Messages) == 0
}

// TitleFromQuestion derives a listing title from a first question.
func TitleFromQuestion(question string, maxRunes int) string {
	q := strings.Join(strings.Fields(question), " ")
	if q == "" {
		return DefaultTitle
	}
	r := []rune(q)
	if maxRunes > 3 && len(r) > maxRunes {
		return string(r[:maxRunes-3]) + "..."
	}
	return q
}

// Clone returns a deep copy of the thread.
func (t *Thread) Clone() *Thread {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Messages = make([]*Message, len(t.Messages))
	for i, m := range t.Messages {
		clone.Messages[i] = m.Clone()
	}
	return &clone
}
