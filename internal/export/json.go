// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/stream"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports threads as JSON. Answers are split into thinking
// and response; the raw answer is kept alongside.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

type jsonDocument struct {
	ThreadID   string        `json:"thread_id"`
	Title      string        `json:"title"`
	Model      string        `json:"model,omitempty"`
	CreatedAt  *time.Time    `json:"created_at,omitempty"`
	ExportedAt time.Time     `json:"exported_at"`
	Messages   []jsonMessage `json:"messages"`
}

type jsonMessage struct {
	MessageID string     `json:"message_id"`
	Edits     []jsonEdit `json:"edits"`
}

type jsonEdit struct {
	EditID     string    `json:"edit_id"`
	Model      string    `json:"model"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Response   string    `json:"response"`
	Thinking   string    `json:"thinking,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	DurationMs int64     `json:"duration_ms,omitempty"`
}

// Export converts a thread to indented JSON.
func (e *JSONExporter) Export(th *model.Thread) ([]byte, error) {
	if th == nil {
		return nil, fmt.Errorf("thread is nil")
	}
	if th.IsEmpty() {
		return nil, ErrEmptyThread
	}

	doc := jsonDocument{
		ThreadID:   th.ID,
		Title:      th.Title,
		Model:      th.Model,
		ExportedAt: e.options.now().UTC(),
		Messages:   make([]jsonMessage, 0, len(th.Messages)),
	}
	if !th.CreatedAt.IsZero() {
		created := th.CreatedAt
		doc.CreatedAt = &created
	}

	for _, msg := range th.Messages {
		jm := jsonMessage{MessageID: msg.ID}
		for _, edit := range edits(msg, e.options.AllEdits) {
			t := stream.ExtractThinking(edit.Answer)
			je := jsonEdit{
				EditID:     edit.ID,
				Model:      edit.Model,
				Question:   edit.Question,
				Answer:     edit.Answer,
				Response:   t.Response,
				CreatedAt:  edit.CreatedAt,
				DurationMs: edit.Elapsed.Milliseconds(),
			}
			if e.options.IncludeThinking {
				je.Thinking = t.Thinking
			}
			jm.Edits = append(jm.Edits, je)
		}
		doc.Messages = append(doc.Messages, jm)
	}

	return json.MarshalIndent(doc, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
