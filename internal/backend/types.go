// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"strings"
	"time"

	"github.com/jeranaias/ragchat/internal/model"
)

// =============================================================================
// TIMESTAMPS
// =============================================================================

// Timestamp decodes the backend's ISO times, which usually carry no zone.
// Zoneless values are taken as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON accepts RFC 3339 with or without a zone, or null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// exchangeRequest is the body of create-message and create-edit.
type exchangeRequest struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Model    string   `json:"model"`
	TimeTook *float64 `json:"time_took,omitempty"`
}

func newExchangeRequest(ex model.Exchange) exchangeRequest {
	req := exchangeRequest{Question: ex.Question, Answer: ex.Answer, Model: ex.Model}
	if ex.Elapsed > 0 {
		secs := ex.Elapsed.Seconds()
		req.TimeTook = &secs
	}
	return req
}

// messageRequest is the body of create-message.
type messageRequest struct {
	exchangeRequest
	FirstMessage bool `json:"firstMessage"`
}

// inferenceRequest is the body of the direct inference call.
type inferenceRequest struct {
	Question string `json:"question"`
	Model    string `json:"model"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ThreadResponse is returned by create-thread and each row of the listing.
type ThreadResponse struct {
	ThreadID  string    `json:"thread_id"`
	Title     string    `json:"title"`
	StartedAt Timestamp `json:"started_at"`
	Status    string    `json:"status,omitempty"`
}

// Info converts the response to a listing row.
func (r ThreadResponse) Info() model.ThreadInfo {
	return model.ThreadInfo{ID: r.ThreadID, Title: r.Title, CreatedAt: r.StartedAt.Time}
}

// EditResponse is one edit in a conversation or message history.
type EditResponse struct {
	EditID     string    `json:"edit_id"`
	EditNumber int       `json:"edit_number,omitempty"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Model      string    `json:"model"`
	CreatedAt  Timestamp `json:"created_at"`
	TimeTook   *float64  `json:"time_took"`
}

// Edit converts the response to a model edit, deriving its thinking text.
func (r EditResponse) Edit() model.Edit {
	e := model.NewEdit(r.EditID, r.Model, r.Question, r.Answer, r.CreatedAt.Time)
	if r.TimeTook != nil {
		e.Elapsed = time.Duration(*r.TimeTook * float64(time.Second))
	}
	return e
}

// MessageResponse is one message with its edits.
type MessageResponse struct {
	MessageID string         `json:"message_id"`
	Edits     []EditResponse `json:"edits"`
}

// Message converts the response to a model message.
func (r MessageResponse) Message() *model.Message {
	m := &model.Message{ID: r.MessageID, Edits: make([]model.Edit, 0, len(r.Edits))}
	for _, e := range r.Edits {
		m.Edits = append(m.Edits, e.Edit())
	}
	return m
}

// ConversationResponse is the full history of a thread.
type ConversationResponse struct {
	ThreadID      string            `json:"thread_id"`
	Title         string            `json:"title"`
	StartedAt     Timestamp         `json:"started_at"`
	Messages      []MessageResponse `json:"messages"`
	TotalMessages int               `json:"total_messages"`
	TotalEdits    int               `json:"total_edits"`
}

// Thread converts the response to a loaded model thread. Messages without
// edits are dropped.
func (r ConversationResponse) Thread() *model.Thread {
	th := &model.Thread{
		ID:        r.ThreadID,
		Title:     r.Title,
		CreatedAt: r.StartedAt.Time,
		Messages:  make([]*model.Message, 0, len(r.Messages)),
		Loaded:    true,
	}
	for _, m := range r.Messages {
		if len(m.Edits) == 0 {
			continue
		}
		th.Messages = append(th.Messages, m.Message())
	}
	if n := len(th.Messages); n > 0 {
		th.Model = th.Messages[n-1].Latest().Model
	}
	return th
}

// MessageEditsResponse is the edit history of one message.
type MessageEditsResponse struct {
	ThreadID   string         `json:"thread_id"`
	MessageID  string         `json:"message_id"`
	Edits      []EditResponse `json:"edits"`
	TotalEdits int            `json:"total_edits"`
}

// Message converts the response to a model message.
func (r MessageEditsResponse) Message() *model.Message {
	return MessageResponse{MessageID: r.MessageID, Edits: r.Edits}.Message()
}

// ReceiptResponse is returned by create-message and create-edit.
type ReceiptResponse struct {
	ThreadID   string    `json:"thread_id"`
	MessageID  string    `json:"message_id"`
	EditID     string    `json:"edit_id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Model      string    `json:"model"`
	CreatedAt  Timestamp `json:"created_at"`
	TotalEdits int       `json:"total_edits,omitempty"`
	Status     string    `json:"status"`
}

// Receipt converts the response to a model receipt.
func (r ReceiptResponse) Receipt() *model.Receipt {
	return &model.Receipt{
		ThreadID:   r.ThreadID,
		MessageID:  r.MessageID,
		EditID:     r.EditID,
		Model:      r.Model,
		CreatedAt:  r.CreatedAt.Time,
		TotalEdits: r.TotalEdits,
		Status:     r.Status,
	}
}

// HealthResponse is the backend's health report.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Message  string `json:"message"`
}

// Healthy reports whether the backend considers itself operational.
func (h HealthResponse) Healthy() bool {
	return h.Status == "healthy"
}
