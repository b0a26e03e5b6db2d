// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ragchat/internal/attach"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/stream"
)

// =============================================================================
// HELPERS
// =============================================================================

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(&ClientConfig{BaseURL: srv.URL + "/", Timeout: 5 * time.Second, RequestsPerSecond: 1000, Burst: 100})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(&ClientConfig{BaseURL: "http://example.test/"})
	assert.Equal(t, "http://example.test", c.BaseURL())
	assert.Equal(t, 30*time.Second, c.config.Timeout)
	assert.Equal(t, 10, c.config.Burst)

	c = NewClient(nil)
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
}

// =============================================================================
// STORAGE TESTS
// =============================================================================

func TestCreateThread(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/threads", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"thread_id":  "t1",
			"title":      "New Conversation",
			"started_at": "2025-03-01T10:00:00.123456",
			"status":     "created",
		})
	})

	info, err := c.CreateThread(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t1", info.ID)
	assert.Equal(t, "New Conversation", info.Title)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 123456000, time.UTC), info.CreatedAt)
}

func TestCreateThread_MissingID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"title": "x"})
	})
	_, err := c.CreateThread(context.Background())
	assert.True(t, IsType(err, ErrTypeInvalidResponse))
}

func TestListThreads(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/threads/titles", r.URL.Path)
		writeJSON(w, http.StatusOK, []map[string]any{
			{"thread_id": "t2", "title": "Second", "started_at": "2025-03-02T00:00:00+00:00"},
			{"thread_id": "t1", "title": "First", "started_at": "2025-03-01T00:00:00"},
		})
	})

	infos, err := c.ListThreads(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "t2", infos[0].ID)
	assert.Equal(t, "First", infos[1].Title)
}

func TestGetConversation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations/t1", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"thread_id":  "t1",
			"title":      "Hello",
			"started_at": "2025-03-01T00:00:00",
			"messages": []map[string]any{
				{"message_id": "m1", "edits": []map[string]any{
					{"edit_id": "e1", "question": "Hello", "answer": "Hi", "model": "smollm2:360m", "created_at": "2025-03-01T00:00:01"},
					{"edit_id": "e2", "question": "Hello!", "answer": "<think>greet</think>Hey", "model": "qwen3:0.6b", "created_at": "2025-03-01T00:00:02", "time_took": 1.5},
				}},
				{"message_id": "empty", "edits": []map[string]any{}},
			},
			"total_messages": 2,
			"total_edits":    2,
		})
	})

	th, err := c.GetConversation(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, th.Loaded)
	require.Len(t, th.Messages, 1, "messages without edits are dropped")

	m := th.Messages[0]
	assert.Equal(t, "m1", m.ID)
	require.Len(t, m.Edits, 2)
	assert.Equal(t, "greet", m.Edits[1].Thinking)
	assert.Equal(t, "Hey", m.Edits[1].Response())
	assert.Equal(t, 1500*time.Millisecond, m.Edits[1].Elapsed)
	assert.Equal(t, "qwen3:0.6b", th.Model)
}

func TestGetConversation_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"detail": map[string]any{"error": "Thread not found", "thread_id": "nope"},
		})
	})

	_, err := c.GetConversation(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, IsType(err, ErrTypeNotFound))
	assert.Contains(t, err.Error(), "Thread not found")

	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusNotFound, ce.Status)
}

func TestGetMessageEdits(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations/t1/m1", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"thread_id":  "t1",
			"message_id": "m1",
			"edits": []map[string]any{
				{"edit_id": "e1", "edit_number": 1, "question": "Q", "answer": "A", "model": "m", "created_at": "2025-03-01T00:00:01"},
			},
			"total_edits": 1,
		})
	})

	m, err := c.GetMessageEdits(context.Background(), "t1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "A", m.Latest().Answer)
}

func TestCreateMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/conversations/t1/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hello", body["question"])
		assert.Equal(t, "Hi there", body["answer"])
		assert.Equal(t, "smollm2:360m", body["model"])
		assert.Equal(t, true, body["firstMessage"])
		assert.InDelta(t, 2.0, body["time_took"], 0.001)

		writeJSON(w, http.StatusOK, map[string]any{
			"thread_id": "t1", "message_id": "m1", "edit_id": "e1",
			"question": "Hello", "answer": "Hi there", "model": "smollm2:360m",
			"created_at": "2025-03-01T00:00:00", "status": "created",
		})
	})

	rc, err := c.CreateMessage(context.Background(), "t1", model.Exchange{
		Question: "Hello", Answer: "Hi there", Model: "smollm2:360m", First: true, Elapsed: 2 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "m1", rc.MessageID)
	assert.Equal(t, "e1", rc.EditID)
	assert.Equal(t, "created", rc.Status)
}

func TestCreateEdit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations/m1/edits", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, hasFirst := body["firstMessage"]
		assert.False(t, hasFirst)
		_, hasTime := body["time_took"]
		assert.False(t, hasTime)

		writeJSON(w, http.StatusOK, map[string]any{
			"thread_id": "t1", "message_id": "m1", "edit_id": "e2", "edit_number": 2,
			"total_edits": 2, "created_at": "2025-03-01T00:00:00", "status": "created",
		})
	})

	rc, err := c.CreateEdit(context.Background(), "m1", model.Exchange{Question: "Q2", Answer: "A2", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, 2, rc.TotalEdits)
	assert.Equal(t, "t1", rc.ThreadID)
}

func TestDetailParsing(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"string detail", 400, `{"detail":"bad question"}`, "bad question"},
		{"object message", 500, `{"detail":{"error":"Failed","message":"db down"}}`, "db down"},
		{"object error only", 500, `{"detail":{"error":"Failed to create"}}`, "Failed to create"},
		{"no detail", 502, `{"oops":true}`, "HTTP 502"},
		{"not json", 500, `Internal Server Error`, "HTTP 500"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := c.ListThreads(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestNotReachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(&ClientConfig{BaseURL: url})
	_, err := c.ListThreads(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotReachable))
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "database": "connected", "message": "All systems operational"})
	})
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, h.Healthy())
	assert.Equal(t, "connected", h.Database)
}

func TestHealth_Unhealthy(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"detail": map[string]any{"status": "unhealthy", "database": "disconnected", "error": "no route"},
		})
	})
	h, err := c.Health(context.Background())
	require.Error(t, err)
	require.NotNil(t, h)
	assert.False(t, h.Healthy())
	assert.Equal(t, "disconnected", h.Database)
	assert.Equal(t, "no route", h.Message)
	assert.True(t, IsType(err, ErrTypeServer))
}

// =============================================================================
// INFERENCE TESTS
// =============================================================================

func TestAsk_Streams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/llm_call", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hello", body["question"])
		assert.Equal(t, "qwen3:0.6b", body["model"])

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range []string{"Hi", " there"} {
			data, _ := json.Marshal(map[string]string{"content": chunk})
			_, _ = io.WriteString(w, "data: "+string(data)+"\n\n")
			flusher.Flush()
		}
	})

	body, err := c.Ask(context.Background(), "Hello", "qwen3:0.6b")
	require.NoError(t, err)
	defer body.Close()

	res, err := stream.NewDecoder(body).Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", res.Text)
}

func TestAsk_HTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"detail": map[string]any{"error": "Failed to process LLM call", "message": "model missing"},
		})
	})

	_, err := c.Ask(context.Background(), "Hello", "nope")
	var se *stream.StreamError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.Equal(t, "model missing", se.Message)
}

func TestAsk_NotReachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(&ClientConfig{BaseURL: url}).Ask(context.Background(), "q", "m")
	assert.True(t, stream.IsStreamError(err))
	assert.True(t, IsType(err, ErrTypeNotReachable))
}

func TestAskWithContext_UploadsLocalPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manual.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o600))
	pdf, err := attach.FromFile(path, attach.DefaultOptions())
	require.NoError(t, err)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rag/", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "What?", r.FormValue("question"))
		assert.Equal(t, "smollm2:360m", r.FormValue("model"))
		assert.Empty(t, r.FormValue("pdf_path"))

		f, hdr, err := r.FormFile("pdf_file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "manual.pdf", hdr.Filename)
		assert.Equal(t, "%PDF-1.4 fake", string(data))

		_, _ = io.WriteString(w, "data: {\"content\":\"From doc\",\"context_used\":true}\n\n")
	})

	body, err := c.AskWithContext(context.Background(), "What?", "smollm2:360m", pdf)
	require.NoError(t, err)
	defer body.Close()

	res, err := stream.NewDecoder(body).Process(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.ContextUsed)
}

func TestAskWithContext_RemotePath(t *testing.T) {
	pdf, err := attach.FromRemotePath("/srv/docs/spec.pdf", attach.DefaultOptions())
	require.NoError(t, err)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "/srv/docs/spec.pdf", r.FormValue("pdf_path"))
		_, _, err := r.FormFile("pdf_file")
		assert.ErrorIs(t, err, http.ErrMissingFile)
		_, _ = io.WriteString(w, "data: {\"content\":\"ok\"}\n")
	})

	body, err := c.AskWithContext(context.Background(), "Q", "m", pdf)
	require.NoError(t, err)
	_ = body.Close()
}

func TestTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{`"2025-03-01T10:00:00"`, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{`"2025-03-01T10:00:00.5"`, time.Date(2025, 3, 1, 10, 0, 0, 500000000, time.UTC)},
		{`"2025-03-01T10:00:00+02:00"`, time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)},
		{`null`, time.Time{}},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tc.in), &ts))
			assert.True(t, tc.want.Equal(ts.Time), "got %v", ts.Time)
		})
	}

	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}
