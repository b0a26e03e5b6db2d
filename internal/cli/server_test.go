// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// FAKE BACKEND SERVER
// =============================================================================

type fakeEdit struct {
	ID       string `json:"edit_id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Model    string `json:"model"`
	Created  string `json:"created_at"`
}

type fakeMessage struct {
	ID    string     `json:"message_id"`
	Edits []fakeEdit `json:"edits"`
}

type fakeThread struct {
	ID       string
	Title    string
	Messages []*fakeMessage
}

// fakeServer speaks the backend's HTTP contract from memory.
type fakeServer struct {
	t  *testing.T
	mu sync.Mutex

	threads []*fakeThread
	ids     int

	chunks []string
	health map[string]string

	llmCalls int
	ragCalls int
	llmFails int
	ragPath  string
	edits    int
}

func newFakeServer(t *testing.T, chunks ...string) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{
		t:      t,
		chunks: chunks,
		health: map[string]string{"status": "healthy", "database": "connected", "message": "ok"},
	}
	srv := httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(srv.Close)
	return fs, srv
}

func (f *fakeServer) nextID(prefix string) string {
	f.ids++
	return fmt.Sprintf("%s%d", prefix, f.ids)
}

func (f *fakeServer) thread(id string) *fakeThread {
	for _, th := range f.threads {
		if th.ID == id {
			return th
		}
	}
	return nil
}

func (f *fakeServer) message(id string) (*fakeThread, *fakeMessage) {
	for _, th := range f.threads {
		for _, m := range th.Messages {
			if m.ID == id {
				return th, m
			}
		}
	}
	return nil, nil
}

// seed adds a persisted thread with one message per question/answer pair.
func (f *fakeServer) seed(id, title string, pairs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	th := &fakeThread{ID: id, Title: title}
	for i := 0; i+1 < len(pairs); i += 2 {
		th.Messages = append(th.Messages, &fakeMessage{
			ID: fmt.Sprintf("%s-m%d", id, i/2+1),
			Edits: []fakeEdit{{
				ID: f.nextID("e"), Question: pairs[i], Answer: pairs[i+1],
				Model: "smollm2:360m", Created: "2025-03-01T12:00:00",
			}},
		})
	}
	f.threads = append([]*fakeThread{th}, f.threads...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/health":
		writeJSON(w, http.StatusOK, f.health)

	case r.Method == http.MethodPost && r.URL.Path == "/threads":
		th := &fakeThread{ID: fmt.Sprintf("t%d", len(f.threads)+1), Title: "New Chat"}
		f.threads = append([]*fakeThread{th}, f.threads...)
		writeJSON(w, http.StatusOK, map[string]any{"thread_id": th.ID, "title": th.Title, "started_at": "2025-03-01T12:00:00", "status": "created"})

	case r.Method == http.MethodGet && r.URL.Path == "/threads/titles":
		rows := []map[string]any{}
		for _, th := range f.threads {
			rows = append(rows, map[string]any{"thread_id": th.ID, "title": th.Title, "started_at": "2025-03-01T12:00:00"})
		}
		writeJSON(w, http.StatusOK, rows)

	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "conversations":
		th := f.thread(parts[1])
		if th == nil {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Thread not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"thread_id": th.ID, "title": th.Title, "started_at": "2025-03-01T12:00:00",
			"messages": th.Messages, "total_messages": len(th.Messages),
		})

	case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "conversations":
		_, m := f.message(parts[2])
		if m == nil {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Message not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"thread_id": parts[1], "message_id": m.ID, "edits": m.Edits, "total_edits": len(m.Edits)})

	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "conversations" && parts[2] == "edits":
		th, m := f.message(parts[1])
		if m == nil {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Message not found"})
			return
		}
		e := f.decodeEdit(r)
		m.Edits = append(m.Edits, e)
		f.edits++
		writeJSON(w, http.StatusOK, map[string]any{"thread_id": th.ID, "message_id": m.ID, "edit_id": e.ID, "total_edits": len(m.Edits), "status": "created"})

	case r.Method == http.MethodPost && len(parts) == 2 && parts[0] == "conversations":
		th := f.thread(parts[1])
		if th == nil {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Thread not found"})
			return
		}
		e := f.decodeEdit(r)
		if len(th.Messages) == 0 {
			th.Title = e.Question
		}
		m := &fakeMessage{ID: f.nextID("m"), Edits: []fakeEdit{e}}
		th.Messages = append(th.Messages, m)
		writeJSON(w, http.StatusOK, map[string]any{"thread_id": th.ID, "message_id": m.ID, "edit_id": e.ID, "status": "created"})

	case r.Method == http.MethodPost && r.URL.Path == "/llm_call":
		f.llmCalls++
		if f.llmFails > 0 {
			f.llmFails--
			writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "model crashed"})
			return
		}
		f.stream(w)

	case r.Method == http.MethodPost && r.URL.Path == "/rag/":
		f.ragCalls++
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			f.ragPath = r.FormValue("pdf_path")
		}
		f.stream(w)

	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not Found"})
	}
}

func (f *fakeServer) decodeEdit(r *http.Request) fakeEdit {
	var body struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
		Model    string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		f.t.Errorf("decode body: %v", err)
	}
	return fakeEdit{
		ID: f.nextID("e"), Question: body.Question, Answer: body.Answer,
		Model: body.Model, Created: "2025-03-01T12:00:00",
	}
}

func (f *fakeServer) stream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, chunk := range f.chunks {
		data, _ := json.Marshal(map[string]string{"content": chunk})
		_, _ = io.WriteString(w, "data: "+string(data)+"\n\n")
	}
	_, _ = io.WriteString(w, "data: {\"context_used\": true}\n\n")
}

// =============================================================================
// RUN HELPERS
// =============================================================================

// testEnv points configuration at a temp dir and the backend at url.
func testEnv(t *testing.T, url string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("RAGCHAT_CONFIG_DIR", dir)
	t.Setenv("RAGCHAT_BACKEND_URL", url)
	for _, key := range []string{
		"RAGCHAT_TIMEOUT", "RAGCHAT_MODEL", "RAGCHAT_PROCESSING_MODE",
		"RAGCHAT_LOG_LEVEL", "RAGCHAT_LOG_FORMAT", "RAGCHAT_NO_MARKDOWN",
	} {
		t.Setenv(key, "")
	}
	return dir
}

type runResult struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, stdin string, argv ...string) runResult {
	t.Helper()
	var out, errOut bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	code := Run(ctx, argv, strings.NewReader(stdin), &out, &errOut)
	return runResult{code: code, stdout: out.String(), stderr: errOut.String()}
}
