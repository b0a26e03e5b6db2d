// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/ragchat/internal/attach"
	"github.com/jeranaias/ragchat/internal/model"
)

// =============================================================================
// FAKE BACKEND
// =============================================================================

// fakeBackend is an in-memory backend of record.
type fakeBackend struct {
	mu sync.Mutex

	conversations map[string]*model.Thread
	listing       []model.ThreadInfo
	ids           int
	clock         time.Time

	// chunks are streamed as content lines for every inference call.
	chunks []string
	// rawStream, when set, replaces the generated stream body.
	rawStream string
	// blockStream makes the stream body block until the context ends.
	blockStream bool

	// createGate, when set, blocks CreateThread until closed.
	createGate    chan struct{}
	createEntered chan struct{}

	errCreateThread  error
	errList          error
	errAsk           error
	errCreateMessage error
	errRefetch       error

	createThreadCalls  int
	askCalls           int
	ragCalls           int
	createMessageCalls int
	createEditCalls    int
	getConvCalls       int
	exchanges          []model.Exchange
	lastPDF            *attach.Attachment
}

func newFakeBackend(chunks ...string) *fakeBackend {
	return &fakeBackend{
		conversations: make(map[string]*model.Thread),
		clock:         time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		chunks:        chunks,
	}
}

func (f *fakeBackend) nextID(prefix string) string {
	f.ids++
	return fmt.Sprintf("%s%d", prefix, f.ids)
}

func (f *fakeBackend) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

// seed stores a persisted thread and lists it.
func (f *fakeBackend) seed(th *model.Thread) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[th.ID] = th.Clone()
	f.listing = append([]model.ThreadInfo{th.Info()}, f.listing...)
}

func (f *fakeBackend) CreateThread(ctx context.Context) (*model.ThreadInfo, error) {
	f.mu.Lock()
	f.createThreadCalls++
	gate, entered := f.createGate, f.createEntered
	f.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errCreateThread != nil {
		return nil, f.errCreateThread
	}
	id := fmt.Sprintf("t%d", f.createThreadCalls)
	th := &model.Thread{ID: id, Title: "New Conversation", CreatedAt: f.tick(), Messages: []*model.Message{}, Loaded: true}
	f.conversations[id] = th
	info := th.Info()
	f.listing = append([]model.ThreadInfo{info}, f.listing...)
	return &info, nil
}

func (f *fakeBackend) ListThreads(ctx context.Context) ([]model.ThreadInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errList != nil {
		return nil, f.errList
	}
	return append([]model.ThreadInfo(nil), f.listing...), nil
}

func (f *fakeBackend) GetConversation(ctx context.Context, threadID string) (*model.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getConvCalls++
	if f.errRefetch != nil {
		return nil, f.errRefetch
	}
	th, ok := f.conversations[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s not found", threadID)
	}
	return th.Clone(), nil
}

func (f *fakeBackend) CreateMessage(ctx context.Context, threadID string, ex model.Exchange) (*model.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createMessageCalls++
	f.exchanges = append(f.exchanges, ex)
	if f.errCreateMessage != nil {
		return nil, f.errCreateMessage
	}
	th, ok := f.conversations[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s not found", threadID)
	}
	if ex.First {
		th.Title = model.TitleFromQuestion(ex.Question, 40)
	}
	msg := &model.Message{ID: f.nextID("m")}
	edit := model.NewEdit(f.nextID("e"), ex.Model, ex.Question, ex.Answer, f.tick())
	msg.Edits = append(msg.Edits, edit)
	th.Messages = append(th.Messages, msg)
	return &model.Receipt{ThreadID: threadID, MessageID: msg.ID, EditID: edit.ID, Model: ex.Model, CreatedAt: edit.CreatedAt, Status: "created"}, nil
}

func (f *fakeBackend) CreateEdit(ctx context.Context, messageID string, ex model.Exchange) (*model.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createEditCalls++
	f.exchanges = append(f.exchanges, ex)
	if f.errCreateMessage != nil {
		return nil, f.errCreateMessage
	}
	for _, th := range f.conversations {
		if msg := th.MessageByID(messageID); msg != nil {
			edit := model.NewEdit(f.nextID("e"), ex.Model, ex.Question, ex.Answer, f.tick())
			msg.Edits = append(msg.Edits, edit)
			return &model.Receipt{ThreadID: th.ID, MessageID: messageID, EditID: edit.ID, TotalEdits: len(msg.Edits), Status: "created"}, nil
		}
	}
	return nil, fmt.Errorf("message %s not found", messageID)
}

func (f *fakeBackend) Ask(ctx context.Context, question, modelName string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.askCalls++
	f.mu.Unlock()
	return f.body(ctx)
}

func (f *fakeBackend) AskWithContext(ctx context.Context, question, modelName string, pdf *attach.Attachment) (io.ReadCloser, error) {
	f.mu.Lock()
	f.ragCalls++
	f.lastPDF = pdf
	f.mu.Unlock()
	return f.body(ctx)
}

func (f *fakeBackend) body(ctx context.Context) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errAsk != nil {
		return nil, f.errAsk
	}
	if f.blockStream {
		return io.NopCloser(ctxReader{ctx}), nil
	}
	if f.rawStream != "" {
		return io.NopCloser(strings.NewReader(f.rawStream)), nil
	}
	var b strings.Builder
	for _, c := range f.chunks {
		data, _ := json.Marshal(map[string]string{"content": c})
		b.WriteString("data: " + string(data) + "\n\n")
	}
	return io.NopCloser(strings.NewReader(b.String())), nil
}

// ctxReader blocks until its context ends, like a hung response body.
type ctxReader struct {
	ctx context.Context
}

func (r ctxReader) Read(p []byte) (int, error) {
	<-r.ctx.Done()
	return 0, r.ctx.Err()
}

// recorder collects updates.
type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) record(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) kinds() []UpdateKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]UpdateKind, 0, len(r.updates))
	for _, u := range r.updates {
		out = append(out, u.Kind)
	}
	return out
}

func (r *recorder) deltas() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, u := range r.updates {
		if u.Kind == UpdateDelta {
			out = append(out, u.Delta)
		}
	}
	return out
}
