// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/jeranaias/ragchat/internal/attach"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/stream"
)

// =============================================================================
// REQUEST / RESULT TYPES
// =============================================================================

// SubmitRequest asks a new question in a thread.
type SubmitRequest struct {
	ThreadID    string
	Question    string
	Model       string
	Attachments []*attach.Attachment
}

// EditRequest resubmits an existing message with a revised question.
type EditRequest struct {
	ThreadID    string
	MessageID   string
	Question    string
	Model       string
	Attachments []*attach.Attachment
}

// Result describes a completed submission.
type Result struct {
	// ThreadID is the server id of the thread (it changes on migration).
	ThreadID  string
	MessageID string
	EditID    string

	// Answer is the raw streamed text; Thinking is its final split.
	Answer      string
	Thinking    stream.Thinking
	ContextUsed bool
	Augmented   bool // the context-augmented endpoint was called
	Elapsed     time.Duration
}

// submission carries one run of the protocol.
type submission struct {
	threadID    string
	messageID   string // set for edits
	question    string
	modelName   string
	attachments []*attach.Attachment
	first       bool

	// replaced is set when the submission discarded an earlier failure.
	replaced bool
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submit asks a new question and blocks until the answer is persisted and
// the thread refetched, or the submission fails.
//
// On failure the question stays pending, a Failure with the fallback answer
// is attached to the thread, and the typed error is returned: a
// *stream.StreamError for inference failures, a *PersistenceError for backend
// writes and the refetch.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*Result, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	m.mu.Lock()
	id := m.resolveLocked(req.ThreadID)
	st, ok := m.threads[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrThreadNotFound
	}
	if st.busy {
		m.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	sub := &submission{
		threadID:    id,
		question:    question,
		modelName:   m.modelLocked(st, req.Model),
		attachments: req.Attachments,
		first:       st.status == StatusProvisional,
	}
	m.beginLocked(st, sub)
	m.mu.Unlock()

	return m.run(ctx, sub)
}

// SubmitEdit creates a new edit of an existing message. The endpoint is
// chosen from the attachments given now, not those of the original question.
func (m *Manager) SubmitEdit(ctx context.Context, req EditRequest) (*Result, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	m.mu.Lock()
	id := m.resolveLocked(req.ThreadID)
	st, ok := m.threads[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrThreadNotFound
	}
	if st.busy {
		m.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if st.status != StatusPersisted {
		m.mu.Unlock()
		return nil, ErrNotPersisted
	}
	if st.thread.MessageByID(req.MessageID) == nil {
		m.mu.Unlock()
		return nil, ErrMessageNotFound
	}
	sub := &submission{
		threadID:    id,
		messageID:   req.MessageID,
		question:    question,
		modelName:   m.modelLocked(st, req.Model),
		attachments: req.Attachments,
	}
	m.beginLocked(st, sub)
	m.mu.Unlock()

	return m.run(ctx, sub)
}

// modelLocked picks the submission model and records it on the thread.
func (m *Manager) modelLocked(st *threadState, requested string) string {
	name := strings.TrimSpace(requested)
	if name == "" {
		name = st.thread.Model
	}
	if name == "" {
		name = m.config.DefaultModel
	}
	st.thread.Model = name
	return name
}

// provisionalTitleRunes bounds the title a new thread shows until the
// backend's own title arrives with the refetch.
const provisionalTitleRunes = 50

// beginLocked marks the thread busy and records the pending question. An
// unresolved failure and its pending question are replaced.
func (m *Manager) beginLocked(st *threadState, sub *submission) {
	sub.replaced = st.failure != nil
	if sub.first && st.thread.Title == model.DefaultTitle {
		st.thread.Title = model.TitleFromQuestion(sub.question, provisionalTitleRunes)
	}
	st.busy = true
	st.failure = nil
	st.pending = &Pending{
		Question:    sub.question,
		Model:       sub.modelName,
		MessageID:   sub.messageID,
		SubmittedAt: time.Now(),
	}
	st.live = &Live{Question: sub.question, Model: sub.modelName}
}

// run executes the protocol after the thread has been marked busy.
func (m *Manager) run(ctx context.Context, sub *submission) (*Result, error) {
	if sub.replaced {
		m.emit(Update{Kind: UpdateFailureCleared, ThreadID: sub.threadID})
	}
	m.emit(Update{Kind: UpdateStarted, ThreadID: sub.threadID})

	ctx, cancel := context.WithTimeout(ctx, m.config.SubmitTimeout)
	defer cancel()

	log := m.logger.With("thread", sub.threadID, "model", sub.modelName)
	if sub.messageID != "" {
		log = log.With("message", sub.messageID)
	}

	// A provisional thread needs its server identity first.
	if sub.first {
		if err := m.persistThread(ctx, sub); err != nil {
			return nil, m.fail(sub, err)
		}
		log = m.logger.With("thread", sub.threadID, "model", sub.modelName)
	}

	start := time.Now()
	res, usedContext, err := m.stream(ctx, sub)
	if err != nil {
		log.Warn("inference failed", "error", err)
		return nil, m.fail(sub, err)
	}
	elapsed := time.Since(start)

	ex := model.Exchange{
		Question: sub.question,
		Answer:   res.Text,
		Model:    sub.modelName,
		First:    sub.first,
		Elapsed:  elapsed,
	}
	var receipt *model.Receipt
	if sub.messageID != "" {
		receipt, err = m.backend.CreateEdit(ctx, sub.messageID, ex)
		if err != nil {
			return nil, m.fail(sub, &PersistenceError{Op: OpCreateEdit, ThreadID: sub.threadID, Err: err})
		}
	} else {
		receipt, err = m.backend.CreateMessage(ctx, sub.threadID, ex)
		if err != nil {
			return nil, m.fail(sub, &PersistenceError{Op: OpCreateMessage, ThreadID: sub.threadID, Err: err})
		}
	}

	// The backend's copy replaces ours wholesale.
	conv, err := m.backend.GetConversation(ctx, sub.threadID)
	if err != nil {
		return nil, m.fail(sub, &PersistenceError{Op: OpRefetch, ThreadID: sub.threadID, Err: err})
	}

	// Transient state is cleared only once the replacement is installed.
	m.mu.Lock()
	if st, ok := m.threads[sub.threadID]; ok {
		m.replaceLocked(st, conv)
		st.live = nil
		st.pending = nil
		st.busy = false
	}
	m.mu.Unlock()
	m.emit(Update{Kind: UpdateReplaced, ThreadID: sub.threadID})

	log.Info("submission complete",
		"message", receipt.MessageID,
		"edit", receipt.EditID,
		"chars", len(res.Text),
		"context_used", res.ContextUsed,
		"elapsed", elapsed)

	return &Result{
		ThreadID:    sub.threadID,
		MessageID:   receipt.MessageID,
		EditID:      receipt.EditID,
		Answer:      res.Text,
		Thinking:    res.Thinking,
		ContextUsed: res.ContextUsed,
		Augmented:   usedContext,
		Elapsed:     elapsed,
	}, nil
}

// persistThread creates a provisional thread on the backend and migrates it
// to the server id. Concurrent callers for the same placeholder share one
// creation call.
func (m *Manager) persistThread(ctx context.Context, sub *submission) error {
	placeholder := sub.threadID

	v, err, _ := m.flight.Do("create:"+placeholder, func() (interface{}, error) {
		m.mu.Lock()
		st, ok := m.threads[placeholder]
		if !ok {
			m.mu.Unlock()
			if target, migrated := m.aliasOf(placeholder); migrated {
				return target, nil
			}
			return nil, ErrThreadNotFound
		}
		st.status = StatusPersisting
		m.mu.Unlock()

		info, err := m.backend.CreateThread(ctx)

		m.mu.Lock()
		defer m.mu.Unlock()
		if err != nil {
			st.status = StatusProvisional
			return nil, &PersistenceError{Op: OpCreateThread, ThreadID: placeholder, Err: err}
		}
		m.migrateLocked(st, info)
		return info.ID, nil
	})
	if err != nil {
		return err
	}

	sub.threadID = v.(string)
	m.logger.Info("thread persisted", "placeholder", placeholder, "thread", sub.threadID)
	m.emit(Update{Kind: UpdateMigrated, ThreadID: sub.threadID, PreviousID: placeholder})
	return nil
}

func (m *Manager) aliasOf(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.aliases[id]
	return target, ok
}

// stream opens the inference call and decodes it into the live buffer.
func (m *Manager) stream(ctx context.Context, sub *submission) (*stream.Result, bool, error) {
	var (
		body        io.ReadCloser
		err         error
		usedContext bool
	)
	if pdf := attach.FirstPDF(sub.attachments); pdf != nil {
		usedContext = true
		body, err = m.backend.AskWithContext(ctx, sub.question, sub.modelName, pdf)
	} else {
		body, err = m.backend.Ask(ctx, sub.question, sub.modelName)
	}
	if err != nil {
		return nil, usedContext, asStreamError(err)
	}
	defer body.Close()

	dec := stream.NewDecoder(body).WithLogger(m.logger)
	res, err := dec.Process(ctx, func(d stream.Delta) {
		m.mu.Lock()
		if st, ok := m.threads[sub.threadID]; ok && st.live != nil {
			st.live.Text += d.Content
			st.live.Thinking = d.Live
		}
		m.mu.Unlock()
		m.emit(Update{Kind: UpdateDelta, ThreadID: sub.threadID, Delta: d.Content})
	})
	if err != nil {
		return nil, usedContext, err
	}
	return res, usedContext, nil
}

// fail records a Failure, keeps the question pending and releases the thread.
func (m *Manager) fail(sub *submission, err error) error {
	m.mu.Lock()
	if st, ok := m.threads[sub.threadID]; ok {
		st.live = nil
		st.busy = false
		st.failure = &Failure{
			Question:  sub.question,
			Model:     sub.modelName,
			Answer:    m.config.FallbackAnswer,
			MessageID: sub.messageID,
			Err:       err,
		}
	}
	m.mu.Unlock()

	m.emit(Update{Kind: UpdateFailed, ThreadID: sub.threadID})
	return err
}

// asStreamError wraps inference setup failures that are not already typed.
func asStreamError(err error) error {
	if stream.IsStreamError(err) {
		return err
	}
	var msg string
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "inference timed out"
	} else {
		msg = "inference request failed"
	}
	return &stream.StreamError{Message: msg, Err: err}
}
