// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jeranaias/ragchat/internal/attach"
	"github.com/jeranaias/ragchat/internal/model"
)

// =============================================================================
// BACKEND CONTRACT
// =============================================================================

// Backend is the subset of the backend client the manager needs.
type Backend interface {
	CreateThread(ctx context.Context) (*model.ThreadInfo, error)
	ListThreads(ctx context.Context) ([]model.ThreadInfo, error)
	GetConversation(ctx context.Context, threadID string) (*model.Thread, error)
	CreateMessage(ctx context.Context, threadID string, ex model.Exchange) (*model.Receipt, error)
	CreateEdit(ctx context.Context, messageID string, ex model.Exchange) (*model.Receipt, error)
	Ask(ctx context.Context, question, modelName string) (io.ReadCloser, error)
	AskWithContext(ctx context.Context, question, modelName string, pdf *attach.Attachment) (io.ReadCloser, error)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// DefaultFallbackAnswer is shown in place of an answer after a failure.
const DefaultFallbackAnswer = "I'm sorry, I encountered an error processing your request."

// Config holds configuration for the manager.
type Config struct {
	// DefaultModel is used when a submission names no model (default: smollm2:360m)
	DefaultModel string

	// SubmitTimeout bounds one whole submission, stream included (default: 5 minutes)
	SubmitTimeout time.Duration

	// FallbackAnswer is the answer text attached to a Failure
	FallbackAnswer string

	// Logger receives manager diagnostics (default: slog.Default())
	Logger *slog.Logger
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		DefaultModel:   model.DefaultModelID,
		SubmitTimeout:  5 * time.Minute,
		FallbackAnswer: DefaultFallbackAnswer,
	}
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager owns the thread collection and the active thread pointer.
//
// All methods are safe for concurrent use. The lock is never held across a
// backend call; update callbacks run after it is released.
type Manager struct {
	mu sync.Mutex

	backend Backend
	config  Config
	logger  *slog.Logger

	threads  map[string]*threadState
	order    []string
	activeID string

	// aliases maps migrated placeholder ids to server ids, so callers still
	// holding a placeholder reach the same thread.
	aliases map[string]string

	flight   singleflight.Group
	onUpdate UpdateCallback
}

// NewManager creates a manager with one empty provisional thread, active.
func NewManager(backend Backend, cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = def.DefaultModel
	}
	if cfg.SubmitTimeout == 0 {
		cfg.SubmitTimeout = def.SubmitTimeout
	}
	if cfg.FallbackAnswer == "" {
		cfg.FallbackAnswer = def.FallbackAnswer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	m := &Manager{
		backend: backend,
		config:  cfg,
		logger:  cfg.Logger.With("component", "chat"),
		threads: make(map[string]*threadState),
		aliases: make(map[string]string),
	}
	m.addProvisionalLocked()
	return m
}

// SetUpdateCallback registers fn to receive state changes. Pass nil to stop.
func (m *Manager) SetUpdateCallback(fn UpdateCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// emit delivers updates. Must be called without m.mu held.
func (m *Manager) emit(updates ...Update) {
	m.mu.Lock()
	fn := m.onUpdate
	m.mu.Unlock()
	if fn == nil {
		return
	}
	for _, u := range updates {
		fn(u)
	}
}

// =============================================================================
// THREAD COLLECTION
// =============================================================================

// Load replaces the collection with the backend's thread listing and
// activates the newest thread, loading its conversation. When the listing
// is empty or fails, a single provisional thread is kept active; a listing
// error is returned. While any thread has a submission in flight, Load
// returns ErrSubmissionInFlight and changes nothing.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	busy := m.anyBusyLocked()
	m.mu.Unlock()
	if busy {
		return ErrSubmissionInFlight
	}

	infos, err := m.backend.ListThreads(ctx)
	if err != nil {
		m.logger.Warn("thread listing failed", "error", err)
	}

	m.mu.Lock()
	// A submission may have started during the listing call.
	if m.anyBusyLocked() {
		m.mu.Unlock()
		return ErrSubmissionInFlight
	}
	if err != nil || len(infos) == 0 {
		m.resetLocked()
		m.addProvisionalLocked()
		m.mu.Unlock()
		m.emit(Update{Kind: UpdateLoaded, ThreadID: m.ActiveID()})
		return err
	}

	m.resetLocked()
	for _, info := range infos {
		th := &model.Thread{ID: info.ID, Title: info.Title, CreatedAt: info.CreatedAt, Model: m.config.DefaultModel}
		m.threads[info.ID] = newThreadState(th, StatusPersisted)
		m.order = append(m.order, info.ID)
	}
	m.activeID = m.order[0]
	active := m.activeID
	m.mu.Unlock()

	m.logger.Debug("threads loaded", "count", len(infos))
	return m.SwitchThread(ctx, active)
}

// NewThread adds an empty provisional thread at the top of the listing and
// makes it active.
func (m *Manager) NewThread() *model.Thread {
	m.mu.Lock()
	st := m.addProvisionalLocked()
	clone := st.thread.Clone()
	m.mu.Unlock()

	m.emit(Update{Kind: UpdateLoaded, ThreadID: clone.ID})
	return clone
}

// SwitchThread makes id active and loads its conversation on first visit.
// Concurrent loads of the same thread share one backend call.
func (m *Manager) SwitchThread(ctx context.Context, id string) error {
	m.mu.Lock()
	id = m.resolveLocked(id)
	st, ok := m.threads[id]
	if !ok {
		m.mu.Unlock()
		return ErrThreadNotFound
	}
	m.activeID = id
	needsLoad := st.status == StatusPersisted && !st.thread.Loaded && !st.busy
	m.mu.Unlock()

	if !needsLoad {
		return nil
	}
	return m.load(ctx, id)
}

// Refresh refetches a persisted thread's conversation and replaces its
// messages.
func (m *Manager) Refresh(ctx context.Context, id string) error {
	m.mu.Lock()
	id = m.resolveLocked(id)
	st, ok := m.threads[id]
	if !ok {
		m.mu.Unlock()
		return ErrThreadNotFound
	}
	if st.status != StatusPersisted {
		m.mu.Unlock()
		return ErrNotPersisted
	}
	if st.busy {
		m.mu.Unlock()
		return ErrSubmissionInFlight
	}
	m.mu.Unlock()

	return m.load(ctx, id)
}

// load fetches and installs a conversation, deduplicating concurrent calls.
func (m *Manager) load(ctx context.Context, id string) error {
	_, err, shared := m.flight.Do("load:"+id, func() (interface{}, error) {
		conv, err := m.backend.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		st, ok := m.threads[id]
		if ok && !st.busy {
			m.replaceLocked(st, conv)
		}
		m.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		m.logger.Warn("conversation load failed", "thread", id, "error", err)
		return err
	}
	if !shared {
		m.emit(Update{Kind: UpdateLoaded, ThreadID: id})
	}
	return nil
}

// DeleteThread removes a thread from the local collection. If it was
// active, the next thread in the listing (or a new provisional one) becomes
// active.
func (m *Manager) DeleteThread(id string) error {
	m.mu.Lock()
	id = m.resolveLocked(id)
	st, ok := m.threads[id]
	if !ok {
		m.mu.Unlock()
		return ErrThreadNotFound
	}
	if st.busy {
		m.mu.Unlock()
		return ErrSubmissionInFlight
	}

	delete(m.threads, id)
	idx := m.indexLocked(id)
	if idx >= 0 {
		m.order = append(m.order[:idx], m.order[idx+1:]...)
	}
	for alias, target := range m.aliases {
		if target == id {
			delete(m.aliases, alias)
		}
	}

	if m.activeID == id {
		if len(m.order) > 0 {
			if idx >= len(m.order) {
				idx = len(m.order) - 1
			}
			if idx < 0 {
				idx = 0
			}
			m.activeID = m.order[idx]
		} else {
			m.addProvisionalLocked()
		}
	}
	active := m.activeID
	m.mu.Unlock()

	m.emit(Update{Kind: UpdateLoaded, ThreadID: active})
	return nil
}

// Threads returns the listing rows, newest first.
func (m *Manager) Threads() []model.ThreadInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]model.ThreadInfo, 0, len(m.order))
	for _, id := range m.order {
		infos = append(infos, m.threads[id].thread.Info())
	}
	return infos
}

// Thread returns a snapshot of the thread with the given id.
func (m *Manager) Thread(id string) (*model.Thread, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.threads[m.resolveLocked(id)]
	if !ok {
		return nil, false
	}
	return st.thread.Clone(), true
}

// Status returns the persistence state of a thread.
func (m *Manager) Status(id string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.threads[m.resolveLocked(id)]
	if !ok {
		return 0, false
	}
	return st.status, true
}

// Busy reports whether a submission is in flight for the thread.
func (m *Manager) Busy(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.threads[m.resolveLocked(id)]
	return ok && st.busy
}

// ActiveID returns the id of the active thread.
func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Active returns a snapshot of the active thread.
func (m *Manager) Active() *model.Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threads[m.activeID].thread.Clone()
}

// SetModel records the model selected for a thread.
func (m *Manager) SetModel(id, modelName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.threads[m.resolveLocked(id)]
	if !ok {
		return ErrThreadNotFound
	}
	st.thread.Model = modelName
	return nil
}

// =============================================================================
// TRANSIENT STATE ACCESS
// =============================================================================

// Live returns the streaming answer of the thread's in-flight submission.
func (m *Manager) Live(threadID string) (Live, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.threads[m.resolveLocked(threadID)]
	if !ok || st.live == nil {
		return Live{}, false
	}
	return *st.live, true
}

// Pending returns the question submitted but not yet persisted.
func (m *Manager) Pending(threadID string) (Pending, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.threads[m.resolveLocked(threadID)]
	if !ok || st.pending == nil {
		return Pending{}, false
	}
	return *st.pending, true
}

// Failure returns the fallback answer of the thread's last failed submission.
func (m *Manager) Failure(threadID string) (Failure, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.threads[m.resolveLocked(threadID)]
	if !ok || st.failure == nil {
		return Failure{}, false
	}
	return *st.failure, true
}

// DismissFailure clears a failure and the pending question it belongs to.
func (m *Manager) DismissFailure(threadID string) {
	m.mu.Lock()
	id := m.resolveLocked(threadID)
	st, ok := m.threads[id]
	if !ok || st.busy || st.failure == nil {
		m.mu.Unlock()
		return
	}
	st.failure = nil
	st.pending = nil
	m.mu.Unlock()

	m.emit(Update{Kind: UpdateFailureCleared, ThreadID: id})
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

func (m *Manager) resolveLocked(id string) string {
	if target, ok := m.aliases[id]; ok {
		return target
	}
	return id
}

func (m *Manager) indexLocked(id string) int {
	for i, v := range m.order {
		if v == id {
			return i
		}
	}
	return -1
}

func (m *Manager) anyBusyLocked() bool {
	for _, st := range m.threads {
		if st.busy {
			return true
		}
	}
	return false
}

// resetLocked empties the collection. Callers ensure no thread is busy.
func (m *Manager) resetLocked() {
	m.threads = make(map[string]*threadState)
	m.order = m.order[:0]
	m.aliases = make(map[string]string)
}

func (m *Manager) addProvisionalLocked() *threadState {
	th := model.NewProvisionalThread(model.DefaultTitle, m.config.DefaultModel)
	st := newThreadState(th, StatusProvisional)
	m.threads[th.ID] = st
	m.order = append([]string{th.ID}, m.order...)
	m.activeID = th.ID
	return st
}

// replaceLocked installs a backend conversation wholesale. Edit cursors are
// dropped so each message shows its latest edit.
func (m *Manager) replaceLocked(st *threadState, conv *model.Thread) {
	if conv.Title != "" {
		st.thread.Title = conv.Title
	}
	if !conv.CreatedAt.IsZero() {
		st.thread.CreatedAt = conv.CreatedAt
	}
	st.thread.Messages = conv.Messages
	st.thread.Loaded = true
	if st.thread.Model == "" {
		st.thread.Model = conv.Model
	}
	st.cursors = make(map[string]int)
}

// migrateLocked moves a thread from its placeholder id to its server id.
func (m *Manager) migrateLocked(st *threadState, info *model.ThreadInfo) {
	oldID := st.thread.ID
	delete(m.threads, oldID)

	st.thread.ID = info.ID
	if !info.CreatedAt.IsZero() {
		st.thread.CreatedAt = info.CreatedAt
	}
	st.status = StatusPersisted
	m.threads[info.ID] = st
	m.aliases[oldID] = info.ID

	if idx := m.indexLocked(oldID); idx >= 0 {
		m.order[idx] = info.ID
	}
	if m.activeID == oldID {
		m.activeID = info.ID
	}
}
