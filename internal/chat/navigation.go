// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "github.com/jeranaias/ragchat/internal/model"

// =============================================================================
// EDIT NAVIGATION
// =============================================================================

// EditView is the edit currently displayed for a message.
type EditView struct {
	Edit  model.Edit
	Index int
	Count int
}

// HasPrevious reports whether an older edit exists.
func (v EditView) HasPrevious() bool {
	return v.Index > 0
}

// HasNext reports whether a newer edit exists.
func (v EditView) HasNext() bool {
	return v.Index < v.Count-1
}

// BeginEdit resets the message's cursor to its latest edit and returns it,
// so an edit always starts from the most recent question.
func (m *Manager) BeginEdit(threadID, messageID string) (EditView, error) {
	m.mu.Lock()
	st, msg, err := m.messageLocked(threadID, messageID)
	if err != nil {
		m.mu.Unlock()
		return EditView{}, err
	}
	delete(st.cursors, messageID)
	view := viewOf(msg, msg.LatestIndex())
	id := st.thread.ID
	m.mu.Unlock()

	m.emit(Update{Kind: UpdateCursor, ThreadID: id, MessageID: messageID})
	return view, nil
}

// NextEdit moves the displayed edit one newer. At the newest edit it is a
// no-op and reports false.
func (m *Manager) NextEdit(threadID, messageID string) (EditView, bool, error) {
	return m.stepEdit(threadID, messageID, 1)
}

// PreviousEdit moves the displayed edit one older. At the oldest edit it is
// a no-op and reports false.
func (m *Manager) PreviousEdit(threadID, messageID string) (EditView, bool, error) {
	return m.stepEdit(threadID, messageID, -1)
}

// DisplayedEdit returns the edit currently displayed for a message.
func (m *Manager) DisplayedEdit(threadID, messageID string) (EditView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, msg, err := m.messageLocked(threadID, messageID)
	if err != nil {
		return EditView{}, err
	}
	return viewOf(msg, cursorOf(st, msg)), nil
}

func (m *Manager) stepEdit(threadID, messageID string, delta int) (EditView, bool, error) {
	m.mu.Lock()
	st, msg, err := m.messageLocked(threadID, messageID)
	if err != nil {
		m.mu.Unlock()
		return EditView{}, false, err
	}

	idx, moved := model.StepEditIndex(cursorOf(st, msg), delta, msg.EditCount())
	if moved {
		st.cursors[messageID] = idx
	}
	view := viewOf(msg, idx)
	id := st.thread.ID
	m.mu.Unlock()

	if moved {
		m.emit(Update{Kind: UpdateCursor, ThreadID: id, MessageID: messageID})
	}
	return view, moved, nil
}

func (m *Manager) messageLocked(threadID, messageID string) (*threadState, *model.Message, error) {
	st, ok := m.threads[m.resolveLocked(threadID)]
	if !ok {
		return nil, nil, ErrThreadNotFound
	}
	msg := st.thread.MessageByID(messageID)
	if msg == nil || msg.EditCount() == 0 {
		return nil, nil, ErrMessageNotFound
	}
	return st, msg, nil
}

// cursorOf returns the displayed index, defaulting to the latest edit.
func cursorOf(st *threadState, msg *model.Message) int {
	idx, ok := st.cursors[msg.ID]
	if !ok || idx < 0 || idx >= msg.EditCount() {
		return msg.LatestIndex()
	}
	return idx
}

func viewOf(msg *model.Message, idx int) EditView {
	e, _ := msg.EditAt(idx)
	return EditView{Edit: e, Index: idx, Count: msg.EditCount()}
}
