// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/stream"
)

// =============================================================================
// THREAD STATUS
// =============================================================================

// Status is a thread's persistence state.
type Status int

const (
	StatusProvisional Status = iota
	StatusPersisting
	StatusPersisted
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusProvisional:
		return "provisional"
	case StatusPersisting:
		return "persisting"
	case StatusPersisted:
		return "persisted"
	default:
		return "unknown"
	}
}

// =============================================================================
// TRANSIENT STATE
// =============================================================================

// Live is the answer of an in-flight submission as it streams in.
type Live struct {
	Question string
	Model    string
	Text     string
	Thinking stream.Thinking
}

// Pending is a submitted question that has not been persisted yet.
type Pending struct {
	Question string
	Model    string

	// MessageID is set when the question is an edit of an existing message.
	MessageID   string
	SubmittedAt time.Time
}

// Failure is the fallback answer shown after a failed submission.
type Failure struct {
	Question  string
	Model     string
	Answer    string
	MessageID string
	Err       error
}

// threadState is the manager's bookkeeping for one thread.
type threadState struct {
	thread  *model.Thread
	status  Status
	busy    bool
	live    *Live
	pending *Pending
	failure *Failure

	// cursors holds displayed-edit indexes by message id. Absent means the
	// latest edit.
	cursors map[string]int
}

func newThreadState(th *model.Thread, status Status) *threadState {
	return &threadState{thread: th, status: status, cursors: make(map[string]int)}
}

// =============================================================================
// UPDATES
// =============================================================================

// UpdateKind identifies what changed.
type UpdateKind int

const (
	// UpdateStarted: a submission began and a pending question exists.
	UpdateStarted UpdateKind = iota
	// UpdateDelta: the live answer grew.
	UpdateDelta
	// UpdateMigrated: a provisional thread received its server id.
	UpdateMigrated
	// UpdateReplaced: the thread's messages were replaced from the backend.
	UpdateReplaced
	// UpdateFailed: a submission failed and a Failure is attached.
	UpdateFailed
	// UpdateLoaded: threads or a conversation were loaded.
	UpdateLoaded
	// UpdateCursor: the displayed edit of a message changed.
	UpdateCursor
	// UpdateFailureCleared: a Failure and its pending question were removed,
	// either dismissed or replaced by a new submission.
	UpdateFailureCleared
)

// String returns the update kind name.
func (k UpdateKind) String() string {
	switch k {
	case UpdateStarted:
		return "started"
	case UpdateDelta:
		return "delta"
	case UpdateMigrated:
		return "migrated"
	case UpdateReplaced:
		return "replaced"
	case UpdateFailed:
		return "failed"
	case UpdateLoaded:
		return "loaded"
	case UpdateCursor:
		return "cursor"
	case UpdateFailureCleared:
		return "failure_cleared"
	default:
		return "unknown"
	}
}

// Update describes one state change, delivered outside the manager's lock.
type Update struct {
	Kind     UpdateKind
	ThreadID string

	// PreviousID is the placeholder id for UpdateMigrated.
	PreviousID string

	// Delta is the new fragment for UpdateDelta.
	Delta string

	// MessageID is set for UpdateCursor.
	MessageID string
}

// UpdateCallback receives state changes.
type UpdateCallback func(Update)
