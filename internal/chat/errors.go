// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
)

// Sentinel errors for easy checking.
var (
	ErrSubmissionInFlight = errors.New("a submission is already in flight for this thread")
	ErrThreadNotFound     = errors.New("thread not found")
	ErrMessageNotFound    = errors.New("message not found")
	ErrEmptyQuestion      = errors.New("question is empty")
	ErrNotPersisted       = errors.New("thread has not been persisted")
)

// Persistence operations reported in PersistenceError.Op.
const (
	OpCreateThread  = "create thread"
	OpCreateMessage = "create message"
	OpCreateEdit    = "create edit"
	OpRefetch       = "refetch conversation"
)

// PersistenceError reports a failed backend write or the refetch that
// follows it. The streamed answer exists but is not known to be durable.
type PersistenceError struct {
	Op       string
	ThreadID string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed for thread %s: %v", e.Op, e.ThreadID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistenceError reports whether err is a *PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
