// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"fmt"
)

// StreamError reports a failed inference exchange: either the server put an
// error field on the wire, or the HTTP call failed before or while streaming.
// It is never retried by this package.
type StreamError struct {
	// Status is the HTTP status when the request was rejected before any
	// payload was streamed. Zero otherwise.
	Status int

	// Message is the server-supplied (or locally derived) description.
	Message string

	// Partial is the content accumulated before the error arrived.
	Partial string

	// Err is the underlying transport error, if any.
	Err error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Partial != "" {
		return fmt.Sprintf("stream error after %d chars: %s", len(e.Partial), msg)
	}
	return "stream error: " + msg
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// IsStreamError reports whether err is or wraps a *StreamError.
func IsStreamError(err error) bool {
	var se *StreamError
	return errors.As(err, &se)
}
