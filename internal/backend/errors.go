// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotReachable
	ErrTypeTimeout
	ErrTypeNotFound
	ErrTypeInvalidRequest
	ErrTypeInvalidResponse
	ErrTypeServer
)

// String returns a short name for the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeNotReachable:
		return "not_reachable"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeNotFound:
		return "not_found"
	case ErrTypeInvalidRequest:
		return "invalid_request"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	case ErrTypeServer:
		return "server"
	default:
		return "unknown"
	}
}

// ClientError represents an error from the backend client.
type ClientError struct {
	Type    ErrorType
	Status  int
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors by type.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return t.Type == e.Type && t.Message == e.Message
}

// Sentinel errors for easy checking.
var (
	ErrNotReachable = &ClientError{Type: ErrTypeNotReachable, Message: "backend is not reachable"}
	ErrTimeout      = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
)

// IsType reports whether err is a *ClientError of type t.
func IsType(err error, t ErrorType) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.Type == t
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// transportError classifies an error returned by http.Client.Do.
func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
	}
	return &ClientError{Type: ErrTypeNotReachable, Message: ErrNotReachable.Message, Cause: err}
}

// statusType maps an HTTP status to an ErrorType.
func statusType(status int) ErrorType {
	switch {
	case status == http.StatusNotFound:
		return ErrTypeNotFound
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrTypeTimeout
	case status >= 400 && status < 500:
		return ErrTypeInvalidRequest
	case status >= 500:
		return ErrTypeServer
	default:
		return ErrTypeInvalidResponse
	}
}

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 * 1024

// detailMessage extracts a human-readable message from an error response.
// The body's "detail" is either a string or an object carrying "message" or
// "error". Without one the message is "HTTP <status>".
func detailMessage(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if msg := parseDetail(data); msg != "" {
		return msg
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}

func parseDetail(data []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var obj struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body.Detail, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		return obj.Error
	}
	return ""
}

// statusError builds a ClientError from a non-OK response.
func statusError(op string, resp *http.Response) error {
	return &ClientError{
		Type:    statusType(resp.StatusCode),
		Status:  resp.StatusCode,
		Message: op + ": " + detailMessage(resp),
	}
}
