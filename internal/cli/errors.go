// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - error types, display and exit codes for ragchat commands.
//
// Handlers always return errors. Run displays them once and maps them to
// an exit code.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/jeranaias/ragchat/internal/attach"
	"github.com/jeranaias/ragchat/internal/backend"
	"github.com/jeranaias/ragchat/internal/chat"
	"github.com/jeranaias/ragchat/internal/stream"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates a configuration file or settings error
	ExitConfigError = 3
	// ExitNetworkError indicates the backend could not be reached
	ExitNetworkError = 5
	// ExitNotFoundError indicates a thread or message was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError reports invalid command usage.
type UsageError struct {
	Reason  string
	Example string
}

func (e *UsageError) Error() string {
	if e.Example != "" {
		return fmt.Sprintf("%s\nUsage: %s", e.Reason, e.Example)
	}
	return e.Reason
}

// NewUsageError creates a usage error.
func NewUsageError(reason, example string) error {
	return &UsageError{Reason: reason, Example: example}
}

// ConfigError reports a configuration that could not be loaded or saved.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// CommandError adds the failing command and action to an error.
type CommandError struct {
	Command string
	Action  string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError wraps err with the command context. Nil stays nil.
func NewCommandError(command, action string, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Command: command, Action: action, Err: err}
}

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes err to w, as JSON in JSON mode.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		DisplayErrorJSON(w, err)
		return
	}
	fmt.Fprintf(w, "%s %s\n", RenderConditional(ErrorStyle, "[ERROR]"), err.Error())
	if hint := errorHint(err); hint != "" {
		fmt.Fprintf(w, "%s\n", RenderConditional(DimStyle, hint))
	}
}

// DisplayErrorJSON writes a structured error object.
func DisplayErrorJSON(w io.Writer, err error) {
	output := map[string]interface{}{
		"success":    false,
		"error":      err.Error(),
		"error_type": errorType(err),
		"exit_code":  GetExitCode(err),
	}

	var se *stream.StreamError
	if errors.As(err, &se) && se.Status != 0 {
		output["status"] = se.Status
	}
	var ce *backend.ClientError
	if errors.As(err, &ce) && ce.Status != 0 {
		output["status"] = ce.Status
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(output)
}

func errorType(err error) string {
	var (
		usage *UsageError
		cfg   *ConfigError
		ve    validation.Errors
		se    *stream.StreamError
		ce    *backend.ClientError
		pe    *chat.PersistenceError
	)
	switch {
	case errors.As(err, &usage):
		return "usage_error"
	case errors.As(err, &cfg), errors.As(err, &ve):
		return "config_error"
	case attach.IsValidationError(err):
		return "attachment_error"
	case errors.As(err, &se):
		return "stream_error"
	case errors.As(err, &pe):
		return "persistence_error"
	case errors.As(err, &ce):
		return "backend_" + ce.Type.String()
	case errors.Is(err, chat.ErrThreadNotFound), errors.Is(err, chat.ErrMessageNotFound):
		return "not_found_error"
	default:
		return "generic_error"
	}
}

func errorHint(err error) string {
	switch {
	case backend.IsType(err, backend.ErrTypeNotReachable):
		return "Is the backend running? Check backend.url with 'ragchat config get backend.url'."
	case errors.Is(err, chat.ErrSubmissionInFlight):
		return "Wait for the current answer to finish."
	}
	return ""
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode maps an error to a process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		usage *UsageError
		cfg   *ConfigError
		ve    validation.Errors
	)
	switch {
	case errors.As(err, &usage), attach.IsValidationError(err), errors.Is(err, chat.ErrEmptyQuestion):
		return ExitUsageError
	case errors.As(err, &cfg), errors.As(err, &ve):
		return ExitConfigError
	case errors.Is(err, context.DeadlineExceeded), backend.IsType(err, backend.ErrTypeTimeout):
		return ExitTimeoutError
	case backend.IsType(err, backend.ErrTypeNotReachable):
		return ExitNetworkError
	case errors.Is(err, chat.ErrThreadNotFound),
		errors.Is(err, chat.ErrMessageNotFound),
		backend.IsType(err, backend.ErrTypeNotFound):
		return ExitNotFoundError
	default:
		return ExitGeneralError
	}
}
