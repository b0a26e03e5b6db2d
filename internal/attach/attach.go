// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// DefaultMaxSize is the largest accepted attachment (10MB).
const DefaultMaxSize int64 = 10 * 1024 * 1024

// ProcessingMode selects where attached documents are processed.
type ProcessingMode string

const (
	// ModeOffline processes documents on the local backend only.
	ModeOffline ProcessingMode = "offline"
	// ModeOnline allows the backend to use remote processing.
	ModeOnline ProcessingMode = "online"
)

// SupportedExtensions lists the accepted file extensions.
var SupportedExtensions = []string{".pdf", ".txt", ".md"}

// =============================================================================
// ERRORS
// =============================================================================

// ValidationError reports an attachment rejected before any network call.
type ValidationError struct {
	Name   string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Name == "" {
		return "invalid attachment: " + e.Reason
	}
	return fmt.Sprintf("invalid attachment %q: %s", e.Name, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// =============================================================================
// ATTACHMENT
// =============================================================================

// Attachment is a document attached to a question.
type Attachment struct {
	// Name is the display name (base file name).
	Name string

	// Path locates the file. For local attachments it is read and uploaded;
	// for remote ones it is sent as-is for the backend to open.
	Path string

	// Size in bytes. Zero for remote attachments.
	Size int64

	// Remote is true when Path names a file on the backend host.
	Remote bool

	// Mode is the processing mode in effect when the file was attached.
	Mode ProcessingMode
}

// Options control attachment creation.
type Options struct {
	MaxSize int64
	Mode    ProcessingMode
}

// DefaultOptions returns the stock limits.
func DefaultOptions() Options {
	return Options{MaxSize: DefaultMaxSize, Mode: ModeOffline}
}

// FromFile stats a local file and returns a validated attachment.
func FromFile(path string, opts Options) (*Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ValidationError{Name: filepath.Base(path), Reason: "file not found", Err: err}
		}
		return nil, fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return nil, &ValidationError{Name: filepath.Base(path), Reason: "is a directory"}
	}

	a := &Attachment{
		Name: filepath.Base(path),
		Path: path,
		Size: info.Size(),
		Mode: opts.Mode,
	}
	if err := a.Validate(opts.MaxSize); err != nil {
		return nil, err
	}
	return a, nil
}

// FromRemotePath references a document already on the backend host.
func FromRemotePath(path string, opts Options) (*Attachment, error) {
	a := &Attachment{
		Name:   filepath.Base(path),
		Path:   path,
		Remote: true,
		Mode:   opts.Mode,
	}
	if err := a.Validate(opts.MaxSize); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks the attachment's type and size.
func (a *Attachment) Validate(maxSize int64) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	err := validation.ValidateStruct(a,
		validation.Field(&a.Name, validation.Required, validation.By(supportedType)),
		validation.Field(&a.Path, validation.Required),
		validation.Field(&a.Size, validation.Min(int64(0)), validation.Max(maxSize).Error(
			fmt.Sprintf("file size too large, must be smaller than %dMB", maxSize/(1024*1024)))),
		validation.Field(&a.Mode, validation.In(ModeOffline, ModeOnline)),
	)
	if err != nil {
		return &ValidationError{Name: a.Name, Reason: err.Error(), Err: err}
	}
	return nil
}

func supportedType(value interface{}) error {
	name, _ := value.(string)
	ext := strings.ToLower(filepath.Ext(name))
	for _, s := range SupportedExtensions {
		if ext == s {
			return nil
		}
	}
	return errors.New("invalid file type, use a PDF, TXT, or MD file")
}

// IsPDF reports whether the attachment is a PDF document.
func (a *Attachment) IsPDF() bool {
	return strings.EqualFold(filepath.Ext(a.Name), ".pdf")
}

// =============================================================================
// ROUTING HELPERS
// =============================================================================

// HasPDF reports whether any attachment is a PDF. A submission with a PDF
// goes to the context-augmented endpoint.
func HasPDF(list []*Attachment) bool {
	return FirstPDF(list) != nil
}

// FirstPDF returns the first PDF attachment, or nil.
func FirstPDF(list []*Attachment) *Attachment {
	for _, a := range list {
		if a != nil && a.IsPDF() {
			return a
		}
	}
	return nil
}
