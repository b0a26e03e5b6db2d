// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/util"
)

// ErrEmptyThread is returned for threads without messages.
var ErrEmptyThread = errors.New("thread has no messages")

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a thread to one file format.
type Exporter interface {
	// Export returns the formatted thread.
	Export(th *model.Thread) ([]byte, error)

	// FileExtension returns the extension including the dot.
	FileExtension() string

	// MimeType returns the MIME type of the format.
	MimeType() string
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir receives exported files (default: current directory)
	OutputDir string

	// IncludeMetadata adds a front matter block and per-answer stats
	IncludeMetadata bool

	// IncludeThinking keeps the thinking section of answers
	IncludeThinking bool

	// AllEdits exports every edit of each message instead of the latest
	AllEdits bool

	// Now stamps the export; zero means time.Now
	Now time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:       ".",
		IncludeMetadata: true,
	}
}

func (o *Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

// Formats lists the accepted format names.
var Formats = []string{"md", "json"}

// ForFormat returns the exporter for a format name ("md", "markdown" or
// "json").
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(format) {
	case "", "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (use %s)", format, strings.Join(Formats, " or "))
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ExportToFile writes th to OutputDir and returns the file path. Files are
// owner-only since conversations may hold private documents.
func ExportToFile(th *model.Thread, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	content, err := exporter.Export(th)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	filename := fmt.Sprintf("ragchat_%s_%s%s",
		sanitizeFilename(th.Title),
		opts.now().Format("20060102_150405"),
		exporter.FileExtension(),
	)
	outputPath := filepath.Join(opts.OutputDir, filename)
	if err := util.AtomicWriteFileWithDir(outputPath, content, 0600, 0700); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return outputPath, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// edits returns the edits of msg to export.
func edits(msg *model.Message, all bool) []model.Edit {
	if all {
		return msg.Edits
	}
	return []model.Edit{msg.Latest()}
}

// sanitizeFilename replaces characters that are invalid in file names on
// Windows or Unix.
func sanitizeFilename(s string) string {
	s = util.TruncateRunes(strings.TrimSpace(s), 50)

	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "thread"
	}
	return b.String()
}

// formatDuration formats an answer's generation time.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
