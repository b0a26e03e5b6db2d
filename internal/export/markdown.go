// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/stream"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports threads as Markdown with optional YAML front
// matter.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a thread to Markdown.
func (e *MarkdownExporter) Export(th *model.Thread) ([]byte, error) {
	if th == nil {
		return nil, fmt.Errorf("thread is nil")
	}
	if th.IsEmpty() {
		return nil, ErrEmptyThread
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(th.Title))
		fmt.Fprintf(&sb, "thread_id: %s\n", th.ID)
		if th.Model != "" {
			fmt.Fprintf(&sb, "model: %s\n", th.Model)
		}
		if !th.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "date: %s\n", th.CreatedAt.Format(time.RFC3339))
		}
		fmt.Fprintf(&sb, "messages: %d\n", th.MessageCount())
		fmt.Fprintf(&sb, "exported: %s\n", e.options.now().Format(time.RFC3339))
		sb.WriteString("generator: ragchat\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(th.Title))

	for i, msg := range th.Messages {
		list := edits(msg, e.options.AllEdits)
		for j, edit := range list {
			heading := fmt.Sprintf("## %d", i+1)
			if e.options.AllEdits && len(list) > 1 {
				heading += fmt.Sprintf(" (edit %d of %d)", j+1, len(list))
			}
			sb.WriteString(heading + "\n\n")
			e.writeEdit(&sb, edit)
		}
		if i < len(th.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

func (e *MarkdownExporter) writeEdit(sb *strings.Builder, edit model.Edit) {
	sb.WriteString("**You:**\n\n")
	sb.WriteString(quote(edit.Question))
	sb.WriteString("\n\n")

	t := stream.ExtractThinking(edit.Answer)
	if e.options.IncludeThinking && t.HasThinking && t.Thinking != "" {
		sb.WriteString("<details>\n<summary>Thinking</summary>\n\n")
		sb.WriteString(t.Thinking)
		sb.WriteString("\n\n</details>\n\n")
	}

	sb.WriteString("**Assistant:**\n\n")
	sb.WriteString(strings.TrimSpace(t.Response))
	sb.WriteString("\n\n")

	if e.options.IncludeMetadata {
		if stats := formatEditStats(edit); stats != "" {
			sb.WriteString(stats)
			sb.WriteString("\n\n")
		}
	}
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func formatEditStats(edit model.Edit) string {
	var parts []string
	if edit.Model != "" {
		parts = append(parts, "Model: "+edit.Model)
	}
	if !edit.CreatedAt.IsZero() {
		parts = append(parts, "Created: "+formatTimestamp(edit.CreatedAt))
	}
	if edit.Elapsed > 0 {
		parts = append(parts, "Duration: "+formatDuration(edit.Elapsed))
	}
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf("<sub>%s</sub>", strings.Join(parts, " | "))
}

// quote renders text as a Markdown block quote.
func quote(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes characters that break headings.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML quotes values that YAML would otherwise misread.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
