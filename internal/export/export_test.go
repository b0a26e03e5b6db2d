// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ragchat/internal/model"
)

var exportTime = time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC)

func testThread() *model.Thread {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	first := model.NewEdit("e1", "smollm2:360m", "What is RAG?", "Retrieval plus generation.", created)
	first.Elapsed = 1500 * time.Millisecond
	second := model.NewEdit("e2", "qwen3:0.6b", "What is RAG, briefly?", "<think>keep it short</think>Search, then answer.", created.Add(time.Minute))

	return &model.Thread{
		ID:        "t1",
		Title:     "RAG: basics",
		CreatedAt: created,
		Model:     "qwen3:0.6b",
		Messages: []*model.Message{
			{ID: "m1", Edits: []model.Edit{first, second}},
			{ID: "m2", Edits: []model.Edit{model.NewEdit("e3", "qwen3:0.6b", "Thanks", "You're welcome", created.Add(2*time.Minute))}},
		},
	}
}

func TestMarkdownExporter(t *testing.T) {
	opts := &Options{IncludeMetadata: true, Now: exportTime}
	out, err := NewMarkdownExporter(opts).Export(testThread())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\ntitle: \"RAG: basics\"\n"))
	assert.Contains(t, md, "exported: 2025-03-02T09:30:00Z")
	assert.Contains(t, md, "# RAG: basics")
	assert.Contains(t, md, "> What is RAG, briefly?")
	assert.Contains(t, md, "Search, then answer.")
	assert.NotContains(t, md, "keep it short")
	assert.NotContains(t, md, "Retrieval plus generation.", "only the latest edit by default")
	assert.Contains(t, md, "Model: qwen3:0.6b")
}

func TestMarkdownExporter_AllEditsAndThinking(t *testing.T) {
	opts := &Options{AllEdits: true, IncludeThinking: true, Now: exportTime}
	out, err := NewMarkdownExporter(opts).Export(testThread())
	require.NoError(t, err)
	md := string(out)

	assert.False(t, strings.HasPrefix(md, "---"), "no front matter without metadata")
	assert.Contains(t, md, "## 1 (edit 1 of 2)")
	assert.Contains(t, md, "## 1 (edit 2 of 2)")
	assert.Contains(t, md, "Retrieval plus generation.")
	assert.Contains(t, md, "<summary>Thinking</summary>\n\nkeep it short")
	assert.Contains(t, md, "## 2\n")
}

func TestJSONExporter(t *testing.T) {
	opts := &Options{IncludeThinking: true, Now: exportTime}
	out, err := NewJSONExporter(opts).Export(testThread())
	require.NoError(t, err)

	var doc jsonDocument
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, "t1", doc.ThreadID)
	assert.True(t, exportTime.Equal(doc.ExportedAt))
	require.Len(t, doc.Messages, 2)
	require.Len(t, doc.Messages[0].Edits, 1)

	e := doc.Messages[0].Edits[0]
	assert.Equal(t, "e2", e.EditID)
	assert.Equal(t, "Search, then answer.", e.Response)
	assert.Equal(t, "keep it short", e.Thinking)
	assert.Equal(t, "<think>keep it short</think>Search, then answer.", e.Answer)
}

func TestExport_EmptyThread(t *testing.T) {
	th := &model.Thread{ID: "t", Title: "Empty"}
	for _, format := range Formats {
		exp, err := ForFormat(format, nil)
		require.NoError(t, err)
		_, err = exp.Export(th)
		assert.ErrorIs(t, err, ErrEmptyThread)
	}
}

func TestForFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantExt string
		wantErr bool
	}{
		{"md", ".md", false},
		{"Markdown", ".md", false},
		{"", ".md", false},
		{"json", ".json", false},
		{"html", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			exp, err := ForFormat(tt.format, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantExt, exp.FileExtension())
		})
	}
}

func TestExportToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	opts := &Options{OutputDir: dir, Now: exportTime}

	path, err := ExportToFile(testThread(), NewMarkdownExporter(opts), opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ragchat_RAG-_basics_20250302_093000.md"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello World", "Hello_World"},
		{"a/b\\c:d", "a-b-c-d"},
		{"  ", "thread"},
		{"", "thread"},
		{"line\x01break", "line-break"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), tt.in)
	}
}
