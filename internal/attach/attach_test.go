// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o600))
	return path
}

func TestFromFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		size    int
		maxSize int64
		wantErr bool
	}{
		{"pdf", "doc.pdf", 100, 0, false},
		{"text", "notes.txt", 10, 0, false},
		{"markdown upper ext", "README.MD", 10, 0, false},
		{"unsupported type", "image.png", 10, 0, true},
		{"no extension", "Makefile", 10, 0, true},
		{"too large", "big.pdf", 2048, 1024, true},
		{"at limit", "edge.txt", 1024, 1024, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, tc.file, tc.size)
			a, err := FromFile(path, Options{MaxSize: tc.maxSize, Mode: ModeOffline})
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidationError(err))
				assert.Nil(t, a)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.file, a.Name)
			assert.Equal(t, int64(tc.size), a.Size)
			assert.Equal(t, ModeOffline, a.Mode)
			assert.False(t, a.Remote)
		})
	}
}

func TestFromFile_Missing(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "nope.pdf"), DefaultOptions())
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "file not found")
}

func TestFromFile_Directory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "folder.pdf")
	require.NoError(t, os.Mkdir(dir, 0o700))
	_, err := FromFile(dir, DefaultOptions())
	assert.True(t, IsValidationError(err))
}

func TestFromRemotePath(t *testing.T) {
	a, err := FromRemotePath("/srv/docs/manual.pdf", DefaultOptions())
	require.NoError(t, err)
	assert.True(t, a.Remote)
	assert.True(t, a.IsPDF())
	assert.Equal(t, "manual.pdf", a.Name)

	_, err = FromRemotePath("/srv/docs/data.csv", DefaultOptions())
	assert.True(t, IsValidationError(err))
}

func TestValidate_Mode(t *testing.T) {
	a := &Attachment{Name: "a.txt", Path: "a.txt", Mode: ProcessingMode("cloud")}
	assert.Error(t, a.Validate(0))

	a.Mode = ModeOnline
	assert.NoError(t, a.Validate(0))
}

func TestFirstPDF(t *testing.T) {
	txt := &Attachment{Name: "a.txt"}
	pdf1 := &Attachment{Name: "b.PDF"}
	pdf2 := &Attachment{Name: "c.pdf"}

	assert.Nil(t, FirstPDF(nil))
	assert.False(t, HasPDF([]*Attachment{txt}))
	assert.Same(t, pdf1, FirstPDF([]*Attachment{txt, nil, pdf1, pdf2}))
	assert.True(t, HasPDF([]*Attachment{txt, pdf2}))
}
