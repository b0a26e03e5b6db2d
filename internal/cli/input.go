// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// input.go - line input for interactive chat: liner with persistent history
// on a terminal, a plain line scanner otherwise.
package cli

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/ragchat/internal/util"
)

// errInputAborted is returned when the user presses Ctrl+C at the prompt.
var errInputAborted = errors.New("input aborted")

// lineReader reads one line of user input at a time.
type lineReader interface {
	// Prompt reads a line. io.EOF ends the session.
	Prompt(prompt string) (string, error)

	// PromptWithText reads a line pre-filled with text.
	PromptWithText(prompt, text string) (string, error)

	Close() error
}

// =============================================================================
// LINER INPUT
// =============================================================================

// linerInput provides line editing and history navigation.
type linerInput struct {
	line        *liner.State
	historyFile string
	logger      *slog.Logger
}

func newLinerInput(historyFile string, logger *slog.Logger) *linerInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	in := &linerInput{line: line, historyFile: historyFile, logger: logger}
	in.loadHistory()
	return in
}

func (l *linerInput) loadHistory() {
	if l.historyFile == "" {
		return
	}
	f, err := os.Open(l.historyFile)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err := l.line.ReadHistory(f); err != nil {
		l.logger.Debug("history not loaded", "path", l.historyFile, "error", err)
	}
}

func (l *linerInput) Prompt(prompt string) (string, error) {
	return l.record(l.line.Prompt(prompt))
}

func (l *linerInput) PromptWithText(prompt, text string) (string, error) {
	return l.record(l.line.PromptWithSuggestion(prompt, text, -1))
}

func (l *linerInput) record(input string, err error) (string, error) {
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", errInputAborted
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		l.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the
// terminal.
func (l *linerInput) Close() error {
	if l.historyFile != "" {
		var buf bytes.Buffer
		if _, err := l.line.WriteHistory(&buf); err == nil {
			if err := util.AtomicWriteFileWithDir(l.historyFile, buf.Bytes(), 0600, 0700); err != nil {
				l.logger.Warn("history not saved", "path", l.historyFile, "error", err)
			}
		}
	}
	return l.line.Close()
}

// =============================================================================
// PLAIN INPUT
// =============================================================================

// scannerInput reads lines from a non-terminal reader. Prompts are not
// echoed.
type scannerInput struct {
	scanner *bufio.Scanner
}

func newScannerInput(r io.Reader) *scannerInput {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &scannerInput{scanner: s}
}

func (s *scannerInput) Prompt(string) (string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

func (s *scannerInput) PromptWithText(prompt, _ string) (string, error) {
	return s.Prompt(prompt)
}

func (s *scannerInput) Close() error {
	return nil
}
