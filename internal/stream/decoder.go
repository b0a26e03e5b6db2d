// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
)

// DataPrefix marks payload lines. Every other line is ignored.
const DataPrefix = "data: "

// =============================================================================
// EVENT TYPES
// =============================================================================

// Delta is one content fragment as it arrived on the wire.
type Delta struct {
	// Content is the fragment to append to the answer.
	Content string

	// Live is the thinking split of everything received so far, for
	// display while the answer is still growing.
	Live Thinking
}

// Result is the terminal summary of one exchange.
type Result struct {
	// Text is the concatenation of every delta.
	Text string

	// ContextUsed is the last context_used value seen (false if never sent).
	ContextUsed bool

	// Thinking is the split of Text, computed once at the end.
	Thinking Thinking
}

// Callback is invoked synchronously for each content delta, in order.
type Callback func(d Delta)

// payload is the JSON object carried by a data line.
type payload struct {
	Content     *string         `json:"content"`
	ContextUsed *bool           `json:"context_used"`
	Error       json.RawMessage `json:"error"`
}

// =============================================================================
// DECODER
// =============================================================================

// readSize is the buffer size for one Read from the body.
const readSize = 32 * 1024

// Decoder turns one response body into content deltas and a terminal Result.
// A Decoder is single-use and not safe for concurrent use.
type Decoder struct {
	reader io.Reader
	logger *slog.Logger

	// line holds a partial line across reads. breaks records offsets in
	// line where a read began with DataPrefix.
	line   []byte
	breaks []int

	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder
	contextUsed bool
	deltas      int
	skipped     int
}

// NewDecoder creates a decoder reading from r. Partial lines and split UTF-8
// sequences are buffered across reads.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		reader: r,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger used for skipped-line diagnostics.
func (d *Decoder) WithLogger(logger *slog.Logger) *Decoder {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// Process reads the stream to the end, calling cb for each content delta.
//
// It returns the terminal Result on a clean end of stream. A server error
// line, a read failure or context cancellation returns a *StreamError and
// no Result; nothing is read after an error line.
func (d *Decoder) Process(ctx context.Context, cb Callback) (*Result, error) {
	buf := make([]byte, readSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, &StreamError{Message: "stream cancelled", Partial: d.accumulator.String(), Err: err}
		}

		n, readErr := d.reader.Read(buf)
		if n > 0 {
			if err := d.consume(buf[:n], cb); err != nil {
				return nil, err
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if len(d.line) > 0 {
					if err := d.flushLine(cb); err != nil {
						return nil, err
					}
				}
				return d.finish(), nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				readErr = ctxErr
			}
			return nil, &StreamError{Message: "stream read failed", Partial: d.accumulator.String(), Err: readErr}
		}
	}
}

// consume appends one read to the line buffer and handles every line it
// completes.
func (d *Decoder) consume(chunk []byte, cb Callback) error {
	if len(d.line) > 0 && bytes.HasPrefix(chunk, []byte(DataPrefix)) {
		d.breaks = append(d.breaks, len(d.line))
	}
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			d.line = append(d.line, chunk...)
			return nil
		}
		d.line = append(d.line, chunk[:i+1]...)
		chunk = chunk[i+1:]
		if err := d.flushLine(cb); err != nil {
			return err
		}
	}
	return nil
}

// flushLine handles the buffered line. A line that does not parse as a
// whole is split at the read boundaries where a new data line began, so a
// truncated line does not swallow the one after it.
func (d *Decoder) flushLine(cb Callback) error {
	line, breaks := d.line, d.breaks
	d.line, d.breaks = d.line[:0], d.breaks[:0]

	if len(breaks) == 0 || validDataLine(line) {
		return d.handleLine(line, cb)
	}
	start := 0
	for _, at := range breaks {
		if err := d.handleLine(line[start:at], cb); err != nil {
			return err
		}
		start = at
	}
	return d.handleLine(line[start:], cb)
}

// validDataLine reports whether line is a data line carrying valid JSON.
func validDataLine(line []byte) bool {
	line = bytes.TrimRight(line, "\r\n")
	return bytes.HasPrefix(line, []byte(DataPrefix)) && json.Valid(line[len(DataPrefix):])
}

// handleLine parses a single framed line.
func (d *Decoder) handleLine(line []byte, cb Callback) error {
	line = bytes.TrimRight(line, "\r\n")
	if !bytes.HasPrefix(line, []byte(DataPrefix)) {
		return nil
	}

	var p payload
	if err := json.Unmarshal(line[len(DataPrefix):], &p); err != nil {
		d.skipped++
		d.logger.Debug("skipping malformed stream line", "error", err, "bytes", len(line))
		return nil
	}

	if msg, ok := errorMessage(p.Error); ok {
		return &StreamError{Message: msg, Partial: d.accumulator.String()}
	}

	if p.Content != nil && *p.Content != "" {
		d.accumulator.WriteString(*p.Content)
		d.deltas++
		if cb != nil {
			cb(Delta{
				Content: *p.Content,
				Live:    ExtractThinking(d.accumulator.String()),
			})
		}
	}

	if p.ContextUsed != nil {
		d.contextUsed = *p.ContextUsed
	}

	return nil
}

// finish builds the terminal result.
func (d *Decoder) finish() *Result {
	text := d.accumulator.String()
	return &Result{
		Text:        text,
		ContextUsed: d.contextUsed,
		Thinking:    ExtractThinking(text),
	}
}

// Accumulated returns the content received so far.
func (d *Decoder) Accumulated() string {
	return d.accumulator.String()
}

// DeltaCount returns how many content deltas were emitted.
func (d *Decoder) DeltaCount() int {
	return d.deltas
}

// SkippedLines returns how many data lines failed to parse.
func (d *Decoder) SkippedLines() int {
	return d.skipped
}

// errorMessage interprets the error field. Absent, null, false and empty
// values do not signal an error.
func errorMessage(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch string(raw) {
	case "null", "false", `""`:
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}
