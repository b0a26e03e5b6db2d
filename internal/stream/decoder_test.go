// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// HELPERS
// =============================================================================

// chunkReader returns one chunk per Read call, like a network body.
type chunkReader struct {
	chunks [][]byte
	reads  int
}

func newChunkReader(chunks ...string) *chunkReader {
	r := &chunkReader{}
	for _, c := range chunks {
		r.chunks = append(r.chunks, []byte(c))
	}
	return r
}

func (r *chunkReader) Read(p []byte) (int, error) {
	r.reads++
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func dataLine(t *testing.T, v map[string]any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return DataPrefix + string(b) + "\n\n"
}

func collect(t *testing.T, r io.Reader) ([]string, *Result, error) {
	t.Helper()
	var deltas []string
	res, err := NewDecoder(r).Process(context.Background(), func(d Delta) {
		deltas = append(deltas, d.Content)
	})
	return deltas, res, err
}

// =============================================================================
// FRAMING TESTS
// =============================================================================

func TestDecoder_BasicStream(t *testing.T) {
	body := dataLine(t, map[string]any{"content": "Hi"}) +
		dataLine(t, map[string]any{"content": " there"})

	deltas, res, err := collect(t, strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, []string{"Hi", " there"}, deltas)
	assert.Equal(t, "Hi there", res.Text)
	assert.False(t, res.ContextUsed)
	assert.False(t, res.Thinking.HasThinking)
	assert.Equal(t, "Hi there", res.Thinking.Response)
}

func TestDecoder_IgnoresNonDataLines(t *testing.T) {
	body := ": keep-alive\n" +
		"event: message\n" +
		"data:{\"content\":\"no space\"}\n" +
		dataLine(t, map[string]any{"content": "ok"}) +
		"\n"

	deltas, res, err := collect(t, strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, deltas)
	assert.Equal(t, "ok", res.Text)
}

func TestDecoder_MalformedLineSkipped(t *testing.T) {
	r := newChunkReader("data: {bad\n", "data: {\"content\":\"ok\"}\n")

	dec := NewDecoder(r)
	var deltas []string
	res, err := dec.Process(context.Background(), func(d Delta) {
		deltas = append(deltas, d.Content)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"ok"}, deltas)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, 1, dec.SkippedLines())
}

func TestDecoder_TruncatedLineAtReadBoundary(t *testing.T) {
	r := newChunkReader("data: {bad", "data: {\"content\":\"ok\"}")

	dec := NewDecoder(r)
	var deltas []string
	res, err := dec.Process(context.Background(), func(d Delta) {
		deltas = append(deltas, d.Content)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"ok"}, deltas)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, 1, dec.SkippedLines())
}

func TestDecoder_ValidLineSpanningReadsNotSplit(t *testing.T) {
	r := newChunkReader("data: {\"content\":\"see ", "data: below\"}\n")

	deltas, res, err := collect(t, r)
	require.NoError(t, err)
	assert.Equal(t, []string{"see data: below"}, deltas)
	assert.Equal(t, "see data: below", res.Text)
}

func TestDecoder_ErrorLineHalts(t *testing.T) {
	tail := &chunkReader{chunks: [][]byte{[]byte(dataLine(t, map[string]any{"content": "never"}))}}
	body := io.MultiReader(
		strings.NewReader(dataLine(t, map[string]any{"content": "before"})),
		strings.NewReader(dataLine(t, map[string]any{"error": "x"})),
		tail,
	)

	deltas, res, err := collect(t, body)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, []string{"before"}, deltas)

	var se *StreamError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "x", se.Message)
	assert.Equal(t, "before", se.Partial)
}

func TestDecoder_ErrorLineStopsReading(t *testing.T) {
	r := newChunkReader(
		"data: {\"error\":\"model crashed\"}\n",
		"data: {\"content\":\"late\"}\n",
	)

	deltas, _, err := collect(t, r)
	require.Error(t, err)
	assert.Empty(t, deltas)
	assert.Len(t, r.chunks, 1, "second chunk must not be read")
}

func TestDecoder_ErrorFieldValues(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr bool
		wantMsg string
	}{
		{"string", `data: {"error":"boom"}`, true, "boom"},
		{"object", `data: {"error":{"code":1}}`, true, `{"code":1}`},
		{"null", `data: {"error":null,"content":"a"}`, false, ""},
		{"false", `data: {"error":false,"content":"a"}`, false, ""},
		{"empty", `data: {"error":"","content":"a"}`, false, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := collect(t, strings.NewReader(tc.line+"\n"))
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			var se *StreamError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.wantMsg, se.Message)
		})
	}
}

func TestDecoder_ContextUsedLastWriteWins(t *testing.T) {
	body := dataLine(t, map[string]any{"content": "a", "context_used": true}) +
		dataLine(t, map[string]any{"content": "b", "context_used": false}) +
		dataLine(t, map[string]any{"content": "c"})

	_, res, err := collect(t, strings.NewReader(body))
	require.NoError(t, err)
	assert.False(t, res.ContextUsed)

	body = dataLine(t, map[string]any{"content": "a", "context_used": false}) +
		dataLine(t, map[string]any{"context_used": true})
	_, res, err = collect(t, strings.NewReader(body))
	require.NoError(t, err)
	assert.True(t, res.ContextUsed)
	assert.Equal(t, "a", res.Text)
}

func TestDecoder_EmptyContentNotEmitted(t *testing.T) {
	body := dataLine(t, map[string]any{"content": ""}) + dataLine(t, map[string]any{"content": "x"})
	deltas, _, err := collect(t, strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, deltas)
}

func TestDecoder_FinalLineWithoutNewline(t *testing.T) {
	body := "data: {\"content\":\"a\"}\r\ndata: {\"content\":\"b\"}"
	deltas, res, err := collect(t, strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, deltas)
	assert.Equal(t, "ab", res.Text)
}

func TestDecoder_EmptyStream(t *testing.T) {
	deltas, res, err := collect(t, strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, deltas)
	assert.Equal(t, "", res.Text)
	assert.False(t, res.ContextUsed)
}

// =============================================================================
// CHUNK BOUNDARY TESTS
// =============================================================================

func TestDecoder_ArbitrarySplitPoints(t *testing.T) {
	parts := []string{"Grüße ", "日本語", " 🚀 ok", "<tag>"}
	var body strings.Builder
	for _, p := range parts {
		body.WriteString(dataLine(t, map[string]any{"content": p}))
	}
	raw := body.String()
	want := strings.Join(parts, "")

	for split := 0; split <= len(raw); split++ {
		r := newChunkReader(raw[:split], raw[split:])
		deltas, res, err := collect(t, r)
		require.NoError(t, err, "split=%d", split)
		assert.Equal(t, want, strings.Join(deltas, ""), "split=%d", split)
		assert.Equal(t, want, res.Text, "split=%d", split)
	}
}

func TestDecoder_OneByteReads(t *testing.T) {
	raw := dataLine(t, map[string]any{"content": "héllo"}) +
		": ping\n" +
		dataLine(t, map[string]any{"content": " wörld", "context_used": true})

	deltas, res, err := collect(t, iotest.OneByteReader(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, []string{"héllo", " wörld"}, deltas)
	assert.Equal(t, "héllo wörld", res.Text)
	assert.True(t, res.ContextUsed)
}

// =============================================================================
// FAILURE TESTS
// =============================================================================

func TestDecoder_ReadFailure(t *testing.T) {
	boom := errors.New("connection reset")
	body := io.MultiReader(
		strings.NewReader(dataLine(t, map[string]any{"content": "part"})),
		iotest.ErrReader(boom),
	)

	_, res, err := collect(t, body)
	assert.Nil(t, res)
	require.ErrorIs(t, err, boom)

	var se *StreamError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "part", se.Partial)
}

func TestDecoder_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDecoder(strings.NewReader("data: {\"content\":\"x\"}\n")).Process(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsStreamError(err))
}

func TestDecoder_LiveThinking(t *testing.T) {
	body := dataLine(t, map[string]any{"content": "<think>plan"}) +
		dataLine(t, map[string]any{"content": "ning</think>"}) +
		dataLine(t, map[string]any{"content": " Answer"})

	var lives []Thinking
	res, err := NewDecoder(strings.NewReader(body)).Process(context.Background(), func(d Delta) {
		lives = append(lives, d.Live)
	})
	require.NoError(t, err)
	require.Len(t, lives, 3)

	assert.True(t, lives[0].InProgress)
	assert.Equal(t, "plan", lives[0].Thinking)
	assert.Empty(t, lives[0].Response)

	assert.False(t, lives[1].InProgress)
	assert.Equal(t, "planning", lives[1].Thinking)

	assert.Equal(t, "Answer", lives[2].Response)
	assert.Equal(t, lives[2], res.Thinking)
}

func TestStreamError_Message(t *testing.T) {
	err := &StreamError{Status: 500, Message: "Failed to process LLM call"}
	assert.Equal(t, "stream error: Failed to process LLM call (HTTP 500)", err.Error())

	err = &StreamError{Message: "x", Partial: "abc"}
	assert.Contains(t, err.Error(), "after 3 chars")
}
