// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - answer rendering: glamour markdown for terminals, plain text
// for pipes, and the live echo of streaming answers.
package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/stream"
	"github.com/jeranaias/ragchat/internal/util"
)

// RenderOptions controls a Renderer.
type RenderOptions struct {
	// Markdown renders answers with glamour
	Markdown bool

	// ShowThinking prints the thinking section above answers
	ShowThinking bool

	// Width is the word-wrap width
	Width int
}

// Renderer writes answers and conversations.
type Renderer struct {
	out  io.Writer
	opts RenderOptions

	mdOnce sync.Once
	md     *glamour.TermRenderer
}

// NewRenderer returns a renderer writing to out.
func NewRenderer(out io.Writer, opts RenderOptions) *Renderer {
	if opts.Width <= 0 {
		opts.Width = DefaultTerminalWidth
	}
	if opts.Width > MaxRenderWidth {
		opts.Width = MaxRenderWidth
	}
	return &Renderer{out: out, opts: opts}
}

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// Markdown renders content for the terminal. Content is returned unchanged
// when markdown is off or rendering fails.
func (r *Renderer) Markdown(content string) string {
	if !r.opts.Markdown {
		return content
	}
	r.mdOnce.Do(func() {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(r.opts.Width-4),
		)
		if err == nil {
			r.md = md
		}
	})
	if r.md == nil {
		return content
	}
	rendered, err := r.md.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// Answer writes a completed answer: the thinking section when enabled, then
// the response.
func (r *Renderer) Answer(answer string) {
	t := stream.ExtractThinking(answer)
	if t.HasThinking && r.opts.ShowThinking && t.Thinking != "" {
		fmt.Fprintln(r.out, RenderConditional(DimStyle, "[thinking]"))
		fmt.Fprintln(r.out, RenderConditional(DimStyle, t.Thinking))
		fmt.Fprintln(r.out)
	}
	response := t.Response
	if r.opts.Markdown {
		fmt.Fprint(r.out, r.Markdown(response))
		return
	}
	fmt.Fprintln(r.out, response)
}

// Exchange writes one displayed edit of a message.
func (r *Renderer) Exchange(number int, view editPosition, e model.Edit) {
	header := fmt.Sprintf("#%d", number)
	if view.count > 1 {
		header += fmt.Sprintf("  edit %d/%d", view.index+1, view.count)
	}
	meta := e.Model
	if e.Elapsed > 0 {
		meta += ", " + formatDurationShort(e.Elapsed)
	}
	fmt.Fprintf(r.out, "%s %s\n", RenderConditional(DimStyle, header), RenderConditional(DimStyle, "("+meta+")"))
	fmt.Fprintf(r.out, "%s %s\n", RenderConditional(QuestionStyle, "You:"), e.Question)
	r.Answer(e.Answer)
	fmt.Fprintln(r.out)
}

// editPosition is an edit's place in its message history.
type editPosition struct {
	index int
	count int
}

// Thread writes a conversation showing each message's latest edit, or every
// edit when all is set.
func (r *Renderer) Thread(th *model.Thread, all bool) {
	fmt.Fprintf(r.out, "%s %s\n", RenderConditional(TitleStyle, th.Title), RenderConditional(DimStyle, "("+th.ID+")"))
	fmt.Fprintln(r.out, RenderSeparator(util.StringWidth(th.Title)+len(th.ID)+3))
	if th.IsEmpty() {
		fmt.Fprintln(r.out, RenderConditional(DimStyle, "No messages yet."))
		return
	}
	for i, msg := range th.Messages {
		if all {
			for j, e := range msg.Edits {
				r.Exchange(i+1, editPosition{index: j, count: msg.EditCount()}, e)
			}
			continue
		}
		r.Exchange(i+1, editPosition{index: msg.LatestIndex(), count: msg.EditCount()}, msg.Latest())
	}
}

// =============================================================================
// LIVE ECHO
// =============================================================================

// liveEcho prints a streaming answer as it grows. It re-reads the whole
// thinking split each time and prints only what is new.
type liveEcho struct {
	out          io.Writer
	showThinking bool

	thinkingShown string
	responseShown string
	thinkingOpen  bool
	wrote         bool
}

func newLiveEcho(out io.Writer, showThinking bool) *liveEcho {
	return &liveEcho{out: out, showThinking: showThinking}
}

// update prints whatever the split t adds to the previous one.
func (e *liveEcho) update(t stream.Thinking) {
	if t.HasThinking && e.showThinking {
		if !e.thinkingOpen && t.Thinking != "" {
			fmt.Fprintln(e.out, RenderConditional(DimStyle, "[thinking]"))
			e.thinkingOpen = true
		}
		if strings.HasPrefix(t.Thinking, e.thinkingShown) && len(t.Thinking) > len(e.thinkingShown) {
			fmt.Fprint(e.out, RenderConditional(DimStyle, t.Thinking[len(e.thinkingShown):]))
			e.thinkingShown = t.Thinking
			e.wrote = true
		}
	}

	if t.Response == "" {
		return
	}
	if e.thinkingOpen && e.responseShown == "" {
		fmt.Fprint(e.out, "\n\n")
	}
	if strings.HasPrefix(t.Response, e.responseShown) && len(t.Response) > len(e.responseShown) {
		fmt.Fprint(e.out, t.Response[len(e.responseShown):])
		e.responseShown = t.Response
		e.wrote = true
	}
}

// finish ends the echoed answer with a newline.
func (e *liveEcho) finish() {
	if e.wrote {
		fmt.Fprintln(e.out)
	}
}

// =============================================================================
// FORMATTING
// =============================================================================

// formatDurationShort formats a duration for display.
func formatDurationShort(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", m, s)
}

// formatAge formats how long ago t was, relative to now.
func formatAge(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
