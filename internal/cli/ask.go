// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - the one-shot "ask" command and the streaming submit shared with
// interactive chat.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/ragchat/internal/attach"
	"github.com/jeranaias/ragchat/internal/chat"
)

// AskResult is the JSON output of the ask command.
type AskResult struct {
	ThreadID    string   `json:"thread_id"`
	MessageID   string   `json:"message_id"`
	EditID      string   `json:"edit_id"`
	Model       string   `json:"model"`
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	Thinking    string   `json:"thinking,omitempty"`
	ContextUsed bool     `json:"context_used"`
	Attachments []string `json:"attachments,omitempty"`
	DurationMs  int64    `json:"duration_ms"`
}

// HandleAsk asks one question and streams the answer.
func (a *App) HandleAsk(ctx context.Context) error {
	question, err := a.readQuestion()
	if err != nil {
		return err
	}

	attachments, err := a.buildAttachments(a.Args.Files, a.Args.RemotePaths)
	if err != nil {
		return err
	}

	m := a.NewManager()
	threadID := m.ActiveID()
	if a.Args.Thread != "" {
		if err := m.Load(ctx); err != nil {
			return NewCommandError("ask", "list threads", err)
		}
		if err := m.SwitchThread(ctx, a.Args.Thread); err != nil {
			return NewCommandError("ask", "open thread "+a.Args.Thread, err)
		}
		threadID = a.Args.Thread
	}

	live := !a.Args.JSON && !a.Args.Quiet
	res, err := a.submitWithEcho(ctx, m, live, func(ctx context.Context) (*chat.Result, error) {
		return m.Submit(ctx, chat.SubmitRequest{
			ThreadID:    threadID,
			Question:    question,
			Attachments: attachments,
		})
	})
	if err != nil {
		return err
	}

	modelName := a.Config.Chat.DefaultModel
	if th, ok := m.Thread(res.ThreadID); ok && th.Model != "" {
		modelName = th.Model
	}

	if a.Args.JSON {
		out := AskResult{
			ThreadID:    res.ThreadID,
			MessageID:   res.MessageID,
			EditID:      res.EditID,
			Model:       modelName,
			Question:    question,
			Answer:      res.Thinking.Response,
			Thinking:    res.Thinking.Thinking,
			ContextUsed: res.ContextUsed,
			DurationMs:  res.Elapsed.Milliseconds(),
		}
		for _, att := range attachments {
			out.Attachments = append(out.Attachments, att.Name)
		}
		return outputJSON(a.Out, out)
	}

	if a.Args.Quiet {
		fmt.Fprintln(a.Out, res.Thinking.Response)
		return nil
	}

	fmt.Fprintln(a.Out)
	stats := fmt.Sprintf("%s | %s | thread %s", modelName, formatDurationShort(res.Elapsed), res.ThreadID)
	if res.ContextUsed {
		stats += " | document context"
	}
	fmt.Fprintln(a.Err, RenderConditional(DimStyle, stats))
	return nil
}

// readQuestion takes the question from the arguments, or from stdin when
// it is piped.
func (a *App) readQuestion() (string, error) {
	question := strings.TrimSpace(a.Args.Query)
	if question == "" && a.In != nil && !isTerminal(a.In) {
		data, err := io.ReadAll(a.In)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		question = strings.TrimSpace(string(data))
	}
	if question == "" {
		return "", NewUsageError("no question given", `ragchat ask "your question"`)
	}
	return question, nil
}

// buildAttachments validates local files and remote paths.
func (a *App) buildAttachments(files, remote []string) ([]*attach.Attachment, error) {
	opts := a.Config.AttachOptions()
	var out []*attach.Attachment
	for _, path := range files {
		att, err := attach.FromFile(path, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, att)
	}
	for _, path := range remote {
		att, err := attach.FromRemotePath(path, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, att)
	}
	return out, nil
}

// submitWithEcho runs submit, printing the answer as it streams when live
// is set.
func (a *App) submitWithEcho(ctx context.Context, m *chat.Manager, live bool,
	submit func(context.Context) (*chat.Result, error)) (*chat.Result, error) {

	if !live {
		return submit(ctx)
	}

	echo := newLiveEcho(a.Out, a.Config.UI.ShowThinking)
	m.SetUpdateCallback(func(u chat.Update) {
		if u.Kind != chat.UpdateDelta {
			return
		}
		if l, ok := m.Live(u.ThreadID); ok {
			echo.update(l.Thinking)
		}
	})
	defer m.SetUpdateCallback(nil)

	fmt.Fprintf(a.Out, "%s ", RenderConditional(PromptStyle, "Assistant:"))
	res, err := submit(ctx)
	echo.finish()
	if err != nil {
		if f, ok := m.Failure(m.ActiveID()); ok && f.Answer != "" {
			fmt.Fprintln(a.Out, RenderConditional(WarningStyle, f.Answer))
		}
		return nil, err
	}
	return res, nil
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
