// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// threads.go - read-only commands over persisted conversations.
package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/util"
)

// titleWidth bounds thread titles in listings.
const titleWidth = 48

// HandleThreads lists conversation threads, newest first.
func (a *App) HandleThreads(ctx context.Context) error {
	infos, err := a.Client.ListThreads(ctx)
	if err != nil {
		return NewCommandError("threads", "list", err)
	}

	if a.Args.JSON {
		if infos == nil {
			infos = []model.ThreadInfo{}
		}
		return outputJSON(a.Out, infos)
	}

	printThreadList(a.Out, infos, "", time.Now())
	return nil
}

// printThreadList writes numbered listing rows. The row whose id is active
// is marked.
func printThreadList(w io.Writer, infos []model.ThreadInfo, active string, now time.Time) {
	if len(infos) == 0 {
		fmt.Fprintln(w, RenderConditional(DimStyle, "No threads yet. Ask a question to start one."))
		return
	}
	for i, info := range infos {
		marker := " "
		if info.ID == active {
			marker = "*"
		}
		title := util.PadRight(util.TruncateWidth(util.OneLine(info.Title), titleWidth), titleWidth)
		fmt.Fprintf(w, "%s%3d  %s  %s  %s\n",
			marker, i+1, title,
			RenderConditional(DimStyle, util.PadRight(formatAge(info.CreatedAt, now), 10)),
			RenderConditional(DimStyle, info.ID))
	}
}

// HandleShow prints one conversation.
func (a *App) HandleShow(ctx context.Context) error {
	if len(a.Args.Positional) < 1 {
		return NewUsageError("missing thread id", "ragchat show <thread>")
	}
	threadID := a.Args.Positional[0]

	th, err := a.Client.GetConversation(ctx, threadID)
	if err != nil {
		return NewCommandError("show", "load thread "+threadID, err)
	}

	if a.Args.JSON {
		return outputJSON(a.Out, th)
	}
	a.render.Thread(th, a.Args.All)
	return nil
}

// HandleEdits prints every edit of one message.
func (a *App) HandleEdits(ctx context.Context) error {
	if len(a.Args.Positional) < 2 {
		return NewUsageError("missing thread or message id", "ragchat edits <thread> <message>")
	}
	threadID, messageID := a.Args.Positional[0], a.Args.Positional[1]

	msg, err := a.Client.GetMessageEdits(ctx, threadID, messageID)
	if err != nil {
		return NewCommandError("edits", "load message "+messageID, err)
	}

	if a.Args.JSON {
		return outputJSON(a.Out, msg)
	}

	fmt.Fprintf(a.Out, "%s %s\n\n", RenderConditional(TitleStyle, "Message"), RenderConditional(DimStyle, msg.ID))
	for i, e := range msg.Edits {
		a.render.Exchange(i+1, editPosition{index: i, count: len(msg.Edits)}, e)
	}
	return nil
}
