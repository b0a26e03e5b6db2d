// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// export_cmd.go - the "export" command.
package cli

import (
	"context"
	"fmt"

	"github.com/jeranaias/ragchat/internal/export"
	"github.com/jeranaias/ragchat/internal/model"
)

// ExportResult is the JSON output of the export command.
type ExportResult struct {
	ThreadID string `json:"thread_id"`
	Format   string `json:"format"`
	Path     string `json:"path"`
}

// HandleExport writes a persisted thread to a file.
func (a *App) HandleExport(ctx context.Context) error {
	if len(a.Args.Positional) < 1 {
		return NewUsageError("missing thread id", "ragchat export <thread> [--format md|json]")
	}
	threadID := a.Args.Positional[0]

	opts := a.exportOptions()
	exporter, err := export.ForFormat(a.Args.Format, opts)
	if err != nil {
		return NewUsageError(err.Error(), "ragchat export <thread> --format md")
	}

	th, err := a.Client.GetConversation(ctx, threadID)
	if err != nil {
		return NewCommandError("export", "load thread "+threadID, err)
	}
	return a.writeExport(th, exporter, opts)
}

func (a *App) exportOptions() *export.Options {
	opts := export.DefaultOptions()
	if a.Args.Output != "" {
		opts.OutputDir = a.Args.Output
	}
	opts.AllEdits = a.Args.All
	opts.IncludeThinking = a.Config.UI.ShowThinking
	return opts
}

func (a *App) writeExport(th *model.Thread, exporter export.Exporter, opts *export.Options) error {
	if a.Args.Stdout {
		data, err := exporter.Export(th)
		if err != nil {
			return NewCommandError("export", "format", err)
		}
		_, err = a.Out.Write(data)
		return err
	}

	path, err := export.ExportToFile(th, exporter, opts)
	if err != nil {
		return NewCommandError("export", "write", err)
	}
	a.Logger.Info("thread exported", "thread", th.ID, "path", path)

	if a.Args.JSON {
		return outputJSON(a.Out, ExportResult{ThreadID: th.ID, Format: exporter.FileExtension()[1:], Path: path})
	}
	if !a.Args.Quiet {
		fmt.Fprintf(a.Out, "%s %s\n", RenderConditional(SuccessStyle, "[Exported]"), path)
	}
	return nil
}
