// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - per-invocation wiring of config, logging and the backend client.
package cli

import (
	"io"
	"log/slog"

	"github.com/jeranaias/ragchat/internal/backend"
	"github.com/jeranaias/ragchat/internal/chat"
	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/logging"
	"github.com/jeranaias/ragchat/internal/model"
)

// App holds everything a command handler needs.
type App struct {
	Args       *Args
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger
	Client     *backend.Client

	In  io.Reader
	Out io.Writer
	Err io.Writer

	render    *Renderer
	logCloser io.Closer
}

// NewApp loads configuration, applies command-line overrides and builds the
// logger and backend client.
func NewApp(args *Args, stdin io.Reader, stdout, stderr io.Writer) (*App, error) {
	cfg, path, err := loadConfig(args.ConfigPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, args)
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	logger, closer, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
		Writer: stderr,
	})
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	slog.SetDefault(logger)

	a := &App{
		Args:       args,
		Config:     cfg,
		ConfigPath: path,
		Logger:     logger,
		Client:     backend.NewClient(cfg.ClientConfig(logger)),
		In:         stdin,
		Out:        stdout,
		Err:        stderr,
		logCloser:  closer,
	}
	a.render = NewRenderer(stdout, RenderOptions{
		Markdown:     cfg.UI.Markdown && isTerminal(stdout),
		ShowThinking: cfg.UI.ShowThinking,
		Width:        terminalWidth(stdout),
	})
	return a, nil
}

// Close releases the log file.
func (a *App) Close() error {
	if a.logCloser == nil {
		return nil
	}
	return a.logCloser.Close()
}

// NewManager returns a conversation manager over the app's client.
func (a *App) NewManager() *chat.Manager {
	return chat.NewManager(a.Client, a.Config.ManagerConfig(a.Logger))
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.LoadFromPath(path)
		if err != nil {
			return nil, path, &ConfigError{Path: path, Err: err}
		}
		return cfg, path, nil
	}

	path, err := config.ConfigPath()
	if err != nil {
		return nil, "", &ConfigError{Err: err}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, path, &ConfigError{Path: path, Err: err}
	}
	return cfg, path, nil
}

// applyFlags layers command-line flags over the loaded configuration.
func applyFlags(cfg *config.Config, args *Args) {
	if args.Verbose {
		cfg.Logging.Level = "debug"
	}
	if args.NoMarkdown || args.JSON {
		cfg.UI.Markdown = false
	}
	if args.Thinking {
		cfg.UI.ShowThinking = true
	}
	if args.Model != "" {
		cfg.Chat.DefaultModel = model.ResolveModel(args.Model)
	}
}
