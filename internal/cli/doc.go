// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the ragchat command line.
//
// # Key Types
//
//   - Args: parsed command-line arguments
//   - App: configuration, logger and backend client for one invocation
//   - ChatSession: the interactive chat loop over a chat.Manager
//   - Renderer: markdown or plain rendering of answers and threads
//
// # Usage
//
//	code := cli.Run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
//	os.Exit(code)
//
// # Commands
//
//   - chat (default): interactive chat with slash commands
//   - ask: one question, streamed to stdout
//   - threads, show, edits: read persisted conversations
//   - health: backend and database status
//   - config: view and edit ~/.ragchat/config.toml
//
// Every command accepts --json. Errors map to exit codes in errors.go.
package cli
