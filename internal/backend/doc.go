// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the chat storage and
// inference API.
//
// # Endpoints
//
//	POST /threads                               create a thread
//	GET  /threads/titles                        list threads, newest first
//	GET  /conversations/{thread}                full message/edit history
//	GET  /conversations/{thread}/{message}      edits of one message
//	POST /conversations/{thread}/               persist a new message
//	POST /conversations/{message}/edits         persist a new edit
//	POST /llm_call                              direct inference (streaming)
//	POST /rag/                                  context-augmented inference (streaming, multipart)
//	GET  /health                                backend and database status
//
// Storage calls decode JSON and are paced by a token-bucket limiter.
// Inference calls return the open response body for a stream.Decoder.
//
// # Usage
//
//	client := backend.NewClient(backend.DefaultConfig())
//	body, err := client.Ask(ctx, "Hello", "qwen3:0.6b")
//	if err != nil {
//	    return err
//	}
//	defer body.Close()
//	res, err := stream.NewDecoder(body).Process(ctx, onDelta)
package backend
