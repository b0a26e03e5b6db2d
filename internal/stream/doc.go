// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes the line-framed inference responses produced by the
// chat backend's /llm_call and /rag/ endpoints.
//
// The wire format is newline-delimited UTF-8 text. Only lines starting with
// the literal "data: " carry a payload; the rest of such a line is a JSON
// object with any of these optional fields:
//
//	{"content": "...", "context_used": true, "error": "..."}
//
// # Key Types
//
//   - Decoder: reads one response body and reports content deltas
//   - Delta: one content fragment plus the live thinking split
//   - Result: the terminal summary (full text, context flag, thinking split)
//   - Thinking: the <think>...</think> preamble split of an answer
//   - StreamError: server-reported or transport failure
//
// # Usage
//
//	dec := stream.NewDecoder(resp.Body)
//	res, err := dec.Process(ctx, func(d stream.Delta) {
//	    fmt.Print(d.Content)
//	})
//	if err != nil {
//	    var se *stream.StreamError
//	    errors.As(err, &se)
//	}
//	fmt.Println(res.Thinking.Response)
package stream
