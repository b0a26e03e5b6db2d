// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for threads, messages and edits.
//
// A Thread is one conversation. Each Message in it is a question slot whose
// history is a non-empty, append-only list of Edits; the last Edit is the one
// shown by default. Edits pair a question with the answer a model produced.
//
// # Key Types
//
//   - Thread: conversation with identity, title and messages
//   - ThreadInfo: sidebar listing row (id, title, start time)
//   - Message: question slot holding its edit history
//   - Edit: one question/answer/model revision of a message
//   - Exchange: a completed question/answer pair about to be persisted
//   - Receipt: what the backend acknowledged for a persisted exchange
//   - ModelInfo: a locally served model offered for selection
//
// # Usage
//
//	th := model.NewProvisionalThread("New Chat", model.DefaultModelID)
//	th.IsProvisional() // true until the backend issues an id
//
//	msg := th.MessageByID("m1")
//	idx, ok := model.StepEditIndex(idx, +1, len(msg.Edits))
package model
