// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attach holds files the user has attached to a question.
//
// Attachments are validated (type and size) before any network call. When a
// submission carries a PDF, the question is routed to the context-augmented
// endpoint and the first PDF is sent with it: uploaded as a file when it is
// local, or passed by path when it already lives on the backend's disk.
package attach
