// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat owns conversation threads and drives question submission.
//
// The Manager keeps the local copy of every thread, the active thread
// pointer, and per-message edit cursors. The backend is the system of record:
// after every successful submission the thread's messages are replaced
// wholesale with the backend's conversation.
//
// # Thread Lifecycle
//
//	Provisional --create thread--> Persisting --ok--> Persisted
//	                                   |
//	                                   +--error--> Provisional
//
// A provisional thread carries a "temp_" placeholder id. Its first
// submission creates it on the backend and migrates it to the server id;
// the active pointer follows only if it still points at the placeholder.
//
// # Submission
//
//	res, err := mgr.Submit(ctx, chat.SubmitRequest{
//	    ThreadID: mgr.ActiveID(),
//	    Question: "Hello",
//	    Model:    "qwen3:0.6b",
//	})
//
// Only one submission may run per thread; a second is rejected with
// ErrSubmissionInFlight. Streamed text is readable through Live while the
// answer grows, and observers registered with SetUpdateCallback are told
// about every delta, migration, replacement and failure.
package chat
