// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversation threads to Markdown or JSON files.
//
// # Usage
//
//	exp, err := export.ForFormat("md", opts)
//	path, err := export.ExportToFile(thread, exp, opts)
package export
