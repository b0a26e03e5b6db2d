// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// health.go - backend and database health check.
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnhealthy is returned when the backend answers but reports a problem.
var ErrUnhealthy = errors.New("backend reports unhealthy")

// HealthResult is the JSON output of the health command.
type HealthResult struct {
	URL       string `json:"url"`
	Reachable bool   `json:"reachable"`
	Status    string `json:"status,omitempty"`
	Database  string `json:"database,omitempty"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HandleHealth checks the backend.
func (a *App) HandleHealth(ctx context.Context) error {
	start := time.Now()
	h, err := a.Client.Health(ctx)
	latency := time.Since(start)

	result := HealthResult{URL: a.Client.BaseURL(), LatencyMs: latency.Milliseconds()}
	if err == nil {
		result.Reachable = true
		result.Status = h.Status
		result.Database = h.Database
		result.Message = h.Message
		if !h.Healthy() {
			err = fmt.Errorf("%w: %s", ErrUnhealthy, h.Status)
		}
	}
	if err != nil {
		result.Error = err.Error()
	}

	if a.Args.JSON {
		if jsonErr := outputJSON(a.Out, result); jsonErr != nil {
			return jsonErr
		}
		return NewCommandError("health", "check", err)
	}

	fmt.Fprintln(a.Out, RenderConditional(TitleStyle, "Backend Health"))
	fmt.Fprintln(a.Out, RenderSeparator(30))
	fmt.Fprintf(a.Out, "%s%s\n", RenderLabel("URL:"), result.URL)
	if !result.Reachable {
		fmt.Fprintf(a.Out, "%s%s\n", RenderLabel("Status:"), RenderStatus("unreachable"))
		return NewCommandError("health", "check", err)
	}
	fmt.Fprintf(a.Out, "%s%s %s\n", RenderLabel("Status:"), RenderStatus(result.Status), result.Status)
	if result.Database != "" {
		fmt.Fprintf(a.Out, "%s%s %s\n", RenderLabel("Database:"), RenderStatus(result.Database), result.Database)
	}
	if result.Message != "" {
		fmt.Fprintf(a.Out, "%s%s\n", RenderLabel("Message:"), result.Message)
	}
	fmt.Fprintf(a.Out, "%s%s\n", RenderLabel("Latency:"), formatDurationShort(latency))
	return NewCommandError("health", "check", err)
}
