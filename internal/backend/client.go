// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/ragchat/internal/model"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the backend client.
type ClientConfig struct {
	// BaseURL is the API base URL (default: http://localhost:8001)
	BaseURL string

	// Timeout for storage requests (default: 30s). Streams are bounded
	// only by the caller's context.
	Timeout time.Duration

	// RequestsPerSecond paces storage requests (default: 20)
	RequestsPerSecond float64

	// Burst is the limiter bucket size (default: 10)
	Burst int

	// Logger receives request diagnostics (default: slog.Default())
	Logger *slog.Logger
}

// DefaultBaseURL is where the backend listens by default.
const DefaultBaseURL = "http://localhost:8001"

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:           DefaultBaseURL,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 20,
		Burst:             10,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the chat backend.
//
// The Client is safe for concurrent use.
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
	limiter      *rate.Limiter
	logger       *slog.Logger
}

// NewClient creates a backend client. Zero config fields take defaults.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.Burst == 0 {
		cfg.Burst = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		config:       &cfg,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{},
		limiter:      rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:       cfg.Logger.With("component", "backend"),
	}
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// THREAD OPERATIONS
// =============================================================================

// CreateThread creates an empty thread and returns its listing row.
func (c *Client) CreateThread(ctx context.Context) (*model.ThreadInfo, error) {
	var resp ThreadResponse
	if err := c.doJSON(ctx, http.MethodPost, "/threads", nil, &resp, "create thread"); err != nil {
		return nil, err
	}
	if resp.ThreadID == "" {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "create thread: response has no thread_id"}
	}
	info := resp.Info()
	return &info, nil
}

// ListThreads returns every thread, newest first.
func (c *Client) ListThreads(ctx context.Context) ([]model.ThreadInfo, error) {
	var resp []ThreadResponse
	if err := c.doJSON(ctx, http.MethodGet, "/threads/titles", nil, &resp, "list threads"); err != nil {
		return nil, err
	}
	infos := make([]model.ThreadInfo, 0, len(resp))
	for _, r := range resp {
		infos = append(infos, r.Info())
	}
	return infos, nil
}

// GetConversation returns the full history of a thread.
func (c *Client) GetConversation(ctx context.Context, threadID string) (*model.Thread, error) {
	var resp ConversationResponse
	path := "/conversations/" + url.PathEscape(threadID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp, "get conversation"); err != nil {
		return nil, err
	}
	if resp.ThreadID == "" {
		resp.ThreadID = threadID
	}
	return resp.Thread(), nil
}

// GetMessageEdits returns the edit history of one message.
func (c *Client) GetMessageEdits(ctx context.Context, threadID, messageID string) (*model.Message, error) {
	var resp MessageEditsResponse
	path := "/conversations/" + url.PathEscape(threadID) + "/" + url.PathEscape(messageID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp, "get message edits"); err != nil {
		return nil, err
	}
	if resp.MessageID == "" {
		resp.MessageID = messageID
	}
	return resp.Message(), nil
}

// CreateMessage persists a new question/answer pair in a thread.
func (c *Client) CreateMessage(ctx context.Context, threadID string, ex model.Exchange) (*model.Receipt, error) {
	var resp ReceiptResponse
	path := "/conversations/" + url.PathEscape(threadID) + "/"
	if err := c.doJSON(ctx, http.MethodPost, path, messageRequest{newExchangeRequest(ex), ex.First}, &resp, "create message"); err != nil {
		return nil, err
	}
	if resp.ThreadID == "" {
		resp.ThreadID = threadID
	}
	return resp.Receipt(), nil
}

// CreateEdit persists a new revision of an existing message.
func (c *Client) CreateEdit(ctx context.Context, messageID string, ex model.Exchange) (*model.Receipt, error) {
	var resp ReceiptResponse
	path := "/conversations/" + url.PathEscape(messageID) + "/edits"
	if err := c.doJSON(ctx, http.MethodPost, path, newExchangeRequest(ex), &resp, "create edit"); err != nil {
		return nil, err
	}
	if resp.MessageID == "" {
		resp.MessageID = messageID
	}
	return resp.Receipt(), nil
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// Health reports backend and database status. An unhealthy backend answers
// 503 with the report in its error detail; that report is returned along
// with the error.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.send(ctx, http.MethodGet, "/health", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var body struct {
			Detail struct {
				Status   string `json:"status"`
				Database string `json:"database"`
				Error    string `json:"error"`
			} `json:"detail"`
		}
		report := &HealthResponse{Status: "unhealthy"}
		if json.Unmarshal(data, &body) == nil && body.Detail.Status != "" {
			report = &HealthResponse{
				Status:   body.Detail.Status,
				Database: body.Detail.Database,
				Message:  body.Detail.Error,
			}
		}
		return report, &ClientError{
			Type:    statusType(resp.StatusCode),
			Status:  resp.StatusCode,
			Message: "health check: " + resp.Status,
		}
	}

	var report HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "health check: failed to decode response", Cause: err}
	}
	return &report, nil
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

// send paces and issues a storage request.
func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, transportError(ctxErr)
		}
		return nil, &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", method, "path", path, "error", err)
		return nil, transportError(err)
	}
	c.logger.Debug("request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))
	return resp, nil
}

// doJSON sends an optional JSON body and decodes a JSON reply into out.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, op string) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &ClientError{Type: ErrTypeInvalidRequest, Message: op + ": failed to marshal request", Cause: err}
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.send(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: op + ": failed to decode response", Cause: err}
	}
	return nil
}
