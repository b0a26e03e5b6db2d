// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/jeranaias/ragchat/internal/attach"
	"github.com/jeranaias/ragchat/internal/stream"
)

// =============================================================================
// STREAMING INFERENCE
// =============================================================================

// Ask starts a direct inference call. On success the caller owns the
// returned body and must close it.
func (c *Client) Ask(ctx context.Context, question, modelName string) (io.ReadCloser, error) {
	data, err := json.Marshal(inferenceRequest{Question: question, Model: modelName})
	if err != nil {
		return nil, &stream.StreamError{Message: "failed to marshal request", Err: err}
	}
	return c.openStream(ctx, "/llm_call", bytes.NewReader(data), "application/json")
}

// AskWithContext starts a context-augmented inference call. A local pdf is
// uploaded as pdf_file; a remote one is sent by path as pdf_path. With a nil
// pdf the backend answers from its existing index.
func (c *Client) AskWithContext(ctx context.Context, question, modelName string, pdf *attach.Attachment) (io.ReadCloser, error) {
	body, contentType, err := ragForm(question, modelName, pdf)
	if err != nil {
		return nil, &stream.StreamError{Message: "failed to build upload", Err: err}
	}
	return c.openStream(ctx, "/rag/", body, contentType)
}

// openStream issues a streaming POST. Failures before the body is handed
// over are returned as *stream.StreamError.
func (c *Client) openStream(ctx context.Context, path string, body io.Reader, contentType string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, body)
	if err != nil {
		return nil, &stream.StreamError{Message: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		c.logger.Debug("stream request failed", "path", path, "error", err)
		return nil, &stream.StreamError{Message: "inference request failed", Err: transportError(err)}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &stream.StreamError{
			Status:  resp.StatusCode,
			Message: detailMessage(resp),
		}
	}

	c.logger.Debug("stream opened", "path", path)
	return resp.Body, nil
}

// ragForm builds the multipart body for the context-augmented call.
func ragForm(question, modelName string, pdf *attach.Attachment) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("question", question); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("model", modelName); err != nil {
		return nil, "", err
	}

	if pdf != nil {
		if pdf.Remote {
			if err := w.WriteField("pdf_path", pdf.Path); err != nil {
				return nil, "", err
			}
		} else if err := writeFilePart(w, pdf); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func writeFilePart(w *multipart.Writer, pdf *attach.Attachment) error {
	f, err := os.Open(pdf.Path)
	if err != nil {
		return fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()

	name := pdf.Name
	if name == "" {
		name = filepath.Base(pdf.Path)
	}
	part, err := w.CreateFormFile("pdf_file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read attachment: %w", err)
	}
	return nil
}
