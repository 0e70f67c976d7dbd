// Package docling provides a client for a Docling-style document
// conversion service: binary document in, extracted text plus a
// structured JSON representation out.
package docling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// Client is a client for the document conversion HTTP API.
type Client struct {
	BaseURL string
	client  *http.Client
}

// NewClient creates a new document conversion client.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		client:  http.DefaultClient,
	}
}

// ConvertResult holds the output of a document conversion.
type ConvertResult struct {
	// Content is the extracted text, rendered as markdown.
	Content string
	// Structured is the service's JSON document representation, stored
	// verbatim.
	Structured string
	// Metadata carries document properties reported by the service
	// (page count, title, language).
	Metadata map[string]any
}

// convertResponse mirrors the conversion API's response shape.
type convertResponse struct {
	Content  string          `json:"content"`
	Document json.RawMessage `json:"document"`
	Metadata map[string]any  `json:"metadata"`
	Error    string          `json:"error"`
}

// Convert sends a document to the conversion service and returns the
// extracted content and structured representation.
func (c *Client) Convert(ctx context.Context, filename, contentType string, data []byte) (*ConvertResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document payload")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write document payload: %w", err)
	}
	if err := writer.WriteField("content_type", contentType); err != nil {
		return nil, fmt.Errorf("failed to write content_type field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	url := fmt.Sprintf("%s/v1/convert", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var converted convertResponse
	if err := json.NewDecoder(resp.Body).Decode(&converted); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if converted.Error != "" {
		return nil, fmt.Errorf("conversion failed: %s", converted.Error)
	}

	return &ConvertResult{
		Content:    converted.Content,
		Structured: string(converted.Document),
		Metadata:   converted.Metadata,
	}, nil
}
