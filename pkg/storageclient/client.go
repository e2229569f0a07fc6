/**
 * @description
 * This package provides a client for the object storage service that hosts
 * customer document images. It uploads one file per request as multipart form
 * data and returns the stored object's public id and delivery URL.
 *
 * @dependencies
 * - bytes, context, encoding/json, mime/multipart, net/http: Standard Go libraries.
 */
package storageclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned when no upload URL is set.
var ErrNotConfigured = errors.New("object storage upload url is not configured")

// Client is a client for the object storage upload API.
type Client struct {
	UploadURL  string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new storage client.
func NewClient(uploadURL, apiKey string) *Client {
	return &Client{
		UploadURL: strings.TrimSpace(uploadURL),
		APIKey:    apiKey,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// UploadResult identifies a stored object.
type UploadResult struct {
	PublicID string `json:"public_id"`
	URL      string `json:"url"`
}

// ErrorResponse represents an error from the storage API.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("storage api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("storage api error (status %d)", e.StatusCode)
}

// Upload sends content to the storage service under filename.
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader) (*UploadResult, error) {
	if c.UploadURL == "" {
		return nil, ErrNotConfigured
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to buffer upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.UploadURL, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute upload request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &ErrorResponse{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(respBody, apiErr)
		return nil, apiErr
	}

	var result UploadResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	if result.PublicID == "" || result.URL == "" {
		return nil, errors.New("storage api returned an incomplete upload result")
	}
	return &result, nil
}
