// Package render calls the templated-PDF-rendering vendor. The vendor only
// ever returns expiring download URLs; permanence is the storage gateway's
// job.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Artifacts are requested with a short vendor-side TTL; anything we intend
// to keep is persisted to our own bucket well inside this window.
const expirationMinutes = 60

// Renderer produces a PDF from a vendor template and flat payload data.
type Renderer interface {
	Render(ctx context.Context, templateID string, data map[string]string) (string, error)
}

// APIError represents a vendor error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("render vendor: %s (status %d)", e.Message, e.Status)
}

// Client calls the rendering vendor over HTTP.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a vendor client with an explicit request timeout.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type renderRequest struct {
	TemplateID string            `json:"template_id"`
	ExportType string            `json:"export_type"`
	Expiration int               `json:"expiration"`
	Data       map[string]string `json:"data"`
}

type renderResponse struct {
	DownloadURL string `json:"download_url"`
	Error       string `json:"error"`
	Message     string `json:"message"`
}

// Render asks the vendor to fill templateID with data and returns the
// temporary download URL.
func (c *Client) Render(ctx context.Context, templateID string, data map[string]string) (string, error) {
	payload := renderRequest{
		TemplateID: templateID,
		ExportType: "json",
		Expiration: expirationMinutes,
		Data:       data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("render request: %w", err)
	}
	defer resp.Body.Close()

	var out renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && resp.StatusCode < 400 {
		return "", fmt.Errorf("decode render response: %w", err)
	}
	if resp.StatusCode >= 400 {
		msg := out.Error
		if msg == "" {
			msg = out.Message
		}
		if msg == "" {
			msg = resp.Status
		}
		return "", &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out.DownloadURL == "" {
		return "", &APIError{Status: resp.StatusCode, Message: "response missing download_url"}
	}
	return out.DownloadURL, nil
}
