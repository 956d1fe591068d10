// Package agentctl is a thin HTTP client for the agent API.
package agentctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gemini_agent_api/backend/go/internal/models"
)

// DefaultServer is the API address used when none is given.
const DefaultServer = "http://localhost:8000"

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Body       models.ErrorResponse
}

func (e *APIError) Error() string {
	msg := e.Body.Error
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Body.Detail != "" {
		msg += ": " + e.Body.Detail
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, msg)
}

// Client talks to one agent API server.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient returns a client for server with a generous timeout, since model calls are slow.
func NewClient(server, apiKey string) *Client {
	if server == "" {
		server = DefaultServer
	}
	return &Client{
		BaseURL:    strings.TrimRight(server, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 3 * time.Minute},
	}
}

// Do sends body as JSON and returns the raw response body.
// A nil body sends no payload.
func (c *Client) Do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error creating JSON payload: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", c.BaseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, &apiErr.Body)
		return nil, apiErr
	}
	return data, nil
}

// AgentPath returns the escaped path of one agent resource.
func AgentPath(name string, suffix ...string) string {
	return "/agents/" + url.PathEscape(name) + strings.Join(suffix, "")
}
