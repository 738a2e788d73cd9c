package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient implements MonitorClient over the health HTTP server.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ MonitorClient = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the given base URL
// (e.g. "http://localhost:3001").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Health fetches /health. A 503 "degraded" answer is returned as a report,
// not an error.
func (c *HTTPClient) Health(ctx context.Context) (*HealthReport, error) {
	var report HealthReport
	status, err := c.doJSON(ctx, "/health", &report, http.StatusOK, http.StatusServiceUnavailable)
	if err != nil {
		return nil, err
	}
	report.HTTPStatus = status
	return &report, nil
}

// Ready fetches /ready. Not-ready (503) is a normal answer.
func (c *HTTPClient) Ready(ctx context.Context) (*ReadyReport, error) {
	var report ReadyReport
	if _, err := c.doJSON(ctx, "/ready", &report, http.StatusOK, http.StatusServiceUnavailable); err != nil {
		return nil, err
	}
	return &report, nil
}

// Metrics returns the raw Prometheus exposition text.
func (c *HTTPClient) Metrics(ctx context.Context) (string, error) {
	body, _, err := c.get(ctx, "/metrics", http.StatusOK)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// --- internal helpers ---

// APIError represents an unexpected response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON GETs path and decodes the body into result when the status is one
// of accept.
func (c *HTTPClient) doJSON(ctx context.Context, path string, result any, accept ...int) (int, error) {
	body, status, err := c.get(ctx, path, accept...)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return 0, fmt.Errorf("decoding %s response: %w", path, err)
	}
	return status, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, accept ...int) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading response: %w", err)
	}

	for _, code := range accept {
		if resp.StatusCode == code {
			return body, resp.StatusCode, nil
		}
	}

	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return nil, 0, &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}
	return nil, 0, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
