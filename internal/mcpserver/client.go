package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is a thin HTTP client for the txnsentinel API, used by the MCP
// tool handlers. It returns raw JSON so the handlers control formatting.
type Client struct {
	baseURL string
	http    *http.Client
}

// Config holds client configuration.
type Config struct {
	// APIURL is the base URL of the txnsentinel API (e.g. "http://localhost:8080").
	APIURL string
}

// NewClient creates a new API client.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL: cfg.APIURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest performs an HTTP request and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// ListAnomalies fetches flagged transactions, highest scores first.
func (c *Client) ListAnomalies(ctx context.Context, accountID, minScore string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if accountID != "" {
		q.Set("accountId", accountID)
	}
	if minScore != "" {
		q.Set("minScore", minScore)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	path := "/v1/anomalies"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return c.doRequest(ctx, http.MethodGet, path, nil)
}

// ListTransactions fetches recent transactions, newest first.
func (c *Client) ListTransactions(ctx context.Context, accountID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if accountID != "" {
		q.Set("accountId", accountID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	path := "/v1/transactions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return c.doRequest(ctx, http.MethodGet, path, nil)
}

// GetTransaction fetches a single transaction by ID.
func (c *Client) GetTransaction(ctx context.Context, id string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/transactions/"+url.PathEscape(id), nil)
}

// ExplainTransaction requests an on-demand explanation for a transaction.
func (c *Client) ExplainTransaction(ctx context.Context, id string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/insights/"+url.PathEscape(id), nil)
}

// RecomputeScores rescans stored history over an optional window.
// Empty bounds are omitted from the request and mean unbounded.
func (c *Client) RecomputeScores(ctx context.Context, from, to string) (json.RawMessage, error) {
	body := map[string]string{}
	if from != "" {
		body["from"] = from
	}
	if to != "" {
		body["to"] = to
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/recompute", body)
}

// GetStats fetches aggregate pipeline statistics.
func (c *Client) GetStats(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/stats", nil)
}
