package seed

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

// Client calls the medrank HTTP API.
type Client struct {
	base   string
	client *http.Client
}

// NewClient returns a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base:   baseURL,
		client: &http.Client{Timeout: timeout},
	}
}

// Health checks the liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, healthPath, nil, nil)
}

// Import uploads one batch of doctors as a JSON array.
func (c *Client) Import(ctx context.Context, batch any) (importOutcome, error) {
	var out importOutcome
	err := c.do(ctx, http.MethodPost, importPath, batch, &out)
	return out, err
}

// Recalculate rescores the catalog under profileID.
func (c *Client) Recalculate(ctx context.Context, profileID string) (recalculation, error) {
	path := recalculatePath
	if profileID != "" {
		path += "?profile_id=" + url.QueryEscape(profileID)
	}
	var out recalculation
	err := c.do(ctx, http.MethodPost, path, nil, &out)
	return out, err
}

// Ranking fetches the full ranking report under profileID.
func (c *Client) Ranking(ctx context.Context, profileID string) ([]Entry, error) {
	req := map[string]any{"report_type": "ranking"}
	if profileID != "" {
		req["profile_id"] = profileID
	}
	var rep rankingReport
	if err := c.do(ctx, http.MethodPost, reportsPath, req, &rep); err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(rep.Data.Rankings))
	for _, r := range rep.Data.Rankings {
		entries = append(entries, r.Score)
	}
	return entries, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
