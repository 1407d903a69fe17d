package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// Config holds remote client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// SelectRetries is how many times a failed read is retried. Writes are
	// never retried here; the offline queue owns that.
	SelectRetries uint64
	RetryBase     time.Duration
}

// Client talks to the shopmate server's collection API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a remote store client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (c *Client) Insert(ctx context.Context, collection string, row any) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, "/api/"+collection, row, http.StatusCreated, &out); err != nil {
		return nil, fmt.Errorf("insert %s: %w", collection, err)
	}
	return out, nil
}

func (c *Client) Update(ctx context.Context, collection string, where Filter, patch map[string]any) error {
	if err := where.Validate(); err != nil {
		return err
	}
	req := MutationRequest{Where: where, Patch: patch}
	if err := c.do(ctx, "/api/"+collection+"/update", req, http.StatusOK, &CountResponse{}); err != nil {
		return fmt.Errorf("update %s: %w", collection, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, collection string, where Filter) error {
	if err := where.Validate(); err != nil {
		return err
	}
	req := MutationRequest{Where: where}
	if err := c.do(ctx, "/api/"+collection+"/delete", req, http.StatusOK, &CountResponse{}); err != nil {
		return fmt.Errorf("delete %s: %w", collection, err)
	}
	return nil
}

// Select decodes the matching rows into dst, which must be a pointer to a
// slice. Transient failures are retried with exponential backoff.
func (c *Client) Select(ctx context.Context, collection string, where Filter, dst any) error {
	if err := where.Validate(); err != nil {
		return err
	}
	req := MutationRequest{Where: where}

	b := retry.WithMaxRetries(c.cfg.SelectRetries, retry.NewExponential(c.cfg.RetryBase))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		err := c.do(ctx, "/api/"+collection+"/select", req, http.StatusOK, dst)
		if err != nil && !IsTerminal(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("select %s: %w", collection, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, body any, want int, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var er ErrorResponse
	if err := json.Unmarshal(raw, &er); err != nil || er.Error == "" {
		er.Error = strings.TrimSpace(string(raw))
	}
	if resp.StatusCode == http.StatusNotFound && er.Code == "not_found" {
		return fmt.Errorf("%w: %s", ErrNotFound, er.Error)
	}
	return &Error{Status: resp.StatusCode, Code: er.Code, Message: er.Error}
}

var _ Store = (*Client)(nil)
