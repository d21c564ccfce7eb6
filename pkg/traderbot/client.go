// Package traderbot is a Go client for the traderbot-server REST API.
package traderbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"traderbot/internal/api"
	"traderbot/internal/domain"
)

type (
	BacktestRequest  = api.BacktestRequest
	BacktestResponse = api.BacktestResponse
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("traderbot: %d %s", e.StatusCode, e.Message)
}

// Client talks to a traderbot-server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new traderbot API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// RunBacktest runs a backtest on the server and returns its stored result.
func (c *Client) RunBacktest(ctx context.Context, req BacktestRequest) (*BacktestResponse, error) {
	var resp BacktestResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/backtests", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListRuns returns recent backtest runs, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]domain.BacktestRun, error) {
	var out struct {
		Runs []domain.BacktestRun `json:"runs"`
	}
	path := "/api/v1/backtests"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

// GetRun returns one stored run with its trades.
func (c *Client) GetRun(ctx context.Context, id string) (*BacktestResponse, error) {
	var resp BacktestResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/backtests/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListSignals returns recent live trading decisions.
func (c *Client) ListSignals(ctx context.Context, strategyID string, limit int) ([]domain.SignalRecord, error) {
	q := url.Values{}
	if strategyID != "" {
		q.Set("strategy", strategyID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/signals"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Signals []domain.SignalRecord `json:"signals"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Signals, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
