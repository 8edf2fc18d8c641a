// Package hkquant provides a Go SDK for interacting with the hkquant-server
// API.
package hkquant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"hkquant/internal/agent"
	"hkquant/internal/backtest"
	"hkquant/internal/domain"
	"hkquant/internal/httpapi"
	"hkquant/internal/optimize"
	"hkquant/internal/util"
)

// Client provides a Go SDK for interacting with the hkquant-server API.
// Idempotent GETs are retried with exponential backoff.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	retryDelay  time.Duration
	limiter     *util.RateLimiter
}

// NewClient creates a new hkquant API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxAttempts: 3,
		retryDelay:  200 * time.Millisecond,
	}
}

// WithRateLimit caps outbound requests at perMinute, smoothing polling loops
// shared between bot and dashboard consumers. It returns the client for
// chaining.
func (c *Client) WithRateLimit(perMinute int) *Client {
	c.limiter = util.NewRateLimiter(perMinute)
	return c
}

// MarketStatus reports whether the exchange is currently in session.
func (c *Client) MarketStatus(ctx context.Context) (httpapi.MarketStatus, error) {
	var out httpapi.MarketStatus
	err := c.getJSON(ctx, "/api/market/status", &out)
	return out, err
}

// Symbols lists all symbols with stored bar data.
func (c *Client) Symbols(ctx context.Context) ([]string, error) {
	var out []string
	err := c.getJSON(ctx, "/api/symbols", &out)
	return out, err
}

// Bars retrieves daily bars for a symbol within [start, end].
func (c *Client) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	path := fmt.Sprintf("/api/bars/%s?start=%s&end=%s",
		url.PathEscape(symbol), start.Format("2006-01-02"), end.Format("2006-01-02"))
	var out []domain.Bar
	err := c.getJSON(ctx, path, &out)
	return out, err
}

// Backtest runs a backtest on the server and returns the full result.
func (c *Client) Backtest(ctx context.Context, req httpapi.BacktestRequest) (*backtest.Result, error) {
	var out backtest.Result
	if err := c.postJSON(ctx, "/api/backtest", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Risk requests a portfolio risk report with stress test results.
func (c *Client) Risk(ctx context.Context, req httpapi.RiskRequest) (*httpapi.RiskResponse, error) {
	var out httpapi.RiskResponse
	if err := c.postJSON(ctx, "/api/risk", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ParamSets lists the names of saved parameter sets.
func (c *Client) ParamSets(ctx context.Context) ([]string, error) {
	var out []string
	err := c.getJSON(ctx, "/api/params", &out)
	return out, err
}

// ParamSet retrieves one saved parameter set by name.
func (c *Client) ParamSet(ctx context.Context, name string) (optimize.Params, error) {
	var out optimize.Params
	err := c.getJSON(ctx, "/api/params/"+url.PathEscape(name), &out)
	return out, err
}

// SaveParamSet stores a parameter set under the given name.
func (c *Client) SaveParamSet(ctx context.Context, name string, p optimize.Params) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.baseURL+"/api/params/"+url.PathEscape(name), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

// DeleteParamSet removes a saved parameter set.
func (c *Client) DeleteParamSet(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/api/params/"+url.PathEscape(name), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Runs lists recent optimization runs, newest first.
func (c *Client) Runs(ctx context.Context, limit int) ([]optimize.Run, error) {
	path := "/api/optimize/runs"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var out []optimize.Run
	err := c.getJSON(ctx, path, &out)
	return out, err
}

// Run retrieves one optimization run by ID.
func (c *Client) Run(ctx context.Context, id string) (optimize.Run, error) {
	var out optimize.Run
	err := c.getJSON(ctx, "/api/optimize/runs/"+url.PathEscape(id), &out)
	return out, err
}

// Agents lists live agent metric snapshots.
func (c *Client) Agents(ctx context.Context) ([]agent.Metrics, error) {
	var out []agent.Metrics
	err := c.getJSON(ctx, "/api/agents", &out)
	return out, err
}

// getJSON issues a GET with retries and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return util.Retry(ctx, c.maxAttempts, c.retryDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return err
		}
		return c.do(req, out)
	})
}

// postJSON issues a single POST (not retried; backtests are not idempotent).
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return err
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", req.Method, req.URL.Path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
