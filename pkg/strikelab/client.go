// Package strikelab is a Go client for the strikelab-server HTTP API.
package strikelab

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
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("strikelab: %d %s: %s", e.Status, e.Code, e.Message)
}

// Client provides a Go SDK for interacting with the strikelab-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new strikelab API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Health reports whether the server answers /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Backtest runs one backtest over caller-supplied series.
func (c *Client) Backtest(ctx context.Context, req BacktestRequest) (*Result, error) {
	var res Result
	if err := c.do(ctx, http.MethodPost, "/api/backtest", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Optimize sweeps a target and stop-loss grid over caller-supplied series.
func (c *Client) Optimize(ctx context.Context, req OptimizeRequest) (*OptimizeResponse, error) {
	var res OptimizeResponse
	if err := c.do(ctx, http.MethodPost, "/api/optimize", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Strategies lists the registered strategies.
func (c *Client) Strategies(ctx context.Context) ([]Strategy, error) {
	var res struct {
		Strategies []Strategy `json:"strategies"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/strategies", nil, &res); err != nil {
		return nil, err
	}
	return res.Strategies, nil
}

// RunStrategy runs a registered strategy over stored bars.
func (c *Client) RunStrategy(ctx context.Context, name string, req RunRequest) (*Report, error) {
	var res Report
	if err := c.do(ctx, http.MethodPost, "/api/strategies/"+url.PathEscape(name)+"/run", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Runs lists persisted sweeps, newest first. Empty filters match all.
func (c *Client) Runs(ctx context.Context, strategy, symbol string, limit int) ([]Run, error) {
	q := url.Values{}
	if strategy != "" {
		q.Set("strategy", strategy)
	}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/runs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var res []Run
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// Run fetches one persisted sweep with its cells.
func (c *Client) Run(ctx context.Context, id string) (*Run, error) {
	var res Run
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// MaxPain sweeps a stored expiry.
func (c *Client) MaxPain(ctx context.Context, req MaxPainRequest) (*MaxPainResponse, error) {
	var res MaxPainResponse
	if err := c.do(ctx, http.MethodPost, "/api/maxpain", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PutCallRatio returns the put-call ratio series of a stored expiry. An
// empty expiry asks for the series stitched over every stored expiry.
func (c *Client) PutCallRatio(ctx context.Context, symbol, expiry string, otm bool) (*PCRResponse, error) {
	q := url.Values{"symbol": {symbol}}
	if expiry != "" {
		q.Set("expiry", expiry)
	}
	if otm {
		q.Set("otm", "true")
	}
	var res PCRResponse
	if err := c.do(ctx, http.MethodGet, "/api/pcr?"+q.Encode(), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
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

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Code: "http_error", Message: resp.Status}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&env) == nil && env.Error.Code != "" {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
