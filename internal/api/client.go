package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"atracker/internal/activity"
	"atracker/internal/aggregate"
)

// Client calls a running tracker's API. The CLI and the dashboard use it.
type Client struct {
	base string
	http *http.Client
}

// BaseURL turns a listen address into a URL a local client can dial.
// Wildcard hosts become the loopback address.
func BaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// NewClient creates a client for base, e.g. "http://127.0.0.1:8932".
func NewClient(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{base: base, http: &http.Client{Timeout: timeout}}
}

// APIError is a non-2xx reply.
type APIError struct {
	Status int
	ErrorResponse
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.ErrorResponse.Error)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr.ErrorResponse); err != nil {
			apiErr.ErrorResponse.Error = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func dayQuery(day string) url.Values {
	if day == "" {
		return nil
	}
	return url.Values{"date": {day}}
}

// Status fetches /api/status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Current fetches the open segment.
func (c *Client) Current(ctx context.Context) (*CurrentView, error) {
	var out CurrentView
	if err := c.do(ctx, http.MethodGet, "/api/current", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AppSummary fetches the per-app summary of day (YYYY-MM-DD, empty for today).
func (c *Client) AppSummary(ctx context.Context, day string) ([]aggregate.Group, error) {
	q := dayQuery(day)
	if q == nil {
		q = url.Values{}
	}
	q.Set("group", "app")
	var out []aggregate.Group
	if err := c.do(ctx, http.MethodGet, "/api/summary", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CategoryTotals fetches the category totals of day.
func (c *Client) CategoryTotals(ctx context.Context, day string) ([]aggregate.CategoryTotal, error) {
	var out []aggregate.CategoryTotal
	if err := c.do(ctx, http.MethodGet, "/api/categories/totals", dayQuery(day), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Focus fetches the focus report of day.
func (c *Client) Focus(ctx context.Context, day string) (*aggregate.FocusReport, error) {
	var out aggregate.FocusReport
	if err := c.do(ctx, http.MethodGet, "/api/focus", dayQuery(day), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Pause pauses tracking for minutes; zero pauses until Resume.
func (c *Client) Pause(ctx context.Context, minutes int) (*activity.PauseState, error) {
	var out activity.PauseState
	if err := c.do(ctx, http.MethodPost, "/api/pause", nil, pauseRequest{Minutes: minutes}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Resume clears a pause.
func (c *Client) Resume(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/resume", nil, nil, nil)
}
