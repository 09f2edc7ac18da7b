// Package backend talks to the WhatsApp bot backend that owns the session.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1 MB

// Endpoint paths exposed by the bot backend.
const (
	PathQR     = "/api/qr"
	PathStatus = "/api/status"
	PathUsers  = "/api/users"
	PathLogout = "/api/logout"
)

// StatusError is returned when the backend answers with a non-2xx code.
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s: unexpected status %d", e.Path, e.Code)
}

// QRResponse is the body of GET /api/qr.
type QRResponse struct {
	QR interface{} `json:"qr"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status interface{} `json:"status"`
}

// UsersResponse is the body of GET /api/users.
type UsersResponse struct {
	Count interface{} `json:"count"`
}

// Client issues the four GET requests the dashboard needs. It sends no
// headers beyond what net/http adds and no authentication.
type Client struct {
	mu      sync.RWMutex
	origin  string
	timeout time.Duration
	http    *http.Client
}

// NewClient creates a client for the given origin. A zero timeout disables
// the per-request deadline.
func NewClient(origin string, timeout time.Duration) *Client {
	return &Client{
		origin:  strings.TrimRight(origin, "/"),
		timeout: timeout,
		http:    &http.Client{},
	}
}

// Update swaps origin and timeout, used on config hot-reload.
func (c *Client) Update(origin string, timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.origin = strings.TrimRight(origin, "/")
	c.timeout = timeout
}

// Origin returns the backend origin currently in use.
func (c *Client) Origin() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.origin
}

// FetchQR returns the current QR value. An absent, null, empty or
// non-string qr field yields ("", nil).
func (c *Client) FetchQR(ctx context.Context) (string, error) {
	var res QRResponse
	if err := c.get(ctx, PathQR, &res); err != nil {
		return "", err
	}
	qr, _ := res.QR.(string)
	return qr, nil
}

// FetchStatus returns the raw status string. Non-string values are
// formatted as-is so they still count as a (non-active) status; a missing
// or null field yields "".
func (c *Client) FetchStatus(ctx context.Context) (string, error) {
	var res StatusResponse
	if err := c.get(ctx, PathStatus, &res); err != nil {
		return "", err
	}
	switch v := res.Status.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return fmt.Sprint(v), nil
	}
}

// FetchUserCount returns the connected-user count, 0 when the field is
// missing, not a number or not positive.
func (c *Client) FetchUserCount(ctx context.Context) (int, error) {
	var res UsersResponse
	if err := c.get(ctx, PathUsers, &res); err != nil {
		return 0, err
	}
	n, ok := res.Count.(float64)
	if !ok || n <= 0 {
		return 0, nil
	}
	if n >= math.MaxInt {
		return math.MaxInt, nil
	}
	return int(n), nil
}

// Logout asks the backend to close the WhatsApp session. The body is ignored.
func (c *Client) Logout(ctx context.Context) error {
	return c.get(ctx, PathLogout, nil)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	c.mu.RLock()
	origin, timeout := c.origin, c.timeout
	c.mu.RUnlock()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+path, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxResponseBodySize)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, body)
		return &StatusError{Path: path, Code: resp.StatusCode}
	}

	if out == nil {
		io.Copy(io.Discard, body)
		return nil
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
