// Package dbserver is a client for the camera data server: snapshot listings,
// snapshot and background image bytes, camera names and bulk deletion.
package dbserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/scv2-services/internal/httpc"
)

// Default timings.
const (
	DefaultAliveTimeout  = 10 * time.Second
	DefaultDeleteTimeout = 30 * time.Minute
	maxErrorBody         = 512
)

// Client talks to one data server.
type Client struct {
	baseURL       string
	http          *http.Client
	aliveTimeout  time.Duration
	deleteTimeout time.Duration
	logger        *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Client)

// WithHTTPClient replaces the shared httpc client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithAliveTimeout bounds the liveness check.
func WithAliveTimeout(d time.Duration) Option {
	return func(c *Client) { c.aliveTimeout = d }
}

// WithDeleteTimeout bounds a single per-camera delete request.
func WithDeleteTimeout(d time.Duration) Option {
	return func(c *Client) { c.deleteTimeout = d }
}

// New creates a client for the server at baseURL (e.g. "http://localhost:8050").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		http:          httpc.NewClient(0),
		aliveTimeout:  DefaultAliveTimeout,
		deleteTimeout: DefaultDeleteTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "dbserver.client")
	return c
}

// BaseURL returns the server URL the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// IsAlive reports whether the server answers its liveness route with a 200.
func (c *Client) IsAlive(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.aliveTimeout)
	defer cancel()

	url := IsAliveURL(c.baseURL)
	resp, err := c.get(ctx, url)
	if err != nil {
		c.logger.Debug("liveness check failed", "url", url, "error", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("liveness check bad status", "url", url, "status", resp.StatusCode)
		return false
	}
	return true
}

// WaitForConnection polls IsAlive up to attempts times, sleeping delay
// between tries. attempts <= 0 means retry until ctx is done.
func (c *Client) WaitForConnection(ctx context.Context, attempts int, delay time.Duration) error {
	for i := 0; attempts <= 0 || i < attempts; i++ {
		if c.IsAlive(ctx) {
			return nil
		}

		last := attempts > 0 && i+1 >= attempts
		c.logger.Warn("no connection to dbserver", "url", c.baseURL, "attempt", i+1, "retrying", !last)
		if last {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%w: %s", ErrUnreachable, c.baseURL)
}

// SnapshotTimes lists the snapshot epoch-ms values for camera in [startEMS, endEMS].
// The server's order is returned as-is.
func (c *Client) SnapshotTimes(ctx context.Context, camera string, startEMS, endEMS int64) ([]int64, error) {
	var times []int64
	if err := c.getJSON(ctx, SnapshotTimesURL(c.baseURL, camera, startEMS, endEMS), &times); err != nil {
		return nil, err
	}
	return times, nil
}

// SnapshotImage downloads the encoded image stored for camera at ems.
func (c *Client) SnapshotImage(ctx context.Context, camera string, ems int64) ([]byte, error) {
	return c.getBytes(ctx, SnapshotImageURL(c.baseURL, camera, ems))
}

// BackgroundImage downloads the background image active at targetEMS.
func (c *Client) BackgroundImage(ctx context.Context, camera string, targetEMS int64) ([]byte, error) {
	return c.getBytes(ctx, BackgroundImageURL(c.baseURL, camera, targetEMS))
}

// CameraNames lists every camera on the server.
func (c *Client) CameraNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.getJSON(ctx, CameraNamesURL(c.baseURL), &names); err != nil {
		return nil, err
	}
	return names, nil
}

// DeleteBefore asks the server to drop all realtime data for camera older than
// cutoffEMS. It returns how long the server took, even on failure.
func (c *Client) DeleteBefore(ctx context.Context, camera string, cutoffEMS int64) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, c.deleteTimeout)
	defer cancel()

	start := time.Now()
	url := DeleteURL(c.baseURL, camera, cutoffEMS)
	resp, err := c.get(ctx, url)
	if err != nil {
		return time.Since(start), fmt.Errorf("delete %s: %w", camera, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return time.Since(start), newAPIError(resp, url)
	}
	io.Copy(io.Discard, resp.Body)
	return time.Since(start), nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.http.Do(req)
}

func (c *Client) getBytes(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	resp, err := c.get(ctx, url)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newAPIError(resp, url)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func newAPIError(resp *http.Response, url string) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{
		StatusCode: resp.StatusCode,
		URL:        url,
		Body:       strings.TrimSpace(string(body)),
	}
}
