// Package backend is the client of the device registry REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"meshdash/internal/device"
)

// DefaultTimeout bounds a single backend request.
const DefaultTimeout = 30 * time.Second

// StatusError is a non-200 response. Its text is what the user sees.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Status: %d", e.Code)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout bounds each request. Zero disables the bound.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client talks to the /v1 device API.
type Client struct {
	base    string
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a client for the API rooted at baseURL, e.g.
// "http://localhost:8081/v1".
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "backend")
	return c, nil
}

type addressRequest struct {
	Address string `json:"address"`
}

// ListDevices fetches the whole collection.
func (c *Client) ListDevices(ctx context.Context) (map[string]device.Device, error) {
	var out map[string]device.Device
	if err := c.do(ctx, http.MethodGet, "/devices", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = make(map[string]device.Device)
	}
	return out, nil
}

// SaveDefaults replaces the defaults of device id.
func (c *Client) SaveDefaults(ctx context.Context, id string, def device.Defaults) error {
	return c.do(ctx, http.MethodPost, devicePath(id, "defaults"), def, nil)
}

// SaveConfig replaces the config of device id.
func (c *Client) SaveConfig(ctx context.Context, id string, cfg device.Config) error {
	return c.do(ctx, http.MethodPost, devicePath(id, "config"), cfg, nil)
}

// SaveDevice replaces the whole record of device id.
func (c *Client) SaveDevice(ctx context.Context, id string, dev device.Device) error {
	return c.do(ctx, http.MethodPost, devicePath(id, ""), dev, nil)
}

// PushDefaults asks the backend to send the saved defaults to the device at address.
func (c *Client) PushDefaults(ctx context.Context, id, address string) error {
	return c.do(ctx, http.MethodPost, devicePath(id, "push"), addressRequest{Address: address}, nil)
}

// RefreshState polls the device at address and returns its state.
func (c *Client) RefreshState(ctx context.Context, id, address string) (*device.State, error) {
	var st device.State
	if err := c.do(ctx, http.MethodPost, devicePath(id, "refresh_state"), addressRequest{Address: address}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// DeleteDevice removes device id from the registry.
func (c *Client) DeleteDevice(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, devicePath(id, ""), nil, nil)
}

func devicePath(id, sub string) string {
	p := "/devices/" + url.PathEscape(id)
	if sub != "" {
		p += "/" + sub
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed", "method", method, "path", path, "err", err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("request", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &StatusError{Code: resp.StatusCode}
	}
	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
