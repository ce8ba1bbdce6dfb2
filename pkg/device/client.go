// Package device talks to a HAN bridge over plain HTTP.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/hanbridge/pkg/common"
	"github.com/raterudder/hanbridge/pkg/log"
	"github.com/raterudder/hanbridge/pkg/types"
)

const (
	// DefaultTimeout bounds a single request including reading the body.
	DefaultTimeout = 5 * time.Second

	// no valid device response is anywhere near this large
	maxBodySize = 1 << 20
)

// Client fetches JSON payloads from a device.
type Client struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
}

// New returns a client for the device at host (host or host:port, optionally
// prefixed with http://).
func New(host string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		client:  common.HTTPClient(timeout),
		baseURL: baseURL(host),
		timeout: timeout,
	}
}

// Configured sets up flags for the device client and returns the instance.
func Configured() *Client {
	c := &Client{}
	host := lflag.RequiredString("han-host", "Address of the HAN bridge (host or host:port)")
	timeout := lflag.Duration("han-timeout", DefaultTimeout, "Timeout for a single request to the HAN bridge")

	lflag.Do(func() {
		c.timeout = *timeout
		if c.timeout <= 0 {
			c.timeout = DefaultTimeout
		}
		c.client = common.HTTPClient(c.timeout)
		c.baseURL = baseURL(*host)
	})

	return c
}

func baseURL(host string) string {
	host = strings.TrimSpace(host)
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return strings.TrimRight(host, "/")
}

// Validate ensures the configuration is valid.
func (c *Client) Validate() error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("failed to parse han-host (%s): %w", c.baseURL, err)
	}
	if u.Host == "" {
		return fmt.Errorf("han-host is required")
	}
	if u.Scheme != "http" {
		return fmt.Errorf("han-host must be plain http, got %s", u.Scheme)
	}
	return nil
}

// Host returns the device host (without scheme).
func (c *Client) Host() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL
	}
	return u.Host
}

// URL returns the absolute URL for a device path.
func (c *Client) URL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Fetch GETs path and decodes the body as a JSON object. Every failure is a
// *FetchError; nothing is retried.
func (c *Client) Fetch(ctx context.Context, path string) (types.Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(path), nil)
	if err != nil {
		return nil, &FetchError{Kind: ConnectError, Path: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: ConnectError, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, &FetchError{Kind: ProtocolError, Path: path, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, &FetchError{Kind: readErrorKind(err), Path: path, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	if len(body) > maxBodySize {
		return nil, &FetchError{Kind: ProtocolError, Path: path, Err: errors.New("response body too large")}
	}

	var p types.Payload
	if err := json.Unmarshal(body, &p); err != nil {
		log.Ctx(ctx).DebugContext(ctx, "failed to decode device response", slog.String("path", path), slog.String("body", truncate(body, 256)))
		return nil, &FetchError{Kind: ProtocolError, Path: path, Err: fmt.Errorf("failed to decode json: %w", err)}
	}
	if p == nil {
		return nil, &FetchError{Kind: ProtocolError, Path: path, Err: errors.New("response is not a json object")}
	}
	return p, nil
}

// readErrorKind treats a timeout while reading the body as a connect error and
// anything else (e.g. a truncated body) as a protocol error.
func readErrorKind(err error) ErrorKind {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return ConnectError
	}
	return ProtocolError
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// FetchIdentity reads the device info endpoint. It never fails: any error is
// logged and the unknown identity is returned.
func (c *Client) FetchIdentity(ctx context.Context, path string) types.Identity {
	id := types.UnknownIdentity()
	if path == "" {
		return id
	}

	p, err := c.Fetch(ctx, path)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to fetch device info", slog.String("path", path), slog.Any("error", err))
		return id
	}

	// fields of the wrong type are left unknown
	if m := stringField(p, "manufacturer"); m != "" {
		id.Manufacturer = m
	}
	if n := stringField(p, "name"); n != "" {
		id.Name = n
	}
	if m := stringField(p, "model"); m != "" {
		id.Model = m
	}
	id.MAC = stringField(p, "mac")
	id.Serial = stringField(p, "serial")
	id.Firmware = stringField(p, "version")

	log.Ctx(ctx).InfoContext(ctx, "fetched device info",
		slog.String("model", id.Model),
		slog.String("mac", id.MAC),
		slog.String("firmware", id.Firmware),
	)
	return id
}

func stringField(p types.Payload, key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case float64:
		// serials are sometimes numeric
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
