// Package upstream is the JSON-over-HTTP client shared by every call the
// gateway makes to a node, the address book or the geolocation service.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const maxBodySize = 16 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	text := http.StatusText(e.Status)
	if e.Body != "" {
		return fmt.Sprintf("GET %s: %d %s: %s", e.URL, e.Status, text, e.Body)
	}
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.Status, text)
}

// Client performs GET requests and decodes JSON bodies.
type Client struct {
	http *http.Client
}

// Options configures New.
type Options struct {
	Timeout time.Duration
	// RetryMax enables retries with backoff when greater than zero.
	RetryMax int
	// Transport overrides the default round tripper, mostly for tests.
	Transport http.RoundTripper
	Logger    *zap.Logger
}

func New(opts Options) *Client {
	return &Client{http: NewHTTPClient(opts)}
}

// NewHTTPClient builds the *http.Client behind New, for transports that need
// the raw client such as the JSON-RPC dialer.
func NewHTTPClient(opts Options) *http.Client {
	base := &http.Client{
		Timeout:   opts.Timeout,
		Transport: opts.Transport,
	}
	if opts.RetryMax <= 0 {
		return base
	}

	rclient := &retryablehttp.Client{
		HTTPClient:   base,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
		RetryMax:     opts.RetryMax,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
	}
	if opts.Logger != nil {
		rclient.Logger = zapLeveledLogger{opts.Logger.Named("http")}
	}
	return rclient.StandardClient()
}

// NewWithClient wraps an existing *http.Client.
func NewWithClient(c *http.Client) *Client {
	if c == nil {
		c = http.DefaultClient
	}
	return &Client{http: c}
}

// GetJSON fetches url and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := strings.TrimSpace(string(body))
		if len(text) > 256 {
			text = text[:256]
		}
		return &StatusError{URL: url, Status: resp.StatusCode, Body: text}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// zapLeveledLogger routes retryablehttp logs through zap.
type zapLeveledLogger struct {
	log *zap.Logger
}

func (l zapLeveledLogger) Error(msg string, kv ...interface{}) { l.log.Sugar().Errorw(msg, kv...) }
func (l zapLeveledLogger) Info(msg string, kv ...interface{})  { l.log.Sugar().Debugw(msg, kv...) }
func (l zapLeveledLogger) Debug(msg string, kv ...interface{}) { l.log.Sugar().Debugw(msg, kv...) }
func (l zapLeveledLogger) Warn(msg string, kv ...interface{})  { l.log.Sugar().Warnw(msg, kv...) }
