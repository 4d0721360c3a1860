// Package webhook provides an HTTP client for sending comparison reports to webhook endpoints.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/ccollicutt/tracediff/internal/logging"
	"github.com/ccollicutt/tracediff/pkg/output"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 10 * time.Second

// Retry defaults.
const (
	DefaultRetryMax     = 3
	DefaultRetryWaitMin = 500 * time.Millisecond
	DefaultRetryWaitMax = 5 * time.Second
)

// Client sends comparison reports to webhook endpoints.
type Client struct {
	httpClient *retryablehttp.Client
}

// ClientOption configures a Client.
type ClientOption func(*retryablehttp.Client)

// WithRetry sets the retry count and the minimum and maximum backoff.
func WithRetry(retryMax int, waitMin, waitMax time.Duration) ClientOption {
	return func(c *retryablehttp.Client) {
		c.RetryMax = retryMax
		c.RetryWaitMin = waitMin
		c.RetryWaitMax = waitMax
	}
}

// WithLogger routes retry diagnostics to l.
func WithLogger(l *logging.Logger) ClientOption {
	return func(c *retryablehttp.Client) {
		c.Logger = leveledLogger{l.Sugar()}
	}
}

// NewClient creates a new webhook client.
func NewClient(opts ...ClientOption) *Client {
	c := retryablehttp.NewClient()
	c.RetryMax = DefaultRetryMax
	c.RetryWaitMin = DefaultRetryWaitMin
	c.RetryWaitMax = DefaultRetryWaitMax
	c.Logger = nil
	// Hand back the last response instead of a generic "giving up" error.
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler

	for _, opt := range opts {
		opt(c)
	}

	return &Client{httpClient: c}
}

// SendOptions configures a webhook request.
type SendOptions struct {
	URL     string
	Token   string        // Bearer token (optional)
	Timeout time.Duration // Overall timeout including retries (uses DefaultTimeout if zero)
}

// Response contains the result of a webhook request.
type Response struct {
	StatusCode int
	Body       string
	Duration   time.Duration
	Error      error
}

// Success returns true if the webhook was sent successfully (2xx status).
func (r *Response) Success() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Send posts a comparison report to a webhook endpoint.
func (c *Client) Send(ctx context.Context, report *output.Report, opts SendOptions) *Response {
	start := time.Now()
	resp := &Response{}

	payload, err := json.Marshal(report)
	if err != nil {
		resp.Error = fmt.Errorf("failed to marshal report: %w", err)
		resp.Duration = time.Since(start)
		return resp
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, opts.URL, payload)
	if err != nil {
		resp.Error = fmt.Errorf("failed to create request: %w", err)
		resp.Duration = time.Since(start)
		return resp
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "tracediff-webhook")
	if opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Token)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		resp.Error = fmt.Errorf("request failed: %w", err)
		resp.Duration = time.Since(start)
		return resp
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1024*1024)) // Limit to 1MB
	if err != nil {
		resp.Error = fmt.Errorf("failed to read response: %w", err)
		resp.Duration = time.Since(start)
		return resp
	}

	resp.StatusCode = httpResp.StatusCode
	resp.Body = string(body)
	resp.Duration = time.Since(start)

	if resp.StatusCode >= 400 {
		resp.Error = fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return resp
}

// Ping sends a HEAD request to check that the endpoint is reachable. It does
// not retry. Any response, even 4xx or 5xx, is returned without an error.
func (c *Client) Ping(ctx context.Context, opts SendOptions) *Response {
	start := time.Now()
	resp := &Response{}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, opts.URL, nil)
	if err != nil {
		resp.Error = fmt.Errorf("failed to create request: %w", err)
		resp.Duration = time.Since(start)
		return resp
	}
	if opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Token)
	}

	httpResp, err := c.httpClient.HTTPClient.Do(req.Request)
	if err != nil {
		resp.Error = fmt.Errorf("request failed: %w", err)
		resp.Duration = time.Since(start)
		return resp
	}
	defer httpResp.Body.Close()

	resp.StatusCode = httpResp.StatusCode
	resp.Duration = time.Since(start)
	return resp
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
