// Package client provides a client for the codeflow HTTP service.
// It supports automatic detection of a running service and graceful
// fallback to in-process conversion when the service is unavailable.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/l3aro/codeflow/pkg/cfg"
	"github.com/l3aro/codeflow/pkg/flowchart"
	"github.com/l3aro/codeflow/pkg/pyast"
)

const (
	// DefaultBaseURL is the service address used when none is given
	DefaultBaseURL = "http://localhost:10000"
	// DefaultTimeout is the default request timeout
	DefaultTimeout = 5 * time.Second
)

// Client talks to a codeflow service
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	mu         sync.RWMutex
	connected  bool
}

// Option is a client option
type Option func(*Client)

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client for the service at baseURL. An empty baseURL means
// DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}

	return c
}

// APIError is an error response from the service. It unwraps to the
// matching pipeline sentinel so callers can classify it like a local error.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
	Kind       string `json:"kind"`
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
	RequestID  string `json:"request_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("service error (%d %s): %s", e.StatusCode, e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Kind {
	case flowchart.KindSyntax:
		return pyast.ErrSyntax
	case flowchart.KindLimit:
		return cfg.ErrDepthExceeded
	case flowchart.KindStructural:
		return cfg.ErrStructural
	case flowchart.KindFormat:
		return flowchart.ErrUnknownFormat
	case "timeout":
		return context.DeadlineExceeded
	}
	return nil
}

// do sends a request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setConnected(false)
		return fmt.Errorf("connecting to service: %w", err)
	}
	defer resp.Body.Close()
	c.setConnected(true)

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Kind == "" {
			apiErr.Kind = flowchart.KindInternal
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	return nil
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// ConvertResult is a conversion served remotely.
type ConvertResult struct {
	flowchart.Result
	RequestID string `json:"request_id"`
}

// Convert renders src on the service.
func (c *Client) Convert(ctx context.Context, src []byte, format flowchart.Format) (*ConvertResult, error) {
	body := map[string]string{"code": string(src), "format": string(format)}
	var out ConvertResult
	if err := c.do(ctx, http.MethodPost, "/parse", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ServiceStatus is the service's health report
type ServiceStatus struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Cache   struct {
		Length   int   `json:"length"`
		HitCount int64 `json:"hit_count"`
	} `json:"cache"`
}

// GetStatus gets the service status
func (c *Client) GetStatus(ctx context.Context) (*ServiceStatus, error) {
	var status ServiceStatus
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Ping reports whether the service answers its health check.
func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err := c.GetStatus(ctx)
	return err == nil
}

// IsConnected returns whether the last request reached the service
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// IsAPIError reports whether err came back from the service rather than
// from the transport.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
