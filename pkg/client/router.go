package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/l3aro/codeflow/pkg/flowchart"
)

const defaultServiceCacheTTL = 5 * time.Second

// ErrServiceNotAvailable is returned when the service is required but
// cannot be reached.
var ErrServiceNotAvailable = errors.New("service not available")

// Router routes conversions to the service or converts in-process.
type Router struct {
	client     *Client
	local      *flowchart.Converter
	useService bool
	autoDetect bool

	mu           sync.Mutex
	cachedResult *bool
	cacheTime    time.Time
	cacheTTL     time.Duration
}

// RouterOption is a router option
type RouterOption func(*Router)

// WithService forces using the service
func WithService() RouterOption {
	return func(r *Router) {
		r.useService = true
		r.autoDetect = false
	}
}

// WithoutService forces in-process conversion
func WithoutService() RouterOption {
	return func(r *Router) {
		r.useService = false
		r.autoDetect = false
	}
}

// WithAutoDetect enables automatic service detection
func WithAutoDetect() RouterOption {
	return func(r *Router) {
		r.autoDetect = true
	}
}

// NewRouter creates a router that falls back to local.
func NewRouter(c *Client, local *flowchart.Converter, opts ...RouterOption) *Router {
	r := &Router{
		client:     c,
		local:      local,
		autoDetect: true,
		cacheTTL:   defaultServiceCacheTTL,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// ShouldUseService returns true if conversions should go to the service
func (r *Router) ShouldUseService(ctx context.Context) bool {
	if !r.autoDetect {
		return r.useService
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cachedResult != nil && time.Since(r.cacheTime) < r.cacheTTL {
		return *r.cachedResult
	}

	result := r.client.Ping(ctx)
	r.cachedResult = &result
	r.cacheTime = time.Now()
	return result
}

// Convert renders src on the service when it is in use and in-process
// otherwise. With auto-detection, a transport failure falls back to the
// local converter; errors reported by the service are returned as is.
func (r *Router) Convert(ctx context.Context, src []byte, format flowchart.Format) (*flowchart.Result, error) {
	if r.ShouldUseService(ctx) {
		res, err := r.client.Convert(ctx, src, format)
		if err == nil {
			return &res.Result, nil
		}
		if IsAPIError(err) || !r.autoDetect {
			return nil, err
		}
		r.forget()
	}

	if r.local == nil {
		return nil, ErrServiceNotAvailable
	}
	return r.local.Convert(ctx, src, format)
}

func (r *Router) forget() {
	r.mu.Lock()
	r.cachedResult = nil
	r.mu.Unlock()
}
