// Package server exposes the flowchart pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/l3aro/codeflow/internal/healthcheck"
	"github.com/l3aro/codeflow/internal/log"
	"github.com/l3aro/codeflow/pkg/flowchart"
	"github.com/l3aro/codeflow/pkg/pyast"
)

// Banner is the body of GET /.
const Banner = "codeflow is running"

// KindOversized and KindBadRequest complement the pipeline's error kinds
// for failures detected before conversion starts.
const (
	KindOversized  = "oversized"
	KindBadRequest = "bad_request"
	KindTimeout    = "timeout"
)

const shutdownTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	Addr           string
	MaxSourceBytes int64
	RequestTimeout time.Duration
	Version        string
	Logger         log.Logger
}

// Server serves diagram conversions.
type Server struct {
	opts    Options
	conv    *flowchart.Converter
	logger  log.Logger
	metrics *metrics
	router  chi.Router
}

// New creates a Server backed by conv.
func New(conv *flowchart.Converter, opts Options) *Server {
	if opts.MaxSourceBytes <= 0 {
		opts.MaxSourceBytes = 1 << 20
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	s := &Server{
		opts:    opts,
		conv:    conv,
		logger:  logger,
		metrics: newMetrics(conv),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(accessLog(s.logger))

	r.Method(http.MethodGet, "/", s.metrics.wrap("home", http.HandlerFunc(s.handleHome)))
	r.Method(http.MethodPost, "/parse", s.metrics.wrap("parse", http.HandlerFunc(s.handleParse)))
	r.Method(http.MethodGet, "/healthz", s.metrics.wrap("healthz", http.HandlerFunc(s.handleHealth)))
	r.Method(http.MethodGet, "/metrics", s.metrics.handler())
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on opts.Addr until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String(), "version", s.opts.Version)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, Banner)
}

type parseRequest struct {
	Code   string `json:"code"`
	Format string `json:"format"`
}

type parseResponse struct {
	*flowchart.Result
	RequestID string `json:"request_id"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Line      int    `json:"line,omitempty"`
	Column    int    `json:"column,omitempty"`
	RequestID string `json:"request_id"`
}

// handleParse accepts {"code": ..., "format": ...} as JSON, or the raw
// source as text/plain with the format in the query string.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxSourceBytes)

	req, err := decodeParseRequest(r)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, KindOversized,
				fmt.Sprintf("source exceeds %d bytes", s.opts.MaxSourceBytes), nil)
			return
		}
		s.writeError(w, r, http.StatusBadRequest, KindBadRequest, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	format := flowchart.Format(req.Format)
	result, err := s.conv.Convert(ctx, []byte(req.Code), format)
	if err != nil {
		status, kind := classify(err)
		s.metrics.conversions.WithLabelValues(string(format), kind).Inc()
		if status >= http.StatusInternalServerError {
			s.logger.Error("conversion failed", "error", err, "request_id", RequestIDFrom(r.Context()))
		}
		s.writeError(w, r, status, kind, err.Error(), err)
		return
	}

	s.metrics.conversions.WithLabelValues(string(result.Format), "ok").Inc()
	if !result.Cached {
		s.metrics.graphNodes.Observe(float64(result.Nodes))
	}
	writeJSON(w, http.StatusOK, parseResponse{Result: result, RequestID: RequestIDFrom(r.Context())})
}

func decodeParseRequest(r *http.Request) (*parseRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "text/plain", "text/x-python":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		return &parseRequest{Code: string(body), Format: r.URL.Query().Get("format")}, nil
	default:
		var req parseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("empty request body")
			}
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		return &req, nil
	}
}

// classify maps a conversion error to an HTTP status and error kind.
func classify(err error) (int, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, KindTimeout
	}
	kind := flowchart.ErrorKind(err)
	switch kind {
	case flowchart.KindSyntax, flowchart.KindFormat:
		return http.StatusBadRequest, kind
	case flowchart.KindLimit:
		return http.StatusUnprocessableEntity, kind
	default:
		return http.StatusInternalServerError, kind
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	parser := healthcheck.CheckParser(r.Context())
	status := http.StatusOK
	if parser.Status != healthcheck.StatusReady {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status":  parser.Status,
		"parser":  parser,
		"cache":   s.conv.CacheStats(),
		"version": s.opts.Version,
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, kind, msg string, err error) {
	resp := errorResponse{Error: msg, Kind: kind, RequestID: RequestIDFrom(r.Context())}
	var se *pyast.SyntaxError
	if errors.As(err, &se) {
		resp.Line = se.Line
		resp.Column = se.Column
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
