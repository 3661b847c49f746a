package api

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
	"github.com/savvydealer-adam/dealership-intel/internal/metrics"
)

const (
	defaultRequestTimeout = 5 * time.Minute
	defaultMaxTargets     = 10
	readinessTimeout      = 3 * time.Second
	maxBodyBytes          = 1 << 20
)

// Runner processes a batch of targets.
type Runner interface {
	Run(ctx context.Context, targets []intel.Target) ([]intel.DealershipIntel, error)
}

// ReadinessCheck reports whether a downstream dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Options configures a Server. Zero values select defaults; a nil Records
// disables the read endpoints.
type Options struct {
	APIKey         string
	RequestTimeout time.Duration
	MaxTargets     int
	Records        RecordReader
	Checks         map[string]ReadinessCheck
	Logger         *zap.Logger
}

// Server wires HTTP handlers to the pipeline and record stores.
type Server struct {
	router  chi.Router
	runner  Runner
	records *RecordHandler
	opts    Options
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. API key
// authentication guards /v1 when opts.APIKey is set.
func NewServer(runner Runner, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.MaxTargets <= 0 {
		opts.MaxTargets = defaultMaxTargets
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner:  runner,
		records: NewRecordHandler(opts.Records, logger),
		opts:    opts,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(opts.RequestTimeout))
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Route("/intel", func(r chi.Router) {
			r.Post("/", s.submitTargets)
			r.Get("/", s.records.List)
			r.Get("/{id}", s.records.Get)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	failures := map[string]string{}
	for name, check := range s.opts.Checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		s.logger.Warn("readiness check failed", zap.Any("failures", failures))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failures": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type intelRequest struct {
	URL     string         `json:"url"`
	Name    string         `json:"name"`
	Targets []intel.Target `json:"targets"`
}

func (r intelRequest) targets() []intel.Target {
	if len(r.Targets) > 0 {
		return r.Targets
	}
	if strings.TrimSpace(r.URL) == "" {
		return nil
	}
	return []intel.Target{{URL: r.URL, Name: r.Name}}
}

func (s *Server) submitTargets(w http.ResponseWriter, r *http.Request) {
	var req intelRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	targets := req.targets()
	if err := s.validateTargets(targets); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.runner.Run(r.Context(), targets)
	if err != nil && records == nil {
		s.logger.Error("run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "run failed")
		return
	}
	resp := map[string]any{"records": records}
	if err != nil {
		// Records were produced; only delivery to a sink failed.
		s.logger.Warn("record delivery failed", zap.Error(err))
		resp["warnings"] = []string{err.Error()}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) validateTargets(targets []intel.Target) error {
	if len(targets) == 0 {
		return errors.New("url or targets required")
	}
	if len(targets) > s.opts.MaxTargets {
		return fmt.Errorf("at most %d targets per request", s.opts.MaxTargets)
	}
	for _, t := range targets {
		if t.Domain() == "" {
			return fmt.Errorf("invalid target url %q", t.URL)
		}
	}
	return nil
}

type requestIDKey struct{}

// RequestID returns the request ID assigned by the server, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
