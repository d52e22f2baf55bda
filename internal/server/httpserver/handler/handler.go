package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/yndnr/memkv/internal/infra/buildinfo"
	"github.com/yndnr/memkv/internal/storage/snapshot"
	"github.com/yndnr/memkv/internal/telemetry/logger"
)

// Store is the persistence view the handlers need.
type Store interface {
	KeyCount() int
	AppendOnly() bool
	AOFOffset() int64
	LastSnapshot() *snapshot.Info
	Save(ctx context.Context) (*snapshot.Info, error)
}

// Options configures a Handler.
type Options struct {
	// Metrics serves GET /metrics. Nil leaves the route unregistered.
	Metrics http.Handler
	// Ready reports readiness. Nil means always ready.
	Ready func() bool
	// Logger defaults to the process logger.
	Logger logger.Logger
	// StartedAt anchors the reported uptime. Zero means now.
	StartedAt time.Time
}

// Handler is the main HTTP handler that routes requests to appropriate handlers.
type Handler struct {
	store     Store
	metrics   http.Handler
	ready     func() bool
	logger    logger.Logger
	startedAt time.Time
	mux       *http.ServeMux
}

// New creates a new Handler.
func New(store Store, opts Options) *Handler {
	h := &Handler{
		store:     store,
		metrics:   opts.Metrics,
		ready:     opts.Ready,
		logger:    opts.Logger,
		startedAt: opts.StartedAt,
		mux:       http.NewServeMux(),
	}
	if h.logger == nil {
		h.logger = logger.Default()
	}
	if h.startedAt.IsZero() {
		h.startedAt = time.Now()
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)
	if h.metrics != nil {
		h.mux.Handle("GET /metrics", h.metrics)
	}
	h.mux.HandleFunc("GET /admin/v1/status", h.handleStatus)
	h.mux.HandleFunc("POST /admin/v1/snapshot", h.handleSnapshot)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	h.write(w, status, NewResponse(getRequestID(r), data))
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("X-Error-Code", code)
	h.write(w, status, NewErrorResponse(getRequestID(r), code, message))
}

func (h *Handler) write(w http.ResponseWriter, status int, body *Response) {
	w.Header().Set("Content-Type", "application/json")
	if body.RequestID != "" {
		w.Header().Set("X-Request-ID", body.RequestID)
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// getRequestID returns the id the RequestID middleware put on the request.
func getRequestID(r *http.Request) string {
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

func version() (string, string) {
	info := buildinfo.Get()
	return info.Version, info.Commit
}
