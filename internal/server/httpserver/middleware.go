package httpserver

import (
	"crypto/rand"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/memkv/internal/server/guard"
	"github.com/yndnr/memkv/internal/server/httpserver/handler"
	"github.com/yndnr/memkv/internal/telemetry/logger"
)

// Middleware decorates a handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares so that the first one sees the request first.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

type requestIDs struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var reqIDs = requestIDs{entropy: ulid.Monotonic(rand.Reader, 0)}

func (g *requestIDs) next() string {
	g.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	g.mu.Unlock()
	return "req-" + id.String()
}

// RequestID echoes X-Request-ID or mints a ULID based one, and stores it
// in the request context for logging.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = reqIDs.next()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
		})
	}
}

// AccessLog writes one line per request. 5xx log at error, 4xx at warn.
func AccessLog(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			logf := log.Info
			if rec.status >= 500 {
				logf = log.Error
			} else if rec.status >= 400 {
				logf = log.Warn
			}
			logf("http request",
				"request_id", logger.RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"client_ip", clientIP(r))
		})
	}
}

// Recover turns a handler panic into a 500 reply.
func Recover(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					log.Error("admin handler panicked",
						"request_id", logger.RequestIDFromContext(r.Context()),
						"path", r.URL.Path,
						"panic", v)
					writeError(w, r, http.StatusInternalServerError, handler.CodeInternal, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit gives each client IP its own token bucket. Rejected requests
// get 429 with Retry-After.
func RateLimit(perSecond float64, burst int) Middleware {
	limiter := guard.NewLimiter(perSecond, burst)
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientIP(r)) {
				w.Header().Set("Retry-After", "1")
				writeError(w, r, http.StatusTooManyRequests, handler.CodeRateLimited, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NetworkACL answers 403 to clients outside entries. Unparsable entries
// are logged and ignored; with no usable entry every client passes.
func NetworkACL(entries []string, log logger.Logger) Middleware {
	list, errs := guard.ParseAllowList(entries)
	for _, err := range errs {
		log.Warn("ignoring allow list entry", "error", err)
	}
	return func(next http.Handler) http.Handler {
		if list.Empty() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if list.Allows(ip) {
				next.ServeHTTP(w, r)
				return
			}
			log.Warn("request denied by allow list", "client_ip", ip, "path", r.URL.Path)
			writeError(w, r, http.StatusForbidden, handler.CodeForbiddenIP, "IP not in allowlist")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// writeError answers with the admin envelope so middleware rejections
// look like handler errors.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	body := handler.NewErrorResponse(logger.RequestIDFromContext(r.Context()), code, message)
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("X-Error-Code", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// clientIP is the peer address of the connection. Forwarding headers
// are not trusted.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
