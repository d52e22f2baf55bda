package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yndnr/memkv/internal/server/httpserver/handler"
	"github.com/yndnr/memkv/internal/storage/snapshot"
	"github.com/yndnr/memkv/internal/telemetry/logger"
)

// ============================================================================
// Helpers
// ============================================================================

type stubStore struct {
	keys int
}

func (s *stubStore) KeyCount() int                { return s.keys }
func (s *stubStore) AppendOnly() bool             { return false }
func (s *stubStore) AOFOffset() int64             { return 0 }
func (s *stubStore) LastSnapshot() *snapshot.Info { return nil }

func (s *stubStore) Save(context.Context) (*snapshot.Info, error) {
	return &snapshot.Info{Backend: snapshot.BackendFile, Keys: s.keys}, nil
}

func serve(h http.Handler, method, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// ============================================================================
// RequestID
// ============================================================================

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	t.Run("generates request ID when not provided", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/", "")
		id := rec.Header().Get("X-Request-ID")
		if !strings.HasPrefix(id, "req-") {
			t.Errorf("X-Request-ID = %q, want req- prefix", id)
		}
		if seen != id {
			t.Errorf("context id = %q, header id = %q", seen, id)
		}
	})

	t.Run("preserves existing request ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "existing-id-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if got := rec.Header().Get("X-Request-ID"); got != "existing-id-123" {
			t.Errorf("X-Request-ID = %q", got)
		}
	})

	t.Run("ids are unique", func(t *testing.T) {
		a := serve(h, http.MethodGet, "/", "").Header().Get("X-Request-ID")
		b := serve(h, http.MethodGet, "/", "").Header().Get("X-Request-ID")
		if a == b {
			t.Errorf("two requests got the same id %q", a)
		}
	})
}

// ============================================================================
// Recover
// ============================================================================

func TestRecover(t *testing.T) {
	h := Recover(logger.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := serve(h, http.MethodGet, "/", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if rec.Header().Get("X-Error-Code") != "MK-SYS-5000" {
		t.Errorf("X-Error-Code = %q", rec.Header().Get("X-Error-Code"))
	}
}

// ============================================================================
// RateLimit
// ============================================================================

func TestRateLimit(t *testing.T) {
	h := RateLimit(0.001, 2)(okHandler)

	for i := 0; i < 2; i++ {
		if rec := serve(h, http.MethodGet, "/", "1.1.1.1:1"); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, rec.Code)
		}
	}
	rec := serve(h, http.MethodGet, "/", "1.1.1.1:2")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	var body handler.Response
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Code != handler.CodeRateLimited {
		t.Errorf("body code = %q, want %q", body.Code, handler.CodeRateLimited)
	}

	if rec := serve(h, http.MethodGet, "/", "2.2.2.2:1"); rec.Code != http.StatusOK {
		t.Errorf("other IP status = %d, want 200", rec.Code)
	}
}

// ============================================================================
// NetworkACL
// ============================================================================

func TestNetworkACL(t *testing.T) {
	tests := []struct {
		name      string
		allowList []string
		remote    string
		want      int
	}{
		{"empty list allows all", nil, "8.8.8.8:1", http.StatusOK},
		{"single IP match", []string{"127.0.0.1"}, "127.0.0.1:1", http.StatusOK},
		{"single IP miss", []string{"127.0.0.1"}, "127.0.0.2:1", http.StatusForbidden},
		{"CIDR match", []string{"192.168.0.0/16"}, "192.168.4.4:1", http.StatusOK},
		{"CIDR miss", []string{"192.168.0.0/16"}, "10.0.0.1:1", http.StatusForbidden},
		{"IPv6", []string{"::1"}, "[::1]:1", http.StatusOK},
		{"invalid entries skipped", []string{"bogus", "10.0.0.0/99", "10.0.0.1"}, "10.0.0.1:1", http.StatusOK},
		{"only invalid entries allow all", []string{"bogus"}, "8.8.8.8:1", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NetworkACL(tt.allowList, logger.Discard())(okHandler)
			if rec := serve(h, http.MethodGet, "/", tt.remote); rec.Code == http.StatusForbidden &&
				rec.Header().Get("X-Error-Code") != handler.CodeForbiddenIP {
				t.Errorf("X-Error-Code = %q", rec.Header().Get("X-Error-Code"))
			}
			if rec := serve(h, http.MethodGet, "/", tt.remote); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

// ============================================================================
// AccessLog
// ============================================================================

func TestAccessLog_PassesStatus(t *testing.T) {
	h := AccessLog(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	if rec := serve(h, http.MethodGet, "/", ""); rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	serve(Chain(okHandler, mark("a"), mark("b"), mark("c")), http.MethodGet, "/", "")
	if strings.Join(order, ",") != "a,b,c" {
		t.Errorf("order = %v, want a,b,c", order)
	}
}
