package localserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/memkv/internal/storage/snapshot"
	"github.com/yndnr/memkv/internal/telemetry/logger"
)

type fakeStore struct {
	keys    int
	saveErr error
	saved   atomic.Int32
}

func (f *fakeStore) KeyCount() int                { return f.keys }
func (f *fakeStore) AppendOnly() bool             { return true }
func (f *fakeStore) AOFOffset() int64             { return 128 }
func (f *fakeStore) LastSnapshot() *snapshot.Info { return nil }

func (f *fakeStore) Save(context.Context) (*snapshot.Info, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.saved.Add(1)
	return &snapshot.Info{Backend: snapshot.BackendFile, Keys: f.keys}, nil
}

func startServer(t *testing.T, cfg HandlerConfig) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctl.sock")
	srv := New(path, NewHandler(cfg), logger.Discard())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	})
	return srv
}

func call(t *testing.T, srv *Server, cmd string, args ...string) (json.RawMessage, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return Call(ctx, srv.Path(), cmd, args...)
}

// ============================================================================
// Handler
// ============================================================================

func TestHandler_Execute(t *testing.T) {
	store := &fakeStore{keys: 3}
	var reloaded, stopped atomic.Bool
	h := NewHandler(HandlerConfig{
		Store:     store,
		Reload:    func() error { reloaded.Store(true); return nil },
		Shutdown:  func() { stopped.Store(true) },
		StartedAt: time.Now(),
	})
	ctx := context.Background()

	tests := []struct {
		cmd  string
		want any
	}{
		{"ping", "pong"},
		{"PING", "pong"},
		{"reload", "reloaded"},
		{"shutdown", "shutting down"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			got, err := h.Execute(ctx, tt.cmd, nil)
			if err != nil || got != tt.want {
				t.Errorf("Execute(%s) = (%v, %v), want %v", tt.cmd, got, err, tt.want)
			}
		})
	}
	if !reloaded.Load() || !stopped.Load() {
		t.Error("reload or shutdown callback not called")
	}

	status, err := h.Execute(ctx, "status", nil)
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	m := status.(map[string]any)
	if m["keys"] != 3 || m["aof_offset"] != int64(128) {
		t.Errorf("status = %v", m)
	}
	if _, ok := m["last_snapshot"]; ok {
		t.Error("status reports a snapshot that was never taken")
	}

	if _, err := h.Execute(ctx, "flushall", nil); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("unknown command error = %v", err)
	}
}

func TestHandler_NoReload(t *testing.T) {
	h := NewHandler(HandlerConfig{Store: &fakeStore{}})
	if _, err := h.Execute(context.Background(), "reload", nil); err == nil {
		t.Error("reload without a callback should fail")
	}
	if _, err := h.Execute(context.Background(), "shutdown", nil); err == nil {
		t.Error("shutdown without a callback should fail")
	}
}

// ============================================================================
// Server
// ============================================================================

func TestServer_Call(t *testing.T) {
	store := &fakeStore{keys: 5}
	srv := startServer(t, HandlerConfig{Store: store})

	fi, err := os.Stat(srv.Path())
	if err != nil {
		t.Fatalf("Stat(socket) error = %v", err)
	}
	if perm := fi.Mode().Perm(); perm != 0600 {
		t.Errorf("socket mode = %o, want 600", perm)
	}

	data, err := call(t, srv, "save")
	if err != nil {
		t.Fatalf("save error = %v", err)
	}
	var info snapshot.Info
	if err := json.Unmarshal(data, &info); err != nil || info.Keys != 5 {
		t.Errorf("save reply = %s (%v)", data, err)
	}
	if store.saved.Load() != 1 {
		t.Errorf("Save called %d times, want 1", store.saved.Load())
	}

	data, err = call(t, srv, "help")
	if err != nil || !strings.Contains(string(data), `"status"`) {
		t.Errorf("help = (%s, %v)", data, err)
	}

	if _, err := call(t, srv, "nope"); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("unknown command error = %v", err)
	}
}

func TestServer_SaveError(t *testing.T) {
	srv := startServer(t, HandlerConfig{Store: &fakeStore{saveErr: errors.New("disk full")}})
	if _, err := call(t, srv, "save"); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("save error = %v, want disk full", err)
	}
}

func TestServer_StaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	srv := New(path, NewHandler(HandlerConfig{Store: &fakeStore{}}), logger.Discard())
	if err := srv.Start(); err == nil {
		t.Fatal("Start() on a live socket should fail")
	}

	// A closed listener leaves the file behind without anyone serving it.
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	ln.Close()
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() over stale socket error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("socket file still present after Shutdown: %v", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestServer_NotASocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.sock")
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	srv := New(path, NewHandler(HandlerConfig{Store: &fakeStore{}}), logger.Discard())
	if err := srv.Start(); err == nil {
		t.Fatal("Start() over a regular file should fail")
	}
}
