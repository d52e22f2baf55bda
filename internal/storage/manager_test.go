package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yndnr/memkv/internal/core/engine"
	"github.com/yndnr/memkv/internal/storage/aof"
	"github.com/yndnr/memkv/internal/storage/memory"
	"github.com/yndnr/memkv/internal/storage/snapshot"
	"github.com/yndnr/memkv/internal/telemetry/logger"
	"github.com/yndnr/memkv/internal/telemetry/metric"
	"github.com/yndnr/memkv/pkg/crypto/adaptive"
	"github.com/yndnr/memkv/pkg/resp"
)

type harness struct {
	engine  *engine.Engine
	manager *Manager
}

func newHarness(t *testing.T, dir string, mutate func(*Config)) *harness {
	t.Helper()
	return newHarnessWithStore(t, dir, memory.New(), mutate)
}

func newHarnessWithStore(t *testing.T, dir string, store *memory.Store, mutate func(*Config)) *harness {
	t.Helper()
	eng, err := engine.New(store, engine.WithLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	cfg := DefaultConfig(dir)
	cfg.Logger = logger.Discard()
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := New(cfg, eng)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return &harness{engine: eng, manager: m}
}

func appendOnly(cfg *Config) {
	cfg.AppendOnly = true
	cfg.AppendSync = aof.SyncAlways
}

func (h *harness) do(t *testing.T, name string, args ...string) string {
	t.Helper()
	return string(resp.Encode(h.engine.Do(context.Background(), name, args...)))
}

func (h *harness) state() *memory.State {
	return h.engine.Store().Export(nil)
}

// sameKeys compares entries exactly and deadlines by presence; replayed
// EXPIREs are relative to replay time.
func sameKeys(t *testing.T, got, want *memory.State) {
	t.Helper()
	if len(got.Store) != len(want.Store) {
		t.Fatalf("key count = %d, want %d (%v)", len(got.Store), len(want.Store), got.Store)
	}
	for k, e := range want.Store {
		if !e.Equal(got.Store[k]) {
			t.Errorf("key %q = %+v, want %+v", k, got.Store[k], e)
		}
	}
	for k := range want.ExpirationTimes {
		if _, ok := got.ExpirationTimes[k]; !ok {
			t.Errorf("key %q lost its deadline", k)
		}
	}
	if len(got.ExpirationTimes) != len(want.ExpirationTimes) {
		t.Errorf("deadlines = %v, want %v", got.ExpirationTimes, want.ExpirationTimes)
	}
}

func populate(t *testing.T, h *harness) {
	t.Helper()
	h.do(t, "SET", "foo", "bar")
	h.do(t, "SET", "spaced key", "value with spaces\r\nand CRLF")
	h.do(t, "RPUSH", "list", "a", "b", "c")
	h.do(t, "LPUSH", "list", "z")
	h.do(t, "LPOP", "list")
	h.do(t, "SET", "n", "1")
	h.do(t, "INCR", "n")
	h.do(t, "DECR", "n")
	h.do(t, "INCR", "n")
	h.do(t, "SET", "gone", "x")
	h.do(t, "DEL", "gone")
	h.do(t, "EXPIRE", "foo", "1000")
}

// ============================================================
// Snapshot
// ============================================================

func TestManager_SaveLoad(t *testing.T) {
	key, _ := adaptive.GenerateKey()
	cipher, _ := adaptive.New(key)

	for _, tc := range []struct {
		name string
		snap snapshot.Config
	}{
		{"file", snapshot.Config{Backend: snapshot.BackendFile}},
		{"file-encrypted", snapshot.Config{Backend: snapshot.BackendFile, Cipher: cipher}},
		{"badger", snapshot.Config{Backend: snapshot.BackendBadger}},
		{"badger-encrypted", snapshot.Config{Backend: snapshot.BackendBadger, Key: key}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()
			withBackend := func(cfg *Config) { cfg.Snapshot = tc.snap }

			src := newHarness(t, dir, withBackend)
			populate(t, src)
			want := src.state()

			info, err := src.manager.Save(ctx)
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
			if info.Keys != len(want.Store) {
				t.Errorf("info.Keys = %d, want %d", info.Keys, len(want.Store))
			}
			_ = src.manager.Close()

			dst := newHarness(t, dir, withBackend)
			if err := dst.manager.Recover(ctx); err != nil {
				t.Fatalf("Recover: %v", err)
			}
			if got := dst.state(); !got.Equal(want) {
				t.Errorf("loaded state differs\n got %+v\nwant %+v", got, want)
			}

			// Saving what was loaded yields the same state again.
			if _, err := dst.manager.Save(ctx); err != nil {
				t.Fatalf("second Save: %v", err)
			}
			_ = dst.manager.Close()
			again := newHarness(t, dir, withBackend)
			_ = again.manager.Recover(ctx)
			if got := again.state(); !got.Equal(want) {
				t.Error("save/load is not idempotent")
			}
		})
	}
}

func TestManager_LoadMerges(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	src := newHarness(t, dir, nil)
	src.do(t, "SET", "a", "snap")
	_, _ = src.manager.Save(ctx)

	dst := newHarness(t, dir, nil)
	dst.do(t, "SET", "a", "live")
	dst.do(t, "SET", "b", "live")
	if _, err := dst.manager.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := dst.do(t, "GET", "a"); got != "$4\r\nsnap\r\n" {
		t.Errorf("GET a = %q, want snapshot value", got)
	}
	if got := dst.do(t, "GET", "b"); got != "$4\r\nlive\r\n" {
		t.Errorf("GET b = %q, want untouched value", got)
	}
}

func TestManager_RecoverWithoutSnapshot(t *testing.T) {
	h := newHarness(t, t.TempDir(), nil)
	if err := h.manager.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if h.manager.KeyCount() != 0 || h.manager.AppendOnly() {
		t.Errorf("keys=%d appendOnly=%v", h.manager.KeyCount(), h.manager.AppendOnly())
	}
}

func TestManager_LoadFailureIsPersistenceError(t *testing.T) {
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, snapshot.DefaultFile), []byte("definitely not a snapshot file at all, but long enough"), 0600)

	h := newHarness(t, dir, nil)
	err := h.manager.Recover(context.Background())
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, snapshot.ErrChecksumMismatch) {
		t.Errorf("err = %v, want ErrPersistence wrapping ErrChecksumMismatch", err)
	}
}

// ============================================================
// Append-only log
// ============================================================

func TestManager_ReplayMatchesDirectExecution(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	src := newHarness(t, dir, appendOnly)
	if err := src.manager.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	populate(t, src)
	src.do(t, "GET", "foo")
	src.do(t, "INCR", "foo") // error, not logged
	want := src.state()
	_ = src.manager.Close()

	dst := newHarness(t, dir, func(cfg *Config) {
		appendOnly(cfg)
		cfg.LoadOnStartup = false
	})
	if err := dst.manager.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	sameKeys(t, dst.state(), want)

	if got := dst.do(t, "GET", "spaced key"); got != "$27\r\nvalue with spaces\r\nand CRLF\r\n" {
		t.Errorf("GET spaced key = %q", got)
	}
}

func TestManager_ReplayAfterLazyExpiry(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	now := time.UnixMilli(1_700_000_000_000)
	clock := func() time.Time { return now }
	src := newHarnessWithStore(t, dir, memory.New(memory.WithClock(clock)), appendOnly)
	if err := src.manager.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	src.do(t, "RPUSH", "L", "a")
	src.do(t, "EXPIRE", "L", "1")
	src.do(t, "SET", "g", "v")
	src.do(t, "EXPIRE", "g", "1")
	now = now.Add(2 * time.Second)
	src.do(t, "RPUSH", "L", "b")
	if got := src.do(t, "GET", "g"); got != "$-1\r\n" {
		t.Fatalf("GET g after expiry = %q", got)
	}
	if got := src.do(t, "LRANGE", "L", "0", "10"); got != "*1\r\n$1\r\nb\r\n" {
		t.Fatalf("live LRANGE = %q", got)
	}
	_ = src.manager.Close()

	dst := newHarness(t, dir, func(cfg *Config) {
		appendOnly(cfg)
		cfg.LoadOnStartup = false
	})
	if err := dst.manager.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if got := dst.do(t, "LRANGE", "L", "0", "10"); got != "*1\r\n$1\r\nb\r\n" {
		t.Errorf("replayed LRANGE = %q, want only b", got)
	}
	if got := dst.do(t, "GET", "g"); got != "$-1\r\n" {
		t.Errorf("replayed GET g = %q, want nil", got)
	}
	if got := dst.do(t, "TTL", "L"); got != ":-1\r\n" {
		t.Errorf("replayed TTL L = %q, want no deadline", got)
	}
}

func TestManager_ReadOnlyCommandsNotLogged(t *testing.T) {
	h := newHarness(t, t.TempDir(), appendOnly)
	_ = h.manager.Recover(context.Background())

	h.do(t, "GET", "x")
	h.do(t, "TTL", "x")
	h.do(t, "LRANGE", "x", "0", "1")
	h.do(t, "COMMAND")
	h.do(t, "INCR")
	if off := h.manager.AOFOffset(); off != 0 {
		t.Errorf("AOFOffset() = %d after read-only commands, want 0", off)
	}

	h.do(t, "SET", "x", "1")
	if h.manager.AOFOffset() == 0 {
		t.Error("SET was not logged")
	}
}

func TestManager_SnapshotOffsetPreventsDoubleApply(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	src := newHarness(t, dir, appendOnly)
	_ = src.manager.Recover(ctx)
	for i := 0; i < 3; i++ {
		src.do(t, "INCR", "n")
	}
	src.do(t, "RPUSH", "l", "a")

	info, err := src.manager.Save(ctx)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if info.AOFOffset != src.manager.AOFOffset() {
		t.Errorf("snapshot offset = %d, log offset = %d", info.AOFOffset, src.manager.AOFOffset())
	}

	src.do(t, "INCR", "n")
	src.do(t, "INCR", "n")
	src.do(t, "RPUSH", "l", "b")
	_ = src.manager.Close()

	dst := newHarness(t, dir, appendOnly)
	if err := dst.manager.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if got := dst.do(t, "GET", "n"); got != "$1\r\n5\r\n" {
		t.Errorf("GET n = %q, want 5", got)
	}
	if got := dst.do(t, "LRANGE", "l", "0", "10"); got != "*2\r\n$1\r\na\r\n$1\r\nb\r\n" {
		t.Errorf("LRANGE l = %q", got)
	}
}

func TestManager_OffsetBeyondLogRewinds(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	src := newHarness(t, dir, appendOnly)
	_ = src.manager.Recover(ctx)
	for i := 0; i < 10; i++ {
		src.do(t, "SET", "filler", "some longer value to grow the log")
	}
	_, _ = src.manager.Save(ctx)
	_ = src.manager.Close()

	// Replace the log with a shorter one.
	path := filepath.Join(dir, DefaultAppendFile)
	_ = os.Remove(path)
	w, err := aof.NewWriter(aof.DefaultConfig(path))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	_ = w.Append("SET", []string{"fresh", "1"})
	_ = w.Close()

	dst := newHarness(t, dir, appendOnly)
	if err := dst.manager.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if got := dst.do(t, "GET", "fresh"); got != "$1\r\n1\r\n" {
		t.Errorf("GET fresh = %q, want replayed from start", got)
	}
}

func TestManager_TornTailTruncated(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	src := newHarness(t, dir, appendOnly)
	_ = src.manager.Recover(ctx)
	src.do(t, "SET", "a", "1")
	good := src.manager.AOFOffset()
	_ = src.manager.Close()

	path := filepath.Join(dir, DefaultAppendFile)
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	_, _ = f.WriteString("*3\r\n$3\r\nSET\r\n$1\r\nb\r\n$")
	_ = f.Close()

	dst := newHarness(t, dir, appendOnly)
	if err := dst.manager.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if stat, _ := os.Stat(path); stat.Size() != good {
		t.Errorf("log size = %d, want truncated to %d", stat.Size(), good)
	}

	dst.do(t, "SET", "b", "2")
	_ = dst.manager.Close()

	again := newHarness(t, dir, func(cfg *Config) {
		appendOnly(cfg)
		cfg.LoadOnStartup = false
	})
	if err := again.manager.Recover(ctx); err != nil {
		t.Fatalf("third Recover: %v", err)
	}
	if again.manager.KeyCount() != 2 {
		t.Errorf("KeyCount() = %d, want 2", again.manager.KeyCount())
	}
}

func TestManager_CorruptLogDisablesAppend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultAppendFile)
	content := "*3\r\n$3\r\nSET\r\n$1\r\na\r\n$1\r\n1\r\nnot a record\r\n*2\r\n$3\r\nDEL\r\n$1\r\na\r\n"
	_ = os.WriteFile(path, []byte(content), 0600)

	h := newHarness(t, dir, appendOnly)
	err := h.manager.Recover(context.Background())
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, aof.ErrCorrupted) {
		t.Fatalf("err = %v, want ErrPersistence wrapping aof.ErrCorrupted", err)
	}
	if h.manager.AppendOnly() {
		t.Error("writer attached to a corrupted log")
	}

	h.do(t, "SET", "b", "2")
	raw, _ := os.ReadFile(path)
	if string(raw) != content {
		t.Error("corrupted log was modified")
	}
}

func TestManager_AppendOnlyOff(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, dir, nil)
	_ = h.manager.Recover(context.Background())
	h.do(t, "SET", "a", "1")

	if _, err := os.Stat(filepath.Join(dir, DefaultAppendFile)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("log file exists with append_only off: %v", err)
	}
}

// ============================================================
// Background / metrics
// ============================================================

func TestManager_PeriodicSnapshot(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, dir, func(cfg *Config) { cfg.SnapshotInterval = 10 * time.Millisecond })
	h.do(t, "SET", "a", "1")
	h.manager.Start()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.manager.LastSnapshot() != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if info := h.manager.LastSnapshot(); info == nil || info.Keys != 1 {
		t.Fatalf("LastSnapshot() = %+v", info)
	}
	if err := h.manager.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := h.manager.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestManager_Metrics(t *testing.T) {
	reg := metric.NewRegistry()
	h := newHarness(t, t.TempDir(), func(cfg *Config) {
		appendOnly(cfg)
		cfg.Metrics = reg
	})
	_ = h.manager.Recover(context.Background())
	reg.MustRegister(metric.NewCollector(h.manager))

	h.do(t, "SET", "a", "1")
	h.do(t, "DEL", "a")
	_, _ = h.manager.Save(context.Background())

	families, err := reg.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}

	if values["memkv_aof_records_total"] != 2 {
		t.Errorf("aof records = %v, want 2", values["memkv_aof_records_total"])
	}
	if values["memkv_snapshot_total"] != 1 {
		t.Errorf("snapshots = %v, want 1", values["memkv_snapshot_total"])
	}
	if values["memkv_aof_offset_bytes"] != float64(h.manager.AOFOffset()) {
		t.Errorf("aof offset gauge = %v, want %d", values["memkv_aof_offset_bytes"], h.manager.AOFOffset())
	}
}
