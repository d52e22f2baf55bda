package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/yndnr/memkv/internal/core/engine"
	"github.com/yndnr/memkv/internal/storage/aof"
	"github.com/yndnr/memkv/internal/storage/snapshot"
	"github.com/yndnr/memkv/internal/telemetry/logger"
	"github.com/yndnr/memkv/internal/telemetry/metric"
	"github.com/yndnr/memkv/pkg/resp"
)

// ErrPersistence marks failures of the snapshot or log layer. The
// keyspace stays usable in memory when one is returned.
var ErrPersistence = errors.New("storage: persistence failure")

// Default configuration values.
const (
	DefaultDataDir    = "./data"
	DefaultAppendFile = "appendonly.aof"
)

// Config configures the persistence manager.
type Config struct {
	// DataDir holds the snapshot and the append-only log.
	DataDir string

	// Snapshot selects the backend. Its Dir defaults to DataDir.
	Snapshot snapshot.Config

	// LoadOnStartup makes Recover load the snapshot.
	LoadOnStartup bool

	// AppendOnly enables replay at Recover and appending afterwards.
	AppendOnly bool
	AppendFile string
	AppendSync aof.SyncMode

	// SnapshotInterval enables periodic saves after Start. Zero disables.
	SnapshotInterval time.Duration

	Logger  logger.Logger
	Metrics *metric.Registry
}

// DefaultConfig returns the default configuration rooted at dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:       dataDir,
		Snapshot:      snapshot.Config{Backend: snapshot.BackendFile, File: snapshot.DefaultFile},
		LoadOnStartup: true,
		AppendFile:    DefaultAppendFile,
		AppendSync:    aof.SyncEverySec,
	}
}

// Manager runs snapshot and log persistence for one engine.
type Manager struct {
	cfg     Config
	engine  *engine.Engine
	backend snapshot.Backend
	logger  logger.Logger
	metrics *metric.Registry

	saveMu   sync.Mutex // serializes Save
	mu       sync.RWMutex
	writer   *aof.Writer
	lastSave *snapshot.Info

	stopCh    chan struct{}
	doneCh    chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// New creates a manager. It opens the snapshot backend but touches no
// state; call Recover to load and replay.
func New(cfg Config, eng *engine.Engine) (*Manager, error) {
	if eng == nil {
		return nil, fmt.Errorf("storage: engine is required")
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.AppendFile == "" {
		cfg.AppendFile = DefaultAppendFile
	}
	if cfg.Snapshot.Dir == "" {
		cfg.Snapshot.Dir = cfg.DataDir
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	log := logger.Named(cfg.Logger, "persistence")
	cfg.Snapshot.Logger = log

	backend, err := snapshot.Open(cfg.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return &Manager{
		cfg:     cfg,
		engine:  eng,
		backend: backend,
		logger:  log,
		metrics: cfg.Metrics,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// AppendPath returns the append-only log path.
func (m *Manager) AppendPath() string {
	return filepath.Join(m.cfg.DataDir, m.cfg.AppendFile)
}

// AppendOnly reports whether the log writer is attached.
func (m *Manager) AppendOnly() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writer != nil
}

// AOFOffset returns the log length including buffered bytes, or 0 when
// the log is off.
func (m *Manager) AOFOffset() int64 {
	m.mu.RLock()
	w := m.writer
	m.mu.RUnlock()
	if w == nil {
		return 0
	}
	return w.Offset()
}

// KeyCount returns the number of keys holding an entry.
func (m *Manager) KeyCount() int {
	return m.engine.KeyCount()
}

// LastSnapshot returns the info of the last successful Save or Load.
func (m *Manager) LastSnapshot() *snapshot.Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSave
}

// Recover restores state at startup: load the snapshot when configured,
// then replay the log from the snapshot's offset and attach the writer
// when the log is enabled. A missing snapshot is not an error.
func (m *Manager) Recover(ctx context.Context) error {
	start := time.Now()
	var from int64

	if m.cfg.LoadOnStartup {
		info, err := m.Load(ctx)
		switch {
		case errors.Is(err, snapshot.ErrNoSnapshot):
			m.logger.Info("no snapshot found, starting with empty keyspace")
		case err != nil:
			return err
		default:
			from = info.AOFOffset
		}
	}

	if !m.cfg.AppendOnly {
		m.logger.Info("recovery completed", "keys", m.KeyCount(), "elapsed", time.Since(start))
		return nil
	}

	if err := m.replay(ctx, from); err != nil {
		return err
	}
	if err := m.openWriter(); err != nil {
		return err
	}

	m.logger.Info("recovery completed",
		"keys", m.KeyCount(),
		"aof_offset", m.AOFOffset(),
		"elapsed", time.Since(start))
	return nil
}

// replay re-executes log records from offset from.
func (m *Manager) replay(ctx context.Context, from int64) error {
	path := m.AppendPath()
	failed := 0

	res, err := aof.Replay(path, from, func(name string, args []string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if reply, ok := m.engine.Replay(ctx, name, args).(resp.ErrorReply); ok {
			failed++
			m.logger.Debug("replayed command failed", "command", name, "reply", string(reply))
		}
		return nil
	})
	if res.Rewound {
		m.logger.Warn("snapshot aof offset beyond log end, replaying from start",
			"offset", from, "size", res.Size)
	}
	if err != nil {
		m.logger.Error("aof replay failed, log left untouched and appending disabled",
			"path", path, "offset", res.End, "error", err)
		return fmt.Errorf("%w: replay %s: %w", ErrPersistence, path, err)
	}
	if res.Torn {
		m.logger.Warn("aof ends in a truncated record, truncating",
			"path", path, "offset", res.End, "size", res.Size)
		if err := aof.Truncate(path, res.End); err != nil {
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
	}

	m.logger.Info("aof replayed",
		"path", path,
		"from", res.Start,
		"records", res.Records,
		"failed", failed)
	return nil
}

func (m *Manager) openWriter() error {
	cfg := aof.DefaultConfig(m.AppendPath())
	cfg.SyncMode = m.cfg.AppendSync
	if m.metrics != nil {
		cfg.OnAppend = m.metrics.AOFRecords.Inc
	}

	w, err := aof.NewWriter(cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	m.mu.Lock()
	m.writer = w
	m.mu.Unlock()
	m.engine.SetAppender(w)
	return nil
}

// Load reads the stored snapshot and merges it into the keyspace.
func (m *Manager) Load(ctx context.Context) (*snapshot.Info, error) {
	start := time.Now()
	st, info, err := m.backend.Load(ctx)
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		return nil, err
	}
	if err != nil {
		m.logger.Error("snapshot load failed", "error", err)
		return nil, fmt.Errorf("%w: load snapshot: %w", ErrPersistence, err)
	}

	m.engine.Store().Import(st)

	m.mu.Lock()
	m.lastSave = info
	m.mu.Unlock()

	m.logger.Info("snapshot loaded",
		"backend", info.Backend,
		"path", info.Path,
		"keys", info.Keys,
		"aof_offset", info.AOFOffset,
		"elapsed", time.Since(start))
	return info, nil
}

// Save writes a consistent snapshot. The log offset is read while every
// shard is locked, so it matches the exported state exactly.
func (m *Manager) Save(ctx context.Context) (*snapshot.Info, error) {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	start := time.Now()
	var offset int64
	st := m.engine.Store().Export(func() {
		offset = m.AOFOffset()
	})

	info, err := m.backend.Save(ctx, st, offset)
	if m.metrics != nil {
		m.metrics.ObserveSnapshot(err, time.Now())
	}
	if err != nil {
		m.logger.Error("snapshot save failed", "error", err)
		return nil, fmt.Errorf("%w: save snapshot: %w", ErrPersistence, err)
	}

	m.mu.Lock()
	m.lastSave = info
	m.mu.Unlock()

	m.logger.Info("snapshot saved",
		"backend", info.Backend,
		"path", info.Path,
		"keys", info.Keys,
		"aof_offset", info.AOFOffset,
		"size_bytes", info.Size,
		"elapsed", time.Since(start))
	return info, nil
}

// Start runs periodic saves when SnapshotInterval is set.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		if m.cfg.SnapshotInterval <= 0 {
			close(m.doneCh)
			return
		}
		go m.snapshotLoop()
	})
}

func (m *Manager) snapshotLoop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := m.Save(ctx); err != nil {
				m.logger.Warn("periodic snapshot failed", "error", err)
			}
			cancel()
		case <-m.stopCh:
			return
		}
	}
}

// Close stops the snapshot loop, detaches and closes the log writer, and
// closes the snapshot backend. It does not save; callers decide that.
func (m *Manager) Close() error {
	var errs []error
	m.closeOnce.Do(func() {
		close(m.stopCh)
		m.startOnce.Do(func() { close(m.doneCh) })
		<-m.doneCh

		m.engine.SetAppender(nil)
		m.mu.Lock()
		w := m.writer
		m.writer = nil
		m.mu.Unlock()

		if w != nil {
			if err := w.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := m.backend.Close(); err != nil {
			errs = append(errs, err)
		}
	})
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}
