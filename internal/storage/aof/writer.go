package aof

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yndnr/memkv/pkg/resp"
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("aof: writer is closed")

// File permission defaults.
const (
	DefaultFilePerm = 0600
	DefaultDirPerm  = 0750
)

// Default configuration values.
const (
	DefaultSyncInterval     = time.Second
	DefaultBatchBytes   int = 1 << 20 // 1MB
)

// SyncMode defines how the log reaches the disk.
type SyncMode string

const (
	SyncAlways   SyncMode = "always"
	SyncEverySec SyncMode = "everysec"
	SyncNo       SyncMode = "no"
)

// ParseSyncMode validates a configured sync mode.
func ParseSyncMode(s string) (SyncMode, error) {
	switch m := SyncMode(s); m {
	case SyncAlways, SyncEverySec, SyncNo:
		return m, nil
	case "":
		return SyncEverySec, nil
	default:
		return "", fmt.Errorf("aof: unknown sync mode %q", s)
	}
}

// Config configures the log writer.
type Config struct {
	Path string

	SyncMode     SyncMode
	SyncInterval time.Duration

	// BatchBytes forces a write once this many bytes are buffered.
	BatchBytes int

	// OnAppend is called after each record is accepted.
	OnAppend func()
}

// DefaultConfig returns the default configuration for the log at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:         path,
		SyncMode:     SyncEverySec,
		SyncInterval: DefaultSyncInterval,
		BatchBytes:   DefaultBatchBytes,
	}
}

func applyDefaults(cfg *Config) {
	if cfg.SyncMode == "" {
		cfg.SyncMode = SyncEverySec
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	if cfg.BatchBytes <= 0 {
		cfg.BatchBytes = DefaultBatchBytes
	}
}

// Writer appends records to the log file.
type Writer struct {
	cfg Config

	mu sync.Mutex

	file     *os.File
	fileSize int64 // bytes written to the file
	buffer   []byte
	records  uint64

	syncTicker *time.Ticker
	stopCh     chan struct{}
	wg         sync.WaitGroup
	closed     bool
}

// NewWriter opens (or creates) the log and positions it for appending.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("aof: path is required")
	}
	applyDefaults(&cfg)
	if _, err := ParseSyncMode(string(cfg.SyncMode)); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("aof: create dir: %w", err)
	}

	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, DefaultFilePerm)
	if err != nil {
		return nil, fmt.Errorf("aof: open: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("aof: stat: %w", err)
	}

	w := &Writer{
		cfg:      cfg,
		file:     file,
		fileSize: stat.Size(),
		stopCh:   make(chan struct{}),
	}
	if cfg.SyncMode != SyncAlways {
		w.startSyncLoop()
	}
	return w, nil
}

// Path returns the log file path.
func (w *Writer) Path() string {
	return w.cfg.Path
}

// Append encodes one command as a record. The record is complete in the
// buffer before Append returns, so concurrent appends never interleave.
func (w *Writer) Append(name string, args []string) error {
	frame := resp.EncodeCommand(name, args...)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	w.buffer = append(w.buffer, frame...)
	w.records++
	if w.cfg.OnAppend != nil {
		w.cfg.OnAppend()
	}

	switch {
	case w.cfg.SyncMode == SyncAlways:
		return w.syncLocked()
	case len(w.buffer) >= w.cfg.BatchBytes:
		return w.flushLocked()
	}
	return nil
}

// Offset returns the log length in bytes, including buffered records.
func (w *Writer) Offset() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fileSize + int64(len(w.buffer))
}

// Records returns the number of records appended by this writer.
func (w *Writer) Records() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

// Flush writes buffered records to the file without fsync.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// Sync writes buffered records and fsyncs the file.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncLocked()
}

func (w *Writer) flushLocked() error {
	if len(w.buffer) == 0 || w.file == nil {
		return nil
	}
	n, err := w.file.Write(w.buffer)
	w.fileSize += int64(n)
	if err != nil {
		w.buffer = append(w.buffer[:0], w.buffer[n:]...)
		return fmt.Errorf("aof: write: %w", err)
	}
	w.buffer = w.buffer[:0]
	return nil
}

func (w *Writer) syncLocked() error {
	if err := w.flushLocked(); err != nil {
		return err
	}
	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("aof: sync: %w", err)
	}
	return nil
}

func (w *Writer) startSyncLoop() {
	w.syncTicker = time.NewTicker(w.cfg.SyncInterval)
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.syncTicker.C:
				if w.cfg.SyncMode == SyncNo {
					_ = w.Flush()
				} else {
					_ = w.Sync()
				}
			case <-w.stopCh:
				return
			}
		}
	}()
}

// Close flushes pending records, fsyncs and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.stopCh)
	w.mu.Unlock()

	if w.syncTicker != nil {
		w.syncTicker.Stop()
	}
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	syncErr := w.syncLocked()
	closeErr := w.file.Close()
	w.file = nil
	if syncErr != nil {
		return syncErr
	}
	if closeErr != nil {
		return fmt.Errorf("aof: close: %w", closeErr)
	}
	return nil
}
