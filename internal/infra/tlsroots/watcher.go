package tlsroots

import (
	"crypto/tls"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yndnr/memkv/internal/telemetry/logger"
)

// DefaultDebounce is the quiet period after the last change before the
// pair is reloaded. Cert and key are usually rewritten one after the other.
const DefaultDebounce = 300 * time.Millisecond

// Watcher holds the current key pair and swaps it when the files on disk
// change. A failed reload keeps serving the previous pair.
type Watcher struct {
	certFile, keyFile string
	debounce          time.Duration
	log               logger.Logger

	cert atomic.Pointer[tls.Certificate]

	timerMu sync.Mutex
	timer   *time.Timer

	stop     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger. Records carry component=tls.
func WithLogger(l logger.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher loads the pair once. Nothing is watched until Start.
func NewWatcher(certFile, keyFile string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		certFile: certFile,
		keyFile:  keyFile,
		debounce: DefaultDebounce,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = logger.Named(w.log, "tls")

	if err := w.Reload(); err != nil {
		return nil, fmt.Errorf("tlsroots: %w", err)
	}
	return w, nil
}

// GetCertificate fits tls.Config.GetCertificate.
func (w *Watcher) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return w.cert.Load(), nil
}

// Reload reads the pair from disk and swaps it in.
func (w *Watcher) Reload() error {
	pair, err := tls.LoadX509KeyPair(w.certFile, w.keyFile)
	if err != nil {
		return fmt.Errorf("load %s: %w", w.certFile, err)
	}
	w.cert.Store(&pair)
	w.log.Info("certificate loaded", "cert_file", w.certFile)
	return nil
}

// Start blocks watching the directories holding the pair until Stop.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlsroots: %w", err)
	}
	defer fsw.Close()

	names := map[string]bool{
		filepath.Clean(w.certFile): true,
		filepath.Clean(w.keyFile):  true,
	}
	dirs := map[string]bool{}
	for name := range names {
		dirs[filepath.Dir(name)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("tlsroots: watch %s: %w", dir, err)
		}
	}
	w.log.Info("watching certificate", "cert_file", w.certFile, "key_file", w.keyFile)

	for {
		select {
		case <-w.stop:
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if names[filepath.Clean(ev.Name)] && ev.Has(fsnotify.Write|fsnotify.Create) {
				w.log.Debug("certificate file changed", "file", ev.Name, "op", ev.Op.String())
				w.schedule()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("certificate watch error", "error", err)
		}
	}
}

// StartAsync runs Start in its own goroutine.
func (w *Watcher) StartAsync() {
	go func() {
		if err := w.Start(); err != nil {
			w.log.Error("certificate watcher stopped", "error", err)
		}
	}()
}

// Stop ends Start and cancels a pending reload. Safe to call twice.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.timerMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.timerMu.Unlock()
	})
}

// schedule (re)arms the reload timer so a burst of events yields one
// reload after the burst.
func (w *Watcher) schedule() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Reset(w.debounce)
		return
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.stop:
			return
		default:
		}
		if err := w.Reload(); err != nil {
			w.log.Error("certificate reload failed, keeping previous", "error", err)
		}
	})
}
