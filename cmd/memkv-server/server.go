package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/yndnr/memkv/internal/core/engine"
	"github.com/yndnr/memkv/internal/infra/tlsroots"
	"github.com/yndnr/memkv/internal/server/config"
	"github.com/yndnr/memkv/internal/server/httpserver"
	"github.com/yndnr/memkv/internal/server/localserver"
	"github.com/yndnr/memkv/internal/server/redisserver"
	"github.com/yndnr/memkv/internal/storage"
	"github.com/yndnr/memkv/internal/storage/aof"
	"github.com/yndnr/memkv/internal/storage/memory"
	"github.com/yndnr/memkv/internal/storage/snapshot"
	"github.com/yndnr/memkv/internal/telemetry/logger"
	"github.com/yndnr/memkv/internal/telemetry/metric"
	"github.com/yndnr/memkv/pkg/crypto/adaptive"
)

// server owns every long-lived component of one memkv-server process.
type server struct {
	cfg     *config.ServerConfig
	log     logger.Logger
	metrics *metric.Registry
	engine  *engine.Engine
	mgr     *storage.Manager
	redis   *redisserver.Server
	admin   *httpserver.Server
	certs   *tlsroots.Watcher
	local   *localserver.Server
	started time.Time
	ready   atomic.Bool

	// recovered guards the final snapshot: a failed recovery must not
	// overwrite the snapshot on disk with an empty keyspace.
	recovered atomic.Bool
}

// newServer builds the components without opening listeners or touching
// persisted state.
func newServer(cfg *config.ServerConfig, log logger.Logger) (*server, error) {
	reg := metric.NewRegistry()

	store := memory.New(
		memory.WithShards(cfg.Engine.Shards),
		memory.WithExpireHook(func(string) { reg.ExpiredKeys.Inc() }),
	)
	eng, err := engine.New(store,
		engine.WithQuirks(cfg.Engine.Quirks),
		engine.WithLogger(log),
		engine.WithMetrics(reg))
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}

	storageCfg, err := storageConfig(cfg, log, reg)
	if err != nil {
		return nil, err
	}
	mgr, err := storage.New(storageCfg, eng)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	reg.MustRegister(metric.NewCollector(mgr))

	tlsCfg, certs, err := serverTLS(cfg.Security.TLS, log)
	if err != nil {
		_ = mgr.Close()
		return nil, err
	}

	rc := cfg.Server.Redis
	redis, err := redisserver.New(&redisserver.Config{
		Addr:           rc.Addr,
		ReadTimeout:    rc.ReadTimeout,
		WriteTimeout:   rc.WriteTimeout,
		IdleTimeout:    rc.IdleTimeout,
		RateLimit:      rc.RateLimit,
		RateBurst:      rc.RateBurst,
		MaxConnections: rc.MaxConnections,
		TLS:            tlsCfg,
	}, eng, redisserver.WithLogger(log), redisserver.WithMetrics(reg))
	if err != nil {
		_ = mgr.Close()
		return nil, fmt.Errorf("init redis server: %w", err)
	}

	s := &server{
		cfg:     cfg,
		log:     log,
		metrics: reg,
		engine:  eng,
		mgr:     mgr,
		redis:   redis,
		certs:   certs,
		started: time.Now(),
	}

	if ac := cfg.Server.Admin; ac.Enabled {
		router := httpserver.NewRouter(&httpserver.RouterConfig{
			Store:          mgr,
			Metrics:        reg.Handler(),
			Ready:          s.ready.Load,
			Logger:         log,
			StartedAt:      s.started,
			AdminAllowList: ac.AllowList,
			AccessLog:      ac.AccessLog,
		})
		var opts []httpserver.Option
		if tlsCfg != nil {
			opts = append(opts, httpserver.WithTLS(tlsCfg))
		}
		s.admin = httpserver.New(ac.Addr, router, log, opts...)
	}
	return s, nil
}

// serverTLS loads the certificate shared by both listeners. It returns a
// nil config when TLS is off.
func serverTLS(tc config.TLSConfig, log logger.Logger) (*tls.Config, *tlsroots.Watcher, error) {
	if !tc.Enabled() {
		return nil, nil, nil
	}
	certs, err := tlsroots.NewWatcher(tc.CertFile, tc.KeyFile, tlsroots.WithLogger(log))
	if err != nil {
		return nil, nil, fmt.Errorf("init tls: %w", err)
	}
	var clientCAs *tlsroots.Pool
	if tc.ClientCAFile != "" {
		if clientCAs, err = tlsroots.LoadCAFile(tc.ClientCAFile); err != nil {
			return nil, nil, fmt.Errorf("security.tls.client_ca_file: %w", err)
		}
	}
	return tlsroots.ServerConfig(certs, clientCAs), certs, nil
}

// storageConfig translates the storage and security sections.
func storageConfig(cfg *config.ServerConfig, log logger.Logger, reg *metric.Registry) (storage.Config, error) {
	sc := storage.DefaultConfig(cfg.Storage.DataDir)
	sc.Snapshot.Backend = cfg.Storage.SnapshotBackend
	sc.Snapshot.File = cfg.Storage.SnapshotFile
	sc.LoadOnStartup = cfg.Storage.LoadOnStartup
	sc.SnapshotInterval = cfg.Storage.SnapshotInterval
	sc.AppendOnly = cfg.Storage.AppendOnly
	sc.AppendFile = cfg.Storage.AppendFile
	sc.Logger = log
	sc.Metrics = reg

	mode, err := aof.ParseSyncMode(cfg.Storage.AppendSync)
	if err != nil {
		return sc, err
	}
	sc.AppendSync = mode

	if cfg.Security.EncryptionKey == "" {
		return sc, nil
	}
	key, err := adaptive.ParseKey(cfg.Security.EncryptionKey)
	if err != nil {
		return sc, fmt.Errorf("security.encryption_key: %w", err)
	}
	if sc.Snapshot.Backend == snapshot.BackendBadger {
		sc.Snapshot.Key = key
		return sc, nil
	}
	cipherType, err := adaptive.ParseType(cfg.Security.Cipher)
	if err != nil {
		return sc, fmt.Errorf("security.cipher: %w", err)
	}
	c, err := adaptive.NewWithType(key, cipherType)
	adaptive.ZeroKey(key)
	if err != nil {
		return sc, fmt.Errorf("init cipher: %w", err)
	}
	sc.Snapshot.Cipher = c
	return sc, nil
}

// start opens the admin listener, recovers state, then accepts RESP
// clients. /ready reports 503 until recovery is done, and stays there
// when recovery failed and the server runs from memory only.
func (s *server) start(ctx context.Context) error {
	if s.certs != nil {
		s.certs.StartAsync()
	}
	if s.admin != nil {
		if err := s.admin.Start(); err != nil {
			return fmt.Errorf("start admin server: %w", err)
		}
	}

	start := time.Now()
	err := s.mgr.Recover(ctx)
	switch {
	case errors.Is(err, storage.ErrPersistence):
		// Nothing is appended and no final snapshot is written; the
		// files on disk stay as they were.
		s.log.Error("recovery failed, serving from memory without persistence",
			"keys", s.mgr.KeyCount(),
			"error", err)
	case err != nil:
		s.stopAdminQuietly()
		return fmt.Errorf("recover: %w", err)
	default:
		s.recovered.Store(true)
		s.log.Info("recovery complete",
			"keys", s.mgr.KeyCount(),
			"elapsed", time.Since(start))
		s.mgr.Start()
	}

	if err := s.redis.Start(ctx); err != nil {
		s.stopAdminQuietly()
		return fmt.Errorf("start redis server: %w", err)
	}
	s.ready.Store(s.recovered.Load())
	return nil
}

// startLocal opens the control socket when one is configured. reload may
// be nil.
func (s *server) startLocal(reload func() error, shutdown func()) error {
	path := s.cfg.Server.Local.Socket
	if path == "" {
		return nil
	}
	h := localserver.NewHandler(localserver.HandlerConfig{
		Store:     s.mgr,
		Reload:    reload,
		Shutdown:  shutdown,
		StartedAt: s.started,
	})
	local := localserver.New(path, h, s.log)
	if err := local.Start(); err != nil {
		return fmt.Errorf("start control socket: %w", err)
	}
	s.local = local
	return nil
}

func (s *server) stopLocal(ctx context.Context) error {
	if s.local == nil {
		return nil
	}
	return s.local.Shutdown(ctx)
}

func (s *server) stopRedis(ctx context.Context) error {
	s.ready.Store(false)
	return s.redis.Shutdown(ctx)
}

func (s *server) stopAdmin(ctx context.Context) error {
	if s.admin == nil {
		return nil
	}
	return s.admin.Shutdown(ctx)
}

func (s *server) stopCerts(context.Context) error {
	if s.certs != nil {
		s.certs.Stop()
	}
	return nil
}

func (s *server) stopAdminQuietly() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.stopAdmin(ctx)
}

// closeStorage writes the final snapshot when configured and closes the
// log and backend.
func (s *server) closeStorage(ctx context.Context) error {
	var errs []error
	if s.cfg.Storage.SaveOnShutdown && s.recovered.Load() {
		if _, err := s.mgr.Save(ctx); err != nil {
			errs = append(errs, fmt.Errorf("final snapshot: %w", err))
		}
	}
	if err := s.mgr.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
