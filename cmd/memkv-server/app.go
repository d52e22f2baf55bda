package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memkv/internal/infra/buildinfo"
	"github.com/yndnr/memkv/internal/infra/confloader"
	"github.com/yndnr/memkv/internal/infra/shutdown"
	"github.com/yndnr/memkv/internal/server/config"
	"github.com/yndnr/memkv/internal/telemetry/logger"
)

const shutdownTimeout = 30 * time.Second

func newApp() *cli.App {
	return &cli.App{
		Name:    "memkv-server",
		Usage:   "in-memory key-value server speaking RESP",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to configuration file",
				EnvVars: []string{"MEMKV_CONFIG"},
			},
			&cli.StringFlag{Name: "addr", Usage: "RESP listen address"},
			&cli.StringFlag{Name: "admin-addr", Usage: "admin HTTP listen address"},
			&cli.StringFlag{Name: "data-dir", Usage: "directory for snapshots and the append-only log"},
			&cli.BoolFlag{Name: "appendonly", Usage: "enable the append-only log"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "socket", Usage: "control socket path"},
		},
		Commands: []*cli.Command{
			genCertCommand(),
			ctlCommand(),
		},
		Action: run,
	}
}

// flagOverrides maps set flags to dotted config keys.
func flagOverrides(c *cli.Context) map[string]any {
	keys := map[string]string{
		"addr":       "server.redis.addr",
		"admin-addr": "server.admin.addr",
		"data-dir":   "storage.data_dir",
		"log-level":  "log.level",
		"socket":     "server.local.socket",
	}
	out := make(map[string]any)
	for flag, key := range keys {
		if c.IsSet(flag) {
			out[key] = c.String(flag)
		}
	}
	if c.IsSet("appendonly") {
		out["storage.append_only"] = c.Bool("appendonly")
	}
	return out
}

// loadConfig reads defaults, file, environment and overrides, then
// verifies the result.
func loadConfig(path string, overrides map[string]any) (*config.ServerConfig, error) {
	cfg := config.Default()
	loader := confloader.NewLoader(
		confloader.WithConfigFile(path),
		confloader.WithOverrides(overrides),
	)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(c *cli.Context) error {
	configFile := c.String("config")
	overrides := flagOverrides(c)

	cfg, err := loadConfig(configFile, overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Components: cfg.Log.Components,
		Output:     os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)

	info := buildinfo.Get()
	log.Info("starting memkv-server",
		"version", info.Version,
		"commit", info.Commit,
		"go", info.GoVersion,
		"config", configFile)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	srv, err := newServer(cfg, log)
	if err != nil {
		return err
	}

	sh := shutdown.NewHandler(shutdownTimeout, log)
	sh.OnShutdown("storage", srv.closeStorage)
	sh.OnShutdown("tls", srv.stopCerts)
	if err := srv.start(c.Context); err != nil {
		_ = srv.stopCerts(context.Background())
		_ = srv.closeStorage(context.Background())
		return err
	}
	sh.OnShutdown("admin", srv.stopAdmin)
	sh.OnShutdown("redis", srv.stopRedis)

	var reload func() error
	if configFile != "" {
		reload = func() error { return applyConfig(configFile, overrides, log) }
		w, err := watchConfig(configFile, reload, log)
		if err != nil {
			log.Warn("config watcher disabled", "error", err)
		} else {
			sh.OnShutdown("watcher", func(context.Context) error { return w.Stop() })
		}
	}
	if err := srv.startLocal(reload, sh.Trigger); err != nil {
		log.Warn("control socket disabled", "error", err)
	} else {
		sh.OnShutdown("local", srv.stopLocal)
	}

	log.Info("server started",
		"redis_addr", srv.redis.Addr().String(),
		"keys", srv.mgr.KeyCount())
	if err := sh.Wait(c.Context); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

// applyConfig re-reads the config file and applies the log level and
// component filter. Other settings need a restart.
func applyConfig(path string, overrides map[string]any, log logger.Logger) error {
	cfg, err := loadConfig(path, overrides)
	if err != nil {
		return err
	}
	if cfg.Log.Level != logger.GetLevel() {
		logger.SetLevel(cfg.Log.Level)
		log.Info("log level changed", "level", cfg.Log.Level)
	}
	logger.SetComponents(cfg.Log.Components)
	return nil
}

// watchConfig calls reload whenever the config file changes.
func watchConfig(path string, reload func() error, log logger.Logger) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return nil, err
	}
	w.OnChange(func(string) {
		if err := reload(); err != nil {
			log.Warn("ignoring invalid configuration change", "error", err)
		}
	})
	w.StartAsync()
	return w, nil
}
