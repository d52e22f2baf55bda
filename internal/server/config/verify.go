package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/yndnr/memkv/internal/server/guard"
	"github.com/yndnr/memkv/internal/storage/aof"
	"github.com/yndnr/memkv/internal/storage/snapshot"
	"github.com/yndnr/memkv/pkg/crypto/adaptive"
)

// Verify validates the configuration and creates the data directory.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifySecurity(&cfg.Security); err != nil {
		return err
	}
	if cfg.Engine.Shards < 0 || cfg.Engine.Shards&(cfg.Engine.Shards-1) != 0 {
		return fmt.Errorf("engine.shards must be a power of two, got %d", cfg.Engine.Shards)
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection) error {
	if err := verifyAddr("server.redis.addr", cfg.Redis.Addr); err != nil {
		return err
	}
	if sock := cfg.Local.Socket; sock != "" && !filepath.IsAbs(sock) {
		return fmt.Errorf("server.local.socket must be an absolute path, got %q", sock)
	}
	if cfg.Admin.Enabled {
		if err := verifyAddr("server.admin.addr", cfg.Admin.Addr); err != nil {
			return err
		}
		if cfg.Admin.Addr == cfg.Redis.Addr {
			return errors.New("server.admin.addr and server.redis.addr must differ")
		}
		for _, entry := range cfg.Admin.AllowList {
			if _, err := guard.ParseEntry(entry); err != nil {
				return fmt.Errorf("server.admin.allow_list: %w", err)
			}
		}
	}
	if cfg.Redis.ReadTimeout < 0 || cfg.Redis.WriteTimeout < 0 || cfg.Redis.IdleTimeout < 0 {
		return errors.New("server.redis timeouts must not be negative")
	}
	if cfg.Redis.RateLimit < 0 || cfg.Redis.RateBurst < 0 {
		return errors.New("server.redis.rate_limit and rate_burst must not be negative")
	}
	if cfg.Redis.MaxConnections < 0 {
		return errors.New("server.redis.max_connections must not be negative")
	}
	return nil
}

func verifyAddr(key, addr string) error {
	if addr == "" {
		return fmt.Errorf("%s is required", key)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return fmt.Errorf("cannot create data directory: %w", err)
	}

	switch cfg.SnapshotBackend {
	case snapshot.BackendFile, snapshot.BackendBadger:
	default:
		return fmt.Errorf("storage.snapshot_backend: unknown backend %q", cfg.SnapshotBackend)
	}
	if cfg.SnapshotBackend == snapshot.BackendFile && cfg.SnapshotFile == "" {
		return errors.New("storage.snapshot_file is required")
	}
	if cfg.SnapshotInterval < 0 {
		return errors.New("storage.snapshot_interval must not be negative")
	}
	if cfg.AppendOnly && cfg.AppendFile == "" {
		return errors.New("storage.append_file is required when append_only is set")
	}
	if _, err := aof.ParseSyncMode(cfg.AppendSync); err != nil {
		return fmt.Errorf("storage.append_sync: %w", err)
	}
	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	if err := verifyTLS(&cfg.TLS); err != nil {
		return err
	}
	if _, err := adaptive.ParseType(cfg.Cipher); err != nil {
		return fmt.Errorf("security.cipher: %w", err)
	}
	if cfg.EncryptionKey == "" {
		return nil
	}
	key, err := adaptive.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("security.encryption_key: %w", err)
	}
	adaptive.ZeroKey(key)
	return nil
}

func verifyTLS(cfg *TLSConfig) error {
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return errors.New("security.tls: cert_file and key_file must be set together")
	}
	if cfg.ClientCAFile != "" && cfg.CertFile == "" {
		return errors.New("security.tls.client_ca_file requires cert_file")
	}
	for key, path := range map[string]string{
		"cert_file":      cfg.CertFile,
		"key_file":       cfg.KeyFile,
		"client_ca_file": cfg.ClientCAFile,
	} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("security.tls.%s: %w", key, err)
		}
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", cfg.Level)
	}
	switch cfg.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Format)
	}
	return nil
}
