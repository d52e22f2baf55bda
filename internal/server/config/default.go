package config

import (
	"time"

	"github.com/yndnr/memkv/internal/core/engine"
	"github.com/yndnr/memkv/internal/storage/aof"
	"github.com/yndnr/memkv/internal/storage/snapshot"
	"github.com/yndnr/memkv/pkg/cmap"
)

// Default configuration values.
const (
	DefaultRedisAddr    = "127.0.0.1:6379"
	DefaultAdminAddr    = "127.0.0.1:6380"
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 5 * time.Minute

	DefaultDataDir    = "./data"
	DefaultAppendFile = "appendonly.aof"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Redis: RedisConfig{
				Addr:         DefaultRedisAddr,
				ReadTimeout:  DefaultReadTimeout,
				WriteTimeout: DefaultWriteTimeout,
				IdleTimeout:  DefaultIdleTimeout,
			},
			Admin: AdminConfig{
				Enabled: true,
				Addr:    DefaultAdminAddr,
			},
		},
		Storage: StorageSection{
			DataDir:         DefaultDataDir,
			SnapshotBackend: snapshot.BackendFile,
			SnapshotFile:    snapshot.DefaultFile,
			LoadOnStartup:   true,
			SaveOnShutdown:  true,
			AppendFile:      DefaultAppendFile,
			AppendSync:      string(aof.SyncEverySec),
		},
		Engine: EngineSection{
			Shards: cmap.DefaultShardCount,
			Quirks: engine.DefaultQuirks(),
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
