package config

import (
	"time"

	"github.com/yndnr/memkv/internal/core/engine"
)

// ServerConfig is the root configuration for memkv-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Storage  StorageSection  `koanf:"storage"`
	Security SecuritySection `koanf:"security"`
	Engine   EngineSection   `koanf:"engine"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures listeners.
type ServerSection struct {
	Redis RedisConfig `koanf:"redis"`
	Admin AdminConfig `koanf:"admin"`
	Local LocalConfig `koanf:"local"`
}

// RedisConfig configures the RESP listener.
type RedisConfig struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`

	// RateLimit is commands per second per client IP. Zero disables it.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	MaxConnections int `koanf:"max_connections"`
}

// AdminConfig configures the admin HTTP listener.
type AdminConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
	// AllowList restricts /admin/v1 to these IPs or CIDRs. Empty allows all.
	AllowList []string `koanf:"allow_list"`
	// AccessLog logs every admin request.
	AccessLog bool `koanf:"access_log"`
}

// LocalConfig configures the control socket. An empty Socket disables it.
type LocalConfig struct {
	Socket string `koanf:"socket"`
}

// StorageSection configures persistence.
type StorageSection struct {
	DataDir string `koanf:"data_dir"`

	SnapshotBackend  string        `koanf:"snapshot_backend"`
	SnapshotFile     string        `koanf:"snapshot_file"`
	SnapshotInterval time.Duration `koanf:"snapshot_interval"`
	LoadOnStartup    bool          `koanf:"load_on_startup"`
	SaveOnShutdown   bool          `koanf:"save_on_shutdown"`

	AppendOnly bool   `koanf:"append_only"`
	AppendFile string `koanf:"append_file"`
	AppendSync string `koanf:"append_sync"`
}

// SecuritySection configures snapshot encryption and listener TLS.
type SecuritySection struct {
	// EncryptionKey is a hex encoded 32 byte key. Empty disables encryption.
	EncryptionKey string `koanf:"encryption_key"`

	// Cipher is "aes-gcm", "chacha20-poly1305" or "auto".
	Cipher string `koanf:"cipher"`

	TLS TLSConfig `koanf:"tls"`
}

// TLSConfig enables TLS on both listeners when CertFile is set. The key
// pair is reloaded when its files change.
type TLSConfig struct {
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
	// ClientCAFile requires clients to present a certificate signed by
	// one of its CAs.
	ClientCAFile string `koanf:"client_ca_file"`
}

// Enabled reports whether a key pair is configured.
func (c TLSConfig) Enabled() bool {
	return c.CertFile != ""
}

// EngineSection configures command execution.
type EngineSection struct {
	Shards int           `koanf:"shards"`
	Quirks engine.Quirks `koanf:"quirks"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// Components limits debug, info and warn output to a comma-separated
	// list such as "core,persistence". Empty logs everything.
	Components string `koanf:"components"`
}
