package config

import "time"

// CLIConfig is the memkv-cli configuration.
type CLIConfig struct {
	// Server is the RESP address of the server.
	Server string `koanf:"server" yaml:"server"`

	// Admin is the address of the admin HTTP server.
	Admin string `koanf:"admin" yaml:"admin"`

	// Output is the default output format: raw, json, yaml or table.
	Output string `koanf:"output" yaml:"output"`

	// Timeout bounds dialing and each request.
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`

	// HistoryFile stores REPL history. Empty disables it.
	HistoryFile string `koanf:"history_file" yaml:"history_file"`

	// TLS connects to both servers over TLS.
	TLS bool `koanf:"tls" yaml:"tls"`

	// CAFile is a PEM bundle used instead of the system roots.
	CAFile string `koanf:"ca_file" yaml:"ca_file,omitempty"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Server:      "127.0.0.1:6379",
		Admin:       "127.0.0.1:6380",
		Output:      "raw",
		Timeout:     5 * time.Second,
		HistoryFile: DefaultHistoryPath(),
	}
}
