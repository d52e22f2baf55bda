// Package config defines the memkv-server configuration.
//
//   - spec.go: ServerConfig and its sections, with koanf tags
//   - default.go: default values
//   - verify.go: validation
//   - sanitize.go: a copy safe to log
//
// Values are loaded by internal/infra/confloader.
package config
