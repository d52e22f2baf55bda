// Package buildinfo reports the version of the running binary.
//
// Values are injected at link time:
//
//	go build -ldflags "-X github.com/yndnr/memkv/internal/infra/buildinfo.Version=v1.0.0"
//
// When they are not, the module version and VCS stamp embedded by the Go
// toolchain are used.
package buildinfo
