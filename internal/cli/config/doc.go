// Package config defines memkv-cli's configuration and its file location.
package config
