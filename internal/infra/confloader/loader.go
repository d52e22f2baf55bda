package confloader

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// DefaultEnvPrefix is stripped from variable names before mapping.
	DefaultEnvPrefix = "MEMKV_"

	// envNesting stands for the dot between sections in variable names,
	// so MEMKV_STORAGE__DATA_DIR sets storage.data_dir.
	envNesting = "__"
)

// Loader merges YAML file, environment and override values into a koanf
// tree. Later sources win: file, then env, then overrides.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	overrides map[string]any
}

// Option configures a Loader.
type Option func(*Loader)

func WithEnvPrefix(prefix string) Option { return func(l *Loader) { l.envPrefix = prefix } }
func WithConfigFile(path string) Option  { return func(l *Loader) { l.filePath = path } }

// WithOverrides sets dotted keys ("storage.data_dir") that beat every
// other source. Command line flags come in this way.
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) { l.overrides = values }
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{k: koanf.New("."), envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FilePath is the file given by WithConfigFile, possibly empty.
func (l *Loader) FilePath() string { return l.filePath }

// Load merges all sources and decodes into target. Keys no source sets
// leave target untouched, so target should arrive holding defaults.
func (l *Loader) Load(target any) error {
	steps := []func() error{
		func() error { return l.LoadFile(l.filePath) },
		l.LoadEnv,
		func() error { return l.LoadMap(l.overrides) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	if err := l.Unmarshal(target); err != nil {
		return fmt.Errorf("confloader: unmarshal: %w", err)
	}
	return nil
}

// LoadFile merges a YAML file. An empty path does nothing.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("confloader: %s: %w", path, err)
	}
	return nil
}

// LoadEnv merges variables starting with the env prefix.
func (l *Loader) LoadEnv() error {
	if err := l.k.Load(env.Provider(l.envPrefix, ".", l.envKey), nil); err != nil {
		return fmt.Errorf("confloader: environment: %w", err)
	}
	return nil
}

func (l *Loader) envKey(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, l.envPrefix))
	return strings.ReplaceAll(name, envNesting, ".")
}

// LoadMap merges dotted keys. A nil map does nothing.
func (l *Loader) LoadMap(values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	if err := l.k.Load(mapProvider(values), nil); err != nil {
		return fmt.Errorf("confloader: overrides: %w", err)
	}
	return nil
}

// Unmarshal decodes everything merged so far using koanf tags.
func (l *Loader) Unmarshal(target any) error { return l.k.Unmarshal("", target) }

func (l *Loader) GetString(key string) string { return l.k.String(key) }
func (l *Loader) GetBool(key string) bool     { return l.k.Bool(key) }
func (l *Loader) Keys() []string              { return l.k.Keys() }
