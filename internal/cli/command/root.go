package command

import (
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memkv/internal/cli/config"
	"github.com/yndnr/memkv/internal/cli/connection"
	"github.com/yndnr/memkv/internal/cli/output"
	"github.com/yndnr/memkv/internal/infra/buildinfo"
	"github.com/yndnr/memkv/internal/infra/tlsroots"
	"github.com/yndnr/memkv/pkg/client"
)

const settingsKey = "settings"

// Settings is the resolved CLI configuration for one invocation.
type Settings struct {
	Config     *config.CLIConfig
	ConfigPath string
	Format     output.Format
	// TLS is nil unless the config asks for TLS.
	TLS *tls.Config
}

// Formatter returns the formatter for the selected output format.
func (s *Settings) Formatter() output.Formatter {
	return output.NewFormatter(s.Format)
}

// ClientOptions returns the dial options for the RESP server.
func (s *Settings) ClientOptions() client.Options {
	return client.Options{
		DialTimeout: s.Config.Timeout,
		Timeout:     s.Config.Timeout,
		TLS:         s.TLS,
	}
}

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:                 "memkv-cli",
		Usage:                "memkv command-line client",
		UsageText:            "memkv-cli [global options] [COMMAND [ARG...]]",
		Version:              buildinfo.String(),
		Flags:                globalFlags(),
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			ExecCommand(),
			REPLCommand(),
			BenchCommand(),
			StatusCommand(),
			SnapshotCommand(),
			HealthCommand(),
			ConfigCommand(),
		},
		Before: loadSettings,
		Action: func(c *cli.Context) error {
			if c.NArg() > 0 {
				return runExec(c, c.Args().Slice())
			}
			return runREPL(c)
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "memkv server address (host:port)",
		},
		&cli.StringFlag{
			Name:    "admin",
			Aliases: []string{"a"},
			Usage:   "admin HTTP address (host:port)",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: raw, json, yaml, table",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "dial and request timeout",
		},
		&cli.BoolFlag{
			Name:  "tls",
			Usage: "connect over TLS",
		},
		&cli.StringFlag{
			Name:  "cacert",
			Usage: "PEM file of trusted CAs for TLS (implies --tls)",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "CLI config file",
			Value:   config.DefaultConfigPath(),
			EnvVars: []string{"MEMKV_CLI_CONFIG"},
		},
	}
}

// loadSettings resolves config file, environment and flags, in rising
// priority.
func loadSettings(c *cli.Context) error {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if c.IsSet("server") {
		cfg.Server = c.String("server")
	}
	if c.IsSet("admin") {
		cfg.Admin = c.String("admin")
	}
	if c.IsSet("output") {
		cfg.Output = c.String("output")
	}
	if c.IsSet("timeout") {
		cfg.Timeout = c.Duration("timeout")
	}
	if c.IsSet("tls") {
		cfg.TLS = c.Bool("tls")
	}
	if c.IsSet("cacert") {
		cfg.CAFile = c.String("cacert")
		cfg.TLS = true
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		return err
	}
	tlsCfg, err := clientTLS(cfg)
	if err != nil {
		return err
	}
	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[settingsKey] = &Settings{Config: cfg, ConfigPath: path, Format: format, TLS: tlsCfg}
	return nil
}

// clientTLS builds the client TLS config. Without a CA file the system
// roots are trusted.
func clientTLS(cfg *config.CLIConfig) (*tls.Config, error) {
	if !cfg.TLS {
		return nil, nil
	}
	roots := tlsroots.NewPool()
	if cfg.CAFile != "" {
		var err error
		if roots, err = tlsroots.LoadCAFile(cfg.CAFile); err != nil {
			return nil, err
		}
	}
	return roots.ClientConfig(""), nil
}

// GetSettings retrieves the settings stored by the Before hook.
func GetSettings(c *cli.Context) *Settings {
	if s, ok := c.App.Metadata[settingsKey].(*Settings); ok {
		return s
	}
	return &Settings{Config: config.Default(), Format: output.FormatRaw}
}

// adminClient creates the HTTP client for the admin endpoints.
func adminClient(c *cli.Context) *connection.AdminClient {
	s := GetSettings(c)
	return connection.NewAdminClient(s.Config.Admin, "memkv-cli/"+buildinfo.Get().Version, s.Config.Timeout, s.TLS)
}

// printResult formats data to the app's writer.
func printResult(c *cli.Context, data any) error {
	return GetSettings(c).Formatter().Format(c.App.Writer, data)
}

// errWriter returns the app's error writer.
func errWriter(c *cli.Context) io.Writer {
	if c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return c.App.Writer
}

// PrintError prints an error message to the app's error writer.
func PrintError(c *cli.Context, format string, args ...any) {
	fmt.Fprintf(errWriter(c), "error: "+format+"\n", args...)
}
