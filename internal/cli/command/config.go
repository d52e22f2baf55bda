package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memkv/internal/cli/config"
	"github.com/yndnr/memkv/internal/cli/output"
)

// ConfigCommand manages the local CLI config file.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or change the CLI configuration",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration",
				Action: configShow,
			},
			{
				Name:      "set",
				Usage:     "Set a value in the config file",
				ArgsUsage: "KEY VALUE",
				Action:    configSet,
			},
			{
				Name:   "path",
				Usage:  "Print the config file path",
				Action: func(c *cli.Context) error {
					_, err := fmt.Fprintln(c.App.Writer, GetSettings(c).ConfigPath)
					return err
				},
			},
		},
	}
}

func configShow(c *cli.Context) error {
	s := GetSettings(c)
	return printResult(c, map[string]any{
		"server":       s.Config.Server,
		"admin":        s.Config.Admin,
		"output":       string(s.Format),
		"timeout":      s.Config.Timeout.String(),
		"history_file": s.Config.HistoryFile,
		"tls":          s.Config.TLS,
		"ca_file":      s.Config.CAFile,
	})
}

// configSet updates one key in the file only, so flag and environment
// overrides are not persisted.
func configSet(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: config set KEY VALUE")
	}
	key, value := strings.ToLower(c.Args().Get(0)), c.Args().Get(1)

	path := GetSettings(c).ConfigPath
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}

	switch key {
	case "server":
		cfg.Server = value
	case "admin":
		cfg.Admin = value
	case "output":
		if _, err := output.ParseFormat(value); err != nil {
			return err
		}
		cfg.Output = value
	case "timeout":
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid timeout %q", value)
		}
		cfg.Timeout = d
	case "history_file":
		cfg.HistoryFile = value
	case "tls":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid tls %q", value)
		}
		cfg.TLS = b
	case "ca_file":
		cfg.CAFile = value
	default:
		return fmt.Errorf("unknown key %q (want server, admin, output, timeout, history_file, tls or ca_file)", key)
	}

	if err := config.Save(cfg, path); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "%s = %s\n", key, value)
	return err
}
