package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memkv/internal/server/localserver"
)

// ctlCommand sends one command to a running server's control socket.
func ctlCommand() *cli.Command {
	return &cli.Command{
		Name:      "ctl",
		Usage:     "Send a command to a running server's control socket",
		ArgsUsage: "ping|status|save|reload|shutdown|help",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "socket",
				Usage:    "control socket path",
				EnvVars:  []string{"MEMKV_SOCKET"},
				Required: true,
			},
			&cli.DurationFlag{Name: "timeout", Value: 30 * time.Second},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return errors.New("missing command")
			}
			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()
			data, err := localserver.Call(ctx, c.String("socket"), c.Args().First(), c.Args().Tail()...)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, string(data))
			return err
		},
	}
}
