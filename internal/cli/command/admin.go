package command

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memkv/internal/cli/output"
)

// StatusCommand shows the server status from the admin endpoint.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show server status (keys, AOF offset, last snapshot)",
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithTimeout(c.Context, GetSettings(c).Config.Timeout)
			defer cancel()

			data, err := adminClient(c).Status(ctx)
			if err != nil {
				return err
			}
			return printResult(c, data)
		},
	}
}

// SnapshotCommand asks the server to write a snapshot.
func SnapshotCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "Write a snapshot now",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "hide the spinner"},
		},
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithTimeout(c.Context, GetSettings(c).Config.Timeout)
			defer cancel()

			var spin *output.Spinner
			if !c.Bool("quiet") {
				spin = output.NewSpinner(errWriter(c), "writing snapshot")
				spin.Start()
			}
			data, err := adminClient(c).Snapshot(ctx)
			if spin != nil {
				if err != nil {
					spin.Fail(err.Error())
				} else {
					spin.Success("snapshot written")
				}
			}
			if err != nil {
				return err
			}
			return printResult(c, data)
		},
	}
}

// HealthCommand checks the server's health endpoint.
func HealthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithTimeout(c.Context, GetSettings(c).Config.Timeout)
			defer cancel()

			data, err := adminClient(c).Health(ctx)
			if err != nil {
				return err
			}
			return printResult(c, data)
		},
	}
}
