package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memkv/internal/cli/connection"
	"github.com/yndnr/memkv/internal/cli/repl"
)

// ExecCommand sends one command and prints its reply.
func ExecCommand() *cli.Command {
	return &cli.Command{
		Name:      "exec",
		Usage:     "Send one command and print the reply",
		ArgsUsage: "COMMAND [ARG...]",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("command required")
			}
			return runExec(c, c.Args().Slice())
		},
	}
}

// REPLCommand opens the interactive shell.
func REPLCommand() *cli.Command {
	return &cli.Command{
		Name:   "repl",
		Usage:  "Start the interactive shell",
		Action: runREPL,
	}
}

// runExec sends args as one command. Error replies are printed like any
// other reply.
func runExec(c *cli.Context, args []string) error {
	s := GetSettings(c)
	ctx, cancel := context.WithTimeout(c.Context, s.Config.Timeout)
	defer cancel()

	mgr := connection.NewManager(s.ClientOptions())
	if err := mgr.Connect(ctx, s.Config.Server); err != nil {
		return fmt.Errorf("connect %s: %w", s.Config.Server, err)
	}
	defer mgr.Disconnect()

	reply, err := mgr.Do(ctx, args[0], args[1:]...)
	if err != nil {
		return err
	}
	return printResult(c, reply)
}

func runREPL(c *cli.Context) error {
	s := GetSettings(c)

	mgr := connection.NewManager(s.ClientOptions())
	defer mgr.Disconnect()
	ctx, cancel := context.WithTimeout(c.Context, s.Config.Timeout)
	err := mgr.Connect(ctx, s.Config.Server)
	cancel()
	if err != nil {
		PrintError(c, "connect %s: %v", s.Config.Server, err)
	}

	history := repl.NewHistory(s.Config.HistoryFile, 0)
	if err := history.Load(); err != nil {
		PrintError(c, "load history: %v", err)
	}

	r := repl.New(mgr,
		repl.WithIO(c.App.Reader, c.App.Writer),
		repl.WithFormat(s.Format),
		repl.WithHistory(history))
	runErr := r.Run(c.Context)

	if err := history.Save(); err != nil {
		PrintError(c, "save history: %v", err)
	}
	return runErr
}
