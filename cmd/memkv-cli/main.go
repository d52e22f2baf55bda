// Command memkv-cli is the command-line client for memkv.
//
// Without arguments it opens an interactive shell; with a command it
// sends that command and prints the reply:
//
//	memkv-cli -s 127.0.0.1:6379
//	memkv-cli -s 127.0.0.1:6379 SET greeting hello
//	memkv-cli bench -n 100000 -C 16 -t set,get
package main

import (
	"fmt"
	"os"

	"github.com/yndnr/memkv/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
