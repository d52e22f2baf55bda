// Package command defines memkv-cli's commands using urfave/cli/v2.
//
// Run without arguments the CLI opens the REPL. Given a command such as
// "memkv-cli SET k v" it sends that one command and prints the reply.
// The remaining subcommands cover load generation (bench), the admin
// endpoints (status, snapshot, health) and the local config file.
package command
