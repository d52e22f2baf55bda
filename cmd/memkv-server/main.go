// Command memkv-server runs the memkv in-memory key-value server.
//
// Usage:
//
//	memkv-server [flags]
//	memkv-server --config /etc/memkv/memkv.yaml
//
// Configuration is read from the YAML file, then MEMKV_* environment
// variables, then flags.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
