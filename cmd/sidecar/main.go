// Package main provides the entry point for the sidecar CLI.
package main

import (
	"fmt"
	"os"

	"github.com/skcd-labs/sidecar-core/cmd/sidecar/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
