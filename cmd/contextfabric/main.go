// Package main provides the entry point for the contextfabric CLI.
package main

import (
	"os"

	"github.com/context-fabric/contextfabric/cmd/contextfabric/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
