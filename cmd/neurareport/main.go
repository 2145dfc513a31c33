// Package main provides the NeuraReport CLI.
package main

import (
	"fmt"
	"os"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
