// Package main provides the entry point for the citematch CLI.
package main

import (
	"os"

	"github.com/scholarkit/citematch/cmd/citematch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
