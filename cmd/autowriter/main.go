// Package main provides the entry point for the autowriter CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/autowriter/cmd/autowriter/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
