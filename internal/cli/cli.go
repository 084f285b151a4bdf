// Package cli provides the command-line interface for chat2vis.
package cli

import (
	"fmt"
	"os"
)

// Version is stamped at build time with -ldflags "-X".
var Version = "dev"

// Run starts the CLI application.
func Run() {
	rootCmd := NewRootCmd()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
