package main

import (
	"log/slog"
	"os"

	"github.com/hardyoyo/pad-dspace-infra/internal"
	"github.com/hardyoyo/pad-dspace-infra/internal/cli"
)

// The entry point for tomcatconf.
//
// Initializes logging, displays build information, and executes the root
// command. Any error, including a failed fetch from the backend image, exits
// with code 1.
func main() {
	slog.SetDefault(cli.NewLogger(os.Stderr))

	slog.Debug("build", "version", internal.VersionString())

	slog.Debug("tomcatconf is running",
		"pid", os.Getpid(),
		"cwd", cwd(),
		"args", os.Args,
	)

	if err := cli.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

// Returns the current working directory or "(unknown)".
func cwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "(unknown)"
	}
	return cwd
}
