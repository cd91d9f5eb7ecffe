package main

import (
	"os"

	"navisol/cmd/navisol/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := commands.NewRootCommand(commands.VersionInfo{Version: version, Commit: commit, Date: date})
	// Errors are printed by the printer package; cobra's own output is silenced.
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
