// Command sitesim is the CLI entry point for the stochastic site-graph
// reaction simulator: it parses a signature and parameter set, runs the CTMC
// kernel, and writes the resulting observable report.
package main

import (
	"os"

	"github.com/sitesim/reactor/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
