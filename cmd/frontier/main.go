// Command frontier runs portfolio optimizations, efficient frontiers,
// backtests and Monte Carlo simulations from the command line and prints the
// results as JSON.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
