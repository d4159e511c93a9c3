// Command mediaengine runs the local-first media library kernel: the
// filesystem watcher, the bounded ingestion worker, and the maintenance
// subcommands (scan, inhale, status) that operate on the same catalogue
// without starting the watcher.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
