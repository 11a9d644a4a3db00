// Command scansync submits container scans to the tracking API and keeps
// them in a local queue while the API is unreachable.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/scansync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
