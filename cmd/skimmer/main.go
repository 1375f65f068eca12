// Command skimmer connects to the Reverse Beacon Network spot feed.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/skimmer/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
