// Command worldpurpose runs the purpose auction ledger CLI.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/worldpurpose/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
