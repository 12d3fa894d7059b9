// Command frugalflow records income and expenses in a local-first ledger.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/frugalflow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
