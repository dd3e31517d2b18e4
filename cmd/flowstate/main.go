// Command flowstate runs and inspects flowstate machines.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/flowstate/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
