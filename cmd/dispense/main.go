// Command dispense drives credit-gated dispensers through their device
// shadows.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/dispense/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands report their own failures; only cobra's argument and
		// flag errors arrive here unprinted.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(cli.ExitCommandError)
		}
		os.Exit(exitErr.Code)
	}
}
