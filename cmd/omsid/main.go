// Command omsid manages a provenance-backed score ledger: pipelines
// declared in CUE register the score types, software, and processing
// steps that scores are recorded against in a SQLite store.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/IceFreez3r/OpenMS/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			// Commands print their own formatted output before
			// returning an ExitError; only the code is left to apply.
			os.Exit(exitErr.Code)
		}
		// Flag and configuration errors never reach a command's
		// formatter.
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCommandError)
	}
}
