// Command meeteat runs the Meet & Eat billing backend.
package main

import (
	"fmt"
	"os"

	"github.com/meeteat/pos/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "meeteat:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
