// Command cinerag is the entry point for the movie and TV recommendation
// assistant. It provides a CLI interface (via Cobra) and an HTTP server that
// streams replies over Server-Sent Events.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/cinerag/cmd/cinerag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
