// Command replay runs a recorded GPS log through the tracking engine on
// virtual time and prints the finished run.
package main

import (
	"os"

	"backend-runtracker/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logging.Error().Err(err).Msg("replay failed")
		os.Exit(1)
	}
}
