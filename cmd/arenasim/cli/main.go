// Package cli is the main entrypoint for arenasim, registering its
// subcommands the way runsc/cli/main.go registers runsc's.
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/PyBagheri/codefights/cmd/arenasim/cmd"
	"github.com/PyBagheri/codefights/internal/rlog"

	// Blank-imported for their init() registration with the referee
	// registry (internal/referee.Register); cmd.Work and cmd.Fight
	// resolve games by name through that registry alone.
	_ "github.com/PyBagheri/codefights/internal/referee/tanks"
	_ "github.com/PyBagheri/codefights/internal/referee/testgame1"
)

var (
	logLevel = flag.String("log-level", "info", "minimum log level: debug, info, warning, error")
	logFile  = flag.String("log-file", "", "if set, append logs to this file in addition to stderr")
)

// Main is the process entrypoint.
func Main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	const workerGroup = "worker"
	subcommands.Register(&cmd.Work{}, workerGroup)
	subcommands.Register(&cmd.Fight{}, workerGroup)

	const internalGroup = "internal use only"
	subcommands.Register(&cmd.Forkserver{}, internalGroup)

	flag.Parse()

	if err := rlog.SetLevel(*logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "arenasim: invalid -log-level: %v\n", err)
		os.Exit(2)
	}
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "arenasim: opening -log-file: %v\n", err)
			os.Exit(2)
		}
		rlog.SetOutput(f)
	}

	os.Exit(int(subcommands.Execute(context.Background())))
}
