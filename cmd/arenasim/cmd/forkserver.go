//go:build linux

package cmd

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/PyBagheri/codefights/internal/coderunner"
	"github.com/PyBagheri/codefights/internal/config"
)

// Forkserver implements subcommands.Command for "forkserver": this is
// the container's PID 1 (component B), never invoked by an operator
// directly -- the OCI spec built in internal/sandbox.buildSpec names
// this exact subcommand as Process.Args.
type Forkserver struct{}

func (*Forkserver) Name() string     { return "forkserver" }
func (*Forkserver) Synopsis() string { return "run the coderunner forkserver (container PID 1 only)" }
func (*Forkserver) Usage() string {
	return "forkserver - run as the sandbox container's PID 1; not for interactive use\n"
}
func (*Forkserver) SetFlags(*flag.FlagSet) {}

func (*Forkserver) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	sim, err := config.LoadSimulator(os.Getenv("SIMULATOR_SETTINGS_MODULE"))
	if err != nil {
		fatalf("loading simulator settings: %v", err)
	}

	fs, err := coderunner.NewForkserver(sim)
	if err != nil {
		fatalf("bootstrapping forkserver: %v", err)
	}
	if err := fs.Run(); err != nil {
		fatalf("forkserver loop: %v", err)
	}
	return subcommands.ExitSuccess
}
