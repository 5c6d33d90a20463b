// Command arenasim is the worker process entrypoint: it either runs
// the fight-processing loop (component F, subcommand "work") or, when
// re-execed as a container's PID 1, runs the forkserver (component B,
// subcommand "forkserver"). Structured the way
// Talismancer-gvisor-ligolo's runsc binary defers immediately to its
// cli package.
package main

import "github.com/PyBagheri/codefights/cmd/arenasim/cli"

func main() {
	cli.Main()
}
