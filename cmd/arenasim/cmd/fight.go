//go:build linux

package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/PyBagheri/codefights/internal/config"
	"github.com/PyBagheri/codefights/internal/orchestrator"
	"github.com/PyBagheri/codefights/internal/queue"
	"github.com/PyBagheri/codefights/internal/rlog"
	"github.com/PyBagheri/codefights/internal/sandbox"
)

// Fight implements subcommands.Command for "fight": run exactly one
// FightRequest read from a JSON file and print the result record to
// stdout, bypassing the queue entirely. Useful for local development
// and for replaying a single result-record-shaped fixture (S1-S6).
type Fight struct {
	requestFile string
}

func (*Fight) Name() string     { return "fight" }
func (*Fight) Synopsis() string { return "run one fight request read from a file and print its result" }
func (*Fight) Usage() string {
	return "fight -request <path> - run a single FightRequest outside the queue\n"
}

func (f *Fight) SetFlags(fs *flag.FlagSet) {
	fs.StringVar(&f.requestFile, "request", "", "path to a JSON-encoded FightRequest")
}

func (f *Fight) Execute(ctx context.Context, fs *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.requestFile == "" {
		fs.Usage()
		return subcommands.ExitUsageError
	}

	if err := sandbox.AssertNoElevatedCapabilities(); err != nil {
		fatalf("capability preflight: %v", err)
	}

	raw, err := os.ReadFile(f.requestFile)
	if err != nil {
		fatalf("reading %s: %v", f.requestFile, err)
	}
	var req queue.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		fatalf("decoding %s: %v", f.requestFile, err)
	}

	g, sim, err := config.FromEnv()
	if err != nil {
		fatalf("loading config: %v", err)
	}
	log := rlog.New("fight")

	wc := orchestrator.NewWorkerContext(g, sim, log)
	orch := orchestrator.New(wc)

	report, finalStates, err := orch.RunFight(ctx, req)
	if err != nil {
		fatalf("running fight: %v", err)
	}

	out := queue.Result{FightID: req.FightID, Report: report, FinalStates: finalStates}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fatalf("encoding result: %v", err)
	}
	return subcommands.ExitSuccess
}
