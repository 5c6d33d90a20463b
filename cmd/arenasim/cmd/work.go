//go:build linux

package cmd

import (
	"context"
	"flag"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/subcommands"

	"github.com/PyBagheri/codefights/internal/config"
	"github.com/PyBagheri/codefights/internal/orchestrator"
	"github.com/PyBagheri/codefights/internal/queue"
	"github.com/PyBagheri/codefights/internal/rlog"
	"github.com/PyBagheri/codefights/internal/sandbox"
)

// Work implements subcommands.Command for "work": the steady-state
// loop of component F, one fight at a time. Grounded on
// original_source/simulator/entry.py's crash-recovery claim pass
// followed by its `while True` blocking-read loop.
type Work struct{}

func (*Work) Name() string     { return "work" }
func (*Work) Synopsis() string { return "pull fight requests off the queue and run them, one at a time" }
func (*Work) Usage() string {
	return "work - run the fight-processing worker loop until killed\n"
}
func (*Work) SetFlags(*flag.FlagSet) {}

func (*Work) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if err := sandbox.AssertNoElevatedCapabilities(); err != nil {
		fatalf("capability preflight: %v", err)
	}

	g, sim, err := config.FromEnv()
	if err != nil {
		fatalf("loading config: %v", err)
	}
	log := rlog.New(g.WorkerName)

	// One fight at a time, one lock file per worker scratch root: two
	// worker processes sharing a filesystem root can never race on the
	// same forkserver container directory (SPEC_FULL.md §4.F).
	lock := flock.New(filepath.Join(g.ScratchRoot, "arenasim.lock"))

	wc := orchestrator.NewWorkerContext(g, sim, log)
	orch := orchestrator.New(wc)

	q := queue.New(g)
	defer q.Close()
	if err := q.EnsureGroup(ctx); err != nil {
		fatalf("ensuring consumer group: %v", err)
	}

	runOne := func(d queue.Delivery) {
		locked, err := lock.TryLock()
		if err != nil || !locked {
			log.Errorf("acquiring fight lock: %v", err)
			return
		}
		defer lock.Unlock()

		flog := log.With("fight_id", string(d.Request.FightID))
		report, finalStates, err := orch.RunFight(ctx, d.Request)
		if err != nil {
			// Forkserver-fatal per spec §7's propagation policy: log and
			// leave the request unacked for the next worker's crash
			// recovery pass to retry.
			flog.Errorf("fight failed: %v", err)
			return
		}

		res := queue.Result{FightID: d.Request.FightID, Report: report, FinalStates: finalStates}
		if err := q.PublishResult(ctx, res); err != nil {
			flog.Errorf("publishing result: %v", err)
			return
		}
		if err := q.Ack(ctx, d.MessageID); err != nil {
			flog.Errorf("acking request: %v", err)
		}
	}

	pending, err := q.ClaimPending(ctx)
	if err != nil {
		fatalf("claiming pending requests: %v", err)
	}
	for _, d := range pending {
		runOne(d)
	}

	for {
		d, err := q.NextRequest(ctx)
		if err != nil {
			log.Errorf("reading next request: %v", err)
			continue
		}
		runOne(*d)
	}
}
