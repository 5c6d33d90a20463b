//go:build linux

// Package orchestrator is the per-fight coordinator (component D): it
// resolves the referee, spins up one sandbox controller per player
// sharing a single attached forkserver, drives the referee's turn
// protocol, and assembles the result record. Grounded on
// original_source/simulator/entry.py's `process()` function.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/mohae/deepcopy"

	"github.com/PyBagheri/codefights/internal/config"
	"github.com/PyBagheri/codefights/internal/queue"
	"github.com/PyBagheri/codefights/internal/referee"
	"github.com/PyBagheri/codefights/internal/rlog"
	"github.com/PyBagheri/codefights/internal/sandbox"
	"github.com/PyBagheri/codefights/internal/tracer"
)

// WorkerContext is one explicit value constructed at startup in
// cmd/arenasim and threaded through the orchestrator: it carries the
// two loaded configs and the logger. It does not carry the game
// registry (a package-level table in internal/referee) or the Redis
// client (owned by queue.Queue, built from config.Global).
type WorkerContext struct {
	Global config.Global
	Sim    config.Simulator
	Log    *rlog.Logger
}

func NewWorkerContext(g config.Global, sim config.Simulator, log *rlog.Logger) *WorkerContext {
	return &WorkerContext{Global: g, Sim: sim, Log: log}
}

// Orchestrator runs one fight at a time; it is strictly single
// goroutine per fight, since the ptrace relationship is pinned to
// whichever OS thread attaches to the forkserver (spec §5).
type Orchestrator struct {
	wc *WorkerContext
}

func New(wc *WorkerContext) *Orchestrator {
	return &Orchestrator{wc: wc}
}

// RunFight implements spec §4.D end to end and returns exactly what
// component F needs to publish: the referee's ReportEnvelope and the
// per-player final_states array, in request order.
func (o *Orchestrator) RunFight(ctx context.Context, req queue.Request) (report interface{}, finalStates []interface{}, err error) {
	// Every ptrace request for this fight must come from the thread that
	// seized the forkserver.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	factory, ok := referee.Lookup(req.Game)
	if !ok {
		return nil, nil, fmt.Errorf("orchestrator: unknown game %q", req.Game)
	}
	playerCount := len(req.CodesFilenames)

	ref, err := factory(req.GameSettings, playerCount)
	if err != nil {
		return nil, nil, fmt.Errorf("orchestrator: construct referee for %q: %w", req.Game, err)
	}
	limits := ref.GetLimits()

	codes := make([]string, playerCount)
	for i, fn := range req.CodesFilenames {
		code, err := readCode(o.wc.Global.MediaRoot, fn)
		if err != nil {
			return nil, nil, fmt.Errorf("orchestrator: read code %q: %w", fn, err)
		}
		codes[i] = code
	}

	var gameSettings interface{}
	if len(req.GameSettings) > 0 {
		if err := json.Unmarshal(req.GameSettings, &gameSettings); err != nil {
			return nil, nil, fmt.Errorf("orchestrator: decode game_settings: %w", err)
		}
	}

	fightTag := sanitizeFightTag(req.FightID)
	bundle := filepath.Join(o.wc.Global.ScratchRoot, "bundles", fightTag)

	container, err := sandbox.StartForkserverContainer(ctx, o.wc.Global, fightTag, bundle, o.wc.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("orchestrator: start forkserver container: %w", err)
	}
	defer container.Delete(ctx)

	var totalMem int64
	for i := 0; i < playerCount; i++ {
		totalMem += int64(limits.MemBytes)
	}
	cg, err := sandbox.NewFightCgroup(filepath.Join("/codefights", fightTag), totalMem)
	if err != nil {
		o.wc.Log.Warningf("orchestrator: cgroup unavailable for fight %s: %v", fightTag, err)
	} else {
		defer cg.Delete()
		if err := cg.Add(container.HostPID); err != nil {
			o.wc.Log.Warningf("orchestrator: add forkserver to cgroup: %v", err)
		}
	}

	tr := tracer.New()
	fsHandle, err := sandbox.AttachForkserver(tr, o.wc.Sim, container.HostPID)
	if err != nil {
		// Fatal to the fight per spec §7's propagation policy ("errors
		// that classify the forkserver itself are fatal"); the caller
		// is expected to leave this request unacked for crash recovery.
		return nil, nil, fmt.Errorf("orchestrator: attach forkserver: %w", err)
	}
	defer fsHandle.Close()

	controllers := make([]*sandbox.Controller, playerCount)
	terminations := make([]*tracer.Termination, playerCount)
	alive := map[int]bool{}

	for i := 0; i < playerCount; i++ {
		ctl := sandbox.NewController(tr, o.wc.Sim, o.wc.Log, fsHandle.PID, fsHandle.R, fsHandle.W)
		playerContext := deepcopy.Copy(gameSettings)
		if err := ctl.Start(codes[i], playerContext, limits.CPUSec, limits.CPUNsec, limits.MemBytes); err != nil {
			return nil, nil, fmt.Errorf("orchestrator: start player %d: %w", i, err)
		}
		controllers[i] = ctl
		if ctl.Alive() {
			alive[i] = true
		} else {
			terminations[i] = ctl.LastError()
		}
	}

	run := func(playerIndex int, name string, args []interface{}) (referee.CommandOutcome, error) {
		ctl := controllers[playerIndex]
		outcome, result, err := ctl.RunCommand(name, args)
		if err != nil {
			return referee.CommandOutcome{}, fmt.Errorf("orchestrator: run_command player %d: %w", playerIndex, err)
		}
		switch outcome {
		case sandbox.OutcomeResult:
			return referee.CommandOutcome{Kind: referee.CommandResult, Result: result}, nil
		case sandbox.OutcomeException:
			return referee.CommandOutcome{Kind: referee.CommandException}, nil
		default:
			terminations[playerIndex] = ctl.LastError()
			return referee.CommandOutcome{Kind: referee.CommandEliminated}, nil
		}
	}

	ref.Simulate(alive, run)

	finalStates = make([]interface{}, playerCount)
	for i, ctl := range controllers {
		if alive[i] {
			if err := ctl.FinishClean(); err != nil {
				o.wc.Log.Warningf("orchestrator: cleanup player %d: %v", i, err)
			}
			finalStates[i] = 0
			continue
		}
		if err := ctl.FinishAfterError(); err != nil {
			o.wc.Log.Warningf("orchestrator: cleanup player %d: %v", i, err)
		}
		term := terminations[i]
		if term == nil {
			term = ctl.LastError()
		}
		if term == nil {
			term = &tracer.Termination{Reason: tracer.UnknownKill}
		}
		finalStates[i] = []interface{}{term.Reason.WireCode(), term.Explanation()}
	}

	return ref.GetReport(), finalStates, nil
}

// readCode reads one player's code file, mapping undecodable-as-UTF-8
// bytes to the empty string per spec §6 ("undecodable bytes are
// mapped to empty string") -- the Go analogue of
// original_source/simulator/entry.py's get_code() catching
// UnicodeDecodeError.
func readCode(mediaRoot, filename string) (string, error) {
	b, err := os.ReadFile(filepath.Join(mediaRoot, filename))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", nil
	}
	return string(b), nil
}

// sanitizeFightTag derives a filesystem/container-id-safe tag from an
// opaque fight_id for the bundle directory and cgroup path.
func sanitizeFightTag(fightID json.RawMessage) string {
	s := strings.Trim(string(fightID), `"`)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "fight"
	}
	return b.String()
}
