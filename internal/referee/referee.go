// Package referee defines the contract every game implements
// (component E) and a registry of build-time-known games, replacing
// the original's getattr-by-name dynamic dispatch per
// SPEC_FULL.md's DESIGN NOTES.
package referee

import "encoding/json"

// PlayerLimits is constant for one fight, per spec §3.
type PlayerLimits struct {
	CPUSec  int
	CPUNsec int
	MemBytes uint64
}

// RunCommandFunc is the referee's view of a sandbox controller: send
// a command to a player's process and get back what it did.
type RunCommandFunc func(playerIndex int, name string, args []interface{}) (CommandOutcome, error)

// CommandOutcome mirrors sandbox.Outcome without importing the
// sandbox package, keeping referees decoupled from ptrace/container
// machinery entirely (they only ever see run_command).
type CommandOutcome struct {
	Kind   CommandOutcomeKind
	Result interface{}
}

type CommandOutcomeKind int

const (
	CommandResult CommandOutcomeKind = iota
	CommandException
	CommandEliminated
)

// Report is a game's ReportEnvelope: any JSON-marshalable value. Most
// games build one with Envelope/EnvelopeWithScores (the 3- or
// 4-tuple of spec §3); testgame1 is the one exception in the corpus,
// whose report is its raw run_command result wrapped in a bare
// 1-element array (see testgame1.GetReport) rather than the
// victory-draw/rank-based ReportEnvelope shape.
type Report = interface{}

// Envelope builds the 3-element ReportEnvelope for a game with no
// scores, per spec §3.
func Envelope(outcome, explanation, data interface{}) Report {
	return []interface{}{outcome, explanation, data}
}

// EnvelopeWithScores builds the 4-element ReportEnvelope for a game
// that reports per-player scores, per spec §3.
func EnvelopeWithScores(outcome interface{}, scores []int, explanation, data interface{}) Report {
	return []interface{}{outcome, scores, explanation, data}
}

// Referee is the contract implemented by each game, per spec §4.E.
type Referee interface {
	GetLimits() PlayerLimits
	// Simulate drives the game to completion, calling run for any
	// alive player any number of times. alive is mutated in place:
	// Simulate must remove an index the moment run reports
	// CommandEliminated for it.
	Simulate(alive map[int]bool, run RunCommandFunc)
	GetReport() Report
}

// Factory constructs a Referee for one fight from its raw JSON game
// settings and player count.
type Factory func(gameSettings json.RawMessage, playerCount int) (Referee, error)

// registry maps a game name to its Factory, populated at init time by
// each game package's own init(), the explicit registration table
// SPEC_FULL.md calls for in place of reflection-based dispatch.
var registry = map[string]Factory{}

// Register is called from a game package's init().
func Register(name string, f Factory) {
	registry[name] = f
}

// Lookup resolves game_name to its Factory.
func Lookup(name string) (Factory, bool) {
	f, ok := registry[name]
	return f, ok
}

// DrawSentinel is the VictoryDrawResult.DRAW sentinel.
const DrawSentinel = "D"

// Winner/Loser markers for victory-draw games.
const (
	Winner = "W"
	Loser  = "L"
)

// WinLoseList builds the per-index Winner/Loser marker list, the Go
// equivalent of VictoryDrawResult.get_win_lose_list.
func WinLoseList(playerCount int, winners ...int) []string {
	out := make([]string, playerCount)
	for i := range out {
		out[i] = Loser
	}
	for _, w := range winners {
		out[w] = Winner
	}
	return out
}
