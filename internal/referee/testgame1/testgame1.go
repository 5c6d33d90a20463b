// Package testgame1 is the black-box protocol conformance fixture
// (scenario S1): a 1-player referee whose report is exactly the
// result of one run_command call. Grounded on
// original_source/simulator/tests/assets/games/testgame1/main.py and
// original_source/simulator/tests/test_simulation.py.
package testgame1

import (
	"encoding/json"
	"fmt"

	"github.com/PyBagheri/codefights/internal/referee"
)

func init() {
	referee.Register("testgame1", New)
}

type settings struct {
	TestArgs []interface{} `json:"test_args"`
}

type game struct {
	settings settings
	report   interface{}
}

// New constructs the testgame1 referee.
func New(gameSettings json.RawMessage, playerCount int) (referee.Referee, error) {
	if playerCount != 1 {
		return nil, fmt.Errorf("testgame1: requires exactly 1 player, got %d", playerCount)
	}
	var s settings
	if err := json.Unmarshal(gameSettings, &s); err != nil {
		return nil, fmt.Errorf("testgame1: decode game_settings: %w", err)
	}
	return &game{settings: s}, nil
}

func (g *game) GetLimits() referee.PlayerLimits {
	return referee.PlayerLimits{CPUSec: 2, CPUNsec: 0, MemBytes: 64 << 20}
}

func (g *game) Simulate(alive map[int]bool, run referee.RunCommandFunc) {
	if !alive[0] {
		return
	}
	outcome, err := run(0, "testfunc1", g.settings.TestArgs)
	if err != nil || outcome.Kind != referee.CommandResult {
		delete(alive, 0)
		return
	}
	g.report = outcome.Result
}

// GetReport returns the raw run_command result wrapped in a bare
// 1-element array — testgame1's report does not follow the
// victory-draw/rank ReportEnvelope shape; it exists purely to prove
// the pipe protocol round-trips arbitrary JSON values, per scenario
// S1.
func (g *game) GetReport() referee.Report {
	return []interface{}{g.report}
}
