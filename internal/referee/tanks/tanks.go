// Package tanks is the reference referee (spec §4.E): a 2-player,
// 10x10 grid tank duel run for up to 100 ticks. Grounded on
// original_source/games/tanks/main.py and, for the report-encoding
// ambiguity resolved in SPEC_FULL.md's Open Questions, on
// original_source/games/tanks/tests/test_report.py.
package tanks

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/PyBagheri/codefights/internal/referee"
)

const (
	gridSize  = 10
	tickLimit = 100

	accurateFireDamage = 50
	movingFireDamage    = 20
	crashDamage         = 10
)

// X_TICK_LIMIT explanation marker, per
// original_source/games/tanks/frontend.py's TanksExplanation.
const explanationTickLimit = "X"

type corner struct{ x, y int }

type tankState struct {
	X, Y     int
	Health   int
	Heading  string
	Moved    bool
	Targeted bool
}

type snapshot struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Health  int    `json:"health"`
	Heading string `json:"heading"`
}

// decision is what decide_tick is expected to return: a move
// direction and/or a fire destination, either of which may be absent.
type decision struct {
	Move *string `json:"move"`
	Fire *[2]int `json:"fire"`
}

// pendingMissile is a missile fired this tick, whose damage lands at
// the start of the next tick, per
// original_source/games/tanks/main.py's self.missiles/apply_damages
// split ("each missile takes one tick to arrive at the target").
type pendingMissile struct {
	dest   [2]int
	damage int
}

type game struct {
	playerCount int
	tanks       []tankState
	pending     map[int]pendingMissile

	outcome     interface{}
	explanation interface{}
	flow        []interface{}
}

func init() {
	referee.Register("tanks", New)
}

// New constructs the Tanks referee. game_settings carries no tunables
// in the original beyond the fixed 10x10/100-tick constants, so it is
// accepted but unused, matching original_source/games/tanks/main.py's
// Tanks.__init__.
func New(gameSettings json.RawMessage, playerCount int) (referee.Referee, error) {
	if playerCount != 2 {
		return nil, fmt.Errorf("tanks: requires exactly 2 players, got %d", playerCount)
	}
	g := &game{playerCount: 2, pending: map[int]pendingMissile{}}
	g.tanks = []tankState{
		{X: 0, Y: 0, Health: 100, Heading: "UP"},
		{X: gridSize - 1, Y: gridSize - 1, Health: 100, Heading: "DOWN"},
	}
	return g, nil
}

func (g *game) GetLimits() referee.PlayerLimits {
	return referee.PlayerLimits{CPUSec: 2, CPUNsec: 0, MemBytes: 64 << 20}
}

func (g *game) Simulate(alive map[int]bool, run referee.RunCommandFunc) {
	for tick := 0; tick < tickLimit; tick++ {
		for i := range g.tanks {
			g.tanks[i].Moved = false
			g.tanks[i].Targeted = false
		}

		// Apply damage from missiles fired last tick, before this
		// tick's decisions are requested, matching
		// original_source/games/tanks/main.py's simulate() loop, which
		// calls apply_damages() first thing every iteration ("MUST be
		// performed before applying the decisions").
		g.applyPendingMissiles(alive)
		g.applyCrashDamage(alive)

		if done, outcome, explanation := g.checkWinOrDraw(alive); done {
			g.outcome = outcome
			g.explanation = explanation
			return
		}

		decisions := make(map[int]*decision)
		for i := range g.tanks {
			if !alive[i] {
				continue
			}
			other := 1 - i
			args := []interface{}{tick, snapshotOf(g.tanks[i]), snapshotOf(g.tanks[other])}
			out, err := run(i, "decide_tick", args)
			if err != nil || out.Kind != referee.CommandResult {
				delete(alive, i)
				continue
			}
			d, err := decodeDecision(out.Result)
			if err != nil {
				continue // malformed decision: treated as "do nothing" this tick.
			}
			decisions[i] = d
		}

		g.applyDecisions(alive, decisions)

		tickEntry := make([]interface{}, g.playerCount)
		for i := range g.tanks {
			tickEntry[i] = snapshotFull(g.tanks[i])
		}
		g.flow = append(g.flow, tickEntry)

		if done, outcome, explanation := g.checkWinOrDraw(alive); done {
			g.outcome = outcome
			g.explanation = explanation
			return
		}
	}

	// Fell through the tick limit with both still alive.
	g.outcome = referee.DrawSentinel
	g.explanation = explanationTickLimit
}

// applyDecisions applies moves immediately and records any fire as a
// pendingMissile rather than applying its damage this tick -- missile
// travel takes one tick, resolved by applyPendingMissiles at the start
// of the next one.
func (g *game) applyDecisions(alive map[int]bool, decisions map[int]*decision) {
	for i, d := range decisions {
		if d == nil || !alive[i] {
			continue
		}
		moved := false
		if d.Move != nil {
			dx, dy, ok := directionDelta(*d.Move)
			if ok {
				g.tanks[i].X = clamp(g.tanks[i].X+dx, 0, gridSize-1)
				g.tanks[i].Y = clamp(g.tanks[i].Y+dy, 0, gridSize-1)
				g.tanks[i].Heading = *d.Move
				g.tanks[i].Moved = true
				moved = true
			}
		}
		if d.Fire != nil {
			dest := [2]int{(*d.Fire)[0], (*d.Fire)[1]}
			damage := accurateFireDamage
			if moved {
				dest = randomizeDest(dest)
				damage = movingFireDamage
			}
			g.pending[i] = pendingMissile{dest: dest, damage: damage}
		}
	}
}

// applyPendingMissiles resolves every missile fired on the previous
// tick: accurate fire (50 dmg) lands on the single destination
// square, moving fire (20 dmg) lands on every tank occupying the
// randomized destination square, including the firer, per spec §4.E.
func (g *game) applyPendingMissiles(alive map[int]bool) {
	for i, m := range g.pending {
		delete(g.pending, i)
		if !alive[i] {
			continue
		}
		for t := range g.tanks {
			if g.tanks[t].X == m.dest[0] && g.tanks[t].Y == m.dest[1] {
				g.tanks[t].Health -= m.damage
				g.tanks[t].Targeted = true
			}
		}
	}
}

// applyCrashDamage applies 10 damage to every tank sharing a square
// with another tank, per spec §4.E.
func (g *game) applyCrashDamage(alive map[int]bool) {
	for i := range g.tanks {
		if !alive[i] {
			continue
		}
		for j := range g.tanks {
			if i == j || !alive[j] {
				continue
			}
			if g.tanks[i].X == g.tanks[j].X && g.tanks[i].Y == g.tanks[j].Y {
				g.tanks[i].Health -= crashDamage
			}
		}
	}
}

// checkWinOrDraw implements spec §4.E's conclusion rule: both tanks
// at health<=0 in the same tick is a draw; otherwise the first to
// reach health<=0 hands the win to the other.
func (g *game) checkWinOrDraw(alive map[int]bool) (done bool, outcome, explanation interface{}) {
	dead := map[int]bool{}
	for i := range g.tanks {
		if g.tanks[i].Health <= 0 {
			dead[i] = true
		}
	}
	if len(dead) == 0 {
		return false, nil, nil
	}
	if len(dead) == g.playerCount {
		return true, referee.DrawSentinel, referee.Loser
	}
	for i := range g.tanks {
		if !dead[i] {
			return true, []interface{}{referee.Winner, i}, ""
		}
	}
	return true, referee.DrawSentinel, referee.Loser
}

func (g *game) GetReport() referee.Report {
	var outcomeTuple interface{}
	switch o := g.outcome.(type) {
	case string: // DRAW
		outcomeTuple = []interface{}{o, g.explanation}
	default:
		outcomeTuple = o
	}
	return referee.Envelope(outcomeTuple, "", g.flow)
}

func snapshotOf(t tankState) snapshot {
	return snapshot{X: t.X, Y: t.Y, Health: t.Health, Heading: t.Heading}
}

func snapshotFull(t tankState) []interface{} {
	return []interface{}{t.X, t.Y, t.Health, t.Heading, t.Moved, t.Targeted}
}

func decodeDecision(v interface{}) (*decision, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var d decision
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func directionDelta(dir string) (dx, dy int, ok bool) {
	switch dir {
	case "UP":
		return 0, -1, true
	case "DOWN":
		return 0, 1, true
	case "LEFT":
		return -1, 0, true
	case "RIGHT":
		return 1, 0, true
	}
	return 0, 0, false
}

// randomizeDest picks a uniformly random square within the L-infinity
// ball of radius 1 around dest, clamped to the grid, per spec §4.E's
// "a missile fired in the same tick as a move has its destination
// randomised".
func randomizeDest(dest [2]int) [2]int {
	dx := rand.Intn(3) - 1
	dy := rand.Intn(3) - 1
	return [2]int{clamp(dest[0]+dx, 0, gridSize-1), clamp(dest[1]+dy, 0, gridSize-1)}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
