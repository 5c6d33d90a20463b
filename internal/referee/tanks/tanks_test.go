package tanks

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PyBagheri/codefights/internal/referee"
)

func decideTick(move *string, fire *[2]int) interface{} {
	d := map[string]interface{}{}
	if move != nil {
		d["move"] = *move
	}
	if fire != nil {
		d["fire"] = []int{fire[0], fire[1]}
	}
	return d
}

func strp(s string) *string { return &s }

func TestNewRejectsWrongPlayerCount(t *testing.T) {
	_, err := New(json.RawMessage(`{}`), 1)
	require.Error(t, err)
}

// TestFullMatchAccurateFireWins exercises spec §4.E's stationary-fire
// damage: 50 per hit, two accurate hits kill a fresh 100-health tank and
// end the match in a win for the shooter.
func TestFullMatchAccurateFireWins(t *testing.T) {
	g, err := New(json.RawMessage(`{}`), 2)
	require.NoError(t, err)

	// Player 1 starts at (9,9); player 0 fires there every tick without
	// moving, player 1 never acts.
	run := func(playerIndex int, name string, args []interface{}) (referee.CommandOutcome, error) {
		require.Equal(t, "decide_tick", name)
		if playerIndex == 0 {
			return referee.CommandOutcome{Kind: referee.CommandResult, Result: decideTick(nil, &[2]int{9, 9})}, nil
		}
		return referee.CommandOutcome{Kind: referee.CommandResult, Result: decideTick(nil, nil)}, nil
	}

	alive := map[int]bool{0: true, 1: true}
	g.Simulate(alive, run)

	report := g.GetReport().([]interface{})
	require.Equal(t, []interface{}{referee.Winner, 0}, report[0])
	// Losing on health is not an elimination: both players stay in
	// alive so the orchestrator records a clean final state for each.
	require.True(t, alive[1])
	require.True(t, alive[0])
}

func TestTickLimitDrawWhenBothSurvive(t *testing.T) {
	g, err := New(json.RawMessage(`{}`), 2)
	require.NoError(t, err)

	// Neither player moves or fires: nobody ever takes damage, so the
	// match runs out the clock at the 100-tick limit.
	run := func(playerIndex int, name string, args []interface{}) (referee.CommandOutcome, error) {
		return referee.CommandOutcome{Kind: referee.CommandResult, Result: decideTick(nil, nil)}, nil
	}

	alive := map[int]bool{0: true, 1: true}
	g.Simulate(alive, run)

	report := g.GetReport().([]interface{})
	require.Equal(t, []interface{}{referee.DrawSentinel, explanationTickLimit}, report[0])
	require.Len(t, alive, 2)
}

func TestEliminatedPlayerStopsReceivingDecideTick(t *testing.T) {
	g, err := New(json.RawMessage(`{}`), 2)
	require.NoError(t, err)

	calledAfterElimination := false
	eliminated := false
	run := func(playerIndex int, name string, args []interface{}) (referee.CommandOutcome, error) {
		if playerIndex == 1 {
			if eliminated {
				calledAfterElimination = true
			}
			return referee.CommandOutcome{Kind: referee.CommandEliminated}, nil
		}
		return referee.CommandOutcome{Kind: referee.CommandResult, Result: decideTick(nil, nil)}, nil
	}

	alive := map[int]bool{0: true, 1: true}
	// Simulate itself removes index 1 from alive the first time run
	// reports CommandEliminated for it; mark our local flag right after
	// so a second call (a bug) would be caught.
	wrapped := func(playerIndex int, name string, args []interface{}) (referee.CommandOutcome, error) {
		out, err := run(playerIndex, name, args)
		if playerIndex == 1 {
			eliminated = true
		}
		return out, err
	}
	g.Simulate(alive, wrapped)

	require.False(t, alive[1])
	require.False(t, calledAfterElimination)
}

func TestApplyCrashDamageHitsBothOverlappingTanks(t *testing.T) {
	g := &game{playerCount: 2, tanks: []tankState{
		{X: 5, Y: 5, Health: 100},
		{X: 5, Y: 5, Health: 100},
	}}
	alive := map[int]bool{0: true, 1: true}
	g.applyCrashDamage(alive)
	require.Equal(t, 90, g.tanks[0].Health)
	require.Equal(t, 90, g.tanks[1].Health)
}

func TestApplyCrashDamageSkipsEliminatedTanks(t *testing.T) {
	g := &game{playerCount: 2, tanks: []tankState{
		{X: 5, Y: 5, Health: 100},
		{X: 5, Y: 5, Health: 100},
	}}
	alive := map[int]bool{0: true}
	g.applyCrashDamage(alive)
	require.Equal(t, 100, g.tanks[0].Health, "no partner tank left alive to collide with")
}

func TestApplyFireAccurateDamage(t *testing.T) {
	g := &game{playerCount: 2, tanks: []tankState{
		{X: 0, Y: 0, Health: 100},
		{X: 9, Y: 9, Health: 100},
	}, pending: map[int]pendingMissile{
		0: {dest: [2]int{9, 9}, damage: accurateFireDamage},
	}}
	g.applyPendingMissiles(map[int]bool{0: true, 1: true})
	require.Equal(t, 100, g.tanks[0].Health)
	require.Equal(t, 50, g.tanks[1].Health)
}

func TestApplyFireMovingDamageHitsEveryoneOnSquare(t *testing.T) {
	g := &game{playerCount: 2, tanks: []tankState{
		{X: 5, Y: 5, Health: 100},
		{X: 5, Y: 5, Health: 100},
	}, pending: map[int]pendingMissile{
		0: {dest: [2]int{5, 5}, damage: movingFireDamage},
	}}
	g.applyPendingMissiles(map[int]bool{0: true, 1: true})
	require.Equal(t, 80, g.tanks[0].Health)
	require.Equal(t, 80, g.tanks[1].Health)
}

func TestDirectionDeltaRejectsUnknownDirection(t *testing.T) {
	_, _, ok := directionDelta("SIDEWAYS")
	require.False(t, ok)

	dx, dy, ok := directionDelta("LEFT")
	require.True(t, ok)
	require.Equal(t, -1, dx)
	require.Equal(t, 0, dy)
}

func TestClampBoundsToGrid(t *testing.T) {
	require.Equal(t, 0, clamp(-3, 0, gridSize-1))
	require.Equal(t, gridSize-1, clamp(99, 0, gridSize-1))
	require.Equal(t, 4, clamp(4, 0, gridSize-1))
}

func TestRandomizeDestStaysWithinGridAndBall(t *testing.T) {
	for i := 0; i < 50; i++ {
		got := randomizeDest([2]int{5, 5})
		require.LessOrEqual(t, abs(got[0]-5), 1)
		require.LessOrEqual(t, abs(got[1]-5), 1)
		require.GreaterOrEqual(t, got[0], 0)
		require.LessOrEqual(t, got[0], gridSize-1)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestMoveUpdatesHeadingAndPosition(t *testing.T) {
	g := &game{playerCount: 2, tanks: []tankState{
		{X: 5, Y: 5, Health: 100, Heading: "UP"},
		{X: 1, Y: 1, Health: 100, Heading: "DOWN"},
	}}
	move := "RIGHT"
	g.applyDecisions(map[int]bool{0: true, 1: true}, map[int]*decision{0: {Move: &move}})
	require.Equal(t, 6, g.tanks[0].X)
	require.Equal(t, 5, g.tanks[0].Y)
	require.Equal(t, "RIGHT", g.tanks[0].Heading)
	require.True(t, g.tanks[0].Moved)
}

func TestRegisteredUnderGameName(t *testing.T) {
	factory, ok := referee.Lookup("tanks")
	require.True(t, ok)
	g, err := factory(json.RawMessage(`{}`), 2)
	require.NoError(t, err)
	require.NotNil(t, g)
}
