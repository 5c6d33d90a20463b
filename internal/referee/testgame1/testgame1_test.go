package testgame1

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PyBagheri/codefights/internal/referee"
)

func newGame(t *testing.T, testArgs string) referee.Referee {
	t.Helper()
	g, err := New(json.RawMessage(`{"test_args":`+testArgs+`}`), 1)
	require.NoError(t, err)
	return g
}

func TestNewRejectsWrongPlayerCount(t *testing.T) {
	_, err := New(json.RawMessage(`{"test_args":[]}`), 2)
	require.Error(t, err)
}

func TestSimulateWrapsRunCommandResultInOneElementArray(t *testing.T) {
	g := newGame(t, `[1,"two",3.0]`)

	var sentArgs []interface{}
	run := func(playerIndex int, name string, args []interface{}) (referee.CommandOutcome, error) {
		require.Equal(t, 0, playerIndex)
		require.Equal(t, "testfunc1", name)
		sentArgs = args
		return referee.CommandOutcome{Kind: referee.CommandResult, Result: "echoed"}, nil
	}

	alive := map[int]bool{0: true}
	g.Simulate(alive, run)

	require.Equal(t, []interface{}{float64(1), "two", float64(3)}, sentArgs)
	require.Equal(t, []interface{}{"echoed"}, g.GetReport())
	require.True(t, alive[0], "a clean result must not eliminate the player")
}

func TestSimulateEliminatesPlayerOnException(t *testing.T) {
	g := newGame(t, `[]`)
	run := func(playerIndex int, name string, args []interface{}) (referee.CommandOutcome, error) {
		return referee.CommandOutcome{Kind: referee.CommandException}, nil
	}

	alive := map[int]bool{0: true}
	g.Simulate(alive, run)

	require.False(t, alive[0])
	require.Equal(t, []interface{}{nil}, g.GetReport())
}

func TestSimulateSkipsAlreadyDeadPlayer(t *testing.T) {
	g := newGame(t, `[]`)
	called := false
	run := func(playerIndex int, name string, args []interface{}) (referee.CommandOutcome, error) {
		called = true
		return referee.CommandOutcome{Kind: referee.CommandResult, Result: nil}, nil
	}

	alive := map[int]bool{}
	g.Simulate(alive, run)
	require.False(t, called, "run_command must never be called for an eliminated player")
}

func TestRegisteredUnderGameName(t *testing.T) {
	factory, ok := referee.Lookup("testgame1")
	require.True(t, ok)
	g, err := factory(json.RawMessage(`{"test_args":[]}`), 1)
	require.NoError(t, err)
	require.NotNil(t, g)
}
