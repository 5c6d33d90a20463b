package referee

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	factory := func(gameSettings json.RawMessage, playerCount int) (Referee, error) {
		return nil, nil
	}
	Register("unit-test-game", factory)

	got, ok := Lookup("unit-test-game")
	require.True(t, ok)
	require.NotNil(t, got)

	_, ok = Lookup("does-not-exist")
	require.False(t, ok)
}

func TestEnvelopeShapes(t *testing.T) {
	env := Envelope("D", "X", []interface{}{1, 2})
	require.Equal(t, []interface{}{"D", "X", []interface{}{1, 2}}, env)

	scored := EnvelopeWithScores([]interface{}{"W", 0}, []int{10, 3}, "", nil)
	require.Equal(t, []interface{}{[]interface{}{"W", 0}, []int{10, 3}, "", nil}, scored)
}

func TestWinLoseList(t *testing.T) {
	list := WinLoseList(3, 1)
	require.Equal(t, []string{Loser, Winner, Loser}, list)
}
