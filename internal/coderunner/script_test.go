package coderunner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCallEchoesJSONTypes exercises scenario S1's round-trip: player code
// packs its positional args into an index-keyed dict and returns it
// unchanged.
func TestCallEchoesJSONTypes(t *testing.T) {
	code := `
Main = {}

def testfunc1(*args):
    out = {}
    for i, a in enumerate(args):
        out[str(i)] = a
    return out

Main["testfunc1"] = testfunc1
`
	eng, err := newScriptEngine(code, nil)
	require.NoError(t, err)

	args := []interface{}{
		"string",
		123,
		[]interface{}{"list", 321, map[string]interface{}{"nested": true}, []interface{}{"yes"}},
		map[string]interface{}{"key": "value"},
		true,
		false,
		nil,
	}
	result, err := eng.Call("testfunc1", args)
	require.NoError(t, err)

	expected := map[string]interface{}{
		"0": "string",
		"1": int64(123),
		"2": []interface{}{"list", int64(321), map[string]interface{}{"nested": true}, []interface{}{"yes"}},
		"3": map[string]interface{}{"key": "value"},
		"4": true,
		"5": false,
		"6": nil,
	}
	require.Equal(t, expected, result)
}

func TestNewScriptEngineRequiresMain(t *testing.T) {
	_, err := newScriptEngine(`x = 1`, nil)
	require.Error(t, err)
}

func TestNewScriptEngineRejectsNonDictMain(t *testing.T) {
	_, err := newScriptEngine(`Main = 1`, nil)
	require.Error(t, err)
}

func TestNewScriptEngineRejectsSyntaxErrors(t *testing.T) {
	_, err := newScriptEngine(`def broken(:`, nil)
	require.Error(t, err)
}

func TestContextInjectedIntoMain(t *testing.T) {
	code := `
Main = {}

def getContext():
    return Main["context"]

Main["getContext"] = getContext
`
	eng, err := newScriptEngine(code, map[string]interface{}{"seed": float64(7)})
	require.NoError(t, err)

	result, err := eng.Call("getContext", nil)
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"seed": 7.0}, result)
}

func TestCallUnknownFunctionErrors(t *testing.T) {
	eng, err := newScriptEngine(`Main = {}`, nil)
	require.NoError(t, err)
	_, err = eng.Call("nope", nil)
	require.Error(t, err)
}
