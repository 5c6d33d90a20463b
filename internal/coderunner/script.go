package coderunner

import (
	"encoding/json"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// scriptEngine runs one player's untrusted code in an embedded
// Starlark interpreter. Starlark is the Go answer to
// original_source/simulator/coderunner/run.py's exec(code) + Main
// class lookup: it has no import statement, no filesystem/network
// builtins, and no dynamic attribute escape hatch, so the "scrub
// module namespace" step spec §9 calls out has no analogue here — see
// SPEC_FULL.md §4.B.
type scriptEngine struct {
	thread *starlark.Thread
	main   *starlark.Dict
}

// newScriptEngine compiles code, expects it to define a global Main
// dict of callables, and attaches context as Main["context"], per
// spec §4.B step 8 ("attach context as an attribute").
func newScriptEngine(code string, context interface{}) (*scriptEngine, error) {
	thread := &starlark.Thread{Name: "player"}

	// Compile and run the file without ExecFile, which freezes the
	// globals and would make Main reject the context key below.
	predeclared := starlarkPredeclared()
	_, prog, err := starlark.SourceProgram("player.star", code, predeclared.Has)
	if err != nil {
		return nil, fmt.Errorf("coderunner: exec player code: %w", err)
	}
	globals, err := prog.Init(thread, predeclared)
	if err != nil {
		return nil, fmt.Errorf("coderunner: exec player code: %w", err)
	}

	mainVal, ok := globals["Main"]
	if !ok {
		return nil, fmt.Errorf("coderunner: player code does not define Main")
	}
	main, ok := mainVal.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("coderunner: Main is not a dict")
	}

	ctxVal, err := toStarlark(context)
	if err != nil {
		return nil, err
	}
	if err := main.SetKey(starlark.String("context"), ctxVal); err != nil {
		return nil, err
	}

	return &scriptEngine{thread: thread, main: main}, nil
}

// Call invokes Main[name](*args), round-tripping args and the result
// through JSON<->Starlark conversion per spec §8 property 6.
func (e *scriptEngine) Call(name string, args []interface{}) (interface{}, error) {
	fnVal, found, err := e.main.Get(starlark.String(name))
	if err != nil || !found {
		return nil, fmt.Errorf("coderunner: Main has no function %q", name)
	}
	fn, ok := fnVal.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("coderunner: Main[%q] is not callable", name)
	}

	starArgs := make(starlark.Tuple, len(args))
	for i, a := range args {
		v, err := toStarlark(a)
		if err != nil {
			return nil, err
		}
		starArgs[i] = v
	}

	result, err := starlark.Call(e.thread, fn, starArgs, nil)
	if err != nil {
		return nil, err
	}
	return fromStarlark(result)
}

func starlarkPredeclared() starlark.StringDict {
	return starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
}

// toStarlark converts a Go/JSON value into its Starlark equivalent.
func toStarlark(v interface{}) (starlark.Value, error) {
	switch t := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(t), nil
	case string:
		return starlark.String(t), nil
	case float64:
		return starlark.Float(t), nil
	case int:
		return starlark.MakeInt(t), nil
	case []interface{}:
		elems := make([]starlark.Value, len(t))
		for i, e := range t {
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case map[string]interface{}:
		d := starlark.NewDict(len(t))
		for k, e := range t {
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	default:
		// round-trip through JSON for any other encoding/json-shaped value
		// (json.RawMessage, struct types carried from the orchestrator).
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, err
		}
		return toStarlark(generic)
	}
}

// fromStarlark converts a Starlark value back into a JSON-marshalable
// Go value, the reverse of toStarlark.
func fromStarlark(v starlark.Value) (interface{}, error) {
	switch t := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(t), nil
	case starlark.String:
		return string(t), nil
	case starlark.Int:
		i, ok := t.Int64()
		if !ok {
			return nil, fmt.Errorf("coderunner: integer overflow converting Starlark int")
		}
		return i, nil
	case starlark.Float:
		return float64(t), nil
	case *starlark.List:
		out := make([]interface{}, 0, t.Len())
		for i := 0; i < t.Len(); i++ {
			e, err := fromStarlark(t.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	case starlark.Tuple:
		out := make([]interface{}, 0, len(t))
		for _, e := range t {
			ev, err := fromStarlark(e)
			if err != nil {
				return nil, err
			}
			out = append(out, ev)
		}
		return out, nil
	case *starlark.Dict:
		out := map[string]interface{}{}
		for _, item := range t.Items() {
			k, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("coderunner: non-string dict key in result")
			}
			ev, err := fromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			out[string(k)] = ev
		}
		return out, nil
	default:
		return nil, fmt.Errorf("coderunner: cannot convert Starlark value of type %s", v.Type())
	}
}
