// Package coderunner is the child runtime (component B): the
// forkserver that runs as PID 1 inside the sandbox container, and the
// forked children it produces, each of which loads and runs exactly
// one player's untrusted code behind a line-framed request/response
// loop. Grounded on original_source/simulator/coderunner/run.py.
package coderunner

import "github.com/PyBagheri/codefights/internal/config"

// Envelope is the JSON line a controller sends to start a forked
// child's simulation, per spec §4.B step 3.
type Envelope struct {
	Code    string          `json:"code"`
	Context interface{}     `json:"context"`
	CPUSec  int             `json:"cpu_sec"`
	CPUNsec int             `json:"cpu_nsec"`
}

// Command is one line of the command loop, per spec §4.B step 10.
type Command struct {
	F    string        `json:"f"`
	Args []interface{} `json:"args"`
}

// Tokens bundles the control-token strings taken from config so the
// forkserver and child loops don't re-read config on every line.
type Tokens struct {
	ForkChild      string
	Continue       string
	ChildReady     string
	StartSimulation string
}

func TokensFrom(s config.Simulator) Tokens {
	return Tokens{
		ForkChild:       s.ForkChildToken,
		Continue:        s.ContinueToken,
		ChildReady:      s.ChildReadyToken,
		StartSimulation: s.StartSimulationToken,
	}
}
