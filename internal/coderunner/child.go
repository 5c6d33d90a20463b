//go:build linux

package coderunner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/PyBagheri/codefights/internal/config"
)

// childSetup implements spec §4.B's "Child setup" (steps 1-10) inside
// a freshly forked child. It returns on any setup failure and when the
// command loop ends; the caller then attempts the forbidden exit, which
// the supervisor classifies as ILLEGAL_SYSCALL (spec §4.B: "On any
// failure, attempt to exit").
func childSetup(sim config.Simulator, tokens Tokens) {
	for _, fd := range []int{sim.ForkserverPipeFDs.R, sim.ForkserverPipeFDs.UW, sim.ForkserverPipeFDs.UR, sim.ForkserverPipeFDs.W} {
		_ = unix.Close(fd)
	}

	fds := sim.ForkedPipeFDs
	rr, _, err := pipeAt(fds.R, fds.UW)
	if err != nil {
		return
	}
	_, ww, err := pipeAt(fds.UR, fds.W)
	if err != nil {
		return
	}

	reader := bufio.NewReader(rr)

	line, err := readLine(reader)
	if err != nil {
		return
	}
	var env Envelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return
	}

	if err := installCPUTimer(env.CPUSec, env.CPUNsec, sim.CPUTimeExceedSignal); err != nil {
		return
	}

	if err := installSeccomp(sim.SeccompAllowedSyscalls); err != nil {
		return
	}

	// Await START_SIMULATION (step 7).
	line, err = readLine(reader)
	if err != nil || line != tokens.StartSimulation {
		return
	}

	eng, err := newScriptEngine(env.Code, env.Context)
	if err != nil {
		// player code failed to load/compile/define Main: the child
		// has nothing left to do but attempt the forbidden exit.
		return
	}

	if _, err := ww.WriteString(tokens.ChildReady + "\n"); err != nil {
		return
	}

	commandLoop(reader, ww, eng, sim.ChildMaxWriteSize)
}

// commandLoop implements spec §4.B step 10: read one {f, args} line,
// call Main[f](*args), write back {"result": v} or {} on exception.
func commandLoop(reader *bufio.Reader, w *os.File, eng *scriptEngine, maxWrite int) {
	for {
		line, err := readLine(reader)
		if err != nil {
			return
		}
		var cmd Command
		reply := map[string]interface{}{}
		if err := json.Unmarshal([]byte(line), &cmd); err == nil {
			if result, err := eng.Call(cmd.F, cmd.Args); err == nil {
				reply["result"] = result
			}
		}
		out, err := json.Marshal(reply)
		if err != nil {
			return
		}
		if len(out)+1 > maxWrite {
			// Oversized outputs are sabotage by spec §4.B step 10;
			// the reply is not written at all: the loop returns, and
			// the exit the child then attempts is what the supervisor
			// classifies as ILLEGAL_SYSCALL.
			return
		}
		if _, err := fmt.Fprintf(w, "%s\n", out); err != nil {
			return
		}
	}
}
