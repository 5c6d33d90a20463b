//go:build linux

// Package sandbox is the host-side supervisor (component C): it
// starts the forkserver container, attaches to it, requests one
// forked child per player, steals the child's pipe fds via pidfd,
// drives the request/response protocol, and classifies terminations.
// Grounded on the CRController class in
// original_source/simulator/entry.py.
package sandbox

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/PyBagheri/codefights/internal/coderunner"
	"github.com/PyBagheri/codefights/internal/config"
	"github.com/PyBagheri/codefights/internal/rlog"
	"github.com/PyBagheri/codefights/internal/tracer"
)

type (
	Envelope = coderunner.Envelope
	Command  = coderunner.Command
	Tokens   = coderunner.Tokens
)

var TokensFrom = coderunner.TokensFrom

// Outcome is what run_command or the startup sequence settled on.
type Outcome int

const (
	OutcomeResult Outcome = iota
	OutcomeException // empty object; player code threw
	OutcomeEliminated
)

// PipeProtocolState is the per-child bookkeeping held by the
// controller, per spec §3.
type PipeProtocolState struct {
	ChildPID          int
	ContainerPIDText  string
	ReadFD, WriteFD   int // host fds stolen from child
	Alive             bool
	LastError         *tracer.Termination
}

// Controller drives one forked child for the duration of one player's
// participation in one fight.
type Controller struct {
	tr  *tracer.Tracer
	sim config.Simulator
	log *rlog.Logger

	forkserverPID int
	fsR, fsW      *os.File // host-side ends of the forkserver's pipe, stolen via pidfd

	state PipeProtocolState
}

// NewController wires a Controller to an already-attached forkserver.
func NewController(tr *tracer.Tracer, sim config.Simulator, log *rlog.Logger, forkserverPID int, fsR, fsW *os.File) *Controller {
	return &Controller{tr: tr, sim: sim, log: log, forkserverPID: forkserverPID, fsR: fsR, fsW: fsW}
}

// Start runs the 15-step startup sequence of spec §4.C for one
// player, given its code, game settings, and resource limits. On any
// classified termination before step 15, the Controller is left with
// Alive == false and LastError set; it must never have run_command
// called on it.
func (c *Controller) Start(code string, context interface{}, cpuSec, cpuNsec int, memBytes uint64) error {
	tokens := TokensFrom(c.sim)

	// Step 1: send FORK_CHILD on the forkserver pipe.
	if _, err := c.fsW.WriteString(tokens.ForkChild + "\n"); err != nil {
		return fmt.Errorf("sandbox: write FORK_CHILD: %w", err)
	}

	// Step 2: wait_for_stop(forkserver) == ForkEvent(pid=C).
	stop, err := c.tr.WaitForStop(c.forkserverPID)
	if err != nil {
		return err
	}
	if stop.Kind != tracer.StopForkEvent {
		return fmt.Errorf("sandbox: expected ForkEvent, got stop kind %d", stop.Kind)
	}
	childPID := stop.ForkedPID

	// Step 3: resume forkserver so it writes back the in-container pid text.
	if err := c.tr.ResumePlain(c.forkserverPID); err != nil {
		return err
	}

	// Step 4: receive in-container pid text on the forkserver's _r fd.
	reader := bufio.NewReader(c.fsR)
	pidText, err := readLine(reader)
	if err != nil {
		return fmt.Errorf("sandbox: read container pid text: %w", err)
	}

	c.state = PipeProtocolState{ChildPID: childPID, ContainerPIDText: pidText}

	// Step 5: wait_initial_stop(C).
	if _, err := c.tr.WaitInitialStop(childPID); err != nil {
		return err
	}

	// Step 6: resume_until_next_read(C) -- parked at syscall-entry of
	// its first pipe read; step 10's ResumeReadSE advances it to exit.
	fds := c.sim.ForkedPipeFDs
	if term, err := c.tr.ResumeUntilNextRead(childPID, fds.R, -1, c.sim.AllowedSyscalls); err != nil {
		return err
	} else if term != nil {
		return c.fail(term)
	}

	// Step 7: pidfd_open + pidfd_getfd twice.
	pidfd, err := c.tr.PidfdOpen(childPID)
	if err != nil {
		return err
	}
	defer unix.Close(pidfd)

	remoteR, err := c.tr.PidfdGetfd(pidfd, fds.UR)
	if err != nil {
		return err
	}
	remoteW, err := c.tr.PidfdGetfd(pidfd, fds.UW)
	if err != nil {
		return err
	}
	c.state.ReadFD = remoteR
	c.state.WriteFD = remoteW

	// Step 8: prlimit(C, RLIMIT_AS, mem_bytes).
	if err := c.tr.Prlimit(childPID, memBytes); err != nil {
		return err
	}

	// Step 9: send code+context JSON on child's pipe.
	env := Envelope{Code: code, Context: context, CPUSec: cpuSec, CPUNsec: cpuNsec}
	line, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := c.childWrite(append(line, '\n')); err != nil {
		return err
	}

	// Step 10: resume_read_SE then resume_until_next_read -- parked at second read.
	if term, err := c.tr.ResumeReadSE(childPID, -1); err != nil {
		return err
	} else if term != nil {
		return c.fail(term)
	}
	if term, err := c.tr.ResumeUntilNextRead(childPID, fds.R, -1, c.sim.AllowedSyscalls); err != nil {
		return err
	} else if term != nil {
		return c.fail(term)
	}

	// Step 11: send START_SIMULATION.
	if err := c.childWrite([]byte(tokens.StartSimulation + "\n")); err != nil {
		return err
	}

	// Step 12: resume_read_SE(C, -1).
	if term, err := c.tr.ResumeReadSE(childPID, -1); err != nil {
		return err
	} else if term != nil {
		return c.fail(term)
	}

	// Step 13: resume_until_rw(expected=write); resume_write_SE.
	if term, err := c.tr.ResumeUntilRW(childPID, "write", fds.W, -1, c.sim.AllowedSyscalls); err != nil {
		return err
	} else if term != nil {
		return c.fail(term)
	}
	if term, err := c.tr.ResumeWriteSE(childPID, int64(c.sim.ChildMaxWriteSize)); err != nil {
		return err
	} else if term != nil {
		return c.fail(term)
	}

	// Step 14: resume_until_rw(expected=read) -- parked at command-loop read.
	if term, err := c.tr.ResumeUntilRW(childPID, "read", fds.R, -1, c.sim.AllowedSyscalls); err != nil {
		return err
	} else if term != nil {
		return c.fail(term)
	}

	// Step 15: receive CHILD_READY.
	reply, err := c.childRead()
	if err != nil {
		return err
	}
	if reply != tokens.ChildReady {
		return c.fail(&tracer.Termination{Reason: tracer.Sabotage})
	}

	c.state.Alive = true
	return nil
}

func (c *Controller) fail(term *tracer.Termination) error {
	term = tracer.ReclassifyCPUTime(term, c.sim.CPUTimeExceedSignal)
	c.state.Alive = false
	c.state.LastError = term
	return nil
}

// RunCommand implements spec §4.C's run_command cycle.
func (c *Controller) RunCommand(name string, args []interface{}) (Outcome, interface{}, error) {
	if !c.state.Alive {
		return OutcomeEliminated, nil, nil
	}

	cmd := Command{F: name, Args: args}
	line, err := json.Marshal(cmd)
	if err != nil {
		return 0, nil, err
	}
	line = append(line, '\n')

	// Step 2: send L.
	if err := c.childWrite(line); err != nil {
		return 0, nil, err
	}

	// Step 3: resume_read_SE bounded to exactly len(L).
	if term, err := c.tr.ResumeReadSE(c.state.ChildPID, int64(len(line))); err != nil {
		return 0, nil, err
	} else if term != nil {
		c.fail(term)
		return OutcomeEliminated, nil, nil
	}

	// Step 4: resume_until_rw(expected=write); resume_write_SE.
	fds := c.sim.ForkedPipeFDs
	if term, err := c.tr.ResumeUntilRW(c.state.ChildPID, "write", fds.W, -1, c.sim.AllowedSyscalls); err != nil {
		return 0, nil, err
	} else if term != nil {
		c.fail(term)
		return OutcomeEliminated, nil, nil
	}
	if term, err := c.tr.ResumeWriteSE(c.state.ChildPID, int64(c.sim.ChildMaxWriteSize)); err != nil {
		return 0, nil, err
	} else if term != nil {
		c.fail(term)
		return OutcomeEliminated, nil, nil
	}

	// Step 5: resume_until_rw(expected=read).
	if term, err := c.tr.ResumeUntilRW(c.state.ChildPID, "read", fds.R, -1, c.sim.AllowedSyscalls); err != nil {
		return 0, nil, err
	} else if term != nil {
		c.fail(term)
		return OutcomeEliminated, nil, nil
	}

	// Step 6: receive reply line; decode JSON.
	reply, err := c.childRead()
	if err != nil {
		return 0, nil, err
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(reply), &obj); err != nil {
		c.fail(&tracer.Termination{Reason: tracer.Sabotage})
		return OutcomeEliminated, nil, nil
	}

	// Step 7/8: empty object => exception; result key => Some(result).
	if result, ok := obj["result"]; ok {
		return OutcomeResult, result, nil
	}
	if len(obj) == 0 {
		return OutcomeException, nil, nil
	}
	c.fail(&tracer.Termination{Reason: tracer.Sabotage})
	return OutcomeEliminated, nil, nil
}

// FinishClean implements spec §4.C's "Cleanup (successful finish of
// this player)": SIGKILL, waitpid, notify the forkserver to reap, and
// close stolen resources.
func (c *Controller) FinishClean() error {
	return c.cleanup(true)
}

// FinishAfterError implements "Cleanup (error classified mid-protocol)".
func (c *Controller) FinishAfterError() error {
	return c.cleanup(false)
}

func (c *Controller) cleanup(expectWasAlive bool) error {
	if expectWasAlive || c.state.LastError == nil {
		_ = unix.Kill(c.state.ChildPID, unix.SIGKILL)
		var ws unix.WaitStatus
		_, _ = unix.Wait4(c.state.ChildPID, &ws, 0, nil)
	}

	// Always resume the forkserver from its SIGCHLD group-stop and
	// issue the reap-pid protocol, per spec §4.C cleanup.
	if err := c.tr.ResumePlain(c.forkserverPID); err != nil {
		c.log.Warningf("resume forkserver during cleanup: %v", err)
	}
	if _, err := c.fsW.WriteString(c.state.ContainerPIDText + "\n"); err != nil {
		c.log.Warningf("write reap pid: %v", err)
	}

	if c.state.ReadFD != 0 {
		_ = unix.Close(c.state.ReadFD)
	}
	if c.state.WriteFD != 0 {
		_ = unix.Close(c.state.WriteFD)
	}
	c.state.Alive = false
	return nil
}

func (c *Controller) LastError() *tracer.Termination { return c.state.LastError }
func (c *Controller) Alive() bool                    { return c.state.Alive }

func (c *Controller) childWrite(b []byte) error {
	_, err := unix.Write(c.state.WriteFD, b)
	return err
}

func (c *Controller) childRead() (string, error) {
	buf := make([]byte, c.sim.ChildMaxWriteSize+1)
	n, err := unix.Read(c.state.ReadFD, buf)
	if err != nil {
		return "", err
	}
	line := string(buf[:n])
	if l := len(line); l > 0 && line[l-1] == '\n' {
		line = line[:l-1]
	}
	return line, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	return line, nil
}
