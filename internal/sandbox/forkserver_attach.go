//go:build linux

package sandbox

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/PyBagheri/codefights/internal/config"
	"github.com/PyBagheri/codefights/internal/tracer"
)

// ForkserverHandle is the attached, fd-stolen view of one fight's
// forkserver: the host-namespace pid under trace plus the supervisor's
// own copies of its pipe ends, shared serially by every player's
// Controller for this fight (spec §5: "the forkserver is serially
// shared by all sibling controllers in a single fight").
type ForkserverHandle struct {
	PID    int
	R, W   *os.File
	pidfd  int
}

// AttachForkserver performs the once-per-fight half of spec §4.C's
// "attaches to the forkserver" step: seize it, step it through its own
// bootstrap syscalls up to (but not through) its handshake read, and
// steal its pipe fds via pidfd -- the same pidfd_open/pidfd_getfd
// dance spec §4.C step 7 performs per forked child, run here once
// against the forkserver itself.
func AttachForkserver(tr *tracer.Tracer, sim config.Simulator, pid int) (*ForkserverHandle, error) {
	if err := tr.AttachSeize(pid); err != nil {
		return nil, err
	}

	fds := sim.ForkserverPipeFDs
	if term, err := tr.ResumeUntilNextRead(pid, fds.R, -1, sim.AllowedSyscalls); err != nil {
		return nil, err
	} else if term != nil {
		return nil, fmt.Errorf("sandbox: forkserver failed to reach its handshake read: %s", term.Reason)
	}

	pidfd, err := tr.PidfdOpen(pid)
	if err != nil {
		return nil, err
	}

	remoteR, err := tr.PidfdGetfd(pidfd, fds.UR)
	if err != nil {
		unix.Close(pidfd)
		return nil, err
	}
	remoteW, err := tr.PidfdGetfd(pidfd, fds.UW)
	if err != nil {
		unix.Close(pidfd)
		return nil, err
	}

	h := &ForkserverHandle{
		PID:   pid,
		R:     os.NewFile(uintptr(remoteR), "forkserver-r"),
		W:     os.NewFile(uintptr(remoteW), "forkserver-w"),
		pidfd: pidfd,
	}

	// Step 3 of spec §4.B's bootstrap: write the handshake line that
	// lets the forkserver's read(FS.r) -- currently parked at its
	// syscall-entry -- complete, then advance it there and resume the
	// fork-request loop read so the first FORK_CHILD a Controller sends
	// lands on a tracee already parked at ITS next read's entry.
	if _, err := h.W.WriteString("0\n"); err != nil {
		return nil, fmt.Errorf("sandbox: forkserver handshake write: %w", err)
	}
	if term, err := tr.ResumeReadSE(pid, -1); err != nil {
		return nil, err
	} else if term != nil {
		return nil, fmt.Errorf("sandbox: forkserver died during handshake: %s", term.Reason)
	}
	if term, err := tr.ResumeUntilNextRead(pid, fds.R, -1, sim.AllowedSyscalls); err != nil {
		return nil, err
	} else if term != nil {
		return nil, fmt.Errorf("sandbox: forkserver failed to reach its loop read: %s", term.Reason)
	}

	return h, nil
}

// Close releases the supervisor's stolen forkserver fds and pidfd.
// The forkserver process itself dies via PTRACE_O_EXITKILL when the
// container is torn down.
func (h *ForkserverHandle) Close() {
	_ = h.R.Close()
	_ = h.W.Close()
	unix.Close(h.pidfd)
}
