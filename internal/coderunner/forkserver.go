//go:build linux

package coderunner

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/PyBagheri/codefights/internal/config"
)

// Forkserver is the long-lived PID-1 process started inside the
// sandbox container. It MUST run as a non-root unprivileged user.
// Grounded on the forkserver main loop in
// original_source/simulator/coderunner/run.py.
type Forkserver struct {
	fds    config.FDQuad
	sim    config.Simulator
	tokens Tokens

	r *os.File // read end dup'd at fds.R
	w *os.File // write end dup'd at fds.W
}

// NewForkserver performs bootstrap steps 1-2 of spec §4.B: close
// inherited stdio and dup the fixed fd quad into place.
func NewForkserver(sim config.Simulator) (*Forkserver, error) {
	if unix.Getuid() == 0 {
		return nil, fmt.Errorf("coderunner: forkserver refuses to run as uid 0")
	}

	for _, fd := range []int{0, 1, 2} {
		_ = unix.Close(fd)
	}

	fs := &Forkserver{fds: sim.ForkserverPipeFDs, sim: sim, tokens: TokensFrom(sim)}

	rr, rw, err := pipeAt(fs.fds.R, fs.fds.UW)
	if err != nil {
		return nil, err
	}
	_, ww, err := pipeAt(fs.fds.UR, fs.fds.W)
	if err != nil {
		return nil, err
	}
	fs.r = rr
	fs.w = ww
	_ = rw

	return fs, nil
}

// pipeAt creates an anonymous pipe and dup2's its read end to wantR
// and its write end to wantW, closing the originals, per spec §4.B
// step 2.
func pipeAt(wantR, wantW int) (*os.File, *os.File, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], 0); err != nil {
		return nil, nil, fmt.Errorf("coderunner: pipe2: %w", err)
	}
	if err := unix.Dup2(fds[0], wantR); err != nil {
		return nil, nil, err
	}
	if err := unix.Dup2(fds[1], wantW); err != nil {
		return nil, nil, err
	}
	if fds[0] != wantR {
		_ = unix.Close(fds[0])
	}
	if fds[1] != wantW {
		_ = unix.Close(fds[1])
	}
	return os.NewFile(uintptr(wantR), "r"), os.NewFile(uintptr(wantW), "w"), nil
}

// Run blocks on the handshake read, then serves the fork-request loop
// forever. It never returns on the success path; the supervisor's
// PTRACE_O_EXITKILL tears the whole tree down when the tracer dies.
func (fs *Forkserver) Run() error {
	reader := bufio.NewReader(fs.r)

	// Bootstrap step 3: block on read(FS.r). The supervisor's ptrace
	// attach observes this very syscall.
	line, err := readLine(reader)
	if err != nil {
		return fmt.Errorf("coderunner: forkserver handshake read: %w", err)
	}
	_ = line // value unused; its arrival is the signal, per spec §4.B step 3.

	for {
		line, err := readLine(reader)
		if err != nil {
			return fmt.Errorf("coderunner: forkserver loop read: %w", err)
		}

		if line == fs.tokens.ForkChild {
			pid, err := fs.forkChild()
			if err != nil {
				return fmt.Errorf("coderunner: fork: %w", err)
			}
			if _, err := fs.w.WriteString(strconv.Itoa(pid) + "\n"); err != nil {
				return fmt.Errorf("coderunner: forkserver writeback: %w", err)
			}
			continue
		}

		// Otherwise: decimal pid text to reap.
		pid, err := strconv.Atoi(line)
		if err != nil {
			continue // malformed line; ignore rather than crash the forkserver.
		}
		var ws unix.WaitStatus
		_, _ = unix.Wait4(pid, &ws, fs.sim.WaitpidFlags, nil)
	}
}

// forkChild implements the fork half of spec §4.B's fork-request loop:
// fork(), and in the child branch to childSetup. The raw fork is
// wrapped in beforeFork/afterFork/afterForkInChild, the same
// discipline Talismancer-gvisor-ligolo/pkg/sentry/platform/ptrace/subprocess_linux.go's
// forkStub applies around its SYS_CLONE, so that no other OS thread
// in this multithreaded runtime can be holding an allocator or
// scheduler lock at the instant of fork. All variables are declared
// up front so nothing allocates between beforeFork and the syscall.
//
//go:norace
func (fs *Forkserver) forkChild() (int, error) {
	var (
		pid   uintptr
		errno syscall.Errno
	)

	beforeFork()
	pid, _, errno = syscall.RawSyscall(syscall.SYS_FORK, 0, 0, 0)
	if errno != 0 {
		afterFork()
		return 0, errno
	}
	if pid != 0 {
		afterFork()
		return int(pid), nil
	}

	afterForkInChild()
	// In the forked child: never return to the forkserver's loop.
	childSetup(fs.sim, fs.tokens)
	// childSetup only returns on setup failure or when its command
	// loop ends; the child's only exit from here is the illegal
	// syscall path spec §4.B names explicitly ("attempt to exit").
	unix.Exit(1)
	panic("unreachable")
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
