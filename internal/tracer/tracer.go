//go:build linux

// Package tracer is a thin, typed layer over ptrace/waitpid/seccomp/pidfd.
// It exposes the operations the sandbox controller needs and nothing
// else: attach, wait-and-classify, and the few resume variants that
// drive a tracee through its syscall-entry/exit stops one step at a
// time. Classification follows
// other_examples' DataDog ptracer.go (PtraceGetRegs/PtraceSyscall/
// PtraceCont/Wait4/WaitStatus.TrapCause()) and gVisor's
// pkg/sentry/platform/ptrace subprocess_linux.go (seize + EXITKILL +
// group-stop handling).
package tracer

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// TerminationReason is the closed set of classified child deaths.
type TerminationReason string

const (
	IllegalSyscall TerminationReason = "ILLEGAL_SYSCALL"
	ENOMEM         TerminationReason = "ENOMEM"
	UnknownKill    TerminationReason = "UNKNOWN_KILL"
	UnknownSignal  TerminationReason = "UNKNOWN_SIGNAL"
	UnexpCont      TerminationReason = "UNEXP_CONT"
	Sabotage       TerminationReason = "SABOTAGE"
	XCPUTime       TerminationReason = "XCPUTIME"
	Seccomp        TerminationReason = "SECCOMP"
)

// Termination is a classified tracee death, with an optional
// explanation payload per spec.
type Termination struct {
	Reason      TerminationReason
	Syscall     int64 // set for ILLEGAL_SYSCALL/UNEXP_CONT; otherwise -1 or 0 and not meaningful
	Arg0        int64
	Arg2        int64
	RawStatus   *int
}

func (t *Termination) Error() string {
	return fmt.Sprintf("tracer: %s (syscall=%d arg0=%d arg2=%d)", t.Reason, t.Syscall, t.Arg0, t.Arg2)
}

func illegal(sysno, a0, a2 int64) *Termination {
	return &Termination{Reason: IllegalSyscall, Syscall: sysno, Arg0: a0, Arg2: a2}
}

// StopKind classifies one waitpid-observed stop.
type StopKind int

const (
	StopForkEvent StopKind = iota
	StopSyscallEntry
	StopSyscallExit
	StopChildSignalled // group-stop by SIGCHLD on the forkserver
	StopSignalled      // unclassified signal-stop
	StopGone           // exited or killed
)

// Stop is the result of a single wait_for_stop call.
type Stop struct {
	Kind StopKind

	ForkedPID int // valid when Kind == StopForkEvent

	SyscallNr int64 // valid when Kind is SyscallEntry/Exit
	Arg0      int64
	Arg1      int64
	Arg2      int64

	Signo int // valid when Kind == StopSignalled

	Status unix.WaitStatus // valid when Kind == StopGone
}

// Tracer holds no state of its own beyond what the kernel tracks per
// pid; every method takes the pid it operates on explicitly, matching
// the one-tracer-thread-per-fight model in which a single goroutine
// (with its OS thread locked) drives many pids serially.
type Tracer struct{}

func New() *Tracer { return &Tracer{} }

// AttachSeize attaches to pid without stopping it and sets
// TRACESYSGOOD|TRACEFORK|EXITKILL, per gVisor's attachedThread.
func (t *Tracer) AttachSeize(pid int) error {
	const opts = unix.PTRACE_O_TRACESYSGOOD | unix.PTRACE_O_TRACEFORK | unix.PTRACE_O_EXITKILL
	if err := unix.PtraceSeize(pid, opts); err != nil {
		return fmt.Errorf("tracer: PTRACE_SEIZE %d: %w", pid, err)
	}
	return nil
}

// WaitForStop blocks for the next waitpid status on pid and classifies it.
func (t *Tracer) WaitForStop(pid int) (*Stop, error) {
	var ws unix.WaitStatus
	_, err := unix.Wait4(pid, &ws, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("tracer: wait4 %d: %w", pid, err)
	}

	if ws.Exited() || ws.Signaled() {
		return &Stop{Kind: StopGone, Status: ws}, nil
	}

	if ws.Stopped() {
		sig := ws.StopSignal()

		if sig == unix.SIGTRAP|0x80 || sig == unix.SIGTRAP {
			// PTRACE_EVENT_FORK/CLONE/VFORK arrive as SIGTRAP with a
			// high event byte; PTRACE_O_TRACESYSGOOD syscall-stops
			// arrive as SIGTRAP|0x80 with no event byte.
			if ev := ws.TrapCause(); ev == unix.PTRACE_EVENT_FORK || ev == unix.PTRACE_EVENT_CLONE || ev == unix.PTRACE_EVENT_VFORK {
				msg, err := unix.PtraceGetEventMsg(pid)
				if err != nil {
					return nil, fmt.Errorf("tracer: PTRACE_GETEVENTMSG %d: %w", pid, err)
				}
				return &Stop{Kind: StopForkEvent, ForkedPID: int(msg)}, nil
			}
			return t.classifySyscallStop(pid)
		}

		if sig == unix.SIGCHLD {
			return &Stop{Kind: StopChildSignalled}, nil
		}

		return &Stop{Kind: StopSignalled, Signo: int(sig)}, nil
	}

	return &Stop{Kind: StopGone, Status: ws}, nil
}

func (t *Tracer) classifySyscallStop(pid int) (*Stop, error) {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &regs); err != nil {
		return nil, fmt.Errorf("tracer: PTRACE_GETREGS %d: %w", pid, err)
	}
	sysno, a0, a1, a2 := regsToSyscallArgs(&regs)

	// PTRACE_O_TRACESYSGOOD delivers entry and exit as the same
	// SIGTRAP|0x80 stop; callers distinguish them positionally, since
	// every ResumeSyscall after an entry-stop lands on its exit-stop.
	return &Stop{Kind: StopSyscallEntry, SyscallNr: sysno, Arg0: a0, Arg1: a1, Arg2: a2}, nil
}

// WaitInitialStop consumes the first mandatory stop of a freshly
// forked/seized child.
func (t *Tracer) WaitInitialStop(pid int) (*Stop, error) {
	return t.WaitForStop(pid)
}

// ResumeSyscall issues PTRACE_SYSCALL then waits for the next stop.
func (t *Tracer) ResumeSyscall(pid int) (*Stop, error) {
	if err := unix.PtraceSyscall(pid, 0); err != nil {
		return nil, fmt.Errorf("tracer: PTRACE_SYSCALL %d: %w", pid, err)
	}
	return t.WaitForStop(pid)
}

// ResumePlain issues PTRACE_CONT.
func (t *Tracer) ResumePlain(pid int) error {
	if err := unix.PtraceCont(pid, 0); err != nil {
		return fmt.Errorf("tracer: PTRACE_CONT %d: %w", pid, err)
	}
	return nil
}

// ResumeUntilNextRead steps syscall-entry/exit stops, letting any
// bookkeeping syscall in passthrough (close/pipe2/dup2/mmap/munmap/brk
// -- the non-rw members of config.Simulator.AllowedSyscalls) run to
// completion transparently, until it observes the syscall-ENTRY of a
// legitimate read(readFD, _, <=maxRead); it leaves the tracee parked
// there (entry, not exit -- advancing to exit is the caller's job via
// ResumeReadSE once it has written whatever the read is waiting for).
// Any other syscall-entry is an illegal syscall.
func (t *Tracer) ResumeUntilNextRead(pid int, readFD int, maxRead int64, passthrough []string) (*Termination, error) {
	return t.resumeUntil(pid, "read", readFD, maxRead, passthrough)
}

// ResumeUntilRW asserts the next legitimate syscall is exactly
// expected ("read" or "write"), parking at its syscall-ENTRY; any
// other legitimate-but-mis-ordered syscall classifies as UNEXP_CONT.
func (t *Tracer) ResumeUntilRW(pid int, expected string, fd int, maxRead int64, passthrough []string) (*Termination, error) {
	return t.resumeUntil(pid, expected, fd, maxRead, passthrough)
}

func (t *Tracer) resumeUntil(pid int, expected string, fd int, maxRead int64, passthrough []string) (*Termination, error) {
	for {
		stop, err := t.ResumeSyscall(pid)
		if err != nil {
			return nil, err
		}
		switch stop.Kind {
		case StopGone:
			return termFromGone(stop.Status), nil
		case StopSignalled:
			return termFromSignal(stop.Signo), nil
		case StopSyscallEntry:
			name, ok := syscallName(stop.SyscallNr)
			if !ok {
				return illegal(stop.SyscallNr, -1, -1), nil
			}
			if name != "read" && name != "write" {
				if !contains(passthrough, name) {
					// not a read/write: arg0/arg2 aren't meaningful for
					// this syscall, per spec's explanation payload rule.
					return illegal(stop.SyscallNr, -1, -1), nil
				}
				// bookkeeping syscall the child is allowed to make
				// between pipe reads (close/pipe2/dup2/mmap/...): let
				// it run to its own exit-stop and keep stepping.
				if _, err := t.ResumeSyscall(pid); err != nil {
					return nil, err
				}
				continue
			}
			if int(stop.Arg0) != fd {
				return illegal(stop.SyscallNr, stop.Arg0, stop.Arg2), nil
			}
			if name == "read" && maxRead >= 0 && stop.Arg2 > maxRead {
				return illegal(stop.SyscallNr, stop.Arg0, stop.Arg2), nil
			}
			if name != expected {
				return &Termination{Reason: UnexpCont, Syscall: stop.SyscallNr, Arg0: stop.Arg0, Arg2: stop.Arg2}, nil
			}
			// legitimate, expected: leave the tracee parked at this
			// syscall's entry-stop; ResumeReadSE/ResumeWriteSE advance
			// it to exit once the other end of the pipe has data.
			return nil, nil
		default:
			continue
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ResumeReadSE advances a tracee parked at a read()'s syscall-entry to
// its syscall-exit. maxBytes == -1 disables the upper bound; otherwise
// the entry's requested byte count (arg2) must not exceed it, per
// spec §4.C step 3's "bounds the child's read to exactly the bytes we
// sent" contract -- checked here, against the registers of the
// syscall-entry the tracee is currently parked at, since resumeUntil
// already consumed that entry-stop without knowing this bound.
func (t *Tracer) ResumeReadSE(pid int, maxBytes int64) (*Termination, error) {
	if term, err := checkEntryBound(pid, maxBytes); term != nil || err != nil {
		return term, err
	}
	stop, err := t.ResumeSyscall(pid)
	if err != nil {
		return nil, err
	}
	switch stop.Kind {
	case StopGone:
		return termFromGone(stop.Status), nil
	case StopSignalled:
		return termFromSignal(stop.Signo), nil
	}
	return nil, nil
}

// ResumeWriteSE advances a tracee parked at a write()'s syscall-entry
// to its syscall-exit. maxBytes == -1 disables the upper bound;
// otherwise the entry's requested byte count (arg2) must not exceed
// it, enforcing spec §8's "bytes_written <= CHILD_MAX_WRITE_SIZE"
// property the same way ResumeReadSE enforces its read bound.
func (t *Tracer) ResumeWriteSE(pid int, maxBytes int64) (*Termination, error) {
	if term, err := checkEntryBound(pid, maxBytes); term != nil || err != nil {
		return term, err
	}
	stop, err := t.ResumeSyscall(pid)
	if err != nil {
		return nil, err
	}
	switch stop.Kind {
	case StopGone:
		return termFromGone(stop.Status), nil
	case StopSignalled:
		return termFromSignal(stop.Signo), nil
	}
	return nil, nil
}

// checkEntryBound re-fetches the registers of the syscall-entry the
// tracee is currently parked at (no syscall has executed yet, so the
// registers are exactly as they were when resumeUntil observed this
// entry) and classifies ILLEGAL_SYSCALL if its byte-count argument
// exceeds maxBytes. maxBytes == -1 disables the check.
func checkEntryBound(pid int, maxBytes int64) (*Termination, error) {
	if maxBytes < 0 {
		return nil, nil
	}
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &regs); err != nil {
		return nil, fmt.Errorf("tracer: PTRACE_GETREGS %d: %w", pid, err)
	}
	sysno, a0, _, a2 := regsToSyscallArgs(&regs)
	if a2 > maxBytes {
		return illegal(sysno, a0, a2), nil
	}
	return nil, nil
}

func termFromGone(ws unix.WaitStatus) *Termination {
	if ws.Signaled() && ws.Signal() == unix.SIGSYS {
		return &Termination{Reason: Seccomp}
	}
	status := int(ws)
	return &Termination{Reason: UnknownKill, RawStatus: &status}
}

// termFromSignal classifies a bare signal-stop as UNKNOWN_SIGNAL;
// callers that know the configured CPU-exceed signal number (the
// sandbox controller, via config.Simulator) reclassify it to XCPUTIME
// themselves, since the tracer package carries no deployment config.
func termFromSignal(signo int) *Termination {
	return &Termination{Reason: UnknownSignal, Syscall: -1, Arg0: int64(signo)}
}

// ReclassifyCPUTime turns an UNKNOWN_SIGNAL termination into XCPUTIME
// when its signal matches the configured CPU-time-exceeded signal.
func ReclassifyCPUTime(term *Termination, cpuExceedSignal int) *Termination {
	if term != nil && term.Reason == UnknownSignal && int(term.Arg0) == cpuExceedSignal {
		return &Termination{Reason: XCPUTime, Syscall: -1, Arg0: term.Arg0}
	}
	return term
}

// PidfdOpen wraps pidfd_open(2).
func (t *Tracer) PidfdOpen(pid int) (int, error) {
	fd, _, errno := unix.Syscall(unix.SYS_PIDFD_OPEN, uintptr(pid), 0, 0)
	if errno != 0 {
		return -1, fmt.Errorf("tracer: pidfd_open(%d): %w", pid, errno)
	}
	return int(fd), nil
}

// PidfdGetfd wraps pidfd_getfd(2), acquiring a local duplicate of a
// file descriptor held open by the process behind pidfd.
func (t *Tracer) PidfdGetfd(pidfd int, remoteFD int) (int, error) {
	fd, _, errno := unix.Syscall(unix.SYS_PIDFD_GETFD, uintptr(pidfd), uintptr(remoteFD), 0)
	if errno != 0 {
		return -1, fmt.Errorf("tracer: pidfd_getfd(%d,%d): %w", pidfd, remoteFD, errno)
	}
	return int(fd), nil
}

// wireCodes mirrors original_source/common/values.py's
// TerminationReasons: the two-letter codes the result record carries
// in final_states[i][0], distinct from the long Reason names used
// internally and in log output.
var wireCodes = map[TerminationReason]string{
	IllegalSyscall: "IS",
	ENOMEM:         "EM",
	UnknownKill:    "UK",
	UnknownSignal:  "US",
	UnexpCont:      "UC",
	Sabotage:       "CS",
	XCPUTime:       "XT",
	Seccomp:        "SP",
}

// WireCode returns the two-letter result-record code for a
// TerminationReason, per original_source/common/values.py.
func (r TerminationReason) WireCode() string { return wireCodes[r] }

// Explanation returns the JSON-marshalable explanation payload for a
// Termination, per spec §3: {syscall_number, arg0, arg2} for
// ILLEGAL_SYSCALL, the raw waitpid status word for UNKNOWN_KILL (or
// nil if the death predates attach), and nil otherwise.
func (t *Termination) Explanation() interface{} {
	switch t.Reason {
	case IllegalSyscall:
		return []int64{t.Syscall, t.Arg0, t.Arg2}
	case UnknownKill:
		if t.RawStatus == nil {
			return nil
		}
		return *t.RawStatus
	default:
		return nil
	}
}

// Prlimit sets RLIMIT_AS on pid to bytes, from the host, as spec §4.C
// step 8 requires.
func (t *Tracer) Prlimit(pid int, bytes uint64) error {
	rlim := unix.Rlimit{Cur: bytes, Max: bytes}
	return unix.Prlimit(pid, unix.RLIMIT_AS, &rlim, nil)
}
