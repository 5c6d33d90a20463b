//go:build linux && amd64

package tracer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// TestIllegalSyscallExplanation covers scenario S5: a disallowed syscall
// at startup carries {syscall_nr, -1, -1} when it isn't a read/write
// arg-filtering violation, per spec §3's explanation payload rule.
func TestIllegalSyscallExplanation(t *testing.T) {
	term := illegal(60, -1, -1) // exit's syscall number on amd64
	require.Equal(t, IllegalSyscall, term.Reason)
	require.Equal(t, "IS", term.Reason.WireCode())
	require.Equal(t, []int64{60, -1, -1}, term.Explanation())
}

func TestIllegalSyscallExplanationKeepsArgsForReadWriteViolations(t *testing.T) {
	term := illegal(0, 999, 4096) // read() on an unexpected fd
	require.Equal(t, []int64{0, 999, 4096}, term.Explanation())
}

// TestReclassifyCPUTime covers scenario S6: an UNKNOWN_SIGNAL whose
// signal number matches the configured CPU-exceed signal becomes
// XCPUTIME.
func TestReclassifyCPUTime(t *testing.T) {
	raw := termFromSignal(27) // SIGPROF, the default CPUTimeExceedSignal
	require.Equal(t, UnknownSignal, raw.Reason)

	reclassified := ReclassifyCPUTime(raw, 27)
	require.Equal(t, XCPUTime, reclassified.Reason)
	require.Equal(t, "XT", reclassified.Reason.WireCode())
}

func TestReclassifyCPUTimeLeavesOtherSignalsAlone(t *testing.T) {
	raw := termFromSignal(11) // SIGSEGV
	reclassified := ReclassifyCPUTime(raw, 27)
	require.Equal(t, UnknownSignal, reclassified.Reason)
}

func TestReclassifyCPUTimeIsNilSafe(t *testing.T) {
	require.Nil(t, ReclassifyCPUTime(nil, 27))
}

func TestTermFromGoneClassifiesSeccompKill(t *testing.T) {
	// WaitStatus for "killed by signal N" packs the signal into the low
	// byte per the standard wait(2) encoding.
	ws := unix.WaitStatus(unix.SIGSYS)
	require.True(t, ws.Signaled())
	require.Equal(t, unix.SIGSYS, ws.Signal())

	term := termFromGone(ws)
	require.Equal(t, Seccomp, term.Reason)
	require.Equal(t, "SP", term.Reason.WireCode())
}

func TestTermFromGoneClassifiesOtherKillsAsUnknown(t *testing.T) {
	ws := unix.WaitStatus(unix.SIGKILL)
	term := termFromGone(ws)
	require.Equal(t, UnknownKill, term.Reason)
	require.Equal(t, "UK", term.Reason.WireCode())
	require.NotNil(t, term.Explanation())
}

func TestWireCodesCoverEveryReason(t *testing.T) {
	reasons := []TerminationReason{
		IllegalSyscall, ENOMEM, UnknownKill, UnknownSignal,
		UnexpCont, Sabotage, XCPUTime, Seccomp,
	}
	seen := map[string]bool{}
	for _, r := range reasons {
		code := r.WireCode()
		require.NotEmpty(t, code, "missing wire code for %s", r)
		require.Len(t, code, 2)
		require.False(t, seen[code], "duplicate wire code %q", code)
		seen[code] = true
	}
}

func TestContainsHelper(t *testing.T) {
	list := []string{"mmap", "munmap", "brk", "close", "dup2", "pipe2"}
	require.True(t, contains(list, "close"))
	require.False(t, contains(list, "read"))
	require.False(t, contains(nil, "close"))
}

func TestSyscallNameLookup(t *testing.T) {
	name, ok := syscallName(0)
	require.True(t, ok)
	require.Equal(t, "read", name)

	name, ok = syscallName(1)
	require.True(t, ok)
	require.Equal(t, "write", name)

	_, ok = syscallName(9999)
	require.False(t, ok)
}

func TestRegsToSyscallArgsReadsABIRegisters(t *testing.T) {
	var regs unix.PtraceRegs
	regs.Orig_rax = 0
	regs.Rdi = 7
	regs.Rsi = 8
	regs.Rdx = 9

	sysno, a0, a1, a2 := regsToSyscallArgs(&regs)
	require.Equal(t, int64(0), sysno)
	require.Equal(t, int64(7), a0)
	require.Equal(t, int64(8), a1)
	require.Equal(t, int64(9), a2)
}
