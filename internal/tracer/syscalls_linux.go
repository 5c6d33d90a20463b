//go:build linux && amd64

package tracer

import "golang.org/x/sys/unix"

// regsToSyscallArgs pulls the syscall number and first three
// arguments out of the amd64 register file, per the x86-64 syscall
// ABI (rdi, rsi, rdx) used throughout
// other_examples' DataDog ptracer.go.
func regsToSyscallArgs(regs *unix.PtraceRegs) (sysno, a0, a1, a2 int64) {
	return int64(regs.Orig_rax), int64(regs.Rdi), int64(regs.Rsi), int64(regs.Rdx)
}

var syscallNames = map[int64]string{
	0:   "read",
	1:   "write",
	3:   "close",
	9:   "mmap",
	11:  "munmap",
	12:  "brk",
	32:  "dup",
	33:  "dup2",
	60:  "exit",
	231: "exit_group",
	293: "pipe2",
}

func syscallName(nr int64) (string, bool) {
	name, ok := syscallNames[nr]
	return name, ok
}
