//go:build linux

package coderunner

import (
	"fmt"
	"syscall"
	"unsafe"

	"github.com/elastic/go-seccomp-bpf"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

// installSeccomp installs a kill-process seccomp filter whose
// whitelist is exactly allowed, the backstop named by spec §4.B step
// 5. The policy-to-BPF assembly is the same two-step go-seccomp-bpf +
// golang.org/x/net/bpf pipeline used by
// other_examples' DataDog ptracer.go's traceFilterProg; installation
// is the classic prctl(PR_SET_SECCOMP, SECCOMP_MODE_FILTER, ...) path
// since this filter runs standalone, with no ptrace-cooperative
// PTRACE_O_TRACESECCOMP step needed in the child.
func installSeccomp(allowed []string) error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("coderunner: PR_SET_NO_NEW_PRIVS: %w", err)
	}

	policy := seccomp.Policy{
		DefaultAction: seccomp.ActionKillProcess,
		Syscalls: []seccomp.SyscallGroup{
			{Action: seccomp.ActionAllow, Names: allowed},
		},
	}
	insts, err := policy.Assemble()
	if err != nil {
		return fmt.Errorf("coderunner: assemble seccomp policy: %w", err)
	}
	rawInsts, err := bpf.Assemble(insts)
	if err != nil {
		return fmt.Errorf("coderunner: assemble bpf: %w", err)
	}

	filter := make([]unix.SockFilter, 0, len(rawInsts))
	for _, ins := range rawInsts {
		filter = append(filter, unix.SockFilter{Code: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K})
	}
	fprog := unix.SockFprog{Len: uint16(len(filter)), Filter: &filter[0]}

	if _, _, errno := syscall.RawSyscall(unix.SYS_PRCTL, unix.PR_SET_SECCOMP, 2 /* SECCOMP_MODE_FILTER */, uintptr(unsafe.Pointer(&fprog))); errno != 0 {
		return fmt.Errorf("coderunner: PR_SET_SECCOMP: %w", errno)
	}
	return nil
}
