//go:build linux

package coderunner

import _ "unsafe" // for go:linkname

// beforeFork, afterFork, and afterForkInChild reach into the Go
// runtime's own fork-safety hooks: the same
// syscall_runtime_{Before,After,AfterForkInChild} functions that
// package syscall links against to guard ForkExec on Linux
// (runtime/proc.go). beforeFork stops the world and blocks signals on
// the calling thread so that no other OS thread can be holding an
// allocator or scheduler lock at the instant of fork; afterFork and
// afterForkInChild undo that on the parent and child sides
// respectively.
//
// Grounded on
// Talismancer-gvisor-ligolo/pkg/sentry/platform/ptrace/subprocess_linux.go's
// forkStub, which wraps its raw SYS_CLONE in exactly this
// beforeFork/afterFork/afterForkInChild trio; that file's own
// definitions of the three aren't in this tree, so they're supplied
// here via the standard linkname pull the syscall package itself
// uses for the identical purpose.

//go:linkname beforeFork syscall.runtime_BeforeFork
func beforeFork()

//go:linkname afterFork syscall.runtime_AfterFork
func afterFork()

//go:linkname afterForkInChild syscall.runtime_AfterForkInChild
func afterForkInChild()
