//go:build linux

package sandbox

import (
	"fmt"

	"github.com/syndtr/gocapability/capability"
)

// AssertNoElevatedCapabilities is a startup preflight for the worker
// process itself: the host-side worker has no business holding
// CAP_SYS_ADMIN or CAP_SYS_MODULE as effective capabilities
// beyond what the container runtime needs at exec time, since every
// privileged operation (seccomp install, capability drop) happens
// inside the container, not the worker. Grounded on the same
// syndtr/gocapability package Talismancer-gvisor-ligolo's
// runsc/sandbox/sandbox.go uses to inspect capability sets before
// handing them to runc.
func AssertNoElevatedCapabilities() error {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return fmt.Errorf("sandbox: load process capabilities: %w", err)
	}
	if err := caps.Load(); err != nil {
		return fmt.Errorf("sandbox: load process capabilities: %w", err)
	}
	for _, c := range []capability.Cap{capability.CAP_SYS_ADMIN, capability.CAP_SYS_MODULE} {
		if caps.Get(capability.EFFECTIVE, c) {
			return fmt.Errorf("sandbox: worker process unexpectedly holds %s", c)
		}
	}
	return nil
}
