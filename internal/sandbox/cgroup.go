//go:build linux

package sandbox

import (
	"fmt"

	cgroupsv1 "github.com/containerd/cgroups"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// FightCgroup is the coarse memory backstop named in SPEC_FULL.md
// §4.C: one cgroup per fight's forkserver container, capped at the
// sum of all players' mem_bytes. The authoritative per-player bound
// remains the prlimit(RLIMIT_AS) the controller sets on each child
// individually (spec §4.C step 8).
type FightCgroup struct {
	cg cgroupsv1.Cgroup
}

// NewFightCgroup creates a cgroup v1 memory-controller cgroup under
// path and sets its memory limit to limitBytes.
func NewFightCgroup(path string, limitBytes int64) (*FightCgroup, error) {
	cg, err := cgroupsv1.New(cgroupsv1.StaticPath(path), &specs.LinuxResources{
		Memory: &specs.LinuxMemory{Limit: &limitBytes},
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox: create cgroup %s: %w", path, err)
	}
	return &FightCgroup{cg: cg}, nil
}

// Add places pid under this cgroup's control.
func (f *FightCgroup) Add(pid int) error {
	return f.cg.Add(cgroupsv1.Process{Pid: pid})
}

// Delete tears down the cgroup; the caller must ensure every member
// process has already exited.
func (f *FightCgroup) Delete() error {
	return f.cg.Delete()
}
