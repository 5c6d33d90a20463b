//go:build linux

package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	runc "github.com/containerd/go-runc"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/PyBagheri/codefights/internal/config"
	"github.com/PyBagheri/codefights/internal/rlog"
)

// ForkserverContainer is one fight's sandbox container: a detached,
// unprivileged, read-only-rootfs runc container whose PID 1 is the
// forkserver binary. Grounded on the "start container" half of
// original_source/simulator/entry.py's CRController.__init__, adapted
// onto containerd/go-runc + opencontainers/runtime-spec the way
// Talismancer-gvisor-ligolo's runsc/sandbox/sandbox.go drives runc.
type ForkserverContainer struct {
	runc   *runc.Runc
	id     string
	bundle string
	log    *rlog.Logger

	HostPID int
}

// StartForkserverContainer builds the OCI spec per spec §6's
// container contract and starts it detached.
func StartForkserverContainer(ctx context.Context, g config.Global, id, bundle string, log *rlog.Logger) (*ForkserverContainer, error) {
	spec, err := buildSpec(g)
	if err != nil {
		return nil, err
	}
	if err := writeSpec(bundle, spec); err != nil {
		return nil, err
	}

	rc := &runc.Runc{
		Command: "runc",
		Root:    filepath.Join(g.ScratchRoot, "runc-root"),
		Log:     filepath.Join(bundle, "runc.log"),
	}

	fc := &ForkserverContainer{runc: rc, id: id, bundle: bundle, log: log}

	_, err = rc.Run(ctx, id, bundle, &runc.CreateOpts{Detach: true})
	if err != nil {
		return nil, fmt.Errorf("sandbox: runc run: %w", err)
	}

	// Acquire the container's host PID via the container-runtime's
	// inspection API (spec §6: "detach=true, so the supervisor
	// acquires the container's PID via the container-runtime's
	// inspection API"), with backoff since State() can race container
	// startup.
	var pid int
	op := func() error {
		st, err := rc.State(ctx, id)
		if err != nil {
			return err
		}
		if st.Status != "running" {
			return fmt.Errorf("sandbox: container %s not yet running (status=%s)", id, st.Status)
		}
		pid = st.Pid
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 10 * time.Second
	if err := backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("sandbox: waiting for container start: %w", err)
	}
	fc.HostPID = pid
	return fc, nil
}

// Delete tears down the container after its forkserver (and every
// forked child) has already died via PTRACE_O_EXITKILL.
func (fc *ForkserverContainer) Delete(ctx context.Context) error {
	if err := fc.runc.Delete(ctx, fc.id, &runc.DeleteOpts{Force: true}); err != nil {
		fc.log.Warningf("runc delete %s: %v", fc.id, err)
	}
	return os.RemoveAll(fc.bundle)
}

// buildSpec assembles the OCI runtime spec honoring spec §6's
// container contract: unprivileged user, read-only rootfs, AppArmor
// profile, no capabilities, no stdio.
func buildSpec(g config.Global) (*specs.Spec, error) {
	caps := []string{} // every capability dropped; see AssertNoElevatedCapabilities for the host-side counterpart.

	return &specs.Spec{
		Version: "1.0.2",
		Root:    &specs.Root{Path: "rootfs", Readonly: true},
		Process: &specs.Process{
			Terminal:        false,
			User:            specs.User{Username: g.ContainerUser},
			Args:            []string{"/arenasim", "forkserver"},
			Cwd:             "/",
			NoNewPrivileges: true,
			Capabilities: &specs.LinuxCapabilities{
				Bounding:    caps,
				Effective:   caps,
				Permitted:   caps,
				Inheritable: caps,
			},
		},
		Linux: &specs.Linux{
			ApparmorProfile: g.AppArmorProfile,
		},
	}, nil
}

func writeSpec(bundle string, spec *specs.Spec) error {
	if err := os.MkdirAll(bundle, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(bundle, "config.json"))
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(spec)
}
