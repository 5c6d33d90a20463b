//go:build linux

package coderunner

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// installCPUTimer arms ITIMER_PROF for (cpuSec, cpuNsec), per spec
// §4.B step 4. ITIMER_PROF always delivers SIGPROF on expiry; the
// configured CPU-exceed signal in config.Simulator must be SIGPROF
// for this to be observable as intended.
func installCPUTimer(cpuSec, cpuNsec, _ int) error {
	it := unix.Itimerval{
		Value: unix.Timeval{Sec: int64(cpuSec), Usec: int64(cpuNsec / 1000)},
	}
	if err := unix.Setitimer(unix.ITIMER_PROF, &it, nil); err != nil {
		return fmt.Errorf("coderunner: setitimer: %w", err)
	}
	return nil
}
