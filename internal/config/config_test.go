package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultSimulatorMatchesOriginalSettings(t *testing.T) {
	sim := DefaultSimulator()
	require.Equal(t, 2048, sim.ChildMaxWriteSize)
	require.Equal(t, FDQuad{R: 20, UW: 21, UR: 22, W: 23}, sim.ForkserverPipeFDs)
	require.Equal(t, FDQuad{R: 30, UW: 31, UR: 32, W: 33}, sim.ForkedPipeFDs)
	require.Contains(t, sim.AllowedSyscalls, "close")
	require.Contains(t, sim.AllowedSyscalls, "pipe2")
	require.Contains(t, sim.AllowedSyscalls, "dup2")
	require.Equal(t, []string{"mmap", "munmap", "brk", "read", "write"}, sim.SeccompAllowedSyscalls)
}

func TestLoadSimulatorFallsBackToDefaultsWhenUnset(t *testing.T) {
	sim, err := LoadSimulator("")
	require.NoError(t, err)
	require.Equal(t, DefaultSimulator(), sim)
}

func TestLoadSimulatorReadsTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "simulator.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
child_max_write_size = 4096
child_pipe_size = 8192
waitpid_flags = 0
fork_child_token = "f"
continue_token = "0"
child_ready_token = "3"
start_simulation_token = "4"
cpu_time_exceed_signal = 27
allowed_syscalls = ["mmap"]
seccomp_allowed_syscalls = ["read"]

[forkserver_pipe_fds]
r = 20
_w = 21
_r = 22
w = 23

[forked_pipe_fds]
r = 30
_w = 31
_r = 32
w = 33
`), 0o644))

	sim, err := LoadSimulator(path)
	require.NoError(t, err)
	require.Equal(t, 4096, sim.ChildMaxWriteSize)
	require.Equal(t, []string{"mmap"}, sim.AllowedSyscalls)
}

func TestLoadGlobalRequiresPath(t *testing.T) {
	_, err := LoadGlobal("")
	require.Error(t, err)
}

func TestLoadGlobalReadsTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "global.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
media_root = "/media"
container_image = "codefights-sandbox"
container_user = "sandbox"
apparmor_profile = "codefights-sandbox"
redis_addr = "127.0.0.1:6379"
request_stream = "fights:requests"
result_stream = "fights:results"
consumer_group = "workers"
worker_name = "worker-1"
scratch_root = "/var/lib/codefights"
log_file = ""
log_level = "info"
`), 0o644))

	g, err := LoadGlobal(path)
	require.NoError(t, err)
	require.Equal(t, "/media", g.MediaRoot)
	require.Equal(t, "127.0.0.1:6379", g.RedisAddr)
	require.Equal(t, "worker-1", g.WorkerName)
}
