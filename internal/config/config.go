// Package config loads the two deployment-tunable settings files named
// by GLOBAL_CONFIG_MODULE and SIMULATOR_SETTINGS_MODULE. The original
// pointed these at Python modules; this rewrite points them at TOML
// files carrying the same field names.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FDQuad is the fixed, pre-agreed fd numbers for one end of the pipe
// protocol: {r, _w, _r, w}.
type FDQuad struct {
	R  int `toml:"r"`
	UW int `toml:"_w"`
	UR int `toml:"_r"`
	W  int `toml:"w"`
}

// Global holds deployment-tunable knobs (GLOBAL_CONFIG_MODULE).
type Global struct {
	MediaRoot          string `toml:"media_root"`
	ContainerImage      string `toml:"container_image"`
	ContainerUser       string `toml:"container_user"`
	AppArmorProfile     string `toml:"apparmor_profile"`
	RedisAddr           string `toml:"redis_addr"`
	RequestStream       string `toml:"request_stream"`
	ResultStream        string `toml:"result_stream"`
	ConsumerGroup       string `toml:"consumer_group"`
	WorkerName          string `toml:"worker_name"`
	ScratchRoot         string `toml:"scratch_root"`
	LogFile             string `toml:"log_file"`
	LogLevel            string `toml:"log_level"`
}

// Simulator holds the fixed protocol constants (SIMULATOR_SETTINGS_MODULE):
// allowed-syscall lists, control-code values, fd numbers, and the
// CPU-exceed signal number. Field names mirror
// original_source/simulator/settings.py one-for-one.
type Simulator struct {
	ChildMaxWriteSize int `toml:"child_max_write_size"`
	ChildPipeSize     int `toml:"child_pipe_size"`

	ForkserverPipeFDs FDQuad `toml:"forkserver_pipe_fds"`
	ForkedPipeFDs     FDQuad `toml:"forked_pipe_fds"`

	AllowedSyscalls        []string `toml:"allowed_syscalls"`
	SeccompAllowedSyscalls []string `toml:"seccomp_allowed_syscalls"`

	WaitpidFlags int `toml:"waitpid_flags"`

	ForkChildToken      string `toml:"fork_child_token"`
	ContinueToken       string `toml:"continue_token"`
	ChildReadyToken     string `toml:"child_ready_token"`
	StartSimulationToken string `toml:"start_simulation_token"`

	CPUTimeExceedSignal int `toml:"cpu_time_exceed_signal"`
}

// DefaultSimulator returns the settings baked into original_source/simulator/settings.py,
// used whenever no SIMULATOR_SETTINGS_MODULE file is configured.
func DefaultSimulator() Simulator {
	return Simulator{
		ChildMaxWriteSize:      2048,
		ChildPipeSize:          4096,
		ForkserverPipeFDs:      FDQuad{R: 20, UW: 21, UR: 22, W: 23},
		ForkedPipeFDs:          FDQuad{R: 30, UW: 31, UR: 32, W: 33},
		AllowedSyscalls:        []string{"mmap", "munmap", "brk", "close", "dup2", "pipe2"},
		SeccompAllowedSyscalls: []string{"mmap", "munmap", "brk", "read", "write"},
		WaitpidFlags:           0x40000000, // __WALL
		ForkChildToken:         "f",
		ContinueToken:          "0",
		ChildReadyToken:        "3",
		StartSimulationToken:   "4",
		CPUTimeExceedSignal:    27, // SIGPROF, delivered by ITIMER_PROF on expiry
	}
}

// LoadGlobal reads the TOML file named by GLOBAL_CONFIG_MODULE.
func LoadGlobal(path string) (Global, error) {
	var g Global
	if path == "" {
		return g, fmt.Errorf("config: GLOBAL_CONFIG_MODULE is not set")
	}
	if _, err := toml.DecodeFile(path, &g); err != nil {
		return g, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return g, nil
}

// LoadSimulator reads the TOML file named by SIMULATOR_SETTINGS_MODULE,
// falling back to DefaultSimulator for any field left unset in the file
// is not attempted here: an explicit file always fully overrides the
// defaults, matching the original's all-or-nothing module import.
func LoadSimulator(path string) (Simulator, error) {
	if path == "" {
		return DefaultSimulator(), nil
	}
	var s Simulator
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return s, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return s, nil
}

// FromEnv loads both files from GLOBAL_CONFIG_MODULE and
// SIMULATOR_SETTINGS_MODULE.
func FromEnv() (Global, Simulator, error) {
	g, err := LoadGlobal(os.Getenv("GLOBAL_CONFIG_MODULE"))
	if err != nil {
		return g, Simulator{}, err
	}
	s, err := LoadSimulator(os.Getenv("SIMULATOR_SETTINGS_MODULE"))
	if err != nil {
		return g, s, err
	}
	return g, s, nil
}
