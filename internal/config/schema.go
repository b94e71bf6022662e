// Package config provides layered configuration for the analyzer: defaults,
// a YAML file, environment variables and finally command-line flags.
package config

import (
	"time"

	"github.com/coral-mesh/stack-analyzer/internal/logging"
	"github.com/coral-mesh/stack-analyzer/internal/mode"
)

// Config is the complete configuration of one run.
type Config struct {
	// Mode selects the profiling trigger.
	Mode mode.Kind `yaml:"mode" env:"STACK_ANALYZER_MODE"`
	// Frequency is the CPU-time sampling rate in Hz.
	Frequency int `yaml:"frequency" env:"STACK_ANALYZER_FREQUENCY"`
	// PID is the process to profile, -1 for all.
	PID int `yaml:"pid" env:"STACK_ANALYZER_PID"`
	// Duration is the run budget in seconds.
	Duration int `yaml:"time" env:"STACK_ANALYZER_TIME"`
	// UserOnly disables kernel stack capture.
	UserOnly bool `yaml:"user_only" env:"STACK_ANALYZER_USER_ONLY"`
	// KernelOnly disables user stack capture.
	KernelOnly bool `yaml:"kernel_only" env:"STACK_ANALYZER_KERNEL_ONLY"`
	// Flame exports folded stacks instead of JSON.
	Flame bool `yaml:"flame" env:"STACK_ANALYZER_FLAME"`
	// Interval is the time between live snapshots.
	Interval time.Duration `yaml:"interval" env:"STACK_ANALYZER_INTERVAL"`

	Output  OutputConfig   `yaml:"output"`
	BPF     BPFConfig      `yaml:"bpf"`
	Memory  MemoryConfig   `yaml:"memory"`
	Logging logging.Config `yaml:"logging"`
}

// OutputConfig controls where and how the report is written.
type OutputConfig struct {
	Dir string `yaml:"dir" env:"STACK_ANALYZER_OUTPUT"`
	// Renderer is fed the folded stacks and must print an SVG.
	Renderer string `yaml:"renderer" env:"STACK_ANALYZER_RENDERER"`
}

// BPFConfig locates the compiled BPF objects.
type BPFConfig struct {
	Dir string `yaml:"dir" env:"STACK_ANALYZER_BPF_DIR"`
}

// MemoryConfig configures memory mode.
type MemoryConfig struct {
	// Object is the shared object whose allocator functions are probed.
	Object string `yaml:"object" env:"STACK_ANALYZER_MEMORY_OBJECT"`
}

// ModeOptions derives the driver options from the configuration.
func (c *Config) ModeOptions() mode.Options {
	return mode.Options{
		PID:          c.PID,
		Frequency:    c.Frequency,
		UserStacks:   !c.KernelOnly,
		KernelStacks: !c.UserOnly,
		BPFDir:       c.BPF.Dir,
		Object:       c.Memory.Object,
	}
}
