package config

import (
	"github.com/coral-mesh/stack-analyzer/internal/constants"
	"github.com/coral-mesh/stack-analyzer/internal/export"
	"github.com/coral-mesh/stack-analyzer/internal/logging"
	"github.com/coral-mesh/stack-analyzer/internal/mode"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Mode:      mode.CPUTime,
		Frequency: constants.DefaultFrequency,
		PID:       constants.AllProcesses,
		Duration:  constants.DefaultDuration,
		Interval:  constants.DefaultInterval,
		Output: OutputConfig{
			Dir:      constants.DefaultOutputDir,
			Renderer: export.DefaultRenderer,
		},
		BPF: BPFConfig{
			Dir: constants.DefaultBPFDir,
		},
		Memory: MemoryConfig{
			Object: mode.DefaultAllocatorObject,
		},
		Logging: logging.DefaultConfig(),
	}
}
