// Package constants defines shared configuration defaults.
package constants

import (
	"math"
	"time"
)

const (
	// EnvPrefix prefixes every environment variable the analyzer reads.
	EnvPrefix = "STACK_ANALYZER_"

	// DefaultFrequency is the CPU-time sampling rate in Hz.
	DefaultFrequency = 49

	// AllProcesses is the pid value meaning "profile every process".
	AllProcesses = -1

	// DefaultDuration is the run budget in seconds; effectively unbounded.
	DefaultDuration = math.MaxInt32

	// DefaultInterval is the time between two live snapshots.
	DefaultInterval = 5 * time.Second

	// DefaultOutputDir is where report artifacts are written.
	DefaultOutputDir = "."

	// DefaultBPFDir holds the compiled BPF objects.
	DefaultBPFDir = "/usr/lib/stack-analyzer/bpf"
)
