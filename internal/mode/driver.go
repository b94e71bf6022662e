// Package mode implements the profiling modes. Each mode loads its own BPF
// object and binds it to a different trigger, but all of them share one
// lifecycle: Load, Attach, Detach, Unload.
package mode

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/stack-analyzer/internal/bpfmap"
)

// Driver runs one profiling mode. A Driver serves a single run: calling
// Attach before a successful Load, or Load twice, panics. Detach and Unload
// are idempotent and may be called in any state.
type Driver interface {
	Kind() Kind
	// Load opens the mode's BPF object, injects the read-only configuration
	// and loads it into the kernel.
	Load() error
	// Attach binds the loaded programs to their trigger. On failure every
	// binding created so far stays recorded for Detach.
	Attach() error
	// Detach releases every binding created by Attach.
	Detach()
	// Unload detaches and releases the kernel objects.
	Unload()
	// Tables returns handles to the maps the programs fill.
	Tables() (*bpfmap.Tables, error)
}

// Options configures a Driver.
type Options struct {
	// PID restricts profiling to one process; -1 profiles everything.
	PID int
	// Frequency is the CPU-time sampling rate in Hz.
	Frequency int
	// UserStacks and KernelStacks toggle capture of each stack.
	UserStacks   bool
	KernelStacks bool
	// BPFDir holds the compiled BPF objects.
	BPFDir string
	// Object is the allocator library probed in memory mode.
	Object string
}

type constructor func(Options, zerolog.Logger) Driver

var constructors = map[Kind]constructor{
	CPUTime: newCPUDriver,
	OffCPU:  newOffCPUDriver,
	Memory:  newMemoryDriver,
	IO:      newIODriver,
}

// New returns the Driver for kind.
func New(kind Kind, opts Options, logger zerolog.Logger) (Driver, error) {
	ctor, ok := constructors[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported mode %s", kind)
	}
	return ctor(opts, logger), nil
}
