package mode

import (
	"fmt"

	"github.com/cilium/ebpf/link"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/stack-analyzer/internal/errors"
)

// DefaultAllocatorObject is the library whose allocator is probed in memory
// mode when none is configured.
const DefaultAllocatorObject = "/usr/lib/x86_64-linux-gnu/libc.so.6"

type memProbe struct {
	symbol  string
	program string
	ret     bool
}

// memProbes are the allocator entry and return points memory mode binds.
var memProbes = []memProbe{
	{symbol: "malloc", program: "malloc_enter"},
	{symbol: "malloc", program: "malloc_exit", ret: true},
	{symbol: "calloc", program: "calloc_enter"},
	{symbol: "calloc", program: "calloc_exit", ret: true},
	{symbol: "realloc", program: "realloc_enter"},
	{symbol: "realloc", program: "realloc_exit", ret: true},
	{symbol: "free", program: "free_enter"},
	{symbol: "mmap", program: "mmap_enter"},
	{symbol: "mmap", program: "mmap_exit", ret: true},
	{symbol: "munmap", program: "munmap_enter"},
}

// memoryDriver captures stacks at allocator calls through uprobes.
type memoryDriver struct {
	bundle
}

func newMemoryDriver(opts Options, logger zerolog.Logger) Driver {
	if opts.Object == "" {
		opts.Object = DefaultAllocatorObject
	}
	return &memoryDriver{bundle: newBundle(Memory, opts, logger)}
}

func (d *memoryDriver) Load() error {
	return d.load(map[string]interface{}{
		"apid": d.targetPID(),
		"u":    d.opts.UserStacks,
	})
}

func (d *memoryDriver) Attach() error {
	d.beginAttach()

	ex, err := link.OpenExecutable(d.opts.Object)
	if err != nil {
		return errors.New(errors.KindAttach, "attach", fmt.Errorf("open %s: %w", d.opts.Object, err))
	}

	uprobeOpts := d.uprobeOptions()

	skip := make(map[string]bool, len(memProbes))
	for _, p := range memProbes {
		skip[p.program] = true

		prog, err := d.program(p.program)
		if err != nil {
			return err
		}

		var l link.Link
		if p.ret {
			l, err = ex.Uretprobe(p.symbol, prog, uprobeOpts)
		} else {
			l, err = ex.Uprobe(p.symbol, prog, uprobeOpts)
		}
		if err != nil {
			return errors.New(errors.KindAttach, "attach", fmt.Errorf("%s on %s:%s: %w", p.program, d.opts.Object, p.symbol, err))
		}
		d.links = append(d.links, l)
	}

	if err := d.autoAttach(skip); err != nil {
		return err
	}

	d.logger.Info().
		Str("object", d.opts.Object).
		Int("links", len(d.links)).
		Msg("Allocator probes attached")
	return nil
}

// uprobeOptions binds the probes for every process. The programs filter on
// apid, so a target that has already exited leaves the probes idle instead
// of failing perf_event_open with ESRCH.
func (d *memoryDriver) uprobeOptions() *link.UprobeOptions {
	return &link.UprobeOptions{}
}
