package mode

import (
	"runtime"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/stack-analyzer/internal/errors"
	"github.com/coral-mesh/stack-analyzer/internal/safe"
	"github.com/coral-mesh/stack-analyzer/internal/sys/sysfs"
)

const cpuProgram = "do_stack"

// cpuDriver samples stacks on a timer while threads run on a CPU.
type cpuDriver struct {
	bundle
}

func newCPUDriver(opts Options, logger zerolog.Logger) Driver {
	return &cpuDriver{bundle: newBundle(CPUTime, opts, logger)}
}

func (d *cpuDriver) Load() error {
	return d.load(map[string]interface{}{
		"u": d.opts.UserStacks,
		"k": d.opts.KernelStacks,
	})
}

type eventTarget struct {
	pid int
	cpu int
}

// targets returns one event per online CPU when profiling everything, and a
// single event following the process across CPUs otherwise.
func (d *cpuDriver) targets() []eventTarget {
	if d.opts.PID >= 0 {
		return []eventTarget{{pid: d.opts.PID, cpu: -1}}
	}

	cpus, err := sysfs.OnlineCPUs()
	if err != nil || len(cpus) == 0 {
		d.logger.Debug().Err(err).Msg("Failed to read online CPUs, falling back to runtime.NumCPU")
		cpus = make([]int, runtime.NumCPU())
		for i := range cpus {
			cpus[i] = i
		}
	}

	targets := make([]eventTarget, len(cpus))
	for i, cpu := range cpus {
		targets[i] = eventTarget{pid: -1, cpu: cpu}
	}
	return targets
}

func (d *cpuDriver) Attach() error {
	d.beginAttach()

	prog, err := d.program(cpuProgram)
	if err != nil {
		return err
	}

	freq, clamped := safe.IntToUint64(d.opts.Frequency)
	if clamped || freq == 0 {
		freq = 1
	}

	for _, target := range d.targets() {
		event, err := openCPUClock(target.pid, target.cpu, freq)
		if err != nil {
			if target.pid >= 0 && isProcessGone(err) {
				d.logger.Warn().Int("pid", target.pid).Msg("Target process does not exist, nothing attached")
				return nil
			}
			return errors.New(errors.KindAttach, "attach", err)
		}
		d.events = append(d.events, event)

		if err := event.attach(prog); err != nil {
			return errors.New(errors.KindAttach, "attach", err)
		}
	}

	d.logger.Info().
		Int("events", len(d.events)).
		Uint64("frequency_hz", freq).
		Int("pid", d.opts.PID).
		Msg("CPU clock sampling attached")
	return nil
}
