//go:build linux

package mode

import (
	stderrors "errors"
	"fmt"
	"unsafe"

	"github.com/cilium/ebpf"
	"golang.org/x/sys/unix"
)

// perfEvent is a software CPU clock event sampling at a fixed frequency.
type perfEvent struct {
	fd int
}

// openCPUClock opens a frequency-mode CPU clock event for pid on cpu. Child
// processes are not inherited.
func openCPUClock(pid, cpu int, freq uint64) (*perfEvent, error) {
	attr := &unix.PerfEventAttr{
		Type:   unix.PERF_TYPE_SOFTWARE,
		Config: unix.PERF_COUNT_SW_CPU_CLOCK,
		Size:   uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
		Sample: freq,
		Bits:   unix.PerfBitFreq,
	}

	fd, err := unix.PerfEventOpen(attr, pid, cpu, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("perf_event_open(pid=%d, cpu=%d): %w", pid, cpu, err)
	}
	return &perfEvent{fd: fd}, nil
}

// attach points the event at prog and enables it.
func (e *perfEvent) attach(prog *ebpf.Program) error {
	if err := unix.IoctlSetInt(e.fd, unix.PERF_EVENT_IOC_SET_BPF, prog.FD()); err != nil {
		return fmt.Errorf("attach BPF to perf event: %w", err)
	}
	if err := unix.IoctlSetInt(e.fd, unix.PERF_EVENT_IOC_ENABLE, 0); err != nil {
		return fmt.Errorf("enable perf event: %w", err)
	}
	return nil
}

func (e *perfEvent) Close() error {
	_ = unix.IoctlSetInt(e.fd, unix.PERF_EVENT_IOC_DISABLE, 0)
	if err := unix.Close(e.fd); err != nil {
		return fmt.Errorf("close perf event fd %d: %w", e.fd, err)
	}
	return nil
}

func isProcessGone(err error) bool {
	return stderrors.Is(err, unix.ESRCH)
}
