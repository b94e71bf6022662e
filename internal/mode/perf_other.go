//go:build !linux

package mode

import (
	"fmt"
	"runtime"

	"github.com/cilium/ebpf"
)

type perfEvent struct{}

func openCPUClock(pid, cpu int, freq uint64) (*perfEvent, error) {
	return nil, fmt.Errorf("perf events are not supported on %s", runtime.GOOS)
}

func (e *perfEvent) attach(*ebpf.Program) error {
	return fmt.Errorf("perf events are not supported on %s", runtime.GOOS)
}

func (e *perfEvent) Close() error { return nil }

func isProcessGone(error) bool { return false }
