// Package sysfs provides utilities for interacting with the /sys filesystem.
package sysfs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	btfVmlinuxPath = "/sys/kernel/btf/vmlinux"
	onlineCPUsPath = "/sys/devices/system/cpu/online"
)

// CheckBTFAvailable checks if BTF (BPF Type Format) is available.
// BTF is required for CO-RE (Compile Once, Run Everywhere) support.
func CheckBTFAvailable() bool {
	_, err := os.Stat(btfVmlinuxPath)
	return err == nil
}

// OnlineCPUs returns the ids of the CPUs that are currently online.
func OnlineCPUs() ([]int, error) {
	data, err := os.ReadFile(onlineCPUsPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", onlineCPUsPath, err)
	}
	return ParseCPUList(string(data))
}

// ParseCPUList parses the kernel cpu list format, e.g. "0-3,5,7-8".
func ParseCPUList(list string) ([]int, error) {
	var cpus []int
	for _, part := range strings.Split(strings.TrimSpace(list), ",") {
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("invalid cpu %q: %w", lo, err)
		}
		last := first
		if isRange {
			last, err = strconv.Atoi(hi)
			if err != nil {
				return nil, fmt.Errorf("invalid cpu %q: %w", hi, err)
			}
			if last < first {
				return nil, fmt.Errorf("invalid cpu range %q", part)
			}
		}
		for cpu := first; cpu <= last; cpu++ {
			cpus = append(cpus, cpu)
		}
	}
	return cpus, nil
}
