// Package proc provides utilities for reading process and kernel state from
// the /proc filesystem on Linux systems.
package proc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/coral-mesh/stack-analyzer/internal/safe"
)

// Root is the mount point of procfs.
const Root = "/proc"

// GetKernelVersion reads the kernel version from /proc/version.
func GetKernelVersion() string {
	data, err := os.ReadFile(Root + "/version")
	if err != nil {
		return "unknown"
	}
	return parseKernelVersion(string(data))
}

// parseKernelVersion extracts the release from output like "Linux version 5.15.0-xxx ...".
func parseKernelVersion(version string) string {
	if idx := strings.Index(version, "Linux version "); idx >= 0 {
		version = version[idx+14:]
		if idx := strings.Index(version, " "); idx >= 0 {
			version = version[:idx]
		}
		return version
	}
	return "unknown"
}

// MapsPath returns the memory map listing of a process.
func MapsPath(pid int) string {
	return fmt.Sprintf("%s/%d/maps", Root, pid)
}

// RootPath returns path as seen from inside the mount namespace of pid.
func RootPath(pid int, path string) string {
	return fmt.Sprintf("%s/%d/root%s", Root, pid, path)
}

// IsAlive reports whether a process with the given pid currently exists.
// Lookup errors are treated as "not alive".
func IsAlive(ctx context.Context, pid int) bool {
	if pid <= 0 {
		return false
	}
	p, clamped := safe.IntToInt32(pid)
	if clamped {
		return false
	}
	ok, err := process.PidExistsWithContext(ctx, p)
	return err == nil && ok
}

// KernelSymbol represents a kernel symbol from /proc/kallsyms.
type KernelSymbol struct {
	Address uint64
	Type    byte
	Name    string
	Module  string // Empty for core kernel, module name for loadable modules
}

// ReadKallsyms reads and parses /proc/kallsyms.
// It returns a list of symbols and the count of zero addresses found (indicating permission issues).
func ReadKallsyms() ([]KernelSymbol, int, error) {
	file, err := os.Open(Root + "/kallsyms")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open /proc/kallsyms: %w", err)
	}
	defer file.Close() // nolint:errcheck

	symbols, zeroAddresses, err := ParseKallsyms(file)
	if err != nil {
		return nil, zeroAddresses, fmt.Errorf("failed to read /proc/kallsyms: %w", err)
	}
	return symbols, zeroAddresses, nil
}

// ParseKallsyms parses kallsyms formatted text.
func ParseKallsyms(r io.Reader) ([]KernelSymbol, int, error) {
	var symbols []KernelSymbol
	scanner := bufio.NewScanner(r)
	zeroAddresses := 0

	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 3 {
			continue
		}

		addr, err := strconv.ParseUint(parts[0], 16, 64)
		if err != nil {
			continue
		}

		// Zero addresses mean kptr_restrict hides them from us.
		if addr == 0 {
			zeroAddresses++
			continue
		}

		var module string
		if len(parts) > 3 && strings.HasPrefix(parts[3], "[") && strings.HasSuffix(parts[3], "]") {
			module = strings.Trim(parts[3], "[]")
		}

		symbols = append(symbols, KernelSymbol{
			Address: addr,
			Type:    parts[1][0],
			Name:    parts[2],
			Module:  module,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, zeroAddresses, err
	}

	return symbols, zeroAddresses, nil
}
