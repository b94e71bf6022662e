package mode

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind selects the trigger stacks are captured on.
type Kind int

const (
	CPUTime Kind = iota
	OffCPU
	Memory
	IO
)

var kindNames = [...]string{
	CPUTime: "cpu",
	OffCPU:  "offcpu",
	Memory:  "mem",
	IO:      "io",
}

var kindObjects = [...]string{
	CPUTime: "on_cpu_count.bpf.o",
	OffCPU:  "off_cpu_count.bpf.o",
	Memory:  "mem_count.bpf.o",
	IO:      "io_count.bpf.o",
}

// Kinds lists every supported kind in numeric order.
func Kinds() []Kind {
	return []Kind{CPUTime, OffCPU, Memory, IO}
}

// Valid reports whether k names a supported kind.
func (k Kind) Valid() bool {
	return k >= CPUTime && k <= IO
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ObjectFile returns the file name of the BPF object the kind loads.
func (k Kind) ObjectFile() string {
	if !k.Valid() {
		return ""
	}
	return kindObjects[k]
}

// ParseKind accepts either the numeric form (0-3) or the name of a kind.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if n, err := strconv.Atoi(s); err == nil {
		k := Kind(n)
		if !k.Valid() {
			return 0, fmt.Errorf("unknown mode %d (want 0-3)", n)
		}
		return k, nil
	}
	for i, name := range kindNames {
		if s == name {
			return Kind(i), nil
		}
	}
	switch s {
	case "on-cpu", "oncpu":
		return CPUTime, nil
	case "off-cpu":
		return OffCPU, nil
	case "memory":
		return Memory, nil
	}
	return 0, fmt.Errorf("unknown mode %q (want one of %s)", s, strings.Join(kindNames[:], ", "))
}

// Set implements pflag.Value.
func (k *Kind) Set(s string) error {
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Type implements pflag.Value.
func (k *Kind) Type() string {
	return "mode"
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	return k.Set(string(text))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown mode %d", int(k))
	}
	return []byte(k.String()), nil
}
