package bpfmap

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cilium/ebpf"

	"github.com/coral-mesh/stack-analyzer/internal/safe"
)

// Names of the maps every profiling object exposes.
const (
	CountsMap = "psid_count"
	TracesMap = "stack_trace"
	TgidsMap  = "pid_tgid"
	CommsMap  = "pid_comm"
)

// MaxStackDepth is the number of slots in a stack_trace value.
const MaxStackDepth = 127

// CommLen is the size of the task name buffer.
const CommLen = 16

// StackKey mirrors struct psid {s32 pid; s32 ksid; s32 usid;}.
// A stack id of -1 means the stack was not captured.
type StackKey struct {
	PID           int32
	KernelStackID int32
	UserStackID   int32
}

// StackTrace holds instruction addresses leaf first, terminated by 0.
type StackTrace [MaxStackDepth]uint64

// Frames returns the addresses before the terminating zero.
func (t *StackTrace) Frames() []uint64 {
	return t[:t.Depth()]
}

// Depth returns the number of captured frames.
func (t *StackTrace) Depth() int {
	for i, addr := range t {
		if addr == 0 {
			return i
		}
	}
	return MaxStackDepth
}

// Comm is a NUL-terminated task name.
type Comm [CommLen]byte

func (c Comm) String() string {
	if i := bytes.IndexByte(c[:], 0); i >= 0 {
		return string(c[:i])
	}
	return string(c[:])
}

// NewComm builds a Comm from name, truncating to fit.
func NewComm(name string) Comm {
	var c Comm
	copy(c[:CommLen-1], name)
	return c
}

// Tables groups the four maps a profiling object fills.
type Tables struct {
	Counts Table[StackKey, uint64]
	Traces Table[uint32, StackTrace]
	Tgids  Table[int32, int32]
	Comms  Table[int32, Comm]
}

// ErrMissingMap is returned when a collection does not expose a required map.
var ErrMissingMap = errors.New("map not found")

// FromCollection builds Tables from a loaded collection.
func FromCollection(coll *ebpf.Collection) (*Tables, error) {
	get := func(name string) (*ebpf.Map, error) {
		m, ok := coll.Maps[name]
		if !ok || m == nil {
			return nil, fmt.Errorf("%s: %w", name, ErrMissingMap)
		}
		return m, nil
	}

	counts, err := get(CountsMap)
	if err != nil {
		return nil, err
	}
	traces, err := get(TracesMap)
	if err != nil {
		return nil, err
	}
	tgids, err := get(TgidsMap)
	if err != nil {
		return nil, err
	}
	comms, err := get(CommsMap)
	if err != nil {
		return nil, err
	}

	return &Tables{
		Counts: NewMapTable[StackKey, uint64](counts),
		Traces: NewMapTable[uint32, StackTrace](traces),
		Tgids:  NewMapTable[int32, int32](tgids),
		Comms:  NewMapTable[int32, Comm](comms),
	}, nil
}

// Trace returns the frames stored under a stack id.
// Negative ids, ids the kernel has already evicted and a missing trace table
// yield no frames.
func (t *Tables) Trace(id int32) ([]uint64, error) {
	if id < 0 || t.Traces == nil {
		return nil, nil
	}
	key, _ := safe.Int32ToUint32(id)
	trace, err := t.Traces.Lookup(key)
	if errors.Is(err, ErrKeyNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup stack %d: %w", id, err)
	}
	return trace.Frames(), nil
}
