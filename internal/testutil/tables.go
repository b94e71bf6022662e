package testutil

import (
	"github.com/coral-mesh/stack-analyzer/internal/bpfmap"
)

// Tables is an in-memory stand-in for the four maps a profiling program
// fills.
type Tables struct {
	Counts *bpfmap.MemTable[bpfmap.StackKey, uint64]
	Traces *bpfmap.MemTable[uint32, bpfmap.StackTrace]
	Tgids  *bpfmap.MemTable[int32, int32]
	Comms  *bpfmap.MemTable[int32, bpfmap.Comm]
}

// NewTables creates empty tables.
func NewTables() *Tables {
	return &Tables{
		Counts: bpfmap.NewMemTable[bpfmap.StackKey, uint64](),
		Traces: bpfmap.NewMemTable[uint32, bpfmap.StackTrace](),
		Tgids:  bpfmap.NewMemTable[int32, int32](),
		Comms:  bpfmap.NewMemTable[int32, bpfmap.Comm](),
	}
}

// Process records the identity of a task.
func (t *Tables) Process(pid, tgid int32, comm string) *Tables {
	t.Tgids.Put(pid, tgid)
	t.Comms.Put(pid, bpfmap.NewComm(comm))
	return t
}

// Trace stores a stack under id, leaf first.
func (t *Tables) Trace(id uint32, frames ...uint64) *Tables {
	var trace bpfmap.StackTrace
	copy(trace[:], frames)
	t.Traces.Put(id, trace)
	return t
}

// Sample sets the count of a stack pair.
func (t *Tables) Sample(pid, kernelStackID, userStackID int32, count uint64) *Tables {
	t.Counts.Put(bpfmap.StackKey{PID: pid, KernelStackID: kernelStackID, UserStackID: userStackID}, count)
	return t
}

// View returns the tables behind the read-only interfaces.
func (t *Tables) View() *bpfmap.Tables {
	return &bpfmap.Tables{
		Counts: t.Counts,
		Traces: t.Traces,
		Tgids:  t.Tgids,
		Comms:  t.Comms,
	}
}
