package export

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/stack-analyzer/internal/bpfmap"
	"github.com/coral-mesh/stack-analyzer/internal/symbolize"
)

type fakeKernel struct {
	calls   int
	symbols map[uint64]symbolize.Symbol
}

func (f *fakeKernel) ResolveKernel(addr uint64) (symbolize.Symbol, bool) {
	f.calls++
	sym, ok := f.symbols[addr]
	return sym, ok
}

type fakeUser struct {
	calls   int
	symbols map[uint64]symbolize.Symbol
}

func (f *fakeUser) ResolveUser(_ int32, addr uint64) (symbolize.Symbol, bool) {
	f.calls++
	sym, ok := f.symbols[addr]
	return sym, ok
}

type fixture struct {
	counts *bpfmap.MemTable[bpfmap.StackKey, uint64]
	traces *bpfmap.MemTable[uint32, bpfmap.StackTrace]
	tgids  *bpfmap.MemTable[int32, int32]
	comms  *bpfmap.MemTable[int32, bpfmap.Comm]
	kernel *fakeKernel
	user   *fakeUser
}

func newFixture() *fixture {
	return &fixture{
		counts: bpfmap.NewMemTable[bpfmap.StackKey, uint64](),
		traces: bpfmap.NewMemTable[uint32, bpfmap.StackTrace](),
		tgids:  bpfmap.NewMemTable[int32, int32](),
		comms:  bpfmap.NewMemTable[int32, bpfmap.Comm](),
		kernel: &fakeKernel{symbols: map[uint64]symbolize.Symbol{}},
		user:   &fakeUser{symbols: map[uint64]symbolize.Symbol{}},
	}
}

// sampleFixture models two threads of one process plus a pid the tgid table
// never saw:
//
//	pid 100 (app, tgid 100)    kernel [do_sys]   user [main, ?]  x3
//	pid 101 (worker, tgid 100) kernel missing    user [main]     x7
//	pid 200 (no identity)      kernel [do_sys]   user missing    x1
func sampleFixture() *fixture {
	f := newFixture()
	f.tgids.Put(100, 100)
	f.tgids.Put(101, 100)
	f.comms.Put(100, bpfmap.NewComm("app"))
	f.comms.Put(101, bpfmap.NewComm("worker"))

	f.traces.Put(1, bpfmap.StackTrace{0xffffffff81000010})
	f.traces.Put(2, bpfmap.StackTrace{0x401010, 0x402020})
	f.traces.Put(3, bpfmap.StackTrace{0x401010})

	f.counts.Put(bpfmap.StackKey{PID: 100, KernelStackID: 1, UserStackID: 2}, 3)
	f.counts.Put(bpfmap.StackKey{PID: 101, KernelStackID: -1, UserStackID: 3}, 7)
	f.counts.Put(bpfmap.StackKey{PID: 200, KernelStackID: 1, UserStackID: -1}, 1)

	f.kernel.symbols[0xffffffff81000010] = symbolize.Symbol{Name: "do_sys", Start: 0xffffffff81000000, Known: true}
	f.user.symbols[0x401010] = symbolize.Symbol{Name: "main", Start: 0x401000, Known: true}
	return f
}

func (f *fixture) tables() *bpfmap.Tables {
	return &bpfmap.Tables{Counts: f.counts, Traces: f.traces, Tgids: f.tgids, Comms: f.comms}
}

func (f *fixture) symbolizer() *symbolize.Symbolizer {
	return symbolize.NewSymbolizer(nil, f.kernel, f.user, zerolog.Nop())
}

func aliveSet(pids ...int) func(context.Context, int) bool {
	set := make(map[int]bool, len(pids))
	for _, pid := range pids {
		set[pid] = true
	}
	return func(_ context.Context, pid int) bool { return set[pid] }
}
