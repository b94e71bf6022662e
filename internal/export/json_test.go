package export

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/stack-analyzer/internal/aggregate"
	"github.com/coral-mesh/stack-analyzer/internal/bpfmap"
	apperrors "github.com/coral-mesh/stack-analyzer/internal/errors"
	"github.com/coral-mesh/stack-analyzer/internal/symbolize"
)

func TestJSONExport_Document(t *testing.T) {
	dir := t.TempDir()
	f := sampleFixture()
	exporter := &JSON{OutputDir: dir, Symbols: f.symbolizer(), Logger: zerolog.Nop(), IsAlive: aliveSet(100)}

	require.NoError(t, exporter.Export(context.Background(), f.tables()))

	data, err := os.ReadFile(filepath.Join(dir, JSONFile))
	require.NoError(t, err)

	want := `{"100":{` +
		`"100":{"stacks":{"2,1":{"count":3,"trace":["do_sys+0x10","----------------","main +0x10","0x0000000000402020"]}},"name":"app"},` +
		`"101":{"stacks":{"3,-1":{"count":7,"trace":["[MISSING KERNEL STACK]","----------------","main"]}},"name":"worker"}},` +
		`"0":{"200":{"stacks":{"-1,1":{"count":1,"trace":["do_sys+0x10","----------------","[MISSING USER STACK]"]}}}}}`
	assert.Equal(t, want, string(data))
}

func TestJSONExport_ByteStable(t *testing.T) {
	f := sampleFixture()
	var outputs []string
	for i := 0; i < 3; i++ {
		dir := t.TempDir()
		exporter := &JSON{OutputDir: dir, Symbols: f.symbolizer(), Logger: zerolog.Nop(), IsAlive: aliveSet()}
		require.NoError(t, exporter.Export(context.Background(), f.tables()))
		data, err := os.ReadFile(filepath.Join(dir, JSONFile))
		require.NoError(t, err)
		outputs = append(outputs, string(data))
	}
	assert.Equal(t, outputs[0], outputs[1])
	assert.Equal(t, outputs[1], outputs[2])
}

func TestJSONBuild_CountsSumPerPID(t *testing.T) {
	f := newFixture()
	f.traces.Put(1, bpfmap.StackTrace{0x10})
	for pid := int32(1); pid <= 5; pid++ {
		f.tgids.Put(pid, 1)
		for ksid := int32(-1); ksid < 3; ksid++ {
			f.counts.Put(bpfmap.StackKey{PID: pid, KernelStackID: ksid, UserStackID: 1}, uint64(pid)*uint64(ksid+2))
		}
	}
	tables := f.tables()
	entries, err := aggregate.DrainSorted(tables.Counts)
	require.NoError(t, err)

	exporter := &JSON{Symbols: f.symbolizer(), Logger: zerolog.Nop(), IsAlive: aliveSet()}
	report, err := exporter.Build(context.Background(), tables, entries)
	require.NoError(t, err)

	data, err := json.Marshal(report)
	require.NoError(t, err)

	var decoded map[string]map[string]struct {
		Stacks map[string]struct {
			Count uint64   `json:"count"`
			Trace []string `json:"trace"`
		} `json:"stacks"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	want := aggregate.TotalsByPID(entries)
	for pidKey, node := range decoded["1"] {
		pid, err := strconv.Atoi(pidKey)
		require.NoError(t, err)

		var sum uint64
		for _, stack := range node.Stacks {
			assert.Positive(t, stack.Count)
			sum += stack.Count
		}
		assert.Equal(t, want[int32(pid)], sum, "pid %d", pid)
	}
	assert.Len(t, decoded["1"], 5)
}

func TestJSONBuild_RegistersIdleProcesses(t *testing.T) {
	f := newFixture()
	f.tgids.Put(300, 300)
	f.comms.Put(300, bpfmap.NewComm("sleepy"))

	exporter := &JSON{Symbols: f.symbolizer(), Logger: zerolog.Nop(), IsAlive: aliveSet()}
	report, err := exporter.Build(context.Background(), f.tables(), nil)
	require.NoError(t, err)

	data, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Equal(t, `{"300":{"300":{"stacks":{},"name":"sleepy"}}}`, string(data))
}

func TestJSONBuild_LivenessCheckedOncePerPID(t *testing.T) {
	f := newFixture()
	f.traces.Put(1, bpfmap.StackTrace{0x401010})
	f.traces.Put(2, bpfmap.StackTrace{0x401020, 0x401010})
	f.user.symbols[0x401010] = symbolize.Symbol{Name: "main", Start: 0x401000, Known: true}
	f.user.symbols[0x401020] = symbolize.Symbol{Name: "work", Start: 0x401018, Known: true}
	f.counts.Put(bpfmap.StackKey{PID: 1, KernelStackID: -1, UserStackID: 1}, 1)
	f.counts.Put(bpfmap.StackKey{PID: 1, KernelStackID: -1, UserStackID: 2}, 2)

	calls := 0
	exporter := &JSON{Symbols: f.symbolizer(), Logger: zerolog.Nop(), IsAlive: func(context.Context, int) bool {
		calls++
		return true
	}}
	tables := f.tables()
	entries, err := aggregate.DrainSorted(tables.Counts)
	require.NoError(t, err)

	report, err := exporter.Build(context.Background(), tables, entries)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	pids, ok := report.Get("0")
	require.True(t, ok)
	node, ok := pids.Get("1")
	require.True(t, ok)
	stack, ok := node.Stacks.Get("2,-1")
	require.True(t, ok)
	assert.Equal(t, []string{MissingKernelStack, Separator, "work +0x8", "main +0x10"}, stack.Trace)
}

type errTable struct{}

func (errTable) Lookup(int32) (int32, error) { return 0, nil }
func (errTable) NextKey(*int32) (int32, error) {
	return 0, errors.New("bad map")
}

func TestJSONBuild_TableError(t *testing.T) {
	f := newFixture()
	tables := f.tables()
	tables.Tgids = errTable{}

	exporter := &JSON{Symbols: f.symbolizer(), Logger: zerolog.Nop(), IsAlive: aliveSet()}
	_, err := exporter.Build(context.Background(), tables, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindTable))
}
