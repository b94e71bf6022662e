package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/coral-mesh/stack-analyzer/internal/aggregate"
	"github.com/coral-mesh/stack-analyzer/internal/bpfmap"
	"github.com/coral-mesh/stack-analyzer/internal/errors"
	"github.com/coral-mesh/stack-analyzer/internal/symbolize"
	"github.com/coral-mesh/stack-analyzer/internal/sys/proc"
)

// StackNode is one stack pair of a process.
type StackNode struct {
	Count uint64   `json:"count"`
	Trace []string `json:"trace"`
}

// ProcessNode holds the stacks and task name of one pid.
type ProcessNode struct {
	Stacks *orderedmap.OrderedMap[string, *StackNode] `json:"stacks"`
	Name   string                                     `json:"name,omitempty"`
}

// Report maps tgid to pid to process node, in build order.
type Report = orderedmap.OrderedMap[string, *orderedmap.OrderedMap[string, *ProcessNode]]

// JSON writes the nested report:
//
//	{tgid: {pid: {"stacks": {"usid,ksid": {"count": n, "trace": [...]}}, "name": comm}}}
//
// Pids the tgid table does not know are filed under tgid 0.
type JSON struct {
	OutputDir string
	Symbols   *symbolize.Symbolizer
	Logger    zerolog.Logger
	// IsAlive reports whether a pid still exists. Defaults to a procfs check.
	IsAlive func(ctx context.Context, pid int) bool
}

// Export implements Exporter.
func (j *JSON) Export(ctx context.Context, tables *bpfmap.Tables) error {
	logger := j.Logger.With().Str("component", "json_exporter").Logger()

	entries, err := drain(tables)
	if err != nil {
		return err
	}

	report, err := j.Build(ctx, tables, entries)
	if err != nil {
		return err
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	path, err := writeArtifact(j.OutputDir, JSONFile, data, logger)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	logger.Info().
		Str("path", path).
		Int("stacks", len(entries)).
		Int("symbols", j.Symbols.CacheLen()).
		Msg("Stack report saved")
	return nil
}

type reportBuilder struct {
	report *Report
	tgids  map[int32]int32
}

func (b *reportBuilder) node(pid int32) *ProcessNode {
	tgidKey := strconv.FormatInt(int64(b.tgids[pid]), 10)
	pids, ok := b.report.Get(tgidKey)
	if !ok {
		pids = orderedmap.New[string, *ProcessNode]()
		b.report.Set(tgidKey, pids)
	}

	pidKey := strconv.FormatInt(int64(pid), 10)
	node, ok := pids.Get(pidKey)
	if !ok {
		node = &ProcessNode{Stacks: orderedmap.New[string, *StackNode]()}
		pids.Set(pidKey, node)
	}
	return node
}

// Build assembles the report from the identity tables and entries.
func (j *JSON) Build(ctx context.Context, tables *bpfmap.Tables, entries []aggregate.Entry) (*Report, error) {
	b := &reportBuilder{
		report: orderedmap.New[string, *orderedmap.OrderedMap[string, *ProcessNode]](),
		tgids:  make(map[int32]int32),
	}

	if tables.Tgids != nil {
		err := bpfmap.Each(tables.Tgids, func(pid, tgid int32) bool {
			b.tgids[pid] = tgid
			b.node(pid)
			return true
		})
		if err != nil {
			return nil, errors.New(errors.KindTable, "export", fmt.Errorf("read pid_tgid: %w", err))
		}
	}

	if tables.Comms != nil {
		err := bpfmap.Each(tables.Comms, func(pid int32, comm bpfmap.Comm) bool {
			b.node(pid).Name = comm.String()
			return true
		})
		if err != nil {
			return nil, errors.New(errors.KindTable, "export", fmt.Errorf("read pid_comm: %w", err))
		}
	}

	isAlive := j.IsAlive
	if isAlive == nil {
		isAlive = proc.IsAlive
	}
	alive := make(map[int32]bool)
	liveness := func(pid int32) bool {
		v, ok := alive[pid]
		if !ok {
			v = isAlive(ctx, int(pid))
			alive[pid] = v
		}
		return v
	}

	traces := newTraceCache(tables, j.Logger)
	_ = aggregate.Descending(entries, func(e aggregate.Entry) error {
		key := fmt.Sprintf("%d,%d", e.Key.UserStackID, e.Key.KernelStackID)
		b.node(e.Key.PID).Stacks.Set(key, &StackNode{
			Count: e.Count,
			Trace: j.trace(e.Key, traces, liveness),
		})
		return nil
	})

	return b.report, nil
}

func (j *JSON) trace(key bpfmap.StackKey, traces *traceCache, alive func(int32) bool) []string {
	var trace []string

	if key.KernelStackID < 0 {
		trace = append(trace, MissingKernelStack)
	} else {
		for _, addr := range traces.get(key.KernelStackID) {
			sym := j.Symbols.Kernel(addr)
			if sym.Known {
				trace = append(trace, fmt.Sprintf("%s+0x%x", sym.Name, sym.Offset(addr)))
			} else {
				trace = append(trace, sym.Name)
			}
		}
	}

	trace = append(trace, Separator)

	if key.UserStackID < 0 {
		return append(trace, MissingUserStack)
	}
	for _, addr := range traces.get(key.UserStackID) {
		sym := j.Symbols.User(key.PID, addr)
		switch {
		case !sym.Known:
			trace = append(trace, sym.Name)
		case alive(key.PID):
			trace = append(trace, fmt.Sprintf("%s +0x%x", sym.Name, sym.Offset(addr)))
		default:
			// The offset needs the address space of a live process.
			trace = append(trace, sym.Name)
		}
	}
	return trace
}
