// Package export writes the final report of a run, either as folded stacks
// for flame graph tooling or as a nested JSON document.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/stack-analyzer/internal/aggregate"
	"github.com/coral-mesh/stack-analyzer/internal/bpfmap"
	"github.com/coral-mesh/stack-analyzer/internal/errors"
	"github.com/coral-mesh/stack-analyzer/internal/privilege"
	"github.com/coral-mesh/stack-analyzer/internal/safe"
)

// Artifact names, relative to the output directory.
const (
	FoldedFile = "stack_count.folded"
	SVGFile    = "stack_count.svg"
	JSONFile   = "stack_count.json"
)

// Frame labels used in place of or between symbolized frames.
const (
	MissingKernelStack = "[MISSING KERNEL STACK]"
	MissingUserStack   = "[MISSING USER STACK]"
	Separator          = "----------------"
	padFrame           = "."
)

// Exporter writes one report from the tables of a detached mode.
type Exporter interface {
	Export(ctx context.Context, tables *bpfmap.Tables) error
}

func drain(tables *bpfmap.Tables) ([]aggregate.Entry, error) {
	if tables == nil || tables.Counts == nil {
		return nil, errors.Newf(errors.KindTable, "export", "count table unavailable")
	}
	entries, err := aggregate.DrainSorted(tables.Counts)
	if err != nil {
		return nil, errors.New(errors.KindTable, "export", err)
	}
	return entries, nil
}

// traceCache avoids looking up the same stack id twice within one export.
type traceCache struct {
	tables *bpfmap.Tables
	logger zerolog.Logger
	traces map[int32][]uint64
}

func newTraceCache(tables *bpfmap.Tables, logger zerolog.Logger) *traceCache {
	return &traceCache{tables: tables, logger: logger, traces: make(map[int32][]uint64)}
}

func (c *traceCache) get(id int32) []uint64 {
	if id < 0 {
		return nil
	}
	if frames, ok := c.traces[id]; ok {
		return frames
	}
	frames, err := c.tables.Trace(id)
	if err != nil {
		c.logger.Debug().Err(err).Int32("stack_id", id).Msg("Failed to read stack trace")
	}
	c.traces[id] = frames
	return frames
}

// writeArtifact atomically writes data to dir/name and hands the file to the
// invoking user when running under sudo.
func writeArtifact(dir, name string, data []byte, logger zerolog.Logger) (string, error) {
	//nolint:gosec // G301: output directory must be readable by the invoking user.
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := safe.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", err
	}
	if err := privilege.FixFileOwnership(path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Failed to fix artifact ownership")
	}
	return path, nil
}
