package export

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/stack-analyzer/internal/aggregate"
	"github.com/coral-mesh/stack-analyzer/internal/bpfmap"
	"github.com/coral-mesh/stack-analyzer/internal/errors"
	"github.com/coral-mesh/stack-analyzer/internal/symbolize"
)

// DefaultRenderer turns folded stacks on stdin into an SVG on stdout.
const DefaultRenderer = "flamegraph.pl"

// Flame writes folded stacks, one line per stack pair:
//
//	comm:pid;[.;...]kernel frames;----------------;user frames count
//
// Frames within each segment run leaf to root. Lines are left-padded with
// "." frames so every user segment reaches the deepest user stack of the
// export, a missing stack counting as one frame.
type Flame struct {
	OutputDir string
	// Renderer is a command line fed the folded text. Empty disables rendering.
	Renderer string
	Symbols  *symbolize.Symbolizer
	Logger   zerolog.Logger
}

// Export implements Exporter.
func (f *Flame) Export(ctx context.Context, tables *bpfmap.Tables) error {
	logger := f.Logger.With().Str("component", "flame_exporter").Logger()

	entries, err := drain(tables)
	if err != nil {
		return err
	}

	text := f.Fold(tables, entries)

	path, err := writeArtifact(f.OutputDir, FoldedFile, text, logger)
	if err != nil {
		return fmt.Errorf("write folded stacks: %w", err)
	}
	logger.Info().
		Str("path", path).
		Int("stacks", len(entries)).
		Int("symbols", f.Symbols.CacheLen()).
		Msg("Folded stacks saved")

	return f.render(ctx, text, logger)
}

// Fold renders entries as folded text, highest count first.
func (f *Flame) Fold(tables *bpfmap.Tables, entries []aggregate.Entry) []byte {
	traces := newTraceCache(tables, f.Logger)

	userDepth := func(key bpfmap.StackKey) int {
		if key.UserStackID < 0 {
			return 1
		}
		return len(traces.get(key.UserStackID))
	}

	maxDepth := 0
	for _, e := range entries {
		if d := userDepth(e.Key); d > maxDepth {
			maxDepth = d
		}
	}

	var buf bytes.Buffer
	_ = aggregate.Descending(entries, func(e aggregate.Entry) error {
		frames := []string{fmt.Sprintf("%s:%d", sanitizeName(commOf(tables, e.Key.PID)), e.Key.PID)}

		for i := userDepth(e.Key); i < maxDepth; i++ {
			frames = append(frames, padFrame)
		}

		if e.Key.KernelStackID < 0 {
			frames = append(frames, MissingKernelStack)
		} else {
			for _, addr := range traces.get(e.Key.KernelStackID) {
				frames = append(frames, f.Symbols.Kernel(addr).Name)
			}
		}

		frames = append(frames, Separator)

		if e.Key.UserStackID < 0 {
			frames = append(frames, MissingUserStack)
		} else {
			for _, addr := range traces.get(e.Key.UserStackID) {
				frames = append(frames, f.Symbols.User(e.Key.PID, addr).Name)
			}
		}

		buf.WriteString(strings.Join(frames, ";"))
		buf.WriteByte(' ')
		buf.WriteString(strconv.FormatUint(e.Count, 10))
		buf.WriteByte('\n')
		return nil
	})
	return buf.Bytes()
}

func (f *Flame) render(ctx context.Context, text []byte, logger zerolog.Logger) error {
	args := strings.Fields(f.Renderer)
	if len(args) == 0 {
		return nil
	}
	bin, err := exec.LookPath(args[0])
	if err != nil {
		return errors.New(errors.KindRendererUnavailable, "render", err)
	}

	var stdout, stderr bytes.Buffer
	//nolint:gosec // G204: renderer is operator configuration.
	cmd := exec.CommandContext(ctx, bin, args[1:]...)
	cmd.Stdin = bytes.NewReader(text)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errors.New(errors.KindRendererUnavailable, "render",
			fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(stderr.String())))
	}

	path, err := writeArtifact(f.OutputDir, SVGFile, stdout.Bytes(), logger)
	if err != nil {
		return errors.New(errors.KindRendererUnavailable, "render", err)
	}
	logger.Info().Str("path", path).Msg("Flame graph rendered")
	return nil
}

func commOf(tables *bpfmap.Tables, pid int32) string {
	if tables.Comms != nil {
		if comm, err := tables.Comms.Lookup(pid); err == nil {
			if name := comm.String(); name != "" {
				return name
			}
		}
	}
	return "[unknown]"
}

var nameReplacer = strings.NewReplacer(":", "_", ";", "_", " ", "_")

// sanitizeName keeps task names from breaking the "comm:pid;" prefix.
func sanitizeName(name string) string {
	return nameReplacer.Replace(name)
}
