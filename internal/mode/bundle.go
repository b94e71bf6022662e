package mode

import (
	stderrors "errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/stack-analyzer/internal/bpfmap"
	"github.com/coral-mesh/stack-analyzer/internal/errors"
	"github.com/coral-mesh/stack-analyzer/internal/safe"
)

type state int

const (
	stateNew state = iota
	stateLoaded
	stateAttached
	stateDetached
	stateUnloaded
)

func (s state) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateLoaded:
		return "loaded"
	case stateAttached:
		return "attached"
	case stateDetached:
		return "detached"
	case stateUnloaded:
		return "unloaded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// bundle owns the kernel objects of one mode: the loaded collection and
// every binding created while attaching.
type bundle struct {
	kind   Kind
	opts   Options
	logger zerolog.Logger
	state  state

	coll     *ebpf.Collection
	programs map[string]*ebpf.ProgramSpec
	links    []link.Link
	events   []io.Closer
}

func newBundle(kind Kind, opts Options, logger zerolog.Logger) bundle {
	return bundle{
		kind:   kind,
		opts:   opts,
		logger: logger.With().Str("component", "mode").Str("mode", kind.String()).Logger(),
	}
}

func (b *bundle) Kind() Kind {
	return b.kind
}

func (b *bundle) objectPath() string {
	return filepath.Join(b.opts.BPFDir, b.kind.ObjectFile())
}

func (b *bundle) targetPID() int32 {
	pid, _ := safe.IntToInt32(b.opts.PID)
	return pid
}

// load opens the object, rewrites consts and loads the collection.
func (b *bundle) load(consts map[string]interface{}) error {
	if b.state != stateNew {
		panic(fmt.Sprintf("mode %s: Load called in state %s", b.kind, b.state))
	}
	// A failed load is terminal; the instance cannot be retried.
	b.state = stateUnloaded

	path := b.objectPath()
	spec, err := ebpf.LoadCollectionSpec(path)
	if err != nil {
		return errors.New(errors.KindLoad, "load", fmt.Errorf("open %s: %w", path, err))
	}

	if err := spec.RewriteConstants(consts); err != nil {
		return errors.New(errors.KindLoad, "load", fmt.Errorf("rewrite constants: %w", err))
	}

	coll, err := ebpf.NewCollectionWithOptions(spec, ebpf.CollectionOptions{})
	if err != nil {
		b.logVerifierError(err)
		return errors.New(errors.KindLoad, "load", fmt.Errorf("load %s: %w", path, err))
	}

	b.coll = coll
	b.programs = spec.Programs
	b.state = stateLoaded

	b.logger.Info().
		Str("object", path).
		Int("programs", len(coll.Programs)).
		Int("maps", len(coll.Maps)).
		Msg("BPF object loaded")
	return nil
}

func (b *bundle) logVerifierError(err error) {
	var ve *ebpf.VerifierError
	if !stderrors.As(err, &ve) {
		return
	}
	for _, line := range ve.Log {
		b.logger.Debug().Str("verifier", line).Msg("Verifier log")
	}
}

// beginAttach checks the state machine before attaching.
func (b *bundle) beginAttach() {
	if b.state != stateLoaded {
		panic(fmt.Sprintf("mode %s: Attach called in state %s", b.kind, b.state))
	}
	b.state = stateAttached
}

func (b *bundle) program(name string) (*ebpf.Program, error) {
	prog, ok := b.coll.Programs[name]
	if !ok || prog == nil {
		return nil, errors.Newf(errors.KindAttach, "attach", "program %s not found in %s", name, b.objectPath())
	}
	return prog, nil
}

// autoAttach attaches every program not in skip whose section name names an
// attach point. Programs are visited in name order.
func (b *bundle) autoAttach(skip map[string]bool) error {
	names := make([]string, 0, len(b.coll.Programs))
	for name := range b.coll.Programs {
		if !skip[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		spec, ok := b.programs[name]
		if !ok {
			continue
		}
		point, ok := parseSection(spec.SectionName)
		if !ok {
			b.logger.Debug().Str("program", name).Str("section", spec.SectionName).Msg("Program is not auto-attachable, skipping")
			continue
		}

		l, err := point.attach(b.coll.Programs[name])
		if err != nil {
			return errors.New(errors.KindAttach, "attach", fmt.Errorf("%s (%s): %w", name, spec.SectionName, err))
		}
		b.links = append(b.links, l)
		b.logger.Debug().Str("program", name).Str("section", spec.SectionName).Msg("Program attached")
	}
	return nil
}

func (b *bundle) Detach() {
	closers := make([]io.Closer, 0, len(b.links)+len(b.events))
	for _, l := range b.links {
		closers = append(closers, l)
	}
	closers = append(closers, b.events...)
	if len(closers) == 0 {
		return
	}

	if err := errors.CloseAll(closers...); err != nil {
		b.logger.Warn().Err(err).Msg("Errors while detaching")
	}
	b.logger.Debug().Int("bindings", len(closers)).Msg("Detached")

	b.links = nil
	b.events = nil
	if b.state == stateAttached {
		b.state = stateDetached
	}
}

func (b *bundle) Unload() {
	b.Detach()
	if b.coll != nil {
		b.coll.Close()
		b.coll = nil
		b.logger.Debug().Msg("BPF object unloaded")
	}
	b.state = stateUnloaded
}

func (b *bundle) Tables() (*bpfmap.Tables, error) {
	if b.coll == nil {
		return nil, errors.Newf(errors.KindTable, "tables", "mode %s is not loaded", b.kind)
	}
	tables, err := bpfmap.FromCollection(b.coll)
	if err != nil {
		return nil, errors.New(errors.KindTable, "tables", err)
	}
	return tables, nil
}
