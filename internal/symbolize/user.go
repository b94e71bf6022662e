package symbolize

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/pprof/profile"
	"github.com/ianlancetaylor/demangle"
	"github.com/rs/zerolog"

	errs "github.com/coral-mesh/stack-analyzer/internal/errors"
	"github.com/coral-mesh/stack-analyzer/internal/sys/proc"
)

type elfSymbol struct {
	name  string
	value uint64
	size  uint64
}

type loadSegment struct {
	off    uint64
	filesz uint64
	vaddr  uint64
}

// elfImage is the part of an ELF file needed to symbolize addresses.
type elfImage struct {
	segments []loadSegment
	symbols  []elfSymbol // sorted by value
}

func openImage(path string) (*elfImage, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() // nolint:errcheck

	img := &elfImage{}
	for _, p := range f.Progs {
		if p.Type == elf.PT_LOAD {
			img.segments = append(img.segments, loadSegment{off: p.Off, filesz: p.Filesz, vaddr: p.Vaddr})
		}
	}

	// Stripped shared objects usually keep only the dynamic symbol table.
	syms, _ := f.Symbols()
	dyn, _ := f.DynamicSymbols()
	for _, s := range append(syms, dyn...) {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Value == 0 {
			continue
		}
		img.symbols = append(img.symbols, elfSymbol{name: s.Name, value: s.Value, size: s.Size})
	}
	if len(img.symbols) == 0 {
		return nil, fmt.Errorf("%s has no function symbols", path)
	}

	img.sortSymbols()
	return img, nil
}

func (img *elfImage) sortSymbols() {
	sort.SliceStable(img.symbols, func(i, j int) bool {
		return img.symbols[i].value < img.symbols[j].value
	})
}

// vaddr translates a file offset into the virtual address the ELF file
// expects it to be loaded at.
func (img *elfImage) vaddr(off uint64) (uint64, bool) {
	for _, seg := range img.segments {
		if off >= seg.off && off < seg.off+seg.filesz {
			return off - seg.off + seg.vaddr, true
		}
	}
	return 0, false
}

func (img *elfImage) lookup(vaddr uint64) (elfSymbol, bool) {
	idx := sort.Search(len(img.symbols), func(i int) bool {
		return img.symbols[i].value > vaddr
	})
	if idx == 0 {
		return elfSymbol{}, false
	}
	sym := img.symbols[idx-1]
	if sym.size > 0 && vaddr >= sym.value+sym.size {
		return elfSymbol{}, false
	}
	return sym, true
}

// ProcResolver symbolizes user addresses using /proc/<pid>/maps and the ELF
// symbol tables of the mapped files. Each process's mappings and each mapped
// file are loaded at most once; failures are remembered too.
type ProcResolver struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	mappings map[int32][]*profile.Mapping
	images   map[string]*elfImage

	openMaps  func(pid int32) (io.ReadCloser, error)
	imagePath func(pid int32, file string) string
}

// NewProcResolver creates a resolver reading the live /proc filesystem.
func NewProcResolver(logger zerolog.Logger) *ProcResolver {
	return &ProcResolver{
		logger:   logger.With().Str("component", "user_symbolizer").Logger(),
		mappings: make(map[int32][]*profile.Mapping),
		images:   make(map[string]*elfImage),
		openMaps: func(pid int32) (io.ReadCloser, error) {
			return os.Open(proc.MapsPath(int(pid)))
		},
		imagePath: func(pid int32, file string) string {
			return proc.RootPath(int(pid), file)
		},
	}
}

// ResolveUser implements UserResolver.
func (r *ProcResolver) ResolveUser(pid int32, addr uint64) (Symbol, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.mappingFor(pid, addr)
	if m == nil || m.File == "" || strings.HasPrefix(m.File, "[") {
		return Symbol{}, false
	}

	img := r.image(pid, m.File)
	if img == nil {
		return Symbol{}, false
	}

	vaddr, ok := img.vaddr(addr - m.Start + m.Offset)
	if !ok {
		return Symbol{}, false
	}
	sym, ok := img.lookup(vaddr)
	if !ok {
		return Symbol{}, false
	}

	return Symbol{
		Name:  demangle.Filter(sym.name),
		Start: addr - (vaddr - sym.value),
		Known: true,
	}, true
}

func (r *ProcResolver) mappingFor(pid int32, addr uint64) *profile.Mapping {
	mappings, loaded := r.mappings[pid]
	if !loaded {
		var err error
		mappings, err = r.loadMappings(pid)
		if err != nil {
			r.logger.Debug().Err(err).Int32("pid", pid).Msg("Failed to read process mappings")
		}
		r.mappings[pid] = mappings
	}

	for _, m := range mappings {
		if addr >= m.Start && addr < m.Limit {
			return m
		}
	}
	return nil
}

func (r *ProcResolver) loadMappings(pid int32) ([]*profile.Mapping, error) {
	f, err := r.openMaps(pid)
	if err != nil {
		return nil, err
	}
	defer errs.DeferClose(r.logger, f, "Failed to close maps file")

	return profile.ParseProcMaps(f)
}

func (r *ProcResolver) image(pid int32, file string) *elfImage {
	path := r.imagePath(pid, file)
	if img, loaded := r.images[path]; loaded {
		return img
	}

	img, err := openImage(path)
	if err != nil {
		level := zerolog.DebugLevel
		if errors.Is(err, os.ErrNotExist) {
			level = zerolog.TraceLevel
		}
		r.logger.WithLevel(level).Err(err).Str("file", file).Int32("pid", pid).Msg("Failed to load symbols")
		img = nil
	}
	r.images[path] = img
	return img
}
