package symbolize

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/stack-analyzer/internal/sys/proc"
)

// Kallsyms resolves kernel addresses against a sorted copy of /proc/kallsyms.
type Kallsyms struct {
	symbols []proc.KernelSymbol
}

// NewKallsyms sorts symbols by address and returns a resolver over them.
func NewKallsyms(symbols []proc.KernelSymbol) *Kallsyms {
	sorted := make([]proc.KernelSymbol, len(symbols))
	copy(sorted, symbols)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Address < sorted[j].Address
	})
	return &Kallsyms{symbols: sorted}
}

// LoadKallsyms reads /proc/kallsyms.
func LoadKallsyms(logger zerolog.Logger) (*Kallsyms, error) {
	symbols, zeroAddresses, err := proc.ReadKallsyms()
	if err != nil {
		return nil, fmt.Errorf("failed to read kallsyms: %w", err)
	}

	if len(symbols) == 0 && zeroAddresses > 0 {
		return nil, fmt.Errorf("all kallsyms addresses are 0 (insufficient permissions - need root or CAP_SYSLOG)")
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no kernel symbols found in /proc/kallsyms")
	}

	k := NewKallsyms(symbols)
	logger.Debug().
		Int("symbol_count", len(symbols)).
		Int("zero_addresses", zeroAddresses).
		Msg("Kernel symbols loaded")
	return k, nil
}

// ResolveKernel returns the symbol with the largest address not above addr.
func (k *Kallsyms) ResolveKernel(addr uint64) (Symbol, bool) {
	idx := sort.Search(len(k.symbols), func(i int) bool {
		return k.symbols[i].Address > addr
	})
	if idx == 0 {
		return Symbol{}, false
	}

	sym := k.symbols[idx-1]
	return Symbol{Name: sym.Name, Start: sym.Address, Known: true}, true
}

// Len returns the number of loaded symbols.
func (k *Kallsyms) Len() int {
	return len(k.symbols)
}
