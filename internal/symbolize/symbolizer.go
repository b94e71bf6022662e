package symbolize

import (
	"github.com/rs/zerolog"
)

// kernelPID is the pid under which kernel entries are cached.
const kernelPID = 0

// Symbolizer puts a Cache in front of the kernel and user resolvers. Either
// resolver may be nil, in which case every address of that scope is a miss.
type Symbolizer struct {
	cache  *Cache
	kernel KernelResolver
	user   UserResolver
	logger zerolog.Logger
}

// NewSymbolizer creates a Symbolizer. A nil cache gets a fresh one.
func NewSymbolizer(cache *Cache, kernel KernelResolver, user UserResolver, logger zerolog.Logger) *Symbolizer {
	if cache == nil {
		cache = NewCache()
	}
	return &Symbolizer{
		cache:  cache,
		kernel: kernel,
		user:   user,
		logger: logger.With().Str("component", "symbolizer").Logger(),
	}
}

// Kernel resolves a kernel address.
func (s *Symbolizer) Kernel(addr uint64) Symbol {
	if sym, ok := s.cache.Find(ScopeKernel, kernelPID, addr); ok {
		return sym
	}

	var sym Symbol
	var ok bool
	if s.kernel != nil {
		sym, ok = s.kernel.ResolveKernel(addr)
	}
	if !ok {
		sym = Symbol{Name: Hex(addr)}
	}
	s.cache.Put(ScopeKernel, kernelPID, addr, sym)
	return sym
}

// User resolves an address in the address space of pid.
func (s *Symbolizer) User(pid int32, addr uint64) Symbol {
	if sym, ok := s.cache.Find(ScopeUser, pid, addr); ok {
		return sym
	}

	var sym Symbol
	var ok bool
	if s.user != nil {
		sym, ok = s.user.ResolveUser(pid, addr)
	}
	if !ok {
		sym = Symbol{Name: Hex(addr)}
		s.logger.Trace().Int32("pid", pid).Str("addr", sym.Name).Msg("Unresolved user address")
	}
	s.cache.Put(ScopeUser, pid, addr, sym)
	return sym
}

// CacheLen reports how many addresses have been resolved so far.
func (s *Symbolizer) CacheLen() int {
	return s.cache.Len()
}
