// Package symbolize maps captured instruction addresses to symbol names for
// kernel text and for the address spaces of sampled processes.
package symbolize

import "fmt"

// Scope separates kernel addresses from per-process user addresses.
type Scope uint8

const (
	ScopeKernel Scope = iota
	ScopeUser
)

func (s Scope) String() string {
	switch s {
	case ScopeKernel:
		return "kernel"
	case ScopeUser:
		return "user"
	default:
		return fmt.Sprintf("scope(%d)", uint8(s))
	}
}

// Symbol is the result of resolving one address. Known is false when the
// address could not be symbolized and Name holds its hex literal.
type Symbol struct {
	Name  string
	Start uint64
	Known bool
}

// Offset returns the distance of addr from the start of the symbol.
func (s Symbol) Offset(addr uint64) uint64 {
	if !s.Known || addr < s.Start {
		return 0
	}
	return addr - s.Start
}

// Hex formats an address the way unresolved frames are reported.
func Hex(addr uint64) string {
	return fmt.Sprintf("0x%016x", addr)
}

// KernelResolver resolves kernel text addresses.
type KernelResolver interface {
	ResolveKernel(addr uint64) (Symbol, bool)
}

// UserResolver resolves addresses inside the address space of a process.
type UserResolver interface {
	ResolveUser(pid int32, addr uint64) (Symbol, bool)
}
