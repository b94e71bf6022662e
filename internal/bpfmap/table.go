// Package bpfmap provides typed, read-only views over the kernel maps filled
// by the profiling programs.
package bpfmap

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
)

// ErrKeyNotExist is returned by Lookup for an absent key and by NextKey once
// iteration is exhausted.
var ErrKeyNotExist = ebpf.ErrKeyNotExist

// Table is a read-only view over a kernel map. NextKey(nil) returns the first
// key. Implementations make no promise about key order beyond it being some
// total order over the keys present at call time.
type Table[K comparable, V any] interface {
	Lookup(key K) (V, error)
	NextKey(prev *K) (K, error)
}

// MapTable adapts an *ebpf.Map to Table.
type MapTable[K comparable, V any] struct {
	m *ebpf.Map
}

// NewMapTable wraps m.
func NewMapTable[K comparable, V any](m *ebpf.Map) *MapTable[K, V] {
	return &MapTable[K, V]{m: m}
}

// Lookup reads the value stored under key.
func (t *MapTable[K, V]) Lookup(key K) (V, error) {
	var value V
	if err := t.m.Lookup(&key, &value); err != nil {
		return value, err
	}
	return value, nil
}

// NextKey returns the key following prev.
func (t *MapTable[K, V]) NextKey(prev *K) (K, error) {
	var next K
	var err error
	if prev == nil {
		err = t.m.NextKey(nil, &next)
	} else {
		err = t.m.NextKey(prev, &next)
	}
	return next, err
}

// maxRestarts bounds how many times Each follows the kernel back to the
// first key before giving up on a table that keeps losing its cursor.
const maxRestarts = 64

// Each calls fn for every (key, value) pair in t until fn returns false.
//
// There is no isolation from concurrent kernel writers: a key that vanishes
// between NextKey and Lookup is skipped, and a key handed out twice (the
// kernel restarts iteration when prev was deleted) is only reported once.
// After a restart the walk continues past the keys already seen.
func Each[K comparable, V any](t Table[K, V], fn func(K, V) bool) error {
	seen := make(map[K]struct{})
	restarts := 0
	revisits := 0

	var prev *K
	for {
		key, err := t.NextKey(prev)
		if errors.Is(err, ErrKeyNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("next key: %w", err)
		}
		prev = &key

		if _, dup := seen[key]; dup {
			if revisits == 0 {
				restarts++
				if restarts > maxRestarts {
					return fmt.Errorf("next key: iteration restarted %d times", restarts-1)
				}
			}
			// A rewound walk passes each seen key at most once before
			// reaching a new one or the end.
			revisits++
			if revisits > len(seen) {
				return nil
			}
			continue
		}
		revisits = 0
		seen[key] = struct{}{}

		value, err := t.Lookup(key)
		if errors.Is(err, ErrKeyNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("lookup: %w", err)
		}

		if !fn(key, value) {
			return nil
		}
	}
}
