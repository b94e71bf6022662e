package bpfmap

import "sync"

// MemTable is an in-memory Table that follows kernel iteration semantics:
// keys are handed out in insertion order and NextKey with a key that is no
// longer present restarts from the first key.
type MemTable[K comparable, V any] struct {
	mu     sync.Mutex
	keys   []K
	values map[K]V
}

// NewMemTable returns an empty table.
func NewMemTable[K comparable, V any]() *MemTable[K, V] {
	return &MemTable[K, V]{values: make(map[K]V)}
}

// Put inserts or replaces a value.
func (t *MemTable[K, V]) Put(key K, value V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
}

// Delete removes a key.
func (t *MemTable[K, V]) Delete(key K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.values[key]; !ok {
		return
	}
	delete(t.values, key)
	for i, k := range t.keys {
		if k == key {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of stored keys.
func (t *MemTable[K, V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.keys)
}

// Lookup implements Table.
func (t *MemTable[K, V]) Lookup(key K) (V, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.values[key]
	if !ok {
		return v, ErrKeyNotExist
	}
	return v, nil
}

// NextKey implements Table.
func (t *MemTable[K, V]) NextKey(prev *K) (K, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero K
	idx := 0
	if prev != nil {
		idx = -1
		for i, k := range t.keys {
			if k == *prev {
				idx = i + 1
				break
			}
		}
		if idx < 0 {
			idx = 0
		}
	}
	if idx >= len(t.keys) {
		return zero, ErrKeyNotExist
	}
	return t.keys[idx], nil
}
