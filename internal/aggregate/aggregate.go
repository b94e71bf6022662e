// Package aggregate turns the kernel's stack-count map into an ordered
// sequence of samples.
package aggregate

import (
	"fmt"

	"github.com/google/btree"

	"github.com/coral-mesh/stack-analyzer/internal/bpfmap"
)

const btreeDegree = 32

// Entry is one stack pair and the number of samples recorded for it.
type Entry struct {
	Key   bpfmap.StackKey
	Count uint64
}

type item struct {
	Entry
	seq uint64
}

func less(a, b item) bool {
	if a.Count != b.Count {
		return a.Count < b.Count
	}
	return a.seq < b.seq
}

// DrainSorted reads every entry of counts and returns them ascending by
// count, ties in the order the keys were encountered. Entries that vanish
// mid-iteration are skipped; a key seen twice is counted once.
func DrainSorted(counts bpfmap.Table[bpfmap.StackKey, uint64]) ([]Entry, error) {
	tree := btree.NewG[item](btreeDegree, less)

	var seq uint64
	err := bpfmap.Each(counts, func(key bpfmap.StackKey, count uint64) bool {
		tree.ReplaceOrInsert(item{Entry: Entry{Key: key, Count: count}, seq: seq})
		seq++
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("drain stack counts: %w", err)
	}

	entries := make([]Entry, 0, tree.Len())
	tree.Ascend(func(it item) bool {
		entries = append(entries, it.Entry)
		return true
	})
	return entries, nil
}

// Total sums the counts of entries.
func Total(entries []Entry) uint64 {
	var total uint64
	for _, e := range entries {
		total += e.Count
	}
	return total
}

// TotalsByPID sums the counts of entries per pid.
func TotalsByPID(entries []Entry) map[int32]uint64 {
	totals := make(map[int32]uint64)
	for _, e := range entries {
		totals[e.Key.PID] += e.Count
	}
	return totals
}

// Descending calls fn for entries from the highest count to the lowest.
func Descending(entries []Entry, fn func(Entry) error) error {
	for i := len(entries) - 1; i >= 0; i-- {
		if err := fn(entries[i]); err != nil {
			return err
		}
	}
	return nil
}
