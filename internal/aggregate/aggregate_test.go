package aggregate

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/stack-analyzer/internal/bpfmap"
)

func key(pid, ksid, usid int32) bpfmap.StackKey {
	return bpfmap.StackKey{PID: pid, KernelStackID: ksid, UserStackID: usid}
}

func TestDrainSorted_Order(t *testing.T) {
	counts := bpfmap.NewMemTable[bpfmap.StackKey, uint64]()
	counts.Put(key(1, 1, 1), 5)
	counts.Put(key(1, 2, 2), 1)
	counts.Put(key(2, -1, 3), 5)
	counts.Put(key(3, 4, -1), 3)

	entries, err := DrainSorted(counts)
	require.NoError(t, err)

	assert.Equal(t, []Entry{
		{Key: key(1, 2, 2), Count: 1},
		{Key: key(3, 4, -1), Count: 3},
		{Key: key(1, 1, 1), Count: 5},
		{Key: key(2, -1, 3), Count: 5},
	}, entries)
	assert.Equal(t, uint64(14), Total(entries))
}

func TestDrainSorted_RandomizedProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	counts := bpfmap.NewMemTable[bpfmap.StackKey, uint64]()
	for i := 0; i < 500; i++ {
		counts.Put(key(int32(rng.Intn(50)), int32(rng.Intn(20))-1, int32(rng.Intn(20))-1), uint64(rng.Intn(100)+1))
	}

	entries, err := DrainSorted(counts)
	require.NoError(t, err)

	assert.Len(t, entries, counts.Len())
	assert.True(t, sort.SliceIsSorted(entries, func(i, j int) bool {
		return entries[i].Count < entries[j].Count
	}))

	seen := make(map[bpfmap.StackKey]bool)
	for _, e := range entries {
		assert.False(t, seen[e.Key], "duplicate key %+v", e.Key)
		seen[e.Key] = true
	}
}

func TestDrainSorted_Empty(t *testing.T) {
	entries, err := DrainSorted(bpfmap.NewMemTable[bpfmap.StackKey, uint64]())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, Total(entries))
}

type failingTable struct{}

func (failingTable) Lookup(bpfmap.StackKey) (uint64, error) { return 0, nil }
func (failingTable) NextKey(*bpfmap.StackKey) (bpfmap.StackKey, error) {
	return bpfmap.StackKey{}, errors.New("permission denied")
}

func TestDrainSorted_Error(t *testing.T) {
	_, err := DrainSorted(failingTable{})
	assert.ErrorContains(t, err, "permission denied")
}

func TestTotalsByPID(t *testing.T) {
	entries := []Entry{
		{Key: key(1, 1, 1), Count: 2},
		{Key: key(2, 1, 1), Count: 3},
		{Key: key(1, 2, 2), Count: 4},
	}
	assert.Equal(t, map[int32]uint64{1: 6, 2: 3}, TotalsByPID(entries))
}

func TestDescending(t *testing.T) {
	entries := []Entry{{Count: 1}, {Count: 2}, {Count: 3}}

	var got []uint64
	require.NoError(t, Descending(entries, func(e Entry) error {
		got = append(got, e.Count)
		return nil
	}))
	assert.Equal(t, []uint64{3, 2, 1}, got)

	stop := errors.New("stop")
	err := Descending(entries, func(Entry) error { return stop })
	assert.ErrorIs(t, err, stop)
}
