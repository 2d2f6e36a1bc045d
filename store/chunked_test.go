package store

import (
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"lcpmmph/bits"
	lcperrors "lcpmmph/errors"
)

func randomKeys(r *rand.Rand, n int) []bits.BitString {
	seen := make(map[uint64]bool, n)
	keys := make([]bits.BitString, 0, n)
	for len(keys) < n {
		v := r.Uint64()
		if !seen[v] {
			seen[v] = true
			keys = append(keys, bits.NewFromUint64(v))
		}
	}
	return keys
}

func replay(keys []bits.BitString) func(yield func(bits.BitString) bool) {
	return func(yield func(bits.BitString) bool) {
		for _, k := range keys {
			if !yield(k) {
				return
			}
		}
	}
}

func fill(t *testing.T, s *ChunkedHashStore, keys []bits.BitString) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, s.Add(k))
	}
}

func TestStore_DistinctTriplesAndFullIndexCoverage(t *testing.T) {
	keys := randomKeys(rand.New(rand.NewSource(1)), 5000)
	s := New("", rand.New(rand.NewSource(2)))
	defer s.Close()

	fill(t, s, keys)
	require.NoError(t, s.CheckAndRetry(replay(keys)))
	require.Equal(t, int64(len(keys)), s.Size())

	seenIndex := make([]bool, len(keys))
	prevChunk := -1
	require.NoError(t, s.ForEachChunk(func(recs []Record) error {
		prevChunk++
		for i, rec := range recs {
			require.False(t, seenIndex[rec.Index])
			seenIndex[rec.Index] = true
			if i > 0 {
				require.NotEqual(t, recs[i-1].Triple, rec.Triple)
			}
		}
		return nil
	}))
	require.Equal(t, numChunks-1, prevChunk)
	for i, seen := range seenIndex {
		require.True(t, seen, "index %d never yielded", i)
	}
}

func TestStore_IterationDeterministic(t *testing.T) {
	keys := randomKeys(rand.New(rand.NewSource(3)), 2000)

	collect := func(s *ChunkedHashStore) []Record {
		var all []Record
		require.NoError(t, s.ForEachChunk(func(recs []Record) error {
			all = append(all, recs...)
			return nil
		}))
		return all
	}

	a := New("", rand.New(rand.NewSource(7)))
	defer a.Close()
	fill(t, a, keys)
	require.NoError(t, a.CheckAndRetry(replay(keys)))

	b := New(t.TempDir(), rand.New(rand.NewSource(7)))
	defer b.Close()
	fill(t, b, keys)
	require.NoError(t, b.CheckAndRetry(replay(keys)))

	require.Equal(t, a.Seed(), b.Seed())
	require.Equal(t, collect(a), collect(b), "store with a temp dir must iterate like the in-memory one")
}

func TestStore_DuplicateKeysExhaustRetries(t *testing.T) {
	k := bits.NewFromUint64(42)
	keys := []bits.BitString{k, k}
	s := New("", rand.New(rand.NewSource(4)))
	defer s.Close()

	fill(t, s, keys)
	err := s.CheckAndRetry(replay(keys))
	require.ErrorIs(t, err, lcperrors.ErrConstructionFailed)
}

func TestStore_SpillFilesRemovedOnClose(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, rand.New(rand.NewSource(5)))

	// Enough records to push chunks past the spill threshold.
	keys := randomKeys(rand.New(rand.NewSource(6)), (numChunks+6)*spillThreshold)
	fill(t, s, keys)
	require.NoError(t, s.CheckAndRetry(replay(keys)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries, "expected spill files before close")

	require.NoError(t, s.Close())

	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)

	require.ErrorIs(t, s.Add(k64(1)), lcperrors.ErrStoreClosed)
	require.NoError(t, s.Close())
}

func TestStore_ResetClears(t *testing.T) {
	s := New("", rand.New(rand.NewSource(8)))
	defer s.Close()

	fill(t, s, randomKeys(rand.New(rand.NewSource(9)), 100))
	require.NoError(t, s.Reset(12345))
	require.Equal(t, uint64(12345), s.Seed())
	require.Equal(t, int64(0), s.Size())

	total := 0
	require.NoError(t, s.ForEachChunk(func(recs []Record) error {
		total += len(recs)
		return nil
	}))
	require.Zero(t, total)
}

func k64(v uint64) bits.BitString {
	return bits.NewFromUint64(v)
}
