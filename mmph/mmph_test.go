package mmph

import (
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"lcpmmph/bits"
	lcperrors "lcpmmph/errors"
	"lcpmmph/transform"
)

func TestLcpMonotone_Fruit(t *testing.T) {
	keys := []string{"apple", "banana", "cherry", "date"}

	m, err := NewBuilder[string]().
		KeysSlice(keys).
		Transform(transform.PrefixFreeISO()).
		Build()
	require.NoError(t, err)

	for i, k := range keys {
		require.Equal(t, int64(i), m.Get(k), "key %q", k)
	}
}

func TestLcpMonotone_DuplicateKey(t *testing.T) {
	_, err := NewBuilder[string]().
		KeysSlice([]string{"alpha", "beta", "beta", "gamma"}).
		Transform(transform.PrefixFreeISO()).
		Build()
	require.ErrorIs(t, err, lcperrors.ErrDuplicateKey)
}

func TestLcpMonotone_NotSorted(t *testing.T) {
	_, err := NewBuilder[bits.BitString]().
		KeysSlice([]bits.BitString{bits.NewFromBinary("01"), bits.NewFromBinary("00")}).
		Transform(transform.Identity()).
		Build()
	require.ErrorIs(t, err, lcperrors.ErrNotSorted)
}

func TestLcpMonotone_NotPrefixFree(t *testing.T) {
	_, err := NewBuilder[bits.BitString]().
		KeysSlice([]bits.BitString{bits.NewFromBinary("0"), bits.NewFromBinary("01")}).
		Transform(transform.Identity()).
		Build()
	require.ErrorIs(t, err, lcperrors.ErrNotPrefixFree)
}

func TestLcpMonotone_Empty(t *testing.T) {
	m, err := NewBuilder[string]().
		KeysSlice(nil).
		Transform(transform.PrefixFreeISO()).
		Build()
	require.NoError(t, err)

	require.Equal(t, int64(0), m.Size())
	require.Equal(t, int64(0), m.NumBits())
	require.Equal(t, int64(-1), m.Get("anything"))

	data, err := m.Serialize()
	require.NoError(t, err)
	back, err := Deserialize[string](data)
	require.NoError(t, err)
	require.Equal(t, int64(-1), back.Get("anything"))
}

func TestLcpMonotone_SingleKey(t *testing.T) {
	m, err := NewBuilder[string]().
		KeysSlice([]string{"only"}).
		Transform(transform.PrefixFreeISO()).
		SignatureWidth(32).
		Build()
	require.NoError(t, err)

	require.Equal(t, int64(0), m.Get("only"))
	require.Equal(t, int64(-1), m.Get("other"))
	require.Equal(t, int64(-1), m.Get(""))
}

func TestLcpMonotone_Uint64Keys(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	keys := make([]uint64, 0, 3000)
	prev := uint64(0)
	for len(keys) < cap(keys) {
		prev += 1 + uint64(r.Intn(1_000_000))
		keys = append(keys, prev)
	}

	m, err := NewBuilder[uint64]().
		KeysSlice(keys).
		Transform(transform.Fixed64()).
		Build()
	require.NoError(t, err)

	for i, k := range keys {
		require.Equal(t, int64(i), m.Get(k), "key %d", k)
	}
}

func TestLcpMonotone_NumKeysMismatch(t *testing.T) {
	_, err := NewBuilder[string]().
		KeysSlice([]string{"a", "b", "c"}).
		NumKeys(5).
		Transform(transform.PrefixFreeISO()).
		Build()
	require.Error(t, err)
}

func TestLcpMonotone_DefaultReturnValue(t *testing.T) {
	m, err := NewBuilder[string]().
		KeysSlice([]string{"x", "y"}).
		Transform(transform.PrefixFreeISO()).
		SignatureWidth(16).
		DefaultReturnValue(-99).
		Build()
	require.NoError(t, err)
	require.Equal(t, int64(-99), m.Get("zebra"))
}

func TestLcpMonotone_SignatureGuard(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	members := sortedUniqueWords(r, 1000)

	m, err := NewBuilder[string]().
		KeysSlice(members).
		Transform(transform.PrefixFreeISO()).
		SignatureWidth(32).
		Build()
	require.NoError(t, err)

	for i, k := range members {
		require.Equal(t, int64(i), m.Get(k))
	}

	inSet := make(map[string]bool, len(members))
	for _, k := range members {
		inSet[k] = true
	}
	falsePositives := 0
	for probes := 0; probes < 10_000; {
		w := randomWord(r)
		if inSet[w] {
			continue
		}
		probes++
		if m.Get(w) != -1 {
			falsePositives++
		}
	}
	// With 32-bit signatures the expected count is about 2e-6.
	require.LessOrEqual(t, falsePositives, 1)
}

func TestLcpMonotone_NegativeSignatureWidth(t *testing.T) {
	keys := sortedUniqueWords(rand.New(rand.NewSource(3)), 100)

	m, err := NewBuilder[string]().
		KeysSlice(keys).
		Transform(transform.PrefixFreeISO()).
		SignatureWidth(-16).
		Build()
	require.NoError(t, err)

	for i, k := range keys {
		require.Equal(t, int64(i), m.Get(k))
	}
	require.NotZero(t, m.signatureMask)
}

func TestLcpMonotone_SerializeRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	keys := sortedUniqueWords(r, 2000)

	m, err := NewBuilder[string]().
		KeysSlice(keys).
		Transform(transform.PrefixFreeISO()).
		SignatureWidth(24).
		Build()
	require.NoError(t, err)

	data, err := m.Serialize()
	require.NoError(t, err)

	back, err := Deserialize[string](data)
	require.NoError(t, err)
	require.Equal(t, m.Size(), back.Size())
	require.Equal(t, m.NumBits(), back.NumBits())

	for i, k := range keys {
		require.Equal(t, int64(i), back.Get(k), "key %q", k)
	}
	for i := 0; i < 100; i++ {
		w := randomWord(r)
		require.Equal(t, m.Get(w), back.Get(w), "probe %q", w)
	}
}

func TestLcpMonotone_Deterministic(t *testing.T) {
	keys := sortedUniqueWords(rand.New(rand.NewSource(5)), 1500)

	build := func() []byte {
		m, err := NewBuilder[string]().
			KeysSlice(keys).
			Transform(transform.PrefixFreeISO()).
			SignatureWidth(16).
			Build()
		require.NoError(t, err)
		data, err := m.Serialize()
		require.NoError(t, err)
		return data
	}
	require.Equal(t, build(), build())
}

func TestLcpMonotone_TempDirLeavesNoFiles(t *testing.T) {
	dir := t.TempDir()
	keys := sortedUniqueWords(rand.New(rand.NewSource(6)), 5000)

	m, err := NewBuilder[string]().
		KeysSlice(keys).
		Transform(transform.PrefixFreeISO()).
		TempDir(dir).
		Build()
	require.NoError(t, err)

	for i, k := range keys {
		require.Equal(t, int64(i), m.Get(k))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "spill files must be removed when the build finishes")
}

func TestLcpMonotone_BuilderSingleUse(t *testing.T) {
	b := NewBuilder[string]().
		KeysSlice([]string{"a"}).
		Transform(transform.PrefixFreeISO())
	_, err := b.Build()
	require.NoError(t, err)
	_, err = b.Build()
	require.ErrorIs(t, err, lcperrors.ErrBuilderUsed)
}

func TestLcpMonotone_MemReport(t *testing.T) {
	m, err := NewBuilder[string]().
		KeysSlice(sortedUniqueWords(rand.New(rand.NewSource(7)), 500)).
		Transform(transform.PrefixFreeISO()).
		Build()
	require.NoError(t, err)

	report := m.MemReport()
	require.Positive(t, report.TotalBytes)
	require.NotEmpty(t, report.Children)
	require.NotEmpty(t, report.String())
}
