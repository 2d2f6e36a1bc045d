package transform

import (
	"math/rand"
	"slices"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"lcpmmph/bits"
)

func randomWords(r *rand.Rand, n int) []string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	seen := make(map[string]bool, n)
	words := make([]string, 0, n)
	for len(words) < n {
		b := make([]byte, 1+r.Intn(12))
		for i := range b {
			b[i] = alphabet[r.Intn(len(alphabet))]
		}
		if !seen[string(b)] {
			seen[string(b)] = true
			words = append(words, string(b))
		}
	}
	return words
}

func checkPrefixFreeAndOrdered(t *testing.T, s Strategy[string], words []string) {
	t.Helper()
	sorted := append([]string(nil), words...)
	sort.Strings(sorted)

	var prev bits.BitString
	for i, w := range sorted {
		curr := s.ToBitString(w)
		require.Equal(t, s.BitLength(w), curr.Size(), "word %q", w)
		if i > 0 {
			lcp := prev.GetLCPLength(curr)
			require.NotEqual(t, prev.Size(), lcp, "%q is a prefix of %q", sorted[i-1], w)
			require.NotEqual(t, curr.Size(), lcp, "%q is a prefix of %q", w, sorted[i-1])
			require.Equal(t, -1, prev.Compare(curr), "%q should sort before %q", sorted[i-1], w)
		}
		prev = curr
	}
}

func TestPrefixFreeStrategies(t *testing.T) {
	words := randomWords(rand.New(rand.NewSource(1)), 500)
	// The random words may already hold some of these; a repeated word
	// would count as a prefix of itself.
	for _, w := range []string{"a", "ab", "abc", "abcd", "b"} {
		if !slices.Contains(words, w) {
			words = append(words, w)
		}
	}

	for _, tc := range []struct {
		name string
		s    Strategy[string]
	}{
		{"iso", PrefixFreeISO()},
		{"utf16", PrefixFreeUTF16()},
		{"utf32", PrefixFreeUTF32()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			checkPrefixFreeAndOrdered(t, tc.s, words)
		})
	}
}

func TestPrefixFreeUTF16_SurrogatePairs(t *testing.T) {
	s := PrefixFreeUTF16()
	bs := s.ToBitString("a\U0001F600")
	// 'a' is one unit, the emoji a surrogate pair, plus the terminator.
	require.Equal(t, 16*4, bs.Size())
	require.Equal(t, s.BitLength("a\U0001F600"), bs.Size())
}

func TestFixed64_OrderAndWidth(t *testing.T) {
	s := Fixed64()
	require.Equal(t, 64, s.ToBitString(0).Size())
	require.Equal(t, -1, s.ToBitString(5).Compare(s.ToBitString(6)))
}

func TestIdentity(t *testing.T) {
	s := Identity()
	bs := bits.NewFromBinary("10101")
	require.True(t, s.ToBitString(bs).Equal(bs))
	require.Equal(t, 5, s.BitLength(bs))
}

func TestForTag(t *testing.T) {
	s, err := ForTag[string](TagISO)
	require.NoError(t, err)
	require.Equal(t, TagISO, s.Tag())

	_, err = ForTag[string](TagFixed64)
	require.Error(t, err, "string strategy cannot come from a uint64 tag")

	_, err = ForTag[uint64](TagFixed64)
	require.NoError(t, err)

	_, err = ForTag[string](Tag(200))
	require.Error(t, err)
}
