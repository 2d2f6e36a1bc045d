package mwhc

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"

	"lcpmmph/bits"
	lcperrors "lcpmmph/errors"
	"lcpmmph/hashes"
	"lcpmmph/paramselect"
	"lcpmmph/store"
)

// maxRankExponent bounds the rank-table exponent; beyond 2^16 distinct
// frequent values the table stops paying for itself.
const maxRankExponent = 16

type valueCount struct {
	value uint64
	count int64
}

// TwoSteps is a layered retrieval function for skewed value
// distributions: the most frequent values are stored through a narrow
// rank code, everything else through a full-width remainder function.
type TwoSteps struct {
	n      int64
	rankFn *Function
	// remainder is nil when the rank table covers every value.
	remainder *Function
	remap     []uint64

	// RankMean is the mean frequency rank of the stored values; the
	// assembler reads it to forecast space.
	RankMean float64
	// Width is the full value width in bits.
	Width int
}

// TwoStepsBuilder assembles a TwoSteps function over a shared store.
type TwoStepsBuilder struct {
	st     *store.ChunkedHashStore
	values func(index int64) uint64
	width  int
	rng    *rand.Rand
	logger *logrus.Logger
	built  bool
}

func NewTwoStepsBuilder() *TwoStepsBuilder {
	return &TwoStepsBuilder{rng: rand.New(rand.NewSource(defaultRandSeed))}
}

func (b *TwoStepsBuilder) Store(st *store.ChunkedHashStore) *TwoStepsBuilder {
	b.st = st
	return b
}

func (b *TwoStepsBuilder) Values(get func(index int64) uint64, width int) *TwoStepsBuilder {
	b.values = get
	b.width = width
	return b
}

func (b *TwoStepsBuilder) Rand(rng *rand.Rand) *TwoStepsBuilder {
	b.rng = rng
	return b
}

func (b *TwoStepsBuilder) Logger(l *logrus.Logger) *TwoStepsBuilder {
	b.logger = l
	return b
}

func (b *TwoStepsBuilder) Build() (*TwoSteps, error) {
	if b.built {
		return nil, lcperrors.ErrBuilderUsed
	}
	b.built = true
	if b.st == nil || b.values == nil {
		return nil, fmt.Errorf("mwhc: two-steps build needs a store and a value supplier")
	}

	n := b.st.Size()
	counts := make(map[uint64]int64)
	for i := int64(0); i < n; i++ {
		counts[b.values(i)]++
	}

	byFreq := make([]valueCount, 0, len(counts))
	for v, c := range counts {
		byFreq = append(byFreq, valueCount{v, c})
	}
	sort.Slice(byFreq, func(i, j int) bool {
		if byFreq[i].count != byFreq[j].count {
			return byFreq[i].count > byFreq[j].count
		}
		return byFreq[i].value < byFreq[j].value
	})

	var rankMean float64
	for pos, vc := range byFreq {
		rankMean += float64(pos) * float64(vc.count)
	}
	if n > 0 {
		rankMean /= float64(n)
	}

	s := b.chooseExponent(byFreq, n)
	if b.logger != nil {
		b.logger.WithFields(logrus.Fields{"exponent": s, "distinct": len(byFreq)}).
			Debug("two-steps rank table threshold")
	}

	numFrequent := (1 << s) - 1
	if numFrequent > len(byFreq) {
		numFrequent = len(byFreq)
	}
	remap := make([]uint64, 1<<s)
	codeOf := make(map[uint64]uint64, numFrequent)
	for i := 0; i < numFrequent; i++ {
		codeOf[byFreq[i].value] = uint64(i + 1)
		remap[i+1] = byFreq[i].value
	}

	rankFn, err := NewBuilder().
		Store(b.st).
		Values(func(i int64) uint64 { return codeOf[b.values(i)] }, s).
		Rand(b.rng).
		Logger(b.logger).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building rank function: %w", err)
	}

	ts := &TwoSteps{
		n:        n,
		rankFn:   rankFn,
		remap:    remap,
		RankMean: rankMean,
		Width:    b.width,
	}

	if numFrequent < len(byFreq) {
		rare := func(i int64) bool {
			_, frequent := codeOf[b.values(i)]
			return !frequent
		}
		ts.remainder, err = NewBuilder().
			Store(b.st).
			Values(b.values, b.width).
			Filter(rare).
			Rand(b.rng).
			Logger(b.logger).
			Build()
		if err != nil {
			return nil, fmt.Errorf("building remainder function: %w", err)
		}
	}

	return ts, nil
}

// chooseExponent picks the rank code width from the closed form
// s(p, r), falling back to covering every distinct value when the form
// degenerates (single value, or a distribution it cannot describe).
func (b *TwoStepsBuilder) chooseExponent(byFreq []valueCount, n int64) int {
	cover := paramselect.CeilLog2(uint64(len(byFreq)) + 1)
	if cover < 1 {
		cover = 1
	}
	if cover > maxRankExponent {
		cover = maxRankExponent
	}

	s := cover
	if len(byFreq) > 1 && b.width > 0 {
		p := float64(byFreq[0].count) / float64(n)
		if raw := paramselect.Threshold(p, b.width); !math.IsNaN(raw) && !math.IsInf(raw, 0) {
			s = int(math.Round(raw))
		}
	}
	if s < 1 {
		s = 1
	}
	if s > cover {
		s = cover
	}
	return s
}

// Size returns the number of keys the function was built over.
func (ts *TwoSteps) Size() int64 {
	return ts.n
}

// Get retrieves the value for a bit string.
func (ts *TwoSteps) Get(bs bits.BitString) uint64 {
	return ts.GetByTriple(hashes.Jenkins(bs, ts.rankFn.seed))
}

// GetByTriple retrieves the value for an already-hashed key: the rank
// code when one is stored, the remainder function otherwise.
func (ts *TwoSteps) GetByTriple(t hashes.Triple) uint64 {
	code := ts.rankFn.GetByTriple(t)
	if code != 0 {
		return ts.remap[code]
	}
	if ts.remainder != nil {
		return ts.remainder.GetByTriple(t)
	}
	return 0
}

// NumBits returns the storage footprint, including the rank table.
func (ts *TwoSteps) NumBits() int64 {
	total := ts.rankFn.NumBits() + 64*int64(len(ts.remap))
	if ts.remainder != nil {
		total += ts.remainder.NumBits()
	}
	return total
}
