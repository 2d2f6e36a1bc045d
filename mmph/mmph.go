// Package mmph builds monotone minimal perfect hash functions over
// sorted, distinct, prefix-free keys.
//
// Keys are grouped into fixed-size buckets of consecutive ranks; the
// longest common prefix of each bucket distributes a key to its bucket
// without storing the key itself. Three retrieval functions are built:
// one maps a key to its longest-common-prefix length, one maps the
// resulting prefix to a bucket, and one maps the key to its offset
// inside the bucket. The two key-level functions share one hash seed;
// the prefix-to-bucket function hashes prefixes with its own seed. The
// rank is then
//
//	bucket * bucketSize + offset
//
// Queries for keys outside the build set return the configured
// sentinel only probabilistically unless a signature is attached.
package mmph

import (
	"fmt"
	"iter"
	"math/rand"

	"github.com/sirupsen/logrus"

	"lcpmmph/bitpack"
	"lcpmmph/bits"
	lcperrors "lcpmmph/errors"
	"lcpmmph/hashes"
	"lcpmmph/mwhc"
	"lcpmmph/paramselect"
	"lcpmmph/store"
	"lcpmmph/transform"
	"lcpmmph/utils"
)

const debug = false

// LcpMonotone maps each key of the build set to its rank. Immutable and
// safe for concurrent queries once built.
type LcpMonotone[T any] struct {
	n              int64
	log2BucketSize int
	seed           uint64
	defRetValue    int64

	offsets    *mwhc.Function
	lcpLengths *mwhc.TwoSteps
	lcp2Bucket *mwhc.Function

	signatures    *bitpack.Vector
	signatureMask uint64

	transform transform.Strategy[T]
}

// Builder configures and runs one construction. A builder may be used
// once.
type Builder[T any] struct {
	keys           iter.Seq[T]
	numKeys        int64
	strategy       transform.Strategy[T]
	signatureWidth int
	tempDir        string
	defRetValue    int64
	rng            *rand.Rand
	logger         *logrus.Logger
	built          bool
}

// Default pseudo-random source seed; builds are deterministic unless
// the caller installs its own source.
const defaultRandSeed = 0x9E3779B9

func NewBuilder[T any]() *Builder[T] {
	return &Builder[T]{
		numKeys:     -1,
		defRetValue: -1,
		rng:         rand.New(rand.NewSource(defaultRandSeed)),
	}
}

// Keys supplies the key sequence. It must be re-iterable, ascending and
// prefix-free under the configured transform. It is consumed once by the
// key scan, once more to count it when no cardinality is set, and once
// more per store reseed.
func (b *Builder[T]) Keys(keys iter.Seq[T]) *Builder[T] {
	b.keys = keys
	return b
}

// KeysSlice is a convenience wrapper for in-memory key sets.
func (b *Builder[T]) KeysSlice(keys []T) *Builder[T] {
	b.numKeys = int64(len(keys))
	return b.Keys(func(yield func(T) bool) {
		for _, k := range keys {
			if !yield(k) {
				return
			}
		}
	})
}

// NumKeys fixes the cardinality in advance; -1 (the default) scans the
// sequence once to count.
func (b *Builder[T]) NumKeys(n int64) *Builder[T] {
	b.numKeys = n
	return b
}

// Transform sets the key-to-bit-string strategy.
func (b *Builder[T]) Transform(s transform.Strategy[T]) *Builder[T] {
	b.strategy = s
	return b
}

// SignatureWidth attaches a per-rank signature of the given width for
// probabilistic rejection of unknown keys. Zero stores no signature. A
// negative width requests dictionary behavior and is treated as a
// signature of the absolute width.
func (b *Builder[T]) SignatureWidth(w int) *Builder[T] {
	b.signatureWidth = w
	return b
}

// TempDir selects the spill directory for the hash store; the empty
// string keeps the store in memory.
func (b *Builder[T]) TempDir(dir string) *Builder[T] {
	b.tempDir = dir
	return b
}

// DefaultReturnValue replaces the sentinel returned for unknown keys.
func (b *Builder[T]) DefaultReturnValue(v int64) *Builder[T] {
	b.defRetValue = v
	return b
}

// Rand replaces the pseudo-random source used for seeding and reseeds.
func (b *Builder[T]) Rand(rng *rand.Rand) *Builder[T] {
	b.rng = rng
	return b
}

// Logger attaches an optional build logger; the builder is silent
// without one.
func (b *Builder[T]) Logger(l *logrus.Logger) *Builder[T] {
	b.logger = l
	return b
}

func (b *Builder[T]) Build() (*LcpMonotone[T], error) {
	if b.built {
		return nil, lcperrors.ErrBuilderUsed
	}
	b.built = true
	if b.keys == nil {
		return nil, fmt.Errorf("mmph: no keys configured")
	}
	if b.strategy == nil {
		return nil, fmt.Errorf("mmph: no transformation strategy configured")
	}

	n := b.numKeys
	if n < 0 {
		n = 0
		for range b.keys {
			n++
		}
	}

	m := &LcpMonotone[T]{
		n:           n,
		defRetValue: b.defRetValue,
		transform:   b.strategy,
	}
	if n == 0 {
		return m, nil
	}

	m.log2BucketSize = paramselect.BucketSizeExponent(n)
	bucketSize := int64(1) << m.log2BucketSize
	bucketSizeMask := bucketSize - 1
	numBuckets := paramselect.BucketCount(n, bucketSize)
	if b.logger != nil {
		b.logger.WithFields(logrus.Fields{"n": n, "bucketSize": bucketSize, "buckets": numBuckets}).
			Debug("bucketing")
	}

	st := store.New(b.tempDir, b.rng)
	st.SetLogger(b.logger)
	defer st.Close()

	lcps := make([]bits.BitString, 0, numBuckets)
	lcpLens := make([]int, 0, numBuckets)
	maxLcp := 0

	scan := func() error {
		lcps = lcps[:0]
		lcpLens = lcpLens[:0]
		maxLcp = 0

		var prev bits.BitString
		currLcp := 0
		idx := int64(0)
		var failure error

		b.keys(func(key T) bool {
			curr := b.strategy.ToBitString(key)
			if err := st.Add(curr); err != nil {
				failure = err
				return false
			}
			if idx > 0 {
				prefix := curr.GetLCPLength(prev)
				switch {
				case prefix == prev.Size() && prefix == curr.Size():
					failure = lcperrors.ErrDuplicateKey
				case prefix == prev.Size() || prefix == curr.Size():
					failure = lcperrors.ErrNotPrefixFree
				case prev.At(prefix):
					failure = lcperrors.ErrNotSorted
				}
				if failure != nil {
					return false
				}
				if idx%bucketSize != 0 && prefix < currLcp {
					currLcp = prefix
				}
			}
			if idx%bucketSize == 0 {
				if idx > 0 {
					lcps = append(lcps, prev.Prefix(currLcp))
					lcpLens = append(lcpLens, currLcp)
					if currLcp > maxLcp {
						maxLcp = currLcp
					}
				}
				currLcp = curr.Size()
			}
			prev = curr
			idx++
			return true
		})
		if failure != nil {
			return failure
		}
		if idx != n {
			return fmt.Errorf("mmph: key sequence yielded %d keys, expected %d", idx, n)
		}
		lcps = append(lcps, prev.Prefix(currLcp))
		lcpLens = append(lcpLens, currLcp)
		if currLcp > maxLcp {
			maxLcp = currLcp
		}
		return nil
	}

	if err := scan(); err != nil {
		return nil, err
	}

	if debug {
		seen := make(map[uint64]bool, len(lcps))
		for _, p := range lcps {
			h := p.Hash()
			if seen[h] {
				panic(fmt.Sprintf("duplicate distributor %s", p.String()))
			}
			seen[h] = true
		}
	}

	// The offset and lcp-length functions must key into the same
	// triples, so the seed has to be settled before either is built.
	// The distributors depend only on the key bits, not on the seed, so
	// a reseed only has to re-ingest the transformed keys.
	err := st.CheckAndRetry(func(yield func(bits.BitString) bool) {
		b.keys(func(key T) bool {
			return yield(b.strategy.ToBitString(key))
		})
	})
	if err != nil {
		return nil, err
	}
	m.seed = st.Seed()

	m.lcp2Bucket, err = mwhc.NewBuilder().
		Keys(lcps).
		Values(func(i int64) uint64 { return uint64(i) }, paramselect.WidthForMaxValue(uint64(numBuckets-1))).
		TempDir(b.tempDir).
		Rand(b.rng).
		Logger(b.logger).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building prefix-to-bucket function: %w", err)
	}

	m.offsets, err = mwhc.NewBuilder().
		Store(st).
		Values(func(i int64) uint64 { return uint64(i & bucketSizeMask) }, m.log2BucketSize).
		Rand(b.rng).
		Logger(b.logger).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building offset function: %w", err)
	}

	m.lcpLengths, err = mwhc.NewTwoStepsBuilder().
		Store(st).
		Values(func(i int64) uint64 { return uint64(lcpLens[i>>m.log2BucketSize]) },
			paramselect.WidthForMaxValue(uint64(maxLcp))).
		Rand(b.rng).
		Logger(b.logger).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building lcp-length function: %w", err)
	}

	if b.logger != nil {
		p := 1.0 / (m.lcpLengths.RankMean + 1)
		b.logger.WithField("threshold", paramselect.Threshold(p, m.lcpLengths.Width)).
			Debug("forecast best rank-table threshold")
		b.logger.WithField("bitsPerKey", float64(m.NumBits())/float64(n)).
			Info("construction complete")
	}

	if b.signatureWidth != 0 {
		width := b.signatureWidth
		if width < 0 {
			width = -width
		}
		if width > 64 {
			return nil, fmt.Errorf("mmph: signature width %d exceeds 64", b.signatureWidth)
		}
		m.signatureMask = ^uint64(0) >> (64 - width)
		m.signatures = bitpack.NewVector(int(n), width)
		err := st.ForEachChunk(func(recs []store.Record) error {
			for _, rec := range recs {
				m.signatures.Set(int(rec.Index), rec.Triple[0]&m.signatureMask)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Get returns the rank of key in the build set, or the sentinel for
// keys that provably do not belong to it.
func (m *LcpMonotone[T]) Get(key T) int64 {
	if m.n == 0 {
		return m.defRetValue
	}
	bv := m.transform.ToBitString(key)
	t := hashes.Jenkins(bv, m.seed)

	prefix := int64(m.lcpLengths.GetByTriple(t))
	if prefix < 0 || prefix > int64(bv.Size()) {
		return m.defRetValue
	}

	bucket := int64(m.lcp2Bucket.Get(bv.Prefix(int(prefix))))
	result := bucket<<m.log2BucketSize + int64(m.offsets.GetByTriple(t))
	if result < 0 || result >= m.n {
		// Out-of-set keys can produce any triple at all.
		return m.defRetValue
	}
	if m.signatureMask != 0 && (m.signatures.Get(int(result))^t[0])&m.signatureMask != 0 {
		return m.defRetValue
	}
	return result
}

// Size returns the number of keys.
func (m *LcpMonotone[T]) Size() int64 {
	return m.n
}

// DefaultReturnValue returns the sentinel for unknown keys.
func (m *LcpMonotone[T]) DefaultReturnValue() int64 {
	return m.defRetValue
}

// NumBits returns the storage footprint of the structure.
func (m *LcpMonotone[T]) NumBits() int64 {
	if m.n == 0 {
		return 0
	}
	total := m.offsets.NumBits() + m.lcpLengths.NumBits() + m.lcp2Bucket.NumBits() + m.transform.NumBits()
	if m.signatures != nil {
		total += m.signatures.NumBits()
	}
	return total
}

// MemReport breaks the footprint down by component, in bytes.
func (m *LcpMonotone[T]) MemReport() utils.MemReport {
	if m.n == 0 {
		return utils.MemReport{Name: "mmph"}
	}
	children := []utils.MemReport{
		{Name: "offsets", TotalBytes: int(m.offsets.NumBits() / 8)},
		{Name: "lcpLengths", TotalBytes: int(m.lcpLengths.NumBits() / 8)},
		{Name: "lcp2Bucket", TotalBytes: int(m.lcp2Bucket.NumBits() / 8)},
	}
	if m.signatures != nil {
		children = append(children, utils.MemReport{Name: "signatures", TotalBytes: int(m.signatures.NumBits() / 8)})
	}
	total := 0
	for _, c := range children {
		total += c.TotalBytes
	}
	return utils.MemReport{Name: "mmph", TotalBytes: total, Children: children}
}
