// Package mwhc builds static retrieval functions: for every key, the
// XOR of three cells selected by the key's hash triple reconstructs the
// value stored for that key. Querying a key outside the build set
// returns an arbitrary value of the same width.
package mwhc

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"lcpmmph/bitpack"
	"lcpmmph/bits"
	lcperrors "lcpmmph/errors"
	"lcpmmph/hashes"
	"lcpmmph/hypergraph"
	"lcpmmph/store"
)

const (
	// Peeling retries with fresh remix seeds before giving up.
	maxPeelAttempts = 32

	// Default pseudo-random source seed. Builds are deterministic unless
	// the caller installs its own source.
	defaultRandSeed = 0x5DEECE66D
)

// Function is a built retrieval function. It is immutable and safe for
// concurrent queries.
type Function struct {
	n         int64
	width     int
	partSize  int
	seed      uint64
	remixSeed uint64
	data      *bitpack.Vector
}

// Builder assembles a Function. A builder can be used once.
type Builder struct {
	keys    []bits.BitString
	st      *store.ChunkedHashStore
	values  func(index int64) uint64
	filter  func(index int64) bool
	width   int
	tempDir string
	rng     *rand.Rand
	logger  *logrus.Logger
	built   bool
}

func NewBuilder() *Builder {
	return &Builder{rng: rand.New(rand.NewSource(defaultRandSeed))}
}

// Keys supplies the key set directly; the builder creates and owns a
// private hash store for them. Mutually exclusive with Store.
func (b *Builder) Keys(keys []bits.BitString) *Builder {
	b.keys = keys
	return b
}

// Store supplies a shared, already-checked hash store. The function
// inherits the store's seed, so several functions built on one store
// key into the same triples.
func (b *Builder) Store(st *store.ChunkedHashStore) *Builder {
	b.st = st
	return b
}

// Values installs the index-addressed value supplier and the cell width.
// The supplier is consulted lazily, once per edge, during assignment.
func (b *Builder) Values(get func(index int64) uint64, width int) *Builder {
	b.values = get
	b.width = width
	return b
}

// Filter restricts the function to the keys whose index satisfies pred.
// Queries for excluded keys return arbitrary values.
func (b *Builder) Filter(pred func(index int64) bool) *Builder {
	b.filter = pred
	return b
}

// TempDir sets the spill directory for a builder-owned store.
func (b *Builder) TempDir(dir string) *Builder {
	b.tempDir = dir
	return b
}

// Rand replaces the pseudo-random source used for reseeding.
func (b *Builder) Rand(rng *rand.Rand) *Builder {
	b.rng = rng
	return b
}

// Logger attaches an optional build logger.
func (b *Builder) Logger(l *logrus.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) Build() (*Function, error) {
	if b.built {
		return nil, lcperrors.ErrBuilderUsed
	}
	b.built = true
	if b.values == nil {
		return nil, fmt.Errorf("mwhc: no value supplier configured")
	}

	st := b.st
	if st == nil {
		if b.keys == nil {
			return nil, fmt.Errorf("mwhc: no keys and no store configured")
		}
		st = store.New(b.tempDir, b.rng)
		st.SetLogger(b.logger)
		defer st.Close()
		for _, k := range b.keys {
			if err := st.Add(k); err != nil {
				return nil, err
			}
		}
		err := st.CheckAndRetry(func(yield func(bits.BitString) bool) {
			for _, k := range b.keys {
				if !yield(k) {
					return
				}
			}
		})
		if err != nil {
			return nil, err
		}
	}

	var records []store.Record
	err := st.ForEachChunk(func(recs []store.Record) error {
		for _, rec := range recs {
			if b.filter == nil || b.filter(rec.Index) {
				records = append(records, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	f := &Function{
		n:     int64(len(records)),
		width: b.width,
		seed:  st.Seed(),
	}
	if f.n == 0 {
		f.data = bitpack.NewVector(0, b.width)
		return f, nil
	}
	f.partSize = (int(math.Ceil(hypergraph.Gamma*float64(f.n))) + 2) / 3
	if f.n > 1 && f.partSize < 2 {
		// A one-vertex segment would force every edge onto the same
		// triple; two edges can then never peel.
		f.partSize = 2
	}

	n := len(records)
	vertex0 := make([]int, n)
	vertex1 := make([]int, n)
	vertex2 := make([]int, n)
	hinges := make([]int, n)
	d := make([]int, 3*f.partSize)

	var order []int
	for attempt := 0; ; attempt++ {
		if attempt >= maxPeelAttempts {
			return nil, fmt.Errorf("%w: hypergraph not peelable after %d attempts",
				lcperrors.ErrConstructionFailed, attempt)
		}
		if attempt > 0 {
			f.remixSeed = b.rng.Uint64()
			if b.logger != nil {
				b.logger.WithField("attempt", attempt).Info("hypergraph not peelable, remixing")
			}
		}

		for i := range d {
			d[i] = 0
		}
		for i, rec := range records {
			v0, v1, v2 := f.edge(rec.Triple)
			vertex0[i], vertex1[i], vertex2[i] = v0, v1, v2
			d[v0]++
			d[v1]++
			d[v2]++
		}

		var ok bool
		order, ok = hypergraph.Peel(d, vertex0, vertex1, vertex2, hinges, 0)
		if ok {
			break
		}
	}

	// Assign cells in reverse peel order: the hinge of each edge is
	// touched by no edge peeled after it, so it can absorb whatever the
	// other two cells already hold.
	f.data = bitpack.NewVector(3*f.partSize, b.width)
	for k := len(order) - 1; k >= 0; k-- {
		e := order[k]
		val := b.values(records[e].Index)
		h := hinges[e]
		cell := val ^ f.data.Get(vertex0[e]) ^ f.data.Get(vertex1[e]) ^ f.data.Get(vertex2[e]) ^ f.data.Get(h)
		f.data.Set(h, cell)
	}

	return f, nil
}

func (f *Function) edge(t hashes.Triple) (int, int, int) {
	r := hashes.Remix(t, f.remixSeed)
	part := uint64(f.partSize)
	return int(r[0] % part),
		int(r[1]%part) + f.partSize,
		int(r[2]%part) + 2*f.partSize
}

// Size returns the number of keys the function was built over.
func (f *Function) Size() int64 {
	return f.n
}

// Width returns the cell width in bits.
func (f *Function) Width() int {
	return f.width
}

// Get hashes the bit string with the function's seed and retrieves its
// value. Arbitrary for keys outside the build set.
func (f *Function) Get(bs bits.BitString) uint64 {
	return f.GetByTriple(hashes.Jenkins(bs, f.seed))
}

// GetByTriple retrieves the value for an already-hashed key.
func (f *Function) GetByTriple(t hashes.Triple) uint64 {
	if f.partSize == 0 {
		return 0
	}
	v0, v1, v2 := f.edge(t)
	return f.data.Get(v0) ^ f.data.Get(v1) ^ f.data.Get(v2)
}

// NumBits returns the storage footprint of the cell table.
func (f *Function) NumBits() int64 {
	if f.data == nil {
		return 0
	}
	return f.data.NumBits()
}
