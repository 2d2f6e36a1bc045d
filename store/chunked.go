// Package store streams key hash triples into chunks for out-of-core
// construction.
//
// Keys are never materialized: each added bit string is hashed with the
// store's current seed into a triple, tagged with its insertion rank and
// routed to a chunk by the high bits of the first hash. Construction
// code iterates chunks in order and sees records in a deterministic
// order that is independent of whether the store spilled to disk.
package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"

	"github.com/sirupsen/logrus"

	"lcpmmph/bits"
	lcperrors "lcpmmph/errors"
	"lcpmmph/hashes"
)

const (
	chunkShift = 6
	numChunks  = 1 << chunkShift

	// Records per chunk buffered in memory before spilling, when a temp
	// directory is configured.
	spillThreshold = 1 << 14

	// Reseed attempts before CheckAndRetry gives up.
	maxRetries = 16

	recordBytes = 32
)

// Record is one hashed key: its triple under the store seed and its
// insertion rank.
type Record struct {
	Triple hashes.Triple
	Index  int64
}

// ChunkedHashStore accumulates hash records, optionally spilling each
// chunk to a temp file. It is owned by a single builder; methods must
// not be called concurrently.
type ChunkedHashStore struct {
	seed    uint64
	n       int64
	tempDir string
	rng     *rand.Rand
	logger  *logrus.Logger

	buffers [][]Record
	files   []*os.File
	writers []*bufio.Writer
	spilled []int64
	closed  bool
}

// New creates an empty store. tempDir selects the spill directory; the
// empty string keeps everything in memory. rng supplies reseed values
// and must not be nil.
func New(tempDir string, rng *rand.Rand) *ChunkedHashStore {
	return &ChunkedHashStore{
		tempDir: tempDir,
		rng:     rng,
		buffers: make([][]Record, numChunks),
		files:   make([]*os.File, numChunks),
		writers: make([]*bufio.Writer, numChunks),
		spilled: make([]int64, numChunks),
		seed:    rng.Uint64(),
	}
}

// SetLogger attaches an optional diagnostics logger. The store is silent
// without one.
func (s *ChunkedHashStore) SetLogger(l *logrus.Logger) {
	s.logger = l
}

// Seed returns the seed all current records were hashed with. It is
// stable once CheckAndRetry has succeeded.
func (s *ChunkedHashStore) Seed() uint64 {
	return s.seed
}

// Size returns the number of records added since the last reset.
func (s *ChunkedHashStore) Size() int64 {
	return s.n
}

// Reset discards every record and installs a new seed.
func (s *ChunkedHashStore) Reset(seed uint64) error {
	if s.closed {
		return lcperrors.ErrStoreClosed
	}
	s.seed = seed
	s.n = 0
	for c := 0; c < numChunks; c++ {
		s.buffers[c] = s.buffers[c][:0]
		s.spilled[c] = 0
		if s.files[c] != nil {
			s.writers[c].Reset(s.files[c])
			if _, err := s.files[c].Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("rewinding spill file: %w", err)
			}
			if err := s.files[c].Truncate(0); err != nil {
				return fmt.Errorf("truncating spill file: %w", err)
			}
		}
	}
	return nil
}

// Add hashes bs with the current seed and appends the record.
func (s *ChunkedHashStore) Add(bs bits.BitString) error {
	if s.closed {
		return lcperrors.ErrStoreClosed
	}
	t := hashes.Jenkins(bs, s.seed)
	rec := Record{Triple: t, Index: s.n}
	s.n++

	c := int(t[0] >> (64 - chunkShift))
	s.buffers[c] = append(s.buffers[c], rec)
	if s.tempDir != "" && len(s.buffers[c]) >= spillThreshold {
		return s.flush(c)
	}
	return nil
}

func (s *ChunkedHashStore) flush(c int) error {
	if s.files[c] == nil {
		f, err := os.CreateTemp(s.tempDir, "lcpmmph-store-*")
		if err != nil {
			return fmt.Errorf("creating spill file: %w", err)
		}
		s.files[c] = f
		s.writers[c] = bufio.NewWriter(f)
	}
	var buf [recordBytes]byte
	for _, rec := range s.buffers[c] {
		binary.LittleEndian.PutUint64(buf[0:], rec.Triple[0])
		binary.LittleEndian.PutUint64(buf[8:], rec.Triple[1])
		binary.LittleEndian.PutUint64(buf[16:], rec.Triple[2])
		binary.LittleEndian.PutUint64(buf[24:], uint64(rec.Index))
		if _, err := s.writers[c].Write(buf[:]); err != nil {
			return fmt.Errorf("writing spill file: %w", err)
		}
	}
	s.spilled[c] += int64(len(s.buffers[c]))
	s.buffers[c] = s.buffers[c][:0]
	return nil
}

// chunk materializes chunk c, sorted by triple then insertion rank.
func (s *ChunkedHashStore) chunk(c int) ([]Record, error) {
	recs := make([]Record, 0, s.spilled[c]+int64(len(s.buffers[c])))

	if s.spilled[c] > 0 {
		if err := s.writers[c].Flush(); err != nil {
			return nil, fmt.Errorf("flushing spill file: %w", err)
		}
		if _, err := s.files[c].Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewinding spill file: %w", err)
		}
		r := bufio.NewReader(s.files[c])
		var buf [recordBytes]byte
		for i := int64(0); i < s.spilled[c]; i++ {
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return nil, fmt.Errorf("reading spill file: %w", err)
			}
			recs = append(recs, Record{
				Triple: hashes.Triple{
					binary.LittleEndian.Uint64(buf[0:]),
					binary.LittleEndian.Uint64(buf[8:]),
					binary.LittleEndian.Uint64(buf[16:]),
				},
				Index: int64(binary.LittleEndian.Uint64(buf[24:])),
			})
		}
		if _, err := s.files[c].Seek(0, io.SeekEnd); err != nil {
			return nil, fmt.Errorf("repositioning spill file: %w", err)
		}
	}
	recs = append(recs, s.buffers[c]...)

	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		for k := 0; k < 3; k++ {
			if a.Triple[k] != b.Triple[k] {
				return a.Triple[k] < b.Triple[k]
			}
		}
		return a.Index < b.Index
	})
	return recs, nil
}

// ForEachChunk calls f once per chunk, in chunk order, with records
// sorted by triple. Chunks may be empty.
func (s *ChunkedHashStore) ForEachChunk(f func(records []Record) error) error {
	if s.closed {
		return lcperrors.ErrStoreClosed
	}
	for c := 0; c < numChunks; c++ {
		recs, err := s.chunk(c)
		if err != nil {
			return err
		}
		if err := f(recs); err != nil {
			return err
		}
	}
	return nil
}

// Check scans for colliding triples under the current seed.
func (s *ChunkedHashStore) Check() error {
	return s.ForEachChunk(func(recs []Record) error {
		for i := 1; i < len(recs); i++ {
			if recs[i].Triple == recs[i-1].Triple {
				return lcperrors.ErrHashCollision
			}
		}
		return nil
	})
}

// CheckAndRetry verifies that all triples are pairwise distinct,
// reseeding and re-ingesting from keys until they are. After it returns
// nil the seed is stable and every function built on this store shares
// it. keys must replay the exact sequence of bit strings originally
// added; a nil keys turns a collision into an immediate error.
func (s *ChunkedHashStore) CheckAndRetry(keys func(yield func(bits.BitString) bool)) error {
	for attempt := 0; ; attempt++ {
		err := s.Check()
		if err == nil {
			return nil
		}
		if keys == nil {
			return err
		}
		if attempt+1 >= maxRetries {
			return fmt.Errorf("%w: %d store reseeds", lcperrors.ErrConstructionFailed, attempt+1)
		}
		if s.logger != nil {
			s.logger.WithField("attempt", attempt+1).Info("hash collision in store, reseeding")
		}
		if err := s.Reset(s.rng.Uint64()); err != nil {
			return err
		}
		var addErr error
		keys(func(bs bits.BitString) bool {
			addErr = s.Add(bs)
			return addErr == nil
		})
		if addErr != nil {
			return addErr
		}
	}
}

// Close releases every spill file. The store is unusable afterwards;
// Close is idempotent.
func (s *ChunkedHashStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var first error
	for c := 0; c < numChunks; c++ {
		if s.files[c] == nil {
			continue
		}
		name := s.files[c].Name()
		if err := s.files[c].Close(); err != nil && first == nil {
			first = err
		}
		if err := os.Remove(name); err != nil && first == nil {
			first = err
		}
		s.files[c] = nil
		s.writers[c] = nil
	}
	return first
}
