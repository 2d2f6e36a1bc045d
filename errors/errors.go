// Package errors defines the exported error sentinels for the library.
//
// Both the top-level builders and the internal construction packages
// import from here, so errors.Is checks work across package boundaries.
package errors

import "errors"

// Input validation errors, detected during the key scan.
var (
	ErrDuplicateKey  = errors.New("lcpmmph: two keys produce identical bit vectors")
	ErrNotPrefixFree = errors.New("lcpmmph: one key's bit vector is a prefix of another's")
	ErrNotSorted     = errors.New("lcpmmph: keys are not in ascending lexicographic order")
)

// Construction errors.
var (
	// ErrConstructionFailed means the reseed budget was exhausted: the
	// hypergraph never peeled or hash collisions persisted. Usually a
	// symptom of an input/parameter mismatch rather than bad luck.
	ErrConstructionFailed = errors.New("lcpmmph: construction failed after exhausting reseed attempts")

	// ErrHashCollision reports colliding hash triples under the current
	// store seed. Recoverable: reseed and re-ingest.
	ErrHashCollision = errors.New("lcpmmph: hash triple collision in store")

	ErrBuilderUsed = errors.New("lcpmmph: builder has already been used")
	ErrStoreClosed = errors.New("lcpmmph: chunked hash store is closed")
)

// Serialization errors.
var (
	ErrInvalidMagic   = errors.New("lcpmmph: invalid magic number")
	ErrInvalidVersion = errors.New("lcpmmph: unsupported format version")
	ErrCorruptedData  = errors.New("lcpmmph: serialized data is corrupted")
)
