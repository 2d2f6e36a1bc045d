// Package transform turns domain keys into prefix-free bit strings.
//
// A strategy must be deterministic and idempotent: the same key always
// yields the same bit string, and handing the builder keys in ascending
// domain order must yield bit strings in ascending lexicographic order.
// The prefix-free text strategies append a NUL terminator in the target
// encoding, which is why input text must not contain NUL itself. The ISO
// and UTF-32 images follow Go's string order; the UTF-16 image does not
// when characters above U+FFFF are compared with characters in
// U+E000..U+FFFF, because surrogate units sort below those.
package transform

import (
	"fmt"
	"unicode/utf16"

	"lcpmmph/bits"
	lcperrors "lcpmmph/errors"
)

// Tag identifies a strategy in serialized functions.
type Tag byte

const (
	TagIdentity Tag = iota
	TagFixed64
	TagISO
	TagUTF16
	TagUTF32
)

// Strategy converts keys of one domain type into bit strings.
type Strategy[T any] interface {
	// ToBitString encodes the key.
	ToBitString(key T) bits.BitString
	// BitLength returns the encoded length without materializing it.
	BitLength(key T) int
	// NumBits is the strategy's own storage overhead.
	NumBits() int64
	// Tag identifies the strategy in serialized form.
	Tag() Tag
}

// Identity passes bit strings through unchanged. The caller is
// responsible for the set being prefix-free.
func Identity() Strategy[bits.BitString] {
	return identity{}
}

type identity struct{}

func (identity) ToBitString(key bits.BitString) bits.BitString { return key }
func (identity) BitLength(key bits.BitString) int              { return key.Size() }
func (identity) NumBits() int64                                { return 0 }
func (identity) Tag() Tag                                      { return TagIdentity }

// Fixed64 encodes uint64 keys as 64 MSB-first bits. Fixed width makes
// the image prefix-free, and numeric order matches lexicographic order.
func Fixed64() Strategy[uint64] {
	return fixed64{}
}

type fixed64 struct{}

func (fixed64) ToBitString(key uint64) bits.BitString { return bits.NewFromUint64(key) }
func (fixed64) BitLength(uint64) int                  { return 64 }
func (fixed64) NumBits() int64                        { return 0 }
func (fixed64) Tag() Tag                              { return TagFixed64 }

// PrefixFreeISO encodes each byte of the string as eight bits and
// appends a NUL byte.
func PrefixFreeISO() Strategy[string] {
	return iso{}
}

type iso struct{}

func (iso) ToBitString(key string) bits.BitString {
	buf := make([]byte, 0, len(key)+1)
	buf = append(buf, key...)
	buf = append(buf, 0)
	return bits.NewFromBytes(buf)
}

func (iso) BitLength(key string) int { return 8 * (len(key) + 1) }
func (iso) NumBits() int64           { return 0 }
func (iso) Tag() Tag                 { return TagISO }

// PrefixFreeUTF16 encodes the string as big-endian UTF-16 code units
// and appends a zero unit.
func PrefixFreeUTF16() Strategy[string] {
	return utf16Strategy{}
}

type utf16Strategy struct{}

func (utf16Strategy) ToBitString(key string) bits.BitString {
	units := utf16.Encode([]rune(key))
	buf := make([]byte, 0, 2*len(units)+2)
	for _, u := range units {
		buf = append(buf, byte(u>>8), byte(u))
	}
	buf = append(buf, 0, 0)
	return bits.NewFromBytes(buf)
}

func (utf16Strategy) BitLength(key string) int {
	return 16 * (len(utf16.Encode([]rune(key))) + 1)
}
func (utf16Strategy) NumBits() int64 { return 0 }
func (utf16Strategy) Tag() Tag       { return TagUTF16 }

// PrefixFreeUTF32 encodes the string as big-endian code points and
// appends a zero point. Handles surrogate pairs by construction.
func PrefixFreeUTF32() Strategy[string] {
	return utf32Strategy{}
}

type utf32Strategy struct{}

func (utf32Strategy) ToBitString(key string) bits.BitString {
	runes := []rune(key)
	buf := make([]byte, 0, 4*len(runes)+4)
	for _, r := range runes {
		buf = append(buf, byte(r>>24), byte(r>>16), byte(r>>8), byte(r))
	}
	buf = append(buf, 0, 0, 0, 0)
	return bits.NewFromBytes(buf)
}

func (utf32Strategy) BitLength(key string) int {
	return 32 * (len([]rune(key)) + 1)
}
func (utf32Strategy) NumBits() int64 { return 0 }
func (utf32Strategy) Tag() Tag       { return TagUTF32 }

// ForTag reconstructs the strategy a serialized function was built
// with. The domain type must match the tag.
func ForTag[T any](tag Tag) (Strategy[T], error) {
	var s any
	switch tag {
	case TagIdentity:
		s = Identity()
	case TagFixed64:
		s = Fixed64()
	case TagISO:
		s = PrefixFreeISO()
	case TagUTF16:
		s = PrefixFreeUTF16()
	case TagUTF32:
		s = PrefixFreeUTF32()
	default:
		return nil, fmt.Errorf("%w: unknown transform tag %d", lcperrors.ErrCorruptedData, tag)
	}
	typed, ok := s.(Strategy[T])
	if !ok {
		return nil, fmt.Errorf("%w: transform tag %d does not apply to the requested key type",
			lcperrors.ErrCorruptedData, tag)
	}
	return typed, nil
}
