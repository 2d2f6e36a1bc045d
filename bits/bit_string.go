package bits

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// BitString is an immutable sequence of bits packed into uint64 words.
//
// Bit i lives in word i/64 at position 63-(i%64), so comparing words as
// unsigned integers compares the bit sequences MSB-first. Unused bits of
// the last word are always zero; every operation preserves that.
type BitString struct {
	words    []uint64
	sizeBits int
}

func Empty() BitString {
	return BitString{}
}

// New wraps words as a bit string of sizeBits bits. The tail bits of the
// last word beyond sizeBits are cleared.
func New(words []uint64, sizeBits int) BitString {
	numWords := (sizeBits + 63) / 64
	if sizeBits < 0 || len(words) < numWords {
		panic("words too short for the specified size")
	}
	bs := BitString{words: words[:numWords], sizeBits: sizeBits}
	bs.clearTail()
	return bs
}

// NewFromBytes interprets data MSB-first: bit 0 is the high bit of data[0].
func NewFromBytes(data []byte) BitString {
	if len(data) == 0 {
		return BitString{}
	}
	numWords := (len(data) + 7) / 8
	words := make([]uint64, numWords)
	for i, b := range data {
		words[i/8] |= uint64(b) << (56 - 8*(i%8))
	}
	return BitString{words: words, sizeBits: 8 * len(data)}
}

// NewFromUint64 is the 64-bit fixed-width encoding of v. Numeric order on
// v coincides with lexicographic order on the resulting strings.
func NewFromUint64(v uint64) BitString {
	return BitString{words: []uint64{v}, sizeBits: 64}
}

func NewFromBinary(text string) BitString {
	if len(text) == 0 {
		return BitString{}
	}
	words := make([]uint64, (len(text)+63)/64)
	for i, r := range text {
		if r != '0' && r != '1' {
			panic(fmt.Sprintf("invalid binary string %q", text))
		}
		if r == '1' {
			words[i/64] |= uint64(1) << (63 - i%64)
		}
	}
	return BitString{words: words, sizeBits: len(text)}
}

func (bs BitString) Size() int {
	return bs.sizeBits
}

func (bs BitString) IsEmpty() bool {
	return bs.sizeBits == 0
}

func (bs BitString) At(index int) bool {
	if index < 0 || index >= bs.sizeBits {
		panic("bit index out of bounds")
	}
	return (bs.words[index/64]>>(63-index%64))&1 != 0
}

// Words returns the backing words. The slice must not be modified.
func (bs BitString) Words() []uint64 {
	return bs.words
}

// Data returns the bits as bytes, MSB-first, zero-padded to a byte boundary.
func (bs BitString) Data() []byte {
	numBytes := (bs.sizeBits + 7) / 8
	result := make([]byte, numBytes)
	for i := 0; i < numBytes; i++ {
		result[i] = byte(bs.words[i/8] >> (56 - 8*(i%8)))
	}
	return result
}

func (bs BitString) Equal(other BitString) bool {
	if bs.sizeBits != other.sizeBits {
		return false
	}
	for i, w := range bs.words {
		if w != other.words[i] {
			return false
		}
	}
	return true
}

// GetLCPLength returns the length of the longest common prefix of bs and
// other, in bits.
func (bs BitString) GetLCPLength(other BitString) int {
	minBits := bs.sizeBits
	if other.sizeBits < minBits {
		minBits = other.sizeBits
	}
	minWords := (minBits + 63) / 64
	for i := 0; i < minWords; i++ {
		if x := bs.words[i] ^ other.words[i]; x != 0 {
			lcp := 64*i + bits.LeadingZeros64(x)
			if lcp < minBits {
				return lcp
			}
			return minBits
		}
	}
	return minBits
}

func (bs BitString) HasPrefix(prefix BitString) bool {
	if prefix.sizeBits > bs.sizeBits {
		return false
	}
	return bs.GetLCPLength(prefix) == prefix.sizeBits
}

// Prefix returns the first size bits of bs. The result shares no mutable
// state with bs.
func (bs BitString) Prefix(size int) BitString {
	if size < 0 || size > bs.sizeBits {
		panic("prefix size exceeds bit string size")
	}
	if size == 0 {
		return BitString{}
	}
	if size == bs.sizeBits {
		return bs
	}
	numWords := (size + 63) / 64
	words := make([]uint64, numWords)
	copy(words, bs.words[:numWords])
	out := BitString{words: words, sizeBits: size}
	out.clearTail()
	return out
}

// Compare orders bit strings lexicographically, MSB-first; a proper
// prefix sorts before its extensions.
func (bs BitString) Compare(other BitString) int {
	minBits := bs.sizeBits
	if other.sizeBits < minBits {
		minBits = other.sizeBits
	}
	minWords := (minBits + 63) / 64
	for i := 0; i < minWords; i++ {
		a, b := bs.words[i], other.words[i]
		if a != b {
			firstDiff := 64*i + bits.LeadingZeros64(a^b)
			if firstDiff >= minBits {
				break
			}
			if a > b {
				return 1
			}
			return -1
		}
	}
	switch {
	case bs.sizeBits < other.sizeBits:
		return -1
	case bs.sizeBits > other.sizeBits:
		return 1
	}
	return 0
}

// Hash is a 64-bit content hash of the bit string, including its length.
func (bs BitString) Hash() uint64 {
	buf := make([]byte, 8*len(bs.words)+8)
	for i, w := range bs.words {
		binary.LittleEndian.PutUint64(buf[8*i:], w)
	}
	binary.LittleEndian.PutUint64(buf[8*len(bs.words):], uint64(bs.sizeBits))
	return xxh3.Hash(buf)
}

func (bs BitString) String() string {
	if bs.sizeBits == 0 {
		return "<empty>"
	}
	var sb strings.Builder
	sb.Grow(bs.sizeBits + 16)
	for i := 0; i < bs.sizeBits; i++ {
		if bs.At(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	sb.WriteString(" (")
	sb.WriteString(strconv.Itoa(bs.sizeBits))
	sb.WriteString(" bits)")
	return sb.String()
}

func (bs BitString) clearTail() {
	if bs.sizeBits%64 != 0 && len(bs.words) > 0 {
		bs.words[len(bs.words)-1] &= ^uint64(0) << (64 - bs.sizeBits%64)
	}
}
