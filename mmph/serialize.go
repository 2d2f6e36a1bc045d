package mmph

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"

	"lcpmmph/bitpack"
	lcperrors "lcpmmph/errors"
	"lcpmmph/mwhc"
	"lcpmmph/transform"
)

// Serialized layout (little-endian): a fixed header
// (magic, version, n, log2BucketSize, seed, signatureMask, sentinel,
// transform tag) followed, when n > 0, by the three sub-functions in
// the order offsets, lcpLengths, lcp2Bucket and the optional signature
// words.

const (
	serialMagic   = uint32(0x4D50434C) // "LCPM"
	serialVersion = byte(1)
)

func (m *LcpMonotone[T]) Serialize() ([]byte, error) {
	buf := binary.LittleEndian.AppendUint32(nil, serialMagic)
	buf = append(buf, serialVersion)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.n))
	buf = append(buf, byte(m.log2BucketSize))
	buf = binary.LittleEndian.AppendUint64(buf, m.seed)
	buf = binary.LittleEndian.AppendUint64(buf, m.signatureMask)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.defRetValue))
	buf = append(buf, byte(m.transform.Tag()))

	if m.n == 0 {
		return buf, nil
	}

	buf = m.offsets.AppendTo(buf)
	buf = m.lcpLengths.AppendTo(buf)
	buf = m.lcp2Bucket.AppendTo(buf)

	if m.signatures != nil {
		buf = append(buf, 1)
		words := m.signatures.Words()
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(words)))
		for _, w := range words {
			buf = binary.LittleEndian.AppendUint64(buf, w)
		}
	} else {
		buf = append(buf, 0)
	}
	return buf, nil
}

// Deserialize reconstructs a function serialized with Serialize. The
// type parameter must match the transform the function was built with.
func Deserialize[T any](data []byte) (*LcpMonotone[T], error) {
	r := bytes.NewReader(data)

	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("%w: header truncated", lcperrors.ErrCorruptedData)
	}
	if magic != serialMagic {
		return nil, lcperrors.ErrInvalidMagic
	}
	version, err := r.ReadByte()
	if err != nil || version != serialVersion {
		return nil, lcperrors.ErrInvalidVersion
	}

	var n, seed, sigMask, defRet uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: header truncated", lcperrors.ErrCorruptedData)
	}
	log2BucketSize, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: header truncated", lcperrors.ErrCorruptedData)
	}
	for _, field := range []*uint64{&seed, &sigMask, &defRet} {
		if err := binary.Read(r, binary.LittleEndian, field); err != nil {
			return nil, fmt.Errorf("%w: header truncated", lcperrors.ErrCorruptedData)
		}
	}
	tag, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: header truncated", lcperrors.ErrCorruptedData)
	}
	strategy, err := transform.ForTag[T](transform.Tag(tag))
	if err != nil {
		return nil, err
	}

	m := &LcpMonotone[T]{
		n:              int64(n),
		log2BucketSize: int(log2BucketSize),
		seed:           seed,
		signatureMask:  sigMask,
		defRetValue:    int64(defRet),
		transform:      strategy,
	}
	if m.n == 0 {
		if r.Len() != 0 {
			return nil, fmt.Errorf("%w: trailing data", lcperrors.ErrCorruptedData)
		}
		return m, nil
	}

	m.offsets = new(mwhc.Function)
	if err := m.offsets.ReadFrom(r); err != nil {
		return nil, err
	}
	m.lcpLengths = new(mwhc.TwoSteps)
	if err := m.lcpLengths.ReadFrom(r); err != nil {
		return nil, err
	}
	m.lcp2Bucket = new(mwhc.Function)
	if err := m.lcp2Bucket.ReadFrom(r); err != nil {
		return nil, err
	}

	hasSignatures, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: signature flag missing", lcperrors.ErrCorruptedData)
	}
	if hasSignatures == 1 {
		var numWords uint32
		if err := binary.Read(r, binary.LittleEndian, &numWords); err != nil {
			return nil, fmt.Errorf("%w: signature table truncated", lcperrors.ErrCorruptedData)
		}
		words := make([]uint64, numWords)
		for i := range words {
			if err := binary.Read(r, binary.LittleEndian, &words[i]); err != nil {
				return nil, fmt.Errorf("%w: signature table truncated", lcperrors.ErrCorruptedData)
			}
		}
		width := bits.OnesCount64(sigMask)
		if expected := (int(n)*width + 63) / 64; int(numWords) != expected {
			return nil, fmt.Errorf("%w: signature table has %d words, expected %d",
				lcperrors.ErrCorruptedData, numWords, expected)
		}
		m.signatures = bitpack.FromWords(words, int(n), width)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: trailing data", lcperrors.ErrCorruptedData)
	}
	return m, nil
}
