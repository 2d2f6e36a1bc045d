package mwhc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"lcpmmph/bitpack"
	lcperrors "lcpmmph/errors"
)

// The serialization format (all values little-endian):
//
// Function:
// - uint64: n
// - uint32: cell width
// - uint64: partSize (one third of the vertex count)
// - uint64: store seed
// - uint64: remix seed
// - uint32: word count of the cell table, followed by that many uint64
//
// TwoSteps:
// - uint64: n
// - uint32: full value width
// - uint64: RankMean as IEEE 754 bits
// - Function: rank function
// - uint8: 1 if a remainder function follows, else 0
// - Function: remainder (only when the flag is 1)
// - uint32: rank table length, followed by that many uint64

func appendFunction(buf []byte, f *Function) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, uint64(f.n))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(f.width))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(f.partSize))
	buf = binary.LittleEndian.AppendUint64(buf, f.seed)
	buf = binary.LittleEndian.AppendUint64(buf, f.remixSeed)
	words := f.data.Words()
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(words)))
	for _, w := range words {
		buf = binary.LittleEndian.AppendUint64(buf, w)
	}
	return buf
}

func readFunction(r *bytes.Reader, f *Function) error {
	var n, partSize, seed, remixSeed uint64
	var width, numWords uint32
	if err := readAll(r, &n, &width, &partSize, &seed, &remixSeed, &numWords); err != nil {
		return err
	}
	words := make([]uint64, numWords)
	for i := range words {
		if err := binary.Read(r, binary.LittleEndian, &words[i]); err != nil {
			return fmt.Errorf("%w: cell table truncated", lcperrors.ErrCorruptedData)
		}
	}
	if expected := (3*int(partSize)*int(width) + 63) / 64; int(numWords) != expected {
		return fmt.Errorf("%w: cell table has %d words, expected %d", lcperrors.ErrCorruptedData, numWords, expected)
	}
	f.n = int64(n)
	f.width = int(width)
	f.partSize = int(partSize)
	f.seed = seed
	f.remixSeed = remixSeed
	f.data = bitpack.FromWords(words, 3*f.partSize, f.width)
	return nil
}

func readAll(r *bytes.Reader, fields ...any) error {
	for _, field := range fields {
		if err := binary.Read(r, binary.LittleEndian, field); err != nil {
			return fmt.Errorf("%w: header truncated", lcperrors.ErrCorruptedData)
		}
	}
	return nil
}

func (f *Function) Serialize() ([]byte, error) {
	return appendFunction(nil, f), nil
}

func Deserialize(data []byte, target *Function) error {
	r := bytes.NewReader(data)
	if err := readFunction(r, target); err != nil {
		return err
	}
	if r.Len() != 0 {
		return fmt.Errorf("%w: trailing data", lcperrors.ErrCorruptedData)
	}
	return nil
}

func (ts *TwoSteps) Serialize() ([]byte, error) {
	buf := binary.LittleEndian.AppendUint64(nil, uint64(ts.n))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(ts.Width))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(ts.RankMean))
	buf = appendFunction(buf, ts.rankFn)
	if ts.remainder != nil {
		buf = append(buf, 1)
		buf = appendFunction(buf, ts.remainder)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ts.remap)))
	for _, v := range ts.remap {
		buf = binary.LittleEndian.AppendUint64(buf, v)
	}
	return buf, nil
}

func DeserializeTwoSteps(data []byte, target *TwoSteps) error {
	r := bytes.NewReader(data)
	if err := readTwoSteps(r, target); err != nil {
		return err
	}
	if r.Len() != 0 {
		return fmt.Errorf("%w: trailing data", lcperrors.ErrCorruptedData)
	}
	return nil
}

func readTwoSteps(r *bytes.Reader, ts *TwoSteps) error {
	var n, rankMeanBits uint64
	var width uint32
	if err := readAll(r, &n, &width, &rankMeanBits); err != nil {
		return err
	}
	ts.n = int64(n)
	ts.Width = int(width)
	ts.RankMean = math.Float64frombits(rankMeanBits)

	ts.rankFn = new(Function)
	if err := readFunction(r, ts.rankFn); err != nil {
		return err
	}

	flag, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("%w: remainder flag missing", lcperrors.ErrCorruptedData)
	}
	ts.remainder = nil
	if flag == 1 {
		ts.remainder = new(Function)
		if err := readFunction(r, ts.remainder); err != nil {
			return err
		}
	}

	var remapLen uint32
	if err := readAll(r, &remapLen); err != nil {
		return err
	}
	ts.remap = make([]uint64, remapLen)
	for i := range ts.remap {
		if err := binary.Read(r, binary.LittleEndian, &ts.remap[i]); err != nil {
			return fmt.Errorf("%w: rank table truncated", lcperrors.ErrCorruptedData)
		}
	}
	return nil
}

// AppendTo and ReadFrom let composite structures embed a function in
// their own streams.

func (f *Function) AppendTo(buf []byte) []byte {
	return appendFunction(buf, f)
}

func (f *Function) ReadFrom(r *bytes.Reader) error {
	return readFunction(r, f)
}

func (ts *TwoSteps) AppendTo(buf []byte) []byte {
	out, _ := ts.Serialize()
	return append(buf, out...)
}

func (ts *TwoSteps) ReadFrom(r *bytes.Reader) error {
	return readTwoSteps(r, ts)
}
