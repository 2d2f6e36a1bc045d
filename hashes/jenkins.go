// Package hashes derives hash triples from bit strings.
package hashes

import (
	"lcpmmph/bits"
)

// Triple is the three 64-bit hashes of one key under one seed.
type Triple [3]uint64

const golden = 0x9e3779b97f4a7c13

// Jenkins hashes a bit string with the given seed using Jenkins'
// 64-bit mixer over the packed words. The result is deterministic in
// (content, length, seed).
func Jenkins(bs bits.BitString, seed uint64) Triple {
	a, b, c := seed, seed, uint64(golden)

	words := bs.Words()
	for len(words) >= 3 {
		a += words[0]
		b += words[1]
		c += words[2]
		a, b, c = mix(a, b, c)
		words = words[3:]
	}

	c += uint64(bs.Size())
	switch len(words) {
	case 2:
		b += words[1]
		fallthrough
	case 1:
		a += words[0]
	}
	a, b, c = mix(a, b, c)

	return Triple{a, b, c}
}

// Remix derives a new triple from t and a secondary seed. Used to retry
// a hypergraph construction without disturbing the seed the triples were
// generated with; Remix(t, 0) == t.
func Remix(t Triple, seed uint64) Triple {
	if seed == 0 {
		return t
	}
	var out Triple
	for j := range t {
		x := t[j] ^ (seed + uint64(j)*golden)
		x ^= x >> 30
		x *= 0xbf58476d1ce4e5b9
		x ^= x >> 27
		x *= 0x94d049bb133111eb
		x ^= x >> 31
		out[j] = x
	}
	return out
}

func mix(a, b, c uint64) (uint64, uint64, uint64) {
	a -= b
	a -= c
	a ^= c >> 43
	b -= c
	b -= a
	b ^= a << 9
	c -= a
	c -= b
	c ^= b >> 8
	a -= b
	a -= c
	a ^= c >> 38
	b -= c
	b -= a
	b ^= a << 23
	c -= a
	c -= b
	c ^= b >> 5
	a -= b
	a -= c
	a ^= c >> 35
	b -= c
	b -= a
	b ^= a << 49
	c -= a
	c -= b
	c ^= b >> 11
	a -= b
	a -= c
	a ^= c >> 12
	b -= c
	b -= a
	b ^= a << 18
	c -= a
	c -= b
	c ^= b >> 22
	return a, b, c
}
