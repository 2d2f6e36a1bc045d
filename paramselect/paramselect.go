// Package paramselect computes the sizing parameters used across the
// construction: cell widths, bucket geometry and the two-steps
// frequency threshold.
package paramselect

import (
	"fmt"
	"math"
	"math/bits"

	"lcpmmph/hypergraph"
)

// CeilLog2 returns ceil(log2(x)) for x >= 1, and 0 for x <= 1.
func CeilLog2(x uint64) int {
	if x <= 1 {
		return 0
	}
	return bits.Len64(x - 1)
}

// WidthForMaxValue returns the number of bits needed to store values in
// [0, maxInclusive].
func WidthForMaxValue(maxInclusive uint64) int {
	if maxInclusive == 0 {
		return 0
	}
	return bits.Len64(maxInclusive)
}

// BucketCount returns ceil(totalKeys / bucketSize).
func BucketCount(totalKeys, bucketSize int64) int64 {
	if totalKeys < 0 || bucketSize <= 0 {
		panic(fmt.Sprintf("invalid bucket geometry: %d keys, bucket size %d", totalKeys, bucketSize))
	}
	if totalKeys == 0 {
		return 0
	}
	return (totalKeys + bucketSize - 1) / bucketSize
}

// BucketSizeExponent returns log2 of the bucket size for n keys: the
// target size is t = ceil(1 + gamma*ln 2 + ln n - ln(1 + ln n)), rounded
// up to the next power of two.
func BucketSizeExponent(n int64) int {
	if n <= 0 {
		panic(fmt.Sprintf("bucket size exponent needs a positive key count, got %d", n))
	}
	ln := math.Log(float64(n))
	t := int64(math.Ceil(1 + hypergraph.Gamma*math.Ln2 + ln - math.Log(1+ln)))
	if t < 1 {
		t = 1
	}
	return CeilLog2(uint64(t))
}

// lambertW approximates the Lambert W function on the branch used by
// Threshold.
func lambertW(x float64) float64 {
	return -math.Log(-1/x) - math.Log(math.Log(-1/x))
}

// Threshold returns the two-steps split exponent s(p, r) for a most
// frequent value of probability p and a remainder width of r bits:
//
//	s(p, r) = log2( W(1 / (ln 2 * (r + gamma) * (p - 1))) / ln(1 - p) )
func Threshold(p float64, r int) float64 {
	return math.Log2(lambertW(1/(math.Ln2*(float64(r)+hypergraph.Gamma)*(p-1))) / math.Log(1-p))
}
