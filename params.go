package bitbloom

import (
	"fmt"
	"math"
)

const (
	// ln2 is the natural logarithm of 2.
	ln2 = 0.6931471805599453
	// ln2Squared is ln(2)^2.
	ln2Squared = 0.4804530139182014

	// MaxBits is the largest bit array a filter may hold (128 TiB of bits).
	MaxBits = uint64(1) << 50
)

// OptimalParams calculates the bit array size m and hash count k for a filter
// holding expectedItems at the target false positive rate:
//
//	m = ceil(-(n * ln(p)) / ln(2)^2)
//	k = round((m / n) * ln(2))
//
// expectedItems must be positive and fpRate must lie in (0, 1). Inputs outside
// those ranges, or ones that derive m or k as zero, return
// ErrInvalidConfiguration.
func OptimalParams(expectedItems uint64, fpRate float64) (m uint64, k uint32, err error) {
	if expectedItems == 0 {
		return 0, 0, fmt.Errorf("%w: expected items must be positive", ErrInvalidConfiguration)
	}
	// Written this way so NaN is rejected too.
	if !(fpRate > 0 && fpRate < 1) {
		return 0, 0, fmt.Errorf("%w: false positive rate %v outside (0, 1)", ErrInvalidConfiguration, fpRate)
	}

	n := float64(expectedItems)
	mFloat := math.Ceil(-(n * math.Log(fpRate)) / ln2Squared)
	if mFloat > float64(MaxBits) {
		return 0, 0, fmt.Errorf("%w: %d items at rate %v needs more than %d bits", ErrInvalidConfiguration, expectedItems, fpRate, MaxBits)
	}
	m = uint64(mFloat)

	kFloat := math.Round(float64(m) / n * ln2)
	if kFloat > math.MaxUint32 {
		return 0, 0, fmt.Errorf("%w: derived hash count %v too large", ErrInvalidConfiguration, kFloat)
	}
	k = uint32(kFloat)

	if m == 0 || k == 0 {
		return 0, 0, fmt.Errorf("%w: derived m=%d k=%d for %d items at rate %v", ErrInvalidConfiguration, m, k, expectedItems, fpRate)
	}
	return m, k, nil
}

// BitsPerItem returns the optimal number of bits per item for fpRate.
func BitsPerItem(fpRate float64) float64 {
	return -math.Log(fpRate) / ln2Squared
}

// EstimateFalsePositiveRate estimates the false positive rate of an m-bit
// filter using k hash functions after itemsAdded insertions.
// Formula: (1 - e^(-kn/m))^k
func EstimateFalsePositiveRate(m uint64, k uint32, itemsAdded uint64) float64 {
	if m == 0 || itemsAdded == 0 {
		return 0
	}

	mf := float64(m)
	n := float64(itemsAdded)
	kf := float64(k)

	return math.Pow(1-math.Exp(-kf*n/mf), kf)
}

// legacyHashRounds derives k from a bit count and the maximum item count the
// filter was built for, as done by readers of the packed legacy stream.
func legacyHashRounds(m uint64, maxItems uint64) uint32 {
	return uint32(math.Round(ln2 * float64(m) / float64(maxItems)))
}
