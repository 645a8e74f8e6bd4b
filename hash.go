package bitbloom

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
)

// Hash selects the pair of base hashes a filter derives its k probe
// positions from.
type Hash uint8

const (
	// HashXXH3 takes both base hashes from the two halves of a 128-bit xxh3
	// digest. It is the default.
	HashXXH3 Hash = iota
	// HashMurmur3 takes both base hashes from a 128-bit murmur3 digest.
	HashMurmur3
	// HashXXHash uses an unseeded and a seeded 64-bit xxhash digest.
	HashXXHash
	// HashLegacy uses 32-bit djb2 and sdbm and the probe sequence of the
	// jsbloom family of filters. Filters built with it are bit-compatible
	// with the packed legacy stream format (see ReadLegacy).
	HashLegacy
)

// xxhashSeed seeds the second xxhash digest for HashXXHash.
const xxhashSeed = 0x9E3779B97F4A7C15

func (h Hash) String() string {
	switch h {
	case HashXXH3:
		return "xxh3"
	case HashMurmur3:
		return "murmur3"
	case HashXXHash:
		return "xxhash"
	case HashLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("Hash(%d)", uint8(h))
	}
}

// ParseHash returns the Hash named by s, as printed by Hash.String.
func ParseHash(s string) (Hash, error) {
	for h := HashXXH3; h <= HashLegacy; h++ {
		if h.String() == s {
			return h, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown hash %q", ErrInvalidConfiguration, s)
}

func (h Hash) valid() bool {
	return h <= HashLegacy
}

// hashPair computes the two base hashes of data.
func hashPair(h Hash, data []byte) (h1, h2 uint64) {
	switch h {
	case HashMurmur3:
		h1, h2 = murmur3.Sum128(data)
	case HashXXHash:
		h1 = xxhash.Sum64(data)
		d := xxhash.NewWithSeed(xxhashSeed)
		_, _ = d.Write(data)
		h2 = d.Sum64()
	case HashLegacy:
		return uint64(djb2(data)), uint64(sdbm(data))
	default:
		sum := xxh3.Hash128(data)
		h1, h2 = sum.Lo, sum.Hi
	}
	return h1, nonZero(h2)
}

// hashPairString computes the two base hashes of s. The xxh3 and xxhash
// paths avoid converting s to []byte.
func hashPairString(h Hash, s string) (h1, h2 uint64) {
	switch h {
	case HashXXH3:
		sum := xxh3.HashString128(s)
		return sum.Lo, nonZero(sum.Hi)
	case HashXXHash:
		h1 = xxhash.Sum64String(s)
		d := xxhash.NewWithSeed(xxhashSeed)
		_, _ = d.WriteString(s)
		return h1, nonZero(d.Sum64())
	default:
		return hashPair(h, []byte(s))
	}
}

// nonZero keeps a zero second hash from collapsing all k probes onto h1.
func nonZero(h2 uint64) uint64 {
	if h2 == 0 {
		return 1
	}
	return h2
}

// location returns the bit index of probe i for the base hashes h1, h2 in an
// m-bit array.
func location(h Hash, h1, h2 uint64, i uint32, m uint64) uint64 {
	if h == HashLegacy {
		return uint64(legacyProbe(uint32(h1), uint32(h2), i)) % m
	}
	return (h1 + uint64(i)*h2) % m
}

// djb2 hashes data as a sequence of signed chars in 32-bit arithmetic.
func djb2(data []byte) uint32 {
	var h uint32 = 5381
	for _, c := range data {
		h = (h << 5) + h + uint32(int32(int8(c)))
	}
	return h
}

// sdbm hashes data as a sequence of signed chars in 32-bit arithmetic.
func sdbm(data []byte) uint32 {
	var h uint32
	for _, c := range data {
		h = uint32(int32(int8(c))) + (h << 6) + (h << 16) - h
	}
	return h
}

// legacyProbe is the jsbloom probe sequence. The final term is an XOR with 2,
// not a square, and must stay that way for compatibility.
func legacyProbe(h1, h2, i uint32) uint32 {
	switch i {
	case 0:
		return h1
	case 1:
		return h2
	default:
		return h1 + i*h2 + (i ^ 2)
	}
}
