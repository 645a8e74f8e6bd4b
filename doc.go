// Package bitbloom provides a classic bloom filter over a flat bit array.
//
// A bloom filter is a space-efficient probabilistic data structure that tests
// whether an element is a member of a set. False positive matches are possible,
// but false negatives are not – if the filter says an element is not present,
// it definitely is not. If it says an element might be present, it could be a
// false positive.
//
// # Architecture
//
// A filter is an m-bit array and k hash functions. Adding a key sets k bits,
// testing a key checks the same k bits. Bits are never cleared by Add or
// Test, which is what rules out false negatives.
//
// Double hashing: instead of k independent hash functions, bitbloom hashes a
// key once into two 64-bit base hashes h1 and h2 and derives probe i as
//
//	(h1 + i*h2) mod m
//
// as described in "Less Hashing, Same Performance". The base pair comes from
// a 128-bit xxh3 digest by default; [WithHash] selects murmur3, xxhash, or
// [HashLegacy], the djb2/sdbm pair used by filters written in the packed
// legacy stream format.
//
// # Implementations
//
// [Filter] is the plain filter. It has no synchronization and is the one to
// use from a single goroutine or behind a caller-held lock.
//
// [AtomicFilter] stores the bit array as atomic words and sets bits with
// [sync/atomic.Uint64.Or] (Go 1.23+). Add and Test may be called
// concurrently. [AtomicFilter.Snapshot] copies it into a [Filter] for
// serialization.
//
// # Choosing Parameters
//
// Use [New] or [NewAtomic] with your expected number of items and desired
// false positive rate:
//
//	// Filter for 1 million items with 1% false positive rate
//	f, err := bitbloom.New(1_000_000, 0.01)
//
// The size and hash count are derived as
//
//	m = ceil(-n * ln(p) / ln(2)²)
//	k = round((m / n) * ln(2))
//
// [NewWithParams] and [NewAtomicWithParams] take m and k directly. Every
// constructor returns [ErrInvalidConfiguration] when n is zero, p lies outside
// (0, 1), or m or k would be zero.
//
// # False Positive Rate
//
// Once the filter holds its intended number of items it answers with roughly
// the target false positive rate. Adding more items raises the rate. Use
// [Filter.EstimatedFalsePositiveRate] to monitor it, or
// [Filter.FalsePositiveRateAt] to ask about a hypothetical item count.
//
// # Serialization
//
// [Filter.MarshalBinary] and [UnmarshalBinary] use a versioned little-endian
// format carrying m, k, the hash and the item count. [Filter.WriteLegacy] and
// [ReadLegacy] speak the older packed format, which stores only the bit count
// and the bits.
//
// # Thread Safety
//
// [Filter] is NOT thread-safe. Calls to Add must not overlap with any other
// call on the same filter; Test calls may overlap each other. A
// [sync.RWMutex] held for writing around Add and for reading around Test is
// enough.
//
// [AtomicFilter] is safe for concurrent Add and Test. Its TestAndAdd is not
// a single atomic operation.
//
// # References
//
//   - Less Hashing, Same Performance: https://www.eecs.harvard.edu/~michaelm/postscripts/rsa2008.pdf
//   - jsbloom: https://github.com/cry/jsbloom
package bitbloom
