package bitbloom

import (
	"math/bits"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
)

// AtomicFilter is a thread-safe bloom filter using atomic operations.
// It probes exactly the same bit positions as a Filter with the same m, k
// and hash, but stores the bit array as atomic.Uint64 words so that Add and
// Test may run concurrently without locks.
type AtomicFilter struct {
	words []atomic.Uint64 // ceil(m/64) words, bit i lives in words[i/64]
	m     uint64          // Number of bits
	k     uint32          // Number of hash functions
	hash  Hash
	count atomic.Uint64 // Number of items added (approximate)
}

// NewAtomic creates a thread-safe bloom filter sized for the expected number
// of items at the desired false positive rate.
func NewAtomic(expectedItems uint64, fpRate float64, opts ...Option) (*AtomicFilter, error) {
	m, k, err := OptimalParams(expectedItems, fpRate)
	if err != nil {
		return nil, err
	}
	return NewAtomicWithParams(m, k, opts...)
}

// NewAtomicWithParams creates a thread-safe bloom filter with an m-bit array
// and k hash functions.
func NewAtomicWithParams(m uint64, k uint32, opts ...Option) (*AtomicFilter, error) {
	if err := checkParams(m, k); err != nil {
		return nil, err
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	return &AtomicFilter{
		words: make([]atomic.Uint64, wordsFor(m)),
		m:     m,
		k:     k,
		hash:  o.hash,
	}, nil
}

// wordsFor returns the number of 64-bit words backing m bits.
func wordsFor(m uint64) uint64 {
	return (m + 63) / 64
}

// Add adds data to the bloom filter atomically.
func (f *AtomicFilter) Add(data []byte) {
	h1, h2 := hashPair(f.hash, data)
	f.addWithHash(h1, h2)
}

// AddString adds a string to the bloom filter atomically.
func (f *AtomicFilter) AddString(s string) {
	h1, h2 := hashPairString(f.hash, s)
	f.addWithHash(h1, h2)
}

func (f *AtomicFilter) addWithHash(h1, h2 uint64) {
	for i := uint32(0); i < f.k; i++ {
		pos := location(f.hash, h1, h2, i, f.m)
		f.words[pos/64].Or(uint64(1) << (pos % 64))
	}
	f.count.Add(1)
}

// Test checks if data might be in the bloom filter.
// This operation is safe to call concurrently with Add.
func (f *AtomicFilter) Test(data []byte) bool {
	h1, h2 := hashPair(f.hash, data)
	return f.testWithHash(h1, h2)
}

// TestString checks if a string might be in the bloom filter.
func (f *AtomicFilter) TestString(s string) bool {
	h1, h2 := hashPairString(f.hash, s)
	return f.testWithHash(h1, h2)
}

func (f *AtomicFilter) testWithHash(h1, h2 uint64) bool {
	for i := uint32(0); i < f.k; i++ {
		pos := location(f.hash, h1, h2, i, f.m)
		if f.words[pos/64].Load()&(uint64(1)<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// TestAndAdd reports whether data might already have been present, then
// adds it. The test and the add are not one atomic step: two goroutines
// adding the same new key may both see false.
func (f *AtomicFilter) TestAndAdd(data []byte) bool {
	h1, h2 := hashPair(f.hash, data)
	present := f.testWithHash(h1, h2)
	f.addWithHash(h1, h2)
	return present
}

// TestAndAddString is TestAndAdd for string keys.
func (f *AtomicFilter) TestAndAddString(s string) bool {
	h1, h2 := hashPairString(f.hash, s)
	present := f.testWithHash(h1, h2)
	f.addWithHash(h1, h2)
	return present
}

// Clear resets every bit and the item count. It must not race with Add.
func (f *AtomicFilter) Clear() {
	for i := range f.words {
		f.words[i].Store(0)
	}
	f.count.Store(0)
}

// Cap returns the size of the bit array in bits.
func (f *AtomicFilter) Cap() uint64 {
	return f.m
}

// K returns the number of hash functions used.
func (f *AtomicFilter) K() uint32 {
	return f.k
}

// Hash returns the base hash pair the filter was built with.
func (f *AtomicFilter) Hash() Hash {
	return f.hash
}

// Count returns the approximate number of items added to the filter.
func (f *AtomicFilter) Count() uint64 {
	return f.count.Load()
}

// SetBits returns the number of bits currently set.
func (f *AtomicFilter) SetBits() uint64 {
	var n uint64
	for i := range f.words {
		n += uint64(bits.OnesCount64(f.words[i].Load()))
	}
	return n
}

// EstimatedFillRatio returns the proportion of bits that are set.
func (f *AtomicFilter) EstimatedFillRatio() float64 {
	return float64(f.SetBits()) / float64(f.m)
}

// EstimatedFalsePositiveRate estimates the current false positive rate.
func (f *AtomicFilter) EstimatedFalsePositiveRate() float64 {
	return EstimateFalsePositiveRate(f.m, f.k, f.count.Load())
}

// Snapshot copies the current bits into a new Filter, which can then be
// serialized. Adds racing with Snapshot may or may not be included.
func (f *AtomicFilter) Snapshot() *Filter {
	words := make([]uint64, len(f.words))
	for i := range f.words {
		words[i] = f.words[i].Load()
	}
	return &Filter{
		bits:  bitset.FromWithLength(uint(f.m), words),
		m:     f.m,
		k:     f.k,
		hash:  f.hash,
		count: f.count.Load(),
	}
}
