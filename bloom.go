package bitbloom

import (
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

var (
	// ErrInvalidConfiguration is returned when a filter cannot be built from
	// the supplied or derived parameters.
	ErrInvalidConfiguration = errors.New("bitbloom: invalid configuration")

	// ErrIncompatible is returned when combining filters whose m, k or hash
	// differ.
	ErrIncompatible = errors.New("bitbloom: incompatible filters")
)

// Filter is a non-thread-safe bloom filter over a flat m-bit array.
//
// Each key is hashed once into two base hashes h1 and h2, and the k probe
// positions are derived by double hashing: (h1 + i*h2) mod m. Bits are only
// ever set by Add, so a key that was added always tests positive.
//
// Filter does no locking. Callers sharing a Filter between goroutines must
// make Add exclusive with every other call, for example with a sync.RWMutex.
// AtomicFilter is the lock-free alternative.
type Filter struct {
	bits  *bitset.BitSet
	m     uint64 // Number of bits
	k     uint32 // Number of hash functions
	hash  Hash
	count uint64 // Number of items added (approximate)
}

// Option configures a filter at construction.
type Option func(*options)

type options struct {
	hash Hash
}

// WithHash selects the base hash pair. The default is HashXXH3.
func WithHash(h Hash) Option {
	return func(o *options) {
		o.hash = h
	}
}

func buildOptions(opts []Option) (options, error) {
	o := options{hash: HashXXH3}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.hash.valid() {
		return o, fmt.Errorf("%w: unsupported hash %v", ErrInvalidConfiguration, o.hash)
	}
	return o, nil
}

// checkParams validates an explicit bit count and hash count.
func checkParams(m uint64, k uint32) error {
	if m == 0 {
		return fmt.Errorf("%w: bit array size must be positive", ErrInvalidConfiguration)
	}
	if m > MaxBits {
		return fmt.Errorf("%w: bit array size %d exceeds %d", ErrInvalidConfiguration, m, MaxBits)
	}
	if k == 0 {
		return fmt.Errorf("%w: hash count must be positive", ErrInvalidConfiguration)
	}
	return nil
}

// New creates a bloom filter sized for the expected number of items at the
// desired false positive rate. See OptimalParams for the sizing rules.
func New(expectedItems uint64, fpRate float64, opts ...Option) (*Filter, error) {
	m, k, err := OptimalParams(expectedItems, fpRate)
	if err != nil {
		return nil, err
	}
	return NewWithParams(m, k, opts...)
}

// NewWithParams creates a bloom filter with an m-bit array and k hash
// functions. Both must be positive.
func NewWithParams(m uint64, k uint32, opts ...Option) (*Filter, error) {
	if err := checkParams(m, k); err != nil {
		return nil, err
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	return &Filter{
		bits: bitset.New(uint(m)),
		m:    m,
		k:    k,
		hash: o.hash,
	}, nil
}

// Add adds data to the bloom filter.
func (f *Filter) Add(data []byte) {
	h1, h2 := hashPair(f.hash, data)
	f.addWithHash(h1, h2)
}

// AddString adds a string to the bloom filter.
func (f *Filter) AddString(s string) {
	h1, h2 := hashPairString(f.hash, s)
	f.addWithHash(h1, h2)
}

func (f *Filter) addWithHash(h1, h2 uint64) {
	for i := uint32(0); i < f.k; i++ {
		f.bits.Set(uint(location(f.hash, h1, h2, i, f.m)))
	}
	f.count++
}

// Test checks if data might be in the bloom filter.
// Returns true if the data might be present (with false positive probability),
// or false if the data is definitely not present.
func (f *Filter) Test(data []byte) bool {
	h1, h2 := hashPair(f.hash, data)
	return f.testWithHash(h1, h2)
}

// TestString checks if a string might be in the bloom filter.
func (f *Filter) TestString(s string) bool {
	h1, h2 := hashPairString(f.hash, s)
	return f.testWithHash(h1, h2)
}

func (f *Filter) testWithHash(h1, h2 uint64) bool {
	for i := uint32(0); i < f.k; i++ {
		if !f.bits.Test(uint(location(f.hash, h1, h2, i, f.m))) {
			return false
		}
	}
	return true
}

// TestAndAdd reports whether data might already have been present, then
// adds it.
func (f *Filter) TestAndAdd(data []byte) bool {
	h1, h2 := hashPair(f.hash, data)
	present := f.testWithHash(h1, h2)
	f.addWithHash(h1, h2)
	return present
}

// TestAndAddString is TestAndAdd for string keys.
func (f *Filter) TestAndAddString(s string) bool {
	h1, h2 := hashPairString(f.hash, s)
	present := f.testWithHash(h1, h2)
	f.addWithHash(h1, h2)
	return present
}

// Clear resets every bit and the item count.
func (f *Filter) Clear() {
	f.bits.ClearAll()
	f.count = 0
}

// Cap returns the size of the bit array in bits.
func (f *Filter) Cap() uint64 {
	return f.m
}

// K returns the number of hash functions used.
func (f *Filter) K() uint32 {
	return f.k
}

// Hash returns the base hash pair the filter was built with.
func (f *Filter) Hash() Hash {
	return f.hash
}

// Count returns the approximate number of items added to the filter.
func (f *Filter) Count() uint64 {
	return f.count
}

// SetBits returns the number of bits currently set.
func (f *Filter) SetBits() uint64 {
	return uint64(f.bits.Count())
}

// EstimatedFillRatio returns the proportion of bits that are set.
func (f *Filter) EstimatedFillRatio() float64 {
	return float64(f.SetBits()) / float64(f.m)
}

// EstimatedFalsePositiveRate estimates the current false positive rate
// based on the number of items added.
func (f *Filter) EstimatedFalsePositiveRate() float64 {
	return EstimateFalsePositiveRate(f.m, f.k, f.count)
}

// FalsePositiveRateAt estimates the false positive rate this filter would
// have after n insertions. It is informational only.
func (f *Filter) FalsePositiveRateAt(n uint64) float64 {
	return EstimateFalsePositiveRate(f.m, f.k, n)
}

// Union ORs the bits of other into f. Both filters must share m, k and hash.
// The item count becomes the sum of both counts, an upper bound.
func (f *Filter) Union(other *Filter) error {
	if !f.compatible(other) {
		return fmt.Errorf("%w: m=%d k=%d hash=%v vs m=%d k=%d hash=%v",
			ErrIncompatible, f.m, f.k, f.hash, other.m, other.k, other.hash)
	}
	f.bits.InPlaceUnion(other.bits)
	f.count += other.count
	return nil
}

// Equal reports whether both filters have the same parameters and bits.
// Item counts are not compared.
func (f *Filter) Equal(other *Filter) bool {
	return f.compatible(other) && f.bits.Equal(other.bits)
}

func (f *Filter) compatible(other *Filter) bool {
	return other != nil && f.m == other.m && f.k == other.k && f.hash == other.hash
}

// Copy returns an independent copy of the filter.
func (f *Filter) Copy() *Filter {
	return &Filter{
		bits:  f.bits.Clone(),
		m:     f.m,
		k:     f.k,
		hash:  f.hash,
		count: f.count,
	}
}
