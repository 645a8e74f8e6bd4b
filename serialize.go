package bitbloom

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/bits-and-blooms/bitset"
)

// Serialization constants and errors.
const (
	// serializeVersion is the current serialization format version.
	serializeVersion byte = 1

	// headerSize is the size of the serialization header in bytes.
	// Version (1) + Hash (1) + K (4) + M (8) + Count (8) = 22 bytes
	headerSize = 22

	// legacyHeaderSize is the little-endian uint32 bit count that starts a
	// legacy stream.
	legacyHeaderSize = 4
)

var (
	// ErrInvalidData is returned when the serialized data is invalid or corrupted.
	ErrInvalidData = errors.New("bitbloom: invalid serialized data")

	// ErrUnsupportedVersion is returned when the serialization version is not supported.
	ErrUnsupportedVersion = errors.New("bitbloom: unsupported serialization version")

	// ErrUnsupportedHash is returned when serialized data names an unknown hash.
	ErrUnsupportedHash = errors.New("bitbloom: unsupported hash in serialized data")

	// ErrLegacyHash is returned when writing the legacy format from a filter
	// that does not use HashLegacy. Legacy readers always assume it.
	ErrLegacyHash = errors.New("bitbloom: legacy format requires HashLegacy")
)

// MarshalBinary serializes the bloom filter to a byte slice.
// The serialized format is:
//   - Version (1 byte): serialization format version
//   - Hash (1 byte): base hash pair, see Hash
//   - K (4 bytes): number of hash functions (little-endian uint32)
//   - M (8 bytes): number of bits (little-endian uint64)
//   - Count (8 bytes): number of items added (little-endian uint64)
//   - Words (ceil(M/64) * 8 bytes): the bit array (little-endian uint64s)
func (f *Filter) MarshalBinary() ([]byte, error) {
	words := f.bits.Bytes()
	buf := make([]byte, headerSize+len(words)*8)

	putHeader(buf, f.hash, f.k, f.m, f.count)

	offset := headerSize
	for _, word := range words {
		binary.LittleEndian.PutUint64(buf[offset:offset+8], word)
		offset += 8
	}

	return buf, nil
}

func putHeader(buf []byte, h Hash, k uint32, m uint64, count uint64) {
	buf[0] = serializeVersion
	buf[1] = byte(h)
	binary.LittleEndian.PutUint32(buf[2:6], k)
	binary.LittleEndian.PutUint64(buf[6:14], m)
	binary.LittleEndian.PutUint64(buf[14:22], count)
}

type header struct {
	hash  Hash
	k     uint32
	m     uint64
	count uint64
}

// parseHeader validates the fixed-size header at the start of data.
func parseHeader(data []byte) (header, error) {
	if len(data) < headerSize {
		return header{}, fmt.Errorf("%w: data too short (got %d bytes, need at least %d)", ErrInvalidData, len(data), headerSize)
	}

	if version := data[0]; version != serializeVersion {
		return header{}, fmt.Errorf("%w: got version %d, expected %d", ErrUnsupportedVersion, version, serializeVersion)
	}

	h := header{
		hash:  Hash(data[1]),
		k:     binary.LittleEndian.Uint32(data[2:6]),
		m:     binary.LittleEndian.Uint64(data[6:14]),
		count: binary.LittleEndian.Uint64(data[14:22]),
	}

	if !h.hash.valid() {
		return header{}, fmt.Errorf("%w: hash id %d", ErrUnsupportedHash, data[1])
	}
	if h.k == 0 {
		return header{}, fmt.Errorf("%w: k cannot be zero", ErrInvalidData)
	}
	// Bounding m keeps the word count and the int conversions safe.
	if h.m == 0 {
		return header{}, fmt.Errorf("%w: m cannot be zero", ErrInvalidData)
	}
	if h.m > MaxBits {
		return header{}, fmt.Errorf("%w: m too large (%d)", ErrInvalidData, h.m)
	}
	return h, nil
}

// decodeWords reads little-endian words from data and rejects bits set
// beyond m.
func decodeWords(data []byte, m uint64) ([]uint64, error) {
	words := make([]uint64, len(data)/8)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(data[i*8 : i*8+8])
	}
	if tail := m % 64; tail != 0 && words[len(words)-1]>>tail != 0 {
		return nil, fmt.Errorf("%w: bits set beyond m=%d", ErrInvalidData, m)
	}
	return words, nil
}

// UnmarshalBinary deserializes a bloom filter from a byte slice.
// Returns an error if the data is invalid or corrupted.
func UnmarshalBinary(data []byte) (*Filter, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	expectedLen := uint64(headerSize) + wordsFor(h.m)*8
	if uint64(len(data)) != expectedLen {
		return nil, fmt.Errorf("%w: data length mismatch (got %d bytes, expected %d)", ErrInvalidData, len(data), expectedLen)
	}

	words, err := decodeWords(data[headerSize:], h.m)
	if err != nil {
		return nil, err
	}

	return &Filter{
		bits:  bitset.FromWithLength(uint(h.m), words),
		m:     h.m,
		k:     h.k,
		hash:  h.hash,
		count: h.count,
	}, nil
}

// WriteTo writes the MarshalBinary encoding of f to w.
func (f *Filter) WriteTo(w io.Writer) (int64, error) {
	buf, err := f.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(buf)
	return int64(n), err
}

// ReadFrom replaces f with a filter decoded from r, reading exactly one
// MarshalBinary encoding. On error f is left unchanged.
func (f *Filter) ReadFrom(r io.Reader) (int64, error) {
	hdr := make([]byte, headerSize)
	n, err := io.ReadFull(r, hdr)
	read := int64(n)
	if err != nil {
		return read, fmt.Errorf("%w: reading header: %w", ErrInvalidData, err)
	}

	h, err := parseHeader(hdr)
	if err != nil {
		return read, err
	}

	// The header is untrusted, so let the buffer grow with what actually
	// arrives instead of allocating m bits up front.
	size := int64(wordsFor(h.m) * 8)
	body, err := io.ReadAll(io.LimitReader(r, size))
	read += int64(len(body))
	if err != nil {
		return read, fmt.Errorf("%w: reading bits: %w", ErrInvalidData, err)
	}
	if int64(len(body)) != size {
		return read, fmt.Errorf("%w: reading bits: %w", ErrInvalidData, io.ErrUnexpectedEOF)
	}

	words, err := decodeWords(body, h.m)
	if err != nil {
		return read, err
	}

	*f = Filter{
		bits:  bitset.FromWithLength(uint(h.m), words),
		m:     h.m,
		k:     h.k,
		hash:  h.hash,
		count: h.count,
	}
	return read, nil
}

// WriteLegacy writes the packed legacy stream: the bit count as a
// little-endian uint32, then the bits packed eight to a byte with bit j of
// byte i holding bit 8i+j. k and the item count are not stored.
func (f *Filter) WriteLegacy(w io.Writer) (int64, error) {
	if f.hash != HashLegacy {
		return 0, fmt.Errorf("%w: filter uses %v", ErrLegacyHash, f.hash)
	}
	if f.m > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d bits do not fit the legacy header", ErrInvalidData, f.m)
	}

	words := f.bits.Bytes()
	buf := make([]byte, legacyHeaderSize+(f.m+7)/8)
	binary.LittleEndian.PutUint32(buf[:legacyHeaderSize], uint32(f.m))

	packed := buf[legacyHeaderSize:]
	for i := range packed {
		packed[i] = byte(words[i/8] >> (8 * (i % 8)))
	}

	n, err := w.Write(buf)
	return int64(n), err
}

// ReadLegacy decodes a packed legacy stream. The stream does not record k,
// so it is derived from the bit count and maxItems, the item count the
// filter was sized for: k = round(ln2 * m / maxItems). The returned filter
// uses HashLegacy and reports a Count of zero.
func ReadLegacy(r io.Reader, maxItems uint64) (*Filter, error) {
	if maxItems == 0 {
		return nil, fmt.Errorf("%w: max items must be positive", ErrInvalidConfiguration)
	}

	var hdr [legacyHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: reading legacy header: %w", ErrInvalidData, err)
	}
	m := uint64(binary.LittleEndian.Uint32(hdr[:]))
	if m == 0 {
		return nil, fmt.Errorf("%w: m cannot be zero", ErrInvalidData)
	}

	k := legacyHashRounds(m, maxItems)
	if k == 0 {
		return nil, fmt.Errorf("%w: %d bits for %d items derives k=0", ErrInvalidConfiguration, m, maxItems)
	}

	size := int64((m + 7) / 8)
	packed, err := io.ReadAll(io.LimitReader(r, size))
	if err != nil {
		return nil, fmt.Errorf("%w: reading legacy bits: %w", ErrInvalidData, err)
	}
	if int64(len(packed)) != size {
		return nil, fmt.Errorf("%w: reading legacy bits: %w", ErrInvalidData, io.ErrUnexpectedEOF)
	}

	words := make([]uint64, wordsFor(m))
	for i, b := range packed {
		words[i/8] |= uint64(b) << (8 * (i % 8))
	}
	// Readers only consume the bits below m; anything past it is padding.
	if tail := m % 64; tail != 0 {
		words[len(words)-1] &= (uint64(1) << tail) - 1
	}

	return &Filter{
		bits: bitset.FromWithLength(uint(m), words),
		m:    m,
		k:    k,
		hash: HashLegacy,
	}, nil
}
