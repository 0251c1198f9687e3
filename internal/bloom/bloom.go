// Package bloom implements a bloom filter sized for a target false-positive
// rate, used by the sorted-table writer/reader (spec §4.3) to let a Get
// skip tables that provably do not contain a key.
//
// Grounded on mrsladoje-HundDB's structures/bloom_filter package: same
// m/k sizing formulas and the same seeded-hash-function array approach,
// with fixed seeds 0..k-1 so the filter is deterministic and a reader can
// rebuild the hash functions from k alone.
package bloom

import (
	"crypto/md5"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Filter is a probabilistic set-membership test: never a false negative,
// false positives bounded by the configured rate.
type Filter struct {
	m     uint32 // bit array size
	k     uint32 // number of hash functions
	seeds [][]byte
	bits  []byte
}

// CalculateM returns the bit array size for n expected elements at false
// positive rate p.
func CalculateM(n int, p float64) uint32 {
	if n <= 0 {
		n = 1
	}
	m := math.Ceil(-1 * float64(n) * math.Log(p) / math.Pow(math.Log(2), 2))
	if m < 8 {
		m = 8
	}
	return uint32(m)
}

// CalculateK returns the number of hash functions for bit array size m and n
// expected elements.
func CalculateK(n int, m uint32) uint32 {
	if n <= 0 {
		n = 1
	}
	k := math.Round((float64(m) / float64(n)) * math.Log(2))
	if k < 1 {
		k = 1
	}
	return uint32(k)
}

// New creates a filter sized for expectedElements entries at the given
// false-positive rate, with a fresh set of seeded hash functions.
func New(expectedElements int, falsePositiveRate float64) *Filter {
	m := CalculateM(expectedElements, falsePositiveRate)
	k := CalculateK(expectedElements, m)
	return &Filter{
		m:     m,
		k:     k,
		seeds: makeSeeds(k, 0),
		bits:  make([]byte, (m+7)/8),
	}
}

func makeSeeds(k uint32, base uint32) [][]byte {
	seeds := make([][]byte, k)
	for i := uint32(0); i < k; i++ {
		seed := make([]byte, 4)
		binary.LittleEndian.PutUint32(seed, base+i)
		seeds[i] = seed
	}
	return seeds
}

func (f *Filter) hashAt(item []byte, i uint32) uint32 {
	h := md5.New()
	h.Write(item)
	h.Write(f.seeds[i])
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint32(sum[:4]) % f.m
}

// Add inserts an item into the filter.
func (f *Filter) Add(item []byte) {
	for i := uint32(0); i < f.k; i++ {
		idx := f.hashAt(item, i)
		f.bits[idx/8] |= 1 << (idx % 8)
	}
}

// Contains reports whether item is possibly in the set. A false return is
// certain; a true return is probabilistic.
func (f *Filter) Contains(item []byte) bool {
	for i := uint32(0); i < f.k; i++ {
		idx := f.hashAt(item, i)
		if f.bits[idx/8]&(1<<(idx%8)) == 0 {
			return false
		}
	}
	return true
}

// Serialize encodes the filter as: m(4) | k(4) | bits(ceil(m/8)).
// Hash seeds are not persisted — they are deterministic (0..k-1) so the
// reader reconstructs them from k alone, keeping the on-disk format small.
func (f *Filter) Serialize() []byte {
	out := make([]byte, 8+len(f.bits))
	binary.LittleEndian.PutUint32(out[0:4], f.m)
	binary.LittleEndian.PutUint32(out[4:8], f.k)
	copy(out[8:], f.bits)
	return out
}

// Deserialize parses a filter previously produced by Serialize.
func Deserialize(data []byte) (*Filter, error) {
	if len(data) < 8 {
		return nil, errors.New("bloom: truncated filter")
	}
	m := binary.LittleEndian.Uint32(data[0:4])
	k := binary.LittleEndian.Uint32(data[4:8])
	want := int((m + 7) / 8)
	if len(data) < 8+want {
		return nil, errors.New("bloom: truncated bit array")
	}
	bits := append([]byte(nil), data[8:8+want]...)
	return &Filter{m: m, k: k, seeds: makeSeeds(k, 0), bits: bits}, nil
}
