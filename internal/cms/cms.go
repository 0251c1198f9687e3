// Package cms implements a count-min sketch: an approximate frequency
// counter used by the cache (spec §4.7) to score keys for eviction.
//
// Grounded on mrsladoje-HundDB's structures/count_min_sketch package (m/k
// sizing from epsilon/delta, per-row seeded hash, min-across-rows estimate).
// Per spec §9's documented design note, this sketch uses a single hash
// function with k distinct seeds rather than k independent hash families —
// a known weak point carried over deliberately, not fixed here.
package cms

import (
	"crypto/md5"
	"encoding/binary"
	"math"
)

// Sketch is a 2-D counter table queried by taking the minimum across rows.
type Sketch struct {
	width uint32
	depth uint32
	seeds [][]byte
	table [][]uint32
}

// CalculateWidth returns the column count for additive error epsilon.
func CalculateWidth(epsilon float64) uint32 {
	return uint32(math.Ceil(math.E / epsilon))
}

// CalculateDepth returns the row count for confidence 1-delta.
func CalculateDepth(delta float64) uint32 {
	return uint32(math.Ceil(math.Log(1 / delta)))
}

// New creates a sketch sized from the desired error bound (epsilon) and
// confidence (delta), the conventional CMS parameterization.
func New(epsilon, delta float64) *Sketch {
	width := CalculateWidth(epsilon)
	depth := CalculateDepth(delta)
	if width == 0 {
		width = 1
	}
	if depth == 0 {
		depth = 1
	}
	table := make([][]uint32, depth)
	for i := range table {
		table[i] = make([]uint32, width)
	}
	seeds := make([][]byte, depth)
	for i := uint32(0); i < depth; i++ {
		seed := make([]byte, 4)
		binary.LittleEndian.PutUint32(seed, i)
		seeds[i] = seed
	}
	return &Sketch{width: width, depth: depth, seeds: seeds, table: table}
}

func (s *Sketch) column(item []byte, row uint32) uint32 {
	h := md5.New()
	h.Write(item)
	h.Write(s.seeds[row])
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint32(sum[:4]) % s.width
}

// Add increments the estimated count of item, saturating at MaxUint32
// rather than wrapping (spec §9: use saturating arithmetic for long-lived
// keys).
func (s *Sketch) Add(item []byte) {
	for row := uint32(0); row < s.depth; row++ {
		col := s.column(item, row)
		if s.table[row][col] < math.MaxUint32 {
			s.table[row][col]++
		}
	}
}

// Count estimates the frequency of item, taking the minimum across rows.
func (s *Sketch) Count(item []byte) uint32 {
	min := uint32(math.MaxUint32)
	for row := uint32(0); row < s.depth; row++ {
		col := s.column(item, row)
		if s.table[row][col] < min {
			min = s.table[row][col]
		}
	}
	return min
}
