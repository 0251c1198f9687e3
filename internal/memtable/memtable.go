// Package memtable implements the in-memory write buffer (spec §3, §4.1):
// an ordered mapping from key to value, kept sorted by key, with a tracked
// encoded size.
//
// Grounded on mrsladoje-HundDB's lsm/memtable package (itself backed by a
// skip list under a mutex), generalized here into a single-owner structure
// with no internal locking: spec §4.1 makes the Engine the sole owner of
// the active memtable, and spec §9 calls for moving a sealed memtable by
// value between Engine and Dispatcher rather than cloning it, so there is
// never more than one goroutine touching a given MemTable at a time.
package memtable

import (
	"sort"

	"bureau/internal/record"
)

// MemTable is a sorted in-RAM key/value buffer.
type MemTable struct {
	keys    []string
	values  map[string][]byte
	size    int // tracked encoded size, per spec §3
	sealed  bool
}

// New creates an empty memtable.
func New() *MemTable {
	return &MemTable{values: make(map[string][]byte)}
}

// ProjectedSize returns the encoded size the memtable would have if (key,
// value) were inserted, without mutating it. The Engine uses this to decide
// whether to seal before inserting (spec §4.1 step 2).
func (m *MemTable) ProjectedSize(key string, value []byte) int {
	projected := record.EncodedSize(key, value)
	if old, ok := m.values[key]; ok {
		return m.size - record.EncodedSize(key, old) + projected
	}
	return m.size + projected
}

// Insert performs a sorted insertion of key/value, replacing any existing
// value for key. Panics if called on a sealed memtable: a seal is a
// single-writer invariant enforced by the Engine, never by concurrent
// callers.
func (m *MemTable) Insert(key string, value []byte) {
	if m.sealed {
		panic("memtable: insert on sealed memtable")
	}
	if old, ok := m.values[key]; ok {
		m.size += record.EncodedSize(key, value) - record.EncodedSize(key, old)
		m.values[key] = value
		return
	}
	i := sort.SearchStrings(m.keys, key)
	m.keys = append(m.keys, "")
	copy(m.keys[i+1:], m.keys[i:])
	m.keys[i] = key
	m.values[key] = value
	m.size += record.EncodedSize(key, value)
}

// Get looks up key, returning (value, true) on a hit.
func (m *MemTable) Get(key string) ([]byte, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Size returns the current tracked encoded size.
func (m *MemTable) Size() int { return m.size }

// Len returns the number of distinct keys.
func (m *MemTable) Len() int { return len(m.keys) }

// Seal marks the memtable immutable. Once sealed, it is never mutated again
// (spec §3) and is eligible to move into the shadow pool.
func (m *MemTable) Seal() { m.sealed = true }

// Sealed reports whether Seal has been called.
func (m *MemTable) Sealed() bool { return m.sealed }

// Entries returns the memtable's key/value pairs in ascending key order,
// suitable for handing to the sorted-table writer.
func (m *MemTable) Entries() []*record.Record {
	out := make([]*record.Record, len(m.keys))
	for i, k := range m.keys {
		out[i] = record.New(k, m.values[k])
	}
	return out
}
