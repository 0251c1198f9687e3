package sstable

import (
	"context"
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"

	"bureau/internal/bloom"
	"bureau/internal/record"
	"bureau/internal/storage"
)

// Reader opens a sorted table for lookups (spec §4.3). The bloom filter and
// block index are loaded eagerly at Open (both are small relative to the
// ~4 KiB table target); individual blocks are loaded lazily, one disk read
// per Lookup in the common case.
type Reader struct {
	name   string
	s      storage.Storage
	filter *bloom.Filter
	index  []parsedIndexEntry
}

// Open reads a sorted table's footer, bloom filter, and block index.
func Open(ctx context.Context, s storage.Storage, name string) (*Reader, error) {
	size, err := s.Size(ctx, name)
	if err != nil {
		return nil, errors.Wrap(err, "sstable: stat")
	}
	if size < footerSize {
		return nil, errors.New("sstable: file too small to contain a footer")
	}
	footer, err := s.ReadAt(ctx, name, size-footerSize, footerSize)
	if err != nil {
		return nil, errors.Wrap(err, "sstable: read footer")
	}
	blockIndexOffset := int64(binary.LittleEndian.Uint64(footer[0:8]))
	bloomOffset := int64(binary.LittleEndian.Uint64(footer[8:16]))

	bloomLenBytes, err := s.ReadAt(ctx, name, bloomOffset, 4)
	if err != nil {
		return nil, errors.Wrap(err, "sstable: read bloom length")
	}
	bloomLen := int(binary.LittleEndian.Uint32(bloomLenBytes))
	bloomBytes, err := s.ReadAt(ctx, name, bloomOffset+4, bloomLen)
	if err != nil {
		return nil, errors.Wrap(err, "sstable: read bloom filter")
	}
	filter, err := bloom.Deserialize(bloomBytes)
	if err != nil {
		return nil, errors.Wrap(err, "sstable: decode bloom filter")
	}

	// The index section's exact length isn't known up front (it depends on
	// how many blocks there are and how long their first keys are), so
	// guess a size that comfortably covers the common case (one ~4 KiB
	// table's worth of blocks indexes to a few hundred bytes) and only
	// fall back to reading the full remainder - which would also pull in
	// the blocks section - if the guess was too small.
	maxAvail := size - footerSize - blockIndexOffset
	guess := int64(4096)
	if guess > maxAvail {
		guess = maxAvail
	}
	indexBytes, err := s.ReadAt(ctx, name, blockIndexOffset, int(guess))
	if err != nil {
		return nil, errors.Wrap(err, "sstable: read block index")
	}
	index, err := parseBlockIndex(indexBytes)
	if err != nil && guess < maxAvail {
		indexBytes, err = s.ReadAt(ctx, name, blockIndexOffset, int(maxAvail))
		if err != nil {
			return nil, errors.Wrap(err, "sstable: read block index")
		}
		index, err = parseBlockIndex(indexBytes)
	}
	if err != nil {
		return nil, errors.Wrap(err, "sstable: decode block index")
	}

	return &Reader{name: name, s: s, filter: filter, index: index}, nil
}

// Name returns the sorted table's file name.
func (r *Reader) Name() string { return r.name }

// BlockCount returns the number of blocks indexed (an upper bound useful for
// compaction size estimates); it is not the number of entries.
func (r *Reader) BlockCount() int { return len(r.index) }

// Lookup returns the value for key, or (nil, false) if key is not present
// in this table (spec §4.3: bloom negative, or binary search miss).
func (r *Reader) Lookup(ctx context.Context, key string) ([]byte, bool, error) {
	if !r.filter.Contains([]byte(key)) {
		return nil, false, nil
	}
	bi := findBlock(r.index, key)
	if bi < 0 {
		return nil, false, nil
	}
	entry := r.index[bi]
	blockBytes, err := r.s.ReadAt(ctx, r.name, entry.offset, entry.length)
	if err != nil {
		return nil, false, errors.Wrap(err, "sstable: read block")
	}
	records, err := parseBlock(blockBytes)
	if err != nil {
		return nil, false, errors.Wrap(err, "sstable: decode block")
	}
	i := sort.Search(len(records), func(i int) bool { return records[i].Key >= key })
	if i < len(records) && records[i].Key == key {
		return records[i].Value, true, nil
	}
	return nil, false, nil
}

// AllEntries reads every block and returns the table's full sorted content,
// used by compaction's k-way merge. Tables at the spec's target size make
// this a small, bounded read.
func (r *Reader) AllEntries(ctx context.Context) ([]*record.Record, error) {
	var out []*record.Record
	for _, entry := range r.index {
		blockBytes, err := r.s.ReadAt(ctx, r.name, entry.offset, entry.length)
		if err != nil {
			return nil, errors.Wrap(err, "sstable: read block")
		}
		records, err := parseBlock(blockBytes)
		if err != nil {
			return nil, errors.Wrap(err, "sstable: decode block")
		}
		out = append(out, records...)
	}
	return out, nil
}
