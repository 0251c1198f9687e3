// Package sstable implements the immutable on-disk sorted-table format
// (spec §3, §4.3): a bloom filter, a block index, a sequence of sorted
// blocks, and a footer, written in one pass and read back via
// bloom-then-block-index-then-block binary search.
//
// Grounded on mrsladoje-HundDB's lsm/sstable package for the overall
// writer/reader split and the "pack records into size-bounded blocks, index
// each block's first key and byte range" approach, with the exact byte
// layout replaced by spec §3's table (bloom | block index | blocks |
// footer, all little-endian lengths) rather than HundDB's own layout.
package sstable

import (
	"context"
	"encoding/binary"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"bureau/internal/bloom"
	"bureau/internal/record"
	"bureau/internal/storage"
)

// DefaultBlockTargetSize is the target number of payload bytes per block
// (spec §3: "~4 KiB").
const DefaultBlockTargetSize = 4096

// DefaultBloomFalsePositiveRate is the target bloom filter false-positive
// rate (spec §4.3: "~1%").
const DefaultBloomFalsePositiveRate = 0.01

const footerSize = 16 // blockIndexOffset(8) + bloomOffset(8)

// NewFileName returns a time-ordered unique sorted-table file name, using a
// UUIDv7 so lexicographic file-name order equals creation order (spec §3).
func NewFileName() string {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the system clock/random source is
		// unavailable; fall back to a random v4 rather than crash a flush.
		id = uuid.New()
	}
	return id.String() + ".sst"
}

type blockIndexEntry struct {
	firstKey string
	offset   uint64
	length   uint64
}

// Write packs entries (already sorted by key, per spec §3 invariant 4) into
// a new sorted table under name, using blockTargetSize and
// bloomFalsePositiveRate to size the block layout and bloom filter. It
// writes the file under a temporary name, fsyncs it, then atomically
// commits it under name (spec §4.3: "write bloom, block index, and blocks
// in one pass; write footer; fsync").
func Write(ctx context.Context, s storage.Storage, name string, entries []*record.Record, blockTargetSize int, bloomFalsePositiveRate float64) error {
	if blockTargetSize <= 0 {
		blockTargetSize = DefaultBlockTargetSize
	}
	if bloomFalsePositiveRate <= 0 {
		bloomFalsePositiveRate = DefaultBloomFalsePositiveRate
	}

	filter := bloom.New(len(entries), bloomFalsePositiveRate)
	blocksBuf, indexEntries := packBlocks(entries, blockTargetSize, filter)

	bloomBytes := filter.Serialize()
	bloomSection := make([]byte, 4+len(bloomBytes))
	binary.LittleEndian.PutUint32(bloomSection[0:4], uint32(len(bloomBytes)))
	copy(bloomSection[4:], bloomBytes)

	indexBytes := serializeBlockIndex(indexEntries, uint64(len(bloomSection)))

	total := make([]byte, 0, len(bloomSection)+len(indexBytes)+len(blocksBuf)+footerSize)
	total = append(total, bloomSection...)
	total = append(total, indexBytes...)
	total = append(total, blocksBuf...)

	footer := make([]byte, footerSize)
	binary.LittleEndian.PutUint64(footer[0:8], uint64(len(bloomSection)))
	binary.LittleEndian.PutUint64(footer[8:16], 0)
	total = append(total, footer...)

	tmpName := name + ".tmp"
	if err := s.Create(ctx, tmpName); err != nil {
		return errors.Wrap(err, "sstable: create temp file")
	}
	if err := s.Append(ctx, tmpName, total); err != nil {
		return errors.Wrap(err, "sstable: write temp file")
	}
	if err := s.Fsync(ctx, tmpName); err != nil {
		return errors.Wrap(err, "sstable: fsync temp file")
	}
	if err := s.Rename(ctx, tmpName, name); err != nil {
		return errors.Wrap(err, "sstable: commit")
	}
	return nil
}

// packBlocks serializes entries into size-bounded blocks, adding every key
// to filter and recording each block's first key and byte range.
func packBlocks(entries []*record.Record, blockTargetSize int, filter *bloom.Filter) ([]byte, []blockIndexEntry) {
	var blocksBuf []byte
	var indexEntries []blockIndexEntry

	var blockStart int
	var blockFirstKey string
	blockLen := 0

	flush := func() {
		if blockLen == 0 {
			return
		}
		indexEntries = append(indexEntries, blockIndexEntry{
			firstKey: blockFirstKey,
			offset:   uint64(blockStart),
			length:   uint64(blockLen),
		})
	}

	for _, e := range entries {
		filter.Add([]byte(e.Key))
		encoded := e.Serialize()
		if blockLen == 0 {
			blockStart = len(blocksBuf)
			blockFirstKey = e.Key
		} else if blockLen+len(encoded) > blockTargetSize {
			flush()
			blockStart = len(blocksBuf)
			blockFirstKey = e.Key
			blockLen = 0
		}
		blocksBuf = append(blocksBuf, encoded...)
		blockLen += len(encoded)
	}
	flush()

	return blocksBuf, indexEntries
}

// serializeBlockIndex encodes: count(4) then per-entry
// (firstKeyLen(1), firstKey, blockOffset(8), blockLength(8)), with
// blockOffset made absolute by adding blocksBaseOffset (the byte offset of
// the start of the blocks section within the file).
func serializeBlockIndex(entries []blockIndexEntry, indexSectionOffset uint64) []byte {
	// blocksBaseOffset = indexSectionOffset + len(this index section).
	// The index section's own length is deterministic from the entries
	// (no circular dependency on block byte offsets), so compute it first.
	indexLen := 4
	for _, e := range entries {
		indexLen += 1 + len(e.firstKey) + 8 + 8
	}
	blocksBase := indexSectionOffset + uint64(indexLen)

	out := make([]byte, indexLen)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(entries)))
	off := 4
	for _, e := range entries {
		out[off] = byte(len(e.firstKey))
		off++
		copy(out[off:], e.firstKey)
		off += len(e.firstKey)
		binary.LittleEndian.PutUint64(out[off:], blocksBase+e.offset)
		off += 8
		binary.LittleEndian.PutUint64(out[off:], e.length)
		off += 8
	}
	return out
}

// parsedIndexEntry is the in-memory, absolute-offset form of a block index
// record, used by the reader.
type parsedIndexEntry struct {
	firstKey string
	offset   int64
	length   int
}

func parseBlockIndex(data []byte) ([]parsedIndexEntry, error) {
	if len(data) < 4 {
		return nil, errors.New("sstable: truncated block index")
	}
	count := binary.LittleEndian.Uint32(data[0:4])
	entries := make([]parsedIndexEntry, 0, count)
	off := 4
	for i := uint32(0); i < count; i++ {
		if off >= len(data) {
			return nil, errors.New("sstable: truncated block index entry")
		}
		keyLen := int(data[off])
		off++
		if off+keyLen+16 > len(data) {
			return nil, errors.New("sstable: truncated block index entry")
		}
		key := string(data[off : off+keyLen])
		off += keyLen
		offset := binary.LittleEndian.Uint64(data[off:])
		off += 8
		length := binary.LittleEndian.Uint64(data[off:])
		off += 8
		entries = append(entries, parsedIndexEntry{firstKey: key, offset: int64(offset), length: int(length)})
	}
	return entries, nil
}

// parseBlock splits a block's raw bytes into its sorted records.
func parseBlock(data []byte) ([]*record.Record, error) {
	var out []*record.Record
	off := 0
	for off < len(data) {
		rec, n, err := record.Deserialize(data[off:])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
		off += n
	}
	return out, nil
}

// findBlock returns the index of the block whose key range may contain key:
// the last block whose first key is <= key. Returns -1 if key is before
// every block's first key.
func findBlock(entries []parsedIndexEntry, key string) int {
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].firstKey > key
	})
	return i - 1
}
