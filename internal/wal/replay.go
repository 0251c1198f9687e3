package wal

import (
	"context"
	"encoding/binary"
	"hash/crc32"
	"sort"

	"github.com/pkg/errors"

	"bureau/internal/record"
	"bureau/internal/storage"
)

// Entry is a single replayed (key, value) pair.
type Entry struct {
	Key   string
	Value []byte
}

// Replay reads every page of segment name sequentially, parsing records
// until a zero length field (padding) or a CRC mismatch, either of which is
// treated as end-of-valid-data for that page — replay then continues with
// the next page (spec §4.6, §7: CorruptRecord is not fatal to the segment).
func Replay(ctx context.Context, s storage.Storage, name string) ([]Entry, error) {
	size, err := s.Size(ctx, name)
	if err != nil {
		return nil, errors.Wrap(err, "wal: stat segment")
	}
	var entries []Entry
	for offset := int64(0); offset < size; offset += PageSize {
		pageLen := int64(PageSize)
		if offset+pageLen > size {
			pageLen = size - offset
		}
		page, err := s.ReadAt(ctx, name, offset, int(pageLen))
		if err != nil {
			return nil, errors.Wrap(err, "wal: read page")
		}
		entries = append(entries, parsePage(page)...)
	}
	return entries, nil
}

func parsePage(page []byte) []Entry {
	var out []Entry
	off := 0
	for {
		if off+recordHeaderSize > len(page) {
			return out
		}
		length := binary.LittleEndian.Uint16(page[off : off+2])
		if length == 0 {
			// Zero-padding: end of valid data within this page.
			return out
		}
		start := off + recordHeaderSize
		end := start + int(length)
		if end > len(page) {
			return out
		}
		body := page[start : end-4]
		storedCRC := binary.LittleEndian.Uint32(page[end-4 : end])
		if crc32.ChecksumIEEE(body) != storedCRC {
			// CorruptRecord: treat as end-of-valid-data for this page.
			return out
		}
		rec, _, err := record.Deserialize(body)
		if err != nil {
			return out
		}
		out = append(out, Entry{Key: rec.Key, Value: rec.Value})
		off = end
	}
}

// ListSegments returns the WAL segment file names present in s, in
// ascending (oldest-first) order by name (spec §6: "numbered segment
// files").
func ListSegments(ctx context.Context, s storage.Storage) ([]string, error) {
	names, err := s.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "wal: list segments")
	}
	sort.Strings(names)
	return names, nil
}
