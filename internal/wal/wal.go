// Package wal implements the write-ahead log (spec §3, §4.6): a sequence of
// fixed-size 4 KiB pages, each holding a whole number of
// (length, key-length, key, value-length, value, crc32) records, zero-padded
// at page boundaries so records are never torn across pages.
//
// Grounded on mrsladoje-HundDB's lsm/wal package: a single in-memory page
// buffer that is flushed and fsynced as a durability barrier, with the same
// "page is re-written in place until full, then a new page begins" approach
// (HundDB's block_manager.WriteBlock writes at a fixed byte offset, which
// this package reuses via storage.WriteAt for the in-progress page).
package wal

import (
	"context"
	"encoding/binary"
	"hash/crc32"

	"github.com/pkg/errors"

	"bureau/internal/bureauerr"
	"bureau/internal/record"
	"bureau/internal/storage"
)

// PageSize is the fixed WAL page size (spec §3, §4.6).
const PageSize = 4096

// recordHeaderSize is the length-prefix field's own size.
const recordHeaderSize = 2

// WAL is an append-only, single-page-buffered write-ahead log for one
// segment. A new WAL is created per segment (spec §4.6: "Segment rotation
// occurs at memtable seal").
type WAL struct {
	s        storage.Storage
	name     string
	page     [PageSize]byte
	offset   int // write position within the current page
	pageIdx  int64
}

// Create begins a new, empty WAL segment named name.
func Create(ctx context.Context, s storage.Storage, name string) (*WAL, error) {
	if err := s.Create(ctx, name); err != nil {
		return nil, errors.Wrap(err, "wal: create segment")
	}
	return &WAL{s: s, name: name}, nil
}

// Name returns the segment's file name.
func (w *WAL) Name() string { return w.name }

// encodeRecord lays out a WAL record as spec §3 describes:
// length(2) | keyLen(1) | key | valueLen(1) | value | crc32(4)
// length covers everything after itself (keyLen through crc32).
func encodeRecord(key string, value []byte) ([]byte, error) {
	if len(key) > record.MaxKeyLen || len(value) > record.MaxValueLen {
		return nil, bureauerr.New(bureauerr.RecordTooLarge, "key or value exceeds 255 bytes")
	}
	body := (&recordBody{key: key, value: value}).serialize()
	crc := crc32.ChecksumIEEE(body)

	total := recordHeaderSize + len(body) + 4
	buf := make([]byte, total)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(body)+4))
	copy(buf[2:], body)
	binary.LittleEndian.PutUint32(buf[2+len(body):], crc)
	return buf, nil
}

type recordBody struct {
	key   string
	value []byte
}

func (b *recordBody) serialize() []byte {
	return record.New(b.key, b.value).Serialize()
}

// Append writes a (key, value) record to the log. If durable is true (the
// spec's "set" path), the current page is flushed and fsynced before
// Append returns; if false (the "set_async" path), the record is buffered
// and becomes durable only when a later durable append or a page rollover
// flushes it.
func (w *WAL) Append(ctx context.Context, key string, value []byte, durable bool) error {
	encoded, err := encodeRecord(key, value)
	if err != nil {
		return err
	}
	if len(encoded) > PageSize {
		return bureauerr.New(bureauerr.RecordTooLarge, "record does not fit in a page")
	}

	if w.offset+len(encoded) > PageSize {
		if err := w.rollPage(ctx); err != nil {
			return err
		}
	}

	copy(w.page[w.offset:], encoded)
	w.offset += len(encoded)

	if durable {
		return w.flushCurrentPage(ctx, true)
	}
	return nil
}

// rollPage zero-pads the remainder of the current page, writes it out
// (durably, since the page is now final and will never be touched again),
// and begins a new page (spec §4.6 step 1).
func (w *WAL) rollPage(ctx context.Context) error {
	if err := w.flushCurrentPage(ctx, true); err != nil {
		return err
	}
	w.page = [PageSize]byte{}
	w.offset = 0
	w.pageIdx++
	return nil
}

// flushCurrentPage writes the in-progress page to storage at its fixed
// offset, optionally fsyncing as a durability barrier.
func (w *WAL) flushCurrentPage(ctx context.Context, fsync bool) error {
	if err := w.s.WriteAt(ctx, w.name, w.pageIdx*PageSize, w.page[:]); err != nil {
		return bureauerr.Wrap(bureauerr.StorageError, err, "wal: write page")
	}
	if fsync {
		if err := w.s.Fsync(ctx, w.name); err != nil {
			return bureauerr.Wrap(bureauerr.StorageError, err, "wal: fsync page")
		}
	}
	return nil
}

// Retire deletes the WAL segment's file. Called once the corresponding
// sorted table has been committed (spec §4.6: "the old segment is retired
// after the corresponding sorted table is committed").
func (w *WAL) Retire(ctx context.Context) error {
	return w.s.Delete(ctx, w.name)
}
