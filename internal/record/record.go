// Package record defines the on-disk representation of a single key/value
// pair, shared by the WAL and the sorted-table writer/reader.
package record

import (
	"github.com/pkg/errors"
)

// Field widths. Keys and values are capped at 255 bytes (spec data model),
// so length prefixes fit in a single byte.
const (
	KeyLenSize   = 1
	ValueLenSize = 1

	MaxKeyLen   = 255
	MaxValueLen = 255
)

// ErrTruncated is returned when a buffer is too short to contain a full record.
var ErrTruncated = errors.New("record: truncated buffer")

// Record is a single key/value pair, laid out exactly as spec §3 describes
// WAL records and SST block entries: a length-prefixed key followed by a
// length-prefixed value. There is no timestamp or tombstone field — bureau
// carries no deletion or MVCC machinery (both are declared non-goals).
type Record struct {
	Key   string
	Value []byte
}

// New builds a Record from a key/value pair.
func New(key string, value []byte) *Record {
	return &Record{Key: key, Value: value}
}

// Size returns the encoded length of the record, matching Serialize.
func (r *Record) Size() int {
	return KeyLenSize + len(r.Key) + ValueLenSize + len(r.Value)
}

// EncodedSize returns the encoded size a (key, value) pair would occupy,
// without constructing a Record. Used by the memtable to project whether an
// insert would cross the seal threshold before it is actually applied.
func EncodedSize(key string, value []byte) int {
	return KeyLenSize + len(key) + ValueLenSize + len(value)
}

// Serialize encodes the record as: keyLen(1) | key | valueLen(1) | value
func (r *Record) Serialize() []byte {
	buf := make([]byte, r.Size())
	buf[0] = byte(len(r.Key))
	off := 1
	copy(buf[off:], r.Key)
	off += len(r.Key)
	buf[off] = byte(len(r.Value))
	off++
	copy(buf[off:], r.Value)
	return buf
}

// Deserialize parses a record from the front of buf and returns it together
// with the number of bytes consumed. It returns ErrTruncated if buf does not
// contain a full record.
func Deserialize(buf []byte) (*Record, int, error) {
	if len(buf) < KeyLenSize {
		return nil, 0, ErrTruncated
	}
	keyLen := int(buf[0])
	off := 1
	if len(buf) < off+keyLen+ValueLenSize {
		return nil, 0, ErrTruncated
	}
	key := string(buf[off : off+keyLen])
	off += keyLen
	valueLen := int(buf[off])
	off++
	if len(buf) < off+valueLen {
		return nil, 0, ErrTruncated
	}
	value := append([]byte(nil), buf[off:off+valueLen]...)
	off += valueLen
	return &Record{Key: key, Value: value}, off, nil
}

// Validate enforces the data model's key/value constraints (spec §3):
// non-empty printable-ASCII byte strings, 1-255 bytes each.
func Validate(key string, value []byte) error {
	if err := validateBytes([]byte(key), MaxKeyLen); err != nil {
		return errors.Wrap(err, "key")
	}
	if err := validateBytes(value, MaxValueLen); err != nil {
		return errors.Wrap(err, "value")
	}
	return nil
}

func validateBytes(b []byte, max int) error {
	if len(b) == 0 {
		return errors.New("must be non-empty")
	}
	if len(b) > max {
		return errors.Errorf("must be at most %d bytes, got %d", max, len(b))
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return errors.Errorf("must be printable ASCII, got byte 0x%02x", c)
		}
	}
	return nil
}
