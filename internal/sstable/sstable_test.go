package sstable

import (
	"context"
	"fmt"
	"testing"

	"bureau/internal/record"
	"bureau/internal/storage"
)

func buildEntries(n int) []*record.Record {
	out := make([]*record.Record, n)
	for i := 0; i < n; i++ {
		out[i] = record.New(fmt.Sprintf("key-%04d", i), []byte(fmt.Sprintf("value-%04d", i)))
	}
	return out
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemory()
	entries := buildEntries(200)

	name := NewFileName()
	if err := Write(ctx, s, name, entries, 512, 0.01); err != nil {
		t.Fatalf("Write: %v", err)
	}

	reader, err := Open(ctx, s, name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for _, e := range entries {
		v, ok, err := reader.Lookup(ctx, e.Key)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", e.Key, err)
		}
		if !ok {
			t.Fatalf("Lookup(%q): not found, want %q", e.Key, e.Value)
		}
		if string(v) != string(e.Value) {
			t.Fatalf("Lookup(%q) = %q, want %q", e.Key, v, e.Value)
		}
	}

	for _, missing := range []string{"nope", "zzz-not-present", ""} {
		if missing == "" {
			continue
		}
		_, ok, err := reader.Lookup(ctx, missing)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", missing, err)
		}
		if ok {
			t.Fatalf("Lookup(%q): found, want not-found", missing)
		}
	}
}

func TestBlockIndexAndBloomInvariants(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemory()
	entries := buildEntries(500)

	name := NewFileName()
	if err := Write(ctx, s, name, entries, 256, 0.01); err != nil {
		t.Fatalf("Write: %v", err)
	}
	reader, err := Open(ctx, s, name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Invariant: block-index first keys are strictly ascending (spec §8.2).
	for i := 1; i < len(reader.index); i++ {
		if reader.index[i].firstKey <= reader.index[i-1].firstKey {
			t.Fatalf("block index not ascending at %d: %q <= %q", i, reader.index[i].firstKey, reader.index[i-1].firstKey)
		}
	}

	// Invariant: within each block, keys are strictly ascending.
	all, err := reader.AllEntries(ctx)
	if err != nil {
		t.Fatalf("AllEntries: %v", err)
	}
	if len(all) != len(entries) {
		t.Fatalf("AllEntries returned %d records, want %d", len(all), len(entries))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Key <= all[i-1].Key {
			t.Fatalf("entries not ascending at %d: %q <= %q", i, all[i].Key, all[i-1].Key)
		}
	}

	// Invariant: bloom reports positive for every key present.
	for _, e := range entries {
		if !reader.filter.Contains([]byte(e.Key)) {
			t.Fatalf("bloom filter reports negative for present key %q", e.Key)
		}
	}
}

func TestWriteIsAtomicallyCommitted(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemory()
	name := NewFileName()
	if err := Write(ctx, s, name, buildEntries(10), 512, 0.01); err != nil {
		t.Fatalf("Write: %v", err)
	}
	names, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, n := range names {
		if n != name {
			t.Fatalf("unexpected leftover file %q after commit", n)
		}
	}
}
