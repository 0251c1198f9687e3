package compaction

import (
	"context"
	"fmt"
	"testing"

	"bureau/internal/record"
	"bureau/internal/sstable"
	"bureau/internal/storage"
)

func TestSelectWindowPicksOldestContiguousRun(t *testing.T) {
	index := []Table{
		{Name: "newest", Size: 100},
		{Name: "mid", Size: 50},
		{Name: "old1", Size: 30},
		{Name: "old2", Size: 30},
	}
	plan, ok := SelectWindow(index, 70)
	if !ok {
		t.Fatal("SelectWindow: want a window, got none")
	}
	if plan.StartIndex != 2 || len(plan.Tables) != 2 {
		t.Fatalf("plan = %+v, want StartIndex=2, 2 tables", plan)
	}
}

func TestSelectWindowNoneWhenTooFewFit(t *testing.T) {
	index := []Table{
		{Name: "a", Size: 100},
		{Name: "b", Size: 100},
	}
	if _, ok := SelectWindow(index, 50); ok {
		t.Fatal("SelectWindow: want no window when nothing fits")
	}
}

func TestMergeNewerWinsOnCollision(t *testing.T) {
	newer := []*record.Record{record.New("a", []byte("new-a")), record.New("c", []byte("new-c"))}
	older := []*record.Record{record.New("a", []byte("old-a")), record.New("b", []byte("old-b"))}

	merged := Merge([][]*record.Record{newer, older})

	want := map[string]string{"a": "new-a", "b": "old-b", "c": "new-c"}
	if len(merged) != len(want) {
		t.Fatalf("Merge returned %d records, want %d", len(merged), len(want))
	}
	for i, r := range merged {
		if i > 0 && r.Key <= merged[i-1].Key {
			t.Fatalf("merged output not ascending at %d: %q <= %q", i, r.Key, merged[i-1].Key)
		}
		if string(r.Value) != want[r.Key] {
			t.Fatalf("merged[%q] = %q, want %q", r.Key, r.Value, want[r.Key])
		}
	}
}

func TestRunCompactsAndDeletesInputs(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemory()

	var tables []Table
	for t2 := 0; t2 < 3; t2++ {
		entries := []*record.Record{
			record.New(fmt.Sprintf("k%d", t2), []byte(fmt.Sprintf("v%d", t2))),
		}
		name := sstable.NewFileName()
		if err := sstable.Write(ctx, s, name, entries, 512, 0.01); err != nil {
			t.Fatalf("Write: %v", err)
		}
		size, err := s.Size(ctx, name)
		if err != nil {
			t.Fatalf("Size: %v", err)
		}
		tables = append(tables, Table{Name: name, Size: size})
	}

	plan := Plan{StartIndex: 0, Tables: tables}
	result, err := Run(ctx, s, plan, 512, 0.01)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.NewTable == "" {
		t.Fatal("Run: want a replacement table, got none")
	}
	if len(result.Removed) != 3 {
		t.Fatalf("Removed = %v, want 3 entries", result.Removed)
	}

	reader, err := sstable.Open(ctx, s, result.NewTable)
	if err != nil {
		t.Fatalf("Open merged table: %v", err)
	}
	for i := 0; i < 3; i++ {
		v, ok, err := reader.Lookup(ctx, fmt.Sprintf("k%d", i))
		if err != nil || !ok {
			t.Fatalf("Lookup(k%d) = (%q, %v, %v), want found", i, v, ok, err)
		}
	}

	names, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, n := range names {
		for _, removed := range result.Removed {
			if n == removed {
				t.Fatalf("input table %q not deleted after compaction", removed)
			}
		}
	}
}

func TestRunKeepsNewestValueForDuplicateKey(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemory()

	// Two tables both holding the same key; the merge keeps only the newer
	// entry, so the output is still non-empty. A window producing zero
	// surviving entries is only possible if every key was already removed,
	// which this system has no delete path for, so that case is not
	// exercised here. This test checks that the duplicate collapses to the
	// newest value and that Removed lists every input.
	older := []*record.Record{record.New("dup", []byte("old"))}
	newer := []*record.Record{record.New("dup", []byte("new"))}

	nameOld := sstable.NewFileName()
	if err := sstable.Write(ctx, s, nameOld, older, 512, 0.01); err != nil {
		t.Fatalf("Write old: %v", err)
	}
	sizeOld, _ := s.Size(ctx, nameOld)
	nameNew := sstable.NewFileName()
	if err := sstable.Write(ctx, s, nameNew, newer, 512, 0.01); err != nil {
		t.Fatalf("Write new: %v", err)
	}
	sizeNew, _ := s.Size(ctx, nameNew)

	plan := Plan{StartIndex: 0, Tables: []Table{
		{Name: nameNew, Size: sizeNew},
		{Name: nameOld, Size: sizeOld},
	}}
	result, err := Run(ctx, s, plan, 512, 0.01)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Removed) != 2 {
		t.Fatalf("Removed = %v, want 2", result.Removed)
	}
	reader, err := sstable.Open(ctx, s, result.NewTable)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	v, ok, err := reader.Lookup(ctx, "dup")
	if err != nil || !ok || string(v) != "new" {
		t.Fatalf("Lookup(dup) = (%q, %v, %v), want (new, true, nil)", v, ok, err)
	}
}
