// Package compaction implements the size-tiered compaction loop described in
// spec §4.5: scan sorted tables from the oldest end of the index, pick a
// contiguous window whose combined size fits a cap, k-way merge their
// entries (later wins on key collision), write one replacement table, and
// atomically swap it into the index.
//
// Grounded on mrsladoje-HundDB's lsm.go sizeTieredCompaction (oldest-group
// selection, cascading loop) and lsm/sstable.go's Compact/k-way-merge
// machinery, generalized from HundDB's multi-level scheme down to the
// spec's single flat, generation-ordered index, and using
// github.com/samber/lo for the small collect-file-names helper the swap
// step needs.
package compaction

import (
	"container/heap"
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"bureau/internal/record"
	"bureau/internal/sstable"
	"bureau/internal/storage"
)

// Table describes one sorted table as tracked by the index, in the shape
// the compactor needs: its file name and its on-disk size. Generation is
// implicit in slice position (index 0 = newest, per spec §4.2: "insert at
// generation 0 of the index").
type Table struct {
	Name string
	Size int64
}

// Plan is a selected compaction window: a contiguous run of tables at the
// oldest end of the index, all small enough together to fit under the cap.
type Plan struct {
	StartIndex int // position of the first (oldest-most) table in the window
	Tables     []Table
}

// SelectWindow scans index (ordered newest-first, oldest at the tail) from
// its oldest end and picks the longest contiguous run of at least two
// tables whose combined size does not exceed cap. Returns ok=false if no
// such window exists (spec §4.5: "a contiguous window of small tables
// whose combined size fits within a compacted-table cap").
func SelectWindow(index []Table, cap int64) (Plan, bool) {
	n := len(index)
	if n < 2 {
		return Plan{}, false
	}

	// Walk from the oldest table (tail of the slice) inward, growing the
	// window while it still fits under cap. On the break path, start is
	// already advanced past the table that overflowed the cap; only the
	// natural exit (every remaining table fit, start run off the front)
	// needs the clamp back to 0.
	end := n // exclusive
	start := n - 1
	var total int64
	for start >= 0 {
		total += index[start].Size
		if total > cap {
			total -= index[start].Size
			start++
			break
		}
		start--
	}
	if start < 0 {
		start = 0
	}
	if end-start < 2 {
		return Plan{}, false
	}
	window := make([]Table, end-start)
	copy(window, index[start:end])
	return Plan{StartIndex: start, Tables: window}, true
}

// heapItem is one still-unconsumed record from one input table's entry
// stream, tagged with the table's recency rank so the merge can prefer the
// newer table's value on key collision.
type heapItem struct {
	rec    *record.Record
	rank   int // lower rank = newer table (index 0 = most recent)
	stream int // which entries slice this came from
	pos    int // position within that slice
}

type mergeHeap []heapItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	if h[i].rec.Key != h[j].rec.Key {
		return h[i].rec.Key < h[j].rec.Key
	}
	return h[i].rank < h[j].rank
}
func (h mergeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)        { *h = append(*h, x.(heapItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Merge performs a k-way merge of entries from multiple sorted tables,
// keyed ascending, where entries from a table at a lower rank (newer)
// supersede entries with the same key from a higher rank (older table) —
// spec §4.5: "later wins on key equality... duplicate keys across distinct
// sorted tables can exist when a key is overwritten". entries[i] must
// already be sorted ascending by key (as sstable.Reader.AllEntries
// produces) and entries[i]'s rank is i (entries[0] is the newest table in
// the window).
func Merge(entries [][]*record.Record) []*record.Record {
	h := &mergeHeap{}
	for stream, es := range entries {
		if len(es) > 0 {
			heap.Push(h, heapItem{rec: es[0], rank: stream, stream: stream, pos: 0})
		}
	}

	var out []*record.Record
	for h.Len() > 0 {
		top := heap.Pop(h).(heapItem)
		// Drain and discard every other entry sharing this key: the lowest
		// rank (newest table) was popped first by Less's tie-break, so
		// every later pop of the same key is a stale duplicate.
		for h.Len() > 0 && (*h)[0].rec.Key == top.rec.Key {
			stale := heap.Pop(h).(heapItem)
			if stale.pos+1 < len(entries[stale.stream]) {
				next := entries[stale.stream][stale.pos+1]
				heap.Push(h, heapItem{rec: next, rank: stale.rank, stream: stale.stream, pos: stale.pos + 1})
			}
		}
		out = append(out, top.rec)
		if top.pos+1 < len(entries[top.stream]) {
			next := entries[top.stream][top.pos+1]
			heap.Push(h, heapItem{rec: next, rank: top.rank, stream: top.stream, pos: top.pos + 1})
		}
	}
	return out
}

// Result describes the outcome of running one compaction step.
type Result struct {
	// NewTable is the file name of the replacement table, or "" if the
	// merge produced no entries (spec §4.5 edge case: all keys superseded,
	// "it is omitted and inputs still removed").
	NewTable string
	// Removed lists the input tables' file names. Run has already deleted
	// these files; the caller removes them from the index at
	// plan.StartIndex.
	Removed []string
}

// Run executes one full compaction step for plan: reads every input
// table's entries, merges them, writes a replacement table (unless empty),
// and deletes the input files. The caller is responsible for installing
// Result.NewTable into the index at plan.StartIndex and for yielding
// between steps (spec §4.5: "yields between merge steps... to avoid
// starving Get/Flush") — Run itself performs one window's worth of work
// and returns.
func Run(ctx context.Context, s storage.Storage, plan Plan, blockTargetSize int, bloomFPRate float64) (Result, error) {
	removed := lo.Map(plan.Tables, func(t Table, _ int) string { return t.Name })

	entries := make([][]*record.Record, len(plan.Tables))
	for i, t := range plan.Tables {
		reader, err := sstable.Open(ctx, s, t.Name)
		if err != nil {
			return Result{}, errors.Wrapf(err, "compaction: open %s", t.Name)
		}
		all, err := reader.AllEntries(ctx)
		if err != nil {
			return Result{}, errors.Wrapf(err, "compaction: read %s", t.Name)
		}
		entries[i] = all
	}

	merged := Merge(entries)

	var newName string
	if len(merged) > 0 {
		newName = sstable.NewFileName()
		if err := sstable.Write(ctx, s, newName, merged, blockTargetSize, bloomFPRate); err != nil {
			return Result{}, errors.Wrap(err, "compaction: write merged table")
		}
	}

	for _, name := range removed {
		if err := s.Delete(ctx, name); err != nil {
			return Result{}, errors.Wrapf(err, "compaction: delete %s", name)
		}
	}

	return Result{NewTable: newName, Removed: removed}, nil
}
