// Package dispatcher implements the disk-resident actor from spec §4.2:
// it owns the sorted-table index and the storage handle, serializes
// Flush/Get/CompactTick requests through a single input channel, writes
// flushed memtables as sorted tables, answers reads that miss the
// memtable and shadow pool, and drives the compaction loop.
//
// Grounded on mrsladoje-HundDB's lsm/flush_worker.go (a worker pool
// draining a flush queue, committing oldest-to-newest) and lsm.go's index
// bookkeeping, collapsed to the spec's single-goroutine actor model (spec
// §5: "Dispatcher is one task... shared mutable state... owned by exactly
// one task").
package dispatcher

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"bureau/internal/bureauerr"
	"bureau/internal/cache"
	"bureau/internal/compaction"
	"bureau/internal/memtable"
	"bureau/internal/sstable"
	"bureau/internal/storage"
)

// tableEntry is one sorted table tracked by the Dispatcher's index.
type tableEntry struct {
	name string
	size int64
}

// flushRequest asks the Dispatcher to persist a sealed memtable as a
// sorted table.
type flushRequest struct {
	table *memtable.MemTable
	reply chan error
}

// getRequest asks the Dispatcher to resolve a key against the on-disk
// index (and cache), after the caller has already missed in the memtable
// and shadow pool.
type getRequest struct {
	key   string
	reply chan getResult
}

type getResult struct {
	value []byte
	found bool
	err   error
}

// compactTick drives one step of the compaction loop.
type compactTick struct{}

// snapshotRequest asks the Dispatcher for its current index contents,
// routed through the actor like Get/Flush so callers never read index
// state from outside its owning goroutine.
type snapshotRequest struct {
	reply chan []string
}

// Config bounds the Dispatcher's on-disk behavior.
type Config struct {
	BlockTargetSize        int
	BloomFalsePositiveRate float64
	CompactionCap          int64
	CacheCapacity          int
}

// DefaultConfig mirrors the target sizes named throughout spec §3/§4.3.
func DefaultConfig() Config {
	return Config{
		BlockTargetSize:        sstable.DefaultBlockTargetSize,
		BloomFalsePositiveRate: sstable.DefaultBloomFalsePositiveRate,
		CompactionCap:          4 * sstable.DefaultBlockTargetSize,
		CacheCapacity:          1024,
	}
}

// Dispatcher is the single-goroutine disk-side actor.
type Dispatcher struct {
	storage storage.Storage
	cfg     Config
	cache   *cache.Cache

	requests chan any // *flushRequest | *getRequest | *snapshotRequest; compactTick comes from Run's ticker

	// index is owned exclusively by run's goroutine; index[0] is the
	// newest table (generation 0, per spec §3).
	index []tableEntry

	// retirements notifies the caller (Engine) that a flushed memtable's
	// WAL segment may now be retired (spec §4.2: "notify Engine that the
	// corresponding WAL segment may be retired").
	retirements chan *memtable.MemTable

	done chan struct{}
}

// New constructs a Dispatcher over an empty index. Callers that are
// restarting over existing on-disk state should use Recover instead.
func New(s storage.Storage, cfg Config) *Dispatcher {
	return &Dispatcher{
		storage:     s,
		cfg:         cfg,
		cache:       cache.New(cfg.CacheCapacity),
		requests:    make(chan any, 64),
		retirements: make(chan *memtable.MemTable, 64),
		done:        make(chan struct{}),
	}
}

// Recover reconstructs the index from the set of sorted-table files
// already present in s, newest-first by file name (spec §3: "Persisted
// implicitly by the set of files present on disk; reconstructed on
// startup by sorting file names" — UUIDv7 names sort lexicographically by
// creation time, so descending name order is newest-first).
func Recover(ctx context.Context, s storage.Storage, cfg Config) (*Dispatcher, error) {
	names, err := s.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "dispatcher: list sorted tables")
	}
	d := New(s, cfg)
	entries := make([]tableEntry, 0, len(names))
	for _, name := range names {
		size, err := s.Size(ctx, name)
		if err != nil {
			return nil, errors.Wrapf(err, "dispatcher: stat %s", name)
		}
		entries = append(entries, tableEntry{name: name, size: size})
	}
	// Sort descending by name: newest (highest UUIDv7) first.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].name > entries[j-1].name; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	d.index = entries
	return d, nil
}

// Retirements returns the channel on which Dispatcher announces a flushed
// memtable's WAL segment may be retired.
func (d *Dispatcher) Retirements() <-chan *memtable.MemTable { return d.retirements }

// Run processes requests until ctx is canceled. It must be run in its own
// goroutine; all index and storage mutation happens here and nowhere else
// (spec §5 single-owner-per-resource).
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.requests:
			d.handle(ctx, req)
		case <-ticker.C:
			d.handle(ctx, compactTick{})
		}
	}
}

// Done reports Run's termination.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

func (d *Dispatcher) handle(ctx context.Context, req any) {
	switch r := req.(type) {
	case *flushRequest:
		r.reply <- d.flush(ctx, r.table)
	case *getRequest:
		v, ok, err := d.get(ctx, r.key)
		r.reply <- getResult{value: v, found: ok, err: err}
	case compactTick:
		d.compactStep(ctx)
	case *snapshotRequest:
		r.reply <- d.indexSnapshot()
	}
}

// Flush sends a sealed memtable to the Dispatcher for persistence and
// blocks until it has been committed (or failed). This is a
// request/response interaction across the bounded queue (spec §4.2).
func (d *Dispatcher) Flush(ctx context.Context, table *memtable.MemTable) error {
	ticket, err := d.StartFlush(ctx, table)
	if err != nil {
		return err
	}
	return ticket.Await(ctx)
}

// FlushTicket is a flush request already accepted onto the Dispatcher's
// queue, whose completion can be awaited separately from its enqueue.
type FlushTicket struct {
	reply chan error
}

// StartFlush enqueues table for flushing and returns as soon as the
// request has been accepted onto the queue, without waiting for it to
// complete. The enqueue itself is where ordering is decided (requests are
// installed into the index in the order the Dispatcher's single goroutine
// drains them off the channel), so callers that must flush several sealed
// memtables in a specific order (Engine, spec §5/§4.2: "flushes are
// applied to the index in the order memtables were sealed") need to call
// StartFlush synchronously, in that order, rather than letting several
// independent goroutines race to call Flush.
func (d *Dispatcher) StartFlush(ctx context.Context, table *memtable.MemTable) (*FlushTicket, error) {
	reply := make(chan error, 1)
	req := &flushRequest{table: table, reply: reply}
	select {
	case d.requests <- req:
		return &FlushTicket{reply: reply}, nil
	case <-ctx.Done():
		return nil, bureauerr.Wrap(bureauerr.ShuttingDown, ctx.Err(), "dispatcher: enqueue flush")
	}
}

// Await blocks until the flush behind this ticket has completed.
func (t *FlushTicket) Await(ctx context.Context) error {
	select {
	case err := <-t.reply:
		return err
	case <-ctx.Done():
		return bureauerr.Wrap(bureauerr.ShuttingDown, ctx.Err(), "dispatcher: await flush")
	}
}

// Get resolves key against the on-disk index and cache, used once Engine
// has already missed in the memtable and shadow pool.
func (d *Dispatcher) Get(ctx context.Context, key string) ([]byte, bool, error) {
	reply := make(chan getResult, 1)
	req := &getRequest{key: key, reply: reply}
	select {
	case d.requests <- req:
	case <-ctx.Done():
		return nil, false, bureauerr.Wrap(bureauerr.ShuttingDown, ctx.Err(), "dispatcher: enqueue get")
	}
	select {
	case res := <-reply:
		return res.value, res.found, res.err
	case <-ctx.Done():
		return nil, false, bureauerr.Wrap(bureauerr.ShuttingDown, ctx.Err(), "dispatcher: await get")
	}
}

// flush writes table as a sorted table, installs it at generation 0, and
// announces the retirement of its WAL segment (spec §4.2 Flush).
func (d *Dispatcher) flush(ctx context.Context, table *memtable.MemTable) error {
	entries := table.Entries()
	name := sstable.NewFileName()
	if err := sstable.Write(ctx, d.storage, name, entries, d.cfg.BlockTargetSize, d.cfg.BloomFalsePositiveRate); err != nil {
		// StorageError: the shadow table is retained by the caller (Engine
		// still holds it in the shadow pool) and the error is surfaced
		// rather than silently dropped (spec §7).
		return bureauerr.Wrap(bureauerr.StorageError, err, "dispatcher: flush")
	}
	size, err := d.storage.Size(ctx, name)
	if err != nil {
		return bureauerr.Wrap(bureauerr.StorageError, err, "dispatcher: stat flushed table")
	}
	d.index = append([]tableEntry{{name: name, size: size}}, d.index...)

	select {
	case d.retirements <- table:
	default:
		// Retirement channel is a best-effort signal; a slow consumer does
		// not block the flush path itself.
	}
	return nil
}

// get walks the index from generation 0 upward, consulting the cache
// first (spec §4.1 step 3-4, §4.2 Get).
func (d *Dispatcher) get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := d.cache.Get(key); ok {
		return v, true, nil
	}
	for gen, entry := range d.index {
		reader, err := sstable.Open(ctx, d.storage, entry.name)
		if err != nil {
			return nil, false, bureauerr.Wrap(bureauerr.StorageError, err, "dispatcher: open sorted table")
		}
		v, ok, err := reader.Lookup(ctx, key)
		if err != nil {
			return nil, false, bureauerr.Wrap(bureauerr.StorageError, err, "dispatcher: lookup")
		}
		if ok {
			d.cache.Put(key, v, gen)
			return v, true, nil
		}
	}
	return nil, false, nil
}

// compactStep advances the compaction loop by exactly one window, per
// spec §4.5 ("Compaction yields between merge steps... to avoid starving
// Get/Flush") — each tick does at most one plan+merge+swap, then returns
// control to Run's select loop.
func (d *Dispatcher) compactStep(ctx context.Context) {
	window := make([]compaction.Table, len(d.index))
	for i, e := range d.index {
		window[i] = compaction.Table{Name: e.name, Size: e.size}
	}
	plan, ok := compaction.SelectWindow(window, d.cfg.CompactionCap)
	if !ok {
		return
	}
	result, err := compaction.Run(ctx, d.storage, plan, d.cfg.BlockTargetSize, d.cfg.BloomFalsePositiveRate)
	if err != nil {
		// A failed compaction step is non-fatal: the window is simply
		// retried on a later tick against the (unchanged) index.
		return
	}
	d.installCompactionResult(plan, result)
}

// installCompactionResult atomically swaps plan's input tables for the
// merged replacement (spec §4.5: "insert new table at the window's
// position, remove the merged inputs"). Because this runs inside the
// single Dispatcher goroutine, no concurrent Get can observe a mixed view
// (spec §4.5 edge case).
func (d *Dispatcher) installCompactionResult(plan compaction.Plan, result compaction.Result) {
	var replacement []tableEntry
	if result.NewTable != "" {
		size, err := d.storage.Size(context.Background(), result.NewTable)
		if err == nil {
			replacement = []tableEntry{{name: result.NewTable, size: size}}
		}
	}

	head := append([]tableEntry{}, d.index[:plan.StartIndex]...)
	tail := append([]tableEntry{}, d.index[plan.StartIndex+len(plan.Tables):]...)
	d.index = append(append(head, replacement...), tail...)

	// Conservative invalidation on compaction swap (spec §4.7, §9 open
	// question (a)): bureau invalidates the whole cache rather than
	// tracking which keys moved generation.
	d.cache.InvalidateAll()
}

// IndexSnapshot returns a read-only copy of the current table names,
// newest-first, for diagnostics and tests. Safe to call concurrently with
// Run: it is routed through the same request channel as Get and Flush.
func (d *Dispatcher) IndexSnapshot(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	select {
	case d.requests <- &snapshotRequest{reply: reply}:
	case <-ctx.Done():
		return nil, bureauerr.Wrap(bureauerr.ShuttingDown, ctx.Err(), "dispatcher: enqueue snapshot")
	}
	select {
	case names := <-reply:
		return names, nil
	case <-ctx.Done():
		return nil, bureauerr.Wrap(bureauerr.ShuttingDown, ctx.Err(), "dispatcher: await snapshot")
	}
}

func (d *Dispatcher) indexSnapshot() []string {
	names := make([]string, len(d.index))
	for i, e := range d.index {
		names[i] = e.name
	}
	return names
}
