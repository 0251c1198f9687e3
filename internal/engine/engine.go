// Package engine implements the memory-resident write-path actor from
// spec §4.1: it owns the active memtable and the shadow pool, serializes
// client Set/SetAsync/Get operations, appends to the write-ahead log, and
// seals+hands off full memtables to the Dispatcher.
//
// Grounded on mrsladoje-HundDB's lsm.go Put/Get (mutex-guarded
// memtable-then-cache-then-sstable lookup order, checkIfToFlush seal
// trigger), generalized from HundDB's shared-mutex model to the spec's
// single-owner-goroutine actor (spec §5) that communicates with
// bureau/internal/dispatcher over bounded channels instead of holding a
// lock that a Dispatcher goroutine would also need.
package engine

import (
	"context"
	"fmt"

	"bureau/internal/bureauerr"
	"bureau/internal/dispatcher"
	"bureau/internal/memtable"
	"bureau/internal/record"
	"bureau/internal/shadowpool"
	"bureau/internal/wal"
	"bureau/internal/storage"
)

// Config bounds the Engine's write-buffering behavior.
type Config struct {
	MemtableTargetSize int
	ShadowPoolCapacity int
}

// DefaultConfig mirrors spec §3's "~4 KiB of payload plus overhead" target
// and the "small, e.g. 4" shadow pool capacity from spec §3.
func DefaultConfig() Config {
	return Config{
		MemtableTargetSize: 4096,
		ShadowPoolCapacity: 4,
	}
}

type setRequest struct {
	key     string
	value   []byte
	durable bool
	reply   chan error
}

type getRequest struct {
	key   string
	reply chan getResult
}

type getResult struct {
	value []byte
	found bool
	err   error
}

// Engine is the single-goroutine write-path actor.
type Engine struct {
	cfg        Config
	storage    storage.Storage
	dispatcher *dispatcher.Dispatcher

	requests chan any // *setRequest | *getRequest

	active  *memtable.MemTable
	pool    *shadowpool.Pool
	currentWAL *wal.WAL
	segSeq  int

	done chan struct{}
}

// New constructs an Engine with a fresh empty memtable and a new WAL
// segment. Callers recovering from prior state should use Recover.
func New(ctx context.Context, s storage.Storage, d *dispatcher.Dispatcher, cfg Config) (*Engine, error) {
	e := &Engine{
		cfg:        cfg,
		storage:    s,
		dispatcher: d,
		requests:   make(chan any, 64),
		active:     memtable.New(),
		pool:       shadowpool.New(cfg.ShadowPoolCapacity),
		done:       make(chan struct{}),
	}
	w, err := wal.Create(ctx, s, e.segmentName())
	if err != nil {
		return nil, err
	}
	e.currentWAL = w
	return e, nil
}

func (e *Engine) segmentName() string {
	name := fmt.Sprintf("%06d.wal", e.segSeq)
	e.segSeq++
	return name
}

// Recover rebuilds the active memtable from every surviving WAL segment
// (spec §4.6 Replay), then starts fresh with a new segment for subsequent
// writes. Segments are replayed in ascending (oldest-first) name order so
// later writes to the same key correctly shadow earlier ones.
func Recover(ctx context.Context, s storage.Storage, d *dispatcher.Dispatcher, cfg Config) (*Engine, error) {
	e := &Engine{
		cfg:        cfg,
		storage:    s,
		dispatcher: d,
		requests:   make(chan any, 64),
		active:     memtable.New(),
		pool:       shadowpool.New(cfg.ShadowPoolCapacity),
		done:       make(chan struct{}),
	}

	segments, err := wal.ListSegments(ctx, s)
	if err != nil {
		return nil, err
	}
	maxSeq := -1
	for _, name := range segments {
		entries, err := wal.Replay(ctx, s, name)
		if err != nil {
			return nil, err
		}
		for _, ent := range entries {
			e.active.Insert(ent.Key, ent.Value)
		}
		var seq int
		if _, scanErr := fmt.Sscanf(name, "%06d.wal", &seq); scanErr == nil && seq > maxSeq {
			maxSeq = seq
		}
		if err := s.Delete(ctx, name); err != nil {
			return nil, err
		}
	}
	e.segSeq = maxSeq + 1

	w, err := wal.Create(ctx, s, e.segmentName())
	if err != nil {
		return nil, err
	}
	e.currentWAL = w
	return e, nil
}

// Run processes requests until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-e.requests:
			e.handle(ctx, req)
		}
	}
}

// Done reports Run's termination.
func (e *Engine) Done() <-chan struct{} { return e.done }

func (e *Engine) handle(ctx context.Context, req any) {
	switch r := req.(type) {
	case *setRequest:
		r.reply <- e.set(ctx, r.key, r.value, r.durable)
	case *getRequest:
		v, ok, err := e.get(ctx, r.key)
		r.reply <- getResult{value: v, found: ok, err: err}
	}
}

// Set validates and durably writes (k, v), acknowledging only after the
// WAL fsync barrier (spec §4.1 "set").
func (e *Engine) Set(ctx context.Context, key string, value []byte) error {
	return e.submitSet(ctx, key, value, true)
}

// SetAsync writes (k, v) like Set but acknowledges once the record is
// buffered in the WAL's current page and inserted into the memtable,
// without waiting for the WAL write and fsync barrier (spec §4.1
// "set_async").
func (e *Engine) SetAsync(ctx context.Context, key string, value []byte) error {
	return e.submitSet(ctx, key, value, false)
}

func (e *Engine) submitSet(ctx context.Context, key string, value []byte, durable bool) error {
	reply := make(chan error, 1)
	req := &setRequest{key: key, value: value, durable: durable, reply: reply}
	select {
	case e.requests <- req:
	case <-ctx.Done():
		return bureauerr.Wrap(bureauerr.ShuttingDown, ctx.Err(), "engine: enqueue set")
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return bureauerr.Wrap(bureauerr.ShuttingDown, ctx.Err(), "engine: await set")
	}
}

// Get resolves key via memtable, shadow pool, then Dispatcher (spec §4.1
// "get").
func (e *Engine) Get(ctx context.Context, key string) ([]byte, bool, error) {
	reply := make(chan getResult, 1)
	req := &getRequest{key: key, reply: reply}
	select {
	case e.requests <- req:
	case <-ctx.Done():
		return nil, false, bureauerr.Wrap(bureauerr.ShuttingDown, ctx.Err(), "engine: enqueue get")
	}
	select {
	case res := <-reply:
		return res.value, res.found, res.err
	case <-ctx.Done():
		return nil, false, bureauerr.Wrap(bureauerr.ShuttingDown, ctx.Err(), "engine: await get")
	}
}

// set is Engine's single-goroutine write algorithm (spec §4.1 steps 1-4).
func (e *Engine) set(ctx context.Context, key string, value []byte, durable bool) error {
	if err := record.Validate(key, value); err != nil {
		return bureauerr.Wrap(bureauerr.BadRequest, err, "engine: invalid key/value")
	}

	if e.active.ProjectedSize(key, value) > e.cfg.MemtableTargetSize {
		if err := e.seal(ctx); err != nil {
			return err
		}
	}

	if err := e.currentWAL.Append(ctx, key, value, durable); err != nil {
		return err
	}

	e.active.Insert(key, value)
	return nil
}

// seal moves the active memtable into the shadow pool (suspending if the
// pool is full), enqueues it with the Dispatcher for flushing, and rotates
// onto a fresh memtable and WAL segment (spec §4.1 step 2).
//
// The enqueue (StartFlush) happens here, synchronously, on Engine's own
// single goroutine — never inside the background goroutine that waits for
// completion. Engine's request loop only ever processes one seal at a
// time, so calling StartFlush here guarantees flushes reach the
// Dispatcher's queue in the same order their memtables were sealed (spec
// §5/§4.2: "flushes are applied to the index in the order memtables were
// sealed"). Spawning a goroutine per seal that each called Flush
// end-to-end would let two in-flight flushes race to enqueue, letting a
// later-sealed (but faster-scheduled) memtable land at generation 0 ahead
// of an earlier one.
func (e *Engine) seal(ctx context.Context) error {
	sealed := e.active
	sealed.Seal()

	if err := e.pool.Push(ctx, sealed); err != nil {
		return bureauerr.Wrap(bureauerr.Busy, err, "engine: shadow pool full")
	}

	oldWAL := e.currentWAL
	w, err := wal.Create(ctx, e.storage, e.segmentName())
	if err != nil {
		return err
	}
	e.currentWAL = w
	e.active = memtable.New()

	ticket, err := e.dispatcher.StartFlush(ctx, sealed)
	if err != nil {
		return err
	}
	go e.awaitFlushAndRetire(ctx, ticket, sealed, oldWAL)
	return nil
}

// awaitFlushAndRetire waits for a flush already enqueued by seal (in seal
// order) and, once committed, retires its WAL segment and removes it from
// the shadow pool (spec §4.2 Flush, §4.6 "the old segment is retired after
// the corresponding sorted table is committed"). It runs as its own task
// so a slow flush never blocks Engine's request loop (spec §5: "Engine
// suspends at: queue send to Dispatcher (flush notify)" is the only
// suspension Engine itself takes; the wait for completion happens here,
// off the Engine actor).
func (e *Engine) awaitFlushAndRetire(ctx context.Context, ticket *dispatcher.FlushTicket, sealed *memtable.MemTable, segment *wal.WAL) {
	if err := ticket.Await(ctx); err != nil {
		// StorageError: per spec §7 the shadow table is retained (it stays
		// in the pool) and the failure is not escalated here; a later
		// retry policy belongs to the Dispatcher's own error handling.
		return
	}
	_ = segment.Retire(ctx)
	e.pool.Remove(sealed)
}

// get implements the memtable -> shadow pool -> Dispatcher lookup chain.
func (e *Engine) get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := e.active.Get(key); ok {
		return v, true, nil
	}
	if v, ok := e.pool.ProbeNewestFirst(key); ok {
		return v, true, nil
	}
	return e.dispatcher.Get(ctx, key)
}
