// Package shadowpool implements the bounded FIFO holding area for memtables
// that are full but not yet persisted (spec §3, §4.4). A shadow table's
// entries remain readable with newer-than-disk precedence until its sorted
// table is committed and its WAL segment retired.
//
// Grounded on mrsladoje-HundDB's lsm.go level-0 handoff logic (an
// in-process slice of pending memtables guarded by a mutex), pulled out
// into its own type with an explicit capacity and a condition variable so
// Push can suspend the caller exactly as spec §4.1/§4.4/§5 describe:
// "the Engine suspends new writes until a slot frees."
package shadowpool

import (
	"context"
	"sync"

	"bureau/internal/memtable"
)

// Pool is a bounded, ordered (oldest-first) sequence of sealed memtables.
type Pool struct {
	mu       sync.Mutex
	notEmpty *sync.Cond // protected by mu: signaled on Push / PopOldest-wait targets
	notFull  *sync.Cond // protected by mu: signaled on PopOldest
	capacity int
	items    []*memtable.MemTable
}

// New creates a pool with the given capacity (spec §3: "Capacity N (small,
// e.g. 4)").
func New(capacity int) *Pool {
	p := &Pool{capacity: capacity}
	p.notEmpty = sync.NewCond(&p.mu)
	p.notFull = sync.NewCond(&p.mu)
	return p
}

// Push appends a sealed memtable to the pool, blocking the caller until a
// slot is available or ctx is canceled (back-pressure, spec §4.1 step 2 and
// §5 "Suspension points").
func (p *Pool) Push(ctx context.Context, mt *memtable.MemTable) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				p.mu.Lock()
				p.notFull.Broadcast()
				p.mu.Unlock()
			case <-done:
			}
		}()
	}

	for len(p.items) >= p.capacity {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		p.notFull.Wait()
	}
	p.items = append(p.items, mt)
	p.notEmpty.Broadcast()
	return nil
}

// TryPush appends a sealed memtable without blocking, returning false if
// the pool is at capacity.
func (p *Pool) TryPush(mt *memtable.MemTable) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) >= p.capacity {
		return false
	}
	p.items = append(p.items, mt)
	p.notEmpty.Broadcast()
	return true
}

// Oldest returns the oldest (earliest-sealed) shadow table without removing
// it, or nil if the pool is empty.
func (p *Pool) Oldest() *memtable.MemTable {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) == 0 {
		return nil
	}
	return p.items[0]
}

// PopOldest removes and returns the oldest shadow table, freeing a slot for
// a blocked Push. It is a no-op returning nil if the pool is empty.
func (p *Pool) PopOldest() *memtable.MemTable {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) == 0 {
		return nil
	}
	mt := p.items[0]
	p.items = append(p.items[:0], p.items[1:]...)
	p.notFull.Broadcast()
	return mt
}

// Remove drops mt from the pool by identity (used once its sorted table has
// committed and its WAL segment retired — spec §4.4's invariant). It is a
// no-op if mt is not present. Unlike PopOldest this does not assume mt is
// the oldest entry, since each seal's background await-and-retire goroutine
// in the Engine calls Remove on its own schedule, not in push order.
func (p *Pool) Remove(mt *memtable.MemTable) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, item := range p.items {
		if item == mt {
			p.items = append(p.items[:i], p.items[i+1:]...)
			p.notFull.Broadcast()
			return
		}
	}
}

// ProbeNewestFirst looks up key across shadow tables from newest to oldest,
// matching spec §3 invariant 3's lookup order.
func (p *Pool) ProbeNewestFirst(key string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.items) - 1; i >= 0; i-- {
		if v, ok := p.items[i].Get(key); ok {
			return v, true
		}
	}
	return nil, false
}

// Len returns the current number of shadow tables held.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Capacity returns the pool's configured capacity.
func (p *Pool) Capacity() int { return p.capacity }

// Snapshot returns the current shadow tables, newest last, for callers that
// need a consistent point-in-time view (e.g. graceful shutdown draining
// every remaining shadow table).
func (p *Pool) Snapshot() []*memtable.MemTable {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*memtable.MemTable, len(p.items))
	copy(out, p.items)
	return out
}
