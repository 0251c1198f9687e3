package dispatcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"bureau/internal/memtable"
	"bureau/internal/storage"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BlockTargetSize = 256
	return cfg
}

func TestFlushThenGet(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := storage.NewMemory()
	d := New(s, testConfig())
	go d.Run(ctx)

	mt := memtable.New()
	mt.Insert("a", []byte("1"))
	mt.Insert("b", []byte("2"))
	mt.Seal()

	if err := d.Flush(ctx, mt); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	v, ok, err := d.Get(ctx, "a")
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("Get(a) = (%q, %v, %v), want (1, true, nil)", v, ok, err)
	}
	if _, ok, _ := d.Get(ctx, "missing"); ok {
		t.Fatal("Get(missing): want not-found")
	}
}

func TestGetPrefersNewerGeneration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := storage.NewMemory()
	d := New(s, testConfig())
	go d.Run(ctx)

	old := memtable.New()
	old.Insert("k", []byte("old-value"))
	old.Seal()
	if err := d.Flush(ctx, old); err != nil {
		t.Fatalf("Flush(old): %v", err)
	}

	newer := memtable.New()
	newer.Insert("k", []byte("new-value"))
	newer.Seal()
	if err := d.Flush(ctx, newer); err != nil {
		t.Fatalf("Flush(newer): %v", err)
	}

	v, ok, err := d.Get(ctx, "k")
	if err != nil || !ok || string(v) != "new-value" {
		t.Fatalf("Get(k) = (%q, %v, %v), want (new-value, true, nil)", v, ok, err)
	}
}

func TestRecoverRebuildsIndexFromFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := storage.NewMemory()
	d := New(s, testConfig())
	go d.Run(ctx)

	for i := 0; i < 3; i++ {
		mt := memtable.New()
		mt.Insert(fmt.Sprintf("k%d", i), []byte(fmt.Sprintf("v%d", i)))
		mt.Seal()
		if err := d.Flush(ctx, mt); err != nil {
			t.Fatalf("Flush %d: %v", i, err)
		}
	}
	originalNames, err := d.IndexSnapshot(ctx)
	if err != nil {
		t.Fatalf("IndexSnapshot: %v", err)
	}
	cancel()
	<-d.Done()

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	recovered, err := Recover(ctx2, s, testConfig())
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	go recovered.Run(ctx2)

	recoveredNames, err := recovered.IndexSnapshot(ctx2)
	if err != nil {
		t.Fatalf("IndexSnapshot after recover: %v", err)
	}
	if diff := cmp.Diff(originalNames, recoveredNames); diff != "" {
		t.Fatalf("recovered index order mismatch (-original +recovered):\n%s", diff)
	}

	for i := 0; i < 3; i++ {
		v, ok, err := recovered.Get(ctx2, fmt.Sprintf("k%d", i))
		if err != nil || !ok || string(v) != fmt.Sprintf("v%d", i) {
			t.Fatalf("Get(k%d) = (%q, %v, %v)", i, v, ok, err)
		}
	}
}

func TestCompactionMergesSmallTables(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.CompactionCap = 10_000
	s := storage.NewMemory()
	d := New(s, cfg)
	go d.Run(ctx)

	for i := 0; i < 4; i++ {
		mt := memtable.New()
		mt.Insert(fmt.Sprintf("key-%d", i), []byte(fmt.Sprintf("val-%d", i)))
		mt.Seal()
		if err := d.Flush(ctx, mt); err != nil {
			t.Fatalf("Flush %d: %v", i, err)
		}
	}

	deadline := time.After(2 * time.Second)
	poll := time.NewTicker(10 * time.Millisecond)
	defer poll.Stop()
	for {
		names, err := d.IndexSnapshot(ctx)
		if err != nil {
			t.Fatalf("IndexSnapshot: %v", err)
		}
		if len(names) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("compaction did not merge tables in time, have %d", len(names))
		case <-poll.C:
		}
	}

	for i := 0; i < 4; i++ {
		v, ok, err := d.Get(ctx, fmt.Sprintf("key-%d", i))
		if err != nil || !ok || string(v) != fmt.Sprintf("val-%d", i) {
			t.Fatalf("Get(key-%d) = (%q, %v, %v)", i, v, ok, err)
		}
	}
}
