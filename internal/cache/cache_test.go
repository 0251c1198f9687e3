package cache

import "testing"

func TestGetMissThenPutThenHit(t *testing.T) {
	c := New(4)
	if _, ok := c.Get("a"); ok {
		t.Fatal("Get on empty cache: want miss")
	}
	c.Put("a", []byte("1"), 0)
	v, ok := c.Get("a")
	if !ok || string(v) != "1" {
		t.Fatalf("Get(a) = (%q, %v), want (1, true)", v, ok)
	}
}

func TestEvictsUnderCapacity(t *testing.T) {
	c := New(2)
	c.Put("a", []byte("1"), 0)
	c.Put("b", []byte("2"), 0)
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	c.Put("c", []byte("3"), 0)
	if c.Len() != 2 {
		t.Fatalf("Len() after overflow insert = %d, want 2 (capacity enforced)", c.Len())
	}
}

func TestHigherGenerationSurvivesEviction(t *testing.T) {
	c := New(2)
	c.Put("old", []byte("1"), 0)
	c.Put("new", []byte("2"), 5)

	// Read "new" repeatedly so its score (reads * (gen+1)) dominates "old",
	// which has never been read since insertion.
	for i := 0; i < 5; i++ {
		c.Get("new")
	}

	c.Put("third", []byte("3"), 0)

	if _, ok := c.Get("new"); !ok {
		t.Fatal("expected high-score key 'new' to survive eviction")
	}
}

func TestInvalidate(t *testing.T) {
	c := New(4)
	c.Put("a", []byte("1"), 0)
	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("Get after Invalidate: want miss")
	}
}

func TestInvalidateAll(t *testing.T) {
	c := New(4)
	c.Put("a", []byte("1"), 0)
	c.Put("b", []byte("2"), 0)
	c.InvalidateAll()
	if c.Len() != 0 {
		t.Fatalf("Len() after InvalidateAll = %d, want 0", c.Len())
	}
}

func TestZeroCapacityNeverRetains(t *testing.T) {
	c := New(0)
	c.Put("a", []byte("1"), 0)
	if _, ok := c.Get("a"); ok {
		t.Fatal("zero-capacity cache should not retain entries")
	}
}
