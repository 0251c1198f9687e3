package memtable

import "testing"

func TestInsertThenGet(t *testing.T) {
	m := New()
	m.Insert("b", []byte("2"))
	m.Insert("a", []byte("1"))
	m.Insert("c", []byte("3"))

	for k, want := range map[string]string{"a": "1", "b": "2", "c": "3"} {
		v, ok := m.Get(k)
		if !ok || string(v) != want {
			t.Fatalf("Get(%q) = (%q, %v), want (%q, true)", k, v, ok, want)
		}
	}
	if _, ok := m.Get("missing"); ok {
		t.Fatal("Get(missing): want not-found")
	}
}

func TestEntriesAreSortedByKey(t *testing.T) {
	m := New()
	for _, k := range []string{"d", "b", "a", "c"} {
		m.Insert(k, []byte(k))
	}
	entries := m.Entries()
	if len(entries) != 4 {
		t.Fatalf("Entries() len = %d, want 4", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Key >= entries[i].Key {
			t.Fatalf("Entries() not sorted: %q before %q", entries[i-1].Key, entries[i].Key)
		}
	}
}

func TestInsertOverwriteKeepsSortednessAndUpdatesSize(t *testing.T) {
	m := New()
	m.Insert("a", []byte("1"))
	m.Insert("b", []byte("2"))
	sizeBefore := m.Size()

	m.Insert("a", []byte("longer-value"))

	if m.Len() != 2 {
		t.Fatalf("Len() = %d after overwrite, want 2 (no duplicate key entries)", m.Len())
	}
	v, ok := m.Get("a")
	if !ok || string(v) != "longer-value" {
		t.Fatalf("Get(a) after overwrite = (%q, %v)", v, ok)
	}
	entries := m.Entries()
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Key >= entries[i].Key {
			t.Fatalf("Entries() not sorted after overwrite: %q before %q", entries[i-1].Key, entries[i].Key)
		}
	}
	if m.Size() == sizeBefore {
		t.Fatalf("Size() unchanged after overwriting with a longer value")
	}
}

func TestProjectedSizeDoesNotMutate(t *testing.T) {
	m := New()
	m.Insert("a", []byte("1"))
	before := m.Size()

	_ = m.ProjectedSize("b", []byte("22"))

	if m.Size() != before {
		t.Fatalf("ProjectedSize mutated Size(): got %d, want unchanged %d", m.Size(), before)
	}
	if _, ok := m.Get("b"); ok {
		t.Fatal("ProjectedSize inserted key b, it must not mutate the memtable")
	}
}

func TestProjectedSizeAccountsForExistingKeyReplacement(t *testing.T) {
	m := New()
	m.Insert("a", []byte("1"))
	sameLen := m.ProjectedSize("a", []byte("2"))
	if sameLen != m.Size() {
		t.Fatalf("ProjectedSize with same-length replacement = %d, want %d (size unchanged)", sameLen, m.Size())
	}
}

func TestSealPreventsInsert(t *testing.T) {
	m := New()
	m.Insert("a", []byte("1"))
	m.Seal()

	if !m.Sealed() {
		t.Fatal("Sealed() = false after Seal()")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("Insert on sealed memtable: want panic")
		}
	}()
	m.Insert("b", []byte("2"))
}
