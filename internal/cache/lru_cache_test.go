package cache

import (
	"testing"

	"github.com/SystemBuilders/LocKey/internal/rsrvid"
)

func Test_LRUCache(t *testing.T) {
	lru := NewLRUCache(3)

	one := rsrvid.RsrvId(1)
	two := rsrvid.RsrvId(2)
	three := rsrvid.RsrvId(3)
	four := rsrvid.RsrvId(4)

	var evicted []rsrvid.RsrvId
	lru.OnEvict(func(id rsrvid.RsrvId) { evicted = append(evicted, id) })

	for _, id := range []rsrvid.RsrvId{one, two, three} {
		if err := lru.Touch(id); err != nil {
			t.Fatal(err)
		}
	}
	if lru.Size() != 3 {
		t.Fatalf("want size 3, got %d", lru.Size())
	}

	// Re-touching one bumps it to MRU, leaving two as the LRU entry.
	if err := lru.Touch(one); err != nil {
		t.Fatal(err)
	}

	// Cache is full; inserting four must evict the LRU entry (two).
	if err := lru.Touch(four); err != nil {
		t.Fatal(err)
	}
	if len(evicted) != 1 || evicted[0] != two {
		t.Fatalf("want two evicted, got %v", evicted)
	}
	if lru.Contains(two) {
		t.Fatalf("two should have been evicted")
	}
	if !lru.Contains(one) || !lru.Contains(three) || !lru.Contains(four) {
		t.Fatalf("one, three, four should still be cached")
	}

	if err := lru.Remove(three); err != nil {
		t.Fatal(err)
	}
	if lru.Contains(three) {
		t.Fatalf("three should have been removed")
	}
	if lru.Size() != 2 {
		t.Fatalf("want size 2 after removal, got %d", lru.Size())
	}

	if err := lru.Remove(three); err != ErrElementDoesntExist {
		t.Fatalf("want ErrElementDoesntExist removing an absent key, got %v", err)
	}
}

func Test_LRUCache_ZeroCapacity(t *testing.T) {
	lru := NewLRUCache(0)
	if err := lru.Touch(rsrvid.RsrvId(1)); err != ErrCacheFull {
		t.Fatalf("want ErrCacheFull, got %v", err)
	}
}
