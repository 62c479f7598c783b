package cache

import (
	"testing"

	"github.com/alpinemaps/tilescheduler/internal/tileid"
)

type tileEntry struct {
	id  tileid.ID
	tag string
}

func (t tileEntry) TileID() tileid.ID { return t.id }

func TestCacheInsertAndPeek(t *testing.T) {
	c := New[tileEntry]()
	id := tileid.New(1, 0, 0)
	c.Insert(tileEntry{id: id, tag: "a"})

	v, ok := c.PeekAt(id)
	if !ok || v.tag != "a" {
		t.Fatalf("expected to find inserted entry, got %v, %v", v, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("expected length 1, got %d", c.Len())
	}
}

func TestCacheInsertReplacesAndMovesToFront(t *testing.T) {
	c := New[tileEntry]()
	a := tileid.New(1, 0, 0)
	b := tileid.New(1, 1, 0)
	c.Insert(tileEntry{id: a, tag: "a1"})
	c.Insert(tileEntry{id: b, tag: "b1"})
	c.Insert(tileEntry{id: a, tag: "a2"})

	var order []string
	c.Visit(func(e tileEntry) bool {
		order = append(order, e.tag)
		return true
	})
	if len(order) != 2 || order[0] != "a2" || order[1] != "b1" {
		t.Fatalf("expected [a2 b1] most-recent-first, got %v", order)
	}
}

func TestCacheTouchPromotesRecencyWithoutChangingValue(t *testing.T) {
	c := New[tileEntry]()
	a := tileid.New(1, 0, 0)
	b := tileid.New(1, 1, 0)
	c.Insert(tileEntry{id: a, tag: "a"})
	c.Insert(tileEntry{id: b, tag: "b"})

	if !c.Touch(a) {
		t.Fatal("expected Touch to find a")
	}

	var order []tileid.ID
	c.Visit(func(e tileEntry) bool {
		order = append(order, e.id)
		return true
	})
	if order[0] != a {
		t.Fatalf("expected a promoted to front, got order %v", order)
	}

	v, _ := c.PeekAt(a)
	if v.tag != "a" {
		t.Fatal("Touch must not alter the stored value")
	}
}

func TestCacheTouchReportsMissingEntry(t *testing.T) {
	c := New[tileEntry]()
	if c.Touch(tileid.New(5, 5, 5)) {
		t.Fatal("expected Touch on missing id to return false")
	}
}

func TestCacheRemove(t *testing.T) {
	c := New[tileEntry]()
	id := tileid.New(1, 0, 0)
	c.Insert(tileEntry{id: id})
	c.Remove(id)

	if c.Contains(id) {
		t.Fatal("expected entry to be gone after Remove")
	}
	if c.Len() != 0 {
		t.Fatalf("expected length 0, got %d", c.Len())
	}
}

func TestCachePurgeDropsLeastRecentlyTouched(t *testing.T) {
	c := New[tileEntry]()
	ids := []tileid.ID{
		tileid.New(1, 0, 0),
		tileid.New(1, 1, 0),
		tileid.New(1, 2, 0),
	}
	for _, id := range ids {
		c.Insert(tileEntry{id: id})
	}

	removed := c.Purge(2)
	if len(removed) != 1 || removed[0] != ids[0] {
		t.Fatalf("expected oldest entry (%v) purged, got %v", ids[0], removed)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 remaining, got %d", c.Len())
	}
}

func TestCacheVisitStopsEarly(t *testing.T) {
	c := New[tileEntry]()
	for i := 0; i < 5; i++ {
		c.Insert(tileEntry{id: tileid.New(1, uint32(i), 0)})
	}

	count := 0
	c.Visit(func(e tileEntry) bool {
		count++
		return count < 2
	})
	if count != 2 {
		t.Fatalf("expected Visit to stop after 2 entries, got %d", count)
	}
}
