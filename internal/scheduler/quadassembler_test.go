package scheduler

import (
	"testing"

	"github.com/alpinemaps/tilescheduler/internal/tileid"
)

func TestQuadAssemblerRequestsAllFourChildren(t *testing.T) {
	parent := tileid.New(1, 2, 2)
	var requested []tileid.ID
	a := NewQuadAssembler()
	a.OnRequestTile = func(id tileid.ID) { requested = append(requested, id) }

	a.Load(parent)

	if len(requested) != 4 {
		t.Fatalf("expected 4 child requests, got %d", len(requested))
	}
	if a.Pending() != 1 {
		t.Fatalf("expected 1 pending quad, got %d", a.Pending())
	}
}

func TestQuadAssemblerEmitsOnceAllFourArrive(t *testing.T) {
	parent := tileid.New(1, 2, 2)
	var ready []TileQuad
	a := NewQuadAssembler()
	a.OnQuadReady = func(q TileQuad) { ready = append(ready, q) }
	a.Load(parent)

	children := parent.Children()
	for i, c := range children {
		if len(ready) != 0 {
			t.Fatalf("quad emitted early after %d deliveries", i)
		}
		a.DeliverTile(LayeredTile{ID: c})
	}

	if len(ready) != 1 {
		t.Fatalf("expected exactly one ready quad, got %d", len(ready))
	}
	if ready[0].ID != parent || ready[0].NTiles != 4 {
		t.Fatalf("unexpected quad: %+v", ready[0])
	}
	if a.Pending() != 0 {
		t.Fatalf("expected pending quad to be cleared, got %d", a.Pending())
	}
}

func TestQuadAssemblerFillsPositionalSlotRegardlessOfDeliveryOrder(t *testing.T) {
	parent := tileid.New(1, 2, 2)
	var ready TileQuad
	a := NewQuadAssembler()
	a.OnQuadReady = func(q TileQuad) { ready = q }
	a.Load(parent)

	children := parent.Children()
	// Deliver in reverse order.
	for i := len(children) - 1; i >= 0; i-- {
		a.DeliverTile(LayeredTile{ID: children[i]})
	}

	for i, c := range children {
		if ready.Tiles[i].ID != c {
			t.Fatalf("slot %d: expected %v, got %v", i, c, ready.Tiles[i].ID)
		}
	}
}

func TestQuadAssemblerIgnoresDeliveryWithNoPendingParent(t *testing.T) {
	a := NewQuadAssembler()
	called := false
	a.OnQuadReady = func(q TileQuad) { called = true }

	// No Load() was ever called for this tile's parent.
	a.DeliverTile(LayeredTile{ID: tileid.New(2, 0, 0)})

	if called {
		t.Fatal("expected no quad to be emitted for an untracked delivery")
	}
}
