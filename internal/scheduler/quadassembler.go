package scheduler

import (
	"sync"

	"github.com/alpinemaps/tilescheduler/internal/tileid"
)

type pendingQuad struct {
	childIDs [4]tileid.ID
	tiles    [4]LayeredTile
	filled   [4]bool
	count    int
}

// QuadAssembler fans one requested parent ID out into four child-tile
// requests, and joins the four LayeredTile deliveries back into one
// TileQuad keyed by the parent id (spec.md §4.4). Sibling fill order inside
// a quad is positional (matching Children()'s stable NW/NE/SW/SE order),
// not delivery order, so assembly is deterministic across runs even though
// deliveries themselves may arrive in any order.
type QuadAssembler struct {
	OnRequestTile func(tileid.ID)
	OnQuadReady   func(TileQuad)

	mu    sync.Mutex
	quads map[tileid.ID]*pendingQuad
}

// NewQuadAssembler builds an empty QuadAssembler.
func NewQuadAssembler() *QuadAssembler {
	return &QuadAssembler{quads: make(map[tileid.ID]*pendingQuad)}
}

// Load begins assembling the quad for parentID: it records an empty quad
// and requests each of parentID's four children.
func (a *QuadAssembler) Load(parentID tileid.ID) {
	children := parentID.Children()

	a.mu.Lock()
	a.quads[parentID] = &pendingQuad{childIDs: children}
	a.mu.Unlock()

	if a.OnRequestTile != nil {
		for _, c := range children {
			a.OnRequestTile(c)
		}
	}
}

// DeliverTile fills the slot matching lt.ID in its parent's pending quad.
// Once all four slots are filled, the completed TileQuad is emitted and the
// pending record is dropped. A delivery for an ID whose parent has no
// pending record (already completed, or never requested) is ignored — per
// spec.md §7 this is pipeline misuse, harmless to discard.
func (a *QuadAssembler) DeliverTile(lt LayeredTile) {
	parentID, ok := lt.ID.Parent()
	if !ok {
		return
	}

	a.mu.Lock()
	pq, ok := a.quads[parentID]
	if !ok {
		a.mu.Unlock()
		return
	}

	slot := -1
	for i, cid := range pq.childIDs {
		if cid == lt.ID {
			slot = i
			break
		}
	}
	if slot == -1 {
		a.mu.Unlock()
		return
	}

	if !pq.filled[slot] {
		pq.filled[slot] = true
		pq.tiles[slot] = lt
		pq.count++
	} else {
		pq.tiles[slot] = lt
	}

	var ready *TileQuad
	if pq.count == len(pq.childIDs) {
		q := TileQuad{ID: parentID, NTiles: pq.count, Tiles: pq.tiles}
		ready = &q
		delete(a.quads, parentID)
	}
	a.mu.Unlock()

	if ready != nil && a.OnQuadReady != nil {
		a.OnQuadReady(*ready)
	}
}

// Pending reports how many quads are currently being assembled; used by
// tests.
func (a *QuadAssembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.quads)
}
