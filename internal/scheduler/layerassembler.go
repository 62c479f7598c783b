package scheduler

import (
	"sync"

	"github.com/alpinemaps/tilescheduler/internal/tileid"
)

type pendingTile struct {
	ortho, height, vector TileLayer
	haveOrtho, haveHeight, haveVector bool
}

// LayerAssembler joins a tile's per-layer HTTP responses (ortho + height,
// optionally + vector) into one LayeredTile (spec.md §4.3). Which layers
// are required is configurable per instance via VectorEnabled, rather than
// hardcoded to always wait on a vector response: the original renderer's
// assembler always waited on all three maps, which deadlocks a tile forever
// when vector tiles are disabled for a deployment, since no vector response
// would ever arrive to complete it.
type LayerAssembler struct {
	VectorEnabled bool
	OnRequestLayer func(tileid.ID, Layer)
	OnTileReady    func(LayeredTile)

	mu    sync.Mutex
	tiles map[tileid.ID]*pendingTile
}

// NewLayerAssembler builds a LayerAssembler requiring ortho+height, and
// additionally vector when vectorEnabled is true.
func NewLayerAssembler(vectorEnabled bool) *LayerAssembler {
	return &LayerAssembler{
		VectorEnabled: vectorEnabled,
		tiles:         make(map[tileid.ID]*pendingTile),
	}
}

// Load begins assembling id's layers: it records an empty entry and
// requests each configured layer.
func (a *LayerAssembler) Load(id tileid.ID) {
	a.mu.Lock()
	a.tiles[id] = &pendingTile{}
	a.mu.Unlock()

	if a.OnRequestLayer == nil {
		return
	}
	a.OnRequestLayer(id, Ortho)
	a.OnRequestLayer(id, Height)
	if a.VectorEnabled {
		a.OnRequestLayer(id, Vector)
	}
}

// DeliverLayer stores one layer response; once every configured layer for
// tl.ID has arrived, the joined LayeredTile is emitted and the pending
// entry is dropped.
func (a *LayerAssembler) DeliverLayer(tl TileLayer) {
	a.mu.Lock()
	pt, ok := a.tiles[tl.ID]
	if !ok {
		a.mu.Unlock()
		return
	}

	switch tl.Layer {
	case Ortho:
		pt.ortho, pt.haveOrtho = tl, true
	case Height:
		pt.height, pt.haveHeight = tl, true
	case Vector:
		pt.vector, pt.haveVector = tl, true
	}

	complete := pt.haveOrtho && pt.haveHeight && (!a.VectorEnabled || pt.haveVector)

	var ready *LayeredTile
	if complete {
		lt := a.joinLocked(tl.ID, pt)
		ready = &lt
		delete(a.tiles, tl.ID)
	}
	a.mu.Unlock()

	if ready != nil && a.OnTileReady != nil {
		a.OnTileReady(*ready)
	}
}

// joinLocked applies the §3 join rule: severity-max status, minimum
// timestamp, payloads zeroed unless every constituent is Good. Must be
// called with mu held.
func (a *LayerAssembler) joinLocked(id tileid.ID, pt *pendingTile) LayeredTile {
	infos := []tileid.NetworkInfo{pt.ortho.Info, pt.height.Info}
	if a.VectorEnabled {
		infos = append(infos, pt.vector.Info)
	}
	joined := tileid.JoinAll(infos...)

	lt := LayeredTile{ID: id, Info: joined, HasVector: a.VectorEnabled}
	if joined.Status == tileid.Good {
		lt.Ortho = pt.ortho.Data
		lt.HeightRaw = pt.height.Data
		if a.VectorEnabled {
			lt.Vector = pt.vector.Data
		}
	}
	return lt
}

// Pending reports how many tiles are currently being assembled.
func (a *LayerAssembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tiles)
}
