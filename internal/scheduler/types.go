package scheduler

import "github.com/alpinemaps/tilescheduler/internal/tileid"

// Layer identifies which per-tile payload a TileLayer carries.
type Layer uint8

const (
	Ortho Layer = iota
	Height
	Vector
)

func (l Layer) String() string {
	switch l {
	case Ortho:
		return "ortho"
	case Height:
		return "height"
	case Vector:
		return "vector"
	default:
		return "unknown"
	}
}

// TileLayer is the unit TileLoadService produces: one layer of one tile.
// Data is empty whenever Info.Status is not Good (spec.md §3).
type TileLayer struct {
	ID    tileid.ID
	Layer Layer
	Info  tileid.NetworkInfo
	Data  []byte
}

// LayeredTile is the join of a tile's configured layers (ortho + height,
// optionally + vector) produced by LayerAssembler. If any constituent layer
// is non-Good, all payloads are empty and Info carries the joined status;
// otherwise Ortho/Height/(Vector) hold the raw HTTP bodies.
type LayeredTile struct {
	ID        tileid.ID
	Info      tileid.NetworkInfo
	Ortho     []byte
	HeightRaw []byte
	Vector    []byte
	HasVector bool
}

// TileID implements cache.NamedTile.
func (t LayeredTile) TileID() tileid.ID { return t.ID }

// TileQuad joins four sibling LayeredTiles under their shared parent ID.
// NTiles is normally 4, but may be fewer at the deepest zoom level where a
// parent has fewer on-grid children (edge of the configured quadtree).
type TileQuad struct {
	ID     tileid.ID // parent id
	NTiles int
	Tiles  [4]LayeredTile
}

// TileID implements cache.NamedTile.
func (q TileQuad) TileID() tileid.ID { return q.ID }

// NetworkInfo is the join of this quad's constituent tiles (spec.md §3).
func (q TileQuad) NetworkInfo() tileid.NetworkInfo {
	infos := make([]tileid.NetworkInfo, 0, q.NTiles)
	for i := 0; i < q.NTiles; i++ {
		infos = append(infos, q.Tiles[i].Info)
	}
	return tileid.JoinAll(infos...)
}

// GpuCacheInfo mirrors what the GPU consumer currently holds — the
// Scheduler's gpu_cache_info tier only needs the identity, not the payload.
type GpuCacheInfo struct {
	ID tileid.ID
}

// TileID implements cache.NamedTile.
func (g GpuCacheInfo) TileID() tileid.ID { return g.ID }

// SrsAndHeightBounds is computed at GPU-publish time from a tile's ID and
// the AabbDecorator: the geographic/projected bound plus the elevation
// range the GPU consumer needs to place its mesh (spec.md §4.7 "GPU
// unpacking").
type SrsAndHeightBounds struct {
	MinLon, MinLat, MaxLon, MaxLat float64
	MinHeight, MaxHeight           float64
}

// GpuLayeredTile is a LayeredTile unpacked for GPU consumption: missing
// layers have already been replaced by configured defaults, so every field
// is guaranteed non-empty.
type GpuLayeredTile struct {
	ID     tileid.ID
	Bounds SrsAndHeightBounds
	Ortho  []byte
	Height []byte
}

// GpuTileQuad is the GPU-consumer-facing counterpart of TileQuad.
type GpuTileQuad struct {
	ID     tileid.ID
	NTiles int
	Tiles  [4]GpuLayeredTile
}

// TileID implements cache.NamedTile.
func (q GpuTileQuad) TileID() tileid.ID { return q.ID }
