package geom

import (
	"fmt"
	"math"

	"github.com/alpinemaps/tilescheduler/internal/tileid"
	"github.com/paulmach/orb"
)

// HeightPyramid holds, per zoom level, a coarse min/max elevation grid
// covering the whole world — the same role the precomputed height pyramid
// plays in the original renderer's AabbDecorator: a way to bound a tile's
// vertical extent before any of its actual height data has been fetched.
//
// Each level is a flat row-major grid of cells, one cell per tile at that
// zoom level; a cell holds the [min,max] elevation observed (or configured)
// for that tile's footprint, in meters.
type HeightPyramid struct {
	levels map[uint8]pyramidLevel
	// DefaultMin/DefaultMax bound elevation for any tile that no populated
	// level at or above its zoom covers (e.g. a zoom shallower than the
	// coarsest level). A zoom deeper than any level was built for is not
	// such a tile: it reuses the nearest shallower level's bounds.
	DefaultMin, DefaultMax float64
}

type pyramidLevel struct {
	zoom       uint8
	cellsWide  uint32
	min, max   []float32 // len == cellsWide*cellsWide
}

// NewHeightPyramid creates an empty pyramid; use SetLevel to populate zoom
// levels, typically once at startup from a baked asset.
func NewHeightPyramid(defaultMin, defaultMax float64) *HeightPyramid {
	return &HeightPyramid{
		levels:     make(map[uint8]pyramidLevel),
		DefaultMin: defaultMin,
		DefaultMax: defaultMax,
	}
}

// SetLevel installs min/max elevation grids for one zoom level. min and max
// must each have cellsWide*cellsWide entries.
func (p *HeightPyramid) SetLevel(zoom uint8, cellsWide uint32, min, max []float32) error {
	n := int(cellsWide) * int(cellsWide)
	if len(min) != n || len(max) != n {
		return fmt.Errorf("geom: level %d expects %d cells, got min=%d max=%d", zoom, n, len(min), len(max))
	}
	p.levels[zoom] = pyramidLevel{zoom: zoom, cellsWide: cellsWide, min: min, max: max}
	return nil
}

// Bounds returns the [minElevation, maxElevation] this pyramid reports for
// the tile's footprint, falling back to the nearest shallower populated
// level (and finally to DefaultMin/DefaultMax) when the requested zoom was
// never baked.
func (p *HeightPyramid) Bounds(id tileid.ID) (min, max float64) {
	for z := id.Zoom; ; {
		if lvl, ok := p.levels[z]; ok {
			shift := id.Zoom - z
			cx, cy := id.X>>shift, id.Y>>shift
			idx := cy*lvl.cellsWide + cx
			if int(idx) < len(lvl.min) {
				return float64(lvl.min[idx]), float64(lvl.max[idx])
			}
		}
		if z == 0 {
			break
		}
		z--
	}
	return p.DefaultMin, p.DefaultMax
}

// AabbDecorator maps a tileid.ID to its world-space 3D bounding box: the
// horizontal footprint comes from the tile's Web Mercator bounds, the
// vertical extent from the HeightPyramid. This is the Go equivalent of the
// original renderer's AabbDecorator, wrapping a TileHeights pyramid.
type AabbDecorator struct {
	Pyramid *HeightPyramid
}

// NewAabbDecorator builds a decorator over the given pyramid.
func NewAabbDecorator(pyramid *HeightPyramid) *AabbDecorator {
	return &AabbDecorator{Pyramid: pyramid}
}

// Aabb computes the 3D bounding box for id. Horizontal extent is the tile's
// Web Mercator bound projected onto the X/Y plane (meters); vertical extent
// (Z) is the pyramid's reported min/max elevation for the tile.
func (d *AabbDecorator) Aabb(id tileid.ID) Aabb {
	bound := webMercatorBound(id)
	minH, maxH := d.Pyramid.Bounds(id)
	return Aabb{
		Min: Vec3{bound.Min.X(), bound.Min.Y(), minH},
		Max: Vec3{bound.Max.X(), bound.Max.Y(), maxH},
	}
}

// earthRadius is the Web Mercator sphere radius in meters (EPSG:3857).
const earthRadius = 6378137.0

// webMercatorBound projects id's geographic (lon/lat) bound into Web
// Mercator meters, via id.Maptile() which already accounts for id.Scheme.
func webMercatorBound(id tileid.ID) orb.Bound {
	geoBound := id.Maptile().Bound()
	return orb.Bound{
		Min: lonLatToMercator(geoBound.Min),
		Max: lonLatToMercator(geoBound.Max),
	}
}

func lonLatToMercator(p orb.Point) orb.Point {
	const degToRad = math.Pi / 180.0
	x := earthRadius * p.X() * degToRad
	latRad := p.Y() * degToRad
	y := earthRadius * math.Log(math.Tan(math.Pi/4.0+latRad/2.0))
	return orb.Point{x, y}
}

// LonLatAltToWorld converts a geographic position into this package's world
// space: Web Mercator X/Y in meters, with altitude passed through unchanged
// as Z. This is the same space AabbDecorator.Aabb and camera.Camera operate
// in, so a camera built from real lon/lat/alt positions clips correctly
// against tile AABBs without any further conversion.
func LonLatAltToWorld(lon, lat, alt float64) Vec3 {
	p := lonLatToMercator(orb.Point{lon, lat})
	return Vec3{p.X(), p.Y(), alt}
}
