// Package tileid identifies tiles in the worldwide quadtree the scheduler
// streams against, and the small pieces of network-outcome bookkeeping that
// travel alongside them through the pipeline.
package tileid

import (
	"fmt"

	"github.com/paulmach/orb/maptile"
)

// Scheme selects the row-numbering convention for an ID's Y coordinate.
type Scheme uint8

const (
	// Tms numbers rows south-to-north (row 0 at the southern edge).
	Tms Scheme = iota
	// SlippyMap numbers rows north-to-south (row 0 at the northern edge),
	// the convention used by XYZ/Google/OSM style tile servers.
	SlippyMap
)

func (s Scheme) String() string {
	if s == Tms {
		return "tms"
	}
	return "slippy"
}

// MaxZoom is the deepest zoom level the quadtree refines to; RefineFunctor
// never subdivides past it.
const MaxZoom = 18

// ID identifies one tile: a zoom level and a pair of column/row coordinates
// interpreted under Scheme. Two IDs are equal (and hash equal when used as a
// map key) only if all three fields match — a Tms and a SlippyMap ID with
// the same zoom/x/y are distinct tiles.
type ID struct {
	Zoom   uint8
	X, Y   uint32
	Scheme Scheme
}

// New constructs an ID, defaulting to the SlippyMap scheme.
func New(zoom uint8, x, y uint32) ID {
	return ID{Zoom: zoom, X: x, Y: y, Scheme: SlippyMap}
}

// NewWithScheme constructs an ID under an explicit row scheme.
func NewWithScheme(zoom uint8, x, y uint32, scheme Scheme) ID {
	return ID{Zoom: zoom, X: x, Y: y, Scheme: scheme}
}

// String renders the ID as "z{zoom}_x{x}_y{y}", matching the on-disk quad
// file naming convention in internal/diskcache.
func (id ID) String() string {
	return fmt.Sprintf("z%d_x%d_y%d", id.Zoom, id.X, id.Y)
}

// Children returns the four tiles one zoom level deeper that this tile
// covers. Order is stable (NW, NE, SW, SE in the tile's own row scheme) but
// not otherwise semantically significant — QuadAssembler keys quads by
// parent ID, not by child position.
func (id ID) Children() [4]ID {
	z := id.Zoom + 1
	x0, y0 := id.X*2, id.Y*2
	return [4]ID{
		{Zoom: z, X: x0, Y: y0, Scheme: id.Scheme},
		{Zoom: z, X: x0 + 1, Y: y0, Scheme: id.Scheme},
		{Zoom: z, X: x0, Y: y0 + 1, Scheme: id.Scheme},
		{Zoom: z, X: x0 + 1, Y: y0 + 1, Scheme: id.Scheme},
	}
}

// Parent returns the tile one zoom level shallower that contains id, and
// false if id is already at zoom 0.
func (id ID) Parent() (ID, bool) {
	if id.Zoom == 0 {
		return ID{}, false
	}
	return ID{Zoom: id.Zoom - 1, X: id.X / 2, Y: id.Y / 2, Scheme: id.Scheme}, true
}

// FlippedY returns the row index under the opposite vertical convention at
// this ID's zoom level: y_out = 2^z - 1 - y. Used by TileLoadService for the
// *_yPointingSouth URL patterns.
func (id ID) FlippedY() uint32 {
	n := uint32(1) << id.Zoom
	return n - 1 - id.Y
}

// Maptile converts id to a github.com/paulmach/orb/maptile.Tile for bounds
// and projection math (AabbDecorator, RefineFunctor). orb/maptile always
// interprets Y as SlippyMap (row 0 north), so a Tms-scheme id has its row
// flipped first; the geographic tile addressed is the same either way, only
// the Scheme field differs.
func (id ID) Maptile() maptile.Tile {
	y := id.Y
	if id.Scheme == Tms {
		y = id.FlippedY()
	}
	return maptile.New(id.X, y, maptile.Zoom(id.Zoom))
}

// Status classifies the outcome of fetching one tile layer over HTTP.
type Status uint8

const (
	// Good means the fetch succeeded and data holds the response body.
	Good Status = iota
	// NotFound means the server returned 404 (or equivalent): the tile is
	// authoritatively absent and is not re-requested until retirement age.
	NotFound
	// NetworkError covers timeouts, DNS failures, connection resets, and
	// any other non-404 failure; it is eligible for retry on the very next
	// update cycle.
	NetworkError
)

func (s Status) String() string {
	switch s {
	case Good:
		return "good"
	case NotFound:
		return "not_found"
	case NetworkError:
		return "network_error"
	default:
		return "unknown"
	}
}

// severity orders statuses worst-first for Join.
func (s Status) severity() int {
	switch s {
	case NetworkError:
		return 2
	case NotFound:
		return 1
	default:
		return 0
	}
}

// NetworkInfo carries the outcome and timing of a fetch (or the join of
// several). TimestampMs is Unix milliseconds.
type NetworkInfo struct {
	Status      Status
	TimestampMs int64
}

// Join combines two NetworkInfo values the way a compound entity (a
// LayeredTile from its layers, a TileQuad from its tiles) must: the result
// status is the worse of the two, and the result timestamp is the older of
// the two, since a compound is only as fresh as its stalest component.
func Join(a, b NetworkInfo) NetworkInfo {
	status := a.Status
	if b.Status.severity() > a.Status.severity() {
		status = b.Status
	}
	ts := a.TimestampMs
	if b.TimestampMs < ts {
		ts = b.TimestampMs
	}
	return NetworkInfo{Status: status, TimestampMs: ts}
}

// JoinAll folds Join over a non-empty slice of NetworkInfo values.
func JoinAll(infos ...NetworkInfo) NetworkInfo {
	if len(infos) == 0 {
		return NetworkInfo{}
	}
	acc := infos[0]
	for _, n := range infos[1:] {
		acc = Join(acc, n)
	}
	return acc
}
