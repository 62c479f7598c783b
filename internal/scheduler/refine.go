package scheduler

import (
	"math"

	"github.com/alpinemaps/tilescheduler/internal/camera"
	"github.com/alpinemaps/tilescheduler/internal/geom"
	"github.com/alpinemaps/tilescheduler/internal/tileid"
)

// DefaultScreenSpaceErrorPx is the default RefineFunctor threshold: a tile
// is subdivided once its expected on-screen error would exceed this many
// pixels.
const DefaultScreenSpaceErrorPx = 2.0

// DefaultTileSize is the pixel width/height an orthophoto/height tile
// texture is assumed to cover, used to scale the screen-space-error
// estimate in RefineFunctor.
const DefaultTileSize = 256.0

// RefineFunctor decides, for a camera and a precomputed height pyramid,
// whether a given tile needs to be subdivided further (spec.md §4.1).
type RefineFunctor struct {
	Camera           camera.Camera
	Aabb             *geom.AabbDecorator
	ErrorThresholdPx float64
	TileSizePx       float64
}

// NewRefineFunctor builds a RefineFunctor with the spec's default threshold
// and tile size.
func NewRefineFunctor(cam camera.Camera, aabb *geom.AabbDecorator) RefineFunctor {
	return RefineFunctor{
		Camera:           cam,
		Aabb:             aabb,
		ErrorThresholdPx: DefaultScreenSpaceErrorPx,
		TileSizePx:       DefaultTileSize,
	}
}

// Refine reports whether id must be subdivided: false ends recursion for
// this branch of the quadtree (id is a wanted leaf, or outside the view).
func (r RefineFunctor) Refine(id tileid.ID) bool {
	if id.Zoom >= tileid.MaxZoom {
		return false
	}

	box := r.Aabb.Aabb(id)

	planes := r.Camera.FourClippingPlanes()
	if !camera.FrustumIntersectsAabb(planes, box) {
		return false
	}

	nearest := box.NearestVertexTo(r.Camera.Position)

	aabbWidth := box.Size()[0]
	offset := r.Camera.Right
	if offset == (geom.Vec3{}) {
		offset = geom.Vec3{1, 0, 0}
	}
	other := nearest.Add(offset.Scale(aabbWidth / r.TileSizePx))

	x0, y0, ok0 := r.Camera.Project(nearest)
	x1, y1, ok1 := r.Camera.Project(other)
	if !ok0 || !ok1 {
		// Behind the eye: treat conservatively as needing refinement so we
		// don't starve tiles the camera is about to turn toward.
		return true
	}

	clipSpaceDiff := math.Hypot(x1-x0, y1-y0)
	pixelError := clipSpaceDiff * 0.5 * float64(r.Camera.ViewportWidth)

	return pixelError > r.ErrorThresholdPx
}

// QuadtreeTraverse walks the quadtree from root, calling refine at each
// node. Every node for which refine returns true is an "inner" node — one
// whose four children are wanted — and is added to the result; its
// children are then visited in turn. Nodes where refine returns false are
// leaves of the traversal and are not added (they are not independently
// fetchable; only their parent inner node is). The returned set is exactly
// what spec.md §4.1 calls "the parents of all leaves."
func QuadtreeTraverse(root tileid.ID, refine func(tileid.ID) bool) []tileid.ID {
	var inner []tileid.ID
	var visit func(id tileid.ID)
	visit = func(id tileid.ID) {
		if !refine(id) {
			return
		}
		inner = append(inner, id)
		for _, c := range id.Children() {
			visit(c)
		}
	}
	visit(root)
	return inner
}
