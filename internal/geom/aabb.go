// Package geom provides the minimal 3D bounding-box and height-pyramid math
// the scheduler needs to decide, without ever touching rendered pixels,
// whether a tile is close enough to the camera to require subdivision.
package geom

import "math"

// Vec3 is a plain 3D point or vector; the scheduler only ever adds,
// subtracts, and scales these, so no larger linear-algebra dependency is
// pulled in for it.
type Vec3 [3]float64

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

func (v Vec3) Length() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Aabb is an axis-aligned bounding box in world space: Web Mercator X/Y in
// meters, with altitude in meters as Z.
type Aabb struct {
	Min, Max Vec3
}

// Center returns the midpoint of the box.
func (b Aabb) Center() Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Size returns the per-axis extent of the box.
func (b Aabb) Size() Vec3 {
	return b.Max.Sub(b.Min)
}

// Vertices returns all eight corners of the box.
func (b Aabb) Vertices() [8]Vec3 {
	return [8]Vec3{
		{b.Min[0], b.Min[1], b.Min[2]},
		{b.Max[0], b.Min[1], b.Min[2]},
		{b.Min[0], b.Max[1], b.Min[2]},
		{b.Max[0], b.Max[1], b.Min[2]},
		{b.Min[0], b.Min[1], b.Max[2]},
		{b.Max[0], b.Min[1], b.Max[2]},
		{b.Min[0], b.Max[1], b.Max[2]},
		{b.Max[0], b.Max[1], b.Max[2]},
	}
}

// NearestVertexTo returns the corner of b closest to p — used by
// RefineFunctor to find the point where screen-space error is largest.
func (b Aabb) NearestVertexTo(p Vec3) Vec3 {
	verts := b.Vertices()
	best := verts[0]
	bestDist := best.Sub(p).Length()
	for _, v := range verts[1:] {
		if d := v.Sub(p).Length(); d < bestDist {
			best, bestDist = v, d
		}
	}
	return best
}

// Empty reports whether the box has inverted (or degenerate-to-negative)
// extent on any axis. RefineFunctor does not call it; its frustum test is
// camera.FrustumIntersectsAabb.
func (b Aabb) Empty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}
