// Package camera defines the minimal read-only camera contract the
// scheduler consumes. The camera controller, interaction, and animation are
// explicitly out of scope (spec.md §1); this package only holds the
// snapshot handed to Scheduler.UpdateCamera and the frustum/projection math
// RefineFunctor needs from it.
package camera

import (
	"github.com/alpinemaps/tilescheduler/internal/geom"
)

// Mat4 is a 4x4 matrix in row-major order, m[row*4+col].
type Mat4 [16]float64

// MulPoint4 transforms a homogeneous point (x,y,z,1) by m, returning the
// resulting (x,y,z,w).
func (m Mat4) MulPoint4(p geom.Vec3) (x, y, z, w float64) {
	x = m[0]*p[0] + m[1]*p[1] + m[2]*p[2] + m[3]
	y = m[4]*p[0] + m[5]*p[1] + m[6]*p[2] + m[7]
	z = m[8]*p[0] + m[9]*p[1] + m[10]*p[2] + m[11]
	w = m[12]*p[0] + m[13]*p[1] + m[14]*p[2] + m[15]
	return
}

// Plane is ax+by+cz+d=0 with Normal=(a,b,c) pointing toward the half-space
// considered "inside" the frustum.
type Plane struct {
	Normal geom.Vec3
	D      float64
}

// SignedDistance returns the signed distance from p to the plane; positive
// means p is on the inside (kept) half-space.
func (pl Plane) SignedDistance(p geom.Vec3) float64 {
	return pl.Normal[0]*p[0] + pl.Normal[1]*p[1] + pl.Normal[2]*p[2] + pl.D
}

// Camera is the immutable snapshot the embedding application passes to
// Scheduler.UpdateCamera. Position and ViewProjection are in the same world
// space as geom.Aabb (Web-Mercator-projected meters, consistent with
// AabbDecorator).
type Camera struct {
	Position                      geom.Vec3
	Right                         geom.Vec3 // unit-length world-space right axis
	ViewProjection                Mat4
	ViewportWidth, ViewportHeight int
}

// FourClippingPlanes extracts the left/right/top/bottom frustum planes from
// the view-projection matrix (Gribb–Hartmann plane extraction), deliberately
// omitting near/far: RefineFunctor clips tile AABBs only against the four
// side planes, because near/far planes are adjusted from already-loaded
// geometry and using them here would create a chicken-and-egg deadlock
// where nothing ever loads because nothing has loaded yet.
func (c Camera) FourClippingPlanes() [4]Plane {
	m := c.ViewProjection
	row := func(i int) (float64, float64, float64, float64) {
		return m[i*4+0], m[i*4+1], m[i*4+2], m[i*4+3]
	}
	r0a, r0b, r0c, r0d := row(0)
	r1a, r1b, r1c, r1d := row(1)
	r3a, r3b, r3c, r3d := row(3)

	left := normalizePlane(Plane{geom.Vec3{r3a + r0a, r3b + r0b, r3c + r0c}, r3d + r0d})
	right := normalizePlane(Plane{geom.Vec3{r3a - r0a, r3b - r0b, r3c - r0c}, r3d - r0d})
	bottom := normalizePlane(Plane{geom.Vec3{r3a + r1a, r3b + r1b, r3c + r1c}, r3d + r1d})
	top := normalizePlane(Plane{geom.Vec3{r3a - r1a, r3b - r1b, r3c - r1c}, r3d - r1d})

	return [4]Plane{left, right, top, bottom}
}

func normalizePlane(p Plane) Plane {
	l := p.Normal.Length()
	if l == 0 {
		return p
	}
	return Plane{Normal: p.Normal.Scale(1 / l), D: p.D / l}
}

// FrustumIntersectsAabb reports whether box has any region inside all four
// side planes, using the standard positive-vertex test: for each plane,
// pick the box corner furthest along the plane normal and reject if even
// that corner is outside.
func FrustumIntersectsAabb(planes [4]Plane, box geom.Aabb) bool {
	for _, pl := range planes {
		p := box.Min
		if pl.Normal[0] >= 0 {
			p[0] = box.Max[0]
		}
		if pl.Normal[1] >= 0 {
			p[1] = box.Max[1]
		}
		if pl.Normal[2] >= 0 {
			p[2] = box.Max[2]
		}
		if pl.SignedDistance(p) < 0 {
			return false
		}
	}
	return true
}

// Project transforms a world-space point through the camera's
// view-projection matrix and performs the perspective divide, returning
// normalized device coordinates. ok is false if w is degenerate (point
// behind the eye).
func (c Camera) Project(p geom.Vec3) (ndcX, ndcY float64, ok bool) {
	x, y, _, w := c.ViewProjection.MulPoint4(p)
	if w <= 0 {
		return 0, 0, false
	}
	return x / w, y / w, true
}
