package camera

import (
	"math"

	"github.com/alpinemaps/tilescheduler/internal/geom"
)

// LookAt builds a Camera from an eye position and a look-at target, the Go
// equivalent of constructing a Definition from a position/view_at_point pair
// and calling set_perspective_params — the pieces the embedding renderer
// normally assembles from its own camera controller, needed here only to
// drive RefineFunctor with real frustum/projection math in tests. Up is
// fixed to world +Z, matching this package's Web-Mercator-plus-altitude
// world space.
func LookAt(eye, target geom.Vec3, viewportWidth, viewportHeight int, fovYDegrees, near, far float64) Camera {
	up := geom.Vec3{0, 0, 1}
	forward := target.Sub(eye)
	forward = forward.Scale(1 / forward.Length())
	right := cross(forward, up)
	right = right.Scale(1 / right.Length())
	trueUp := cross(right, forward)

	view := Mat4{
		right[0], right[1], right[2], -dotVec3(right, eye),
		trueUp[0], trueUp[1], trueUp[2], -dotVec3(trueUp, eye),
		-forward[0], -forward[1], -forward[2], dotVec3(forward, eye),
		0, 0, 0, 1,
	}

	aspect := float64(viewportWidth) / float64(viewportHeight)
	f := 1 / math.Tan(fovYDegrees*math.Pi/180/2)
	proj := Mat4{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, (far + near) / (near - far), (2 * far * near) / (near - far),
		0, 0, -1, 0,
	}

	return Camera{
		Position:       eye,
		Right:          right,
		ViewProjection: proj.Mul(view),
		ViewportWidth:  viewportWidth,
		ViewportHeight: viewportHeight,
	}
}

// Mul returns m*o, both in row-major order.
func (m Mat4) Mul(o Mat4) Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m[r*4+k] * o[k*4+c]
			}
			out[r*4+c] = sum
		}
	}
	return out
}

func cross(a, b geom.Vec3) geom.Vec3 {
	return geom.Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func dotVec3(a, b geom.Vec3) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}
