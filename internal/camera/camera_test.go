package camera

import (
	"testing"

	"github.com/alpinemaps/tilescheduler/internal/geom"
)

func identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

func TestFourClippingPlanesIdentityIsUnitNdcCube(t *testing.T) {
	c := Camera{ViewProjection: identity()}
	planes := c.FourClippingPlanes()

	inside := geom.Vec3{0.5, 0.5, 0}
	for _, pl := range planes {
		if pl.SignedDistance(inside) < 0 {
			t.Errorf("expected origin-ish point inside unit NDC cube, plane %+v gave negative distance", pl)
		}
	}

	outside := geom.Vec3{2, 0, 0}
	anyNegative := false
	for _, pl := range planes {
		if pl.SignedDistance(outside) < 0 {
			anyNegative = true
		}
	}
	if !anyNegative {
		t.Error("expected point at x=2 to fall outside the unit NDC cube")
	}
}

func TestFrustumIntersectsAabb(t *testing.T) {
	c := Camera{ViewProjection: identity()}
	planes := c.FourClippingPlanes()

	inBox := geom.Aabb{Min: geom.Vec3{-0.5, -0.5, -0.5}, Max: geom.Vec3{0.5, 0.5, 0.5}}
	if !FrustumIntersectsAabb(planes, inBox) {
		t.Error("expected box spanning the origin to intersect the frustum")
	}

	outBox := geom.Aabb{Min: geom.Vec3{10, 10, 10}, Max: geom.Vec3{20, 20, 20}}
	if FrustumIntersectsAabb(planes, outBox) {
		t.Error("expected far-away box to miss the frustum")
	}
}

func TestProject(t *testing.T) {
	c := Camera{ViewProjection: identity()}

	x, y, ok := c.Project(geom.Vec3{0.25, -0.25, 5})
	if !ok {
		t.Fatal("expected ok=true for a point with w=1")
	}
	if x != 0.25 || y != -0.25 {
		t.Errorf("Project() = (%v,%v), want (0.25,-0.25)", x, y)
	}
}

func TestProjectRejectsZeroW(t *testing.T) {
	degenerate := Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 0,
	}
	c := Camera{ViewProjection: degenerate}

	_, _, ok := c.Project(geom.Vec3{1, 1, 1})
	if ok {
		t.Error("expected ok=false when w evaluates to zero")
	}
}
