package geom

import (
	"testing"

	"github.com/alpinemaps/tilescheduler/internal/tileid"
)

func TestAabbSizeAndCenter(t *testing.T) {
	b := Aabb{Min: Vec3{0, 0, 0}, Max: Vec3{10, 20, 30}}
	if got := b.Size(); got != (Vec3{10, 20, 30}) {
		t.Errorf("Size() = %v, want {10 20 30}", got)
	}
	if got := b.Center(); got != (Vec3{5, 10, 15}) {
		t.Errorf("Center() = %v, want {5 10 15}", got)
	}
}

func TestAabbNearestVertexTo(t *testing.T) {
	b := Aabb{Min: Vec3{0, 0, 0}, Max: Vec3{10, 10, 10}}
	got := b.NearestVertexTo(Vec3{-5, -5, -5})
	want := Vec3{0, 0, 0}
	if got != want {
		t.Errorf("NearestVertexTo() = %v, want %v", got, want)
	}
	got = b.NearestVertexTo(Vec3{15, 15, 15})
	want = Vec3{10, 10, 10}
	if got != want {
		t.Errorf("NearestVertexTo() = %v, want %v", got, want)
	}
}

func TestAabbEmpty(t *testing.T) {
	if (Aabb{Min: Vec3{0, 0, 0}, Max: Vec3{1, 1, 1}}).Empty() {
		t.Error("expected non-empty box to report Empty() == false")
	}
	if !(Aabb{Min: Vec3{1, 0, 0}, Max: Vec3{0, 1, 1}}).Empty() {
		t.Error("expected inverted box to report Empty() == true")
	}
}

func TestHeightPyramidBoundsFallsBackToShallowerLevel(t *testing.T) {
	p := NewHeightPyramid(100, 200)
	if err := p.SetLevel(2, 4, make([]float32, 16), make([]float32, 16)); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	for i := range p.levels[2].min {
		p.levels[2].min[i] = 10
		p.levels[2].max[i] = 20
	}

	// Zoom 5 was never baked; should fall back to zoom 2's values.
	min, max := p.Bounds(tileid.New(5, 3, 3))
	if min != 10 || max != 20 {
		t.Errorf("Bounds() = (%v,%v), want (10,20)", min, max)
	}

	// Zoom 0 was never baked and has no shallower level; falls back to
	// defaults.
	min, max = p.Bounds(tileid.New(0, 0, 0))
	if min != 100 || max != 200 {
		t.Errorf("Bounds() = (%v,%v), want (100,200)", min, max)
	}
}
