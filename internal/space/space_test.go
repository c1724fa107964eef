package space

import (
	"math"
	"testing"
)

func TestNearestImageFoldsPeriodicAxes(t *testing.T) {
	b, err := NewCubicBoundary(3, 10)
	if err != nil {
		t.Fatalf("new boundary: %v", err)
	}
	dr := Vector{9, -6, 4}
	b.NearestImage(dr)
	want := Vector{-1, 4, 4}
	if !dr.Equal(want) {
		t.Fatalf("unexpected nearest image: got=%v want=%v", dr, want)
	}
	if got := b.Volume(); got != 1000 {
		t.Fatalf("unexpected volume: got=%f want=1000", got)
	}
}

func TestImageShiftReturnsPointToCell(t *testing.T) {
	b, err := NewCubicBoundary(3, 10)
	if err != nil {
		t.Fatalf("new boundary: %v", err)
	}
	r := Vector{5.2, -17, 3}
	shift := b.ImageShift(r)
	if want := (Vector{-10, 20, 0}); !shift.Equal(want) {
		t.Fatalf("unexpected shift: got=%v want=%v", shift, want)
	}

	open := NewOpenBoundary(2)
	if shift := open.ImageShift(Vector{1e6, -1e6}); !shift.Equal(Vector{0, 0}) {
		t.Fatalf("open boundary shifted a point: %v", shift)
	}
}

func TestOpenBoundaryHasNoImagesAndInfiniteVolume(t *testing.T) {
	b := NewOpenBoundary(3)
	dr := Vector{50, -70, 3}
	b.NearestImage(dr)
	if !dr.Equal(Vector{50, -70, 3}) {
		t.Fatalf("open boundary changed displacement: %v", dr)
	}
	if !math.IsInf(b.Volume(), 1) {
		t.Fatalf("expected infinite volume, got %f", b.Volume())
	}
	if _, err := b.RandomPosition(NewStream(1)); err == nil {
		t.Fatal("expected random position error on open boundary")
	}
	if err := b.SetDims(Vector{1, 1, 1}); err == nil {
		t.Fatal("expected set dims error on open boundary")
	}
}

func TestBoundaryValidation(t *testing.T) {
	if _, err := NewPeriodicBoundary(nil); err == nil {
		t.Fatal("expected empty dims error")
	}
	if _, err := NewPeriodicBoundary(Vector{1, 0}); err == nil {
		t.Fatal("expected zero edge error")
	}
	b, err := NewCubicBoundary(2, 4)
	if err != nil {
		t.Fatalf("new boundary: %v", err)
	}
	if err := b.SetDims(Vector{1}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if err := b.SetDims(Vector{2, math.NaN()}); err == nil {
		t.Fatal("expected NaN edge error")
	}
}

func TestRandomPositionInsideCell(t *testing.T) {
	b, err := NewPeriodicBoundary(Vector{4, 6})
	if err != nil {
		t.Fatalf("new boundary: %v", err)
	}
	rng := NewStream(7)
	for i := 0; i < 500; i++ {
		p, err := b.RandomPosition(rng)
		if err != nil {
			t.Fatalf("random position: %v", err)
		}
		if p[0] < -2 || p[0] >= 2 || p[1] < -3 || p[1] >= 3 {
			t.Fatalf("position outside cell: %v", p)
		}
	}
}

func TestStreamIsReproducible(t *testing.T) {
	a, b := NewStream(42), NewStream(42)
	for i := 0; i < 100; i++ {
		if a.Uniform() != b.Uniform() {
			t.Fatalf("streams diverged at draw %d", i)
		}
	}
	if !a.UnitSphere(3).Equal(b.UnitSphere(3)) {
		t.Fatal("unit sphere draws diverged")
	}
	if a.Intn(17) != b.Intn(17) {
		t.Fatal("integer draws diverged")
	}
}

func TestUnitSphereAndCubeRanges(t *testing.T) {
	rng := NewStream(3)
	for i := 0; i < 200; i++ {
		v := rng.UnitSphere(3)
		if math.Abs(v.Norm()-1) > 1e-12 {
			t.Fatalf("unit sphere norm: got=%f", v.Norm())
		}
		c := rng.UnitCube(2)
		for _, x := range c {
			if x < -1 || x >= 1 {
				t.Fatalf("unit cube component out of range: %f", x)
			}
		}
	}
}

func TestRotationInverseRestoresVector(t *testing.T) {
	axis := Vector{1, 2, 2}
	axis.Normalize()
	r := NewAxisRotation(axis, 0.7)
	v := Vector{0.3, -1.2, 2.5}
	w := v.Clone()
	r.Apply(w)
	if math.Abs(w.Norm()-v.Norm()) > 1e-12 {
		t.Fatalf("rotation changed length: got=%f want=%f", w.Norm(), v.Norm())
	}
	r.Inverse().Apply(w)
	for i := range v {
		if math.Abs(w[i]-v[i]) > 1e-12 {
			t.Fatalf("inverse rotation mismatch: got=%v want=%v", w, v)
		}
	}
}

func TestPlaneRotationQuarterTurn(t *testing.T) {
	v := Vector{1, 0}
	NewPlaneRotation(math.Pi / 2).Apply(v)
	if math.Abs(v[0]) > 1e-15 || math.Abs(v[1]-1) > 1e-15 {
		t.Fatalf("unexpected quarter turn: %v", v)
	}
}

func TestRandomRotationIsOrthonormal(t *testing.T) {
	rng := NewStream(11)
	for i := 0; i < 20; i++ {
		r, err := RandomRotation(rng, 3)
		if err != nil {
			t.Fatalf("random rotation: %v", err)
		}
		ex, ey := Vector{1, 0, 0}, Vector{0, 1, 0}
		r.Apply(ex)
		r.Apply(ey)
		if math.Abs(ex.Dot(ey)) > 1e-12 || math.Abs(ex.Norm()-1) > 1e-12 {
			t.Fatalf("rotation not orthonormal: ex=%v ey=%v", ex, ey)
		}
		// Proper rotation: ex × ey must map to ez.
		ez := Vector{0, 0, 1}
		r.Apply(ez)
		c := Cross(ex, ey)
		for k := range c {
			if math.Abs(c[k]-ez[k]) > 1e-12 {
				t.Fatalf("rotation is improper: cross=%v ez=%v", c, ez)
			}
		}
	}
	if _, err := RandomRotation(rng, 4); err == nil {
		t.Fatal("expected unsupported dimension error")
	}
}

func TestRotateAboutKeepsCenterFixed(t *testing.T) {
	center := Vector{1, 1}
	pts := []Vector{{1, 1}, {2, 1}}
	NewPlaneRotation(math.Pi).RotateAbout(center, pts)
	if !pts[0].Equal(Vector{1, 1}) {
		t.Fatalf("center moved: %v", pts[0])
	}
	if math.Abs(pts[1][0]) > 1e-12 || math.Abs(pts[1][1]-1) > 1e-12 {
		t.Fatalf("unexpected rotated point: %v", pts[1])
	}
}
