package space

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Rotation is a proper rotation tensor in 2 or 3 dimensions, stored row-major.
type Rotation struct {
	dim int
	m   []float64
}

// NewPlaneRotation rotates 2D vectors counter-clockwise by angle.
func NewPlaneRotation(angle float64) Rotation {
	c, s := math.Cos(angle), math.Sin(angle)
	return Rotation{dim: 2, m: []float64{c, -s, s, c}}
}

// NewAxisRotation rotates 3D vectors by angle about a unit axis (Rodrigues).
func NewAxisRotation(axis Vector, angle float64) Rotation {
	x, y, z := axis[0], axis[1], axis[2]
	c, s := math.Cos(angle), math.Sin(angle)
	t := 1 - c
	return Rotation{dim: 3, m: []float64{
		t*x*x + c, t*x*y - s*z, t*x*z + s*y,
		t*x*y + s*z, t*y*y + c, t*y*z - s*x,
		t*x*z - s*y, t*y*z + s*x, t*z*z + c,
	}}
}

// RandomRotation draws a rotation uniformly from SO(dim). It consumes one
// deviate in 2D and three in 3D (Shoemake's unit quaternion).
func RandomRotation(rng RandomStream, dim int) (Rotation, error) {
	switch dim {
	case 2:
		return NewPlaneRotation(2 * math.Pi * rng.Uniform()), nil
	case 3:
		u1, u2, u3 := rng.Uniform(), rng.Uniform(), rng.Uniform()
		a, b := math.Sqrt(1-u1), math.Sqrt(u1)
		w := a * math.Sin(2*math.Pi*u2)
		x := a * math.Cos(2*math.Pi*u2)
		y := b * math.Sin(2*math.Pi*u3)
		z := b * math.Cos(2*math.Pi*u3)
		return Rotation{dim: 3, m: []float64{
			1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w),
			2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w),
			2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y),
		}}, nil
	default:
		return Rotation{}, fmt.Errorf("rotation unsupported in %d dimensions", dim)
	}
}

func (r Rotation) Dim() int {
	return r.dim
}

// Apply rotates v in place.
func (r Rotation) Apply(v Vector) {
	d := r.dim
	var tmp [3]float64
	for i := 0; i < d; i++ {
		sum := 0.0
		for j := 0; j < d; j++ {
			sum += r.m[i*d+j] * v[j]
		}
		tmp[i] = sum
	}
	copy(v, tmp[:d])
}

// Inverse returns the transpose.
func (r Rotation) Inverse() Rotation {
	d := r.dim
	out := make([]float64, d*d)
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			out[j*d+i] = r.m[i*d+j]
		}
	}
	return Rotation{dim: d, m: out}
}

// RotateAbout rotates each point about center. center may alias one of the
// points.
func (r Rotation) RotateAbout(center Vector, points []Vector) {
	c := center.Clone()
	for _, p := range points {
		floats.Sub(p, c)
		r.Apply(p)
		p.Add(c)
	}
}
