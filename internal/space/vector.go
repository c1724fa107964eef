package space

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Vector is a point or displacement in D-dimensional space.
type Vector []float64

func NewVector(dim int) Vector {
	return make(Vector, dim)
}

func (v Vector) Dim() int {
	return len(v)
}

func (v Vector) Clone() Vector {
	return append(Vector(nil), v...)
}

// CopyFrom overwrites v with the components of u.
func (v Vector) CopyFrom(u Vector) {
	copy(v, u)
}

func (v Vector) Add(u Vector) {
	floats.Add(v, u)
}

func (v Vector) AddScaled(alpha float64, u Vector) {
	floats.AddScaled(v, alpha, u)
}

func (v Vector) Scale(c float64) {
	floats.Scale(c, v)
}

func (v Vector) Dot(u Vector) float64 {
	return floats.Dot(v, u)
}

func (v Vector) SquaredNorm() float64 {
	return floats.Dot(v, v)
}

func (v Vector) Norm() float64 {
	return floats.Norm(v, 2)
}

// Normalize scales v to unit length. A zero vector is left unchanged.
func (v Vector) Normalize() {
	n := v.Norm()
	if n == 0 {
		return
	}
	floats.Scale(1/n, v)
}

// Equal reports exact component-wise equality.
func (v Vector) Equal(u Vector) bool {
	return floats.Equal(v, u)
}

func (v Vector) IsFinite() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Sub returns a-b as a new vector.
func Sub(a, b Vector) Vector {
	out := make(Vector, len(a))
	floats.SubTo(out, a, b)
	return out
}

// Sum returns a+b as a new vector.
func Sum(a, b Vector) Vector {
	out := make(Vector, len(a))
	floats.AddTo(out, a, b)
	return out
}

// Cross returns the 3D cross product a×b.
func Cross(a, b Vector) Vector {
	return Vector{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// ClonePositions deep-copies a list of vectors.
func ClonePositions(in []Vector) []Vector {
	out := make([]Vector, len(in))
	for i, v := range in {
		out[i] = v.Clone()
	}
	return out
}
