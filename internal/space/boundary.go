package space

import (
	"errors"
	"fmt"
	"math"
)

var ErrNotPeriodic = errors.New("boundary is not periodic on every axis")

// Boundary is a rectangular simulation cell centered on the origin. Each axis
// is either periodic (minimum-image convention) or open. A fully open
// boundary has infinite volume and is used for cluster-integral sampling.
type Boundary struct {
	dims     Vector
	periodic []bool
}

// NewPeriodicBoundary returns a cell periodic on every axis.
func NewPeriodicBoundary(dims Vector) (*Boundary, error) {
	if len(dims) == 0 {
		return nil, errors.New("boundary dimension must be > 0")
	}
	for i, l := range dims {
		if !(l > 0) || math.IsInf(l, 0) {
			return nil, fmt.Errorf("boundary edge %d must be finite and > 0, got %v", i, l)
		}
	}
	periodic := make([]bool, len(dims))
	for i := range periodic {
		periodic[i] = true
	}
	return &Boundary{dims: dims.Clone(), periodic: periodic}, nil
}

// NewCubicBoundary returns a periodic cube of the given edge length.
func NewCubicBoundary(dim int, length float64) (*Boundary, error) {
	dims := NewVector(dim)
	for i := range dims {
		dims[i] = length
	}
	return NewPeriodicBoundary(dims)
}

// NewOpenBoundary returns an unbounded, non-periodic space.
func NewOpenBoundary(dim int) *Boundary {
	dims := NewVector(dim)
	for i := range dims {
		dims[i] = math.Inf(1)
	}
	return &Boundary{dims: dims, periodic: make([]bool, dim)}
}

func (b *Boundary) Dim() int {
	return len(b.dims)
}

// Dims returns a copy of the edge lengths.
func (b *Boundary) Dims() Vector {
	return b.dims.Clone()
}

func (b *Boundary) Periodic(axis int) bool {
	return b.periodic[axis]
}

func (b *Boundary) FullyPeriodic() bool {
	for _, p := range b.periodic {
		if !p {
			return false
		}
	}
	return true
}

// SetDims replaces the edge lengths; only meaningful for periodic cells.
func (b *Boundary) SetDims(dims Vector) error {
	if len(dims) != len(b.dims) {
		return fmt.Errorf("dimension mismatch: got=%d want=%d", len(dims), len(b.dims))
	}
	if !b.FullyPeriodic() {
		return ErrNotPeriodic
	}
	for i, l := range dims {
		if !(l > 0) || math.IsInf(l, 0) {
			return fmt.Errorf("boundary edge %d must be finite and > 0, got %v", i, l)
		}
	}
	b.dims.CopyFrom(dims)
	return nil
}

func (b *Boundary) Volume() float64 {
	v := 1.0
	for _, l := range b.dims {
		v *= l
	}
	return v
}

// NearestImage folds dr into the minimum image on every periodic axis.
func (b *Boundary) NearestImage(dr Vector) {
	for i, x := range dr {
		if !b.periodic[i] {
			continue
		}
		l := b.dims[i]
		dr[i] = x - l*math.Round(x/l)
	}
}

// ImageShift returns the lattice vector that brings r back into the cell.
// Open axes get a zero component.
func (b *Boundary) ImageShift(r Vector) Vector {
	shift := NewVector(len(r))
	for i, x := range r {
		if !b.periodic[i] {
			continue
		}
		l := b.dims[i]
		shift[i] = -l * math.Round(x/l)
	}
	return shift
}

// RandomPosition draws a point uniformly inside the cell.
func (b *Boundary) RandomPosition(rng RandomStream) (Vector, error) {
	if !b.FullyPeriodic() {
		return nil, ErrNotPeriodic
	}
	p := NewVector(len(b.dims))
	for i, l := range b.dims {
		p[i] = (rng.Uniform() - 0.5) * l
	}
	return p, nil
}
