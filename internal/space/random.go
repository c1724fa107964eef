package space

import (
	"math/rand"
)

// RandomStream is the single order-sensitive source of randomness consumed by
// a simulation. Implementations need not be safe for concurrent use.
type RandomStream interface {
	// Uniform returns a deviate in [0,1).
	Uniform() float64
	// UnitCube returns a point uniform in [-1,1)^dim.
	UnitCube(dim int) Vector
	// UnitSphere returns a direction uniform on the unit sphere in dim dimensions.
	UnitSphere(dim int) Vector
	// Intn returns an integer uniform in [0,n).
	Intn(n int) int
}

// Stream is a seeded RandomStream; equal seeds yield identical sequences.
type Stream struct {
	rng *rand.Rand
}

func NewStream(seed int64) *Stream {
	return &Stream{rng: rand.New(rand.NewSource(seed))}
}

func (s *Stream) Uniform() float64 {
	return s.rng.Float64()
}

func (s *Stream) UnitCube(dim int) Vector {
	v := NewVector(dim)
	for i := range v {
		v[i] = 2*s.rng.Float64() - 1
	}
	return v
}

func (s *Stream) UnitSphere(dim int) Vector {
	v := NewVector(dim)
	for {
		for i := range v {
			v[i] = s.rng.NormFloat64()
		}
		if n := v.Norm(); n > 1e-12 {
			v.Scale(1 / n)
			return v
		}
	}
}

func (s *Stream) Intn(n int) int {
	return s.rng.Intn(n)
}
