package potential

import (
	"errors"
	"math"
)

// Pair is a spherically symmetric pair interaction evaluated at squared
// separation r2.
type Pair interface {
	Name() string
	Energy(r2 float64) float64
}

type HardSphere struct {
	Sigma float64
}

func NewHardSphere(sigma float64) (HardSphere, error) {
	if !(sigma > 0) {
		return HardSphere{}, errors.New("hard sphere sigma must be > 0")
	}
	return HardSphere{Sigma: sigma}, nil
}

func (HardSphere) Name() string { return "hard_sphere" }

func (p HardSphere) Energy(r2 float64) float64 {
	if r2 < p.Sigma*p.Sigma {
		return math.Inf(1)
	}
	return 0
}

// LennardJones is truncated (not shifted) at Cutoff; Cutoff 0 means no
// truncation.
type LennardJones struct {
	Epsilon float64
	Sigma   float64
	Cutoff  float64
}

func NewLennardJones(epsilon, sigma, cutoff float64) (LennardJones, error) {
	if !(sigma > 0) {
		return LennardJones{}, errors.New("lennard-jones sigma must be > 0")
	}
	if epsilon < 0 {
		return LennardJones{}, errors.New("lennard-jones epsilon must be >= 0")
	}
	if cutoff < 0 {
		return LennardJones{}, errors.New("lennard-jones cutoff must be >= 0")
	}
	return LennardJones{Epsilon: epsilon, Sigma: sigma, Cutoff: cutoff}, nil
}

func (LennardJones) Name() string { return "lennard_jones" }

func (p LennardJones) Energy(r2 float64) float64 {
	if p.Cutoff > 0 && r2 > p.Cutoff*p.Cutoff {
		return 0
	}
	if r2 == 0 {
		return math.Inf(1)
	}
	s2 := p.Sigma * p.Sigma / r2
	s6 := s2 * s2 * s2
	return 4 * p.Epsilon * (s6*s6 - s6)
}

// SquareWell is a hard core of diameter Sigma with an attractive well of
// depth Epsilon out to Lambda*Sigma.
type SquareWell struct {
	Sigma   float64
	Lambda  float64
	Epsilon float64
}

func NewSquareWell(sigma, lambda, epsilon float64) (SquareWell, error) {
	if !(sigma > 0) {
		return SquareWell{}, errors.New("square well sigma must be > 0")
	}
	if lambda < 1 {
		return SquareWell{}, errors.New("square well lambda must be >= 1")
	}
	return SquareWell{Sigma: sigma, Lambda: lambda, Epsilon: epsilon}, nil
}

func (SquareWell) Name() string { return "square_well" }

func (p SquareWell) Energy(r2 float64) float64 {
	s2 := p.Sigma * p.Sigma
	if r2 < s2 {
		return math.Inf(1)
	}
	if r2 < p.Lambda*p.Lambda*s2 {
		return -p.Epsilon
	}
	return 0
}

// MayerF returns f = exp(-beta*u) - 1 for the pair at squared separation r2.
func MayerF(p Pair, beta, r2 float64) float64 {
	u := p.Energy(r2)
	if math.IsInf(u, 1) {
		return -1
	}
	return math.Expm1(-beta * u)
}
