package mc

import (
	"errors"
	"fmt"
	"math"

	"metropolis/internal/space"
)

var (
	ErrNaNFactor      = errors.New("acceptance factor is NaN")
	ErrNegativeFactor = errors.New("acceptance prefactor is negative")
)

// Metropolis is the acceptance test shared by all moves.
type Metropolis struct {
	rng space.RandomStream
}

func NewMetropolis(rng space.RandomStream) (*Metropolis, error) {
	if rng == nil {
		return nil, errors.New("random stream is required")
	}
	return &Metropolis{rng: rng}, nil
}

// Accept decides a trial. Certain outcomes consume no deviate: A == 0,
// LnA == -Inf or B == -Inf (hard overlap in the new state) always reject,
// and ln A + LnA + B >= 0 always accepts. Otherwise it draws r and accepts
// iff ln r < ln A + LnA + B, which stays finite where A*exp(LnA+B) would
// overflow or underflow.
//
// A NaN factor means the live state is corrupt and is returned as an error.
func (m *Metropolis) Accept(f Factors) (bool, error) {
	if math.IsNaN(f.A) || math.IsNaN(f.LnA) || math.IsNaN(f.B) {
		return false, fmt.Errorf("%w: a=%v lna=%v b=%v", ErrNaNFactor, f.A, f.LnA, f.B)
	}
	if f.A < 0 {
		return false, fmt.Errorf("%w: a=%v", ErrNegativeFactor, f.A)
	}
	if certainReject(f) {
		return false, nil
	}
	x := f.LogAcceptance()
	if math.IsNaN(x) {
		return false, fmt.Errorf("%w: a=%v lna=%v b=%v", ErrNaNFactor, f.A, f.LnA, f.B)
	}
	if x >= 0 {
		return true, nil
	}
	return math.Log(m.rng.Uniform()) < x, nil
}

// Probability returns min(1, A*exp(LnA+B)), with the same conventions as
// Accept for zero and infinite terms.
func Probability(f Factors) float64 {
	if math.IsNaN(f.A) || math.IsNaN(f.LnA) || math.IsNaN(f.B) || f.A < 0 || certainReject(f) {
		return 0
	}
	x := f.LogAcceptance()
	if math.IsNaN(x) {
		return 0
	}
	if x >= 0 {
		return 1
	}
	return math.Exp(x)
}

func certainReject(f Factors) bool {
	return f.A == 0 || math.IsInf(f.LnA, -1) || math.IsInf(f.B, -1)
}
