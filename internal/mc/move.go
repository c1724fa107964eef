// Package mc holds the trial/accept/reject protocol shared by every Monte
// Carlo move, the Metropolis acceptance test and the integrator that drives
// a single Markov chain.
package mc

import (
	"math"

	"metropolis/internal/box"
	"metropolis/internal/tuning"
)

// Factors decompose a move's acceptance probability min(1, A*exp(B)). A
// carries proposal asymmetry, combinatorial and Jacobian terms; B carries
// the Boltzmann exponent. LnA is a prefactor kept in log form, so the
// effective prefactor is A*exp(LnA). Moves whose prefactor can leave the
// float range set A = 1 and report it through LnA.
type Factors struct {
	A   float64
	LnA float64
	B   float64
}

// Prefactor returns A*exp(LnA). It may overflow; the acceptance test never
// calls it.
func (f Factors) Prefactor() float64 {
	return f.A * math.Exp(f.LnA)
}

// LogAcceptance returns ln A + LnA + B.
func (f Factors) LogAcceptance() float64 {
	return math.Log(f.A) + f.LnA + f.B
}

// Move is one trial type. A move services at most one trial at a time:
// DoTrial, then AcceptanceFactors, then exactly one of AcceptNotify or
// RejectNotify.
type Move interface {
	Name() string
	// DoTrial builds a proposal, mutating the live system as needed to
	// evaluate it. It returns false when no valid proposal exists; such a
	// trial is not tested and not counted.
	DoTrial() bool
	AcceptanceFactors() Factors
	// AcceptNotify commits the proposal.
	AcceptNotify()
	// RejectNotify restores every touched field to its pre-trial value
	// bit for bit.
	RejectNotify()
	// AffectedAtoms lists the atoms touched by the most recently resolved
	// trial.
	AffectedAtoms() []*box.Atom
	// Tracker returns the move's step-size tracker, or nil for moves with no
	// adjustable step.
	Tracker() *tuning.StepSizeTracker
}

// Registration publishes a move to the integrator. A PerParticle move has its
// Weight multiplied by the live molecule count when a move is picked.
type Registration struct {
	Move        Move
	Weight      float64
	PerParticle bool
}
