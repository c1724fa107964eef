// Package moves implements the Monte Carlo trial moves driven by the mc
// integrator. Every move mutates the live system in DoTrial and undoes the
// mutation exactly in RejectNotify.
package moves

import (
	"errors"
	"fmt"
	"math"

	"metropolis/internal/box"
	"metropolis/internal/space"
	"metropolis/internal/tuning"
)

var (
	// ErrUnsoundMove marks a move that would bias sampling and therefore
	// refuses construction.
	ErrUnsoundMove = errors.New("move violates detailed balance")
	ErrNoSpecies   = errors.New("species is required")
)

// boltzmannExponent returns -beta*(uNew-uOld). An overlapping new state maps
// to -Inf and an overlapping old state to +Inf, never NaN.
func boltzmannExponent(beta, uNew, uOld float64) float64 {
	if math.IsInf(uNew, 1) {
		return math.Inf(-1)
	}
	if math.IsInf(uOld, 1) {
		return math.Inf(1)
	}
	return -beta * (uNew - uOld)
}

// must panics on errors from operations that can only fail if the live
// system was corrupted behind the move's back.
func must(err error, op string) {
	if err != nil {
		panic(fmt.Sprintf("moves: %s: %v", op, err))
	}
}

// trialState guards the one-trial-at-a-time protocol and remembers the atoms
// of the last resolved trial.
type trialState struct {
	name     string
	inFlight bool
	affected []*box.Atom
}

func (t *trialState) begin() {
	if t.inFlight {
		panic(fmt.Sprintf("moves: %s: trial started while another is in flight", t.name))
	}
	t.inFlight = true
}

func (t *trialState) abort() {
	t.inFlight = false
}

func (t *trialState) resolve(atoms []*box.Atom) {
	if !t.inFlight {
		panic(fmt.Sprintf("moves: %s: trial resolved without DoTrial", t.name))
	}
	t.inFlight = false
	t.affected = atoms
}

func (t *trialState) Name() string {
	return t.name
}

func (t *trialState) AffectedAtoms() []*box.Atom {
	return t.affected
}

func atomsOf(ms ...*box.Molecule) []*box.Atom {
	var out []*box.Atom
	for _, m := range ms {
		if m != nil {
			out = append(out, m.Atoms...)
		}
	}
	return out
}

// newTracker builds a step tracker; hi == 0 leaves the step unbounded above.
func newTracker(step, lo, hi float64, rng space.RandomStream) (*tuning.StepSizeTracker, error) {
	if hi == 0 {
		hi = math.Inf(1)
	}
	tr, err := tuning.NewStepSizeTracker(step, lo, hi)
	if err != nil {
		return nil, err
	}
	tr.Rand = rng
	return tr, nil
}

func validateBeta(beta float64) error {
	if !(beta > 0) || math.IsInf(beta, 0) {
		return errors.New("beta must be finite and > 0")
	}
	return nil
}

// orient gives a freshly withdrawn molecule its template shape and a uniformly
// random orientation about its center.
func orient(m *box.Molecule, rng space.RandomStream) error {
	m.ResetConformation()
	if len(m.Atoms) == 1 {
		return nil
	}
	rot, err := space.RandomRotation(rng, len(m.Atoms[0].Position))
	if err != nil {
		return err
	}
	rot.RotateAbout(m.Center(), positionsOf(m))
	return nil
}

// positionsOf returns the live coordinate slices of m (not copies).
func positionsOf(m *box.Molecule) []space.Vector {
	out := make([]space.Vector, len(m.Atoms))
	for i, a := range m.Atoms {
		out[i] = a.Position
	}
	return out
}
