package potential

import (
	"metropolis/internal/box"
)

// Target restricts an energy evaluation to the interactions of one atom or
// one molecule. The zero Target (All) selects the whole system.
type Target struct {
	atom     *box.Atom
	molecule *box.Molecule
}

// All selects every interaction in the system.
var All = Target{}

func AtomTarget(a *box.Atom) Target {
	return Target{atom: a}
}

func MoleculeTarget(m *box.Molecule) Target {
	return Target{molecule: m}
}

func (t Target) IsAll() bool {
	return t.atom == nil && t.molecule == nil
}

func (t Target) Atom() *box.Atom {
	return t.atom
}

func (t Target) Molecule() *box.Molecule {
	return t.molecule
}

// Evaluator computes potential energy for the current state of a system. It
// must be pure between mutations and return exactly +Inf on hard overlap.
type Evaluator interface {
	Energy(t Target) float64
}

// AtomEvaluator additionally evaluates one atom against the subset of atoms
// accepted by include, which configurational-bias regrowth uses to ignore
// atoms of the chain that have not been placed yet. A nil include accepts all.
type AtomEvaluator interface {
	Evaluator
	AtomEnergy(a *box.Atom, include func(*box.Atom) bool) float64
}

// Zero is the ideal-gas evaluator.
type Zero struct{}

func (Zero) Energy(Target) float64 {
	return 0
}

func (Zero) AtomEnergy(*box.Atom, func(*box.Atom) bool) float64 {
	return 0
}
