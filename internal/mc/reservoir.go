package mc

import (
	"errors"
	"fmt"

	"metropolis/internal/box"
)

var (
	ErrLiveMolecule     = errors.New("molecule is live in a system")
	ErrAlreadyReserved  = errors.New("molecule is already in the reservoir")
	ErrReservoirSpecies = errors.New("molecule species does not match reservoir")
)

// Reservoir pools molecules that are not live. A molecule is owned either by
// the reservoir or by the system, never both.
type Reservoir struct {
	species *box.Species
	pool    []*box.Molecule
	members map[*box.Molecule]struct{}
}

func NewReservoir(sp *box.Species) *Reservoir {
	return &Reservoir{species: sp, members: make(map[*box.Molecule]struct{})}
}

func (r *Reservoir) Species() *box.Species {
	return r.species
}

// Withdraw hands out the most recently deposited molecule, or a fresh one
// when the pool is empty. The caller owns the result.
func (r *Reservoir) Withdraw() *box.Molecule {
	if len(r.pool) == 0 {
		return r.species.NewMolecule()
	}
	last := len(r.pool) - 1
	m := r.pool[last]
	r.pool[last] = nil
	r.pool = r.pool[:last]
	delete(r.members, m)
	return m
}

// Deposit takes ownership of a molecule that is not live anywhere.
func (r *Reservoir) Deposit(m *box.Molecule) error {
	if m.Species() != r.species {
		return fmt.Errorf("%w: %s into %s", ErrReservoirSpecies, m.Species().Name, r.species.Name)
	}
	if m.InSystem() {
		return ErrLiveMolecule
	}
	if _, ok := r.members[m]; ok {
		return ErrAlreadyReserved
	}
	r.members[m] = struct{}{}
	r.pool = append(r.pool, m)
	return nil
}

func (r *Reservoir) Contains(m *box.Molecule) bool {
	_, ok := r.members[m]
	return ok
}

func (r *Reservoir) Len() int {
	return len(r.pool)
}
