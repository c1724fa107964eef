package mc

import (
	"errors"
	"fmt"
	"slices"

	"metropolis/internal/box"
	"metropolis/internal/space"
)

// MoleculeSource picks a uniformly random live molecule, optionally limited
// to one species and skipping fixed indices. Fixed indices refer to the
// species list when Species is set and to global order otherwise; they stay
// excluded for the lifetime of the source.
type MoleculeSource struct {
	system  *box.System
	species *box.Species
	fixed   []int
}

func NewMoleculeSource(sys *box.System, sp *box.Species, fixed ...int) (*MoleculeSource, error) {
	if sys == nil {
		return nil, errors.New("system is required")
	}
	if sp != nil {
		if _, ok := sys.SpeciesByName(sp.Name); !ok {
			return nil, fmt.Errorf("%w: %s", box.ErrUnknownSpecies, sp.Name)
		}
	}
	f, err := normalizeFixed(fixed)
	if err != nil {
		return nil, err
	}
	return &MoleculeSource{system: sys, species: sp, fixed: f}, nil
}

// Fixed returns the excluded indices in ascending order.
func (s *MoleculeSource) Fixed() []int {
	return slices.Clone(s.fixed)
}

func (s *MoleculeSource) Species() *box.Species {
	return s.species
}

// Len is the number of molecules the source can currently return.
func (s *MoleculeSource) Len() int {
	n := s.population()
	return n - countBelow(s.fixed, n)
}

// Select returns nil when nothing is eligible.
func (s *MoleculeSource) Select(rng space.RandomStream) *box.Molecule {
	n := s.population()
	i, ok := pickExcluding(rng, n, s.fixed)
	if !ok {
		return nil
	}
	if s.species != nil {
		return s.system.Molecule(s.species, i)
	}
	return s.system.At(i)
}

func (s *MoleculeSource) population() int {
	if s.species != nil {
		return s.system.N(s.species)
	}
	return s.system.Count()
}

// AtomSource picks a uniformly random live atom, with the same scoping and
// exclusion rules as MoleculeSource (indices into the atom list).
type AtomSource struct {
	system  *box.System
	species *box.Species
	fixed   []int
}

func NewAtomSource(sys *box.System, sp *box.Species, fixed ...int) (*AtomSource, error) {
	if sys == nil {
		return nil, errors.New("system is required")
	}
	if sp != nil {
		if _, ok := sys.SpeciesByName(sp.Name); !ok {
			return nil, fmt.Errorf("%w: %s", box.ErrUnknownSpecies, sp.Name)
		}
	}
	f, err := normalizeFixed(fixed)
	if err != nil {
		return nil, err
	}
	return &AtomSource{system: sys, species: sp, fixed: f}, nil
}

func (s *AtomSource) Fixed() []int {
	return slices.Clone(s.fixed)
}

func (s *AtomSource) Select(rng space.RandomStream) *box.Atom {
	atoms := s.atoms()
	i, ok := pickExcluding(rng, len(atoms), s.fixed)
	if !ok {
		return nil
	}
	return atoms[i]
}

func (s *AtomSource) atoms() []*box.Atom {
	if s.species == nil {
		return s.system.Atoms()
	}
	var out []*box.Atom
	for _, m := range s.system.Molecules(s.species) {
		out = append(out, m.Atoms...)
	}
	return out
}

func normalizeFixed(fixed []int) ([]int, error) {
	out := slices.Clone(fixed)
	slices.Sort(out)
	out = slices.Compact(out)
	for _, f := range out {
		if f < 0 {
			return nil, fmt.Errorf("fixed index must be >= 0, got %d", f)
		}
	}
	return out, nil
}

func countBelow(sorted []int, n int) int {
	c := 0
	for _, f := range sorted {
		if f >= n {
			break
		}
		c++
	}
	return c
}

// pickExcluding draws uniformly from [0,n) minus the sorted fixed set using a
// single deviate.
func pickExcluding(rng space.RandomStream, n int, fixed []int) (int, bool) {
	m := n - countBelow(fixed, n)
	if m <= 0 {
		return 0, false
	}
	r := rng.Intn(m)
	for _, f := range fixed {
		if r < f {
			break
		}
		r++
	}
	return r, true
}
