package box

import (
	"errors"
	"fmt"

	"metropolis/internal/space"
)

var (
	ErrUnknownSpecies  = errors.New("species not registered in system")
	ErrAlreadyInSystem = errors.New("molecule already belongs to a system")
	ErrNotInSystem     = errors.New("molecule is not in this system")
	ErrBadSlot         = errors.New("restore slot out of range")
)

// System is the live configuration shared by all moves: the boundary and the
// molecules of every registered species. Moves hold a reference, never a
// copy, and mutate it only through operations that have exact inverses.
//
// A System is not safe for concurrent mutation.
type System struct {
	boundary  *space.Boundary
	species   []*Species
	molecules map[*Species][]*Molecule
}

func New(boundary *space.Boundary, species ...*Species) (*System, error) {
	if boundary == nil {
		return nil, errors.New("boundary is required")
	}
	s := &System{boundary: boundary, molecules: make(map[*Species][]*Molecule)}
	for _, sp := range species {
		if err := s.AddSpecies(sp); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *System) AddSpecies(sp *Species) error {
	if sp == nil {
		return errors.New("species is required")
	}
	if sp.Dim() != s.boundary.Dim() {
		return fmt.Errorf("species %s has dimension %d, boundary has %d", sp.Name, sp.Dim(), s.boundary.Dim())
	}
	if _, ok := s.molecules[sp]; ok {
		return fmt.Errorf("species %s already registered", sp.Name)
	}
	for _, existing := range s.species {
		if existing.Name == sp.Name {
			return fmt.Errorf("species name %s already registered", sp.Name)
		}
	}
	s.species = append(s.species, sp)
	s.molecules[sp] = nil
	return nil
}

func (s *System) Boundary() *space.Boundary {
	return s.boundary
}

func (s *System) Dim() int {
	return s.boundary.Dim()
}

func (s *System) Volume() float64 {
	return s.boundary.Volume()
}

func (s *System) Species() []*Species {
	return append([]*Species(nil), s.species...)
}

func (s *System) SpeciesByName(name string) (*Species, bool) {
	for _, sp := range s.species {
		if sp.Name == name {
			return sp, true
		}
	}
	return nil, false
}

// N returns the population of one species.
func (s *System) N(sp *Species) int {
	return len(s.molecules[sp])
}

// Count returns the total number of live molecules.
func (s *System) Count() int {
	n := 0
	for _, sp := range s.species {
		n += len(s.molecules[sp])
	}
	return n
}

// Molecule returns the i-th molecule of a species.
func (s *System) Molecule(sp *Species, i int) *Molecule {
	return s.molecules[sp][i]
}

// Molecules returns a copy of the live molecule list of a species.
func (s *System) Molecules(sp *Species) []*Molecule {
	return append([]*Molecule(nil), s.molecules[sp]...)
}

// At returns the i-th molecule in global order (species in registration
// order, then by slot).
func (s *System) At(i int) *Molecule {
	for _, sp := range s.species {
		list := s.molecules[sp]
		if i < len(list) {
			return list[i]
		}
		i -= len(list)
	}
	return nil
}

// All returns every live molecule in global order.
func (s *System) All() []*Molecule {
	out := make([]*Molecule, 0, s.Count())
	for _, sp := range s.species {
		out = append(out, s.molecules[sp]...)
	}
	return out
}

// Atoms returns every live atom in global order.
func (s *System) Atoms() []*Atom {
	out := make([]*Atom, 0, s.Count())
	for _, sp := range s.species {
		for _, m := range s.molecules[sp] {
			out = append(out, m.Atoms...)
		}
	}
	return out
}

func (s *System) Contains(m *Molecule) bool {
	return m != nil && m.system == s
}

// Add appends m to its species list.
func (s *System) Add(m *Molecule) error {
	if m.system != nil {
		return ErrAlreadyInSystem
	}
	list, ok := s.molecules[m.species]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSpecies, m.species.Name)
	}
	m.system = s
	m.slot = len(list)
	s.molecules[m.species] = append(list, m)
	return nil
}

// Remove takes m out of the system by moving the last molecule of the species
// into its slot. The returned slot is the argument Restore needs to undo the
// removal exactly, including list order.
func (s *System) Remove(m *Molecule) (int, error) {
	if m.system != s {
		return -1, ErrNotInSystem
	}
	list := s.molecules[m.species]
	slot := m.slot
	last := len(list) - 1
	if slot != last {
		moved := list[last]
		list[slot] = moved
		moved.slot = slot
	}
	list[last] = nil
	s.molecules[m.species] = list[:last]
	m.system = nil
	m.slot = -1
	return slot, nil
}

// Restore is the exact inverse of the Remove call that returned slot,
// provided no other membership change happened in between.
func (s *System) Restore(m *Molecule, slot int) error {
	if m.system != nil {
		return ErrAlreadyInSystem
	}
	list, ok := s.molecules[m.species]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSpecies, m.species.Name)
	}
	if slot < 0 || slot > len(list) {
		return fmt.Errorf("%w: slot=%d len=%d", ErrBadSlot, slot, len(list))
	}
	list = append(list, m)
	if slot != len(list)-1 {
		displaced := list[slot]
		list[len(list)-1] = displaced
		displaced.slot = len(list) - 1
		list[slot] = m
	}
	m.system = s
	m.slot = slot
	s.molecules[m.species] = list
	return nil
}
