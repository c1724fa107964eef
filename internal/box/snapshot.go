package box

import "metropolis/internal/space"

// MoleculeState is the observable state of one live molecule.
type MoleculeState struct {
	ID        int64
	Positions []space.Vector
}

// Snapshot is a deep copy of everything a trial may touch: the cell, the
// membership and order of every species list, and every coordinate.
type Snapshot struct {
	Dims    space.Vector
	Species map[string][]MoleculeState
}

func (s *System) Snapshot() Snapshot {
	out := Snapshot{
		Dims:    s.boundary.Dims(),
		Species: make(map[string][]MoleculeState, len(s.species)),
	}
	for _, sp := range s.species {
		list := s.molecules[sp]
		states := make([]MoleculeState, len(list))
		for i, m := range list {
			states[i] = MoleculeState{ID: m.id, Positions: m.Positions()}
		}
		out.Species[sp.Name] = states
	}
	return out
}
