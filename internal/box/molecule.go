package box

import (
	"metropolis/internal/space"
)

type Atom struct {
	Type     string
	Position space.Vector

	molecule *Molecule
	index    int
}

func (a *Atom) Molecule() *Molecule {
	return a.molecule
}

// Index is the atom's position within its molecule.
func (a *Atom) Index() int {
	return a.index
}

type Molecule struct {
	Atoms []*Atom

	species *Species
	id      int64
	system  *System
	slot    int
}

func (m *Molecule) Species() *Species {
	return m.species
}

// ID is unique among molecules of the same species.
func (m *Molecule) ID() int64 {
	return m.id
}

// InSystem reports whether the molecule is currently live in a system.
func (m *Molecule) InSystem() bool {
	return m.system != nil
}

// Center returns the geometric center of the atoms (equal masses).
func (m *Molecule) Center() space.Vector {
	c := space.NewVector(len(m.Atoms[0].Position))
	for _, a := range m.Atoms {
		c.Add(a.Position)
	}
	c.Scale(1 / float64(len(m.Atoms)))
	return c
}

func (m *Molecule) Translate(dr space.Vector) {
	for _, a := range m.Atoms {
		a.Position.Add(dr)
	}
}

// Wrap moves the whole molecule by a lattice vector so that its center lies
// inside the cell. It reports whether any coordinate changed.
func (m *Molecule) Wrap(b *space.Boundary) bool {
	shift := b.ImageShift(m.Center())
	for _, x := range shift {
		if x != 0 {
			m.Translate(shift)
			return true
		}
	}
	return false
}

// SetCenter translates the molecule so its center lies at c.
func (m *Molecule) SetCenter(c space.Vector) {
	dr := space.Sub(c, m.Center())
	m.Translate(dr)
}

// Positions returns a deep copy of the atom coordinates.
func (m *Molecule) Positions() []space.Vector {
	out := make([]space.Vector, len(m.Atoms))
	for i, a := range m.Atoms {
		out[i] = a.Position.Clone()
	}
	return out
}

// SetPositions overwrites atom coordinates from a saved copy.
func (m *Molecule) SetPositions(saved []space.Vector) {
	for i, a := range m.Atoms {
		a.Position.CopyFrom(saved[i])
	}
}

// ResetConformation restores the template geometry, keeping the first atom
// where it is.
func (m *Molecule) ResetConformation() {
	origin := m.Atoms[0].Position.Clone()
	for i, a := range m.Atoms {
		a.Position.CopyFrom(m.species.Atoms[i].Offset)
		a.Position.Add(origin)
	}
}
