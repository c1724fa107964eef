package box

import (
	"errors"
	"fmt"
	"math"

	"metropolis/internal/space"
)

// AtomSpec places one atom of a species template relative to the first atom.
type AtomSpec struct {
	Type   string
	Offset space.Vector
}

// BondGeometry describes the constraints of a linear chain. Length is always
// enforced. Angle is the bond angle in radians (0 leaves it free). Torsion is
// the half-width of the allowed dihedral window around trans (0 leaves it free).
type BondGeometry struct {
	Length  float64
	Angle   float64
	Torsion float64
}

// Species is a molecule template. Molecules of one species are
// interchangeable and share a reservoir.
type Species struct {
	Name  string
	Atoms []AtomSpec
	Bond  *BondGeometry

	dim    int
	serial int64
}

func NewMonatomic(name, atomType string, dim int) (*Species, error) {
	return NewRigid(name, []AtomSpec{{Type: atomType, Offset: space.NewVector(dim)}})
}

func NewRigid(name string, atoms []AtomSpec) (*Species, error) {
	if name == "" {
		return nil, errors.New("species name is required")
	}
	if len(atoms) == 0 {
		return nil, fmt.Errorf("species %s: at least one atom is required", name)
	}
	dim := len(atoms[0].Offset)
	if dim == 0 {
		return nil, fmt.Errorf("species %s: atom offsets must have dimension > 0", name)
	}
	specs := make([]AtomSpec, len(atoms))
	for i, a := range atoms {
		if len(a.Offset) != dim {
			return nil, fmt.Errorf("species %s: atom %d has dimension %d, want %d", name, i, len(a.Offset), dim)
		}
		specs[i] = AtomSpec{Type: a.Type, Offset: a.Offset.Clone()}
	}
	return &Species{Name: name, Atoms: specs, dim: dim}, nil
}

// NewLinearChain builds an n-atom chain template. With a bond angle the
// template is a planar all-trans zigzag; without one it is straight.
func NewLinearChain(name, atomType string, n int, geom BondGeometry, dim int) (*Species, error) {
	if n < 2 {
		return nil, fmt.Errorf("species %s: chain needs at least 2 atoms", name)
	}
	if dim < 2 || dim > 3 {
		return nil, fmt.Errorf("species %s: chains require 2 or 3 dimensions", name)
	}
	if !(geom.Length > 0) {
		return nil, fmt.Errorf("species %s: bond length must be > 0", name)
	}
	if geom.Angle < 0 || geom.Angle > math.Pi {
		return nil, fmt.Errorf("species %s: bond angle must be in [0, pi]", name)
	}
	if geom.Torsion < 0 {
		return nil, fmt.Errorf("species %s: torsion range must be >= 0", name)
	}
	sx, sy := geom.Length, 0.0
	if geom.Angle > 0 && geom.Angle < math.Pi {
		sx = geom.Length * math.Sin(geom.Angle/2)
		sy = geom.Length * math.Cos(geom.Angle/2)
	}
	atoms := make([]AtomSpec, n)
	for i := range atoms {
		off := space.NewVector(dim)
		off[0] = float64(i) * sx
		if i%2 == 1 {
			off[1] = sy
		}
		atoms[i] = AtomSpec{Type: atomType, Offset: off}
	}
	s, err := NewRigid(name, atoms)
	if err != nil {
		return nil, err
	}
	g := geom
	s.Bond = &g
	return s, nil
}

func (s *Species) Dim() int {
	return s.dim
}

// IsChain reports whether the species carries chain bond constraints.
func (s *Species) IsChain() bool {
	return s.Bond != nil && len(s.Atoms) >= 2
}

// NewMolecule allocates a molecule in template conformation with its first
// atom at the origin. The molecule is not part of any system.
func (s *Species) NewMolecule() *Molecule {
	s.serial++
	m := &Molecule{species: s, id: s.serial, slot: -1}
	m.Atoms = make([]*Atom, len(s.Atoms))
	for i, spec := range s.Atoms {
		m.Atoms[i] = &Atom{Type: spec.Type, Position: spec.Offset.Clone(), molecule: m, index: i}
	}
	return m
}
