package moves

import (
	"errors"

	"metropolis/internal/box"
	"metropolis/internal/mc"
	"metropolis/internal/potential"
	"metropolis/internal/space"
	"metropolis/internal/tuning"
)

type DisplacementConfig struct {
	Name   string
	System *box.System
	Energy potential.Evaluator
	Random space.RandomStream
	Beta   float64
	// Species limits selection to one species; nil selects from all.
	Species *box.Species
	// Fixed indices are never selected (molecule indices, or atom indices
	// with PerAtom).
	Fixed []int
	// PerAtom moves a single atom instead of a whole rigid molecule.
	PerAtom     bool
	StepSize    float64
	StepSizeMin float64
	StepSizeMax float64
}

// Displacement translates one atom or one rigid molecule by a vector drawn
// uniformly from a cube of half-width StepSize.
type Displacement struct {
	trialState
	sys      *box.System
	energy   potential.Evaluator
	rng      space.RandomStream
	beta     float64
	molecule *mc.MoleculeSource
	atom     *mc.AtomSource
	tracker  *tuning.StepSizeTracker

	target     []*box.Atom
	saved      []space.Vector
	uOld, uNew float64
}

func NewDisplacement(cfg DisplacementConfig) (*Displacement, error) {
	if cfg.System == nil || cfg.Energy == nil || cfg.Random == nil {
		return nil, errors.New("system, energy and random stream are required")
	}
	if err := validateBeta(cfg.Beta); err != nil {
		return nil, err
	}
	tr, err := newTracker(cfg.StepSize, cfg.StepSizeMin, cfg.StepSizeMax, cfg.Random)
	if err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		name = "displacement"
	}
	d := &Displacement{
		trialState: trialState{name: name},
		sys:        cfg.System,
		energy:     cfg.Energy,
		rng:        cfg.Random,
		beta:       cfg.Beta,
		tracker:    tr,
	}
	if cfg.PerAtom {
		d.atom, err = mc.NewAtomSource(cfg.System, cfg.Species, cfg.Fixed...)
	} else {
		d.molecule, err = mc.NewMoleculeSource(cfg.System, cfg.Species, cfg.Fixed...)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Displacement) Tracker() *tuning.StepSizeTracker {
	return d.tracker
}

// FixedIndices are the indices the selection never returns.
func (d *Displacement) FixedIndices() []int {
	if d.atom != nil {
		return d.atom.Fixed()
	}
	return d.molecule.Fixed()
}

func (d *Displacement) DoTrial() bool {
	d.begin()
	var t potential.Target
	if d.atom != nil {
		a := d.atom.Select(d.rng)
		if a == nil {
			d.abort()
			return false
		}
		d.target = []*box.Atom{a}
		t = potential.AtomTarget(a)
	} else {
		m := d.molecule.Select(d.rng)
		if m == nil {
			d.abort()
			return false
		}
		d.target = m.Atoms
		t = potential.MoleculeTarget(m)
	}

	d.saved = d.saved[:0]
	for _, a := range d.target {
		d.saved = append(d.saved, a.Position.Clone())
	}
	d.uOld = d.energy.Energy(t)

	dr := d.rng.UnitCube(d.sys.Dim())
	dr.Scale(d.tracker.StepSize)
	for _, a := range d.target {
		a.Position.Add(dr)
	}
	d.uNew = d.energy.Energy(t)
	return true
}

func (d *Displacement) AcceptanceFactors() mc.Factors {
	return mc.Factors{A: 1, B: boltzmannExponent(d.beta, d.uNew, d.uOld)}
}

// AcceptNotify commits the translation and folds the owning molecule back
// into the cell; the energy is unchanged by a lattice shift.
func (d *Displacement) AcceptNotify() {
	m := d.target[0].Molecule()
	if m.Wrap(d.sys.Boundary()) {
		d.resolve(m.Atoms)
	} else {
		d.resolve(d.target)
	}
	d.target = nil
}

func (d *Displacement) RejectNotify() {
	for i, a := range d.target {
		a.Position.CopyFrom(d.saved[i])
	}
	d.resolve(d.target)
	d.target = nil
}
