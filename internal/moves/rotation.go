package moves

import (
	"errors"
	"fmt"
	"math"

	"metropolis/internal/box"
	"metropolis/internal/mc"
	"metropolis/internal/potential"
	"metropolis/internal/space"
	"metropolis/internal/tuning"
)

type RotationConfig struct {
	Name    string
	System  *box.System
	Energy  potential.Evaluator
	Random  space.RandomStream
	Beta    float64
	Species *box.Species
	Fixed   []int
	// StepSize is the largest rotation angle in radians.
	StepSize    float64
	StepSizeMin float64
	StepSizeMax float64
}

// Rotation turns one rigid molecule about its first atom by an angle uniform
// in [-StepSize, StepSize], about a random axis in 3D.
type Rotation struct {
	trialState
	sys      *box.System
	energy   potential.Evaluator
	rng      space.RandomStream
	beta     float64
	molecule *mc.MoleculeSource
	tracker  *tuning.StepSizeTracker

	target     *box.Molecule
	saved      []space.Vector
	uOld, uNew float64
}

func NewRotation(cfg RotationConfig) (*Rotation, error) {
	if cfg.System == nil || cfg.Energy == nil || cfg.Random == nil {
		return nil, errors.New("system, energy and random stream are required")
	}
	if err := validateBeta(cfg.Beta); err != nil {
		return nil, err
	}
	if d := cfg.System.Dim(); d != 2 && d != 3 {
		return nil, fmt.Errorf("rotation unsupported in %d dimensions", d)
	}
	if cfg.Species != nil && len(cfg.Species.Atoms) < 2 {
		return nil, fmt.Errorf("species %s is monatomic", cfg.Species.Name)
	}
	hi := cfg.StepSizeMax
	if hi == 0 {
		hi = math.Pi
	}
	tr, err := newTracker(cfg.StepSize, cfg.StepSizeMin, hi, cfg.Random)
	if err != nil {
		return nil, err
	}
	src, err := mc.NewMoleculeSource(cfg.System, cfg.Species, cfg.Fixed...)
	if err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		name = "rotation"
	}
	return &Rotation{
		trialState: trialState{name: name},
		sys:        cfg.System,
		energy:     cfg.Energy,
		rng:        cfg.Random,
		beta:       cfg.Beta,
		molecule:   src,
		tracker:    tr,
	}, nil
}

func (r *Rotation) Tracker() *tuning.StepSizeTracker {
	return r.tracker
}

func (r *Rotation) FixedIndices() []int {
	return r.molecule.Fixed()
}

func (r *Rotation) DoTrial() bool {
	r.begin()
	m := r.molecule.Select(r.rng)
	if m == nil || len(m.Atoms) < 2 {
		r.abort()
		return false
	}
	r.target = m
	r.saved = m.Positions()
	t := potential.MoleculeTarget(m)
	r.uOld = r.energy.Energy(t)

	angle := r.tracker.StepSize * (2*r.rng.Uniform() - 1)
	var rot space.Rotation
	if r.sys.Dim() == 2 {
		rot = space.NewPlaneRotation(angle)
	} else {
		rot = space.NewAxisRotation(r.rng.UnitSphere(3), angle)
	}
	rot.RotateAbout(m.Atoms[0].Position, positionsOf(m))
	r.uNew = r.energy.Energy(t)
	return true
}

func (r *Rotation) AcceptanceFactors() mc.Factors {
	return mc.Factors{A: 1, B: boltzmannExponent(r.beta, r.uNew, r.uOld)}
}

func (r *Rotation) AcceptNotify() {
	r.resolve(r.target.Atoms)
	r.target, r.saved = nil, nil
}

// RejectNotify restores the saved coordinates rather than applying the
// inverse rotation, which would not be bit-exact.
func (r *Rotation) RejectNotify() {
	r.target.SetPositions(r.saved)
	r.resolve(r.target.Atoms)
	r.target, r.saved = nil, nil
}
