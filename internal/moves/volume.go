package moves

import (
	"errors"
	"math"

	"metropolis/internal/box"
	"metropolis/internal/mc"
	"metropolis/internal/potential"
	"metropolis/internal/space"
	"metropolis/internal/tuning"
)

type VolumeChangeConfig struct {
	Name     string
	System   *box.System
	Energy   potential.Evaluator
	Random   space.RandomStream
	Beta     float64
	Pressure float64
	// StepSize bounds the change in ln V.
	StepSize    float64
	StepSizeMin float64
	StepSizeMax float64
	// PerAxis rescales a single random axis instead of all of them.
	PerAxis bool
}

// VolumeChange samples ln V uniformly within +-StepSize and scales molecule
// centers with the cell, leaving internal geometry unchanged.
type VolumeChange struct {
	trialState
	sys      *box.System
	energy   potential.Evaluator
	rng      space.RandomStream
	beta     float64
	pressure float64
	perAxis  bool
	tracker  *tuning.StepSizeTracker

	step       float64
	n          int
	savedDims  space.Vector
	molecules  []*box.Molecule
	saved      [][]space.Vector
	hOld, hNew float64
	uNew       float64
}

func NewVolumeChange(cfg VolumeChangeConfig) (*VolumeChange, error) {
	if cfg.System == nil || cfg.Energy == nil || cfg.Random == nil {
		return nil, errors.New("system, energy and random stream are required")
	}
	if err := validateBeta(cfg.Beta); err != nil {
		return nil, err
	}
	if !cfg.System.Boundary().FullyPeriodic() {
		return nil, space.ErrNotPeriodic
	}
	if math.IsNaN(cfg.Pressure) || math.IsInf(cfg.Pressure, 0) {
		return nil, errors.New("pressure must be finite")
	}
	tr, err := newTracker(cfg.StepSize, cfg.StepSizeMin, cfg.StepSizeMax, cfg.Random)
	if err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		name = "volume"
	}
	return &VolumeChange{
		trialState: trialState{name: name},
		sys:        cfg.System,
		energy:     cfg.Energy,
		rng:        cfg.Random,
		beta:       cfg.Beta,
		pressure:   cfg.Pressure,
		perAxis:    cfg.PerAxis,
		tracker:    tr,
	}, nil
}

func (v *VolumeChange) Tracker() *tuning.StepSizeTracker {
	return v.tracker
}

func (v *VolumeChange) DoTrial() bool {
	v.begin()
	b := v.sys.Boundary()
	dim := b.Dim()
	v.savedDims = b.Dims()
	v.molecules = v.sys.All()
	v.n = len(v.molecules)
	v.saved = v.saved[:0]
	for _, m := range v.molecules {
		v.saved = append(v.saved, m.Positions())
	}

	vOld := b.Volume()
	uOld := v.energy.Energy(potential.All)
	v.hOld = uOld + v.pressure*vOld

	v.step = v.tracker.StepSize * (2*v.rng.Uniform() - 1)
	scale := space.NewVector(dim)
	if v.perAxis {
		for i := range scale {
			scale[i] = 1
		}
		scale[v.rng.Intn(dim)] = math.Exp(v.step)
	} else {
		f := math.Exp(v.step / float64(dim))
		for i := range scale {
			scale[i] = f
		}
	}

	dims := v.savedDims.Clone()
	for i := range dims {
		dims[i] *= scale[i]
	}
	if err := b.SetDims(dims); err != nil {
		v.hNew = math.Inf(1)
		v.uNew = math.Inf(1)
		return true
	}
	for _, m := range v.molecules {
		c := m.Center()
		dr := space.NewVector(dim)
		for i := range dr {
			dr[i] = c[i]*scale[i] - c[i]
		}
		m.Translate(dr)
	}

	v.uNew = v.energy.Energy(potential.All)
	v.hNew = v.uNew + v.pressure*b.Volume()
	return true
}

// AcceptanceFactors carries the Jacobian of sampling uniformly in ln V,
// exp((N+1)s), in log form: it leaves the float range once |(N+1)s| > ~709.
func (v *VolumeChange) AcceptanceFactors() mc.Factors {
	lnA := float64(v.n+1) * v.step
	if math.IsInf(v.uNew, 1) {
		return mc.Factors{A: 1, LnA: lnA, B: math.Inf(-1)}
	}
	return mc.Factors{A: 1, LnA: lnA, B: -v.beta * (v.hNew - v.hOld)}
}

func (v *VolumeChange) AcceptNotify() {
	v.resolve(atomsOf(v.molecules...))
	v.clear()
}

func (v *VolumeChange) RejectNotify() {
	must(v.sys.Boundary().SetDims(v.savedDims), "restore cell")
	for i, m := range v.molecules {
		m.SetPositions(v.saved[i])
	}
	v.resolve(atomsOf(v.molecules...))
	v.clear()
}

func (v *VolumeChange) clear() {
	v.molecules = nil
	v.savedDims = nil
	for i := range v.saved {
		v.saved[i] = nil
	}
	v.saved = v.saved[:0]
}
