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

type InsertDeleteConfig struct {
	Name    string
	System  *box.System
	Energy  potential.Evaluator
	Random  space.RandomStream
	Beta    float64
	Mu      float64
	Species *box.Species
	// Reservoir may be shared with other moves of the same species; a new
	// one is created when nil.
	Reservoir *mc.Reservoir
}

// InsertDelete is the grand-canonical move: with probability 1/2 it inserts a
// molecule at a uniformly random position, otherwise it deletes a uniformly
// random molecule of the species. Both mutate the live system before the
// decision; the rejection path is the exact inverse.
type InsertDelete struct {
	trialState
	sys       *box.System
	energy    potential.Evaluator
	rng       space.RandomStream
	beta      float64
	mu        float64
	species   *box.Species
	reservoir *mc.Reservoir

	insert   bool
	molecule *box.Molecule
	slot     int
	n        int
	volume   float64
	u        float64
}

func NewInsertDelete(cfg InsertDeleteConfig) (*InsertDelete, error) {
	if cfg.System == nil || cfg.Energy == nil || cfg.Random == nil {
		return nil, errors.New("system, energy and random stream are required")
	}
	if cfg.Species == nil {
		return nil, ErrNoSpecies
	}
	if _, ok := cfg.System.SpeciesByName(cfg.Species.Name); !ok {
		return nil, fmt.Errorf("%w: %s", box.ErrUnknownSpecies, cfg.Species.Name)
	}
	if err := validateBeta(cfg.Beta); err != nil {
		return nil, err
	}
	if math.IsNaN(cfg.Mu) || math.IsInf(cfg.Mu, 0) {
		return nil, errors.New("chemical potential must be finite")
	}
	if !cfg.System.Boundary().FullyPeriodic() {
		return nil, space.ErrNotPeriodic
	}
	res := cfg.Reservoir
	if res == nil {
		res = mc.NewReservoir(cfg.Species)
	}
	if res.Species() != cfg.Species {
		return nil, mc.ErrReservoirSpecies
	}
	name := cfg.Name
	if name == "" {
		name = "insert_delete_" + cfg.Species.Name
	}
	return &InsertDelete{
		trialState: trialState{name: name},
		sys:        cfg.System,
		energy:     cfg.Energy,
		rng:        cfg.Random,
		beta:       cfg.Beta,
		mu:         cfg.Mu,
		species:    cfg.Species,
		reservoir:  res,
	}, nil
}

func (m *InsertDelete) Tracker() *tuning.StepSizeTracker {
	return nil
}

func (m *InsertDelete) Reservoir() *mc.Reservoir {
	return m.reservoir
}

// Inserting reports whether the pending or last trial was an insertion.
func (m *InsertDelete) Inserting() bool {
	return m.insert
}

func (m *InsertDelete) DoTrial() bool {
	m.begin()
	m.insert = m.rng.Uniform() < 0.5
	m.n = m.sys.N(m.species)
	m.volume = m.sys.Volume()

	if m.insert {
		mol := m.reservoir.Withdraw()
		must(orient(mol, m.rng), "orient inserted molecule")
		pos, err := m.sys.Boundary().RandomPosition(m.rng)
		must(err, "random position")
		mol.SetCenter(pos)
		must(m.sys.Add(mol), "insert molecule")
		m.molecule = mol
		m.u = m.energy.Energy(potential.MoleculeTarget(mol))
		return true
	}

	if m.n == 0 {
		m.abort()
		return false
	}
	mol := m.sys.Molecule(m.species, m.rng.Intn(m.n))
	m.u = m.energy.Energy(potential.MoleculeTarget(mol))
	slot, err := m.sys.Remove(mol)
	must(err, "delete molecule")
	m.molecule = mol
	m.slot = slot
	return true
}

// AcceptanceFactors: insertion A = V/(N+1), B = beta*mu - beta*uNew;
// deletion A = N/V, B = -beta*mu + beta*uOld.
func (m *InsertDelete) AcceptanceFactors() mc.Factors {
	if m.insert {
		b := m.beta*m.mu - m.beta*m.u
		if math.IsInf(m.u, 1) {
			b = math.Inf(-1)
		}
		return mc.Factors{A: m.volume / float64(m.n+1), B: b}
	}
	b := -m.beta*m.mu + m.beta*m.u
	if math.IsInf(m.u, 1) {
		b = math.Inf(1)
	}
	return mc.Factors{A: float64(m.n) / m.volume, B: b}
}

func (m *InsertDelete) AcceptNotify() {
	mol := m.molecule
	if !m.insert {
		must(m.reservoir.Deposit(mol), "commit deleted molecule")
	}
	m.resolve(mol.Atoms)
	m.molecule = nil
}

func (m *InsertDelete) RejectNotify() {
	mol := m.molecule
	if m.insert {
		_, err := m.sys.Remove(mol)
		must(err, "undo insertion")
		must(m.reservoir.Deposit(mol), "return inserted molecule")
	} else {
		must(m.sys.Restore(mol, m.slot), "undo deletion")
	}
	m.resolve(mol.Atoms)
	m.molecule = nil
}
