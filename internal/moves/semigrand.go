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

type SemigrandConfig struct {
	Name    string
	System  *box.System
	Energy  potential.Evaluator
	Random  space.RandomStream
	Beta    float64
	Species []*box.Species
	// Fugacity holds one positive fugacity fraction per species.
	Fugacity []float64
	// Reservoirs optionally maps species to shared reservoirs.
	Reservoirs map[*box.Species]*mc.Reservoir
}

// SemigrandExchange swaps the identity of one molecule in place: a molecule
// of species A is removed and one of species B takes its center.
type SemigrandExchange struct {
	trialState
	sys        *box.System
	energy     potential.Evaluator
	rng        space.RandomStream
	beta       float64
	species    []*box.Species
	fugacity   []float64
	reservoirs []*mc.Reservoir

	from, to   int
	nFrom, nTo int
	removed    *box.Molecule
	slot       int
	inserted   *box.Molecule
	uOld, uNew float64
}

func NewSemigrandExchange(cfg SemigrandConfig) (*SemigrandExchange, error) {
	if cfg.System == nil || cfg.Energy == nil || cfg.Random == nil {
		return nil, errors.New("system, energy and random stream are required")
	}
	if err := validateBeta(cfg.Beta); err != nil {
		return nil, err
	}
	if len(cfg.Species) < 2 {
		return nil, errors.New("semigrand exchange needs at least 2 species")
	}
	if len(cfg.Fugacity) != len(cfg.Species) {
		return nil, fmt.Errorf("got %d fugacity fractions for %d species", len(cfg.Fugacity), len(cfg.Species))
	}
	seen := make(map[*box.Species]bool, len(cfg.Species))
	reservoirs := make([]*mc.Reservoir, len(cfg.Species))
	for i, sp := range cfg.Species {
		if sp == nil {
			return nil, ErrNoSpecies
		}
		if seen[sp] {
			return nil, fmt.Errorf("species %s listed twice", sp.Name)
		}
		seen[sp] = true
		if _, ok := cfg.System.SpeciesByName(sp.Name); !ok {
			return nil, fmt.Errorf("%w: %s", box.ErrUnknownSpecies, sp.Name)
		}
		if f := cfg.Fugacity[i]; !(f > 0) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("fugacity fraction for %s must be finite and > 0", sp.Name)
		}
		res := cfg.Reservoirs[sp]
		if res == nil {
			res = mc.NewReservoir(sp)
		} else if res.Species() != sp {
			return nil, mc.ErrReservoirSpecies
		}
		reservoirs[i] = res
	}
	name := cfg.Name
	if name == "" {
		name = "semigrand"
	}
	return &SemigrandExchange{
		trialState: trialState{name: name},
		sys:        cfg.System,
		energy:     cfg.Energy,
		rng:        cfg.Random,
		beta:       cfg.Beta,
		species:    append([]*box.Species(nil), cfg.Species...),
		fugacity:   append([]float64(nil), cfg.Fugacity...),
		reservoirs: reservoirs,
	}, nil
}

func (s *SemigrandExchange) Tracker() *tuning.StepSizeTracker {
	return nil
}

func (s *SemigrandExchange) Reservoir(sp *box.Species) *mc.Reservoir {
	for i, candidate := range s.species {
		if candidate == sp {
			return s.reservoirs[i]
		}
	}
	return nil
}

func (s *SemigrandExchange) DoTrial() bool {
	s.begin()
	k := len(s.species)
	s.from = s.rng.Intn(k)
	s.to = s.rng.Intn(k - 1)
	if s.to >= s.from {
		s.to++
	}
	spFrom, spTo := s.species[s.from], s.species[s.to]
	s.nFrom = s.sys.N(spFrom)
	if s.nFrom == 0 {
		s.abort()
		return false
	}
	s.nTo = s.sys.N(spTo)

	old := s.sys.Molecule(spFrom, s.rng.Intn(s.nFrom))
	s.uOld = s.energy.Energy(potential.MoleculeTarget(old))
	center := old.Center()
	slot, err := s.sys.Remove(old)
	must(err, "remove exchanged molecule")
	s.removed, s.slot = old, slot

	mol := s.reservoirs[s.to].Withdraw()
	must(orient(mol, s.rng), "orient exchanged molecule")
	mol.SetCenter(center)
	must(s.sys.Add(mol), "insert exchanged molecule")
	s.inserted = mol
	s.uNew = s.energy.Energy(potential.MoleculeTarget(mol))
	return true
}

// AcceptanceFactors: A = N_A/(N_B+1) * f_B/f_A.
func (s *SemigrandExchange) AcceptanceFactors() mc.Factors {
	a := float64(s.nFrom) / float64(s.nTo+1) * (s.fugacity[s.to] / s.fugacity[s.from])
	return mc.Factors{A: a, B: boltzmannExponent(s.beta, s.uNew, s.uOld)}
}

func (s *SemigrandExchange) AcceptNotify() {
	must(s.reservoirs[s.from].Deposit(s.removed), "commit exchanged molecule")
	s.finish()
}

func (s *SemigrandExchange) RejectNotify() {
	_, err := s.sys.Remove(s.inserted)
	must(err, "undo exchange insertion")
	must(s.reservoirs[s.to].Deposit(s.inserted), "return exchanged molecule")
	must(s.sys.Restore(s.removed, s.slot), "undo exchange removal")
	s.finish()
}

func (s *SemigrandExchange) finish() {
	s.resolve(atomsOf(s.removed, s.inserted))
	s.removed, s.inserted = nil, nil
}
