package metropolis

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"metropolis/internal/box"
	"metropolis/internal/mc"
	"metropolis/internal/moves"
	"metropolis/internal/potential"
	"metropolis/internal/space"
	"metropolis/internal/virial"
)

var ErrInitialOverlap = errors.New("initial configuration has overlapping molecules")

// simulation is one assembled Markov chain: the live system, its energy and
// ensemble, and the moves requested for it.
type simulation struct {
	system   *box.System
	rng      *space.Stream
	ensemble mc.Ensemble
	energy   potential.Evaluator
	env      *moves.Environment

	requests   []MoveRequest
	integrator *mc.Integrator
	clusters   []*moves.ClusterWeight
}

func build(req RunRequest, logger *slog.Logger) (*simulation, error) {
	ensemble := mc.Ensemble{Beta: 1 / req.Temperature, Pressure: req.Pressure, Mu: req.Mu}
	if err := ensemble.Validate(); err != nil {
		return nil, err
	}
	boundary, err := buildBoundary(req)
	if err != nil {
		return nil, err
	}
	if len(req.Species) == 0 {
		return nil, errors.New("at least one species is required")
	}
	species := make([]*box.Species, len(req.Species))
	counts := make([]int, len(req.Species))
	for i, sr := range req.Species {
		if sr.Count < 0 {
			return nil, fmt.Errorf("species %s: count must be >= 0", sr.Name)
		}
		sp, err := buildSpecies(sr, req.Dim)
		if err != nil {
			return nil, err
		}
		species[i], counts[i] = sp, sr.Count
	}
	system, err := box.New(boundary, species...)
	if err != nil {
		return nil, err
	}
	if err := placeOnLattice(system, species, counts, req.Open, req.Potential.Sigma); err != nil {
		return nil, err
	}

	pair, err := buildPair(req.Potential)
	if err != nil {
		return nil, err
	}
	var energy potential.Evaluator = potential.Zero{}
	if pair != nil {
		energy, err = potential.NewPairwise(potential.PairwiseConfig{
			System:          system,
			Default:         pair,
			IntraSeparation: req.Potential.IntraSeparation,
			Workers:         req.Workers,
		})
		if err != nil {
			return nil, err
		}
	}

	sim := &simulation{
		system:   system,
		rng:      space.NewStream(req.Seed),
		ensemble: ensemble,
		energy:   energy,
		requests: req.Moves,
	}
	sim.env = &moves.Environment{
		System:   system,
		Energy:   energy,
		Random:   sim.rng,
		Ensemble: ensemble,
	}

	if req.Cluster != nil {
		cluster, err := buildCluster(*req.Cluster, system.Count(), pair, ensemble.Beta)
		if err != nil {
			return nil, err
		}
		sim.env.Cluster = cluster
	} else if u := energy.Energy(potential.All); math.IsInf(u, 1) {
		return nil, fmt.Errorf("%w: enlarge the box or lower the counts", ErrInitialOverlap)
	}

	logger.Debug("system assembled", "molecules", system.Count(), "volume", system.Volume(), "potential", req.Potential.Kind)
	return sim, nil
}

func buildBoundary(req RunRequest) (*space.Boundary, error) {
	switch {
	case req.Open:
		return space.NewOpenBoundary(req.Dim), nil
	case len(req.Box) > 0:
		if len(req.Box) != req.Dim {
			return nil, fmt.Errorf("box has %d edges, want %d", len(req.Box), req.Dim)
		}
		return space.NewPeriodicBoundary(space.Vector(req.Box))
	case req.BoxLength > 0:
		return space.NewCubicBoundary(req.Dim, req.BoxLength)
	default:
		return nil, errors.New("box length is required unless the space is open")
	}
}

func buildSpecies(sr SpeciesRequest, dim int) (*box.Species, error) {
	atomType := sr.AtomType
	if atomType == "" {
		atomType = sr.Name
	}
	switch sr.Kind {
	case "", "monatomic":
		return box.NewMonatomic(sr.Name, atomType, dim)
	case "rigid":
		atoms := make([]box.AtomSpec, len(sr.Atoms))
		for i, a := range sr.Atoms {
			if len(a.Offset) != dim {
				return nil, fmt.Errorf("species %s: atom %d has dimension %d, want %d", sr.Name, i, len(a.Offset), dim)
			}
			t := a.Type
			if t == "" {
				t = atomType
			}
			atoms[i] = box.AtomSpec{Type: t, Offset: space.Vector(a.Offset).Clone()}
		}
		return box.NewRigid(sr.Name, atoms)
	case "chain":
		length := sr.BondLength
		if length == 0 {
			length = 1
		}
		return box.NewLinearChain(sr.Name, atomType, sr.ChainLength, box.BondGeometry{
			Length:  length,
			Angle:   sr.BondAngle,
			Torsion: sr.Torsion,
		}, dim)
	default:
		return nil, fmt.Errorf("species %s: unsupported kind %q", sr.Name, sr.Kind)
	}
}

func buildPair(p PotentialRequest) (potential.Pair, error) {
	switch p.Kind {
	case "ideal":
		return nil, nil
	case "hard_sphere":
		return potential.NewHardSphere(p.Sigma)
	case "lennard_jones":
		return potential.NewLennardJones(deref(p.Epsilon), p.Sigma, deref(p.Cutoff))
	case "square_well":
		return potential.NewSquareWell(p.Sigma, p.Lambda, deref(p.Epsilon))
	default:
		return nil, fmt.Errorf("unsupported potential: %s", p.Kind)
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func buildCluster(req ClusterRequest, points int, pair potential.Pair, beta float64) (*virial.Cluster, error) {
	if pair == nil {
		return nil, errors.New("cluster sampling needs a pair potential")
	}
	var diagram virial.Diagram
	switch req.Diagram {
	case "", "ring":
		diagram = virial.Ring(points)
	case "complete":
		diagram = virial.FullyConnected(points)
	default:
		return nil, fmt.Errorf("unsupported cluster diagram: %s", req.Diagram)
	}
	return virial.NewCluster(points, []virial.Diagram{diagram}, pair, beta)
}

// placeOnLattice puts molecule centers on a simple cubic lattice filling a
// periodic cell, species after species. In open space the centers are
// packed along the first axis within half a diameter of each other, so every
// Mayer bond of the starting cluster is nonzero.
func placeOnLattice(sys *box.System, species []*box.Species, counts []int, open bool, sigma float64) error {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return nil
	}
	dim := sys.Dim()
	dims := sys.Boundary().Dims()
	side := 1
	for intPow(side, dim) < total {
		side++
	}

	site := 0
	for i, sp := range species {
		for k := 0; k < counts[i]; k++ {
			center := space.NewVector(dim)
			if open {
				center[0] = float64(site) * sigma / (2 * float64(total))
			} else {
				idx := site
				for axis := 0; axis < dim; axis++ {
					spacing := dims[axis] / float64(side)
					center[axis] = -dims[axis]/2 + (float64(idx%side)+0.5)*spacing
					idx /= side
				}
			}
			m := sp.NewMolecule()
			m.SetCenter(center)
			if err := sys.Add(m); err != nil {
				return err
			}
			site++
		}
	}
	return nil
}

func intPow(base, exp int) int {
	out := 1
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}

func (s *simulation) register() error {
	for i, mr := range s.requests {
		mv, spec, err := moves.Build(mr.Kind, s.env, moves.Params{
			Name:        mr.Name,
			Species:     mr.Species,
			StepSize:    mr.StepSize,
			StepSizeMin: mr.StepSizeMin,
			StepSizeMax: mr.StepSizeMax,
			Trials:      mr.Trials,
			PerAtom:     mr.PerAtom,
			PerAxis:     mr.PerAxis,
			Fixed:       mr.Fixed,
			Fugacity:    mr.Fugacity,
		})
		if err != nil {
			return fmt.Errorf("move %d: %w", i, err)
		}
		perParticle := spec.PerParticle
		if mr.PerParticle != nil {
			perParticle = *mr.PerParticle
		}
		weight := mr.Weight
		if weight == 0 {
			weight = 1
		}
		if cw, ok := mv.(*moves.ClusterWeight); ok {
			s.clusters = append(s.clusters, cw)
		}
		if err := s.integrator.Register(mc.Registration{Move: mv, Weight: weight, PerParticle: perParticle}); err != nil {
			return err
		}
	}
	return nil
}

func (s *simulation) moveNames() []string {
	regs := s.integrator.Moves()
	names := make([]string, len(regs))
	for i, reg := range regs {
		names[i] = reg.Move.Name()
	}
	return names
}

func (s *simulation) summarize(runID, status string) RunSummary {
	counts := make(map[string]int, len(s.system.Species()))
	for _, sp := range s.system.Species() {
		counts[sp.Name] = s.system.N(sp)
	}
	summary := RunSummary{
		RunID:  runID,
		Status: status,
		Counts: counts,
		Volume: finiteOrZero(s.system.Volume()),
		Energy: finiteOrZero(s.energy.Energy(potential.All)),
		Moves:  s.integrator.Stats(),
	}
	if n := len(s.clusters); n > 0 {
		summary.ClusterWeight = s.clusters[n-1].Weight()
	}
	return summary
}
