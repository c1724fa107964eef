package moves

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"metropolis/internal/box"
	"metropolis/internal/mc"
	"metropolis/internal/potential"
	"metropolis/internal/space"
	"metropolis/internal/virial"
)

var (
	ErrFactoryExists   = errors.New("move factory already registered")
	ErrFactoryNotFound = errors.New("move factory not found")
)

// Environment is what a factory may wire a move to.
type Environment struct {
	System   *box.System
	Energy   potential.Evaluator
	Random   space.RandomStream
	Ensemble mc.Ensemble
	// Cluster is required by the cluster kind only.
	Cluster *virial.Cluster
	// Reservoirs are shared by every move that inserts or removes molecules
	// of a species.
	Reservoirs map[*box.Species]*mc.Reservoir
}

// ReservoirFor returns the shared reservoir of a species, creating it on
// first use.
func (e *Environment) ReservoirFor(sp *box.Species) *mc.Reservoir {
	if e.Reservoirs == nil {
		e.Reservoirs = make(map[*box.Species]*mc.Reservoir)
	}
	res, ok := e.Reservoirs[sp]
	if !ok {
		res = mc.NewReservoir(sp)
		e.Reservoirs[sp] = res
	}
	return res
}

// Params are the kind-independent knobs of a move request. Zero values pick
// per-kind defaults.
type Params struct {
	Name        string
	Species     []string
	StepSize    float64
	StepSizeMin float64
	StepSizeMax float64
	Trials      int
	PerAtom     bool
	PerAxis     bool
	Fixed       []int
	Fugacity    []float64
}

type Factory func(env *Environment, p Params) (mc.Move, error)

type FactorySpec struct {
	Kind    string
	Factory Factory
	// PerParticle is the default scheduling flag for moves of this kind.
	PerParticle bool
}

var factoryRegistry = struct {
	mu sync.RWMutex
	m  map[string]FactorySpec
}{
	m: make(map[string]FactorySpec),
}

func RegisterFactory(spec FactorySpec) error {
	if spec.Kind == "" {
		return errors.New("move kind is required")
	}
	if spec.Factory == nil {
		return errors.New("factory is required")
	}

	factoryRegistry.mu.Lock()
	defer factoryRegistry.mu.Unlock()

	if _, exists := factoryRegistry.m[spec.Kind]; exists {
		return fmt.Errorf("%w: %s", ErrFactoryExists, spec.Kind)
	}
	factoryRegistry.m[spec.Kind] = spec
	return nil
}

func ResolveFactory(kind string) (FactorySpec, error) {
	factoryRegistry.mu.RLock()
	spec, ok := factoryRegistry.m[kind]
	factoryRegistry.mu.RUnlock()
	if !ok {
		return FactorySpec{}, fmt.Errorf("%w: %s", ErrFactoryNotFound, kind)
	}
	return spec, nil
}

func ListFactories() []string {
	factoryRegistry.mu.RLock()
	defer factoryRegistry.mu.RUnlock()

	kinds := make([]string, 0, len(factoryRegistry.m))
	for kind := range factoryRegistry.m {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Build resolves kind and constructs the move.
func Build(kind string, env *Environment, p Params) (mc.Move, FactorySpec, error) {
	spec, err := ResolveFactory(kind)
	if err != nil {
		return nil, FactorySpec{}, err
	}
	mv, err := spec.Factory(env, p)
	if err != nil {
		return nil, FactorySpec{}, fmt.Errorf("%s: %w", kind, err)
	}
	return mv, spec, nil
}

func init() {
	for _, spec := range []FactorySpec{
		{Kind: "displacement", Factory: buildDisplacement, PerParticle: true},
		{Kind: "rotation", Factory: buildRotation, PerParticle: true},
		{Kind: "volume", Factory: buildVolume},
		{Kind: "insert_delete", Factory: buildInsertDelete},
		{Kind: "semigrand", Factory: buildSemigrand},
		{Kind: "cbmc", Factory: buildChainRegrowth},
		{Kind: "cluster", Factory: buildClusterWeight},
		{Kind: "reptation", Factory: buildReptation},
	} {
		if err := RegisterFactory(spec); err != nil {
			panic(err)
		}
	}
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func oneSpecies(env *Environment, p Params, required bool) (*box.Species, error) {
	switch len(p.Species) {
	case 0:
		if required {
			return nil, ErrNoSpecies
		}
		return nil, nil
	case 1:
		sp, ok := env.System.SpeciesByName(p.Species[0])
		if !ok {
			return nil, fmt.Errorf("%w: %s", box.ErrUnknownSpecies, p.Species[0])
		}
		return sp, nil
	default:
		return nil, fmt.Errorf("expected one species, got %d", len(p.Species))
	}
}

func buildDisplacement(env *Environment, p Params) (mc.Move, error) {
	sp, err := oneSpecies(env, p, false)
	if err != nil {
		return nil, err
	}
	return NewDisplacement(DisplacementConfig{
		Name:        p.Name,
		System:      env.System,
		Energy:      env.Energy,
		Random:      env.Random,
		Beta:        env.Ensemble.Beta,
		Species:     sp,
		Fixed:       p.Fixed,
		PerAtom:     p.PerAtom,
		StepSize:    orDefault(p.StepSize, 0.5),
		StepSizeMin: p.StepSizeMin,
		StepSizeMax: p.StepSizeMax,
	})
}

func buildRotation(env *Environment, p Params) (mc.Move, error) {
	sp, err := oneSpecies(env, p, false)
	if err != nil {
		return nil, err
	}
	return NewRotation(RotationConfig{
		Name:        p.Name,
		System:      env.System,
		Energy:      env.Energy,
		Random:      env.Random,
		Beta:        env.Ensemble.Beta,
		Species:     sp,
		Fixed:       p.Fixed,
		StepSize:    orDefault(p.StepSize, 0.5),
		StepSizeMin: p.StepSizeMin,
		StepSizeMax: p.StepSizeMax,
	})
}

func buildVolume(env *Environment, p Params) (mc.Move, error) {
	return NewVolumeChange(VolumeChangeConfig{
		Name:        p.Name,
		System:      env.System,
		Energy:      env.Energy,
		Random:      env.Random,
		Beta:        env.Ensemble.Beta,
		Pressure:    env.Ensemble.Pressure,
		StepSize:    orDefault(p.StepSize, 0.05),
		StepSizeMin: p.StepSizeMin,
		StepSizeMax: p.StepSizeMax,
		PerAxis:     p.PerAxis,
	})
}

func buildInsertDelete(env *Environment, p Params) (mc.Move, error) {
	sp, err := oneSpecies(env, p, true)
	if err != nil {
		return nil, err
	}
	mu, ok := env.Ensemble.ChemicalPotential(sp.Name)
	if !ok {
		return nil, fmt.Errorf("no chemical potential for species %s", sp.Name)
	}
	return NewInsertDelete(InsertDeleteConfig{
		Name:      p.Name,
		System:    env.System,
		Energy:    env.Energy,
		Random:    env.Random,
		Beta:      env.Ensemble.Beta,
		Mu:        mu,
		Species:   sp,
		Reservoir: env.ReservoirFor(sp),
	})
}

func buildSemigrand(env *Environment, p Params) (mc.Move, error) {
	species := make([]*box.Species, len(p.Species))
	reservoirs := make(map[*box.Species]*mc.Reservoir, len(p.Species))
	for i, name := range p.Species {
		sp, ok := env.System.SpeciesByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", box.ErrUnknownSpecies, name)
		}
		species[i] = sp
		reservoirs[sp] = env.ReservoirFor(sp)
	}
	fugacity := p.Fugacity
	if len(fugacity) == 0 {
		fugacity = make([]float64, len(species))
		for i := range fugacity {
			fugacity[i] = 1 / float64(len(species))
		}
	}
	return NewSemigrandExchange(SemigrandConfig{
		Name:       p.Name,
		System:     env.System,
		Energy:     env.Energy,
		Random:     env.Random,
		Beta:       env.Ensemble.Beta,
		Species:    species,
		Fugacity:   fugacity,
		Reservoirs: reservoirs,
	})
}

func chainConfig(env *Environment, p Params) (ChainRegrowthConfig, error) {
	sp, err := oneSpecies(env, p, true)
	if err != nil {
		return ChainRegrowthConfig{}, err
	}
	ae, ok := env.Energy.(potential.AtomEvaluator)
	if !ok {
		return ChainRegrowthConfig{}, errors.New("chain regrowth needs a per-atom energy evaluator")
	}
	trials := p.Trials
	if trials == 0 {
		trials = 8
	}
	return ChainRegrowthConfig{
		Name:    p.Name,
		System:  env.System,
		Energy:  ae,
		Random:  env.Random,
		Beta:    env.Ensemble.Beta,
		Species: sp,
		Trials:  trials,
	}, nil
}

func buildChainRegrowth(env *Environment, p Params) (mc.Move, error) {
	cfg, err := chainConfig(env, p)
	if err != nil {
		return nil, err
	}
	return NewChainRegrowth(cfg)
}

// buildReptation refuses before looking at the request.
func buildReptation(*Environment, Params) (mc.Move, error) {
	return NewReptation(ChainRegrowthConfig{})
}

// buildClusterWeight wraps a displacement of every molecule except the
// anchor.
func buildClusterWeight(env *Environment, p Params) (mc.Move, error) {
	if env.Cluster == nil {
		return nil, errors.New("cluster sampling needs cluster diagrams")
	}
	fixed := append([]int{0}, p.Fixed...)
	inner, err := NewDisplacement(DisplacementConfig{
		Name:        "displacement",
		System:      env.System,
		Energy:      potential.Zero{},
		Random:      env.Random,
		Beta:        env.Ensemble.Beta,
		Fixed:       fixed,
		StepSize:    orDefault(p.StepSize, 0.5),
		StepSizeMin: p.StepSizeMin,
		StepSizeMax: p.StepSizeMax,
	})
	if err != nil {
		return nil, err
	}
	return NewClusterWeight(ClusterWeightConfig{
		Name:    p.Name,
		System:  env.System,
		Cluster: env.Cluster,
		Inner:   inner,
	})
}
