package potential

import (
	"errors"
	"math"

	"golang.org/x/sync/errgroup"

	"metropolis/internal/box"
	"metropolis/internal/space"
)

// chunksPerWorker over-partitions the triangular pair loop so that bounded
// workers stay busy while the partition itself stays fixed.
const chunksPerWorker = 4

// TypePair keys a pair potential by the atom types it acts between.
type TypePair struct {
	A, B string
}

func normalizeTypePair(a, b string) TypePair {
	if b < a {
		a, b = b, a
	}
	return TypePair{A: a, B: b}
}

type PairwiseConfig struct {
	System  *box.System
	Default Pair
	// ByType overrides Default for specific atom type combinations.
	ByType map[TypePair]Pair
	// IntraSeparation 0 excludes all intramolecular pairs; n > 0 includes
	// pairs of the same molecule whose atom indices differ by at least n.
	IntraSeparation int
	// Workers > 1 splits full-system sums across goroutines. Partial sums
	// are combined in partition order, so results depend on Workers but not
	// on scheduling.
	Workers int
}

// Pairwise sums pair interactions under the minimum-image convention.
type Pairwise struct {
	system  *box.System
	def     Pair
	byType  map[TypePair]Pair
	intra   int
	workers int
}

func NewPairwise(cfg PairwiseConfig) (*Pairwise, error) {
	if cfg.System == nil {
		return nil, errors.New("system is required")
	}
	if cfg.Default == nil && len(cfg.ByType) == 0 {
		return nil, errors.New("at least one pair potential is required")
	}
	if cfg.IntraSeparation < 0 {
		return nil, errors.New("intramolecular separation must be >= 0")
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	byType := make(map[TypePair]Pair, len(cfg.ByType))
	for k, v := range cfg.ByType {
		byType[normalizeTypePair(k.A, k.B)] = v
	}
	return &Pairwise{
		system:  cfg.System,
		def:     cfg.Default,
		byType:  byType,
		intra:   cfg.IntraSeparation,
		workers: workers,
	}, nil
}

func (p *Pairwise) Energy(t Target) float64 {
	switch {
	case t.atom != nil:
		return p.AtomEnergy(t.atom, nil)
	case t.molecule != nil:
		return p.moleculeEnergy(t.molecule)
	default:
		return p.totalEnergy()
	}
}

func (p *Pairwise) AtomEnergy(a *box.Atom, include func(*box.Atom) bool) float64 {
	dr := space.NewVector(p.system.Dim())
	sum := 0.0
	for _, b := range p.system.Atoms() {
		if b == a || (include != nil && !include(b)) {
			continue
		}
		u := p.pairEnergy(a, b, dr)
		if math.IsInf(u, 1) {
			return u
		}
		sum += u
	}
	return sum
}

func (p *Pairwise) moleculeEnergy(m *box.Molecule) float64 {
	dr := space.NewVector(p.system.Dim())
	atoms := p.system.Atoms()
	sum := 0.0
	for i, a := range m.Atoms {
		for _, b := range atoms {
			if b.Molecule() == m {
				continue
			}
			u := p.pairEnergy(a, b, dr)
			if math.IsInf(u, 1) {
				return u
			}
			sum += u
		}
		for _, b := range m.Atoms[i+1:] {
			u := p.pairEnergy(a, b, dr)
			if math.IsInf(u, 1) {
				return u
			}
			sum += u
		}
	}
	return sum
}

func (p *Pairwise) totalEnergy() float64 {
	atoms := p.system.Atoms()
	n := len(atoms)
	if p.workers == 1 || n < 2*p.workers {
		return p.sumRange(atoms, 0, n)
	}

	chunks := p.workers * chunksPerWorker
	size := (n + chunks - 1) / chunks
	partials := make([]float64, chunks)
	var g errgroup.Group
	g.SetLimit(p.workers)
	for c := 0; c < chunks; c++ {
		lo, hi := c*size, min((c+1)*size, n)
		if lo >= hi {
			continue
		}
		g.Go(func() error {
			partials[c] = p.sumRange(atoms, lo, hi)
			return nil
		})
	}
	_ = g.Wait()

	sum := 0.0
	for _, u := range partials {
		sum += u
	}
	return sum
}

// sumRange adds u(i,j) for lo <= i < hi and j > i.
func (p *Pairwise) sumRange(atoms []*box.Atom, lo, hi int) float64 {
	dr := space.NewVector(p.system.Dim())
	sum := 0.0
	for i := lo; i < hi; i++ {
		a := atoms[i]
		for _, b := range atoms[i+1:] {
			u := p.pairEnergy(a, b, dr)
			if math.IsInf(u, 1) {
				return u
			}
			sum += u
		}
	}
	return sum
}

func (p *Pairwise) interacts(a, b *box.Atom) bool {
	if a.Molecule() != b.Molecule() {
		return true
	}
	if p.intra == 0 {
		return false
	}
	d := a.Index() - b.Index()
	if d < 0 {
		d = -d
	}
	return d >= p.intra
}

func (p *Pairwise) pairFor(a, b *box.Atom) Pair {
	if len(p.byType) > 0 {
		if pair, ok := p.byType[normalizeTypePair(a.Type, b.Type)]; ok {
			return pair
		}
	}
	return p.def
}

func (p *Pairwise) pairEnergy(a, b *box.Atom, dr space.Vector) float64 {
	if !p.interacts(a, b) {
		return 0
	}
	pair := p.pairFor(a, b)
	if pair == nil {
		return 0
	}
	for k := range dr {
		dr[k] = b.Position[k] - a.Position[k]
	}
	p.system.Boundary().NearestImage(dr)
	return pair.Energy(dr.SquaredNorm())
}
