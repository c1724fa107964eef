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

type ChainRegrowthConfig struct {
	Name    string
	System  *box.System
	Energy  potential.AtomEvaluator
	Random  space.RandomStream
	Beta    float64
	Species *box.Species
	// Trials is the number of candidate placements per regrown atom.
	Trials int
}

// ChainRegrowth is configurational-bias regrowth of a linear chain. A random
// cut point splits the chain; the part toward a randomly chosen end is
// regrown atom by atom, each atom choosing among Trials candidate positions
// with probability proportional to its Boltzmann factor. The Rosenbluth
// weights of the new and the old configuration enter A = wNew/wOld, with B = 0.
type ChainRegrowth struct {
	trialState
	sys     *box.System
	energy  potential.AtomEvaluator
	rng     space.RandomStream
	beta    float64
	species *box.Species
	geom    box.BondGeometry
	k       int

	molecule     *box.Molecule
	saved        []space.Vector
	order        []int
	cut          int
	placed       []bool
	lnWOld       float64
	lnWNew       float64
	candidates   []space.Vector
	energies     []float64
	probs        []float64
	regrownAtoms []*box.Atom
}

func NewChainRegrowth(cfg ChainRegrowthConfig) (*ChainRegrowth, error) {
	if cfg.System == nil || cfg.Energy == nil || cfg.Random == nil {
		return nil, errors.New("system, energy and random stream are required")
	}
	if err := validateBeta(cfg.Beta); err != nil {
		return nil, err
	}
	if cfg.Species == nil {
		return nil, ErrNoSpecies
	}
	if !cfg.Species.IsChain() {
		return nil, fmt.Errorf("species %s is not a chain", cfg.Species.Name)
	}
	if _, ok := cfg.System.SpeciesByName(cfg.Species.Name); !ok {
		return nil, fmt.Errorf("%w: %s", box.ErrUnknownSpecies, cfg.Species.Name)
	}
	if cfg.Trials < 1 {
		return nil, errors.New("trials per atom must be >= 1")
	}
	name := cfg.Name
	if name == "" {
		name = "cbmc_" + cfg.Species.Name
	}
	dim := cfg.System.Dim()
	c := &ChainRegrowth{
		trialState: trialState{name: name},
		sys:        cfg.System,
		energy:     cfg.Energy,
		rng:        cfg.Random,
		beta:       cfg.Beta,
		species:    cfg.Species,
		geom:       *cfg.Species.Bond,
		k:          cfg.Trials,
		energies:   make([]float64, cfg.Trials),
		probs:      make([]float64, cfg.Trials),
	}
	c.candidates = make([]space.Vector, cfg.Trials)
	for i := range c.candidates {
		c.candidates[i] = space.NewVector(dim)
	}
	return c, nil
}

func (c *ChainRegrowth) Tracker() *tuning.StepSizeTracker {
	return nil
}

func (c *ChainRegrowth) DoTrial() bool {
	c.begin()
	n := c.sys.N(c.species)
	if n == 0 {
		c.abort()
		return false
	}
	m := c.sys.Molecule(c.species, c.rng.Intn(n))
	size := len(m.Atoms)
	c.molecule = m
	c.saved = m.Positions()

	forward := c.rng.Uniform() < 0.5
	c.order = c.order[:0]
	for i := 0; i < size; i++ {
		if forward {
			c.order = append(c.order, i)
		} else {
			c.order = append(c.order, size-1-i)
		}
	}
	c.cut = 1 + c.rng.Intn(size-1)
	c.regrownAtoms = c.regrownAtoms[:0]
	for _, idx := range c.order[c.cut:] {
		c.regrownAtoms = append(c.regrownAtoms, m.Atoms[idx])
	}

	c.lnWOld = c.grow(true)
	c.lnWNew = c.grow(false)
	return true
}

// grow runs one Rosenbluth pass over the regrown segment and returns ln W.
// The old pass scores the saved position plus k-1 fresh candidates per atom
// and leaves coordinates untouched; the new pass draws k candidates and moves
// each atom to the one it picks.
func (c *ChainRegrowth) grow(old bool) float64 {
	m := c.molecule
	c.resetPlaced()
	include := func(b *box.Atom) bool {
		return b.Molecule() != m || c.placed[b.Index()]
	}

	lnW := 0.0
	for step := c.cut; step < len(c.order); step++ {
		atom := m.Atoms[c.order[step]]
		start := 0
		if old {
			c.candidates[0].CopyFrom(c.saved[atom.Index()])
			start = 1
		}
		for j := start; j < c.k; j++ {
			c.propose(step, c.candidates[j])
		}
		for j := 0; j < c.k; j++ {
			atom.Position.CopyFrom(c.candidates[j])
			c.energies[j] = c.energy.AtomEnergy(atom, include)
		}

		lnWi, total := c.weights()
		if old {
			atom.Position.CopyFrom(c.saved[atom.Index()])
		} else {
			if total == 0 {
				return math.Inf(-1)
			}
			atom.Position.CopyFrom(c.candidates[c.pick(total)])
		}
		c.placed[atom.Index()] = true
		lnW += lnWi
	}
	return lnW
}

func (c *ChainRegrowth) resetPlaced() {
	size := len(c.molecule.Atoms)
	if cap(c.placed) < size {
		c.placed = make([]bool, size)
	}
	c.placed = c.placed[:size]
	for i := range c.placed {
		c.placed[i] = false
	}
	for _, idx := range c.order[:c.cut] {
		c.placed[idx] = true
	}
}

// weights fills probs with Boltzmann factors relative to the lowest candidate
// energy and returns ln(sum exp(-beta*u)) together with the relative sum. The
// shift keeps both finite for energies whose raw factors would overflow.
func (c *ChainRegrowth) weights() (float64, float64) {
	uMin := math.Inf(1)
	for _, u := range c.energies {
		if u < uMin {
			uMin = u
		}
	}
	if math.IsInf(uMin, 1) {
		for j := range c.probs {
			c.probs[j] = 0
		}
		return math.Inf(-1), 0
	}
	total := 0.0
	for j, u := range c.energies {
		p := 0.0
		if !math.IsInf(u, 1) {
			p = math.Exp(-c.beta * (u - uMin))
		}
		c.probs[j] = p
		total += p
	}
	return -c.beta*uMin + math.Log(total), total
}

func (c *ChainRegrowth) pick(total float64) int {
	r := c.rng.Uniform() * total
	cumulative := 0.0
	last := 0
	for j, p := range c.probs {
		if p == 0 {
			continue
		}
		last = j
		cumulative += p
		if r < cumulative {
			return j
		}
	}
	return last
}

// propose writes a candidate position for the atom at growth step into out,
// honoring bond length, bond angle and torsion window relative to the atoms
// placed before it in growth order.
func (c *ChainRegrowth) propose(step int, out space.Vector) {
	m := c.molecule
	prev := m.Atoms[c.order[step-1]].Position
	dim := len(prev)
	var dir space.Vector
	if c.geom.Angle == 0 || step < 2 {
		dir = c.rng.UnitSphere(dim)
	} else {
		prev2 := m.Atoms[c.order[step-2]].Position
		u := c.bond(prev2, prev)
		if dim == 2 {
			dir = c.planarDirection(u)
		} else {
			var ref space.Vector
			if c.geom.Torsion > 0 && step >= 3 {
				prev3 := m.Atoms[c.order[step-3]].Position
				ref = c.bond(prev2, prev3)
			}
			dir = c.spatialDirection(u, ref)
		}
	}
	out.CopyFrom(prev)
	out.AddScaled(c.geom.Length, dir)
}

// bond returns the unit minimum-image vector from a to b.
func (c *ChainRegrowth) bond(a, b space.Vector) space.Vector {
	d := space.Sub(b, a)
	c.sys.Boundary().NearestImage(d)
	d.Normalize()
	return d
}

// planarDirection turns u by +-(pi - angle).
func (c *ChainRegrowth) planarDirection(u space.Vector) space.Vector {
	turn := math.Pi - c.geom.Angle
	if c.rng.Uniform() < 0.5 {
		turn = -turn
	}
	d := u.Clone()
	space.NewPlaneRotation(turn).Apply(d)
	return d
}

// spatialDirection places the new bond at the bond angle from the previous
// bond u. With a reference direction (from the third atom back) the dihedral
// is drawn within the torsion window around trans; otherwise it is uniform.
func (c *ChainRegrowth) spatialDirection(u, ref space.Vector) space.Vector {
	e1 := perpendicular(u, ref)
	e2 := space.Cross(u, e1)
	var phi float64
	if ref != nil {
		phi = math.Pi + c.geom.Torsion*(2*c.rng.Uniform()-1)
	} else {
		phi = 2 * math.Pi * c.rng.Uniform()
	}
	cosT, sinT := math.Cos(c.geom.Angle), math.Sin(c.geom.Angle)
	d := u.Clone()
	d.Scale(-cosT)
	d.AddScaled(sinT*math.Cos(phi), e1)
	d.AddScaled(sinT*math.Sin(phi), e2)
	return d
}

// perpendicular returns a unit vector normal to u, taken from the component
// of ref normal to u when that is well defined.
func perpendicular(u, ref space.Vector) space.Vector {
	if ref != nil {
		p := ref.Clone()
		p.AddScaled(-p.Dot(u), u)
		if p.Norm() > 1e-8 {
			p.Normalize()
			return p
		}
	}
	axis := 0
	for i := range u {
		if math.Abs(u[i]) < math.Abs(u[axis]) {
			axis = i
		}
	}
	p := space.NewVector(len(u))
	p[axis] = 1
	p.AddScaled(-u[axis], u)
	p.Normalize()
	return p
}

// AcceptanceFactors: A = wNew/wOld carried as ln wNew - ln wOld, B = 0.
func (c *ChainRegrowth) AcceptanceFactors() mc.Factors {
	switch {
	case math.IsInf(c.lnWNew, -1):
		return mc.Factors{A: 0}
	case math.IsInf(c.lnWOld, -1):
		return mc.Factors{A: 1, LnA: math.Inf(1)}
	}
	return mc.Factors{A: 1, LnA: c.lnWNew - c.lnWOld}
}

func (c *ChainRegrowth) AcceptNotify() {
	c.finish()
}

func (c *ChainRegrowth) RejectNotify() {
	c.molecule.SetPositions(c.saved)
	c.finish()
}

func (c *ChainRegrowth) finish() {
	c.resolve(append([]*box.Atom(nil), c.regrownAtoms...))
	c.molecule, c.saved = nil, nil
}
