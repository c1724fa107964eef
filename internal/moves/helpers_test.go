package moves

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"metropolis/internal/box"
	"metropolis/internal/mc"
	"metropolis/internal/potential"
	"metropolis/internal/space"
)

// scripted replays queued deviates and falls back to a seeded stream once a
// queue runs dry.
type scripted struct {
	fallback *space.Stream
	uniform  []float64
	ints     []int
	cubes    []space.Vector
	spheres  []space.Vector
}

func newScripted(seed int64) *scripted {
	return &scripted{fallback: space.NewStream(seed)}
}

func (s *scripted) Uniform() float64 {
	if len(s.uniform) > 0 {
		u := s.uniform[0]
		s.uniform = s.uniform[1:]
		return u
	}
	return s.fallback.Uniform()
}

func (s *scripted) UnitCube(dim int) space.Vector {
	if len(s.cubes) > 0 {
		v := s.cubes[0]
		s.cubes = s.cubes[1:]
		return v.Clone()
	}
	return s.fallback.UnitCube(dim)
}

func (s *scripted) UnitSphere(dim int) space.Vector {
	if len(s.spheres) > 0 {
		v := s.spheres[0]
		s.spheres = s.spheres[1:]
		return v.Clone()
	}
	return s.fallback.UnitSphere(dim)
}

func (s *scripted) Intn(n int) int {
	if len(s.ints) > 0 {
		i := s.ints[0]
		s.ints = s.ints[1:]
		return i
	}
	return s.fallback.Intn(n)
}

type fixture struct {
	sys    *box.System
	a, b   *box.Species
	dimer  *box.Species
	chain  *box.Species
	energy *potential.Pairwise
}

// newFixture builds a periodic 3D box holding two monatomic species, rigid
// dimers and 5-atom chains on a loose lattice, interacting through a
// truncated Lennard-Jones potential.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	bnd, err := space.NewCubicBoundary(3, 12)
	require.NoError(t, err)
	a, err := box.NewMonatomic("a", "A", 3)
	require.NoError(t, err)
	b, err := box.NewMonatomic("b", "B", 3)
	require.NoError(t, err)
	dimer, err := box.NewRigid("dimer", []box.AtomSpec{
		{Type: "D", Offset: space.Vector{0, 0, 0}},
		{Type: "D", Offset: space.Vector{1, 0, 0}},
	})
	require.NoError(t, err)
	chain, err := box.NewLinearChain("chain", "C", 5, box.BondGeometry{Length: 1, Angle: 1.91, Torsion: 0.4}, 3)
	require.NoError(t, err)
	sys, err := box.New(bnd, a, b, dimer, chain)
	require.NoError(t, err)

	place := func(sp *box.Species, centers ...space.Vector) {
		for _, c := range centers {
			m := sp.NewMolecule()
			m.SetCenter(c)
			require.NoError(t, sys.Add(m))
		}
	}
	place(a, space.Vector{-4, -4, -4}, space.Vector{-1.5, -4, -4}, space.Vector{1, -4, -4}, space.Vector{3.5, -4, -4})
	place(b, space.Vector{-4, -1.5, -4}, space.Vector{-1.5, -1.5, -4})
	place(dimer, space.Vector{-4, 1.5, 0}, space.Vector{0, 1.5, 0})
	place(chain, space.Vector{-3, -3, 3}, space.Vector{-1, 4, 3})

	lj, err := potential.NewLennardJones(1, 1, 3)
	require.NoError(t, err)
	energy, err := potential.NewPairwise(potential.PairwiseConfig{System: sys, Default: lj, IntraSeparation: 3})
	require.NoError(t, err)
	return &fixture{sys: sys, a: a, b: b, dimer: dimer, chain: chain, energy: energy}
}

// requireSameState compares cell and coordinates bit for bit, including
// molecule identity and order within every species list.
func requireSameState(t *testing.T, want, got box.Snapshot) {
	t.Helper()
	require.Equal(t, len(want.Dims), len(got.Dims))
	for i := range want.Dims {
		require.Equal(t, math.Float64bits(want.Dims[i]), math.Float64bits(got.Dims[i]), "dims[%d]", i)
	}
	require.Equal(t, len(want.Species), len(got.Species))
	for name, mols := range want.Species {
		gotMols := got.Species[name]
		require.Len(t, gotMols, len(mols), "species %s", name)
		for i, m := range mols {
			require.Equal(t, m.ID, gotMols[i].ID, "species %s slot %d", name, i)
			for j, p := range m.Positions {
				for k := range p {
					require.Equal(t, math.Float64bits(p[k]), math.Float64bits(gotMols[i].Positions[j][k]),
						"species %s slot %d atom %d axis %d", name, i, j, k)
				}
			}
		}
	}
}

func moleculeCount(sys *box.System, m *box.Molecule) int {
	c := 0
	for _, live := range sys.All() {
		if live == m {
			c++
		}
	}
	return c
}

var _ mc.Move = (*Displacement)(nil)
var _ mc.Move = (*Rotation)(nil)
var _ mc.Move = (*VolumeChange)(nil)
var _ mc.Move = (*InsertDelete)(nil)
var _ mc.Move = (*SemigrandExchange)(nil)
var _ mc.Move = (*ChainRegrowth)(nil)
var _ mc.Move = (*ClusterWeight)(nil)
