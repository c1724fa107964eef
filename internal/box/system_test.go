package box

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"metropolis/internal/space"
)

func newTestSystem(t *testing.T, n int) (*System, *Species) {
	t.Helper()
	b, err := space.NewCubicBoundary(3, 10)
	require.NoError(t, err)
	sp, err := NewMonatomic("ar", "Ar", 3)
	require.NoError(t, err)
	sys, err := New(b, sp)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		m := sp.NewMolecule()
		m.SetCenter(space.Vector{float64(i), 0, 0})
		require.NoError(t, sys.Add(m))
	}
	return sys, sp
}

func TestRemoveRestoreIsExactInverse(t *testing.T) {
	sys, sp := newTestSystem(t, 5)
	before := sys.Snapshot()

	for i := 0; i < 5; i++ {
		m := sys.Molecule(sp, i)
		slot, err := sys.Remove(m)
		require.NoError(t, err)
		require.Equal(t, i, slot)
		require.False(t, sys.Contains(m))
		require.Equal(t, 4, sys.N(sp))

		require.NoError(t, sys.Restore(m, slot))
		require.Equal(t, before, sys.Snapshot())
		require.Same(t, m, sys.Molecule(sp, i))
	}
}

func TestRemoveLastThenAddKeepsOrder(t *testing.T) {
	sys, sp := newTestSystem(t, 3)
	before := sys.Snapshot()

	m := sp.NewMolecule()
	require.NoError(t, sys.Add(m))
	_, err := sys.Remove(m)
	require.NoError(t, err)
	require.Equal(t, before, sys.Snapshot())
}

func TestAddRejectsForeignAndDuplicateMolecules(t *testing.T) {
	sys, sp := newTestSystem(t, 1)
	require.ErrorIs(t, sys.Add(sys.Molecule(sp, 0)), ErrAlreadyInSystem)

	other, err := NewMonatomic("ne", "Ne", 3)
	require.NoError(t, err)
	require.ErrorIs(t, sys.Add(other.NewMolecule()), ErrUnknownSpecies)

	_, err = sys.Remove(sp.NewMolecule())
	require.ErrorIs(t, err, ErrNotInSystem)

	require.ErrorIs(t, sys.Restore(sp.NewMolecule(), 9), ErrBadSlot)
}

func TestAddSpeciesValidation(t *testing.T) {
	sys, sp := newTestSystem(t, 0)
	require.Error(t, sys.AddSpecies(sp))

	flat, err := NewMonatomic("flat", "X", 2)
	require.NoError(t, err)
	require.Error(t, sys.AddSpecies(flat))

	dup, err := NewMonatomic("ar", "Ar", 3)
	require.NoError(t, err)
	require.Error(t, sys.AddSpecies(dup))
}

func TestGlobalOrderSpansSpecies(t *testing.T) {
	b, err := space.NewCubicBoundary(2, 5)
	require.NoError(t, err)
	a, err := NewMonatomic("a", "A", 2)
	require.NoError(t, err)
	c, err := NewMonatomic("c", "C", 2)
	require.NoError(t, err)
	sys, err := New(b, a, c)
	require.NoError(t, err)

	ma := a.NewMolecule()
	mc1, mc2 := c.NewMolecule(), c.NewMolecule()
	require.NoError(t, sys.Add(mc1))
	require.NoError(t, sys.Add(ma))
	require.NoError(t, sys.Add(mc2))

	require.Equal(t, 3, sys.Count())
	require.Same(t, ma, sys.At(0))
	require.Same(t, mc1, sys.At(1))
	require.Same(t, mc2, sys.At(2))
	require.Nil(t, sys.At(3))
	require.Len(t, sys.Atoms(), 3)
	got, ok := sys.SpeciesByName("c")
	require.True(t, ok)
	require.Same(t, c, got)
}

func TestLinearChainTemplateHonorsGeometry(t *testing.T) {
	angle := 109.47 * math.Pi / 180
	sp, err := NewLinearChain("butane", "CH2", 4, BondGeometry{Length: 1.54, Angle: angle}, 3)
	require.NoError(t, err)
	require.True(t, sp.IsChain())

	m := sp.NewMolecule()
	for i := 1; i < 4; i++ {
		bond := space.Sub(m.Atoms[i].Position, m.Atoms[i-1].Position)
		require.InDelta(t, 1.54, bond.Norm(), 1e-12)
	}
	for i := 1; i < 3; i++ {
		back := space.Sub(m.Atoms[i-1].Position, m.Atoms[i].Position)
		fwd := space.Sub(m.Atoms[i+1].Position, m.Atoms[i].Position)
		cos := back.Dot(fwd) / (back.Norm() * fwd.Norm())
		require.InDelta(t, math.Cos(angle), cos, 1e-12)
	}

	_, err = NewLinearChain("x", "X", 1, BondGeometry{Length: 1}, 3)
	require.Error(t, err)
	_, err = NewLinearChain("x", "X", 3, BondGeometry{Length: 0}, 3)
	require.Error(t, err)
	_, err = NewLinearChain("x", "X", 3, BondGeometry{Length: 1}, 1)
	require.Error(t, err)
}

func TestMoleculeCenterAndConformation(t *testing.T) {
	sp, err := NewRigid("dimer", []AtomSpec{
		{Type: "A", Offset: space.Vector{0, 0}},
		{Type: "A", Offset: space.Vector{2, 0}},
	})
	require.NoError(t, err)
	m := sp.NewMolecule()
	require.Equal(t, space.Vector{1, 0}, m.Center())

	m.SetCenter(space.Vector{5, 5})
	require.Equal(t, space.Vector{4, 5}, m.Atoms[0].Position)
	require.Equal(t, space.Vector{6, 5}, m.Atoms[1].Position)

	m.Atoms[1].Position[1] = 9
	m.ResetConformation()
	require.Equal(t, space.Vector{6, 5}, m.Atoms[1].Position)
	require.NotEqual(t, sp.NewMolecule().ID(), m.ID())
}
