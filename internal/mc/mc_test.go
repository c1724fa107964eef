package mc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"metropolis/internal/box"
	"metropolis/internal/space"
	"metropolis/internal/tuning"
)

// countingStream wraps a seeded stream, optionally overriding Uniform with a
// fixed script, and counts the deviates it hands out.
type countingStream struct {
	*space.Stream
	script   []float64
	uniforms int
}

func (s *countingStream) Uniform() float64 {
	s.uniforms++
	if len(s.script) > 0 {
		u := s.script[0]
		s.script = s.script[1:]
		return u
	}
	return s.Stream.Uniform()
}

func newCounting(script ...float64) *countingStream {
	return &countingStream{Stream: space.NewStream(1), script: script}
}

func TestMetropolisFastPaths(t *testing.T) {
	rng := newCounting()
	m, err := NewMetropolis(rng)
	require.NoError(t, err)

	ok, err := m.Accept(Factors{A: 1, B: 0})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = m.Accept(Factors{A: 3, B: 2})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = m.Accept(Factors{A: 0, B: 5})
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = m.Accept(Factors{A: 10, B: math.Inf(-1)})
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, rng.uniforms, "fast paths must not draw deviates")
}

func TestMetropolisDrawsInLogSpace(t *testing.T) {
	rng := newCounting(0.5, 0.5, 0.3)
	m, err := NewMetropolis(rng)
	require.NoError(t, err)

	// probability exp(-0.5) ~ 0.607 > 0.5
	ok, err := m.Accept(Factors{A: 1, B: -0.5})
	require.NoError(t, err)
	require.True(t, ok)
	// probability 0.4 < 0.5
	ok, err = m.Accept(Factors{A: 0.4, B: 0})
	require.NoError(t, err)
	require.False(t, ok)
	// exp(-800) underflows but ln a + b = ln 0.5
	ok, err = m.Accept(Factors{A: 1, LnA: -800, B: 800 + math.Log(0.5)})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, rng.uniforms)
}

func TestMetropolisLogPrefactorOutsideFloatRange(t *testing.T) {
	rng := newCounting(0.999)
	m, err := NewMetropolis(rng)
	require.NoError(t, err)

	// exp(-1100) is 0 and exp(1400) is +Inf; the sum is +300.
	f := Factors{A: 1, LnA: -1100, B: 1400}
	require.Zero(t, f.Prefactor())
	ok, err := m.Accept(f)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1.0, Probability(f))
	require.Zero(t, rng.uniforms)

	// exp(1200) is +Inf; the sum is -300.
	f = Factors{A: 1, LnA: 1200, B: -1500}
	require.True(t, math.IsInf(f.Prefactor(), 1))
	ok, err = m.Accept(f)
	require.NoError(t, err)
	require.False(t, ok)
	require.InDelta(t, 0, Probability(f), 1e-100)
	require.Equal(t, 1, rng.uniforms)

	ok, err = m.Accept(Factors{A: 1, LnA: math.Inf(-1), B: 5})
	require.NoError(t, err)
	require.False(t, ok)
	_, err = m.Accept(Factors{A: 1, LnA: math.NaN()})
	require.ErrorIs(t, err, ErrNaNFactor)
	_, err = m.Accept(Factors{A: 1, LnA: math.Inf(1), B: math.Inf(1)})
	require.NoError(t, err)
	require.Equal(t, 1, rng.uniforms)
}

func TestMetropolisRejectsNaN(t *testing.T) {
	m, err := NewMetropolis(newCounting())
	require.NoError(t, err)
	_, err = m.Accept(Factors{A: math.NaN(), B: 0})
	require.ErrorIs(t, err, ErrNaNFactor)
	_, err = m.Accept(Factors{A: 1, B: math.NaN()})
	require.ErrorIs(t, err, ErrNaNFactor)
	_, err = m.Accept(Factors{A: -1, B: 0})
	require.ErrorIs(t, err, ErrNegativeFactor)
}

func TestProbability(t *testing.T) {
	require.Equal(t, 1.0, Probability(Factors{A: 2, B: 0}))
	require.Equal(t, 0.0, Probability(Factors{A: 0, B: 1}))
	require.Equal(t, 0.0, Probability(Factors{A: 1, B: math.Inf(-1)}))
	require.InDelta(t, 0.25, Probability(Factors{A: 0.5, B: math.Log(0.5)}), 1e-15)
	require.Equal(t, 1.0, Probability(Factors{A: 0.5, B: 1}))
	require.InDelta(t, 0.5, Probability(Factors{A: 2, LnA: -math.Log(4), B: 0}), 1e-15)
}

func monatomicSystem(t *testing.T, n int) (*box.System, *box.Species) {
	t.Helper()
	b, err := space.NewCubicBoundary(3, 10)
	require.NoError(t, err)
	sp, err := box.NewMonatomic("ar", "Ar", 3)
	require.NoError(t, err)
	sys, err := box.New(b, sp)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.NoError(t, sys.Add(sp.NewMolecule()))
	}
	return sys, sp
}

func TestMoleculeSourceExcludesFixed(t *testing.T) {
	sys, sp := monatomicSystem(t, 4)
	src, err := NewMoleculeSource(sys, sp, 0, 2, 0)
	require.NoError(t, err)
	require.Equal(t, []int{0, 2}, src.Fixed())
	require.Equal(t, 2, src.Len())

	seen := map[*box.Molecule]int{}
	rng := space.NewStream(9)
	for i := 0; i < 400; i++ {
		seen[src.Select(rng)]++
	}
	require.Len(t, seen, 2)
	require.Zero(t, seen[sys.Molecule(sp, 0)])
	require.Zero(t, seen[sys.Molecule(sp, 2)])
	require.Positive(t, seen[sys.Molecule(sp, 1)])
	require.Positive(t, seen[sys.Molecule(sp, 3)])

	only, err := NewMoleculeSource(sys, nil, 0, 1, 2, 3)
	require.NoError(t, err)
	require.Nil(t, only.Select(rng))

	_, err = NewMoleculeSource(sys, sp, -1)
	require.Error(t, err)
	other, err := box.NewMonatomic("ne", "Ne", 3)
	require.NoError(t, err)
	_, err = NewMoleculeSource(sys, other)
	require.ErrorIs(t, err, box.ErrUnknownSpecies)
}

func TestAtomSourceSelectsLiveAtoms(t *testing.T) {
	sys, sp := monatomicSystem(t, 3)
	src, err := NewAtomSource(sys, sp, 1)
	require.NoError(t, err)
	rng := space.NewStream(2)
	for i := 0; i < 50; i++ {
		a := src.Select(rng)
		require.NotNil(t, a)
		require.NotSame(t, sys.Molecule(sp, 1).Atoms[0], a)
	}
	empty, _ := monatomicSystem(t, 0)
	esrc, err := NewAtomSource(empty, nil)
	require.NoError(t, err)
	require.Nil(t, esrc.Select(rng))
}

func TestReservoirExclusiveOwnership(t *testing.T) {
	sys, sp := monatomicSystem(t, 1)
	res := NewReservoir(sp)

	live := sys.Molecule(sp, 0)
	require.ErrorIs(t, res.Deposit(live), ErrLiveMolecule)

	_, err := sys.Remove(live)
	require.NoError(t, err)
	require.NoError(t, res.Deposit(live))
	require.ErrorIs(t, res.Deposit(live), ErrAlreadyReserved)
	require.True(t, res.Contains(live))
	require.Equal(t, 1, res.Len())

	got := res.Withdraw()
	require.Same(t, live, got)
	require.False(t, res.Contains(live))
	fresh := res.Withdraw()
	require.NotSame(t, live, fresh)
	require.Equal(t, sp, fresh.Species())

	other, err := box.NewMonatomic("ne", "Ne", 3)
	require.NoError(t, err)
	require.ErrorIs(t, res.Deposit(other.NewMolecule()), ErrReservoirSpecies)
}

func TestEnsembleValidate(t *testing.T) {
	require.NoError(t, Ensemble{Beta: 1, Mu: map[string]float64{"a": -2}}.Validate())
	require.Error(t, Ensemble{}.Validate())
	require.Error(t, Ensemble{Beta: 1, Pressure: math.Inf(1)}.Validate())
	require.Error(t, Ensemble{Beta: 1, Mu: map[string]float64{"a": math.NaN()}}.Validate())
	mu, ok := Ensemble{Beta: 1, Mu: map[string]float64{"a": -2}}.ChemicalPotential("a")
	require.True(t, ok)
	require.Equal(t, -2.0, mu)
}

// scriptedMove replays a fixed list of outcomes: nil means DoTrial fails.
type scriptedMove struct {
	name     string
	factors  []*Factors
	tracker  *tuning.StepSizeTracker
	atom     *box.Atom
	accepted int
	rejected int
	pending  bool
}

func (m *scriptedMove) Name() string { return m.name }

func (m *scriptedMove) DoTrial() bool {
	if m.pending {
		panic("reentrant trial")
	}
	f := m.factors[0]
	m.factors = m.factors[1:]
	if f == nil {
		return false
	}
	m.factors = append([]*Factors{f}, m.factors...)
	m.pending = true
	return true
}

func (m *scriptedMove) AcceptanceFactors() Factors {
	f := *m.factors[0]
	return f
}

func (m *scriptedMove) AcceptNotify() {
	m.factors = m.factors[1:]
	m.accepted++
	m.pending = false
}

func (m *scriptedMove) RejectNotify() {
	m.factors = m.factors[1:]
	m.rejected++
	m.pending = false
}

func (m *scriptedMove) AffectedAtoms() []*box.Atom {
	if m.atom == nil {
		return nil
	}
	return []*box.Atom{m.atom}
}

func (m *scriptedMove) Tracker() *tuning.StepSizeTracker { return m.tracker }

func repeat(f *Factors, n int) []*Factors {
	out := make([]*Factors, n)
	for i := range out {
		out[i] = f
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIntegratorResolvesTrials(t *testing.T) {
	sys, sp := monatomicSystem(t, 2)
	var events []TrialEvent
	in, err := NewIntegrator(IntegratorConfig{
		System:    sys,
		Random:    newCounting(),
		Logger:    quietLogger(),
		Listeners: []TrialListener{func(ev TrialEvent) { events = append(events, ev) }},
	})
	require.NoError(t, err)

	mv := &scriptedMove{
		name:    "scripted",
		factors: []*Factors{{A: 1}, nil, {A: 0}, {A: 2, B: 1}},
		atom:    sys.Molecule(sp, 0).Atoms[0],
	}
	require.NoError(t, in.Register(Registration{Move: mv, Weight: 1}))
	require.ErrorIs(t, in.Register(Registration{Move: &scriptedMove{name: "scripted"}, Weight: 1}), ErrMoveExists)

	require.NoError(t, in.Run(context.Background(), 4))
	require.Equal(t, 2, mv.accepted)
	require.Equal(t, 1, mv.rejected)

	st := in.Stats()
	require.Len(t, st, 1)
	require.Equal(t, MoveStats{Move: "scripted", Trials: 3, Accepted: 2, Rejected: 1, Failed: 1}, st[0])
	require.InDelta(t, 2.0/3.0, st[0].AcceptanceRate(), 1e-15)

	require.Len(t, events, 4)
	require.True(t, events[1].Failed)
	require.Empty(t, events[1].Affected)
	require.False(t, events[2].Accepted)
	require.Equal(t, []*box.Atom{mv.atom}, events[3].Affected)
	require.Equal(t, int64(4), in.Steps())

	in.ResetStats()
	require.Equal(t, MoveStats{Move: "scripted"}, in.Stats()[0])
}

func TestIntegratorNaNRollsBackAndStops(t *testing.T) {
	sys, _ := monatomicSystem(t, 1)
	in, err := NewIntegrator(IntegratorConfig{System: sys, Random: newCounting(), Logger: quietLogger()})
	require.NoError(t, err)
	mv := &scriptedMove{name: "bad", factors: []*Factors{{A: math.NaN()}, {A: 1}}}
	require.NoError(t, in.Register(Registration{Move: mv, Weight: 1}))

	err = in.Run(context.Background(), 2)
	require.ErrorIs(t, err, ErrNaNFactor)
	require.Equal(t, 1, mv.rejected)
	require.False(t, mv.pending)
	require.Zero(t, in.Stats()[0].Trials)
}

func TestIntegratorWeightedSelection(t *testing.T) {
	sys, _ := monatomicSystem(t, 3)
	// weights: a=1 (per move), b=1 per particle -> 3; draw 0.2*4=0.8 -> a, 0.5*4=2 -> b
	in, err := NewIntegrator(IntegratorConfig{System: sys, Random: newCounting(0.2, 0.5), Logger: quietLogger()})
	require.NoError(t, err)
	a := &scriptedMove{name: "a", factors: repeat(&Factors{A: 1}, 4)}
	b := &scriptedMove{name: "b", factors: repeat(&Factors{A: 1}, 4)}
	zero := &scriptedMove{name: "zero"}
	require.NoError(t, in.Register(Registration{Move: a, Weight: 1}))
	require.NoError(t, in.Register(Registration{Move: zero, Weight: 0}))
	require.NoError(t, in.Register(Registration{Move: b, Weight: 1, PerParticle: true}))

	require.NoError(t, in.Step())
	require.NoError(t, in.Step())
	require.Equal(t, 1, a.accepted)
	require.Equal(t, 1, b.accepted)

	empty, _ := monatomicSystem(t, 0)
	in2, err := NewIntegrator(IntegratorConfig{System: empty, Random: newCounting(), Logger: quietLogger()})
	require.NoError(t, err)
	require.NoError(t, in2.Register(Registration{Move: b, Weight: 1, PerParticle: true}))
	require.ErrorIs(t, in2.Step(), ErrNoEligibleMove)
}

func TestEquilibrateTunesThenFreezes(t *testing.T) {
	sys, _ := monatomicSystem(t, 1)
	tr, err := tuning.NewStepSizeTracker(0.5, 0.01, 4)
	require.NoError(t, err)
	tr.AdjustInterval = 5
	tr.AdjustStep = 2
	tr.Freeze()

	in, err := NewIntegrator(IntegratorConfig{System: sys, Random: newCounting(), Logger: quietLogger()})
	require.NoError(t, err)
	mv := &scriptedMove{name: "tuned", factors: repeat(&Factors{A: 1}, 20), tracker: tr}
	require.NoError(t, in.Register(Registration{Move: mv, Weight: 1}))

	require.NoError(t, in.Equilibrate(context.Background(), 10))
	require.Equal(t, 2.0, tr.StepSize)
	require.False(t, tr.Tunable)
	require.Equal(t, 2.0, in.Stats()[0].StepSize)

	require.NoError(t, in.Run(context.Background(), 10))
	require.Equal(t, 2.0, tr.StepSize, "production must not adjust the step")
}

func TestRunWithoutEquilibrationFreezesTrackers(t *testing.T) {
	sys, _ := monatomicSystem(t, 1)
	tr, err := tuning.NewStepSizeTracker(0.5, 0.01, 4)
	require.NoError(t, err)
	tr.AdjustInterval = 5
	tr.AdjustStep = 2
	require.True(t, tr.Tunable)

	in, err := NewIntegrator(IntegratorConfig{System: sys, Random: newCounting(), Logger: quietLogger()})
	require.NoError(t, err)
	mv := &scriptedMove{name: "fresh", factors: repeat(&Factors{A: 1}, 20), tracker: tr}
	require.NoError(t, in.Register(Registration{Move: mv, Weight: 1}))

	require.NoError(t, in.Run(context.Background(), 20))
	require.False(t, tr.Tunable)
	require.Equal(t, 0.5, tr.StepSize)
	require.Zero(t, tr.Adjustments())
}

func TestRunHonorsCancellationBetweenTrials(t *testing.T) {
	sys, _ := monatomicSystem(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	in, err := NewIntegrator(IntegratorConfig{System: sys, Random: newCounting(), Logger: quietLogger()})
	require.NoError(t, err)
	mv := &scriptedMove{name: "m", factors: repeat(&Factors{A: 1}, 10)}
	require.NoError(t, in.Register(Registration{Move: mv, Weight: 1}))
	in.AddListener(func(TrialEvent) { cancel() })

	err = in.Run(ctx, 10)
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, 1, mv.accepted)
	require.False(t, mv.pending)
}
