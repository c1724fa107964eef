package mc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"metropolis/internal/box"
	"metropolis/internal/space"
)

var (
	ErrNoEligibleMove = errors.New("no move has positive selection weight")
	ErrMoveExists     = errors.New("move already registered")
)

// TrialEvent describes a resolved trial. Failed trials are reported with
// Failed set and no affected atoms.
type TrialEvent struct {
	Move     string
	Accepted bool
	Failed   bool
	Factors  Factors
	Affected []*box.Atom
}

// TrialListener observes trial boundaries only: it runs after
// AcceptNotify/RejectNotify returns, never mid-trial.
type TrialListener func(TrialEvent)

type IntegratorConfig struct {
	System    *box.System
	Random    space.RandomStream
	Logger    *slog.Logger
	Listeners []TrialListener
}

// Integrator drives one Markov chain: it picks a registered move, runs its
// trial, applies the Metropolis test and resolves the trial. It is strictly
// sequential and must not be shared across goroutines.
type Integrator struct {
	system     *box.System
	rng        space.RandomStream
	metropolis *Metropolis
	logger     *slog.Logger
	listeners  []TrialListener

	moves []Registration
	stats []MoveStats
	steps int64
}

func NewIntegrator(cfg IntegratorConfig) (*Integrator, error) {
	if cfg.System == nil {
		return nil, errors.New("system is required")
	}
	if cfg.Random == nil {
		return nil, errors.New("random stream is required")
	}
	metro, err := NewMetropolis(cfg.Random)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Integrator{
		system:     cfg.System,
		rng:        cfg.Random,
		metropolis: metro,
		logger:     logger,
		listeners:  append([]TrialListener(nil), cfg.Listeners...),
	}, nil
}

func (in *Integrator) Register(reg Registration) error {
	if reg.Move == nil {
		return errors.New("move is required")
	}
	if reg.Weight < 0 {
		return fmt.Errorf("move %s: weight must be >= 0", reg.Move.Name())
	}
	for _, existing := range in.moves {
		if existing.Move.Name() == reg.Move.Name() {
			return fmt.Errorf("%w: %s", ErrMoveExists, reg.Move.Name())
		}
	}
	in.moves = append(in.moves, reg)
	st := MoveStats{Move: reg.Move.Name()}
	if tr := reg.Move.Tracker(); tr != nil {
		st.StepSize = tr.StepSize
		stepSize.WithLabelValues(st.Move).Set(tr.StepSize)
	}
	in.stats = append(in.stats, st)
	return nil
}

func (in *Integrator) AddListener(l TrialListener) {
	in.listeners = append(in.listeners, l)
}

func (in *Integrator) Moves() []Registration {
	return append([]Registration(nil), in.moves...)
}

func (in *Integrator) System() *box.System {
	return in.system
}

// Steps is the number of Step calls that completed without error.
func (in *Integrator) Steps() int64 {
	return in.steps
}

// pick selects a move with probability proportional to its effective weight.
func (in *Integrator) pick() (int, error) {
	count := float64(in.system.Count())
	total := 0.0
	for _, reg := range in.moves {
		total += effectiveWeight(reg, count)
	}
	if !(total > 0) {
		return -1, ErrNoEligibleMove
	}
	target := in.rng.Uniform() * total
	cumulative := 0.0
	last := -1
	for i, reg := range in.moves {
		w := effectiveWeight(reg, count)
		if w <= 0 {
			continue
		}
		last = i
		cumulative += w
		if target < cumulative {
			return i, nil
		}
	}
	return last, nil
}

func effectiveWeight(reg Registration, count float64) float64 {
	if reg.PerParticle {
		return reg.Weight * count
	}
	return reg.Weight
}

// Step performs one scheduler tick.
func (in *Integrator) Step() error {
	idx, err := in.pick()
	if err != nil {
		return err
	}
	mv := in.moves[idx].Move
	st := &in.stats[idx]
	name := mv.Name()

	if !mv.DoTrial() {
		st.Failed++
		trialsTotal.WithLabelValues(name, outcomeFailed).Inc()
		in.notify(TrialEvent{Move: name, Failed: true})
		in.steps++
		return nil
	}

	f := mv.AcceptanceFactors()
	accepted, err := in.metropolis.Accept(f)
	if err != nil {
		mv.RejectNotify()
		in.logger.Error("trial produced invalid acceptance factors",
			"move", name, "a", f.A, "lna", f.LnA, "b", f.B, "error", err)
		return fmt.Errorf("move %s: %w", name, err)
	}
	if accepted {
		mv.AcceptNotify()
		st.Accepted++
		trialsTotal.WithLabelValues(name, outcomeAccepted).Inc()
	} else {
		mv.RejectNotify()
		st.Rejected++
		trialsTotal.WithLabelValues(name, outcomeRejected).Inc()
	}
	st.Trials++

	if tr := mv.Tracker(); tr != nil {
		prev := tr.StepSize
		if tr.Record(accepted) {
			in.logger.Debug("step size adjusted", "move", name, "from", prev, "to", tr.StepSize)
			stepSize.WithLabelValues(name).Set(tr.StepSize)
		}
		st.StepSize = tr.StepSize
	}

	in.notify(TrialEvent{Move: name, Accepted: accepted, Factors: f, Affected: mv.AffectedAtoms()})
	in.steps++
	return nil
}

func (in *Integrator) notify(ev TrialEvent) {
	for _, l := range in.listeners {
		l(ev)
	}
}

// Run performs n production steps with every step-size tracker frozen,
// whether or not Equilibrate ran first. The context is only consulted
// between trials; a trial always runs to completion.
func (in *Integrator) Run(ctx context.Context, n int) error {
	in.FreezeTrackers()
	return in.phase(ctx, "production", n)
}

// Equilibrate resets and unfreezes every step-size tracker, performs n steps
// and freezes the trackers again, also on error.
func (in *Integrator) Equilibrate(ctx context.Context, n int) error {
	for _, reg := range in.moves {
		if tr := reg.Move.Tracker(); tr != nil {
			tr.Reset()
		}
	}
	defer in.FreezeTrackers()
	return in.phase(ctx, "equilibration", n)
}

func (in *Integrator) FreezeTrackers() {
	for _, reg := range in.moves {
		if tr := reg.Move.Tracker(); tr != nil {
			tr.Freeze()
		}
	}
}

func (in *Integrator) phase(ctx context.Context, name string, n int) error {
	if n < 0 {
		return fmt.Errorf("%s steps must be >= 0", name)
	}
	if len(in.moves) == 0 {
		return ErrNoEligibleMove
	}
	start := time.Now()
	in.logger.Info("phase started", "phase", name, "steps", n, "molecules", in.system.Count())
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			in.logger.Warn("phase interrupted", "phase", name, "completed", i, "error", err)
			return err
		}
		if err := in.Step(); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)
	phaseDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	for _, st := range in.stats {
		in.logger.Info("move summary", "phase", name, "move", st.Move,
			"trials", st.Trials, "accepted", st.Accepted, "failed", st.Failed,
			"acceptance", st.AcceptanceRate(), "step_size", st.StepSize)
	}
	in.logger.Info("phase finished", "phase", name, "steps", n, "elapsed", elapsed)
	return nil
}

// Stats returns per-move counters in registration order.
func (in *Integrator) Stats() []MoveStats {
	return append([]MoveStats(nil), in.stats...)
}

// ResetStats clears trial counters, e.g. between equilibration and
// production.
func (in *Integrator) ResetStats() {
	for i := range in.stats {
		in.stats[i] = MoveStats{Move: in.stats[i].Move, StepSize: in.stats[i].StepSize}
	}
}
