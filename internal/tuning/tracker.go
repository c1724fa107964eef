package tuning

import (
	"errors"
	"math"
)

const (
	DefaultAdjustInterval   = 100
	DefaultAdjustStep       = 1.05
	DefaultTargetAcceptance = 0.5
)

// UniformSource supplies deviates in [0,1) for noisy adjustment.
type UniformSource interface {
	Uniform() float64
}

// StepSizeTracker adapts a move's step size toward a target acceptance rate.
// Adjustment happens only while Tunable is set; Freeze it before production
// sampling so the proposal kernel stops depending on acceptance history.
type StepSizeTracker struct {
	StepSize         float64
	StepSizeMin      float64
	StepSizeMax      float64
	AdjustInterval   int
	AdjustStep       float64
	TargetAcceptance float64
	Tunable          bool
	// Noisy perturbs the adjustment factor at every adjustment so that
	// alternating grow/shrink cycles do not lock into a fixed pattern.
	Noisy bool
	Rand  UniformSource

	trials  int
	accepts int

	totalTrials  int64
	totalAccepts int64
	adjustments  int64
}

// NewStepSizeTracker returns a tunable tracker with default schedule.
func NewStepSizeTracker(step, lo, hi float64) (*StepSizeTracker, error) {
	t := &StepSizeTracker{
		StepSize:         step,
		StepSizeMin:      lo,
		StepSizeMax:      hi,
		AdjustInterval:   DefaultAdjustInterval,
		AdjustStep:       DefaultAdjustStep,
		TargetAcceptance: DefaultTargetAcceptance,
		Tunable:          true,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *StepSizeTracker) Validate() error {
	if t == nil {
		return errors.New("tracker is required")
	}
	if !(t.StepSize > 0) || math.IsInf(t.StepSize, 0) {
		return errors.New("step size must be finite and > 0")
	}
	if t.StepSizeMin < 0 {
		return errors.New("step size min must be >= 0")
	}
	if t.StepSizeMax < t.StepSizeMin {
		return errors.New("step size max must be >= min")
	}
	if t.StepSize < t.StepSizeMin || t.StepSize > t.StepSizeMax {
		return errors.New("step size must lie within [min, max]")
	}
	if t.AdjustInterval <= 0 {
		return errors.New("adjust interval must be > 0")
	}
	if !(t.AdjustStep > 1) {
		return errors.New("adjust step must be > 1")
	}
	if t.TargetAcceptance <= 0 || t.TargetAcceptance >= 1 {
		return errors.New("target acceptance must be in (0, 1)")
	}
	if t.Noisy && t.Rand == nil {
		return errors.New("noisy adjustment requires a random source")
	}
	return nil
}

// Record counts one resolved trial and reports whether the step size changed.
// Failed trials (no proposal) must not be recorded.
func (t *StepSizeTracker) Record(accepted bool) bool {
	t.trials++
	t.totalTrials++
	if accepted {
		t.accepts++
		t.totalAccepts++
	}
	if !t.Tunable || t.trials < t.AdjustInterval {
		return false
	}
	rate := float64(t.accepts) / float64(t.trials)
	t.trials, t.accepts = 0, 0
	if rate == t.TargetAcceptance {
		return false
	}

	factor := t.AdjustStep
	if t.Noisy {
		factor = math.Pow(t.AdjustStep, 0.5+t.Rand.Uniform())
	}
	prev := t.StepSize
	if rate > t.TargetAcceptance {
		t.StepSize = math.Min(t.StepSize*factor, t.StepSizeMax)
	} else {
		t.StepSize = math.Max(t.StepSize/factor, t.StepSizeMin)
	}
	if t.StepSize == prev {
		return false
	}
	t.adjustments++
	return true
}

// Reset clears the window and lifetime counters and makes the tracker
// tunable again, as at the start of an equilibration phase.
func (t *StepSizeTracker) Reset() {
	t.trials, t.accepts = 0, 0
	t.totalTrials, t.totalAccepts, t.adjustments = 0, 0, 0
	t.Tunable = true
}

// Freeze stops adjustment and drops the partial window.
func (t *StepSizeTracker) Freeze() {
	t.Tunable = false
	t.trials, t.accepts = 0, 0
}

// AcceptanceRate is the lifetime acceptance fraction since the last Reset.
func (t *StepSizeTracker) AcceptanceRate() float64 {
	if t.totalTrials == 0 {
		return 0
	}
	return float64(t.totalAccepts) / float64(t.totalTrials)
}

func (t *StepSizeTracker) Trials() int64 {
	return t.totalTrials
}

func (t *StepSizeTracker) Adjustments() int64 {
	return t.adjustments
}
