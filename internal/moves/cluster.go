package moves

import (
	"errors"
	"fmt"
	"slices"

	"metropolis/internal/box"
	"metropolis/internal/mc"
	"metropolis/internal/tuning"
	"metropolis/internal/virial"
)

var (
	ErrZeroClusterWeight = errors.New("cluster weight of the current configuration is zero")
	ErrAnchorNotFixed    = errors.New("inner move must exclude molecule 0 from selection")
)

// FixedSelector is implemented by moves whose selection skips fixed indices.
type FixedSelector interface {
	FixedIndices() []int
}

type ClusterWeightConfig struct {
	Name    string
	System  *box.System
	Cluster *virial.Cluster
	// Inner proposes the geometric change. Its selection must exclude
	// index 0, which anchors the cluster in space. The inner move's
	// Boltzmann term is ignored: the cluster weight replaces it.
	Inner mc.Move
}

// ClusterWeight samples configurations with probability proportional to
// |sum of cluster diagrams|, as needed for Mayer-sampling virial
// coefficients: A = A_inner * wNew/wOld, B = 0.
type ClusterWeight struct {
	trialState
	sys     *box.System
	cluster *virial.Cluster
	inner   mc.Move

	wOld float64
	wNew float64
	a    float64
	lnA  float64
}

func NewClusterWeight(cfg ClusterWeightConfig) (*ClusterWeight, error) {
	if cfg.System == nil || cfg.Cluster == nil || cfg.Inner == nil {
		return nil, errors.New("system, cluster and inner move are required")
	}
	sel, ok := cfg.Inner.(FixedSelector)
	if !ok || !slices.Contains(sel.FixedIndices(), 0) {
		return nil, ErrAnchorNotFixed
	}
	w, err := cfg.Cluster.Weight(cfg.System)
	if err != nil {
		return nil, err
	}
	if w == 0 {
		return nil, ErrZeroClusterWeight
	}
	name := cfg.Name
	if name == "" {
		name = "cluster_" + cfg.Inner.Name()
	}
	return &ClusterWeight{
		trialState: trialState{name: name},
		sys:        cfg.System,
		cluster:    cfg.Cluster,
		inner:      cfg.Inner,
		wOld:       w,
	}, nil
}

// Weight is the weight of the current configuration.
func (c *ClusterWeight) Weight() float64 {
	return c.wOld
}

func (c *ClusterWeight) Tracker() *tuning.StepSizeTracker {
	return c.inner.Tracker()
}

func (c *ClusterWeight) DoTrial() bool {
	if c.wOld == 0 {
		panic(fmt.Sprintf("moves: %s: %v", c.name, ErrZeroClusterWeight))
	}
	c.begin()
	if !c.inner.DoTrial() {
		c.abort()
		return false
	}
	inner := c.inner.AcceptanceFactors()
	c.a, c.lnA = inner.A, inner.LnA
	w, err := c.cluster.Weight(c.sys)
	must(err, "cluster weight")
	c.wNew = w
	return true
}

func (c *ClusterWeight) AcceptanceFactors() mc.Factors {
	return mc.Factors{A: c.a * c.wNew / c.wOld, LnA: c.lnA}
}

func (c *ClusterWeight) AcceptNotify() {
	c.inner.AcceptNotify()
	c.wOld = c.wNew
	c.resolve(c.inner.AffectedAtoms())
}

func (c *ClusterWeight) RejectNotify() {
	c.inner.RejectNotify()
	c.resolve(c.inner.AffectedAtoms())
}
