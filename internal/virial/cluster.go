// Package virial evaluates cluster-diagram sums of Mayer f-bonds, the
// sampling weights of Mayer-sampling virial-coefficient calculations.
package virial

import (
	"errors"
	"fmt"
	"math"

	"metropolis/internal/box"
	"metropolis/internal/potential"
	"metropolis/internal/space"
)

var ErrPointCount = errors.New("cluster point count does not match system")

// Bond connects points I and J (0-based) with one Mayer f function.
type Bond struct {
	I, J int
}

// Diagram is a product of f-bonds with a signed combinatorial coefficient.
type Diagram struct {
	Coefficient float64
	Bonds       []Bond
}

// Ring is the n-point cycle 0-1-...-(n-1)-0 with unit coefficient. For n=2
// it is the single bond of the second virial coefficient.
func Ring(n int) Diagram {
	if n == 2 {
		return Diagram{Coefficient: 1, Bonds: []Bond{{0, 1}}}
	}
	bonds := make([]Bond, n)
	for i := 0; i < n; i++ {
		bonds[i] = Bond{I: i, J: (i + 1) % n}
	}
	return Diagram{Coefficient: 1, Bonds: bonds}
}

// FullyConnected bonds every pair of the n points.
func FullyConnected(n int) Diagram {
	bonds := make([]Bond, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			bonds = append(bonds, Bond{I: i, J: j})
		}
	}
	return Diagram{Coefficient: 1, Bonds: bonds}
}

// Cluster is a signed sum of diagrams over n points, one point per molecule
// (located at the molecule center).
type Cluster struct {
	n        int
	diagrams []Diagram
	pair     potential.Pair
	beta     float64

	f []float64
}

func NewCluster(n int, diagrams []Diagram, pair potential.Pair, beta float64) (*Cluster, error) {
	if n < 2 {
		return nil, errors.New("cluster needs at least 2 points")
	}
	if len(diagrams) == 0 {
		return nil, errors.New("at least one diagram is required")
	}
	if pair == nil {
		return nil, errors.New("pair potential is required")
	}
	if !(beta > 0) || math.IsInf(beta, 0) {
		return nil, errors.New("beta must be finite and > 0")
	}
	for d, diagram := range diagrams {
		for _, b := range diagram.Bonds {
			if b.I < 0 || b.J < 0 || b.I >= n || b.J >= n || b.I == b.J {
				return nil, fmt.Errorf("diagram %d has invalid bond %d-%d", d, b.I, b.J)
			}
		}
	}
	return &Cluster{
		n:        n,
		diagrams: append([]Diagram(nil), diagrams...),
		pair:     pair,
		beta:     beta,
		f:        make([]float64, n*n),
	}, nil
}

func (c *Cluster) Points() int {
	return c.n
}

// Value returns the signed diagram sum for the current configuration.
func (c *Cluster) Value(sys *box.System) (float64, error) {
	mols := sys.All()
	if len(mols) != c.n {
		return 0, fmt.Errorf("%w: got=%d want=%d", ErrPointCount, len(mols), c.n)
	}
	centers := make([]space.Vector, c.n)
	for i, m := range mols {
		centers[i] = m.Center()
	}
	for i := 0; i < c.n; i++ {
		for j := i + 1; j < c.n; j++ {
			dr := space.Sub(centers[j], centers[i])
			sys.Boundary().NearestImage(dr)
			f := potential.MayerF(c.pair, c.beta, dr.SquaredNorm())
			c.f[i*c.n+j] = f
			c.f[j*c.n+i] = f
		}
	}
	sum := 0.0
	for _, d := range c.diagrams {
		prod := d.Coefficient
		for _, b := range d.Bonds {
			prod *= c.f[b.I*c.n+b.J]
			if prod == 0 {
				break
			}
		}
		sum += prod
	}
	return sum, nil
}

// Weight is the sampling weight |Value|.
func (c *Cluster) Weight(sys *box.System) (float64, error) {
	v, err := c.Value(sys)
	if err != nil {
		return 0, err
	}
	return math.Abs(v), nil
}
