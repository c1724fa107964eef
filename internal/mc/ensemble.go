package mc

import (
	"errors"
	"fmt"
	"math"
)

// Ensemble holds the thermodynamic parameters moves read. Mu is keyed by
// species name.
type Ensemble struct {
	Beta     float64
	Pressure float64
	Mu       map[string]float64
}

func (e Ensemble) Validate() error {
	if !(e.Beta > 0) || math.IsInf(e.Beta, 0) {
		return errors.New("beta must be finite and > 0")
	}
	if math.IsNaN(e.Pressure) || math.IsInf(e.Pressure, 0) {
		return errors.New("pressure must be finite")
	}
	for name, mu := range e.Mu {
		if math.IsNaN(mu) || math.IsInf(mu, 0) {
			return fmt.Errorf("chemical potential for %s must be finite", name)
		}
	}
	return nil
}

func (e Ensemble) ChemicalPotential(species string) (float64, bool) {
	mu, ok := e.Mu[species]
	return mu, ok
}
