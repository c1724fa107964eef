package moves

import (
	"fmt"

	"metropolis/internal/mc"
)

// NewReptation always fails. Slithering-snake chain moves are known to break
// detailed balance in this engine; no move is ever built.
func NewReptation(ChainRegrowthConfig) (mc.Move, error) {
	return nil, fmt.Errorf("%w: reptation is disabled", ErrUnsoundMove)
}
