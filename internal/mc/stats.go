package mc

// MoveStats counts resolved and failed trials of one move.
type MoveStats struct {
	Move     string  `json:"move"`
	Trials   int64   `json:"trials"`
	Accepted int64   `json:"accepted"`
	Rejected int64   `json:"rejected"`
	Failed   int64   `json:"failed"`
	StepSize float64 `json:"step_size,omitempty"`
}

// AcceptanceRate excludes failed trials.
func (s MoveStats) AcceptanceRate() float64 {
	if s.Trials == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(s.Trials)
}
