package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

const (
	RunStatusCompleted   = "completed"
	RunStatusFailed      = "failed"
	RunStatusInterrupted = "interrupted"
)

// RunRecord summarizes one simulation run.
type RunRecord struct {
	VersionedRecord
	ID                 string         `json:"id"`
	CreatedAt          time.Time      `json:"created_at"`
	Status             string         `json:"status"`
	Error              string         `json:"error,omitempty"`
	Seed               int64          `json:"seed"`
	Potential          string         `json:"potential"`
	Beta               float64        `json:"beta"`
	Pressure           float64        `json:"pressure,omitempty"`
	Moves              []string       `json:"moves"`
	EquilibrationSteps int            `json:"equilibration_steps"`
	ProductionSteps    int            `json:"production_steps"`
	Counts             map[string]int `json:"counts"`
	Volume             float64        `json:"volume"`
	Energy             float64        `json:"energy"`
	// ClusterWeight is set for cluster-sampling runs only.
	ClusterWeight float64 `json:"cluster_weight,omitempty"`
}

type MoveStatsRecord struct {
	VersionedRecord
	Move     string  `json:"move"`
	Trials   int64   `json:"trials"`
	Accepted int64   `json:"accepted"`
	Rejected int64   `json:"rejected"`
	Failed   int64   `json:"failed"`
	StepSize float64 `json:"step_size,omitempty"`
}

type MoleculeRecord struct {
	ID        int64       `json:"id"`
	Positions [][]float64 `json:"positions"`
}

// ConfigurationSnapshot is the final configuration of a run.
type ConfigurationSnapshot struct {
	VersionedRecord
	RunID   string                      `json:"run_id"`
	Dims    []float64                   `json:"dims"`
	Species map[string][]MoleculeRecord `json:"species"`
}
