package storage

import (
	"context"

	"metropolis/internal/model"
)

// Store defines persistence operations for simulation runs and their results.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns every run ordered by creation time, oldest first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	DeleteRun(ctx context.Context, id string) error
	SaveMoveStats(ctx context.Context, runID string, stats []model.MoveStatsRecord) error
	GetMoveStats(ctx context.Context, runID string) ([]model.MoveStatsRecord, bool, error)
	SaveSnapshot(ctx context.Context, snapshot model.ConfigurationSnapshot) error
	GetSnapshot(ctx context.Context, runID string) (model.ConfigurationSnapshot, bool, error)
}
