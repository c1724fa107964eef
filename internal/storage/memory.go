package storage

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"

	"metropolis/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	moveStats   map[string][]model.MoveStatsRecord
	snapshots   map[string]model.ConfigurationSnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.moveStats = make(map[string][]model.MoveStatsRecord)
	s.snapshots = make(map[string]model.ConfigurationSnapshot)
	return nil
}

func (s *MemoryStore) ready() error {
	if !s.initialized {
		return errors.New("store is not initialized")
	}
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return model.RunRecord{}, false, err
	}

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	return cloneRun(run), true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, cloneRun(run))
	}
	sortRuns(out)
	return out, nil
}

// DeleteRun removes a run together with its move statistics and snapshot.
func (s *MemoryStore) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	delete(s.runs, id)
	delete(s.moveStats, id)
	delete(s.snapshots, id)
	return nil
}

func (s *MemoryStore) SaveMoveStats(_ context.Context, runID string, stats []model.MoveStatsRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	s.moveStats[runID] = slices.Clone(stats)
	return nil
}

func (s *MemoryStore) GetMoveStats(_ context.Context, runID string) ([]model.MoveStatsRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, false, err
	}

	stats, ok := s.moveStats[runID]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(stats), true, nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snapshot model.ConfigurationSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}

	s.snapshots[snapshot.RunID] = cloneSnapshot(snapshot)
	return nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, runID string) (model.ConfigurationSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return model.ConfigurationSnapshot{}, false, err
	}

	snapshot, ok := s.snapshots[runID]
	if !ok {
		return model.ConfigurationSnapshot{}, false, nil
	}
	return cloneSnapshot(snapshot), true, nil
}

func cloneRun(run model.RunRecord) model.RunRecord {
	run.Moves = slices.Clone(run.Moves)
	run.Counts = maps.Clone(run.Counts)
	return run
}

func cloneSnapshot(s model.ConfigurationSnapshot) model.ConfigurationSnapshot {
	out := s
	out.Dims = slices.Clone(s.Dims)
	out.Species = make(map[string][]model.MoleculeRecord, len(s.Species))
	for name, mols := range s.Species {
		copied := make([]model.MoleculeRecord, len(mols))
		for i, m := range mols {
			positions := make([][]float64, len(m.Positions))
			for j, p := range m.Positions {
				positions[j] = slices.Clone(p)
			}
			copied[i] = model.MoleculeRecord{ID: m.ID, Positions: positions}
		}
		out.Species[name] = copied
	}
	return out
}

func sortRuns(runs []model.RunRecord) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.Before(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}
