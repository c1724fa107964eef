package metropolis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"metropolis/internal/box"
	"metropolis/internal/mc"
	"metropolis/internal/model"
	"metropolis/internal/moves"
	"metropolis/internal/storage"
)

const (
	defaultDBPath          = "metropolis.db"
	defaultProductionSteps = 1000
)

var ErrRunNotFound = errors.New("run not found")

type Options struct {
	StoreKind string
	DBPath    string
	Logger    *slog.Logger
}

type Client struct {
	store  storage.Store
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
}

type AtomRequest struct {
	Type   string
	Offset []float64
}

// SpeciesRequest describes one species and its initial molecule count.
// Kind is monatomic (default), rigid or chain.
type SpeciesRequest struct {
	Name     string
	Kind     string
	AtomType string
	Count    int
	// Atoms is the rigid template.
	Atoms []AtomRequest
	// Chain geometry.
	ChainLength int
	BondLength  float64
	BondAngle   float64
	Torsion     float64
}

// PotentialRequest selects the interaction: ideal, hard_sphere,
// lennard_jones or square_well. Epsilon and Cutoff are optional because zero
// is meaningful for both: a zero well depth, or an untruncated potential.
type PotentialRequest struct {
	Kind            string
	Sigma           float64
	Epsilon         *float64
	Cutoff          *float64
	Lambda          float64
	IntraSeparation int
}

// Float64 returns a pointer to v, for optional request fields.
func Float64(v float64) *float64 {
	return &v
}

type MoveRequest struct {
	Kind   string
	Name   string
	Weight float64
	// PerParticle overrides the kind default when set.
	PerParticle *bool
	Species     []string
	StepSize    float64
	StepSizeMin float64
	StepSizeMax float64
	Trials      int
	PerAtom     bool
	PerAxis     bool
	Fixed       []int
	Fugacity    []float64
}

// ClusterRequest turns a run into Mayer sampling over one point per
// molecule. Diagram is ring (default) or complete.
type ClusterRequest struct {
	Diagram string
}

type RunRequest struct {
	RunID string
	Dim   int
	// BoxLength gives a periodic cube; Box gives a periodic rectangular cell.
	BoxLength float64
	Box       []float64
	// Open selects an unbounded non-periodic space.
	Open               bool
	Species            []SpeciesRequest
	Potential          PotentialRequest
	Temperature        float64
	Pressure           float64
	Mu                 map[string]float64
	Seed               int64
	EquilibrationSteps int
	ProductionSteps    int
	Moves              []MoveRequest
	Workers            int
	Cluster            *ClusterRequest
}

type RunSummary struct {
	RunID         string
	Status        string
	Counts        map[string]int
	Volume        float64
	Energy        float64
	ClusterWeight float64
	Moves         []mc.MoveStats
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Status       string
	Seed         int64
	Potential    string
	Steps        int
	Molecules    int
	Energy       float64
}

type StatsRequest struct {
	RunID  string
	Latest bool
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{store: store, logger: logger}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.ensureStore(ctx)
}

func (c *Client) ensureStore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// MoveKinds lists the move kinds a RunRequest may name.
func MoveKinds() []string {
	return moves.ListFactories()
}

// Run builds the system described by req, equilibrates it, runs production
// and persists the outcome. A failed or interrupted run is still recorded,
// with its status and error, before the error is returned.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	req = withDefaults(req)
	if err := c.ensureStore(ctx); err != nil {
		return RunSummary{}, err
	}

	sim, err := build(req, c.logger)
	if err != nil {
		return RunSummary{}, err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := c.logger.With("run_id", runID)
	sim.integrator, err = mc.NewIntegrator(mc.IntegratorConfig{
		System: sim.system,
		Random: sim.rng,
		Logger: logger,
	})
	if err != nil {
		return RunSummary{}, err
	}
	if err := sim.register(); err != nil {
		return RunSummary{}, err
	}

	record := model.RunRecord{
		VersionedRecord:    storage.Versioned(),
		ID:                 runID,
		CreatedAt:          time.Now().UTC(),
		Seed:               req.Seed,
		Potential:          req.Potential.Kind,
		Beta:               sim.ensemble.Beta,
		Pressure:           req.Pressure,
		Moves:              sim.moveNames(),
		EquilibrationSteps: req.EquilibrationSteps,
		ProductionSteps:    req.ProductionSteps,
	}
	logger.Info("run started", "molecules", sim.system.Count(), "moves", record.Moves, "seed", req.Seed)

	runErr := sim.integrator.Equilibrate(ctx, req.EquilibrationSteps)
	if runErr == nil {
		sim.integrator.ResetStats()
		runErr = sim.integrator.Run(ctx, req.ProductionSteps)
	}
	switch {
	case runErr == nil:
		record.Status = model.RunStatusCompleted
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		record.Status = model.RunStatusInterrupted
		record.Error = runErr.Error()
	default:
		record.Status = model.RunStatusFailed
		record.Error = runErr.Error()
	}

	summary := sim.summarize(runID, record.Status)
	record.Counts = summary.Counts
	record.Volume = summary.Volume
	record.Energy = summary.Energy
	record.ClusterWeight = summary.ClusterWeight

	// The outcome is persisted even when the caller's context is done.
	saveCtx := context.WithoutCancel(ctx)
	if err := c.persist(saveCtx, record, summary.Moves, sim.system); err != nil {
		return summary, errors.Join(runErr, err)
	}
	if runErr != nil {
		logger.Warn("run stopped", "status", record.Status, "error", runErr)
		return summary, runErr
	}
	logger.Info("run finished", "energy", summary.Energy, "volume", summary.Volume, "counts", summary.Counts)
	return summary, nil
}

func (c *Client) persist(ctx context.Context, record model.RunRecord, stats []mc.MoveStats, sys *box.System) error {
	if err := c.store.SaveRun(ctx, record); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	records := make([]model.MoveStatsRecord, len(stats))
	for i, st := range stats {
		records[i] = model.MoveStatsRecord{
			VersionedRecord: storage.Versioned(),
			Move:            st.Move,
			Trials:          st.Trials,
			Accepted:        st.Accepted,
			Rejected:        st.Rejected,
			Failed:          st.Failed,
			StepSize:        st.StepSize,
		}
	}
	if err := c.store.SaveMoveStats(ctx, record.ID, records); err != nil {
		return fmt.Errorf("save move stats: %w", err)
	}
	if err := c.store.SaveSnapshot(ctx, snapshotRecord(record.ID, sys.Snapshot())); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Runs lists persisted runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]RunItem, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- {
		r := runs[i]
		molecules := 0
		for _, n := range r.Counts {
			molecules += n
		}
		items = append(items, RunItem{
			RunID:        r.ID,
			CreatedAtUTC: r.CreatedAt.UTC().Format(time.RFC3339),
			Status:       r.Status,
			Seed:         r.Seed,
			Potential:    r.Potential,
			Steps:        r.EquilibrationSteps + r.ProductionSteps,
			Molecules:    molecules,
			Energy:       r.Energy,
		})
		if req.Limit > 0 && len(items) == req.Limit {
			break
		}
	}
	return items, nil
}

func (c *Client) GetRun(ctx context.Context, id string) (model.RunRecord, error) {
	if err := c.ensureStore(ctx); err != nil {
		return model.RunRecord{}, err
	}
	run, ok, err := c.store.GetRun(ctx, id)
	if err != nil {
		return model.RunRecord{}, err
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

func (c *Client) MoveStats(ctx context.Context, req StatsRequest) ([]model.MoveStatsRecord, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	stats, ok, err := c.store.GetMoveStats(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no move stats for %s", ErrRunNotFound, runID)
	}
	return stats, nil
}

func (c *Client) Snapshot(ctx context.Context, req StatsRequest) (model.ConfigurationSnapshot, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return model.ConfigurationSnapshot{}, err
	}
	snapshot, ok, err := c.store.GetSnapshot(ctx, runID)
	if err != nil {
		return model.ConfigurationSnapshot{}, err
	}
	if !ok {
		return model.ConfigurationSnapshot{}, fmt.Errorf("%w: no snapshot for %s", ErrRunNotFound, runID)
	}
	return snapshot, nil
}

func (c *Client) DeleteRun(ctx context.Context, id string) error {
	if err := c.ensureStore(ctx); err != nil {
		return err
	}
	return c.store.DeleteRun(ctx, id)
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if err := c.ensureStore(ctx); err != nil {
		return "", err
	}
	if runID != "" && latest {
		return "", errors.New("use either a run id or latest, not both")
	}
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", errors.New("run id is required")
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("%w: no runs recorded", ErrRunNotFound)
	}
	return runs[len(runs)-1].ID, nil
}

func withDefaults(req RunRequest) RunRequest {
	if req.Dim <= 0 {
		req.Dim = 3
		if len(req.Box) > 0 {
			req.Dim = len(req.Box)
		}
	}
	if req.Temperature <= 0 {
		req.Temperature = 1
	}
	if req.ProductionSteps <= 0 {
		req.ProductionSteps = defaultProductionSteps
	}
	if req.Potential.Kind == "" {
		req.Potential.Kind = "ideal"
	}
	if req.Potential.Sigma <= 0 {
		req.Potential.Sigma = 1
	}
	if req.Potential.Epsilon == nil {
		req.Potential.Epsilon = Float64(1)
	}
	if req.Potential.Cutoff == nil {
		req.Potential.Cutoff = Float64(2.5 * req.Potential.Sigma)
	}
	if req.Potential.Lambda == 0 {
		req.Potential.Lambda = 1.5
	}
	if len(req.Moves) == 0 {
		kind := "displacement"
		if req.Cluster != nil {
			kind = "cluster"
		}
		req.Moves = []MoveRequest{{Kind: kind, Weight: 1}}
	}
	return req
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func snapshotRecord(runID string, snap box.Snapshot) model.ConfigurationSnapshot {
	dims := make([]float64, len(snap.Dims))
	for i, l := range snap.Dims {
		dims[i] = finiteOrZero(l)
	}
	species := make(map[string][]model.MoleculeRecord, len(snap.Species))
	for name, mols := range snap.Species {
		records := make([]model.MoleculeRecord, len(mols))
		for i, m := range mols {
			positions := make([][]float64, len(m.Positions))
			for j, p := range m.Positions {
				positions[j] = []float64(p.Clone())
			}
			records[i] = model.MoleculeRecord{ID: m.ID, Positions: positions}
		}
		species[name] = records
	}
	return model.ConfigurationSnapshot{
		VersionedRecord: storage.Versioned(),
		RunID:           runID,
		Dims:            dims,
		Species:         species,
	}
}
