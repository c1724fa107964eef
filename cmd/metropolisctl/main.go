package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"metropolis/internal/storage"
	api "metropolis/pkg/metropolis"
)

const defaultDBPath = "metropolis.db"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "stats":
		return runStats(ctx, args[1:])
	case "snapshot":
		return runSnapshot(ctx, args[1:])
	case "delete":
		return runDelete(ctx, args[1:])
	case "moves":
		return runMoves(args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: metropolisctl <init|run|runs|stats|snapshot|delete|moves> [flags]", msg)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openClient(ctx context.Context, storeKind, dbPath string, logger *slog.Logger) (*api.Client, error) {
	client, err := api.New(api.Options{StoreKind: storeKind, DBPath: dbPath, Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := openClient(ctx, *storeKind, *dbPath, newLogger(false))
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config path (.json, .yaml or .yml)")
	runID := fs.String("run-id", "", "explicit run id (optional)")
	dim := fs.Int("dim", 3, "spatial dimension")
	boxLength := fs.Float64("box", 10, "periodic cube edge length")
	temperature := fs.Float64("temperature", 1, "temperature (beta = 1/temperature)")
	pressure := fs.Float64("pressure", 0, "pressure for volume moves")
	seed := fs.Int64("seed", 1, "rng seed")
	equilibration := fs.Int("equilibration", 0, "equilibration steps (step sizes adapt, then freeze)")
	production := fs.Int("production", 1000, "production steps")
	workers := fs.Int("workers", 1, "goroutines for full-system energy sums")
	potentialKind := fs.String("potential", "ideal", "pair potential: ideal|hard_sphere|lennard_jones|square_well")
	sigma := fs.Float64("sigma", 1, "pair potential diameter")
	epsilon := fs.Float64("epsilon", 1, "pair potential well depth")
	speciesSpec := fs.String("species", "particle:64", "monatomic species as name:count[,name:count...]")
	movesSpec := fs.String("moves", "displacement", "moves as kind[:weight][,kind[:weight]...]")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit the run summary as JSON")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address while running (e.g. :9090)")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flagValue := map[string]any{
		"run-id":        *runID,
		"dim":           *dim,
		"box":           *boxLength,
		"temperature":   *temperature,
		"pressure":      *pressure,
		"seed":          *seed,
		"equilibration": *equilibration,
		"production":    *production,
		"workers":       *workers,
		"potential":     *potentialKind,
		"sigma":         *sigma,
		"epsilon":       *epsilon,
		"species":       *speciesSpec,
		"moves":         *movesSpec,
	}

	var req api.RunRequest
	set := make(map[string]bool)
	if *configPath != "" {
		loaded, err := loadRunRequestFromConfig(*configPath)
		if err != nil {
			return err
		}
		req = loaded
		fs.Visit(func(f *flag.Flag) {
			set[f.Name] = true
		})
	} else {
		for name := range flagValue {
			set[name] = true
		}
	}
	if err := overrideFromFlags(&req, set, flagValue); err != nil {
		return err
	}

	logger := newLogger(*verbose)
	if *metricsAddr != "" {
		shutdown, err := serveMetrics(*metricsAddr, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	client, err := openClient(ctx, *storeKind, *dbPath, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, req)
	if summary.RunID == "" {
		return err
	}
	if *jsonOut {
		if encErr := writeJSON(summary); encErr != nil {
			return errors.Join(err, encErr)
		}
		return err
	}
	printSummary(summary)
	return err
}

func printSummary(summary api.RunSummary) {
	molecules := 0
	for _, n := range summary.Counts {
		molecules += n
	}
	fmt.Printf("run_id=%s status=%s molecules=%s volume=%s energy=%.6f\n",
		summary.RunID, summary.Status, humanize.Comma(int64(molecules)),
		humanize.Commaf(summary.Volume), summary.Energy)
	if summary.ClusterWeight != 0 {
		fmt.Printf("cluster_weight=%.6g\n", summary.ClusterWeight)
	}
	for _, st := range summary.Moves {
		fmt.Printf("move=%s trials=%s accepted=%s failed=%s acceptance=%.4f step_size=%.4g\n",
			st.Move, humanize.Comma(st.Trials), humanize.Comma(st.Accepted), humanize.Comma(st.Failed),
			st.AcceptanceRate(), st.StepSize)
	}
}

func serveMetrics(addr string, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := openClient(ctx, *storeKind, *dbPath, newLogger(false))
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, api.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(items)
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, item := range items {
		fmt.Printf("run_id=%s created_at=%s status=%s potential=%s seed=%d steps=%s molecules=%s energy=%.6f\n",
			item.RunID, item.CreatedAtUTC, item.Status, item.Potential, item.Seed,
			humanize.Comma(int64(item.Steps)), humanize.Comma(int64(item.Molecules)), item.Energy)
	}
	return nil
}

func runStats(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	jsonOut := fs.Bool("json", false, "emit move statistics as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := openClient(ctx, *storeKind, *dbPath, newLogger(false))
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	stats, err := client.MoveStats(ctx, api.StatsRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(stats)
	}
	for _, st := range stats {
		rate := 0.0
		if st.Trials > 0 {
			rate = float64(st.Accepted) / float64(st.Trials)
		}
		fmt.Printf("move=%s trials=%s accepted=%s rejected=%s failed=%s acceptance=%.4f step_size=%.4g\n",
			st.Move, humanize.Comma(st.Trials), humanize.Comma(st.Accepted), humanize.Comma(st.Rejected),
			humanize.Comma(st.Failed), rate, st.StepSize)
	}
	return nil
}

func runSnapshot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	outPath := fs.String("out", "", "write the snapshot JSON to this file instead of stdout")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := openClient(ctx, *storeKind, *dbPath, newLogger(false))
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	snapshot, err := client.Snapshot(ctx, api.StatsRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	if *outPath == "" {
		return writeJSON(snapshot)
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(*outPath, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("snapshot run_id=%s written=%s (%s)\n", snapshot.RunID, *outPath, humanize.Bytes(uint64(len(data))))
	return nil
}

func runDelete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("run-id is required")
	}

	client, err := openClient(ctx, *storeKind, *dbPath, newLogger(false))
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.DeleteRun(ctx, *runID); err != nil {
		return err
	}
	fmt.Printf("deleted run_id=%s\n", *runID)
	return nil
}

func runMoves(args []string) error {
	fs := flag.NewFlagSet("moves", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, kind := range api.MoveKinds() {
		fmt.Println(kind)
	}
	return nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
