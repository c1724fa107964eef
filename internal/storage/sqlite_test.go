//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"metropolis/internal/model"
)

func TestSQLiteStoreRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "metropolis.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, run := range []model.RunRecord{sampleRun("late", base.Add(time.Hour)), sampleRun("early", base)} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run: %v", err)
		}
	}

	loaded, ok, err := store.GetRun(ctx, "early")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatal("expected run early")
	}
	if loaded.Counts["argon"] != 32 || loaded.Potential != "lennard_jones" {
		t.Fatalf("unexpected run loaded: %+v", loaded)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "early" || runs[1].ID != "late" {
		t.Fatalf("unexpected run order: %+v", runs)
	}
}

func TestSQLiteStoreStatsSnapshotAndDelete(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "metropolis.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if err := store.SaveRun(ctx, sampleRun("run-1", time.Now())); err != nil {
		t.Fatalf("save run: %v", err)
	}
	stats := []model.MoveStatsRecord{{VersionedRecord: Versioned(), Move: "volume", Trials: 5, Accepted: 2, Rejected: 3}}
	if err := store.SaveMoveStats(ctx, "run-1", stats); err != nil {
		t.Fatalf("save move stats: %v", err)
	}
	if err := store.SaveSnapshot(ctx, sampleSnapshot("run-1")); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	gotStats, ok, err := store.GetMoveStats(ctx, "run-1")
	if err != nil || !ok || len(gotStats) != 1 || gotStats[0].Rejected != 3 {
		t.Fatalf("unexpected move stats: %+v ok=%t err=%v", gotStats, ok, err)
	}
	snapshot, ok, err := store.GetSnapshot(ctx, "run-1")
	if err != nil || !ok || len(snapshot.Species["argon"]) != 2 {
		t.Fatalf("unexpected snapshot: %+v ok=%t err=%v", snapshot, ok, err)
	}

	if err := store.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("delete run: %v", err)
	}
	if _, ok, err := store.GetMoveStats(ctx, "run-1"); err != nil || ok {
		t.Fatalf("expected move stats removed, ok=%t err=%v", ok, err)
	}
}

func TestSQLiteStoreRequiresPath(t *testing.T) {
	if err := NewSQLiteStore("").Init(context.Background()); err == nil {
		t.Fatal("expected missing path error")
	}
}
