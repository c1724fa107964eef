package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRunRequestFromJSONConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	payload := map[string]any{
		"dim":                 2,
		"box":                 []any{10, 12},
		"temperature":         2.0,
		"seed":                77,
		"equilibration_steps": 100,
		"production_steps":    400,
		"workers":             2,
		"mu":                  map[string]any{"a": -1.5},
		"potential":           map[string]any{"kind": "square_well", "sigma": 1, "lambda": 1.4, "intra_separation": 2},
		"species": []any{
			map[string]any{"name": "a", "count": 10},
			map[string]any{"name": "c", "kind": "chain", "count": 2, "chain_length": 6, "bond_length": 1, "bond_angle": 1.9},
		},
		"moves": []any{
			map[string]any{"kind": "insert_delete", "species": []any{"a"}},
			map[string]any{"kind": "cbmc", "species": []any{"c"}, "trials": 6, "per_particle": false},
			map[string]any{"kind": "displacement", "fixed": []any{0}, "step_size_max": 2.5},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	req, err := loadRunRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load run request: %v", err)
	}
	if req.Dim != 2 || len(req.Box) != 2 || req.Box[1] != 12 || req.Seed != 77 || req.Workers != 2 {
		t.Fatalf("unexpected base fields: %+v", req)
	}
	if req.Mu["a"] != -1.5 {
		t.Fatalf("unexpected mu: %+v", req.Mu)
	}
	if req.Potential.Kind != "square_well" || req.Potential.Lambda != 1.4 || req.Potential.IntraSeparation != 2 {
		t.Fatalf("unexpected potential: %+v", req.Potential)
	}
	if req.Potential.Epsilon != nil || req.Potential.Cutoff != nil {
		t.Fatalf("unset epsilon/cutoff should stay nil: %+v", req.Potential)
	}
	if len(req.Species) != 2 || req.Species[1].ChainLength != 6 || req.Species[1].BondAngle != 1.9 {
		t.Fatalf("unexpected species: %+v", req.Species)
	}
	if len(req.Moves) != 3 {
		t.Fatalf("unexpected moves: %+v", req.Moves)
	}
	if req.Moves[1].Trials != 6 || req.Moves[1].PerParticle == nil || *req.Moves[1].PerParticle {
		t.Fatalf("unexpected cbmc move: %+v", req.Moves[1])
	}
	if len(req.Moves[2].Fixed) != 1 || req.Moves[2].StepSizeMax != 2.5 {
		t.Fatalf("unexpected displacement move: %+v", req.Moves[2])
	}
}

func TestLoadRunRequestFromYAMLClusterConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.yml")
	config := "open: true\ncluster:\n  diagram: complete\nspecies:\n  - name: hs\n    count: 3\npotential:\n  kind: hard_sphere\n"
	if err := os.WriteFile(path, []byte(config), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	req, err := loadRunRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load run request: %v", err)
	}
	if !req.Open || req.Cluster == nil || req.Cluster.Diagram != "complete" {
		t.Fatalf("unexpected cluster request: %+v", req)
	}
	if len(req.Species) != 1 || req.Species[0].Count != 3 {
		t.Fatalf("unexpected species: %+v", req.Species)
	}
}

func TestLoadRunRequestRejectsBadSpecies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"species":["a"]}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadRunRequestFromConfig(path); err == nil {
		t.Fatal("expected species error")
	}
}

func TestParseFlags(t *testing.T) {
	species, err := parseSpeciesFlag("a:3, b:0")
	if err != nil {
		t.Fatalf("parse species: %v", err)
	}
	if len(species) != 2 || species[0].Count != 3 || species[1].Name != "b" {
		t.Fatalf("unexpected species: %+v", species)
	}
	if _, err := parseSpeciesFlag("a"); err == nil {
		t.Fatal("expected missing count error")
	}

	moves, err := parseMovesFlag("displacement:2,volume")
	if err != nil {
		t.Fatalf("parse moves: %v", err)
	}
	if len(moves) != 2 || moves[0].Weight != 2 || moves[1].Weight != 0 {
		t.Fatalf("unexpected moves: %+v", moves)
	}
	if _, err := parseMovesFlag("volume:x"); err == nil {
		t.Fatal("expected bad weight error")
	}
}

func TestPotentialConfigKeepsZeroDepthAndCutoff(t *testing.T) {
	p := potentialFromMap(map[string]any{"kind": "lennard_jones", "epsilon": 0, "cutoff": 0})
	if p.Epsilon == nil || *p.Epsilon != 0 {
		t.Fatalf("epsilon: got=%v want=0", p.Epsilon)
	}
	if p.Cutoff == nil || *p.Cutoff != 0 {
		t.Fatalf("cutoff: got=%v want=0", p.Cutoff)
	}
}
