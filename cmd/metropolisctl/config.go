package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	api "metropolis/pkg/metropolis"
)

// loadRunRequestFromConfig reads a run config in JSON, or in YAML when the
// file ends in .yaml or .yml. Keys use snake_case.
func loadRunRequestFromConfig(path string) (api.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return api.RunRequest{}, err
	}
	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return api.RunRequest{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return runRequestFromMap(raw)
}

func runRequestFromMap(raw map[string]any) (api.RunRequest, error) {
	var req api.RunRequest
	if v, ok := asString(raw["run_id"]); ok {
		req.RunID = v
	}
	if v, ok := asInt(raw["dim"]); ok {
		req.Dim = v
	}
	if v, ok := asFloat64(raw["box_length"]); ok {
		req.BoxLength = v
	}
	if v, ok := asFloat64Slice(raw["box"]); ok {
		req.Box = v
	}
	if v, ok := asBool(raw["open"]); ok {
		req.Open = v
	}
	if v, ok := asFloat64(raw["temperature"]); ok {
		req.Temperature = v
	}
	if v, ok := asFloat64(raw["pressure"]); ok {
		req.Pressure = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["equilibration_steps"]); ok {
		req.EquilibrationSteps = v
	}
	if v, ok := asInt(raw["production_steps"]); ok {
		req.ProductionSteps = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.Workers = v
	}
	if mu, ok := raw["mu"].(map[string]any); ok {
		req.Mu = make(map[string]float64, len(mu))
		for name, value := range mu {
			f, ok := asFloat64(value)
			if !ok {
				return api.RunRequest{}, fmt.Errorf("mu.%s must be a number", name)
			}
			req.Mu[name] = f
		}
	}
	if p, ok := raw["potential"].(map[string]any); ok {
		req.Potential = potentialFromMap(p)
	}
	if c, ok := raw["cluster"].(map[string]any); ok {
		req.Cluster = &api.ClusterRequest{}
		if v, ok := asString(c["diagram"]); ok {
			req.Cluster.Diagram = v
		}
	}
	if list, ok := raw["species"].([]any); ok {
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return api.RunRequest{}, fmt.Errorf("species[%d] must be an object", i)
			}
			sr, err := speciesFromMap(m)
			if err != nil {
				return api.RunRequest{}, fmt.Errorf("species[%d]: %w", i, err)
			}
			req.Species = append(req.Species, sr)
		}
	}
	if list, ok := raw["moves"].([]any); ok {
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return api.RunRequest{}, fmt.Errorf("moves[%d] must be an object", i)
			}
			req.Moves = append(req.Moves, moveFromMap(m))
		}
	}
	return req, nil
}

func potentialFromMap(m map[string]any) api.PotentialRequest {
	var p api.PotentialRequest
	if v, ok := asString(m["kind"]); ok {
		p.Kind = v
	}
	if v, ok := asFloat64(m["sigma"]); ok {
		p.Sigma = v
	}
	if v, ok := asFloat64(m["epsilon"]); ok {
		p.Epsilon = api.Float64(v)
	}
	if v, ok := asFloat64(m["cutoff"]); ok {
		p.Cutoff = api.Float64(v)
	}
	if v, ok := asFloat64(m["lambda"]); ok {
		p.Lambda = v
	}
	if v, ok := asInt(m["intra_separation"]); ok {
		p.IntraSeparation = v
	}
	return p
}

func speciesFromMap(m map[string]any) (api.SpeciesRequest, error) {
	var sr api.SpeciesRequest
	if v, ok := asString(m["name"]); ok {
		sr.Name = v
	}
	if v, ok := asString(m["kind"]); ok {
		sr.Kind = v
	}
	if v, ok := asString(m["atom_type"]); ok {
		sr.AtomType = v
	}
	if v, ok := asInt(m["count"]); ok {
		sr.Count = v
	}
	if v, ok := asInt(m["chain_length"]); ok {
		sr.ChainLength = v
	}
	if v, ok := asFloat64(m["bond_length"]); ok {
		sr.BondLength = v
	}
	if v, ok := asFloat64(m["bond_angle"]); ok {
		sr.BondAngle = v
	}
	if v, ok := asFloat64(m["torsion"]); ok {
		sr.Torsion = v
	}
	if atoms, ok := m["atoms"].([]any); ok {
		for i, item := range atoms {
			a, ok := item.(map[string]any)
			if !ok {
				return api.SpeciesRequest{}, fmt.Errorf("atoms[%d] must be an object", i)
			}
			var ar api.AtomRequest
			if v, ok := asString(a["type"]); ok {
				ar.Type = v
			}
			offset, ok := asFloat64Slice(a["offset"])
			if !ok {
				return api.SpeciesRequest{}, fmt.Errorf("atoms[%d].offset must be a list of numbers", i)
			}
			ar.Offset = offset
			sr.Atoms = append(sr.Atoms, ar)
		}
	}
	return sr, nil
}

func moveFromMap(m map[string]any) api.MoveRequest {
	var mr api.MoveRequest
	if v, ok := asString(m["kind"]); ok {
		mr.Kind = v
	}
	if v, ok := asString(m["name"]); ok {
		mr.Name = v
	}
	if v, ok := asFloat64(m["weight"]); ok {
		mr.Weight = v
	}
	if v, ok := asBool(m["per_particle"]); ok {
		mr.PerParticle = &v
	}
	if v, ok := asStringSlice(m["species"]); ok {
		mr.Species = v
	}
	if v, ok := asFloat64(m["step_size"]); ok {
		mr.StepSize = v
	}
	if v, ok := asFloat64(m["step_size_min"]); ok {
		mr.StepSizeMin = v
	}
	if v, ok := asFloat64(m["step_size_max"]); ok {
		mr.StepSizeMax = v
	}
	if v, ok := asInt(m["trials"]); ok {
		mr.Trials = v
	}
	if v, ok := asBool(m["per_atom"]); ok {
		mr.PerAtom = v
	}
	if v, ok := asBool(m["per_axis"]); ok {
		mr.PerAxis = v
	}
	if v, ok := asFloat64Slice(m["fixed"]); ok {
		for _, f := range v {
			mr.Fixed = append(mr.Fixed, int(f))
		}
	}
	if v, ok := asFloat64Slice(m["fugacity"]); ok {
		mr.Fugacity = v
	}
	return mr
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func asFloat64Slice(v any) ([]float64, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(list))
	for i, item := range list {
		f, ok := asFloat64(item)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

func asStringSlice(v any) ([]string, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

func overrideFromFlags(req *api.RunRequest, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "run-id":
			req.RunID = v.(string)
		case "dim":
			req.Dim = v.(int)
		case "box":
			req.BoxLength = v.(float64)
		case "temperature":
			req.Temperature = v.(float64)
		case "pressure":
			req.Pressure = v.(float64)
		case "seed":
			req.Seed = v.(int64)
		case "equilibration":
			req.EquilibrationSteps = v.(int)
		case "production":
			req.ProductionSteps = v.(int)
		case "workers":
			req.Workers = v.(int)
		case "potential":
			req.Potential.Kind = v.(string)
		case "sigma":
			req.Potential.Sigma = v.(float64)
		case "epsilon":
			req.Potential.Epsilon = api.Float64(v.(float64))
		case "species":
			species, err := parseSpeciesFlag(v.(string))
			if err != nil {
				return err
			}
			req.Species = species
		case "moves":
			moves, err := parseMovesFlag(v.(string))
			if err != nil {
				return err
			}
			req.Moves = moves
		default:
			return fmt.Errorf("unsupported override flag: %s", name)
		}
	}
	return nil
}

// parseSpeciesFlag reads monatomic species as name:count[,name:count...].
func parseSpeciesFlag(value string) ([]api.SpeciesRequest, error) {
	var out []api.SpeciesRequest
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, countText, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("species %q: want name:count", part)
		}
		var count int
		if _, err := fmt.Sscanf(countText, "%d", &count); err != nil {
			return nil, fmt.Errorf("species %q: bad count: %w", part, err)
		}
		out = append(out, api.SpeciesRequest{Name: name, Count: count})
	}
	return out, nil
}

// parseMovesFlag reads kind[:weight][,kind[:weight]...].
func parseMovesFlag(value string) ([]api.MoveRequest, error) {
	var out []api.MoveRequest
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind, weightText, _ := strings.Cut(part, ":")
		mr := api.MoveRequest{Kind: kind}
		if weightText != "" {
			if _, err := fmt.Sscanf(weightText, "%g", &mr.Weight); err != nil {
				return nil, fmt.Errorf("move %q: bad weight: %w", part, err)
			}
		}
		out = append(out, mr)
	}
	return out, nil
}
