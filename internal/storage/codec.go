package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"metropolis/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Versioned returns the record header written by this build.
func Versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeMoveStats(stats []model.MoveStatsRecord) ([]byte, error) {
	return json.Marshal(stats)
}

func DecodeMoveStats(data []byte) ([]model.MoveStatsRecord, error) {
	var stats []model.MoveStatsRecord
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	for _, st := range stats {
		if err := checkVersion(st.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func EncodeSnapshot(s model.ConfigurationSnapshot) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeSnapshot(data []byte) (model.ConfigurationSnapshot, error) {
	var snapshot model.ConfigurationSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return model.ConfigurationSnapshot{}, err
	}
	if err := checkVersion(snapshot.VersionedRecord); err != nil {
		return model.ConfigurationSnapshot{}, err
	}
	return snapshot, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
