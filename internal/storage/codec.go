package storage

import (
	"encoding/json"
	"errors"

	"nosos/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

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

func EncodeOccupancy(records []model.OccupancyRecord) ([]byte, error) {
	return json.Marshal(records)
}

func DecodeOccupancy(data []byte) ([]model.OccupancyRecord, error) {
	var records []model.OccupancyRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func EncodeMetrics(metrics map[string]float64) ([]byte, error) {
	return json.Marshal(metrics)
}

func DecodeMetrics(data []byte) (map[string]float64, error) {
	var metrics map[string]float64
	if err := json.Unmarshal(data, &metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
