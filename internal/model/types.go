package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord describes one completed simulation run.
type RunRecord struct {
	VersionedRecord
	ID             string    `json:"id"`
	Cause          string    `json:"cause"`
	Seed           int64     `json:"seed"`
	PopulationSize int       `json:"population_size"`
	Steps          int       `json:"steps"`
	StepDays       float64   `json:"step_days"`
	StartTime      time.Time `json:"start_time"`
	CreatedAtUTC   time.Time `json:"created_at_utc"`
}

// OccupancyRecord is the census of one state after one time step.
type OccupancyRecord struct {
	Step  int    `json:"step"`
	State string `json:"state"`
	Count int    `json:"count"`
}
