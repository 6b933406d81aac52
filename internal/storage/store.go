package storage

import (
	"context"

	"nosos/internal/model"
)

// Store defines persistence operations for simulation results.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	SaveOccupancy(ctx context.Context, runID string, occupancy []model.OccupancyRecord) error
	GetOccupancy(ctx context.Context, runID string) ([]model.OccupancyRecord, bool, error)
	SaveMetrics(ctx context.Context, runID string, metrics map[string]float64) error
	GetMetrics(ctx context.Context, runID string) (map[string]float64, bool, error)
}
