package storage

import (
	"context"
	"sync"

	"nosos/internal/model"
)

type MemoryStore struct {
	mu        sync.RWMutex
	runs      map[string]model.RunRecord
	occupancy map[string][]model.OccupancyRecord
	metrics   map[string]map[string]float64
}

func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{}
	store.reset()
	return store
}

// Init resets the store, discarding anything saved so far.
func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	return nil
}

func (s *MemoryStore) reset() {
	s.runs = make(map[string]model.RunRecord)
	s.occupancy = make(map[string][]model.OccupancyRecord)
	s.metrics = make(map[string]map[string]float64)
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) SaveOccupancy(_ context.Context, runID string, occupancy []model.OccupancyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.OccupancyRecord, len(occupancy))
	copy(copied, occupancy)
	s.occupancy[runID] = copied
	return nil
}

func (s *MemoryStore) GetOccupancy(_ context.Context, runID string) ([]model.OccupancyRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	occupancy, ok := s.occupancy[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.OccupancyRecord, len(occupancy))
	copy(copied, occupancy)
	return copied, true, nil
}

func (s *MemoryStore) SaveMetrics(_ context.Context, runID string, metrics map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[string]float64, len(metrics))
	for name, value := range metrics {
		copied[name] = value
	}
	s.metrics[runID] = copied
	return nil
}

func (s *MemoryStore) GetMetrics(_ context.Context, runID string) (map[string]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics, ok := s.metrics[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make(map[string]float64, len(metrics))
	for name, value := range metrics {
		copied[name] = value
	}
	return copied, true, nil
}
