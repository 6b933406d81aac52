package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"nosos/internal/model"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ Store = (*PostgresStore)(nil)

const postgresDriver = "pgx"

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

type PostgresStore struct {
	dsn string

	mu sync.RWMutex
	db *sql.DB
}

func NewPostgresStore(dsn string) *PostgresStore {
	return &PostgresStore{dsn: dsn}
}

func (s *PostgresStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dsn == "" {
		return errors.New("postgres dsn is required")
	}
	if s.db != nil {
		return nil
	}

	openMu.Lock()
	db, err := sqlOpen(postgresDriver, s.dsn)
	openMu.Unlock()
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}

	if err := createPostgresTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, schema_version, codec_version, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = EXCLUDED.schema_version,
			codec_version = EXCLUDED.codec_version,
			payload = EXCLUDED.payload
	`, run.ID, run.SchemaVersion, run.CodecVersion, payload)
	return err
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (model.RunRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.RunRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}

	run, err := DecodeRun(payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *PostgresStore) SaveOccupancy(ctx context.Context, runID string, occupancy []model.OccupancyRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeOccupancy(occupancy)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO occupancy (run_id, payload)
		VALUES ($1, $2)
		ON CONFLICT(run_id) DO UPDATE SET
			payload = EXCLUDED.payload
	`, runID, payload)
	return err
}

func (s *PostgresStore) GetOccupancy(ctx context.Context, runID string) ([]model.OccupancyRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM occupancy WHERE run_id = $1`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	occupancy, err := DecodeOccupancy(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode occupancy %s: %w", runID, err)
	}
	return occupancy, true, nil
}

func (s *PostgresStore) SaveMetrics(ctx context.Context, runID string, metrics map[string]float64) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeMetrics(metrics)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO metrics (run_id, payload)
		VALUES ($1, $2)
		ON CONFLICT(run_id) DO UPDATE SET
			payload = EXCLUDED.payload
	`, runID, payload)
	return err
}

func (s *PostgresStore) GetMetrics(ctx context.Context, runID string) (map[string]float64, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM metrics WHERE run_id = $1`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	metrics, err := DecodeMetrics(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode metrics %s: %w", runID, err)
	}
	return metrics, true, nil
}

func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *PostgresStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createPostgresTables(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS occupancy (
			run_id TEXT PRIMARY KEY,
			payload JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS metrics (
			run_id TEXT PRIMARY KEY,
			payload JSONB NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create postgres tables: %w", err)
		}
	}
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
