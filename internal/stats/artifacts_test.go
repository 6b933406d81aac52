package stats

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"nosos/internal/model"
)

func sampleArtifacts(runID string) RunArtifacts {
	return RunArtifacts{
		Config: RunConfig{
			RunID:          runID,
			Cause:          "flu",
			InitialState:   "susceptible_to_flu",
			PopulationSize: 100,
			Steps:          3,
			StepDays:       30.5,
			StartTimeUTC:   "1990-01-01T00:00:00Z",
			Seed:           7,
			StoreKind:      "memory",
		},
		Metrics: map[string]float64{
			"total_deaths":    4,
			"ylds_due_to_flu": 1.5,
		},
		Occupancy: []model.OccupancyRecord{
			{Step: 1, State: "susceptible_to_flu", Count: 80},
			{Step: 1, State: "flu", Count: 20},
			{Step: 2, State: "flu", Count: 96},
		},
	}
}

func TestWriteAndExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")

	runDir, err := WriteRunArtifacts(baseDir, sampleArtifacts("run-1"))
	if err != nil {
		t.Fatalf("WriteRunArtifacts returned error: %v", err)
	}

	for _, file := range []string{"config.json", "metrics.json", "occupancy.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected %s in run dir: %v", file, err)
		}
	}

	exportDir, err := ExportRunArtifacts(baseDir, "run-1", outDir)
	if err != nil {
		t.Fatalf("ExportRunArtifacts returned error: %v", err)
	}
	for _, file := range []string{"config.json", "metrics.json", "occupancy.csv"} {
		if _, err := os.Stat(filepath.Join(exportDir, file)); err != nil {
			t.Fatalf("expected exported %s: %v", file, err)
		}
	}

	cfg, ok, err := ReadRunConfig(baseDir, "run-1")
	if err != nil {
		t.Fatalf("ReadRunConfig returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected run config to exist")
	}
	if cfg.Cause != "flu" || cfg.PopulationSize != 100 || cfg.StepDays != 30.5 {
		t.Fatalf("unexpected run config: %+v", cfg)
	}

	metrics, ok, err := ReadMetrics(baseDir, "run-1")
	if err != nil {
		t.Fatalf("ReadMetrics returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected metrics to exist")
	}
	if metrics["total_deaths"] != 4 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}

func TestReadOccupancyRoundTrip(t *testing.T) {
	baseDir := t.TempDir()
	artifacts := sampleArtifacts("run-occ")

	if _, err := WriteRunArtifacts(baseDir, artifacts); err != nil {
		t.Fatalf("WriteRunArtifacts returned error: %v", err)
	}

	records, ok, err := ReadOccupancy(baseDir, "run-occ")
	if err != nil {
		t.Fatalf("ReadOccupancy returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected occupancy to exist")
	}
	if !reflect.DeepEqual(records, artifacts.Occupancy) {
		t.Fatalf("occupancy mismatch: got %+v want %+v", records, artifacts.Occupancy)
	}

	if _, ok, err := ReadOccupancy(baseDir, "missing-run"); err != nil || ok {
		t.Fatalf("expected missing occupancy, got ok=%v err=%v", ok, err)
	}
}

func TestReadOccupancyEmptySeries(t *testing.T) {
	baseDir := t.TempDir()
	artifacts := sampleArtifacts("run-empty")
	artifacts.Occupancy = nil

	if _, err := WriteRunArtifacts(baseDir, artifacts); err != nil {
		t.Fatalf("WriteRunArtifacts returned error: %v", err)
	}

	records, ok, err := ReadOccupancy(baseDir, "run-empty")
	if err != nil {
		t.Fatalf("ReadOccupancy returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected occupancy file to exist")
	}
	if len(records) != 0 {
		t.Fatalf("expected empty series, got %+v", records)
	}
}

func TestWriteRunArtifactsRequiresRunID(t *testing.T) {
	if _, err := WriteRunArtifacts(t.TempDir(), sampleArtifacts("")); err == nil {
		t.Fatal("expected error for missing run id")
	}
}

func TestRunIndexAppendListAndUpsert(t *testing.T) {
	baseDir := t.TempDir()

	first := RunIndexEntry{
		RunID:          "run-1",
		Cause:          "flu",
		PopulationSize: 100,
		Steps:          3,
		Seed:           7,
		TotalDeaths:    4,
		CreatedAtUTC:   "2026-03-01T10:00:00Z",
	}
	second := RunIndexEntry{
		RunID:          "run-2",
		Cause:          "measles",
		PopulationSize: 200,
		Steps:          6,
		Seed:           8,
		TotalDeaths:    11,
		CreatedAtUTC:   "2026-03-02T10:00:00Z",
	}

	if err := AppendRunIndex(baseDir, first); err != nil {
		t.Fatalf("AppendRunIndex returned error: %v", err)
	}
	if err := AppendRunIndex(baseDir, second); err != nil {
		t.Fatalf("AppendRunIndex returned error: %v", err)
	}

	entries, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("ListRunIndex returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].RunID != "run-2" || entries[1].RunID != "run-1" {
		t.Fatalf("expected newest-first ordering, got %+v", entries)
	}

	updated := first
	updated.TotalDeaths = 9
	if err := AppendRunIndex(baseDir, updated); err != nil {
		t.Fatalf("AppendRunIndex returned error: %v", err)
	}

	entries, err = ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("ListRunIndex returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected upsert, got %d entries", len(entries))
	}
	for _, entry := range entries {
		if entry.RunID == "run-1" && entry.TotalDeaths != 9 {
			t.Fatalf("expected updated entry, got %+v", entry)
		}
	}
}

func TestRunIndexEqualTimestampPrefersLaterAppend(t *testing.T) {
	baseDir := t.TempDir()
	stamp := "2026-03-01T10:00:00Z"

	for _, runID := range []string{"run-a", "run-b", "run-c"} {
		entry := RunIndexEntry{RunID: runID, Cause: "flu", CreatedAtUTC: stamp}
		if err := AppendRunIndex(baseDir, entry); err != nil {
			t.Fatalf("AppendRunIndex returned error: %v", err)
		}
	}

	entries, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("ListRunIndex returned error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].RunID != "run-c" || entries[2].RunID != "run-a" {
		t.Fatalf("expected later appends first, got %+v", entries)
	}
}

func TestListRunIndexMissingFile(t *testing.T) {
	entries, err := ListRunIndex(t.TempDir())
	if err != nil {
		t.Fatalf("ListRunIndex returned error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty index, got %+v", entries)
	}
}
