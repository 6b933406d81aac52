package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"nosos/internal/model"
)

const runIndexFile = "run_index.json"

// RunConfig describes the parameters of one run. It is written next to the
// run's results so a run directory is self-contained.
type RunConfig struct {
	RunID          string  `json:"run_id"`
	Cause          string  `json:"cause"`
	InitialState   string  `json:"initial_state,omitempty"`
	PopulationSize int     `json:"population_size"`
	Steps          int     `json:"steps"`
	StepDays       float64 `json:"step_days"`
	StartTimeUTC   string  `json:"start_time_utc"`
	Seed           int64   `json:"seed"`
	StoreKind      string  `json:"store_kind,omitempty"`
}

type RunArtifacts struct {
	Config    RunConfig               `json:"config"`
	Metrics   map[string]float64      `json:"metrics"`
	Occupancy []model.OccupancyRecord `json:"occupancy"`
}

type RunIndexEntry struct {
	RunID          string  `json:"run_id"`
	Cause          string  `json:"cause"`
	PopulationSize int     `json:"population_size"`
	Steps          int     `json:"steps"`
	Seed           int64   `json:"seed"`
	TotalDeaths    float64 `json:"total_deaths"`
	CreatedAtUTC   string  `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "metrics.json"), artifacts.Metrics); err != nil {
		return "", err
	}
	if err := writeOccupancyCSV(filepath.Join(runDir, "occupancy.csv"), artifacts.Occupancy); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{"config.json", "metrics.json", "occupancy.csv"} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	path := filepath.Join(baseDir, runID, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

func ReadMetrics(baseDir, runID string) (map[string]float64, bool, error) {
	path := filepath.Join(baseDir, runID, "metrics.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var metrics map[string]float64
	if err := json.Unmarshal(data, &metrics); err != nil {
		return nil, false, err
	}
	return metrics, true, nil
}

func ReadOccupancy(baseDir, runID string) ([]model.OccupancyRecord, bool, error) {
	path := filepath.Join(baseDir, runID, "occupancy.csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.OccupancyRecord{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 3 {
		return nil, false, fmt.Errorf("occupancy header must have at least 3 columns")
	}

	records := make([]model.OccupancyRecord, 0, 128)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(row) < 3 {
			return nil, false, fmt.Errorf("occupancy row must have at least 3 columns")
		}
		step, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, false, err
		}
		count, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, false, err
		}
		records = append(records, model.OccupancyRecord{Step: step, State: row[1], Count: count})
	}
	return records, true, nil
}

func writeOccupancyCSV(path string, records []model.OccupancyRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"step", "state", "count"}); err != nil {
		return err
	}
	for _, record := range records {
		if err := writer.Write([]string{
			strconv.Itoa(record.Step),
			record.State,
			strconv.Itoa(record.Count),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
