package nosos

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"nosos/internal/disease"
	"nosos/internal/lookup"
	"nosos/internal/machine"
	"nosos/internal/model"
	"nosos/internal/observer"
	"nosos/internal/sim"
	"nosos/internal/stats"
	"nosos/internal/storage"
)

const (
	defaultArtifactsDir = "artifacts"
	defaultExportsDir   = "exports"
	defaultDBPath       = "nosos.db"
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
}

type Client struct {
	store       storage.Store
	storeKind   string
	initialized bool

	artifactsDir string
	exportsDir   string
}

// StateSpec declares one state of a run's disease model. Kind is one of
// susceptible, recovered, disease, excess_mortality or transient; the
// susceptible and recovered kinds take their name from the run's cause and
// may leave Name empty. Measures apply where the kind supports them: a dwell
// time of zero means exits are eligible immediately, and ExcessMortality is
// an annual hazard added for occupants of an excess_mortality state.
type StateSpec struct {
	Name             string
	Kind             string
	DisabilityWeight float64
	Prevalence       float64
	DwellTimeDays    float64
	ExcessMortality  float64
}

// TransitionSpec declares one directed transition. Kind selects how it
// fires: "rate" converts an annual hazard into a per-step probability,
// "proportion" uses Proportion directly, and the empty kind always fires.
type TransitionSpec struct {
	From       string
	To         string
	Kind       string
	Rate       float64
	Proportion float64
}

type RunRequest struct {
	Cause              string
	Population         int
	Steps              int
	StepDays           float64
	StartTime          time.Time
	Seed               int64
	States             []StateSpec
	Transitions        []TransitionSpec
	InitialState       string
	AssignByPrevalence bool
	AllCauseMortality  float64
	CSMR               float64
	PersonTimeStates   []string
}

type RunSummary struct {
	RunID        string
	ArtifactsDir string
	TotalDeaths  float64
	Metrics      map[string]float64
	Occupancy    []model.OccupancyRecord
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Cause        string
	Seed         int64
	Population   int
	Steps        int
	TotalDeaths  float64
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type MetricsRequest struct {
	RunID  string
	Latest bool
}

type OccupancyRequest struct {
	RunID  string
	Latest bool
	Steps  int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		storeKind:    storeKind,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.ensureStore(ctx)
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Cause == "" {
		return RunSummary{}, errors.New("cause is required")
	}
	if len(req.States) == 0 {
		return RunSummary{}, errors.New("at least one state is required")
	}
	if req.Population <= 0 {
		req.Population = 1000
	}
	if req.Steps <= 0 {
		req.Steps = 10
	}
	if req.StepDays <= 0 {
		req.StepDays = 30.5
	}
	if req.StartTime.IsZero() {
		req.StartTime = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if req.AllCauseMortality < 0 {
		return RunSummary{}, errors.New("all cause mortality must be >= 0")
	}
	if req.CSMR < 0 {
		return RunSummary{}, errors.New("csmr must be >= 0")
	}
	initial := req.InitialState
	if initial == "" {
		initial = "susceptible_to_" + req.Cause
	}

	if err := c.ensureStore(ctx); err != nil {
		return RunSummary{}, err
	}

	states, byName, err := buildStates(req)
	if err != nil {
		return RunSummary{}, err
	}
	if err := applyTransitions(req, byName); err != nil {
		return RunSummary{}, err
	}

	modelCfg := disease.ModelConfig{
		Cause:              req.Cause,
		States:             states,
		Initial:            initial,
		AssignByPrevalence: req.AssignByPrevalence,
	}
	if req.CSMR > 0 {
		modelCfg.CSMR = lookup.Constant(req.CSMR)
	}
	dm, err := disease.NewDiseaseModel(modelCfg)
	if err != nil {
		return RunSummary{}, err
	}

	mortality := observer.NewMortality(nil)
	if req.AllCauseMortality > 0 {
		mortality = observer.NewMortality(lookup.Constant(req.AllCauseMortality))
	}
	components := []sim.Component{mortality, dm, observer.NewDisability()}
	if len(req.PersonTimeStates) > 0 {
		components = append(components, observer.NewPersonTime(req.Cause, req.PersonTimeStates...))
	}

	eng, err := sim.NewEngine(sim.Config{
		PopulationSize: req.Population,
		StartTime:      req.StartTime,
		StepDays:       req.StepDays,
		Seed:           req.Seed,
		Components:     components,
	})
	if err != nil {
		return RunSummary{}, err
	}
	if err := eng.Setup(); err != nil {
		return RunSummary{}, err
	}

	occupancy := make([]model.OccupancyRecord, 0, req.Steps*len(states))
	for i := 0; i < req.Steps; i++ {
		if err := eng.Step(); err != nil {
			return RunSummary{}, fmt.Errorf("step %d: %w", eng.Clock().StepIndex(), err)
		}
		counts, err := dm.Machine().Counts(eng.Population().FullIndex())
		if err != nil {
			return RunSummary{}, err
		}
		step := eng.Clock().StepIndex()
		for _, st := range dm.Machine().States() {
			occupancy = append(occupancy, model.OccupancyRecord{Step: step, State: st.ID(), Count: counts[st.ID()]})
		}
	}
	metrics, err := eng.Metrics()
	if err != nil {
		return RunSummary{}, err
	}
	totalDeaths := metrics[observer.MetricTotalDeaths]

	now := time.Now().UTC()
	runID := fmt.Sprintf("%s-%d-%d", req.Cause, req.Seed, now.Unix())

	record := model.RunRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:             runID,
		Cause:          req.Cause,
		Seed:           req.Seed,
		PopulationSize: req.Population,
		Steps:          req.Steps,
		StepDays:       req.StepDays,
		StartTime:      req.StartTime,
		CreatedAtUTC:   now,
	}
	if err := c.store.SaveRun(ctx, record); err != nil {
		return RunSummary{}, err
	}
	if err := c.store.SaveOccupancy(ctx, runID, occupancy); err != nil {
		return RunSummary{}, err
	}
	if err := c.store.SaveMetrics(ctx, runID, metrics); err != nil {
		return RunSummary{}, err
	}

	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:          runID,
			Cause:          req.Cause,
			InitialState:   initial,
			PopulationSize: req.Population,
			Steps:          req.Steps,
			StepDays:       req.StepDays,
			StartTimeUTC:   req.StartTime.UTC().Format(time.RFC3339),
			Seed:           req.Seed,
			StoreKind:      c.storeKind,
		},
		Metrics:   metrics,
		Occupancy: occupancy,
	})
	if err != nil {
		return RunSummary{}, err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:          runID,
		Cause:          req.Cause,
		PopulationSize: req.Population,
		Steps:          req.Steps,
		Seed:           req.Seed,
		TotalDeaths:    totalDeaths,
		CreatedAtUTC:   now.Format(time.RFC3339Nano),
	}); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:        runID,
		ArtifactsDir: filepath.Clean(runDir),
		TotalDeaths:  totalDeaths,
		Metrics:      metrics,
		Occupancy:    occupancy,
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			Cause:        e.Cause,
			Seed:         e.Seed,
			Population:   e.PopulationSize,
			Steps:        e.Steps,
			TotalDeaths:  e.TotalDeaths,
		})
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) Metrics(ctx context.Context, req MetricsRequest) (map[string]float64, error) {
	if req.RunID != "" && req.Latest {
		return nil, errors.New("use either run id or latest")
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, errors.New("no runs available")
		}
		runID = entries[0].RunID
	}
	if runID == "" {
		return nil, errors.New("metrics requires run id or latest")
	}

	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	metrics, ok, err := c.store.GetMetrics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("metrics not found for run id: %s", runID)
	}
	return metrics, nil
}

func (c *Client) Occupancy(ctx context.Context, req OccupancyRequest) ([]model.OccupancyRecord, error) {
	if req.RunID != "" && req.Latest {
		return nil, errors.New("use either run id or latest")
	}
	if req.Steps < 0 {
		return nil, errors.New("steps must be >= 0")
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, errors.New("no runs available")
		}
		runID = entries[0].RunID
	}
	if runID == "" {
		return nil, errors.New("occupancy requires run id or latest")
	}

	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	records, ok, err := c.store.GetOccupancy(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("occupancy not found for run id: %s", runID)
	}
	if req.Steps > 0 {
		kept := make([]model.OccupancyRecord, 0, len(records))
		for _, r := range records {
			if r.Step <= req.Steps {
				kept = append(kept, r)
			}
		}
		records = kept
	}
	return records, nil
}

func (c *Client) RunInfo(ctx context.Context, runID string) (model.RunRecord, error) {
	if runID == "" {
		return model.RunRecord{}, errors.New("run id is required")
	}
	if err := c.ensureStore(ctx); err != nil {
		return model.RunRecord{}, err
	}
	record, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("run not found: %s", runID)
	}
	return record, nil
}

func (c *Client) ensureStore(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

type builtState struct {
	state machine.State
	add   func(machine.Transition)
}

func buildStates(req RunRequest) ([]machine.State, map[string]builtState, error) {
	ordered := make([]machine.State, 0, len(req.States))
	byName := make(map[string]builtState, len(req.States))
	for _, spec := range req.States {
		built, err := buildState(req.Cause, spec)
		if err != nil {
			return nil, nil, err
		}
		id := built.state.ID()
		if _, exists := byName[id]; exists {
			return nil, nil, fmt.Errorf("duplicate state: %s", id)
		}
		byName[id] = built
		ordered = append(ordered, built.state)
	}
	return ordered, byName, nil
}

func buildState(cause string, spec StateSpec) (builtState, error) {
	if spec.DisabilityWeight < 0 {
		return builtState{}, fmt.Errorf("state %s disability weight must be >= 0", spec.Name)
	}
	if spec.Prevalence < 0 || spec.Prevalence > 1 {
		return builtState{}, fmt.Errorf("state %s prevalence must be within [0, 1]", spec.Name)
	}
	if spec.DwellTimeDays < 0 {
		return builtState{}, fmt.Errorf("state %s dwell time must be >= 0", spec.Name)
	}
	if spec.ExcessMortality < 0 {
		return builtState{}, fmt.Errorf("state %s excess mortality must be >= 0", spec.Name)
	}

	switch spec.Kind {
	case "susceptible":
		derived := "susceptible_to_" + cause
		if spec.Name != "" && spec.Name != derived {
			return builtState{}, fmt.Errorf("susceptible state for %s is named %s", cause, derived)
		}
		s := disease.NewSusceptibleState(cause)
		return builtState{state: s, add: s.BaseState.AddTransition}, nil
	case "recovered":
		derived := "recovered_from_" + cause
		if spec.Name != "" && spec.Name != derived {
			return builtState{}, fmt.Errorf("recovered state for %s is named %s", cause, derived)
		}
		s := disease.NewRecoveredState(cause)
		return builtState{state: s, add: s.BaseState.AddTransition}, nil
	case "disease":
		if spec.Name == "" {
			return builtState{}, fmt.Errorf("state name is required for kind %q", spec.Kind)
		}
		s := disease.NewDiseaseState(spec.Name, stateSources(spec))
		return builtState{state: s, add: s.BaseState.AddTransition}, nil
	case "excess_mortality":
		if spec.Name == "" {
			return builtState{}, fmt.Errorf("state name is required for kind %q", spec.Kind)
		}
		s := disease.NewExcessMortalityState(spec.Name, stateSources(spec))
		return builtState{state: s, add: s.BaseState.AddTransition}, nil
	case "transient":
		if spec.Name == "" {
			return builtState{}, fmt.Errorf("state name is required for kind %q", spec.Kind)
		}
		s := disease.NewTransientDiseaseState(spec.Name)
		return builtState{state: s, add: s.BaseState.AddTransition}, nil
	default:
		return builtState{}, fmt.Errorf("unsupported state kind: %s", spec.Kind)
	}
}

func stateSources(spec StateSpec) disease.DataSources {
	sources := disease.DataSources{
		disease.MeasureDisabilityWeight: lookup.Constant(spec.DisabilityWeight),
		disease.MeasurePrevalence:       lookup.Constant(spec.Prevalence),
	}
	if spec.DwellTimeDays > 0 {
		sources[disease.MeasureDwellTime] = lookup.Constant(spec.DwellTimeDays)
	}
	if spec.Kind == "excess_mortality" {
		sources[disease.MeasureExcessMortality] = lookup.Constant(spec.ExcessMortality)
	}
	return sources
}

func applyTransitions(req RunRequest, byName map[string]builtState) error {
	seen := make(map[string]struct{}, len(req.Transitions))
	outgoing := make(map[string]int, len(byName))
	for _, spec := range req.Transitions {
		from, ok := byName[spec.From]
		if !ok {
			return fmt.Errorf("transition from unknown state: %s", spec.From)
		}
		to, ok := byName[spec.To]
		if !ok {
			return fmt.Errorf("transition to unknown state: %s", spec.To)
		}
		edge := spec.From + " -> " + spec.To
		if _, dup := seen[edge]; dup {
			return fmt.Errorf("duplicate transition: %s", edge)
		}
		seen[edge] = struct{}{}
		t, err := buildTransition(spec, to.state)
		if err != nil {
			return err
		}
		from.add(t)
		outgoing[spec.From]++
	}
	for name, st := range byName {
		if st.state.Transient() && outgoing[name] == 0 {
			return fmt.Errorf("transient state %s needs at least one transition", name)
		}
	}
	return nil
}

// buildTransition labels rate pipelines by edge, so parallel transitions into
// one state never collide in the value registry.
func buildTransition(spec TransitionSpec, output machine.State) (machine.Transition, error) {
	switch spec.Kind {
	case "":
		return machine.NewSimpleTransition(output, nil), nil
	case "rate":
		if spec.Rate < 0 {
			return nil, fmt.Errorf("transition %s -> %s rate must be >= 0", spec.From, spec.To)
		}
		label := spec.From + "_to_" + spec.To
		return disease.NewRateTransition(output, label, lookup.Constant(spec.Rate)), nil
	case "proportion":
		if spec.Proportion < 0 || spec.Proportion > 1 {
			return nil, fmt.Errorf("transition %s -> %s proportion must be within [0, 1]", spec.From, spec.To)
		}
		return disease.NewProportionTransition(output, lookup.Constant(spec.Proportion)), nil
	default:
		return nil, fmt.Errorf("unsupported transition kind: %s", spec.Kind)
	}
}
