package sim

import (
	"testing"
	"time"

	"nosos/internal/population"
)

type stubComponent struct {
	name  string
	setup func(b *Builder) error
}

func (s stubComponent) Name() string           { return s.name }
func (s stubComponent) Setup(b *Builder) error { return s.setup(b) }

func startTime() time.Time {
	return time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestNewEngineValidation(t *testing.T) {
	base := Config{PopulationSize: 10, StartTime: startTime(), StepDays: 30.5}

	cfg := base
	cfg.PopulationSize = 0
	if _, err := NewEngine(cfg); err == nil {
		t.Fatal("expected error for zero population")
	}

	cfg = base
	cfg.StepDays = 0
	if _, err := NewEngine(cfg); err == nil {
		t.Fatal("expected error for zero step")
	}

	cfg = base
	cfg.StartTime = time.Time{}
	if _, err := NewEngine(cfg); err == nil {
		t.Fatal("expected error for missing start time")
	}

	cfg = base
	cfg.Components = []Component{nil}
	if _, err := NewEngine(cfg); err == nil {
		t.Fatal("expected error for nil component")
	}

	noop := func(*Builder) error { return nil }
	cfg = base
	cfg.Components = []Component{stubComponent{name: "", setup: noop}}
	if _, err := NewEngine(cfg); err == nil {
		t.Fatal("expected error for unnamed component")
	}

	cfg = base
	cfg.Components = []Component{
		stubComponent{name: "twin", setup: noop},
		stubComponent{name: "twin", setup: noop},
	}
	if _, err := NewEngine(cfg); err == nil {
		t.Fatal("expected error for duplicate component")
	}
}

func TestStepRequiresSetup(t *testing.T) {
	engine, err := NewEngine(Config{PopulationSize: 3, StartTime: startTime(), StepDays: 10})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := engine.Step(); err == nil {
		t.Fatal("expected error before setup")
	}
}

func TestListenersRunByPhaseAndPriority(t *testing.T) {
	var order []string
	mark := func(tag string) TimeStepListener {
		return func(population.Index, time.Time) error {
			order = append(order, tag)
			return nil
		}
	}
	probe := stubComponent{name: "probe", setup: func(b *Builder) error {
		b.RegisterTimeStepListener(PhaseCleanup, 0, mark("cleanup"))
		b.RegisterTimeStepListener(PhaseTimeStep, 5, mark("step-5a"))
		b.RegisterTimeStepListener(PhaseTimeStep, 0, mark("step-0"))
		b.RegisterTimeStepListener(PhasePrepare, 9, mark("prepare"))
		b.RegisterTimeStepListener(PhaseTimeStep, 5, mark("step-5b"))
		return nil
	}}

	engine, err := NewEngine(Config{PopulationSize: 2, StartTime: startTime(), StepDays: 10, Components: []Component{probe}})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := engine.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := engine.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}

	want := []string{"prepare", "step-0", "step-5a", "step-5b", "cleanup"}
	if len(order) != len(want) {
		t.Fatalf("unexpected listener order: %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("listener %d: got %q, want %q (full order %v)", i, order[i], want[i], order)
		}
	}
}

func TestClockAdvancesAfterListeners(t *testing.T) {
	var sawEvent time.Time
	var sawSize int
	probe := stubComponent{name: "probe", setup: func(b *Builder) error {
		b.RegisterTimeStepListener(PhaseTimeStep, 5, func(idx population.Index, eventTime time.Time) error {
			sawEvent = eventTime
			sawSize = len(idx)
			return nil
		})
		return nil
	}}

	engine, err := NewEngine(Config{PopulationSize: 7, StartTime: startTime(), StepDays: 10, Components: []Component{probe}})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := engine.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := engine.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}

	wantEvent := startTime().Add(10 * 24 * time.Hour)
	if !sawEvent.Equal(wantEvent) {
		t.Fatalf("event time: got %v, want %v", sawEvent, wantEvent)
	}
	if sawSize != 7 {
		t.Fatalf("listener index size: got %d, want 7", sawSize)
	}
	if !engine.Clock().Time().Equal(wantEvent) {
		t.Fatalf("clock after step: got %v, want %v", engine.Clock().Time(), wantEvent)
	}
	if engine.Clock().StepIndex() != 1 {
		t.Fatalf("step index: got %d, want 1", engine.Clock().StepIndex())
	}
}

func TestSetupCreatesAliveAndRunsInitializers(t *testing.T) {
	var initialized population.Index
	probe := stubComponent{name: "probe", setup: func(b *Builder) error {
		view := b.Population(ColumnAlive)
		b.RegisterSimulantInitializer(func(idx population.Index) error {
			initialized = idx
			_, err := view.Strings(ColumnAlive)
			return err
		})
		return nil
	}}

	engine, err := NewEngine(Config{PopulationSize: 4, StartTime: startTime(), StepDays: 10, Components: []Component{probe}})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := engine.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if len(initialized) != 4 {
		t.Fatalf("initializer index: got %v", initialized)
	}

	view := engine.Population().View(ColumnAlive)
	living, err := view.IndexWhereString(ColumnAlive, StatusAlive)
	if err != nil {
		t.Fatalf("index where: %v", err)
	}
	if len(living) != 4 {
		t.Fatalf("expected everyone alive, got %d", len(living))
	}
}

func TestClockYearIsFractional(t *testing.T) {
	clock := NewClock(time.Date(1990, 7, 2, 12, 0, 0, 0, time.UTC), 10)
	if got := clock.Year(); got != 1990.5 {
		t.Fatalf("year: got %v, want 1990.5", got)
	}
	clock = NewClock(time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), 10)
	if got := clock.Year(); got != 1990 {
		t.Fatalf("year: got %v, want 1990", got)
	}
}

func TestMetricsComeFromRegistry(t *testing.T) {
	probe := stubComponent{name: "probe", setup: func(b *Builder) error {
		b.Values().RegisterMetricsModifier(func(idx population.Index, m map[string]float64) error {
			m["population"] = float64(len(idx))
			return nil
		})
		return nil
	}}
	engine, err := NewEngine(Config{PopulationSize: 5, StartTime: startTime(), StepDays: 10, Components: []Component{probe}})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := engine.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	metrics, err := engine.Metrics()
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if metrics["population"] != 5 {
		t.Fatalf("unexpected metrics: %v", metrics)
	}
}
