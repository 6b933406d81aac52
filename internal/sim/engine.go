package sim

import (
	"fmt"
	"sort"
	"time"

	"nosos/internal/population"
	"nosos/internal/randomness"
	"nosos/internal/values"
)

// Column and status values every simulation shares. Components address vital
// status through these rather than their own literals.
const (
	ColumnAlive = "alive"
	StatusAlive = "alive"
	StatusDead  = "dead"
)

// Config describes one simulation.
type Config struct {
	PopulationSize int
	StartTime      time.Time
	StepDays       float64
	Seed           int64
	Components     []Component
}

type listenerEntry struct {
	phase    Phase
	priority int
	seq      int
	fn       TimeStepListener
}

// Engine owns the population, the clock and the shared services, and drives
// the step loop. Everything runs on the calling goroutine.
type Engine struct {
	clock      *Clock
	table      *population.Table
	values     *values.Registry
	randomness *randomness.Source

	components   []Component
	initializers []SimulantInitializer
	listeners    []listenerEntry
	setupDone    bool
}

// NewEngine validates cfg and builds an engine. Setup must be called before
// stepping.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if cfg.StepDays <= 0 {
		return nil, fmt.Errorf("step days must be > 0")
	}
	if cfg.StartTime.IsZero() {
		return nil, fmt.Errorf("start time is required")
	}
	seen := make(map[string]struct{}, len(cfg.Components))
	for i, comp := range cfg.Components {
		if comp == nil {
			return nil, fmt.Errorf("component is nil at index %d", i)
		}
		name := comp.Name()
		if name == "" {
			return nil, fmt.Errorf("component name is required at index %d", i)
		}
		if _, exists := seen[name]; exists {
			return nil, fmt.Errorf("duplicate component: %s", name)
		}
		seen[name] = struct{}{}
	}

	clock := NewClock(cfg.StartTime, cfg.StepDays)
	return &Engine{
		clock:      clock,
		table:      population.NewTable(cfg.PopulationSize),
		values:     values.NewRegistry(clock),
		randomness: randomness.NewSource(cfg.Seed, clock.StepIndex),
		components: cfg.Components,
	}, nil
}

// Setup wires every component and initializes the population. Calling it
// again is a no-op.
func (e *Engine) Setup() error {
	if e.setupDone {
		return nil
	}
	if err := e.table.AddStringColumn(ColumnAlive, StatusAlive); err != nil {
		return err
	}
	for _, comp := range e.components {
		if err := comp.Setup(&Builder{engine: e}); err != nil {
			return fmt.Errorf("setup component %s: %w", comp.Name(), err)
		}
	}
	sort.SliceStable(e.listeners, func(i, j int) bool {
		if e.listeners[i].phase != e.listeners[j].phase {
			return e.listeners[i].phase < e.listeners[j].phase
		}
		return e.listeners[i].priority < e.listeners[j].priority
	})

	full := e.table.FullIndex()
	for _, fn := range e.initializers {
		if err := fn(full); err != nil {
			return fmt.Errorf("initialize simulants: %w", err)
		}
	}
	e.setupDone = true
	return nil
}

// Step resolves one step: every listener runs against the full population
// index at the step's event time, then the clock advances.
func (e *Engine) Step() error {
	if !e.setupDone {
		return fmt.Errorf("engine is not set up")
	}
	eventTime := e.clock.EventTime()
	full := e.table.FullIndex()
	for _, entry := range e.listeners {
		if err := entry.fn(full, eventTime); err != nil {
			return err
		}
	}
	e.clock.advance()
	return nil
}

// Run resolves the given number of steps.
func (e *Engine) Run(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be > 0")
	}
	for i := 0; i < steps; i++ {
		if err := e.Step(); err != nil {
			return fmt.Errorf("step %d: %w", e.clock.StepIndex(), err)
		}
	}
	return nil
}

// Metrics assembles the metrics map over the full population.
func (e *Engine) Metrics() (map[string]float64, error) {
	return e.values.Metrics(e.table.FullIndex())
}

// Clock returns the simulation clock.
func (e *Engine) Clock() *Clock { return e.clock }

// Population returns the population table.
func (e *Engine) Population() *population.Table { return e.table }

// Values returns the value registry.
func (e *Engine) Values() *values.Registry { return e.values }
