package sim

import (
	"time"

	"nosos/internal/population"
	"nosos/internal/randomness"
	"nosos/internal/values"
)

// Phase orders listener execution within one step.
type Phase int

const (
	PhasePrepare Phase = iota
	PhaseTimeStep
	PhaseCleanup
)

// SimulantInitializer fills a component's columns for the initial population.
type SimulantInitializer func(idx population.Index) error

// TimeStepListener handles one step for a component. It receives the full
// population index and the time the step resolves to; listeners filter the
// index down to the simulants they act on.
type TimeStepListener func(idx population.Index, eventTime time.Time) error

// Component is anything that wires itself into a simulation at setup.
type Component interface {
	Name() string
	Setup(b *Builder) error
}

// Builder is the setup-time handle components use to reach the engine's
// shared services.
type Builder struct {
	engine *Engine
}

// Population returns a view over the named columns.
func (b *Builder) Population(columns ...string) *population.View {
	return b.engine.table.View(columns...)
}

// Randomness registers and returns the named decision stream.
func (b *Builder) Randomness(name string) (*randomness.Stream, error) {
	return b.engine.randomness.Stream(name)
}

// Values returns the simulation's value registry.
func (b *Builder) Values() *values.Registry {
	return b.engine.values
}

// Clock returns the simulation clock.
func (b *Builder) Clock() *Clock {
	return b.engine.clock
}

// RegisterSimulantInitializer schedules fn to run once over the initial
// population, after every component finished setup.
func (b *Builder) RegisterSimulantInitializer(fn SimulantInitializer) {
	b.engine.initializers = append(b.engine.initializers, fn)
}

// RegisterTimeStepListener schedules fn on every step. Listeners run phase by
// phase, by ascending priority within a phase, and by registration order
// within a priority.
func (b *Builder) RegisterTimeStepListener(phase Phase, priority int, fn TimeStepListener) {
	b.engine.listeners = append(b.engine.listeners, listenerEntry{
		phase:    phase,
		priority: priority,
		seq:      len(b.engine.listeners),
		fn:       fn,
	})
}
