package observer

import (
	"fmt"
	"time"

	"nosos/internal/population"
	"nosos/internal/sim"
)

// PersonTime accrues, per tracked state of one disease column, the days
// living simulants spend in that state. Accrual runs at the tail of the
// time step, after transitions and deaths have settled.
type PersonTime struct {
	column string
	states []string
	view   *population.View
	clock  *sim.Clock
}

// NewPersonTime creates the component for the given disease column and the
// states worth tracking.
func NewPersonTime(column string, states ...string) *PersonTime {
	return &PersonTime{column: column, states: states}
}

// Name implements sim.Component.
func (p *PersonTime) Name() string { return "person_time_" + p.column }

// Column names the accrual column for one tracked state.
func (p *PersonTime) Column(state string) string {
	return fmt.Sprintf("%s_%s_person_time", p.column, state)
}

// Setup implements sim.Component.
func (p *PersonTime) Setup(b *sim.Builder) error {
	if len(p.states) == 0 {
		return fmt.Errorf("observer: person time for %s tracks no states", p.column)
	}
	names := []string{p.column, sim.ColumnAlive}
	for _, state := range p.states {
		names = append(names, p.Column(state))
	}
	p.view = b.Population(names...)
	p.clock = b.Clock()
	b.RegisterSimulantInitializer(p.initializeSimulants)
	b.RegisterTimeStepListener(sim.PhaseTimeStep, 9, p.onTimeStep)
	b.Values().RegisterMetricsModifier(p.metrics)
	return nil
}

func (p *PersonTime) initializeSimulants(idx population.Index) error {
	for _, state := range p.states {
		if err := p.view.AddFloatColumn(p.Column(state), 0); err != nil {
			return err
		}
	}
	return nil
}

func (p *PersonTime) onTimeStep(idx population.Index, eventTime time.Time) error {
	living, err := p.view.FilterString(sim.ColumnAlive, idx, sim.StatusAlive)
	if err != nil {
		return err
	}
	for _, state := range p.states {
		occupants, err := p.view.FilterString(p.column, living, state)
		if err != nil {
			return err
		}
		if len(occupants) == 0 {
			continue
		}
		if err := p.view.AddFloats(p.Column(state), occupants, p.clock.StepDays()); err != nil {
			return err
		}
	}
	return nil
}

func (p *PersonTime) metrics(idx population.Index, metrics map[string]float64) error {
	for _, state := range p.states {
		col, err := p.view.Floats(p.Column(state))
		if err != nil {
			return err
		}
		total := 0.0
		for _, id := range idx {
			total += col[id]
		}
		metrics[p.Column(state)] += total
	}
	return nil
}
