// Package observer carries the components that consume the shared
// aggregates disease states contribute into: mortality resolution, years
// lived with disability, and per-state person time.
package observer

import (
	"strings"
	"time"

	"nosos/internal/disease"
	"nosos/internal/population"
	"nosos/internal/randomness"
	"nosos/internal/sim"
	"nosos/internal/values"
)

// Columns owned by the mortality component.
const (
	ColumnCauseOfDeath = "cause_of_death"
	ColumnExitTime     = "exit_time"

	notDead = "not_dead"
)

// Metric keys reported by the observers.
const (
	MetricTotalDeaths = "total_deaths"
	MetricYLD         = "years_lived_with_disability"
)

// Mortality owns the whole population death hazard: it produces the base
// column of the mortality aggregate, sums the per-cause columns every step,
// converts once to a per-step probability and resolves who dies. Deaths are
// attributed to a contributing cause by a weighted draw over the columns.
type Mortality struct {
	allCause values.Source

	table       *values.RateTable
	deathStream *randomness.Stream
	causeStream *randomness.Stream
	view        *population.View
	clock       *sim.Clock
}

// NewMortality creates the component. allCause is the annual background
// death hazard; nil means no background mortality.
func NewMortality(allCause values.Source) *Mortality {
	return &Mortality{allCause: allCause}
}

// Name implements sim.Component.
func (m *Mortality) Name() string { return "mortality" }

// Setup implements sim.Component. Deaths resolve at the head of the time
// step, so simulants killed this step no longer transition.
func (m *Mortality) Setup(b *sim.Builder) error {
	table, err := b.Values().RegisterFrameProducer(disease.MortalityRateTable, m.baseRates)
	if err != nil {
		return err
	}
	m.table = table
	deathStream, err := b.Randomness("mortality")
	if err != nil {
		return err
	}
	m.deathStream = deathStream
	causeStream, err := b.Randomness("cause_of_death")
	if err != nil {
		return err
	}
	m.causeStream = causeStream
	m.view = b.Population(sim.ColumnAlive, ColumnCauseOfDeath, ColumnExitTime)
	m.clock = b.Clock()
	b.RegisterSimulantInitializer(m.initializeSimulants)
	b.RegisterTimeStepListener(sim.PhaseTimeStep, 0, m.onTimeStep)
	b.Values().RegisterMetricsModifier(m.metrics)
	return nil
}

func (m *Mortality) initializeSimulants(idx population.Index) error {
	if err := m.view.AddStringColumn(ColumnCauseOfDeath, notDead); err != nil {
		return err
	}
	return m.view.AddTimeColumn(ColumnExitTime, time.Time{})
}

func (m *Mortality) baseRates(idx population.Index) (*values.Frame, error) {
	base := make([]float64, len(idx))
	if m.allCause != nil {
		rates, err := m.allCause(idx)
		if err != nil {
			return nil, err
		}
		base = rates
	}
	frame := values.NewFrame()
	if err := frame.AddColumn(disease.OtherCausesColumn, base); err != nil {
		return nil, err
	}
	return frame, nil
}

func (m *Mortality) onTimeStep(idx population.Index, eventTime time.Time) error {
	living, err := m.view.FilterString(sim.ColumnAlive, idx, sim.StatusAlive)
	if err != nil {
		return err
	}
	if len(living) == 0 {
		return nil
	}
	frame, err := m.table.Annual(living)
	if err != nil {
		return err
	}
	sums, err := frame.SumRows()
	if err != nil {
		return err
	}
	probs := values.RatesToProbabilities(sums, m.clock.StepDays())
	dead, err := m.deathStream.FilterForProbability(living, probs)
	if err != nil {
		return err
	}
	if len(dead) == 0 {
		return nil
	}

	pos := make(map[int]int, len(living))
	for i, id := range living {
		pos[id] = i
	}
	names := frame.Names()
	causes := make([]string, len(names))
	for j, name := range names {
		causes[j] = causeLabel(name)
	}
	weights := make([][]float64, len(dead))
	for k, id := range dead {
		row := make([]float64, len(names))
		for j, name := range names {
			col, _ := frame.Column(name)
			row[j] = col[pos[id]]
		}
		weights[k] = row
	}
	picked, err := m.causeStream.Choice(dead, causes, weights)
	if err != nil {
		return err
	}

	if err := m.view.SetStrings(sim.ColumnAlive, dead, sim.StatusDead); err != nil {
		return err
	}
	if err := m.view.SetTimes(ColumnExitTime, dead, eventTime); err != nil {
		return err
	}
	groups := make(map[string]population.Index)
	for k, id := range dead {
		groups[picked[k]] = append(groups[picked[k]], id)
	}
	for cause, group := range groups {
		if err := m.view.SetStrings(ColumnCauseOfDeath, group, cause); err != nil {
			return err
		}
	}
	return nil
}

// metrics reports the running death toll, total and per cause.
func (m *Mortality) metrics(idx population.Index, metrics map[string]float64) error {
	causes, err := m.view.Strings(ColumnCauseOfDeath)
	if err != nil {
		return err
	}
	total := 0.0
	for _, id := range idx {
		if causes[id] == notDead {
			continue
		}
		total++
		metrics["deaths_due_to_"+causes[id]]++
	}
	metrics[MetricTotalDeaths] += total
	return nil
}

// causeLabel turns a mortality aggregate column name into the recorded
// cause of death.
func causeLabel(column string) string {
	return strings.TrimPrefix(column, "death_due_to_")
}
