package observer

import (
	"time"

	"nosos/internal/disease"
	"nosos/internal/population"
	"nosos/internal/sim"
	"nosos/internal/values"
)

// Disability owns the population disability weight pipeline and accumulates
// years lived with disability over the run. Disease states contribute their
// weights as modifiers; the base is zero for everyone.
type Disability struct {
	pipeline *values.Pipeline
	view     *population.View
	clock    *sim.Clock
	ylds     float64
}

// NewDisability creates the component.
func NewDisability() *Disability {
	return &Disability{}
}

// Name implements sim.Component.
func (d *Disability) Name() string { return "disability" }

// Setup implements sim.Component. Accrual runs after disease transitions,
// so weight gained this step counts for the whole step.
func (d *Disability) Setup(b *sim.Builder) error {
	pipeline, err := b.Values().RegisterProducer(disease.DisabilityWeightPipeline, func(idx population.Index) ([]float64, error) {
		return make([]float64, len(idx)), nil
	})
	if err != nil {
		return err
	}
	d.pipeline = pipeline
	d.view = b.Population(sim.ColumnAlive)
	d.clock = b.Clock()
	b.RegisterTimeStepListener(sim.PhaseTimeStep, 8, d.onTimeStep)
	b.Values().RegisterMetricsModifier(d.metrics)
	return nil
}

func (d *Disability) onTimeStep(idx population.Index, eventTime time.Time) error {
	living, err := d.view.FilterString(sim.ColumnAlive, idx, sim.StatusAlive)
	if err != nil {
		return err
	}
	if len(living) == 0 {
		return nil
	}
	weights, err := d.pipeline.Call(living)
	if err != nil {
		return err
	}
	total := 0.0
	for _, w := range weights {
		total += w
	}
	d.ylds += total * d.clock.StepDays() / values.DaysPerYear
	return nil
}

func (d *Disability) metrics(idx population.Index, metrics map[string]float64) error {
	metrics[MetricYLD] += d.ylds
	return nil
}
