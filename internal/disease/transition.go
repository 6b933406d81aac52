package disease

import (
	"fmt"

	"nosos/internal/machine"
	"nosos/internal/population"
	"nosos/internal/sim"
	"nosos/internal/values"
)

// rateLabel names the pipeline family for a rate transition touching s: the
// state's cause when it has one, otherwise its id.
func rateLabel(s machine.State) string {
	if cb, ok := s.(CauseBearer); ok && cb.Cause() != "" {
		return cb.Cause()
	}
	return s.ID()
}

// RateTransition drives a transition from an annualized hazard. Setup
// registers the hazard as the rate pipeline <label>.<measure>, with the base
// rate attenuated by the joint factor <label>.paf so risk components can
// delete their share before the per-step conversion.
type RateTransition struct {
	output   machine.State
	label    string
	measure  string
	source   values.Source
	resolve  func() (values.Source, error)
	gate     *machine.Activity
	pipeline *values.Pipeline
}

// NewRateTransition builds a rate transition with an explicit label and base
// rate source. The pipeline is registered as <label>.incidence_rate.
func NewRateTransition(output machine.State, label string, source values.Source) *RateTransition {
	return &RateTransition{output: output, label: label, measure: MeasureIncidenceRate, source: source}
}

// Gate makes the transition dormant per simulant until activated. With
// startActive, population loading activates everyone.
func (t *RateTransition) Gate(startActive bool) *machine.Activity {
	t.gate = machine.NewActivity(startActive)
	return t.gate
}

// Output returns the destination state.
func (t *RateTransition) Output() machine.State { return t.output }

// Setup resolves the base rate when it was deferred to the model's resolver
// and registers the attenuated hazard pipeline.
func (t *RateTransition) Setup(b *sim.Builder) error {
	if t.source == nil {
		if t.resolve == nil {
			return fmt.Errorf("disease: transition to %s has no rate data", t.output.ID())
		}
		src, err := t.resolve()
		if err != nil {
			return err
		}
		t.source = src
	}
	base := t.source
	joint := b.Values().JointValue(t.label + ".paf")
	pipeline, err := b.Values().RegisterRateProducer(t.label+"."+t.measure, func(idx population.Index) ([]float64, error) {
		rates, err := base(idx)
		if err != nil {
			return nil, err
		}
		paf, err := joint.Call(idx)
		if err != nil {
			return nil, err
		}
		if len(rates) != len(idx) {
			return nil, fmt.Errorf("disease: %s rate returned %d values for %d ids", t.label, len(rates), len(idx))
		}
		for i := range rates {
			rates[i] *= 1 - paf[i]
		}
		return rates, nil
	})
	if err != nil {
		return fmt.Errorf("disease: transition to %s: %w", t.output.ID(), err)
	}
	t.pipeline = pipeline
	return nil
}

// LoadPopulationColumns applies start-active gating for the initial
// population.
func (t *RateTransition) LoadPopulationColumns(idx population.Index) error {
	t.gate.Load(idx)
	return nil
}

// Probability converts the hazard into per-step probabilities for idx.
func (t *RateTransition) Probability(idx population.Index) ([]float64, error) {
	probs, err := t.pipeline.Call(idx)
	if err != nil {
		return nil, err
	}
	t.gate.Mask(idx, probs)
	return probs, nil
}

// ProportionTransition drives a transition from a fixed per-simulant split.
// The proportion is used directly as a probability, with no step scaling.
type ProportionTransition struct {
	output machine.State
	source values.Source
	gate   *machine.Activity
}

// NewProportionTransition builds a proportion transition from source.
func NewProportionTransition(output machine.State, source values.Source) *ProportionTransition {
	return &ProportionTransition{output: output, source: source}
}

// Gate makes the transition dormant per simulant until activated. With
// startActive, population loading activates everyone.
func (t *ProportionTransition) Gate(startActive bool) *machine.Activity {
	t.gate = machine.NewActivity(startActive)
	return t.gate
}

// Output returns the destination state.
func (t *ProportionTransition) Output() machine.State { return t.output }

// Setup implements machine.Transition.
func (t *ProportionTransition) Setup(b *sim.Builder) error { return nil }

// LoadPopulationColumns applies start-active gating for the initial
// population.
func (t *ProportionTransition) LoadPopulationColumns(idx population.Index) error {
	t.gate.Load(idx)
	return nil
}

// Probability evaluates the proportion for idx.
func (t *ProportionTransition) Probability(idx population.Index) ([]float64, error) {
	probs, err := t.source(idx)
	if err != nil {
		return nil, err
	}
	if len(probs) != len(idx) {
		return nil, fmt.Errorf("disease: proportion into %s returned %d values for %d ids", t.output.ID(), len(probs), len(idx))
	}
	t.gate.Mask(idx, probs)
	return probs, nil
}

// buildDataTransition validates kind and sources and constructs the matching
// transition. defaultMeasure names the rate measure resolved from cause data
// when no explicit rate source is given; empty means rate transitions must
// carry explicit data.
func buildDataTransition(owner machine.State, resolver func() Resolver, defaultMeasure string, output machine.State, kind TransitionKind, sources DataSources) (machine.Transition, error) {
	switch kind {
	case "":
		return machine.NewSimpleTransition(output, nil), nil
	case TransitionRate:
		if src, ok := sources[MeasureIncidenceRate]; ok {
			return &RateTransition{output: output, label: rateLabel(output), measure: MeasureIncidenceRate, source: src}, nil
		}
		if src, ok := sources[MeasureRemissionRate]; ok {
			return &RateTransition{output: output, label: rateLabel(owner), measure: MeasureRemissionRate, source: src}, nil
		}
		switch defaultMeasure {
		case MeasureIncidenceRate:
			cause := causeOf(output)
			if cause == "" {
				return nil, fmt.Errorf("disease: transition %s -> %s needs an explicit incidence rate", owner.ID(), output.ID())
			}
			return &RateTransition{
				output:  output,
				label:   cause,
				measure: MeasureIncidenceRate,
				resolve: deferResolve(resolver, cause, MeasureIncidenceRate),
			}, nil
		case MeasureRemissionRate:
			cause := causeOf(owner)
			if cause == "" {
				return nil, fmt.Errorf("disease: transition %s -> %s needs an explicit remission rate", owner.ID(), output.ID())
			}
			return &RateTransition{
				output:  output,
				label:   cause,
				measure: MeasureRemissionRate,
				resolve: deferResolve(resolver, cause, MeasureRemissionRate),
			}, nil
		default:
			return nil, fmt.Errorf("disease: transition %s -> %s needs explicit rate data", owner.ID(), output.ID())
		}
	case TransitionProportion:
		src, ok := sources[MeasureProportion]
		if !ok {
			return nil, fmt.Errorf("disease: proportion transition %s -> %s needs %s data", owner.ID(), output.ID(), MeasureProportion)
		}
		return NewProportionTransition(output, src), nil
	default:
		return nil, fmt.Errorf("disease: unrecognized transition kind %q", kind)
	}
}

func causeOf(s machine.State) string {
	if cb, ok := s.(CauseBearer); ok {
		return cb.Cause()
	}
	return ""
}

func deferResolve(resolver func() Resolver, cause, measure string) func() (values.Source, error) {
	return func() (values.Source, error) {
		if resolver == nil || resolver() == nil {
			return nil, fmt.Errorf("disease: no resolver for %s of cause %q", measure, cause)
		}
		return resolver().Resolve(cause, measure)
	}
}
