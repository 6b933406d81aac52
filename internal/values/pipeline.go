// Package values implements the dynamic value system: named pipelines whose
// output is assembled from one producer and any number of modifiers at call
// time. Producers and modifiers register independently, so components can be
// wired in any order.
package values

import (
	"errors"
	"fmt"

	"nosos/internal/population"
)

var (
	ErrProducerExists = errors.New("values: producer already registered")
	ErrMissingSource  = errors.New("values: pipeline has no source")
)

// Source produces one value per id in idx.
type Source func(idx population.Index) ([]float64, error)

// Modifier rewrites the values produced so far. The input slice is positional,
// parallel to idx.
type Modifier func(idx population.Index, values []float64) ([]float64, error)

// Clock exposes the step length to rate pipelines. The simulation clock
// satisfies it.
type Clock interface {
	StepDays() float64
}

// Pipeline is a named dynamic value. Rate pipelines carry annual rates
// internally and convert to per-step probabilities on Call; plain pipelines
// return their values untouched.
type Pipeline struct {
	name      string
	rate      bool
	source    Source
	modifiers []Modifier
	clock     Clock
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

func (p *Pipeline) compute(idx population.Index) ([]float64, error) {
	if p.source == nil {
		return nil, fmt.Errorf("%w: %q", ErrMissingSource, p.name)
	}
	values, err := p.source(idx)
	if err != nil {
		return nil, fmt.Errorf("values: source of %q: %w", p.name, err)
	}
	if len(values) != len(idx) {
		return nil, fmt.Errorf("values: source of %q returned %d values for %d ids", p.name, len(values), len(idx))
	}
	for _, mod := range p.modifiers {
		values, err = mod(idx, values)
		if err != nil {
			return nil, fmt.Errorf("values: modifier of %q: %w", p.name, err)
		}
		if len(values) != len(idx) {
			return nil, fmt.Errorf("values: modifier of %q returned %d values for %d ids", p.name, len(values), len(idx))
		}
	}
	return values, nil
}

// Call returns the pipeline value for idx. Rate pipelines convert their
// annual rates to per-step probabilities first.
func (p *Pipeline) Call(idx population.Index) ([]float64, error) {
	values, err := p.compute(idx)
	if err != nil {
		return nil, err
	}
	if !p.rate {
		return values, nil
	}
	return RatesToProbabilities(values, p.clock.StepDays()), nil
}

// Annual returns the pipeline value without the per-step conversion. For
// plain pipelines it is identical to Call.
func (p *Pipeline) Annual(idx population.Index) ([]float64, error) {
	return p.compute(idx)
}
