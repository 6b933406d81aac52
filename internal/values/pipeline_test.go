package values

import (
	"errors"
	"math"
	"testing"

	"nosos/internal/population"
)

type fixedClock float64

func (c fixedClock) StepDays() float64 { return float64(c) }

func constant(v float64) Source {
	return func(idx population.Index) ([]float64, error) {
		out := make([]float64, len(idx))
		for i := range out {
			out[i] = v
		}
		return out, nil
	}
}

func TestPipelineAppliesModifiersInOrder(t *testing.T) {
	reg := NewRegistry(fixedClock(30.5))
	idx := population.FullIndex(3)

	reg.RegisterModifier("score", func(_ population.Index, values []float64) ([]float64, error) {
		for i := range values {
			values[i] += 1
		}
		return values, nil
	})
	if _, err := reg.RegisterProducer("score", constant(2)); err != nil {
		t.Fatalf("register producer: %v", err)
	}
	reg.RegisterModifier("score", func(_ population.Index, values []float64) ([]float64, error) {
		for i := range values {
			values[i] *= 10
		}
		return values, nil
	})

	values, err := reg.Pipeline("score").Call(idx)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	for i, v := range values {
		if v != 30 {
			t.Fatalf("value %d: got %v, want 30", i, v)
		}
	}
}

func TestPipelineRequiresSource(t *testing.T) {
	reg := NewRegistry(fixedClock(30.5))
	if _, err := reg.Pipeline("orphan").Call(population.FullIndex(1)); !errors.Is(err, ErrMissingSource) {
		t.Fatalf("expected ErrMissingSource, got %v", err)
	}
}

func TestPipelineRejectsSecondProducer(t *testing.T) {
	reg := NewRegistry(fixedClock(30.5))
	if _, err := reg.RegisterProducer("dup", constant(1)); err != nil {
		t.Fatalf("register producer: %v", err)
	}
	if _, err := reg.RegisterRateProducer("dup", constant(1)); !errors.Is(err, ErrProducerExists) {
		t.Fatalf("expected ErrProducerExists, got %v", err)
	}
}

func TestRatePipelineConvertsOnCall(t *testing.T) {
	reg := NewRegistry(fixedClock(30.5))
	idx := population.FullIndex(2)
	pipe, err := reg.RegisterRateProducer("flu.incidence_rate", constant(0.7))
	if err != nil {
		t.Fatalf("register rate producer: %v", err)
	}

	want := 1 - math.Exp(-0.7*30.5/DaysPerYear)
	values, err := pipe.Call(idx)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if math.Abs(values[0]-want) > 1e-12 {
		t.Fatalf("converted value: got %v, want %v", values[0], want)
	}

	annual, err := pipe.Annual(idx)
	if err != nil {
		t.Fatalf("annual: %v", err)
	}
	if annual[0] != 0.7 {
		t.Fatalf("annual value: got %v, want 0.7", annual[0])
	}
}

func TestJointValueCombinesContributions(t *testing.T) {
	reg := NewRegistry(fixedClock(30.5))
	idx := population.FullIndex(4)

	empty, err := reg.JointValue("flu.paf").Call(idx)
	if err != nil {
		t.Fatalf("call empty: %v", err)
	}
	for _, v := range empty {
		if v != 0 {
			t.Fatalf("empty joint value should be zero, got %v", v)
		}
	}

	joint := reg.JointValue("flu.paf")
	joint.AddContribution(constant(0.1))
	joint.AddContribution(constant(0.2))
	values, err := joint.Call(idx)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	want := 1 - 0.9*0.8
	if math.Abs(values[0]-want) > 1e-12 {
		t.Fatalf("joint value: got %v, want %v", values[0], want)
	}
}

func TestMetricsAccumulateAcrossModifiers(t *testing.T) {
	reg := NewRegistry(fixedClock(30.5))
	reg.RegisterMetricsModifier(func(_ population.Index, m map[string]float64) error {
		m["total_deaths"] = 3
		return nil
	})
	reg.RegisterMetricsModifier(func(_ population.Index, m map[string]float64) error {
		m["total_deaths"] += 2
		m["years_lived_with_disability"] = 1.5
		return nil
	})

	metrics, err := reg.Metrics(population.FullIndex(10))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if metrics["total_deaths"] != 5 || metrics["years_lived_with_disability"] != 1.5 {
		t.Fatalf("unexpected metrics: %v", metrics)
	}
}
