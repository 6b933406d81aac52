package observer

import (
	"testing"
	"time"

	"nosos/internal/population"
	"nosos/internal/sim"
	"nosos/internal/values"
)

// A hazard this large underflows the exponential, so the per-step
// probability is exactly 1.
const certainRate = 1e4

func constSource(v float64) values.Source {
	return func(idx population.Index) ([]float64, error) {
		out := make([]float64, len(idx))
		for i := range out {
			out[i] = v
		}
		return out, nil
	}
}

func newObserverEngine(t *testing.T, size int, stepDays float64, components ...sim.Component) *sim.Engine {
	t.Helper()
	eng, err := sim.NewEngine(sim.Config{
		PopulationSize: size,
		StartTime:      time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		StepDays:       stepDays,
		Seed:           11,
		Components:     components,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return eng
}
