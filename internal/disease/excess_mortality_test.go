package disease

import (
	"math"
	"testing"

	"nosos/internal/lookup"
	"nosos/internal/machine"
)

func TestExcessMortalityRowInterpolation(t *testing.T) {
	rows := []lookup.Row{
		{Year: 1990, Value: 0.2},
		{Year: 1992, Value: 0.4},
	}
	for _, tc := range []struct {
		name        string
		interpolate bool
		want        float64
	}{
		{"linear", true, 0.3},
		{"stepwise", false, 0.2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sick := NewExcessMortalityState("sick", DataSources{
				MeasureDisabilityWeight: constSource(0),
				MeasurePrevalence:       constSource(0),
			})
			sick.SetInterpolate(tc.interpolate)
			sick.SetRateRows(nil, rows)
			model, err := NewDiseaseModel(ModelConfig{
				Cause:   "test_disease",
				States:  []machine.State{machine.NewBaseState("healthy"), sick},
				Initial: "healthy",
			})
			if err != nil {
				t.Fatalf("new model: %v", err)
			}
			eng := newModelEngine(t, 5, 365, model)
			// One 365 day step lands the clock exactly on 1991.
			if err := eng.Step(); err != nil {
				t.Fatalf("step: %v", err)
			}
			rates, err := eng.Values().Pipeline("sick.excess_mortality").Annual(eng.Population().FullIndex())
			if err != nil {
				t.Fatalf("annual excess mortality: %v", err)
			}
			if math.Abs(rates[0]-tc.want) > 1e-9 {
				t.Fatalf("rate at 1991 = %v, want %v", rates[0], tc.want)
			}
		})
	}
}
