package observer

import (
	"math"
	"testing"

	"nosos/internal/disease"
	"nosos/internal/machine"
	"nosos/internal/population"
	"nosos/internal/sim"
	"nosos/internal/values"
)

func newFluModel(t *testing.T, weight float64) *disease.DiseaseModel {
	t.Helper()
	resolver := disease.StaticResolver{
		"flu": {
			disease.MeasureIncidenceRate:    constSource(certainRate),
			disease.MeasurePrevalence:       constSource(0),
			disease.MeasureDisabilityWeight: constSource(weight),
		},
	}
	susceptible := disease.NewSusceptibleState("flu")
	infected := disease.NewDiseaseState("flu", nil)
	if _, err := susceptible.AddTransition(infected, disease.TransitionRate, nil); err != nil {
		t.Fatalf("add transition: %v", err)
	}
	model, err := disease.NewDiseaseModel(disease.ModelConfig{
		Cause:    "flu",
		States:   []machine.State{susceptible, infected},
		Resolver: resolver,
	})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	return model
}

func TestDisabilityAccrual(t *testing.T) {
	eng := newObserverEngine(t, 20, 30.5, newFluModel(t, 0.4), NewDisability())

	if err := eng.Step(); err != nil {
		t.Fatalf("first step: %v", err)
	}
	if err := eng.Step(); err != nil {
		t.Fatalf("second step: %v", err)
	}
	// Everyone falls ill during the first step and carries the weight for
	// both steps.
	want := 2 * 20 * 0.4 * 30.5 / values.DaysPerYear
	metrics, err := eng.Metrics()
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if got := metrics[MetricYLD]; math.Abs(got-want) > 1e-9 {
		t.Fatalf("years lived with disability %v, want %v", got, want)
	}

	aliveView := eng.Population().View(sim.ColumnAlive)
	if err := aliveView.SetStrings(sim.ColumnAlive, population.Index{0, 1}, sim.StatusDead); err != nil {
		t.Fatalf("mark dead: %v", err)
	}
	if err := eng.Step(); err != nil {
		t.Fatalf("third step: %v", err)
	}
	want += 18 * 0.4 * 30.5 / values.DaysPerYear
	metrics, err = eng.Metrics()
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if got := metrics[MetricYLD]; math.Abs(got-want) > 1e-9 {
		t.Fatalf("years lived with disability %v after deaths, want %v", got, want)
	}
}
