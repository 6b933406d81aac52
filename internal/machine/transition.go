package machine

import (
	"nosos/internal/population"
	"nosos/internal/sim"
)

// ProbabilityFunc yields the per-step transition probability for each id in
// idx.
type ProbabilityFunc func(idx population.Index) ([]float64, error)

// Transition moves simulants from the state that owns it to Output.
type Transition interface {
	Setup(b *sim.Builder) error
	LoadPopulationColumns(idx population.Index) error
	Probability(idx population.Index) ([]float64, error)
	Output() State
}

// Activity gates a transition per simulant: only marked simulants see a
// non-zero probability. A nil Activity means the transition is always on,
// and every method is safe on the nil receiver.
type Activity struct {
	startActive bool
	active      map[int]bool
}

// NewActivity creates a gate. With startActive, population loading marks
// every simulant.
func NewActivity(startActive bool) *Activity {
	return &Activity{startActive: startActive, active: make(map[int]bool)}
}

// Load applies start-active marking for the initial population.
func (a *Activity) Load(idx population.Index) {
	if a == nil || !a.startActive {
		return
	}
	a.SetActive(idx)
}

// SetActive marks the given simulants.
func (a *Activity) SetActive(idx population.Index) {
	if a == nil {
		return
	}
	for _, id := range idx {
		a.active[id] = true
	}
}

// SetInactive clears the mark for the given simulants.
func (a *Activity) SetInactive(idx population.Index) {
	if a == nil {
		return
	}
	for _, id := range idx {
		delete(a.active, id)
	}
}

// Mask zeroes the probability of unmarked simulants in place.
func (a *Activity) Mask(idx population.Index, probs []float64) {
	if a == nil {
		return
	}
	for i, id := range idx {
		if !a.active[id] {
			probs[i] = 0
		}
	}
}

// SimpleTransition fires with a fixed probability function. A nil function
// means certainty.
type SimpleTransition struct {
	output   State
	prob     ProbabilityFunc
	activity *Activity
}

// NewSimpleTransition creates an always-active transition.
func NewSimpleTransition(output State, prob ProbabilityFunc) *SimpleTransition {
	return &SimpleTransition{output: output, prob: prob}
}

// NewGatedTransition creates a transition gated by an Activity.
func NewGatedTransition(output State, prob ProbabilityFunc, startActive bool) *SimpleTransition {
	return &SimpleTransition{output: output, prob: prob, activity: NewActivity(startActive)}
}

// Output returns the destination state.
func (t *SimpleTransition) Output() State { return t.output }

// Setup does nothing; the transition needs no services.
func (t *SimpleTransition) Setup(b *sim.Builder) error { return nil }

// LoadPopulationColumns applies start-active marking.
func (t *SimpleTransition) LoadPopulationColumns(idx population.Index) error {
	t.activity.Load(idx)
	return nil
}

// SetActive marks the given simulants active on a gated transition.
func (t *SimpleTransition) SetActive(idx population.Index) { t.activity.SetActive(idx) }

// SetInactive clears the active mark on a gated transition.
func (t *SimpleTransition) SetInactive(idx population.Index) { t.activity.SetInactive(idx) }

// Probability returns the transition probability per id, applying the gate.
func (t *SimpleTransition) Probability(idx population.Index) ([]float64, error) {
	var probs []float64
	if t.prob == nil {
		probs = make([]float64, len(idx))
		for i := range probs {
			probs[i] = 1
		}
	} else {
		var err error
		probs, err = t.prob(idx)
		if err != nil {
			return nil, err
		}
	}
	t.activity.Mask(idx, probs)
	return probs, nil
}
