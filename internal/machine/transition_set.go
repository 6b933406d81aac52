package machine

import (
	"fmt"
	"time"

	"nosos/internal/population"
	"nosos/internal/randomness"
	"nosos/internal/sim"
)

const probabilityTolerance = 1e-9

// TransitionSet holds a state's exits in declaration order and resolves them
// with one uniform draw per simulant.
type TransitionSet struct {
	stateID        string
	allowRemaining bool
	transitions    []Transition
	stream         *randomness.Stream
}

func newTransitionSet(stateID string) *TransitionSet {
	return &TransitionSet{stateID: stateID, allowRemaining: true}
}

// Append adds a transition at the end of the partition.
func (ts *TransitionSet) Append(t Transition) {
	ts.transitions = append(ts.transitions, t)
}

// Len returns the number of transitions.
func (ts *TransitionSet) Len() int { return len(ts.transitions) }

// Setup registers the set's decision stream and wires each transition.
func (ts *TransitionSet) Setup(b *sim.Builder) error {
	stream, err := b.Randomness(ts.stateID + ".exit")
	if err != nil {
		return err
	}
	ts.stream = stream
	for _, t := range ts.transitions {
		if err := t.Setup(b); err != nil {
			return err
		}
	}
	return nil
}

// Resolve partitions [0,1) per simulant from the transition probabilities in
// declaration order, maps one draw onto the partition, and runs the chosen
// destinations' transition effects group by group.
//
// Unclaimed mass keeps the simulant in place when remaining is allowed,
// otherwise it is an error. Probabilities summing past one are always an
// error.
func (ts *TransitionSet) Resolve(idx population.Index, eventTime time.Time) error {
	if len(idx) == 0 || len(ts.transitions) == 0 {
		return nil
	}

	probs := make([][]float64, len(ts.transitions))
	for j, t := range ts.transitions {
		p, err := t.Probability(idx)
		if err != nil {
			return fmt.Errorf("machine: probability of %s -> %s: %w", ts.stateID, t.Output().ID(), err)
		}
		if len(p) != len(idx) {
			return fmt.Errorf("machine: transition %s -> %s returned %d probabilities for %d ids", ts.stateID, t.Output().ID(), len(p), len(idx))
		}
		probs[j] = p
	}

	draws := ts.stream.Draws(idx)
	groups := make([]population.Index, len(ts.transitions))
	for i, id := range idx {
		total := 0.0
		chosen := -1
		for j := range probs {
			p := probs[j][i]
			if p < 0 {
				return fmt.Errorf("machine: negative probability %v for simulant %d leaving %s", p, id, ts.stateID)
			}
			if chosen == -1 && draws[i] < total+p {
				chosen = j
			}
			total += p
		}
		if total > 1+probabilityTolerance {
			return fmt.Errorf("machine: exit probabilities for simulant %d leaving %s sum to %v", id, ts.stateID, total)
		}
		if chosen == -1 && !ts.allowRemaining {
			if total >= 1-probabilityTolerance {
				chosen = len(ts.transitions) - 1
			} else {
				return fmt.Errorf("machine: simulant %d has no exit from %s and remaining is not allowed", id, ts.stateID)
			}
		}
		if chosen >= 0 {
			groups[chosen] = append(groups[chosen], id)
		}
	}

	for j, t := range ts.transitions {
		if len(groups[j]) == 0 {
			continue
		}
		if err := t.Output().TransitionEffect(groups[j], eventTime); err != nil {
			return err
		}
	}
	return nil
}
