// Package machine implements a vectorized state machine over one population
// column. States resolve their exits by partitioning the unit interval with
// per-simulant transition probabilities and mapping a single uniform draw
// onto the partition; unclaimed mass means the simulant stays put.
package machine

import (
	"fmt"
	"time"

	"nosos/internal/population"
	"nosos/internal/sim"
)

// State is one node of a machine. Implementations embed BaseState and
// override the hooks they need; the machine dispatches through this
// interface, so an override is always honored.
type State interface {
	ID() string
	Attach(column string)
	Setup(b *sim.Builder) error
	LoadPopulationColumns(idx population.Index) error
	NextState(idx population.Index, eventTime time.Time) error
	TransitionEffect(idx population.Index, eventTime time.Time) error
	Metrics(idx population.Index, metrics map[string]float64) error
	Transient() bool
}

// SideEffect runs after simulants enter a state.
type SideEffect func(idx population.Index, eventTime time.Time) error

// BaseState carries the behavior shared by every state: the exit transition
// set, entry tracking columns, and the column write when simulants arrive.
type BaseState struct {
	id          string
	column      string
	trackEvents bool
	sideEffect  SideEffect
	transitions *TransitionSet
	view        *population.View
}

// NewBaseState creates a state that tracks entries and lets unclaimed
// probability mass remain in place.
func NewBaseState(id string) *BaseState {
	s := &BaseState{id: id, trackEvents: true}
	s.transitions = newTransitionSet(id)
	return s
}

// ID returns the state id, the value written into the machine column.
func (s *BaseState) ID() string { return s.id }

// Attach binds the state to its machine's population column.
func (s *BaseState) Attach(column string) { s.column = column }

// Transient reports whether simulants may end a step in this state.
func (s *BaseState) Transient() bool { return false }

// SetSideEffect installs a callback invoked after entries are recorded.
func (s *BaseState) SetSideEffect(fn SideEffect) { s.sideEffect = fn }

// SetTrackEvents toggles the entry time and count columns.
func (s *BaseState) SetTrackEvents(on bool) { s.trackEvents = on }

// TracksEvents reports whether entries are recorded.
func (s *BaseState) TracksEvents() bool { return s.trackEvents }

// SetAllowRemaining controls what happens to unclaimed probability mass: when
// true simulants stay in the state, when false an uncovered simulant is an
// error.
func (s *BaseState) SetAllowRemaining(on bool) { s.transitions.allowRemaining = on }

// AddTransition appends an exit transition. Declaration order fixes the
// partition order.
func (s *BaseState) AddTransition(t Transition) { s.transitions.Append(t) }

// Transitions returns the state's exit transition set.
func (s *BaseState) Transitions() *TransitionSet { return s.transitions }

// EventTimeColumn names the column holding the latest entry time.
func (s *BaseState) EventTimeColumn() string { return s.id + "_event_time" }

// EventCountColumn names the column counting entries.
func (s *BaseState) EventCountColumn() string { return s.id + "_event_count" }

// Setup builds the state's population view and wires its transition set.
func (s *BaseState) Setup(b *sim.Builder) error {
	if s.column == "" {
		return fmt.Errorf("machine: state %s is not attached to a machine", s.id)
	}
	s.view = b.Population(s.column, s.EventTimeColumn(), s.EventCountColumn())
	return s.transitions.Setup(b)
}

// LoadPopulationColumns creates the tracking columns and applies start-active
// marking across the transitions.
func (s *BaseState) LoadPopulationColumns(idx population.Index) error {
	if s.trackEvents {
		if err := s.view.AddTimeColumn(s.EventTimeColumn(), time.Time{}); err != nil {
			return err
		}
		if err := s.view.AddIntColumn(s.EventCountColumn(), 0); err != nil {
			return err
		}
	}
	for _, t := range s.transitions.transitions {
		if err := t.LoadPopulationColumns(idx); err != nil {
			return err
		}
	}
	return nil
}

// NextState resolves the exits for the simulants currently in this state.
func (s *BaseState) NextState(idx population.Index, eventTime time.Time) error {
	return s.transitions.Resolve(idx, eventTime)
}

// TransitionEffect records the arrival of simulants: the column flips to this
// state's id, tracking columns update, and the side effect runs.
func (s *BaseState) TransitionEffect(idx population.Index, eventTime time.Time) error {
	if len(idx) == 0 {
		return nil
	}
	if err := s.view.SetStrings(s.column, idx, s.id); err != nil {
		return err
	}
	if s.trackEvents {
		if err := s.view.SetTimes(s.EventTimeColumn(), idx, eventTime); err != nil {
			return err
		}
		if err := s.view.AddInts(s.EventCountColumn(), idx, 1); err != nil {
			return err
		}
	}
	if s.sideEffect != nil {
		return s.sideEffect(idx, eventTime)
	}
	return nil
}

// Metrics reports the total entry count under the count column's name.
func (s *BaseState) Metrics(idx population.Index, metrics map[string]float64) error {
	if !s.trackEvents {
		return nil
	}
	counts, err := s.view.Ints(s.EventCountColumn())
	if err != nil {
		return err
	}
	total := 0
	for _, id := range idx {
		total += counts[id]
	}
	metrics[s.EventCountColumn()] = float64(total)
	return nil
}

// View returns the state's population view. It is nil before Setup.
func (s *BaseState) View() *population.View { return s.view }

// Column returns the machine column the state is attached to.
func (s *BaseState) Column() string { return s.column }

// TransientState is a pass-through node: simulants entering it resolve their
// next exit within the same step and may not remain.
type TransientState struct {
	*BaseState
}

// NewTransientState creates a transient state.
func NewTransientState(id string) *TransientState {
	s := &TransientState{BaseState: NewBaseState(id)}
	s.SetAllowRemaining(false)
	return s
}

// Transient reports true.
func (s *TransientState) Transient() bool { return true }

// TransitionEffect records the arrival, then immediately resolves the next
// exit for the same simulants.
func (s *TransientState) TransitionEffect(idx population.Index, eventTime time.Time) error {
	if err := s.BaseState.TransitionEffect(idx, eventTime); err != nil {
		return err
	}
	return s.NextState(idx, eventTime)
}
