package machine

import (
	"fmt"
	"time"

	"nosos/internal/population"
	"nosos/internal/sim"
)

// Machine drives a set of states over one population column. The column
// holds each simulant's current state id; the machine name and the column
// name are the same thing.
type Machine struct {
	column string
	states []State
	byID   map[string]State
	view   *population.View
}

// NewMachine validates the state set and binds every state to column.
func NewMachine(column string, states ...State) (*Machine, error) {
	if column == "" {
		return nil, fmt.Errorf("machine: column name is required")
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("machine: at least one state is required")
	}
	byID := make(map[string]State, len(states))
	for i, s := range states {
		if s == nil {
			return nil, fmt.Errorf("machine: state is nil at index %d", i)
		}
		id := s.ID()
		if id == "" {
			return nil, fmt.Errorf("machine: state id is required at index %d", i)
		}
		if _, exists := byID[id]; exists {
			return nil, fmt.Errorf("machine: duplicate state: %s", id)
		}
		byID[id] = s
		s.Attach(column)
	}
	return &Machine{column: column, states: states, byID: byID}, nil
}

// Column returns the population column the machine drives.
func (m *Machine) Column() string { return m.column }

// States returns the states in declaration order.
func (m *Machine) States() []State {
	out := make([]State, len(m.states))
	copy(out, m.states)
	return out
}

// State returns the state with the given id.
func (m *Machine) State(id string) (State, bool) {
	s, ok := m.byID[id]
	return s, ok
}

// AddState appends a state after construction, keeping id uniqueness.
func (m *Machine) AddState(s State) error {
	if s == nil {
		return fmt.Errorf("machine: state is nil")
	}
	if _, exists := m.byID[s.ID()]; exists {
		return fmt.Errorf("machine: duplicate state: %s", s.ID())
	}
	s.Attach(m.column)
	m.states = append(m.states, s)
	m.byID[s.ID()] = s
	return nil
}

// Setup builds the machine's view and sets up every state.
func (m *Machine) Setup(b *sim.Builder) error {
	m.view = b.Population(m.column)
	for _, s := range m.states {
		if err := s.Setup(b); err != nil {
			return fmt.Errorf("machine: setup state %s: %w", s.ID(), err)
		}
	}
	return nil
}

// LoadPopulationColumns creates the machine column with every simulant in
// initial, then lets each state create its tracking columns.
func (m *Machine) LoadPopulationColumns(idx population.Index, initial string) error {
	if _, ok := m.byID[initial]; !ok {
		return fmt.Errorf("machine: initial state %q is not part of machine %s", initial, m.column)
	}
	if err := m.view.AddStringColumn(m.column, initial); err != nil {
		return err
	}
	for _, s := range m.states {
		if err := s.LoadPopulationColumns(idx); err != nil {
			return fmt.Errorf("machine: load state %s: %w", s.ID(), err)
		}
	}
	return nil
}

// Transition resolves one step for the given simulants. Groups are formed
// from a snapshot of the column before anything moves, so a simulant changes
// state at most once per pass.
func (m *Machine) Transition(idx population.Index, eventTime time.Time) error {
	col, err := m.view.Strings(m.column)
	if err != nil {
		return err
	}
	groups := make(map[string]population.Index)
	for _, id := range idx {
		groups[col[id]] = append(groups[col[id]], id)
	}
	for id := range groups {
		if _, ok := m.byID[id]; !ok {
			return fmt.Errorf("machine: %d simulants are in unknown state %q of machine %s", len(groups[id]), id, m.column)
		}
	}
	for _, s := range m.states {
		group := groups[s.ID()]
		if len(group) == 0 {
			continue
		}
		if err := s.NextState(group, eventTime); err != nil {
			return err
		}
	}
	return nil
}

// Metrics lets every state report its share.
func (m *Machine) Metrics(idx population.Index, metrics map[string]float64) error {
	for _, s := range m.states {
		if err := s.Metrics(idx, metrics); err != nil {
			return err
		}
	}
	return nil
}

// Counts tallies how many of the given simulants sit in each state.
func (m *Machine) Counts(idx population.Index) (map[string]int, error) {
	col, err := m.view.Strings(m.column)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(m.states))
	for _, s := range m.states {
		counts[s.ID()] = 0
	}
	for _, id := range idx {
		counts[col[id]]++
	}
	return counts, nil
}
