package disease

import (
	"fmt"
	"time"

	"nosos/internal/machine"
	"nosos/internal/population"
	"nosos/internal/sim"
	"nosos/internal/values"
)

// SusceptibleState is the entry state of a disease model, named
// susceptible_to_<cause>.
type SusceptibleState struct {
	*machine.BaseState
	cause    string
	resolver Resolver
}

// NewSusceptibleState creates the susceptible state for cause.
func NewSusceptibleState(cause string) *SusceptibleState {
	return &SusceptibleState{BaseState: machine.NewBaseState("susceptible_to_" + cause), cause: cause}
}

// Cause returns the backing cause identifier.
func (s *SusceptibleState) Cause() string { return s.cause }

func (s *SusceptibleState) useResolver(r Resolver) { s.resolver = r }

// AddTransition builds, appends and returns an exit transition. A rate kind
// without explicit data defaults to the incidence rate of the output's
// cause; an empty kind builds a transition that always fires.
func (s *SusceptibleState) AddTransition(output machine.State, kind TransitionKind, sources DataSources) (machine.Transition, error) {
	t, err := buildDataTransition(s, func() Resolver { return s.resolver }, MeasureIncidenceRate, output, kind, sources)
	if err != nil {
		return nil, err
	}
	s.BaseState.AddTransition(t)
	return t, nil
}

// RecoveredState holds simulants that have left a disease state, named
// recovered_from_<cause>. Like the susceptible state it can be reinfected,
// so its rate exits default to the output's incidence rate.
type RecoveredState struct {
	*machine.BaseState
	cause    string
	resolver Resolver
}

// NewRecoveredState creates the recovered state for cause.
func NewRecoveredState(cause string) *RecoveredState {
	return &RecoveredState{BaseState: machine.NewBaseState("recovered_from_" + cause), cause: cause}
}

// Cause returns the backing cause identifier.
func (s *RecoveredState) Cause() string { return s.cause }

func (s *RecoveredState) useResolver(r Resolver) { s.resolver = r }

// AddTransition builds, appends and returns an exit transition with the same
// defaulting rules as a susceptible state.
func (s *RecoveredState) AddTransition(output machine.State, kind TransitionKind, sources DataSources) (machine.Transition, error) {
	t, err := buildDataTransition(s, func() Resolver { return s.resolver }, MeasureIncidenceRate, output, kind, sources)
	if err != nil {
		return nil, err
	}
	s.BaseState.AddTransition(t)
	return t, nil
}

// TransientDiseaseState is a pass-through hop: simulants land here only as
// an intermediate step and are moved out again within the same resolution
// pass. It carries no cause data, so rate exits need explicit sources.
type TransientDiseaseState struct {
	*machine.TransientState
}

// NewTransientDiseaseState creates a pass-through state.
func NewTransientDiseaseState(id string) *TransientDiseaseState {
	return &TransientDiseaseState{TransientState: machine.NewTransientState(id)}
}

// AddTransition builds, appends and returns an exit transition.
func (s *TransientDiseaseState) AddTransition(output machine.State, kind TransitionKind, sources DataSources) (machine.Transition, error) {
	t, err := buildDataTransition(s, nil, "", output, kind, sources)
	if err != nil {
		return nil, err
	}
	s.TransientState.AddTransition(t)
	return t, nil
}

// DiseaseState is a full disease state: disability weight, baseline
// prevalence, and an optional minimum sojourn (dwell time) simulants must
// serve before its exits become eligible.
type DiseaseState struct {
	*machine.BaseState
	cause    string
	sources  DataSources
	resolver Resolver
	cleanup  machine.SideEffect

	hasDwell   bool
	dwell      *values.Pipeline
	disability values.Source
	prevalence values.Source
	aliveView  *population.View
}

// NewDiseaseState creates a cause-backed state whose id is the cause name.
// Measures missing from sources resolve through the model's resolver; dwell
// time defaults to zero.
func NewDiseaseState(cause string, sources DataSources) *DiseaseState {
	if sources == nil {
		sources = DataSources{}
	}
	return &DiseaseState{BaseState: machine.NewBaseState(cause), cause: cause, sources: sources}
}

// NewCauselessDiseaseState creates a state with no backing cause. sources
// must then carry disability_weight, prevalence and dwell_time explicitly.
func NewCauselessDiseaseState(id string, sources DataSources) (*DiseaseState, error) {
	for _, measure := range []string{MeasureDisabilityWeight, MeasurePrevalence, MeasureDwellTime} {
		if _, ok := sources[measure]; !ok {
			return nil, fmt.Errorf("disease: state %q has no cause and must override %s", id, measure)
		}
	}
	s := NewDiseaseState(id, sources)
	s.cause = ""
	return s, nil
}

// Cause returns the backing cause identifier, empty for causeless states.
func (s *DiseaseState) Cause() string { return s.cause }

func (s *DiseaseState) useResolver(r Resolver) { s.resolver = r }

// SetCleanup installs a hook run against this state's occupants in the
// cleanup phase of every step, for tearing down auxiliary side state.
func (s *DiseaseState) SetCleanup(fn machine.SideEffect) { s.cleanup = fn }

// Prevalence returns the resolved baseline occurrence source. Available
// after setup.
func (s *DiseaseState) Prevalence() values.Source { return s.prevalence }

func (s *DiseaseState) resolveSource(measure string) (values.Source, error) {
	if src, ok := s.sources[measure]; ok {
		return src, nil
	}
	if s.resolver == nil {
		return nil, fmt.Errorf("disease: state %s has no resolver for %s", s.ID(), measure)
	}
	return s.resolver.Resolve(s.cause, measure)
}

// AddTransition builds, appends and returns an exit transition. A rate kind
// without explicit data defaults to this cause's remission rate.
func (s *DiseaseState) AddTransition(output machine.State, kind TransitionKind, sources DataSources) (machine.Transition, error) {
	t, err := buildDataTransition(s, func() Resolver { return s.resolver }, MeasureRemissionRate, output, kind, sources)
	if err != nil {
		return nil, err
	}
	s.BaseState.AddTransition(t)
	return t, nil
}

// Setup resolves the state's measures, registers its dwell time pipeline and
// its contribution to the shared disability weight aggregate.
func (s *DiseaseState) Setup(b *sim.Builder) error {
	if err := s.BaseState.Setup(b); err != nil {
		return err
	}
	disability, err := s.resolveSource(MeasureDisabilityWeight)
	if err != nil {
		return err
	}
	s.disability = disability
	prevalence, err := s.resolveSource(MeasurePrevalence)
	if err != nil {
		return err
	}
	s.prevalence = prevalence

	dwellSrc, hasDwell := s.sources[MeasureDwellTime]
	if !hasDwell {
		dwellSrc = zeroSource
	}
	s.hasDwell = hasDwell
	if hasDwell {
		// Sojourn filtering needs the entry time column and a remain option.
		s.SetAllowRemaining(true)
		s.SetTrackEvents(true)
	}
	dwell, err := b.Values().RegisterProducer(s.ID()+"."+MeasureDwellTime, dwellSrc)
	if err != nil {
		return err
	}
	s.dwell = dwell

	s.aliveView = b.Population(s.Column(), sim.ColumnAlive)
	b.Values().RegisterModifier(DisabilityWeightPipeline, s.disabilityWeight)

	if s.cleanup != nil {
		b.RegisterTimeStepListener(sim.PhaseCleanup, 5, s.cleanupEffect)
	}
	return nil
}

// NextState narrows the candidates to simulants that have served the minimum
// sojourn, then resolves exits as usual.
func (s *DiseaseState) NextState(idx population.Index, eventTime time.Time) error {
	eligible, err := s.eligible(idx, eventTime)
	if err != nil {
		return err
	}
	return s.BaseState.NextState(eligible, eventTime)
}

// eligible drops simulants whose entry time plus dwell time lies beyond
// eventTime. A zero entry time never becomes eligible; dwell states are
// entered through tracked transitions.
func (s *DiseaseState) eligible(idx population.Index, eventTime time.Time) (population.Index, error) {
	if !s.hasDwell {
		return idx, nil
	}
	entries, err := s.View().Times(s.EventTimeColumn())
	if err != nil {
		return nil, err
	}
	days, err := s.dwell.Call(idx)
	if err != nil {
		return nil, err
	}
	out := make(population.Index, 0, len(idx))
	for i, id := range idx {
		if entries[id].IsZero() {
			continue
		}
		exit := entries[id].Add(time.Duration(days[i] * 24 * float64(time.Hour)))
		if !exit.After(eventTime) {
			out = append(out, id)
		}
	}
	return out, nil
}

// disabilityWeight adds this state's weight for living occupants into the
// population aggregate.
func (s *DiseaseState) disabilityWeight(idx population.Index, vals []float64) ([]float64, error) {
	weights, err := s.disability(idx)
	if err != nil {
		return nil, err
	}
	if len(weights) != len(idx) {
		return nil, fmt.Errorf("disease: %s disability weight returned %d values for %d ids", s.ID(), len(weights), len(idx))
	}
	states, err := s.aliveView.Strings(s.Column())
	if err != nil {
		return nil, err
	}
	alive, err := s.aliveView.Strings(sim.ColumnAlive)
	if err != nil {
		return nil, err
	}
	for i, id := range idx {
		if states[id] == s.ID() && alive[id] == sim.StatusAlive {
			vals[i] += weights[i]
		}
	}
	return vals, nil
}

func (s *DiseaseState) cleanupEffect(idx population.Index, eventTime time.Time) error {
	occupants, err := s.aliveView.FilterString(s.Column(), idx, s.ID())
	if err != nil {
		return err
	}
	return s.cleanup(occupants, eventTime)
}
