package disease

import (
	"fmt"

	"nosos/internal/lookup"
	"nosos/internal/population"
	"nosos/internal/sim"
	"nosos/internal/values"
)

// ExcessMortalityState is a DiseaseState that additionally layers a
// state-specific death hazard onto the shared mortality aggregate.
type ExcessMortalityState struct {
	*DiseaseState
	interpolate bool
	keyColumns  []string
	rows        []lookup.Row
	mortality   *values.Pipeline
}

// NewExcessMortalityState creates an excess mortality state for cause. The
// hazard comes from an excess_mortality source override, the model's
// resolver, or rate rows installed with SetRateRows.
func NewExcessMortalityState(cause string, sources DataSources) *ExcessMortalityState {
	return &ExcessMortalityState{DiseaseState: NewDiseaseState(cause, sources), interpolate: true}
}

// SetInterpolate selects linear interpolation (order 1) or stepwise lookup
// (order 0) for row-backed hazards. Linear is the default.
func (s *ExcessMortalityState) SetInterpolate(on bool) { s.interpolate = on }

// SetRateRows installs a year-keyed hazard table, built at setup against the
// population's key columns. It takes precedence over source overrides.
func (s *ExcessMortalityState) SetRateRows(keyColumns []string, rows []lookup.Row) {
	s.keyColumns = keyColumns
	s.rows = rows
}

// Setup resolves the hazard, registers it as the <id>.excess_mortality rate
// pipeline and hooks the state's contribution into the mortality aggregate.
func (s *ExcessMortalityState) Setup(b *sim.Builder) error {
	if err := s.DiseaseState.Setup(b); err != nil {
		return err
	}
	src, err := s.excessMortalitySource(b)
	if err != nil {
		return err
	}
	pipeline, err := b.Values().RegisterRateProducer(s.ID()+"."+MeasureExcessMortality, src)
	if err != nil {
		return err
	}
	s.mortality = pipeline
	b.Values().RegisterFrameModifier(MortalityRateTable, s.mortalityRates)
	return nil
}

func (s *ExcessMortalityState) excessMortalitySource(b *sim.Builder) (values.Source, error) {
	if len(s.rows) == 0 {
		return s.resolveSource(MeasureExcessMortality)
	}
	order := 1
	if !s.interpolate {
		order = 0
	}
	table, err := lookup.NewTable(lookup.TableConfig{
		KeyColumns: s.keyColumns,
		Order:      order,
		Rows:       s.rows,
	}, b.Population(s.keyColumns...), b.Clock().Year)
	if err != nil {
		return nil, fmt.Errorf("disease: %s excess mortality table: %w", s.ID(), err)
	}
	return table.Call, nil
}

// mortalityRates merges this state's annual hazard, masked to current
// occupants, into the aggregate under the state id.
func (s *ExcessMortalityState) mortalityRates(idx population.Index, frame *values.Frame) (*values.Frame, error) {
	rates, err := s.mortality.Annual(idx)
	if err != nil {
		return nil, err
	}
	states, err := s.aliveView.Strings(s.Column())
	if err != nil {
		return nil, err
	}
	for i, id := range idx {
		if states[id] != s.ID() {
			rates[i] = 0
		}
	}
	if err := frame.AddColumn(s.ID(), rates); err != nil {
		return nil, err
	}
	return frame, nil
}
