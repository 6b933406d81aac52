// Package disease builds disease progression models on top of the state
// machine: cause-backed states, data-driven transitions, and the model
// component that drives one disease's population column through the engine.
package disease

import (
	"fmt"

	"nosos/internal/population"
	"nosos/internal/values"
)

// Measure names used to resolve cause data.
const (
	MeasureIncidenceRate    = "incidence_rate"
	MeasureRemissionRate    = "remission_rate"
	MeasureProportion       = "proportion"
	MeasurePrevalence       = "prevalence"
	MeasureDisabilityWeight = "disability_weight"
	MeasureDwellTime        = "dwell_time"
	MeasureExcessMortality  = "excess_mortality"
)

// Shared aggregate names. Disease states contribute into these; the
// observers own the producers and consume the combined result.
const (
	DisabilityWeightPipeline = "disability_weight"
	MortalityRateTable       = "mortality_rate"
	OtherCausesColumn        = "death_due_to_other_causes"
)

// TransitionKind selects how a transition's data drives its probability.
// The empty kind builds an ungated transition that always fires.
type TransitionKind string

const (
	// TransitionRate converts an annual hazard into a per-step probability.
	TransitionRate TransitionKind = "rate"
	// TransitionProportion uses its data directly as a probability.
	TransitionProportion TransitionKind = "proportion"
)

// DataSources overrides measure data for a single state or transition,
// keyed by measure name.
type DataSources map[string]values.Source

// Resolver supplies measure data for causes that carry no explicit
// overrides.
type Resolver interface {
	Resolve(cause, measure string) (values.Source, error)
}

// StaticResolver resolves measures from a fixed map keyed by cause, then by
// measure.
type StaticResolver map[string]map[string]values.Source

// Resolve implements Resolver.
func (r StaticResolver) Resolve(cause, measure string) (values.Source, error) {
	if measures, ok := r[cause]; ok {
		if src, ok := measures[measure]; ok {
			return src, nil
		}
	}
	return nil, fmt.Errorf("disease: no %s data for cause %q", measure, cause)
}

// CauseBearer is implemented by states backed by a cause identifier.
type CauseBearer interface {
	Cause() string
}

// resolverUser lets the model hand states its resolver before setup.
type resolverUser interface {
	useResolver(Resolver)
}

func zeroSource(idx population.Index) ([]float64, error) {
	return make([]float64, len(idx)), nil
}
