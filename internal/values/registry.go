package values

import (
	"fmt"
	"sort"
	"sync"

	"nosos/internal/population"
)

// MetricsModifier adds or rewrites entries of the shared metrics map.
type MetricsModifier func(idx population.Index, metrics map[string]float64) error

// Registry owns every named value of one simulation. Pipelines, rate tables
// and joint values are created lazily on first reference, so a modifier may
// register before the producer exists.
type Registry struct {
	clock Clock

	mu               sync.RWMutex
	pipelines        map[string]*Pipeline
	rateTables       map[string]*RateTable
	joints           map[string]*JointValue
	metricsModifiers []MetricsModifier
}

// NewRegistry creates an empty registry bound to the given clock.
func NewRegistry(clock Clock) *Registry {
	return &Registry{
		clock:      clock,
		pipelines:  make(map[string]*Pipeline),
		rateTables: make(map[string]*RateTable),
		joints:     make(map[string]*JointValue),
	}
}

// Pipeline returns the named pipeline, creating it without a source when it
// does not exist yet.
func (r *Registry) Pipeline(name string) *Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipeline(name)
}

func (r *Registry) pipeline(name string) *Pipeline {
	p, ok := r.pipelines[name]
	if !ok {
		p = &Pipeline{name: name, clock: r.clock}
		r.pipelines[name] = p
	}
	return p
}

// RegisterProducer sets the source of the named plain pipeline.
func (r *Registry) RegisterProducer(name string, src Source) (*Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.pipeline(name)
	if p.source != nil {
		return nil, fmt.Errorf("%w: %q", ErrProducerExists, name)
	}
	p.source = src
	return p, nil
}

// RegisterRateProducer sets the source of the named rate pipeline. The source
// yields annual rates; Call converts them to per-step probabilities.
func (r *Registry) RegisterRateProducer(name string, src Source) (*Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.pipeline(name)
	if p.source != nil {
		return nil, fmt.Errorf("%w: %q", ErrProducerExists, name)
	}
	p.source = src
	p.rate = true
	return p, nil
}

// RegisterModifier appends a modifier to the named pipeline, creating the
// pipeline when the producer has not registered yet.
func (r *Registry) RegisterModifier(name string, mod Modifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.pipeline(name)
	p.modifiers = append(p.modifiers, mod)
}

// RateTable returns the named rate table, creating it without a source when
// it does not exist yet.
func (r *Registry) RateTable(name string) *RateTable {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rateTable(name)
}

func (r *Registry) rateTable(name string) *RateTable {
	rt, ok := r.rateTables[name]
	if !ok {
		rt = &RateTable{name: name}
		r.rateTables[name] = rt
	}
	return rt
}

// RegisterFrameProducer sets the source of the named rate table.
func (r *Registry) RegisterFrameProducer(name string, src FrameProducer) (*RateTable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt := r.rateTable(name)
	if rt.source != nil {
		return nil, fmt.Errorf("%w: %q", ErrProducerExists, name)
	}
	rt.source = src
	return rt, nil
}

// RegisterFrameModifier appends a modifier to the named rate table.
func (r *Registry) RegisterFrameModifier(name string, mod FrameModifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt := r.rateTable(name)
	rt.modifiers = append(rt.modifiers, mod)
}

// JointValue returns the named joint value, creating it when it does not
// exist yet.
func (r *Registry) JointValue(name string) *JointValue {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.joints[name]
	if !ok {
		j = &JointValue{name: name}
		r.joints[name] = j
	}
	return j
}

// RegisterMetricsModifier appends a contributor to the metrics map.
func (r *Registry) RegisterMetricsModifier(mod MetricsModifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metricsModifiers = append(r.metricsModifiers, mod)
}

// Metrics assembles the metrics map for idx. The base value is an empty map;
// every registered modifier adds its share in registration order.
func (r *Registry) Metrics(idx population.Index) (map[string]float64, error) {
	r.mu.RLock()
	mods := make([]MetricsModifier, len(r.metricsModifiers))
	copy(mods, r.metricsModifiers)
	r.mu.RUnlock()

	metrics := make(map[string]float64)
	for _, mod := range mods {
		if err := mod(idx, metrics); err != nil {
			return nil, fmt.Errorf("values: metrics modifier: %w", err)
		}
	}
	return metrics, nil
}

// PipelineNames returns the names of all pipelines in sorted order.
func (r *Registry) PipelineNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.pipelines))
	for name := range r.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
