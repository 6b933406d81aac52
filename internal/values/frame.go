package values

import (
	"errors"
	"fmt"

	"nosos/internal/population"
)

var ErrFrameColumn = errors.New("values: frame column already exists")

// Frame holds named parallel columns of annual rates, one row per id of the
// index it was produced for. Column order is insertion order.
type Frame struct {
	names []string
	cols  map[string][]float64
}

// NewFrame creates an empty frame.
func NewFrame() *Frame {
	return &Frame{cols: make(map[string][]float64)}
}

// AddColumn appends a named column. Contributing the same name twice is a
// wiring error.
func (f *Frame) AddColumn(name string, values []float64) error {
	if _, ok := f.cols[name]; ok {
		return fmt.Errorf("%w: %q", ErrFrameColumn, name)
	}
	f.names = append(f.names, name)
	f.cols[name] = values
	return nil
}

// Column returns the named column.
func (f *Frame) Column(name string) ([]float64, bool) {
	col, ok := f.cols[name]
	return col, ok
}

// SetColumn replaces an existing column, keeping its position.
func (f *Frame) SetColumn(name string, values []float64) error {
	if _, ok := f.cols[name]; !ok {
		return fmt.Errorf("values: frame has no column %q", name)
	}
	f.cols[name] = values
	return nil
}

// Names returns the column names in insertion order.
func (f *Frame) Names() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// SumRows returns the per-row sum across all columns.
func (f *Frame) SumRows() ([]float64, error) {
	if len(f.names) == 0 {
		return nil, errors.New("values: cannot sum an empty frame")
	}
	n := len(f.cols[f.names[0]])
	out := make([]float64, n)
	for _, name := range f.names {
		col := f.cols[name]
		if len(col) != n {
			return nil, fmt.Errorf("values: frame column %q has %d rows, want %d", name, len(col), n)
		}
		for i, v := range col {
			out[i] += v
		}
	}
	return out, nil
}

// FrameProducer produces the base frame for idx.
type FrameProducer func(idx population.Index) (*Frame, error)

// FrameModifier extends or rewrites the frame produced so far.
type FrameModifier func(idx population.Index, frame *Frame) (*Frame, error)

// RateTable is a named frame-valued pipeline. It stays in annual-rate space;
// consumers sum the columns they care about and convert once.
type RateTable struct {
	name      string
	source    FrameProducer
	modifiers []FrameModifier
}

// Name returns the rate table name.
func (rt *RateTable) Name() string { return rt.name }

// Annual assembles the frame for idx: producer first, then modifiers in
// registration order.
func (rt *RateTable) Annual(idx population.Index) (*Frame, error) {
	if rt.source == nil {
		return nil, fmt.Errorf("%w: %q", ErrMissingSource, rt.name)
	}
	frame, err := rt.source(idx)
	if err != nil {
		return nil, fmt.Errorf("values: source of %q: %w", rt.name, err)
	}
	for _, mod := range rt.modifiers {
		frame, err = mod(idx, frame)
		if err != nil {
			return nil, fmt.Errorf("values: modifier of %q: %w", rt.name, err)
		}
	}
	return frame, nil
}

// JointValue accumulates independent contributions and combines them as
// 1 - prod(1 - v). With no contributions it is zero everywhere.
type JointValue struct {
	name          string
	contributions []Source
}

// Name returns the joint value name.
func (j *JointValue) Name() string { return j.name }

// AddContribution registers one more independent contribution.
func (j *JointValue) AddContribution(src Source) {
	j.contributions = append(j.contributions, src)
}

// Call combines all contributions for idx.
func (j *JointValue) Call(idx population.Index) ([]float64, error) {
	out := make([]float64, len(idx))
	if len(j.contributions) == 0 {
		return out, nil
	}
	product := make([]float64, len(idx))
	for i := range product {
		product[i] = 1
	}
	for _, src := range j.contributions {
		values, err := src(idx)
		if err != nil {
			return nil, fmt.Errorf("values: contribution to %q: %w", j.name, err)
		}
		if len(values) != len(idx) {
			return nil, fmt.Errorf("values: contribution to %q returned %d values for %d ids", j.name, len(values), len(idx))
		}
		for i, v := range values {
			product[i] *= 1 - v
		}
	}
	for i := range out {
		out[i] = 1 - product[i]
	}
	return out, nil
}
