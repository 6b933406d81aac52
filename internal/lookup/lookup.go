// Package lookup builds in-memory rate and value tables addressed by
// population key columns and a year parameter. Tables are created once at
// setup from explicit rows; a query for a key combination the table does not
// cover is an error, never a silent default.
package lookup

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"nosos/internal/population"
)

var ErrDuplicateKey = errors.New("lookup: duplicate key row")

// Row is one table entry: the key column values, the year the value applies
// to, and the value itself.
type Row struct {
	Keys  []string
	Year  float64
	Value float64
}

// TableConfig describes a lookup table. Order selects the interpolation over
// the year parameter: 0 holds each value until the next year breakpoint, 1
// interpolates linearly between breakpoints. Outside the covered span the
// nearest value is used.
type TableConfig struct {
	KeyColumns []string
	Order      int
	Rows       []Row
}

type point struct {
	year  float64
	value float64
}

type series []point

func (s series) at(year float64, order int) float64 {
	if year <= s[0].year {
		return s[0].value
	}
	if year >= s[len(s)-1].year {
		return s[len(s)-1].value
	}
	i := sort.Search(len(s), func(k int) bool { return s[k].year > year }) - 1
	if order == 0 {
		return s[i].value
	}
	a, b := s[i], s[i+1]
	frac := (year - a.year) / (b.year - a.year)
	return a.value + frac*(b.value-a.value)
}

// Table answers per-simulant value queries. Call satisfies the value system's
// source signature, so a table plugs directly into a pipeline.
type Table struct {
	keyColumns []string
	order      int
	view       *population.View
	year       func() float64
	groups     map[string]series
}

// NewTable validates cfg and builds the table. The view supplies the key
// columns at query time; year supplies the current fractional year, normally
// wired to the simulation clock.
func NewTable(cfg TableConfig, view *population.View, year func() float64) (*Table, error) {
	if cfg.Order != 0 && cfg.Order != 1 {
		return nil, fmt.Errorf("lookup: unsupported interpolation order %d", cfg.Order)
	}
	if len(cfg.Rows) == 0 {
		return nil, errors.New("lookup: table has no rows")
	}
	if len(cfg.KeyColumns) > 0 && view == nil {
		return nil, errors.New("lookup: key columns require a population view")
	}
	if year == nil {
		return nil, errors.New("lookup: year function is required")
	}

	groups := make(map[string]series)
	seen := make(map[string]map[float64]bool)
	for _, row := range cfg.Rows {
		if len(row.Keys) != len(cfg.KeyColumns) {
			return nil, fmt.Errorf("lookup: row has %d keys for %d key columns", len(row.Keys), len(cfg.KeyColumns))
		}
		key := strings.Join(row.Keys, "|")
		if seen[key] == nil {
			seen[key] = make(map[float64]bool)
		}
		if seen[key][row.Year] {
			return nil, fmt.Errorf("%w: %q at year %v", ErrDuplicateKey, key, row.Year)
		}
		seen[key][row.Year] = true
		groups[key] = append(groups[key], point{year: row.Year, value: row.Value})
	}
	for key := range groups {
		s := groups[key]
		sort.Slice(s, func(i, j int) bool { return s[i].year < s[j].year })
		groups[key] = s
	}

	return &Table{
		keyColumns: cfg.KeyColumns,
		order:      cfg.Order,
		view:       view,
		year:       year,
		groups:     groups,
	}, nil
}

// Call returns one value per id in idx, evaluated at the current year.
func (t *Table) Call(idx population.Index) ([]float64, error) {
	at := t.year()
	out := make([]float64, len(idx))

	if len(t.keyColumns) == 0 {
		v := t.groups[""].at(at, t.order)
		for i := range out {
			out[i] = v
		}
		return out, nil
	}

	cols := make([][]string, len(t.keyColumns))
	for j, name := range t.keyColumns {
		col, err := t.view.Strings(name)
		if err != nil {
			return nil, err
		}
		cols[j] = col
	}
	parts := make([]string, len(t.keyColumns))
	for i, id := range idx {
		for j := range cols {
			parts[j] = cols[j][id]
		}
		key := strings.Join(parts, "|")
		s, ok := t.groups[key]
		if !ok {
			return nil, fmt.Errorf("lookup: no rows for key %q", key)
		}
		out[i] = s.at(at, t.order)
	}
	return out, nil
}

// Constant returns a source yielding the same value for every id.
func Constant(v float64) func(population.Index) ([]float64, error) {
	return func(idx population.Index) ([]float64, error) {
		out := make([]float64, len(idx))
		for i := range out {
			out[i] = v
		}
		return out, nil
	}
}
