// Package population holds simulation state as typed columns addressed by
// simulant id. Components declare the columns they touch up front and go
// through restricted views, so ownership of every column stays explicit.
package population

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Index identifies a subset of simulants by id. Ids are positions in the
// backing columns, so one index is valid for every column of the same table.
type Index []int

// FullIndex returns the index covering ids 0 through n-1.
func FullIndex(n int) Index {
	idx := make(Index, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

var (
	ErrColumnExists    = errors.New("population: column already exists")
	ErrColumnNotFound  = errors.New("population: column not found")
	ErrColumnNotViewed = errors.New("population: column not in view")
	ErrColumnType      = errors.New("population: column has a different type")
)

// Table is a fixed-size columnar store. The population never grows or
// shrinks after creation; death is recorded in columns, not by removal.
// The zero time.Time marks "never" in time columns.
type Table struct {
	size    int
	strings map[string][]string
	floats  map[string][]float64
	ints    map[string][]int
	times   map[string][]time.Time
}

// NewTable creates an empty table for n simulants.
func NewTable(n int) *Table {
	return &Table{
		size:    n,
		strings: make(map[string][]string),
		floats:  make(map[string][]float64),
		ints:    make(map[string][]int),
		times:   make(map[string][]time.Time),
	}
}

// Size returns the number of simulants in the table.
func (t *Table) Size() int { return t.size }

// FullIndex returns the index of every simulant in the table.
func (t *Table) FullIndex() Index { return FullIndex(t.size) }

// HasColumn reports whether a column of any type exists under name.
func (t *Table) HasColumn(name string) bool { return t.has(name) }

func (t *Table) has(name string) bool {
	if _, ok := t.strings[name]; ok {
		return true
	}
	if _, ok := t.floats[name]; ok {
		return true
	}
	if _, ok := t.ints[name]; ok {
		return true
	}
	if _, ok := t.times[name]; ok {
		return true
	}
	return false
}

// Columns returns the names of all columns in sorted order.
func (t *Table) Columns() []string {
	names := make([]string, 0, len(t.strings)+len(t.floats)+len(t.ints)+len(t.times))
	for name := range t.strings {
		names = append(names, name)
	}
	for name := range t.floats {
		names = append(names, name)
	}
	for name := range t.ints {
		names = append(names, name)
	}
	for name := range t.times {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddStringColumn creates a string column with every row set to fill.
func (t *Table) AddStringColumn(name, fill string) error {
	if t.has(name) {
		return fmt.Errorf("%w: %q", ErrColumnExists, name)
	}
	col := make([]string, t.size)
	for i := range col {
		col[i] = fill
	}
	t.strings[name] = col
	return nil
}

// AddFloatColumn creates a float column with every row set to fill.
func (t *Table) AddFloatColumn(name string, fill float64) error {
	if t.has(name) {
		return fmt.Errorf("%w: %q", ErrColumnExists, name)
	}
	col := make([]float64, t.size)
	for i := range col {
		col[i] = fill
	}
	t.floats[name] = col
	return nil
}

// AddIntColumn creates an int column with every row set to fill.
func (t *Table) AddIntColumn(name string, fill int) error {
	if t.has(name) {
		return fmt.Errorf("%w: %q", ErrColumnExists, name)
	}
	col := make([]int, t.size)
	for i := range col {
		col[i] = fill
	}
	t.ints[name] = col
	return nil
}

// AddTimeColumn creates a time column with every row set to fill. Passing the
// zero time.Time fills the column with "never".
func (t *Table) AddTimeColumn(name string, fill time.Time) error {
	if t.has(name) {
		return fmt.Errorf("%w: %q", ErrColumnExists, name)
	}
	col := make([]time.Time, t.size)
	for i := range col {
		col[i] = fill
	}
	t.times[name] = col
	return nil
}
