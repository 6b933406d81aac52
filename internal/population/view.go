package population

import (
	"fmt"
	"time"
)

// View restricts column access to a declared set. Views are cheap and are
// usually created at setup time, before the columns exist; names are checked
// on use, not on creation.
type View struct {
	table *Table
	names map[string]struct{}
}

// View creates a view over the named columns.
func (t *Table) View(names ...string) *View {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return &View{table: t, names: set}
}

func (v *View) check(name string) error {
	if _, ok := v.names[name]; !ok {
		return fmt.Errorf("%w: %q", ErrColumnNotViewed, name)
	}
	if !v.table.has(name) {
		return fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return nil
}

func (v *View) checkDeclared(name string) error {
	if _, ok := v.names[name]; !ok {
		return fmt.Errorf("%w: %q", ErrColumnNotViewed, name)
	}
	return nil
}

// AddStringColumn creates a string column through the view. The name must be
// part of the view's declared set.
func (v *View) AddStringColumn(name, fill string) error {
	if err := v.checkDeclared(name); err != nil {
		return err
	}
	return v.table.AddStringColumn(name, fill)
}

// AddFloatColumn creates a float column through the view.
func (v *View) AddFloatColumn(name string, fill float64) error {
	if err := v.checkDeclared(name); err != nil {
		return err
	}
	return v.table.AddFloatColumn(name, fill)
}

// AddIntColumn creates an int column through the view.
func (v *View) AddIntColumn(name string, fill int) error {
	if err := v.checkDeclared(name); err != nil {
		return err
	}
	return v.table.AddIntColumn(name, fill)
}

// AddTimeColumn creates a time column through the view.
func (v *View) AddTimeColumn(name string, fill time.Time) error {
	if err := v.checkDeclared(name); err != nil {
		return err
	}
	return v.table.AddTimeColumn(name, fill)
}

// Strings returns the live backing slice of a string column, indexed by
// simulant id.
func (v *View) Strings(name string) ([]string, error) {
	if err := v.check(name); err != nil {
		return nil, err
	}
	col, ok := v.table.strings[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a string column", ErrColumnType, name)
	}
	return col, nil
}

// Floats returns the live backing slice of a float column.
func (v *View) Floats(name string) ([]float64, error) {
	if err := v.check(name); err != nil {
		return nil, err
	}
	col, ok := v.table.floats[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a float column", ErrColumnType, name)
	}
	return col, nil
}

// Ints returns the live backing slice of an int column.
func (v *View) Ints(name string) ([]int, error) {
	if err := v.check(name); err != nil {
		return nil, err
	}
	col, ok := v.table.ints[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an int column", ErrColumnType, name)
	}
	return col, nil
}

// Times returns the live backing slice of a time column.
func (v *View) Times(name string) ([]time.Time, error) {
	if err := v.check(name); err != nil {
		return nil, err
	}
	col, ok := v.table.times[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a time column", ErrColumnType, name)
	}
	return col, nil
}

// SetStrings assigns value to the rows named by idx.
func (v *View) SetStrings(name string, idx Index, value string) error {
	col, err := v.Strings(name)
	if err != nil {
		return err
	}
	for _, id := range idx {
		col[id] = value
	}
	return nil
}

// SetTimes assigns value to the rows named by idx.
func (v *View) SetTimes(name string, idx Index, value time.Time) error {
	col, err := v.Times(name)
	if err != nil {
		return err
	}
	for _, id := range idx {
		col[id] = value
	}
	return nil
}

// AddInts adds delta to the rows named by idx.
func (v *View) AddInts(name string, idx Index, delta int) error {
	col, err := v.Ints(name)
	if err != nil {
		return err
	}
	for _, id := range idx {
		col[id] += delta
	}
	return nil
}

// AddFloats adds delta to the rows named by idx.
func (v *View) AddFloats(name string, idx Index, delta float64) error {
	col, err := v.Floats(name)
	if err != nil {
		return err
	}
	for _, id := range idx {
		col[id] += delta
	}
	return nil
}

// FilterString returns the ids in idx whose row equals value, in idx order.
func (v *View) FilterString(name string, idx Index, value string) (Index, error) {
	col, err := v.Strings(name)
	if err != nil {
		return nil, err
	}
	out := make(Index, 0, len(idx))
	for _, id := range idx {
		if col[id] == value {
			out = append(out, id)
		}
	}
	return out, nil
}

// IndexWhereString returns the ids of every simulant whose row equals value.
func (v *View) IndexWhereString(name, value string) (Index, error) {
	return v.FilterString(name, v.table.FullIndex(), value)
}
