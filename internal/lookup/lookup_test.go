package lookup

import (
	"errors"
	"math"
	"testing"

	"nosos/internal/population"
)

func yearAt(y float64) func() float64 {
	return func() float64 { return y }
}

func TestKeylessTableInterpolation(t *testing.T) {
	cfg := TableConfig{
		Order: 1,
		Rows: []Row{
			{Year: 1990, Value: 0.1},
			{Year: 2000, Value: 0.2},
		},
	}

	cases := []struct {
		year float64
		want float64
	}{
		{1980, 0.1},
		{1990, 0.1},
		{1995, 0.15},
		{2000, 0.2},
		{2010, 0.2},
	}
	for _, tc := range cases {
		table, err := NewTable(cfg, nil, yearAt(tc.year))
		if err != nil {
			t.Fatalf("new table: %v", err)
		}
		values, err := table.Call(population.FullIndex(3))
		if err != nil {
			t.Fatalf("call at %v: %v", tc.year, err)
		}
		if math.Abs(values[0]-tc.want) > 1e-12 || values[2] != values[0] {
			t.Fatalf("year %v: got %v, want %v", tc.year, values, tc.want)
		}
	}
}

func TestStepwiseHoldsUntilNextBreakpoint(t *testing.T) {
	cfg := TableConfig{
		Order: 0,
		Rows: []Row{
			{Year: 1990, Value: 0.1},
			{Year: 2000, Value: 0.2},
		},
	}
	table, err := NewTable(cfg, nil, yearAt(1999.9))
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	values, err := table.Call(population.FullIndex(1))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if values[0] != 0.1 {
		t.Fatalf("stepwise value: got %v, want 0.1", values[0])
	}
}

func TestKeyedTableResolvesPerSimulant(t *testing.T) {
	table := population.NewTable(4)
	view := table.View("region")
	if err := view.AddStringColumn("region", "north"); err != nil {
		t.Fatalf("add column: %v", err)
	}
	if err := view.SetStrings("region", population.Index{1, 3}, "south"); err != nil {
		t.Fatalf("set column: %v", err)
	}

	cfg := TableConfig{
		KeyColumns: []string{"region"},
		Order:      0,
		Rows: []Row{
			{Keys: []string{"north"}, Year: 1990, Value: 0.05},
			{Keys: []string{"south"}, Year: 1990, Value: 0.5},
		},
	}
	lt, err := NewTable(cfg, view, yearAt(1995))
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	values, err := lt.Call(table.FullIndex())
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	want := []float64{0.05, 0.5, 0.05, 0.5}
	for i, v := range values {
		if v != want[i] {
			t.Fatalf("value %d: got %v, want %v", i, v, want[i])
		}
	}
}

func TestMissingKeyIsAnError(t *testing.T) {
	table := population.NewTable(1)
	view := table.View("region")
	if err := view.AddStringColumn("region", "uncovered"); err != nil {
		t.Fatalf("add column: %v", err)
	}
	lt, err := NewTable(TableConfig{
		KeyColumns: []string{"region"},
		Rows:       []Row{{Keys: []string{"north"}, Year: 1990, Value: 1}},
	}, view, yearAt(1990))
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	if _, err := lt.Call(table.FullIndex()); err == nil {
		t.Fatal("expected error for uncovered key")
	}
}

func TestNewTableValidation(t *testing.T) {
	if _, err := NewTable(TableConfig{Order: 2, Rows: []Row{{Year: 1990, Value: 1}}}, nil, yearAt(1990)); err == nil {
		t.Fatal("expected error for unsupported order")
	}
	if _, err := NewTable(TableConfig{}, nil, yearAt(1990)); err == nil {
		t.Fatal("expected error for empty rows")
	}
	if _, err := NewTable(TableConfig{Rows: []Row{{Year: 1990, Value: 1}}}, nil, nil); err == nil {
		t.Fatal("expected error for missing year function")
	}
	if _, err := NewTable(TableConfig{
		KeyColumns: []string{"region"},
		Rows:       []Row{{Keys: []string{"north"}, Year: 1990, Value: 1}},
	}, nil, yearAt(1990)); err == nil {
		t.Fatal("expected error for key columns without a view")
	}
	_, err := NewTable(TableConfig{
		Rows: []Row{
			{Year: 1990, Value: 1},
			{Year: 1990, Value: 2},
		},
	}, nil, yearAt(1990))
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestConstant(t *testing.T) {
	src := Constant(0.7)
	values, err := src(population.FullIndex(5))
	if err != nil {
		t.Fatalf("constant: %v", err)
	}
	for _, v := range values {
		if v != 0.7 {
			t.Fatalf("unexpected value: %v", v)
		}
	}
}
