package randomness

import (
	"errors"
	"testing"

	"nosos/internal/population"
)

func TestDrawsAreDeterministic(t *testing.T) {
	idx := population.FullIndex(100)

	first, err := NewSource(42, nil).Stream("incidence")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	second, err := NewSource(42, nil).Stream("incidence")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	a := first.Draws(idx)
	b := second.Draws(idx)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("draw %d differs under the same seed: %v vs %v", i, a[i], b[i])
		}
		if a[i] < 0 || a[i] >= 1 {
			t.Fatalf("draw %d out of range: %v", i, a[i])
		}
	}
}

func TestDrawsVaryBySeedStreamAndStep(t *testing.T) {
	idx := population.FullIndex(50)

	base, err := NewSource(42, nil).Stream("incidence")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	otherSeed, err := NewSource(43, nil).Stream("incidence")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	src := NewSource(42, nil)
	otherName, err := src.Stream("remission")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	step := 0
	stepped, err := NewSource(42, func() int { return step }).Stream("incidence")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	ref := base.Draws(idx)
	same := func(other []float64) bool {
		for i := range ref {
			if ref[i] != other[i] {
				return false
			}
		}
		return true
	}

	if same(otherSeed.Draws(idx)) {
		t.Fatal("expected different draws under a different seed")
	}
	if same(otherName.Draws(idx)) {
		t.Fatal("expected different draws on a different stream")
	}
	if !same(stepped.Draws(idx)) {
		t.Fatal("expected identical draws at step zero")
	}
	step = 1
	if same(stepped.Draws(idx)) {
		t.Fatal("expected different draws at a later step")
	}
}

func TestDrawsAreIndexStable(t *testing.T) {
	stream, err := NewSource(42, nil).Stream("incidence")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	forward := population.FullIndex(50)
	reversed := make(population.Index, len(forward))
	for i, id := range forward {
		reversed[len(forward)-1-i] = id
	}

	a := stream.Draws(forward)
	b := stream.Draws(reversed)
	for i, id := range forward {
		if a[i] != b[len(forward)-1-i] {
			t.Fatalf("draw for id %d depends on index order", id)
		}
	}
}

func TestDrawsAreRoughlyUniform(t *testing.T) {
	stream, err := NewSource(7, nil).Stream("uniformity")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	draws := stream.Draws(population.FullIndex(10000))
	sum := 0.0
	for _, d := range draws {
		sum += d
	}
	mean := sum / float64(len(draws))
	if mean < 0.45 || mean > 0.55 {
		t.Fatalf("mean draw %v too far from 0.5", mean)
	}
}

func TestStreamNamesAreUnique(t *testing.T) {
	src := NewSource(1, nil)
	if _, err := src.Stream("deaths"); err != nil {
		t.Fatalf("first stream: %v", err)
	}
	if _, err := src.Stream("deaths"); !errors.Is(err, ErrStreamExists) {
		t.Fatalf("expected ErrStreamExists, got %v", err)
	}
	names := src.StreamNames()
	if len(names) != 1 || names[0] != "deaths" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestFilterForProbabilityBounds(t *testing.T) {
	stream, err := NewSource(9, nil).Stream("filter")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	idx := population.FullIndex(200)

	never := make([]float64, len(idx))
	kept, err := stream.FilterForProbability(idx, never)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(kept) != 0 {
		t.Fatalf("probability zero kept %d ids", len(kept))
	}

	always := make([]float64, len(idx))
	for i := range always {
		always[i] = 1
	}
	kept, err = stream.FilterForProbability(idx, always)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(kept) != len(idx) {
		t.Fatalf("probability one kept %d of %d ids", len(kept), len(idx))
	}

	if _, err := stream.FilterForProbability(idx, always[:10]); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestChoiceFollowsWeights(t *testing.T) {
	stream, err := NewSource(11, nil).Stream("attribution")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	idx := population.FullIndex(100)
	choices := []string{"flu", "injury"}

	certain := make([][]float64, len(idx))
	for i := range certain {
		certain[i] = []float64{0, 3}
	}
	picked, err := stream.Choice(idx, choices, certain)
	if err != nil {
		t.Fatalf("choice: %v", err)
	}
	for i, c := range picked {
		if c != "injury" {
			t.Fatalf("id %d picked %q despite zero weight alternative", idx[i], c)
		}
	}

	split := make([][]float64, len(idx))
	for i := range split {
		split[i] = []float64{2, 2}
	}
	picked, err = stream.Choice(idx, choices, split)
	if err != nil {
		t.Fatalf("choice: %v", err)
	}
	seen := map[string]int{}
	for _, c := range picked {
		seen[c]++
	}
	if seen["flu"] == 0 || seen["injury"] == 0 {
		t.Fatalf("expected both choices under even weights, got %v", seen)
	}

	bad := make([][]float64, len(idx))
	for i := range bad {
		bad[i] = []float64{0, 0}
	}
	if _, err := stream.Choice(idx, choices, bad); err == nil {
		t.Fatal("expected error for non-positive weight row")
	}
}

func TestChoiceUniformWithoutWeights(t *testing.T) {
	stream, err := NewSource(13, nil).Stream("uniform-choice")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	picked, err := stream.Choice(population.FullIndex(60), []string{"a", "b", "c"}, nil)
	if err != nil {
		t.Fatalf("choice: %v", err)
	}
	seen := map[string]int{}
	for _, c := range picked {
		seen[c]++
	}
	if len(seen) != 3 {
		t.Fatalf("expected all three choices over 60 draws, got %v", seen)
	}
}
