// Package randomness provides deterministic decision streams. Every draw is
// a pure function of the master seed, the stream name, the current step index
// and the simulant id, so results do not depend on call order or on how many
// other components consumed randomness first.
package randomness

import (
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"nosos/internal/population"
)

var ErrStreamExists = errors.New("randomness: stream already registered")

// Source owns the master seed and hands out named decision streams. The step
// function supplies the current step index, normally wired to the simulation
// clock.
type Source struct {
	seed int64
	step func() int

	mu      sync.Mutex
	streams map[string]*Stream
}

// NewSource creates a source for the given master seed. A nil step function
// pins every draw to step zero.
func NewSource(seed int64, step func() int) *Source {
	if step == nil {
		step = func() int { return 0 }
	}
	return &Source{
		seed:    seed,
		step:    step,
		streams: make(map[string]*Stream),
	}
}

// Stream registers a named decision stream. Each decision point owns exactly
// one stream; registering the same name twice is a wiring error.
func (s *Source) Stream(name string) (*Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streams[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrStreamExists, name)
	}
	st := &Stream{name: name, seed: s.seed, step: s.step}
	s.streams[name] = st
	return st, nil
}

// StreamNames returns the registered stream names in sorted order.
func (s *Source) StreamNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.streams))
	for name := range s.streams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stream is a named source of per-simulant uniform draws.
type Stream struct {
	name string
	seed int64
	step func() int
}

// Name returns the stream name.
func (st *Stream) Name() string { return st.name }

func (st *Stream) draw(id int) float64 {
	key := fmt.Sprintf("%d|%s|%d|%d", st.seed, st.name, st.step(), id)
	digest := sha1.Sum([]byte(key))
	bits := binary.BigEndian.Uint64(digest[:8]) >> 11
	return float64(bits) / (1 << 53)
}

// Draws returns one uniform [0,1) draw per id in idx.
func (st *Stream) Draws(idx population.Index) []float64 {
	out := make([]float64, len(idx))
	for i, id := range idx {
		out[i] = st.draw(id)
	}
	return out
}

// FilterForProbability keeps the ids whose draw falls below the matching
// probability. Probabilities are positional, parallel to idx.
func (st *Stream) FilterForProbability(idx population.Index, probs []float64) (population.Index, error) {
	if len(probs) != len(idx) {
		return nil, fmt.Errorf("randomness: %d probabilities for %d ids on stream %q", len(probs), len(idx), st.name)
	}
	out := make(population.Index, 0, len(idx))
	for i, id := range idx {
		if st.draw(id) < probs[i] {
			out = append(out, id)
		}
	}
	return out, nil
}

// Choice picks one choice per id. weights[i] holds the relative weight of
// each choice for idx[i] and is normalized before use; a row that sums to
// zero or less is an error. A nil weights slice means uniform choice.
func (st *Stream) Choice(idx population.Index, choices []string, weights [][]float64) ([]string, error) {
	if len(choices) == 0 {
		return nil, fmt.Errorf("randomness: no choices on stream %q", st.name)
	}
	if weights != nil && len(weights) != len(idx) {
		return nil, fmt.Errorf("randomness: %d weight rows for %d ids on stream %q", len(weights), len(idx), st.name)
	}

	out := make([]string, len(idx))
	for i, id := range idx {
		draw := st.draw(id)
		if weights == nil {
			pick := int(draw * float64(len(choices)))
			if pick >= len(choices) {
				pick = len(choices) - 1
			}
			out[i] = choices[pick]
			continue
		}

		row := weights[i]
		if len(row) != len(choices) {
			return nil, fmt.Errorf("randomness: weight row for id %d has %d entries for %d choices", id, len(row), len(choices))
		}
		total := 0.0
		for _, w := range row {
			total += w
		}
		if total <= 0 {
			return nil, fmt.Errorf("randomness: non-positive weight total for id %d on stream %q", id, st.name)
		}

		cumulative := 0.0
		out[i] = choices[len(choices)-1]
		for j, w := range row {
			cumulative += w / total
			if draw < cumulative {
				out[i] = choices[j]
				break
			}
		}
	}
	return out, nil
}
