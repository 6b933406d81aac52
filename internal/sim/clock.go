// Package sim runs the simulation core: a fixed-step clock, a phased event
// loop over the population, and the builder components use to wire themselves
// into population columns, value pipelines and randomness streams.
package sim

import "time"

// Clock tracks simulation time. Steps span a fixed number of days; fractional
// days are allowed.
type Clock struct {
	time     time.Time
	stepDays float64
	index    int
}

// NewClock creates a clock at start with the given step length.
func NewClock(start time.Time, stepDays float64) *Clock {
	return &Clock{time: start, stepDays: stepDays}
}

// Time returns the current simulation time.
func (c *Clock) Time() time.Time { return c.time }

// EventTime returns the time the current step resolves to, one step past
// Time.
func (c *Clock) EventTime() time.Time { return c.time.Add(c.StepSize()) }

// StepDays returns the step length in days.
func (c *Clock) StepDays() float64 { return c.stepDays }

// StepSize returns the step length as a duration.
func (c *Clock) StepSize() time.Duration {
	return time.Duration(c.stepDays * 24 * float64(time.Hour))
}

// StepIndex returns the number of completed steps.
func (c *Clock) StepIndex() int { return c.index }

// Year returns the current time as a fractional year.
func (c *Clock) Year() float64 {
	t := c.time
	start := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())
	end := time.Date(t.Year()+1, 1, 1, 0, 0, 0, 0, t.Location())
	frac := float64(t.Sub(start)) / float64(end.Sub(start))
	return float64(t.Year()) + frac
}

func (c *Clock) advance() {
	c.time = c.time.Add(c.StepSize())
	c.index++
}
