package values

import "math"

// DaysPerYear is the year length used when scaling annual rates to a step.
const DaysPerYear = 365.0

// RateToProbability converts an annual rate to the probability of at least
// one event over a step of stepDays, assuming a constant hazard within the
// step. Negative rates are treated as zero.
func RateToProbability(rate, stepDays float64) float64 {
	if rate < 0 {
		rate = 0
	}
	return 1 - math.Exp(-rate*stepDays/DaysPerYear)
}

// RatesToProbabilities converts each annual rate to a per-step probability,
// returning a new slice.
func RatesToProbabilities(rates []float64, stepDays float64) []float64 {
	out := make([]float64, len(rates))
	for i, r := range rates {
		out[i] = RateToProbability(r, stepDays)
	}
	return out
}
