// Package monitor implements the self-model monitoring engine: anomaly
// detection over metric history, identity drift scoring, bias recurrence
// tracking, prediction validation, and the strategy ledger.
package monitor

import "math"

// Mean returns the arithmetic mean of vals, or 0 for an empty slice.
func Mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// SampleStdDev returns the sample standard deviation (n-1 denominator) of
// vals, or 0 when fewer than two values are given.
func SampleStdDev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	mean := Mean(vals)
	sum := 0.0
	for _, v := range vals {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vals)-1))
}

// Clamp01 clamps v into [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// isFinite reports whether v is an ordinary number.
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
