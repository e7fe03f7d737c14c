// Package util holds small price-arithmetic helpers shared across the
// backtester.
package util

import "math"

// RoundToTick snaps x to the nearest multiple of tick. A non-positive
// tick leaves x unchanged.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

// RoundToCents rounds a dollar amount to the nearest cent.
func RoundToCents(x float64) float64 {
	return RoundToTick(x, 0.01)
}
