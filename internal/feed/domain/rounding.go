package domain

import "math"

// RoundToCents implements the spec's scaled-integer half-up rounding:
// round(x*100)/100. math.Round already rounds half away from zero, which
// coincides with half-up for the non-negative amounts this system deals
// in (quantities, prices, and their positive products).
func RoundToCents(x float64) float64 {
	return math.Round(x*100) / 100
}
