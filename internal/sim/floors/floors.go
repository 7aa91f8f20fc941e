// Package floors maps a building height to an estimated number of floors.
//
// The bands are a coarse heuristic, not architectural data. Rounding is half-to-even.
package floors

import "math"

const (
	// Mid-rise band.
	midRiseMinFeet   = 40.0
	roofCapFeet      = 20.0
	roofCapFraction  = 0.10
	avgFloorFeet     = 12.5
	midRiseMinFloors = 3

	// High-rise band.
	highRiseMinFeet   = 200.0
	podiumFeet        = 25.0
	upperFloorFeet    = 13.5
	highRiseMinFloors = 5
)

// Estimate returns the estimated floor count for a height in feet. Non-positive and NaN heights
// yield 0.
func Estimate(heightFeet float64) int {
	if !(heightFeet > 0) {
		return 0
	}

	switch {
	case heightFeet < 8:
		return 1
	case heightFeet <= 14:
		return 1
	case heightFeet <= 26:
		return 2
	case heightFeet < midRiseMinFeet:
		return 3
	case heightFeet < highRiseMinFeet:
		return midRise(heightFeet)
	default:
		return highRise(heightFeet)
	}
}

func midRise(h float64) int {
	roof := math.Min(roofCapFeet, h*roofCapFraction)
	core := math.Max(0, h-roof)
	n := int(math.RoundToEven(core / avgFloorFeet))
	if n < midRiseMinFloors {
		return midRiseMinFloors
	}
	return n
}

func highRise(h float64) int {
	rest := h - podiumFeet
	if rest <= 0 {
		return 2
	}
	// One podium floor plus the regular upper floors.
	n := 1 + int(math.RoundToEven(rest/upperFloorFeet))
	if n < highRiseMinFloors {
		return highRiseMinFloors
	}
	return n
}
