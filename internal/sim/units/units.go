package units

import "math"

const (
	MetersToFeet = 3.28084

	// acres = m² / SquareMetersPerAcre
	SquareMetersPerAcre = 4046.8564224
	AcresToHectares     = 0.40468564224

	// Edge length of one zoning cell.
	ZoningCellMeters = 8.0
)

func Feet(meters float64) float64 { return meters * MetersToFeet }

func Meters(feet float64) float64 { return feet / MetersToFeet }

func Acres(squareMeters float64) float64 { return squareMeters / SquareMetersPerAcre }

func Hectares(acres float64) float64 { return acres * AcresToHectares }

// Cells returns how many zoning cells a run of the given length spans, never less than one.
// Halves round to even.
func Cells(meters float64) int {
	n := int(math.RoundToEven(meters / ZoningCellMeters))
	if n < 1 {
		return 1
	}
	return n
}
