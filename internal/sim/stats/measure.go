package stats

import (
	"buildingheight.ai/internal/sim/floors"
	"buildingheight.ai/internal/sim/geometry"
	"buildingheight.ai/internal/sim/units"
)

// measurements accumulates the per-field results of one derivation. A zero ok flag means the
// field is still unresolved and may be retried from the prefab.
type measurements struct {
	heightFeet float64
	floors     int
	okHeight   bool

	widthCells  int
	depthCells  int
	cells       int
	acres       float64
	okFootprint bool

	elevationFeet float64
	okElevation   bool
}

// setHeight fills height and floors from the vertical extent. A non-positive extent is no data.
func (m *measurements) setHeight(b geometry.Bounds3) bool {
	hm := b.Height()
	if hm <= 0 {
		return false
	}
	m.heightFeet = units.Feet(hm)
	m.floors = floors.Estimate(m.heightFeet)
	m.okHeight = true
	return true
}

// setFootprint fills the zoning footprint. A non-positive area is no data, not an error.
func (m *measurements) setFootprint(b geometry.Bounds3) bool {
	w, d := b.Width(), b.Depth()
	area := w * d
	if area <= 0 {
		return false
	}
	m.widthCells = units.Cells(w)
	m.depthCells = units.Cells(d)
	m.cells = m.widthCells * m.depthCells
	m.acres = units.Acres(area)
	m.okFootprint = true
	return true
}

// elevationFeet converts a world-space base height to feet above sea level plus the user offset.
func elevationFeet(worldBaseMeters, seaLevelMeters, offsetMeters float64) float64 {
	return units.Feet((worldBaseMeters - seaLevelMeters) + offsetMeters)
}

func (m measurements) stats() BuildingStats {
	s := BuildingStats{HasData: true}
	if m.okHeight {
		s.HeightFeet = m.heightFeet
		s.Floors = m.floors
	}
	if m.okFootprint {
		s.FootprintWidthCells = m.widthCells
		s.FootprintDepthCells = m.depthCells
		s.FootprintCells = m.cells
		s.FootprintAcres = m.acres
	}
	if m.okElevation {
		s.BaseElevationFeet = m.elevationFeet
	}
	return s
}
