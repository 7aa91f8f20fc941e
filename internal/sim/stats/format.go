package stats

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"buildingheight.ai/internal/settings"
	"buildingheight.ai/internal/sim/units"
)

// Line labels. The overlay splits each line on its first colon, so these are wire format.
const (
	LabelHeight          = "Height"
	LabelFloors          = "Estimated Floors"
	LabelZoningFootprint = "Zoning Footprint"
	LabelFootprintSuffix = "Footprint"
	LabelElevation       = "Elevation"
)

// Format renders s as "Label: value" lines in the chosen unit system. Empty when there is no
// data or no entity.
func Format(s BuildingStats, unit settings.HeightUnit) string {
	if !s.HasData || s.Entity.IsNull() {
		return ""
	}

	var b strings.Builder

	fmt.Fprintf(&b, "%s: %s\n", LabelHeight, length(s.HeightFeet, unit))
	fmt.Fprintf(&b, "%s: %d\n", LabelFloors, s.Floors)

	if s.FootprintWidthCells > 0 && s.FootprintDepthCells > 0 {
		fmt.Fprintf(&b, "%s: %d x %d cells\n", LabelZoningFootprint, s.FootprintWidthCells, s.FootprintDepthCells)
	}

	if s.FootprintAcres > 0 {
		area, label := s.FootprintAcres, "acres"
		if unit == settings.Meters {
			area, label = units.Hectares(s.FootprintAcres), "hectares"
		}
		// Casers are stateful; one per call.
		title := cases.Title(language.English).String(label)
		fmt.Fprintf(&b, "%s %s: %.2f %s\n", title, LabelFootprintSuffix, area, label)
	}

	// Always shown; a failed derivation reads 0.
	fmt.Fprintf(&b, "%s: %s\n", LabelElevation, length(s.BaseElevationFeet, unit))

	return b.String()
}

func length(feet float64, unit settings.HeightUnit) string {
	if unit == settings.Meters {
		return fmt.Sprintf("%.1f m", units.Meters(feet))
	}
	return fmt.Sprintf("%.1f ft", feet)
}

// Formatter renders the current snapshot with the current unit setting.
type Formatter struct {
	state    *State
	settings SettingsSource
}

// NewFormatter renders st with the unit from src; defaults apply when src is nil.
func NewFormatter(st *State, src SettingsSource) *Formatter {
	if st == nil {
		st = NewState()
	}
	return &Formatter{state: st, settings: src}
}

// Rendered holds both binding values taken from one snapshot.
type Rendered struct {
	StatsText  string
	LayoutKind string
	Seq        uint64
}

// Current loads the snapshot once so both values always describe the same selection.
func (f *Formatter) Current() Rendered {
	snap := f.state.Current()
	return Rendered{
		StatsText:  Format(snap.Stats, settingsOf(f.settings).HeightUnit),
		LayoutKind: string(snap.Layout),
		Seq:        snap.Seq,
	}
}

func (f *Formatter) StatsText() string { return f.Current().StatsText }

func (f *Formatter) LayoutKind() string { return f.Current().LayoutKind }
