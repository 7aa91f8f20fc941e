package stats

import (
	"time"

	"buildingheight.ai/internal/host"
	"buildingheight.ai/internal/settings"
)

// BuildingStats is one derived snapshot for the selected entity. Height and elevation are kept
// in feet; footprint area in acres.
type BuildingStats struct {
	Entity host.Entity `json:"entity"`

	HeightFeet float64 `json:"height_feet"`
	Floors     int     `json:"floors"`

	FootprintCells      int     `json:"footprint_cells"`
	FootprintWidthCells int     `json:"footprint_width_cells"`
	FootprintDepthCells int     `json:"footprint_depth_cells"`
	FootprintAcres      float64 `json:"footprint_acres"`

	// Lowest point of the bounds relative to sea level (plus the user offset).
	BaseElevationFeet float64 `json:"base_elevation_feet"`

	HasData bool `json:"has_data"`
}

// LayoutKind tells the UI which info section hosts the stats panel.
type LayoutKind string

const (
	LayoutNone        LayoutKind = ""
	LayoutLevel       LayoutKind = "Level"       // zonable buildings
	LayoutDescription LayoutKind = "Description" // ploppables, services, signatures
)

// Snapshot is what gets published after each selection change.
type Snapshot struct {
	Stats     BuildingStats `json:"stats"`
	Layout    LayoutKind    `json:"layout"`
	Seq       uint64        `json:"seq"`
	DerivedAt time.Time     `json:"derived_at"`
}

// SettingsSource is satisfied by *settings.Store.
type SettingsSource interface {
	Settings() settings.Settings
}

func settingsOf(src SettingsSource) settings.Settings {
	if src == nil {
		return settings.Defaults()
	}
	return src.Settings()
}
