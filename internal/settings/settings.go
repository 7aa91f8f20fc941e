package settings

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"buildingheight.ai/internal/sim/units"
)

const (
	MinSeaLevelOffsetMeters = -1000
	MaxSeaLevelOffsetMeters = 1000

	EnvHeightUnit           = "BHF_HEIGHT_UNIT"
	EnvSeaLevelOffsetMeters = "BHF_SEA_LEVEL_OFFSET_METERS"
)

type HeightUnit int

const (
	Feet HeightUnit = iota
	Meters
)

func (u HeightUnit) String() string {
	if u == Meters {
		return "Meters"
	}
	return "Feet"
}

type Settings struct {
	HeightUnit HeightUnit `yaml:"height_unit" json:"height_unit"`
	// Signed correction added to the elevation baseline, in whole meters.
	SeaLevelOffsetMeters int `yaml:"sea_level_offset_meters" json:"sea_level_offset_meters"`
}

func Defaults() Settings {
	return Settings{HeightUnit: Feet, SeaLevelOffsetMeters: 0}
}

// Reset restores the defaults in place.
func (s *Settings) Reset() { *s = Defaults() }

// Normalize clamps the offset into the slider range and folds unknown units to Feet.
func (s Settings) Normalize() Settings {
	if s.HeightUnit != Meters {
		s.HeightUnit = Feet
	}
	if s.SeaLevelOffsetMeters < MinSeaLevelOffsetMeters {
		s.SeaLevelOffsetMeters = MinSeaLevelOffsetMeters
	}
	if s.SeaLevelOffsetMeters > MaxSeaLevelOffsetMeters {
		s.SeaLevelOffsetMeters = MaxSeaLevelOffsetMeters
	}
	return s
}

// SeaLevelOffsetFeetDisplay is the read-only helper text shown next to the offset slider.
func (s Settings) SeaLevelOffsetFeetDisplay() string {
	return fmt.Sprintf("≈ %.1f ft", units.Feet(float64(s.SeaLevelOffsetMeters)))
}

// Load reads settings from a YAML file on top of the defaults.
func Load(path string) (Settings, error) {
	s := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Defaults(), fmt.Errorf("settings.yaml: %w", err)
	}
	return s.Normalize(), nil
}

// ApplyEnv overlays BHF_* variables found through lookup (os.LookupEnv in production).
func ApplyEnv(s Settings, lookup func(string) (string, bool)) (Settings, error) {
	if v, ok := lookup(EnvHeightUnit); ok && strings.TrimSpace(v) != "" {
		u, err := ParseHeightUnit(v)
		if err != nil {
			return s, fmt.Errorf("%s: %w", EnvHeightUnit, err)
		}
		s.HeightUnit = u
	}
	if v, ok := lookup(EnvSeaLevelOffsetMeters); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return s, fmt.Errorf("%s: %w", EnvSeaLevelOffsetMeters, err)
		}
		s.SeaLevelOffsetMeters = n
	}
	return s.Normalize(), nil
}

// LoadEnvFile overlays BHF_* values from a dotenv file. A missing file is not an error.
func LoadEnvFile(s Settings, path string) (Settings, error) {
	if strings.TrimSpace(path) == "" {
		return s, nil
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("%s: %w", path, err)
	}
	return ApplyEnv(s, func(k string) (string, bool) {
		v, ok := vals[k]
		return v, ok
	})
}

var ErrUnknownUnit = errors.New("unknown height unit")

var unitAliases = map[string]HeightUnit{
	"feet":     Feet,
	"foot":     Feet,
	"ft":       Feet,
	"imperial": Feet,
	"meters":   Meters,
	"meter":    Meters,
	"metres":   Meters,
	"metre":    Meters,
	"m":        Meters,
	"metric":   Meters,
}

// Fuzzy candidates in tie-break order; short aliases only match exactly.
var fuzzyAliases = []string{"feet", "foot", "imperial", "meters", "meter", "metres", "metre", "metric"}

// ParseHeightUnit accepts the aliases above and close misspellings of them.
func ParseHeightUnit(s string) (HeightUnit, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	if u, ok := unitAliases[in]; ok {
		return u, nil
	}
	if len(in) >= 3 {
		best, bestDist := Feet, -1
		for _, alias := range fuzzyAliases {
			u := unitAliases[alias]
			d := levenshtein.ComputeDistance(in, alias)
			if d > fuzzyLimit(len(alias)) {
				continue
			}
			if bestDist < 0 || d < bestDist {
				best, bestDist = u, d
			}
		}
		if bestDist >= 0 {
			return best, nil
		}
	}
	return Feet, fmt.Errorf("%w: %q", ErrUnknownUnit, s)
}

func fuzzyLimit(length int) int {
	if length <= 5 {
		return 1
	}
	return 2
}

func (u HeightUnit) MarshalYAML() (any, error) { return u.String(), nil }

func (u *HeightUnit) UnmarshalYAML(n *yaml.Node) error {
	v, err := ParseHeightUnit(n.Value)
	if err != nil {
		return err
	}
	*u = v
	return nil
}

func (u HeightUnit) MarshalText() ([]byte, error) { return []byte(u.String()), nil }

func (u *HeightUnit) UnmarshalText(b []byte) error {
	v, err := ParseHeightUnit(string(b))
	if err != nil {
		return err
	}
	*u = v
	return nil
}
