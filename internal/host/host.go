// Package host declares what the stats core reads from the game: selection, entity components,
// and the live water level. The core never writes through these interfaces.
package host

import (
	"fmt"
	"strconv"
	"strings"

	"buildingheight.ai/internal/sim/geometry"
)

// Entity is a host entity handle. The zero value is the null entity.
type Entity struct {
	Index   int32 `json:"index" yaml:"index"`
	Version int32 `json:"version" yaml:"version"`
}

var Null Entity

func (e Entity) IsNull() bool { return e == Null }

func (e Entity) String() string {
	if e.IsNull() {
		return "Entity.Null"
	}
	return fmt.Sprintf("%d:%d", e.Index, e.Version)
}

// ParseEntity accepts "index:version" or a bare index (version 1).
func ParseEntity(s string) (Entity, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || s == Null.String() {
		return Null, nil
	}
	idx, ver, found := strings.Cut(s, ":")
	i, err := strconv.ParseInt(idx, 10, 32)
	if err != nil {
		return Null, fmt.Errorf("entity %q: %w", s, err)
	}
	v := int64(1)
	if found {
		v, err = strconv.ParseInt(ver, 10, 32)
		if err != nil {
			return Null, fmt.Errorf("entity %q: %w", s, err)
		}
	}
	return Entity{Index: int32(i), Version: int32(v)}, nil
}

type Transform struct {
	Position geometry.Vec3
}

// EntityStore is the host's entity/component store.
type EntityStore interface {
	// IsBuilding reports whether e carries the building component.
	IsBuilding(e Entity) bool
	// PrefabOf returns the template entity e was placed from.
	PrefabOf(e Entity) (Entity, bool)
	// Geometry returns the geometry record attached to e (instance or prefab).
	Geometry(e Entity) (any, bool)
	Transform(e Entity) (Transform, bool)
	// IsSpawnable and IsSignature classify a prefab entity.
	IsSpawnable(prefab Entity) bool
	IsSignature(prefab Entity) bool
}

// WaterLevel exposes the live sea level in world meters. ok=false when the water system is not
// running.
type WaterLevel interface {
	SeaLevel() (meters float64, ok bool)
}

// SelectionSource yields the selected entity for a frame.
type SelectionSource interface {
	SelectedAt(frame uint64) Entity
}
