// Package geometry reads axis-aligned bounding boxes out of host geometry records.
//
// Records either implement BoundsSource or are structs whose bounds are located by probing a
// small set of known field names (see Resolve). Probe results are cached per concrete type.
package geometry

import (
	"errors"
	"math"
)

var (
	ErrNoGeometry       = errors.New("geometry: no record")
	ErrUnresolvedLayout = errors.New("geometry: unresolved field layout")
	ErrNonFinite        = errors.New("geometry: non-finite bounds")
)

type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

type Bounds3 struct {
	Min Vec3 `json:"min" yaml:"min"`
	Max Vec3 `json:"max" yaml:"max"`
}

// BoundsSource is implemented by records that can hand out their bounding box directly.
// ok=false means the record carries no box.
type BoundsSource interface {
	GeometryBounds() (b Bounds3, ok bool)
}

func (b Bounds3) Height() float64 { return b.Max.Y - b.Min.Y }
func (b Bounds3) Width() float64  { return math.Abs(b.Max.X - b.Min.X) }
func (b Bounds3) Depth() float64  { return math.Abs(b.Max.Z - b.Min.Z) }

// Offset translates the box by p.
func (b Bounds3) Offset(p Vec3) Bounds3 {
	return Bounds3{
		Min: Vec3{X: b.Min.X + p.X, Y: b.Min.Y + p.Y, Z: b.Min.Z + p.Z},
		Max: Vec3{X: b.Max.X + p.X, Y: b.Max.Y + p.Y, Z: b.Max.Z + p.Z},
	}
}

func (b Bounds3) finite() bool {
	for _, f := range [...]float64{b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
