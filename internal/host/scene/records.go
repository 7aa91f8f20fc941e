package scene

import "buildingheight.ai/internal/sim/geometry"

// InstanceBounds is the world-space box of a placed object.
type InstanceBounds struct {
	Bounds geometry.Bounds3
}

func (b InstanceBounds) GeometryBounds() (geometry.Bounds3, bool) { return b.Bounds, true }

type float3 struct {
	x, y, z float32
}

type bounds3f struct {
	min, max float3
}

// ObjectGeometryData mirrors the host's prefab geometry component. It is read by field probing,
// not through an interface.
type ObjectGeometryData struct {
	m_Bounds bounds3f
	m_Size   float3
}

func newObjectGeometryData(b geometry.Bounds3) *ObjectGeometryData {
	f3 := func(v geometry.Vec3) float3 { return float3{x: float32(v.X), y: float32(v.Y), z: float32(v.Z)} }
	return &ObjectGeometryData{
		m_Bounds: bounds3f{min: f3(b.Min), max: f3(b.Max)},
		m_Size: float3{
			x: float32(b.Width()),
			y: float32(b.Height()),
			z: float32(b.Depth()),
		},
	}
}
