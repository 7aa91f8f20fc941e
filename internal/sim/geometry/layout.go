package geometry

import (
	"fmt"
	"reflect"
)

// Probe order matters: first match wins.
var (
	boundsFieldNames = []string{"m_Bounds", "Bounds", "bounds", "MBounds"}
	minFieldNames    = []string{"m_Min", "Min", "min"}
	maxFieldNames    = []string{"m_Max", "Max", "max"}
	xFieldNames      = []string{"x", "X"}
	yFieldNames      = []string{"y", "Y"}
	zFieldNames      = []string{"z", "Z"}
)

// FieldLayout records where a record type keeps its bounding box. Index paths are relative to the
// dereferenced struct at each level. A layout is immutable once built.
type FieldLayout struct {
	Type     reflect.Type
	Resolved bool

	Bounds []int
	Min    []int
	Max    []int
	X      []int
	Y      []int
	Z      []int
}

// Resolve probes t for a bounds field with min/max corners holding x/y/z scalars. It never
// panics; an unrecognised shape yields a layout with Resolved=false and no fields.
func Resolve(t reflect.Type) *FieldLayout {
	unresolved := &FieldLayout{Type: t}
	if t == nil {
		return unresolved
	}

	rt := derefType(t)
	if rt.Kind() != reflect.Struct {
		return unresolved
	}
	bounds, ok := probeField(rt, boundsFieldNames)
	if !ok {
		return unresolved
	}

	bt := derefType(bounds.Type)
	if bt.Kind() != reflect.Struct {
		return unresolved
	}
	minF, okMin := probeField(bt, minFieldNames)
	maxF, okMax := probeField(bt, maxFieldNames)
	if !okMin || !okMax {
		return unresolved
	}

	vt := derefType(minF.Type)
	if vt.Kind() != reflect.Struct || derefType(maxF.Type) != vt {
		return unresolved
	}
	x, okX := probeScalar(vt, xFieldNames)
	y, okY := probeScalar(vt, yFieldNames)
	z, okZ := probeScalar(vt, zFieldNames)
	if !okX || !okY || !okZ {
		return unresolved
	}

	return &FieldLayout{
		Type:     t,
		Resolved: true,
		Bounds:   bounds.Index,
		Min:      minF.Index,
		Max:      maxF.Index,
		X:        x.Index,
		Y:        y.Index,
		Z:        z.Index,
	}
}

// Read extracts the bounding box from a record of the layout's type.
func (l *FieldLayout) Read(rec reflect.Value) (Bounds3, error) {
	if l == nil || !l.Resolved {
		return Bounds3{}, ErrUnresolvedLayout
	}
	v, ok := indirect(rec)
	if !ok {
		return Bounds3{}, ErrNoGeometry
	}
	bv, err := v.FieldByIndexErr(l.Bounds)
	if err != nil {
		return Bounds3{}, fmt.Errorf("%w: bounds: %v", ErrNoGeometry, err)
	}
	bv, ok = indirect(bv)
	if !ok {
		return Bounds3{}, ErrNoGeometry
	}

	minV, err := l.corner(bv, l.Min)
	if err != nil {
		return Bounds3{}, err
	}
	maxV, err := l.corner(bv, l.Max)
	if err != nil {
		return Bounds3{}, err
	}
	return Bounds3{Min: minV, Max: maxV}, nil
}

func (l *FieldLayout) corner(bounds reflect.Value, idx []int) (Vec3, error) {
	cv, err := bounds.FieldByIndexErr(idx)
	if err != nil {
		return Vec3{}, fmt.Errorf("%w: corner: %v", ErrNoGeometry, err)
	}
	cv, ok := indirect(cv)
	if !ok {
		return Vec3{}, ErrNoGeometry
	}
	return Vec3{
		X: scalar(cv.FieldByIndex(l.X)),
		Y: scalar(cv.FieldByIndex(l.Y)),
		Z: scalar(cv.FieldByIndex(l.Z)),
	}, nil
}

func probeField(t reflect.Type, names []string) (reflect.StructField, bool) {
	for _, n := range names {
		if f, ok := t.FieldByName(n); ok {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

func probeScalar(t reflect.Type, names []string) (reflect.StructField, bool) {
	f, ok := probeField(t, names)
	if !ok || !isScalar(f.Type.Kind()) {
		return reflect.StructField{}, false
	}
	return f, true
}

func isScalar(k reflect.Kind) bool {
	switch k {
	case reflect.Float32, reflect.Float64,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// scalar reads a numeric field. Unexported fields are readable this way.
func scalar(v reflect.Value) float64 {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	}
	return 0
}

func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func indirect(v reflect.Value) (reflect.Value, bool) {
	for v.IsValid() && v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	return v, v.IsValid()
}
