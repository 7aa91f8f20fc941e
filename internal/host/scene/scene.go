// Package scene is an in-memory stand-in for the host's entity store, loaded from YAML. It
// serves the harness commands and tests; the game provides the real store.
package scene

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"buildingheight.ai/internal/host"
	"buildingheight.ai/internal/sim/geometry"
)

//go:embed scene.schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("scene.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

// File is the YAML document shape.
type File struct {
	Name     string       `yaml:"name"`
	Water    *WaterFile   `yaml:"water"`
	Entities []EntityFile `yaml:"entities"`
	Timeline []CueFile    `yaml:"timeline"`
}

type WaterFile struct {
	SeaLevel *float64 `yaml:"sea_level"`
}

type EntityFile struct {
	ID        Ref           `yaml:"id"`
	Name      string        `yaml:"name"`
	Building  bool          `yaml:"building"`
	Prefab    Ref           `yaml:"prefab"`
	Spawnable bool          `yaml:"spawnable"`
	Signature bool          `yaml:"signature"`
	Geometry  *GeometryFile `yaml:"geometry"`
	Transform *struct {
		Position geometry.Vec3 `yaml:"position"`
	} `yaml:"transform"`
}

type GeometryFile struct {
	Bounds geometry.Bounds3 `yaml:"bounds"`
}

type CueFile struct {
	Frame  uint64 `yaml:"frame"`
	Select Ref    `yaml:"select"`
}

// Ref names an entity by "index:version", bare index, or entity name. Empty means null.
type Ref string

func (r *Ref) UnmarshalYAML(n *yaml.Node) error {
	if n.Tag == "!!null" {
		*r = ""
		return nil
	}
	*r = Ref(strings.TrimSpace(n.Value))
	return nil
}

type entity struct {
	id        host.Entity
	name      string
	building  bool
	prefab    host.Entity
	spawnable bool
	signature bool
	geometry  any
	transform *host.Transform
}

type cue struct {
	frame uint64
	sel   host.Entity
}

// Scene implements host.EntityStore, host.WaterLevel and host.SelectionSource.
type Scene struct {
	name     string
	entities map[host.Entity]*entity
	byName   map[string]host.Entity
	seaLevel *float64
	timeline []cue

	mu       sync.RWMutex
	override *host.Entity
}

func Load(path string) (*Scene, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse validates raw YAML against the scene schema and builds the store.
func Parse(raw []byte) (*Scene, error) {
	if err := validate(raw); err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}
	return build(f)
}

func validate(raw []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("scene schema: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("scene: %w", err)
	}
	// Go through JSON so the validator sees JSON-native types.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("scene: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("scene: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("scene: %w", err)
	}
	return nil
}

func build(f File) (*Scene, error) {
	sc := &Scene{
		name:     f.Name,
		entities: make(map[host.Entity]*entity, len(f.Entities)),
		byName:   map[string]host.Entity{},
	}
	if f.Water != nil {
		sc.seaLevel = f.Water.SeaLevel
	}

	for _, ef := range f.Entities {
		id, err := host.ParseEntity(string(ef.ID))
		if err != nil {
			return nil, err
		}
		if id.IsNull() {
			return nil, fmt.Errorf("scene: entity id %q is null", ef.ID)
		}
		if _, dup := sc.entities[id]; dup {
			return nil, fmt.Errorf("scene: duplicate entity %s", id)
		}
		e := &entity{
			id:        id,
			name:      ef.Name,
			building:  ef.Building,
			spawnable: ef.Spawnable,
			signature: ef.Signature,
		}
		if ef.Transform != nil {
			e.transform = &host.Transform{Position: ef.Transform.Position}
		}
		sc.entities[id] = e
		if ef.Name != "" {
			if _, dup := sc.byName[ef.Name]; dup {
				return nil, fmt.Errorf("scene: duplicate entity name %q", ef.Name)
			}
			sc.byName[ef.Name] = id
		}
	}

	// Second pass: references and geometry need the full entity set.
	for _, ef := range f.Entities {
		id, _ := host.ParseEntity(string(ef.ID))
		e := sc.entities[id]
		if ef.Prefab != "" {
			p, err := sc.Resolve(string(ef.Prefab))
			if err != nil {
				return nil, fmt.Errorf("scene: entity %s prefab: %w", id, err)
			}
			e.prefab = p
		}
		if ef.Geometry != nil {
			e.geometry = sc.record(e, ef.Geometry.Bounds, f.Entities)
		}
	}

	for _, cf := range f.Timeline {
		sel := host.Null
		if cf.Select != "" {
			e, err := sc.Resolve(string(cf.Select))
			if err != nil {
				return nil, fmt.Errorf("scene: timeline frame %d: %w", cf.Frame, err)
			}
			sel = e
		}
		sc.timeline = append(sc.timeline, cue{frame: cf.Frame, sel: sel})
	}
	sort.SliceStable(sc.timeline, func(i, j int) bool { return sc.timeline[i].frame < sc.timeline[j].frame })
	return sc, nil
}

// record picks the geometry representation: entities that other entities use as a prefab get
// the host component shape (local space, found by probing); placed objects get world-space
// instance bounds.
func (sc *Scene) record(e *entity, b geometry.Bounds3, all []EntityFile) any {
	for _, ef := range all {
		if ef.Prefab == "" {
			continue
		}
		if p, err := sc.Resolve(string(ef.Prefab)); err == nil && p == e.id {
			return newObjectGeometryData(b)
		}
	}
	return InstanceBounds{Bounds: b}
}

// Resolve accepts an entity name, "index:version", or a bare index.
func (sc *Scene) Resolve(ref string) (host.Entity, error) {
	ref = strings.TrimSpace(ref)
	if id, ok := sc.byName[ref]; ok {
		return id, nil
	}
	id, err := host.ParseEntity(ref)
	if err != nil {
		return host.Null, fmt.Errorf("unknown entity %q", ref)
	}
	if id.IsNull() {
		return host.Null, nil
	}
	if _, ok := sc.entities[id]; !ok {
		return host.Null, fmt.Errorf("unknown entity %q", ref)
	}
	return id, nil
}

func (sc *Scene) Name() string { return sc.name }

// EntityInfo is a read-only listing row.
type EntityInfo struct {
	ID       host.Entity `json:"id"`
	Name     string      `json:"name,omitempty"`
	Building bool        `json:"building"`
}

func (sc *Scene) Entities() []EntityInfo {
	out := make([]EntityInfo, 0, len(sc.entities))
	for _, e := range sc.entities {
		out = append(out, EntityInfo{ID: e.id, Name: e.name, Building: e.building})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID.Index == out[j].ID.Index {
			return out[i].ID.Version < out[j].ID.Version
		}
		return out[i].ID.Index < out[j].ID.Index
	})
	return out
}

func (sc *Scene) IsBuilding(e host.Entity) bool {
	ent, ok := sc.entities[e]
	return ok && ent.building
}

func (sc *Scene) PrefabOf(e host.Entity) (host.Entity, bool) {
	ent, ok := sc.entities[e]
	if !ok || ent.prefab.IsNull() {
		return host.Null, false
	}
	return ent.prefab, true
}

func (sc *Scene) Geometry(e host.Entity) (any, bool) {
	ent, ok := sc.entities[e]
	if !ok || ent.geometry == nil {
		return nil, false
	}
	return ent.geometry, true
}

func (sc *Scene) Transform(e host.Entity) (host.Transform, bool) {
	ent, ok := sc.entities[e]
	if !ok || ent.transform == nil {
		return host.Transform{}, false
	}
	return *ent.transform, true
}

func (sc *Scene) IsSpawnable(p host.Entity) bool {
	ent, ok := sc.entities[p]
	return ok && ent.spawnable
}

func (sc *Scene) IsSignature(p host.Entity) bool {
	ent, ok := sc.entities[p]
	return ok && ent.signature
}

// SeaLevel reports the scene's water level; a scene without water has no water system.
func (sc *Scene) SeaLevel() (float64, bool) {
	if sc.seaLevel == nil {
		return 0, false
	}
	return *sc.seaLevel, true
}

// SelectedAt returns the manual selection if one is set, else the latest timeline cue at or
// before frame.
func (sc *Scene) SelectedAt(frame uint64) host.Entity {
	sc.mu.RLock()
	ov := sc.override
	sc.mu.RUnlock()
	if ov != nil {
		return *ov
	}
	i := sort.Search(len(sc.timeline), func(i int) bool { return sc.timeline[i].frame > frame })
	if i == 0 {
		return host.Null
	}
	return sc.timeline[i-1].sel
}

// Select overrides the timeline until ClearSelection. host.Null is a valid (deselected) override.
func (sc *Scene) Select(e host.Entity) error {
	if !e.IsNull() {
		if _, ok := sc.entities[e]; !ok {
			return fmt.Errorf("unknown entity %s", e)
		}
	}
	sc.mu.Lock()
	sc.override = &e
	sc.mu.Unlock()
	return nil
}

func (sc *Scene) ClearSelection() {
	sc.mu.Lock()
	sc.override = nil
	sc.mu.Unlock()
}

// TimelineEnd is the frame of the last cue.
func (sc *Scene) TimelineEnd() uint64 {
	if len(sc.timeline) == 0 {
		return 0
	}
	return sc.timeline[len(sc.timeline)-1].frame
}

func (sc *Scene) String() string {
	return sc.name + " (" + strconv.Itoa(len(sc.entities)) + " entities)"
}
