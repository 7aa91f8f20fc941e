package stats

import (
	"errors"
	"fmt"
	"log/slog"

	"buildingheight.ai/internal/host"
	"buildingheight.ai/internal/logging"
	"buildingheight.ai/internal/metrics"
	"buildingheight.ai/internal/sim/geometry"
)

type DeriverConfig struct {
	Store    host.EntityStore
	Water    host.WaterLevel // optional; sea level 0 when nil
	Settings SettingsSource  // optional; defaults when nil
	Reader   *geometry.Reader
	Logger   *slog.Logger
}

// Deriver turns a selected entity into a BuildingStats snapshot. It never fails: missing data
// and geometry faults degrade the affected measurement to zero.
type Deriver struct {
	store    host.EntityStore
	water    host.WaterLevel
	settings SettingsSource
	reader   *geometry.Reader
	log      *slog.Logger
}

func NewDeriver(cfg DeriverConfig) *Deriver {
	r := cfg.Reader
	log := logging.Or(cfg.Logger)
	if r == nil {
		r = geometry.NewReader(geometry.NewLayoutCache(log))
	}
	return &Deriver{
		store:    cfg.Store,
		water:    cfg.Water,
		settings: cfg.Settings,
		reader:   r,
		log:      log,
	}
}

// Reader exposes the geometry reader so its layout cache can be cleared on shutdown.
func (d *Deriver) Reader() *geometry.Reader { return d.reader }

func (d *Deriver) Derive(e host.Entity) (out BuildingStats, kind LayoutKind) {
	if e.IsNull() || d.store == nil {
		return BuildingStats{}, LayoutNone
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.DeriveFaultsTotal.WithLabelValues("classify").Inc()
			d.log.Warn("exception while classifying selection", "entity", e, "panic", fmt.Sprint(r))
			out, kind = BuildingStats{Entity: e, HasData: true}, LayoutNone
		}
	}()
	if !d.store.IsBuilding(e) {
		return BuildingStats{Entity: e, HasData: true}, LayoutNone
	}

	prefab, hasPrefab := d.store.PrefabOf(e)
	hasPrefab = hasPrefab && !prefab.IsNull()

	kind = LayoutDescription
	if hasPrefab && d.store.IsSpawnable(prefab) && !d.store.IsSignature(prefab) {
		kind = LayoutLevel
	}

	m := d.measure(e, prefab, hasPrefab)
	if !m.okHeight {
		d.log.Info("could not derive geometry-based height; keeping height and floors at 0", "entity", e)
	}

	out = m.stats()
	out.Entity = e
	return out, kind
}

// measure tries instance geometry first (world space), then fills the gaps from prefab
// geometry (local space, offset by the entity's transform). The prefab is only consulted when
// height or elevation is missing; a zero footprint alone does not trigger it. A panic while
// reading host data resets every measurement.
func (d *Deriver) measure(e, prefab host.Entity, hasPrefab bool) (m measurements) {
	defer func() {
		if r := recover(); r != nil {
			metrics.DeriveFaultsTotal.WithLabelValues("panic").Inc()
			d.log.Warn("exception while reading geometry", "entity", e, "panic", fmt.Sprint(r))
			m = measurements{}
		}
	}()

	offset := float64(settingsOf(d.settings).SeaLevelOffsetMeters)

	if rec, ok := d.store.Geometry(e); ok {
		if b, ok := d.bounds(e, rec, "instance"); ok {
			m.setHeight(b)
			m.setFootprint(b)
			m.elevationFeet, m.okElevation = d.elevation(e, b, false, offset)
		}
	}

	if m.okHeight && m.okElevation {
		return m
	}
	if !hasPrefab {
		return m
	}
	rec, ok := d.store.Geometry(prefab)
	if !ok {
		return m
	}
	b, ok := d.bounds(e, rec, "prefab")
	if !ok {
		return m
	}
	if !m.okHeight {
		m.setHeight(b)
	}
	if !m.okElevation {
		m.elevationFeet, m.okElevation = d.elevation(e, b, true, offset)
	}
	if !m.okFootprint {
		m.setFootprint(b)
	}
	return m
}

func (d *Deriver) bounds(e host.Entity, rec any, source string) (geometry.Bounds3, bool) {
	b, err := d.reader.Bounds(rec)
	if err == nil {
		return b, true
	}
	metrics.DeriveFaultsTotal.WithLabelValues(source).Inc()
	// Unresolved layouts are already reported once per type by the cache.
	if !errors.Is(err, geometry.ErrUnresolvedLayout) {
		d.log.Warn("geometry parse error", "entity", e, "source", source, "err", err)
	}
	return geometry.Bounds3{}, false
}

// elevation needs the entity's transform; local bounds are moved into world space by it.
func (d *Deriver) elevation(e host.Entity, b geometry.Bounds3, local bool, offsetMeters float64) (float64, bool) {
	tr, ok := d.store.Transform(e)
	if !ok {
		return 0, false
	}
	base := b.Min.Y
	if local {
		base += tr.Position.Y
	}
	sea := 0.0
	if d.water != nil {
		if v, ok := d.water.SeaLevel(); ok {
			sea = v
		}
	}
	return elevationFeet(base, sea, offsetMeters), true
}
