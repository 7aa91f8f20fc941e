package geometry

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"buildingheight.ai/internal/logging"
	"buildingheight.ai/internal/metrics"
)

// LayoutCache memoizes Resolve per concrete record type. Safe for concurrent use: racing first
// lookups of one type share a single probe and end up with the same *FieldLayout.
type LayoutCache struct {
	log *slog.Logger

	entries sync.Map // reflect.Type -> *cacheEntry
	probes  atomic.Uint64
}

type cacheEntry struct {
	once   sync.Once
	layout *FieldLayout
}

func NewLayoutCache(logger *slog.Logger) *LayoutCache {
	return &LayoutCache{log: logging.Or(logger)}
}

func (c *LayoutCache) Layout(t reflect.Type) *FieldLayout {
	v, ok := c.entries.Load(t)
	if !ok {
		v, _ = c.entries.LoadOrStore(t, &cacheEntry{})
	}
	e := v.(*cacheEntry)
	e.once.Do(func() {
		c.probes.Add(1)
		metrics.LayoutProbesTotal.Inc()
		e.layout = Resolve(t)
		if !e.layout.Resolved {
			metrics.LayoutUnresolvedTotal.Inc()
			c.log.Warn("geometry record has no recognised bounds layout", "type", typeName(t))
		}
	})
	return e.layout
}

// Probes reports how many types have been probed since creation.
func (c *LayoutCache) Probes() uint64 { return c.probes.Load() }

func (c *LayoutCache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Clear drops every cached layout. Called on shutdown.
func (c *LayoutCache) Clear() {
	c.entries.Range(func(k, _ any) bool {
		c.entries.Delete(k)
		return true
	})
}

// Reader extracts bounds from records, preferring BoundsSource over field probing.
type Reader struct {
	cache *LayoutCache
}

func NewReader(cache *LayoutCache) *Reader {
	if cache == nil {
		cache = NewLayoutCache(nil)
	}
	return &Reader{cache: cache}
}

func (r *Reader) Cache() *LayoutCache { return r.cache }

func (r *Reader) Bounds(rec any) (Bounds3, error) {
	if rec == nil {
		return Bounds3{}, ErrNoGeometry
	}

	var b Bounds3
	if src, ok := rec.(BoundsSource); ok {
		bb, ok := src.GeometryBounds()
		if !ok {
			return Bounds3{}, ErrNoGeometry
		}
		b = bb
	} else {
		v := reflect.ValueOf(rec)
		l := r.cache.Layout(v.Type())
		if !l.Resolved {
			return Bounds3{}, fmt.Errorf("%w: %s", ErrUnresolvedLayout, typeName(v.Type()))
		}
		bb, err := l.Read(v)
		if err != nil {
			return Bounds3{}, err
		}
		b = bb
	}

	if !b.finite() {
		return Bounds3{}, ErrNonFinite
	}
	return b, nil
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
