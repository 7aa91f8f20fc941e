// Package selection re-derives building stats when the selected entity changes.
package selection

import (
	"time"

	"buildingheight.ai/internal/host"
	"buildingheight.ai/internal/metrics"
	"buildingheight.ai/internal/sim/stats"
)

type Deriver interface {
	Derive(e host.Entity) (stats.BuildingStats, stats.LayoutKind)
}

// Watcher is driven once per frame from the host update loop. It is not safe for concurrent
// Update calls; readers go through the State it publishes to.
type Watcher struct {
	deriver Deriver
	state   *stats.State
	now     func() time.Time

	last     host.Entity
	onChange []func(stats.Snapshot)
}

func NewWatcher(d Deriver, state *stats.State) *Watcher {
	if state == nil {
		state = stats.NewState()
	}
	return &Watcher{deriver: d, state: state, now: time.Now}
}

func (w *Watcher) State() *stats.State { return w.state }

// OnChange registers fn to run with every newly published snapshot.
func (w *Watcher) OnChange(fn func(stats.Snapshot)) {
	w.onChange = append(w.onChange, fn)
}

// Update derives and publishes when selected differs from the previous frame's selection.
// It reports whether a new snapshot was published.
func (w *Watcher) Update(selected host.Entity) bool {
	if selected == w.last {
		return false
	}
	w.last = selected
	metrics.SelectionChangesTotal.Inc()

	s, kind := w.deriver.Derive(selected)
	metrics.DerivationsTotal.WithLabelValues(string(kind)).Inc()

	snap := w.state.Publish(stats.Snapshot{
		Stats:     s,
		Layout:    kind,
		DerivedAt: w.now().UTC(),
	})
	for _, fn := range w.onChange {
		fn(snap)
	}
	return true
}

// Last returns the selection seen by the most recent Update.
func (w *Watcher) Last() host.Entity { return w.last }

// Reset forgets the last selection and clears the published snapshot.
func (w *Watcher) Reset() {
	w.last = host.Null
	w.state.Clear()
}
