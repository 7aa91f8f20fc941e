// Package frame drives the selection watcher from a fixed-rate loop, standing in for the host's
// per-frame update callback.
package frame

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"buildingheight.ai/internal/host"
	"buildingheight.ai/internal/logging"
	"buildingheight.ai/internal/sim/selection"
	"buildingheight.ai/internal/sim/stats"
)

const DefaultFrameRateHz = 30

type Config struct {
	FrameRateHz int
	Source      host.SelectionSource
	Watcher     *selection.Watcher
	Logger      *slog.Logger
}

// Runner owns the watcher: Step and Run must not be used concurrently.
type Runner struct {
	cfg   Config
	log   *slog.Logger
	frame atomic.Uint64

	onPublish []func(stats.Snapshot)
}

func New(cfg Config) (*Runner, error) {
	if cfg.Source == nil {
		return nil, errors.New("frame: nil selection source")
	}
	if cfg.Watcher == nil {
		return nil, errors.New("frame: nil watcher")
	}
	if cfg.FrameRateHz <= 0 {
		cfg.FrameRateHz = DefaultFrameRateHz
	}
	return &Runner{cfg: cfg, log: logging.Or(cfg.Logger)}, nil
}

// OnPublish registers fn to run after a frame published a new snapshot.
func (r *Runner) OnPublish(fn func(stats.Snapshot)) {
	r.onPublish = append(r.onPublish, fn)
}

// Frame is the number of frames stepped so far.
func (r *Runner) Frame() uint64 { return r.frame.Load() }

// Step runs one frame and reports whether a snapshot was published.
func (r *Runner) Step() bool {
	f := r.frame.Add(1) - 1
	selected := r.cfg.Source.SelectedAt(f)
	if !r.cfg.Watcher.Update(selected) {
		return false
	}
	snap := r.cfg.Watcher.State().Current()
	r.log.Debug("selection changed", "frame", f, "entity", selected, "layout", string(snap.Layout))
	for _, fn := range r.onPublish {
		fn(snap)
	}
	return true
}

func (r *Runner) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(r.cfg.FrameRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.Info("frame loop started", "frame_hz", r.cfg.FrameRateHz)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Step()
		}
	}
}
