package frame

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"buildingheight.ai/internal/host"
	"buildingheight.ai/internal/logging"
	"buildingheight.ai/internal/sim/selection"
	"buildingheight.ai/internal/sim/stats"
)

type script map[uint64]host.Entity

// SelectedAt holds the last scripted entity until the next cue.
func (s script) SelectedAt(frame uint64) host.Entity {
	var best host.Entity
	var at uint64
	found := false
	for f, e := range s {
		if f <= frame && (!found || f > at) {
			best, at, found = e, f, true
		}
	}
	return best
}

type echoDeriver struct{ calls int }

func (d *echoDeriver) Derive(e host.Entity) (stats.BuildingStats, stats.LayoutKind) {
	d.calls++
	if e.IsNull() {
		return stats.BuildingStats{}, stats.LayoutNone
	}
	return stats.BuildingStats{Entity: e, HasData: true}, stats.LayoutDescription
}

func quiet() Config {
	return Config{Logger: logging.New(io.Discard, "error", "text")}
}

func TestStep_PublishesOnlyOnChange(t *testing.T) {
	a := host.Entity{Index: 3, Version: 1}
	b := host.Entity{Index: 4, Version: 1}
	d := &echoDeriver{}
	cfg := quiet()
	cfg.Source = script{2: a, 5: b, 8: host.Null}
	cfg.Watcher = selection.NewWatcher(d, nil)
	r, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var pushed []stats.Snapshot
	r.OnPublish(func(s stats.Snapshot) { pushed = append(pushed, s) })

	for i := 0; i < 12; i++ {
		r.Step()
	}
	if r.Frame() != 12 {
		t.Fatalf("frame: %d", r.Frame())
	}
	if d.calls != 3 || len(pushed) != 3 {
		t.Fatalf("derives=%d pushes=%d, want 3 each", d.calls, len(pushed))
	}
	if pushed[0].Stats.Entity != a || pushed[1].Stats.Entity != b || pushed[2].Stats.HasData {
		t.Fatalf("unexpected push order: %+v", pushed)
	}
}

func TestNew_Validates(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without source")
	}
	cfg := quiet()
	cfg.Source = script{}
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected error without watcher")
	}
	cfg.Watcher = selection.NewWatcher(&echoDeriver{}, nil)
	r, err := New(cfg)
	if err != nil || r.cfg.FrameRateHz != DefaultFrameRateHz {
		t.Fatalf("default frame rate: %v %v", r, err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	a := host.Entity{Index: 9, Version: 2}
	cfg := quiet()
	cfg.FrameRateHz = 200
	cfg.Source = script{0: a}
	cfg.Watcher = selection.NewWatcher(&echoDeriver{}, nil)
	r, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	published := make(chan stats.Snapshot, 1)
	r.OnPublish(func(s stats.Snapshot) {
		select {
		case published <- s:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case s := <-published:
		if s.Stats.Entity != a {
			t.Fatalf("published %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame published")
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}
