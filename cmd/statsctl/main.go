package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"buildingheight.ai/internal/host"
	"buildingheight.ai/internal/host/scene"
	"buildingheight.ai/internal/logging"
	"buildingheight.ai/internal/settings"
	"buildingheight.ai/internal/sim/frame"
	"buildingheight.ai/internal/sim/selection"
	"buildingheight.ai/internal/sim/stats"
)

func main() {
	var (
		scenePath = flag.String("scene", "./configs/scene.example.yaml", "scene YAML")
		entityRef = flag.String("entity", "", "entity to derive (index:version, bare index, or scene name); empty lists every building")
		unit      = flag.String("unit", "feet", "height unit (feet|meters)")
		offset    = flag.Int("offset", 0, "sea level offset in meters")
		timeline  = flag.Bool("timeline", false, "step through the scene timeline and print every published snapshot")
		auditDir  = flag.String("audit", "", "verify selection audit logs in this directory against the scene")
	)
	flag.Parse()

	u, err := settings.ParseHeightUnit(*unit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "unit:", err)
		os.Exit(2)
	}
	cur := settings.Settings{HeightUnit: u, SeaLevelOffsetMeters: *offset}.Normalize()

	sc, err := scene.Load(*scenePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load scene:", err)
		os.Exit(1)
	}

	if *auditDir != "" {
		n, err := verifyAudit(sc, *auditDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "audit:", err)
			os.Exit(1)
		}
		fmt.Printf("audit ok: checked=%d records\n", n)
		return
	}

	deriver := newDeriver(sc, fixed(cur))
	switch {
	case *timeline:
		if err := runTimeline(os.Stdout, sc, deriver, cur); err != nil {
			fmt.Fprintln(os.Stderr, "timeline:", err)
			os.Exit(1)
		}
	case strings.TrimSpace(*entityRef) != "":
		e, err := sc.Resolve(*entityRef)
		if err != nil {
			fmt.Fprintln(os.Stderr, "entity:", err)
			os.Exit(1)
		}
		printStats(os.Stdout, e, deriver, cur)
	default:
		for _, info := range sc.Entities() {
			if info.Building {
				printStats(os.Stdout, info.ID, deriver, cur)
			}
		}
	}
}

type fixed settings.Settings

func (f fixed) Settings() settings.Settings { return settings.Settings(f) }

func newDeriver(sc *scene.Scene, src stats.SettingsSource) *stats.Deriver {
	return stats.NewDeriver(stats.DeriverConfig{
		Store:    sc,
		Water:    sc,
		Settings: src,
		Logger:   logging.New(os.Stderr, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT")),
	})
}

func printStats(w io.Writer, e host.Entity, d *stats.Deriver, cur settings.Settings) {
	s, kind := d.Derive(e)
	layout := string(kind)
	if layout == "" {
		layout = "-"
	}
	fmt.Fprintf(w, "# %s layout=%s\n%s\n", e, layout, stats.Format(s, cur.HeightUnit))
}

// runTimeline steps the frame loop once past the last cue, printing each change.
func runTimeline(w io.Writer, sc *scene.Scene, d *stats.Deriver, cur settings.Settings) error {
	watcher := selection.NewWatcher(d, nil)
	r, err := frame.New(frame.Config{Source: sc, Watcher: watcher, Logger: logging.New(io.Discard, "error", "text")})
	if err != nil {
		return err
	}
	r.OnPublish(func(snap stats.Snapshot) {
		fmt.Fprintf(w, "# frame=%d seq=%d entity=%s layout=%q\n%s\n",
			r.Frame()-1, snap.Seq, snap.Stats.Entity, snap.Layout, stats.Format(snap.Stats, cur.HeightUnit))
	})
	end := sc.TimelineEnd()
	for r.Frame() <= end {
		r.Step()
	}
	return nil
}
