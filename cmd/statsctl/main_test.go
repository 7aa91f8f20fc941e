package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"buildingheight.ai/internal/host/scene"
	persistlog "buildingheight.ai/internal/persistence/log"
	"buildingheight.ai/internal/settings"
	"buildingheight.ai/internal/sim/selection"
	"buildingheight.ai/internal/sim/stats"
)

func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not find repo root from %s", dir)
		}
		dir = parent
	}
}

func loadExample(t *testing.T) *scene.Scene {
	t.Helper()
	sc, err := scene.Load(filepath.Join(findRepoRoot(t), "configs", "scene.example.yaml"))
	if err != nil {
		t.Fatalf("load scene: %v", err)
	}
	return sc
}

func TestRunTimeline_PrintsEachChange(t *testing.T) {
	sc := loadExample(t)
	cur := settings.Settings{HeightUnit: settings.Meters}
	var out bytes.Buffer
	if err := runTimeline(&out, sc, newDeriver(sc, fixed(cur)), cur); err != nil {
		t.Fatalf("timeline: %v", err)
	}
	text := out.String()
	// office, landmark, warehouse, oak-tree, deselect
	if got := strings.Count(text, "# frame="); got != 5 {
		t.Fatalf("expected 5 changes, got %d:\n%s", got, text)
	}
	for _, want := range []string{`layout="Level"`, `layout="Description"`, "Height: 30.0 m\n", "Height: 100.0 m\n"} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in:\n%s", want, text)
		}
	}
}

func TestVerifyAudit(t *testing.T) {
	sc := loadExample(t)
	dir := t.TempDir()
	cur := settings.Settings{HeightUnit: settings.Feet, SeaLevelOffsetMeters: 2}

	audit := persistlog.NewSelectionLogger(dir)
	w := selection.NewWatcher(newDeriver(sc, fixed(cur)), nil)
	w.OnChange(func(s stats.Snapshot) {
		if err := audit.WriteSelection(s, cur); err != nil {
			t.Fatalf("audit write: %v", err)
		}
	})
	for _, name := range []string{"office", "landmark", "oak-tree"} {
		e, err := sc.Resolve(name)
		if err != nil {
			t.Fatalf("resolve %s: %v", name, err)
		}
		w.Update(e)
	}
	if err := audit.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	n, err := verifyAudit(sc, filepath.Join(dir, "selections"))
	if err != nil || n != 3 {
		t.Fatalf("verify: n=%d err=%v", n, err)
	}

	// A record derived under different geometry must not verify.
	other, err := scene.Parse([]byte("entities:\n  - id: \"1:1\"\n    building: true\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := verifyAudit(other, filepath.Join(dir, "selections")); err == nil {
		t.Fatalf("expected mismatch against a different scene")
	}
	if _, err := verifyAudit(sc, t.TempDir()); err == nil {
		t.Fatalf("expected error for an empty directory")
	}
}
