package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"buildingheight.ai/internal/logging"
	"buildingheight.ai/internal/settings"
)

func TestLoadSettings_Precedence(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(yamlPath, []byte("height_unit: meters\nsea_level_offset_meters: 4\n"), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("BHF_SEA_LEVEL_OFFSET_METERS=-12\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	dbPath := filepath.Join(dir, "settings.db")
	logger := logging.New(io.Discard, "error", "text")
	t.Setenv(settings.EnvHeightUnit, "")
	t.Setenv(settings.EnvSeaLevelOffsetMeters, "")

	// YAML then dotenv; nothing stored yet.
	got, db, err := loadSettings(yamlPath, dbPath, envPath, logger)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.HeightUnit != settings.Meters || got.SeaLevelOffsetMeters != -12 {
		t.Fatalf("yaml+env: %+v", got)
	}
	if err := db.SaveSettings(settings.Settings{HeightUnit: settings.Feet, SeaLevelOffsetMeters: 30}); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = db.Close()

	// The stored value beats YAML; the environment beats both.
	t.Setenv(settings.EnvHeightUnit, "metric")
	got, db, err = loadSettings(yamlPath, dbPath, filepath.Join(dir, "missing.env"), logger)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	defer db.Close()
	if got.HeightUnit != settings.Meters || got.SeaLevelOffsetMeters != 30 {
		t.Fatalf("db+env: %+v", got)
	}
}

func TestLoadSettings_MissingFilesUseDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(settings.EnvHeightUnit, "")
	t.Setenv(settings.EnvSeaLevelOffsetMeters, "")
	got, db, err := loadSettings(filepath.Join(dir, "nope.yaml"), "", filepath.Join(dir, "nope.env"), logging.New(io.Discard, "error", "text"))
	if err != nil || db != nil {
		t.Fatalf("load: db=%v err=%v", db, err)
	}
	if got != settings.Defaults() {
		t.Fatalf("defaults: %+v", got)
	}
}

func TestLoadSettings_BadEnvFails(t *testing.T) {
	t.Setenv(settings.EnvHeightUnit, "cubits")
	if _, _, err := loadSettings("", "", "", logging.New(io.Discard, "error", "text")); err == nil {
		t.Fatalf("expected unit parse error")
	}
}

type slowStopLoop struct {
	finished atomic.Bool
}

// Run finishes one more frame after cancellation before returning.
func (l *slowStopLoop) Run(ctx context.Context) error {
	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)
	l.finished.Store(true)
	return ctx.Err()
}

func TestStartLoop_DoneWaitsForRunToReturn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := &slowStopLoop{}
	done := startLoop(ctx, l, logging.New(io.Discard, "error", "text"))

	select {
	case <-done:
		t.Fatalf("loop finished before cancel")
	case <-time.After(10 * time.Millisecond):
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("loop never stopped")
	}
	if !l.finished.Load() {
		t.Fatalf("done closed while the final frame was still running")
	}
}

type failingLoop struct{}

func (failingLoop) Run(context.Context) error { return errors.New("ticker broke") }

func TestStartLoop_ClosesOnError(t *testing.T) {
	select {
	case <-startLoop(context.Background(), failingLoop{}, logging.New(io.Discard, "error", "text")):
	case <-time.After(2 * time.Second):
		t.Fatalf("done should close when Run fails")
	}
}
