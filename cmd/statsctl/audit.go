package main

import (
	"fmt"

	"buildingheight.ai/internal/host"
	"buildingheight.ai/internal/host/scene"
	persistlog "buildingheight.ai/internal/persistence/log"
	"buildingheight.ai/internal/sim/stats"
)

// verifyAudit re-derives every audited selection against sc with the settings recorded at the
// time and requires the same stats and text.
func verifyAudit(sc *scene.Scene, dir string) (int, error) {
	files, err := persistlog.ListSelectionFiles(dir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no selection files found in %s", dir)
	}

	checked := 0
	for _, path := range files {
		err := persistlog.ReadSelections(path, func(rec persistlog.SelectionRecord) error {
			e, err := host.ParseEntity(rec.Entity)
			if err != nil {
				return fmt.Errorf("record %s: %w", rec.ID, err)
			}
			s, kind := newDeriver(sc, fixed(rec.Settings)).Derive(e)
			if kind != rec.Layout {
				return fmt.Errorf("record %s (%s): layout %q, audited %q", rec.ID, e, kind, rec.Layout)
			}
			if text := stats.Format(s, rec.Settings.HeightUnit); text != rec.Text {
				return fmt.Errorf("record %s (%s): text mismatch:\n%s\naudited:\n%s", rec.ID, e, text, rec.Text)
			}
			checked++
			return nil
		})
		if err != nil {
			return checked, err
		}
	}
	return checked, nil
}
