package stats

import (
	"strings"
	"testing"

	"buildingheight.ai/internal/host"
	"buildingheight.ai/internal/settings"
)

func sample() BuildingStats {
	return BuildingStats{
		Entity:              host.Entity{Index: 42, Version: 1},
		HeightFeet:          98.4252,
		Floors:              7,
		FootprintCells:      15,
		FootprintWidthCells: 5,
		FootprintDepthCells: 3,
		FootprintAcres:      960 / 4046.8564224,
		BaseElevationFeet:   39.37008,
		HasData:             true,
	}
}

func TestFormat_Imperial(t *testing.T) {
	got := Format(sample(), settings.Feet)
	want := "Height: 98.4 ft\n" +
		"Estimated Floors: 7\n" +
		"Zoning Footprint: 5 x 3 cells\n" +
		"Acres Footprint: 0.24 acres\n" +
		"Elevation: 39.4 ft\n"
	if got != want {
		t.Fatalf("imperial mismatch:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormat_Metric(t *testing.T) {
	got := Format(sample(), settings.Meters)
	want := "Height: 30.0 m\n" +
		"Estimated Floors: 7\n" +
		"Zoning Footprint: 5 x 3 cells\n" +
		"Hectares Footprint: 0.10 hectares\n" +
		"Elevation: 12.0 m\n"
	if got != want {
		t.Fatalf("metric mismatch:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormat_OptionalLines(t *testing.T) {
	s := sample()
	s.FootprintWidthCells = 0
	s.FootprintAcres = 0
	s.BaseElevationFeet = 0
	got := Format(s, settings.Feet)
	if strings.Contains(got, LabelZoningFootprint) || strings.Contains(got, "acres") {
		t.Fatalf("footprint lines should be omitted:\n%s", got)
	}
	if !strings.Contains(got, "Elevation: 0.0 ft\n") {
		t.Fatalf("elevation must always be shown:\n%s", got)
	}
}

func TestFormat_EmptyWithoutData(t *testing.T) {
	s := sample()
	s.HasData = false
	if got := Format(s, settings.Feet); got != "" {
		t.Fatalf("HasData=false should format empty, got %q", got)
	}
	s = sample()
	s.Entity = host.Null
	if got := Format(s, settings.Meters); got != "" {
		t.Fatalf("null entity should format empty, got %q", got)
	}
}

func TestFormat_Idempotent(t *testing.T) {
	s := sample()
	if Format(s, settings.Feet) != Format(s, settings.Feet) {
		t.Fatalf("formatting twice differs")
	}
}

func TestFormat_LinesParseAsLabelValue(t *testing.T) {
	labels := []string{}
	for _, line := range strings.Split(strings.TrimSpace(Format(sample(), settings.Feet)), "\n") {
		label, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(value) == "" {
			t.Fatalf("line %q is not label: value", line)
		}
		labels = append(labels, label)
	}
	want := []string{"Height", "Estimated Floors", "Zoning Footprint", "Acres Footprint", "Elevation"}
	if strings.Join(labels, "|") != strings.Join(want, "|") {
		t.Fatalf("labels %v want %v", labels, want)
	}
}

func TestFormatterReadsStateAndSettings(t *testing.T) {
	st := NewState()
	f := NewFormatter(st, fixedSettings{HeightUnit: settings.Meters})
	if f.StatsText() != "" || f.LayoutKind() != "" {
		t.Fatalf("empty state should render empty bindings")
	}
	st.Publish(Snapshot{Stats: sample(), Layout: LayoutLevel})
	if !strings.HasPrefix(f.StatsText(), "Height: 30.0 m\n") {
		t.Fatalf("unexpected text: %q", f.StatsText())
	}
	if f.LayoutKind() != "Level" {
		t.Fatalf("unexpected layout: %q", f.LayoutKind())
	}
	r := f.Current()
	if r.Seq != st.Current().Seq || r.LayoutKind != "Level" || r.StatsText != f.StatsText() {
		t.Fatalf("current should read one snapshot: %+v", r)
	}
	if NewFormatter(st, nil).StatsText() == f.StatsText() {
		t.Fatalf("nil settings should fall back to the default unit (feet)")
	}
	st.Clear()
	if f.StatsText() != "" || f.LayoutKind() != "" {
		t.Fatalf("cleared state should render empty bindings")
	}
}

func TestStatePublishSequence(t *testing.T) {
	st := NewState()
	a := st.Publish(Snapshot{Layout: LayoutLevel})
	b := st.Publish(Snapshot{Layout: LayoutDescription})
	if a.Seq != 1 || b.Seq != 2 {
		t.Fatalf("seq: %d %d", a.Seq, b.Seq)
	}
	if cur := st.Current(); cur.Seq != 2 || cur.Layout != LayoutDescription {
		t.Fatalf("current: %+v", cur)
	}
	var nilState *State
	if nilState.Current() != (Snapshot{}) {
		t.Fatalf("nil state should read empty")
	}
}
