package tooltip

import (
	"testing"

	"github.com/scalarboard/scalarboard/internal/series"
)

func entries(values ...float64) []series.TooltipEntry {
	out := make([]series.TooltipEntry, len(values))
	for i, v := range values {
		out[i] = series.TooltipEntry{
			RunLabel: string(rune('a' + i)),
			Smoothed: v,
			Value:    v,
		}
	}
	return out
}

func labels(es []series.TooltipEntry) string {
	var s string
	for _, e := range es {
		s += e.RunLabel
	}
	return s
}

func TestSort_None_PreservesRunOrder(t *testing.T) {
	got := Sort(entries(3, 1, 2), SortNone, 0)
	if labels(got) != "abc" {
		t.Errorf("order = %q, want abc", labels(got))
	}
}

func TestSort_ValueDescending(t *testing.T) {
	got := Sort(entries(3, 1, 2), SortValueDesc, 0)
	if labels(got) != "acb" {
		t.Errorf("order = %q, want acb", labels(got))
	}
}

func TestSort_ValueDescending_StableOnTies(t *testing.T) {
	got := Sort(entries(1, 2, 2, 0), SortValueDesc, 0)
	// Both 2s keep original relative order (b before c).
	if labels(got) != "bcad" {
		t.Errorf("order = %q, want bcad", labels(got))
	}
}

func TestSort_NearestToCursor(t *testing.T) {
	got := Sort(entries(10, 4, 7), SortNearest, 6)
	// Distances: a=4, b=2, c=1 -> c, b, a.
	if labels(got) != "cba" {
		t.Errorf("order = %q, want cba", labels(got))
	}
}

func TestSort_DoesNotMutateInput(t *testing.T) {
	in := entries(3, 1, 2)
	Sort(in, SortValueDesc, 0)
	if labels(in) != "abc" {
		t.Errorf("input mutated: %q", labels(in))
	}
}

func TestParseSortingMethod(t *testing.T) {
	cases := map[string]SortingMethod{
		"none":        SortNone,
		"":            SortNone,
		"garbage":     SortNone,
		"value-desc":  SortValueDesc,
		" VALUE-DESC": SortValueDesc,
		"nearest":     SortNearest,
	}
	for in, want := range cases {
		if got := ParseSortingMethod(in); got != want {
			t.Errorf("ParseSortingMethod(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStepWidth(t *testing.T) {
	ds := []series.SmoothedSeries{
		{{Step: 5}, {Step: 99}},
		{{Step: 12345}},
		{},
	}
	if w := StepWidth(ds); w != 5 {
		t.Errorf("StepWidth = %d, want 5", w)
	}
	if w := StepWidth(nil); w != 1 {
		t.Errorf("StepWidth(nil) = %d, want 1", w)
	}
}

func TestFormatStep_PadsToWidth(t *testing.T) {
	if got := FormatStep(7, 4); got != "0007" {
		t.Errorf("FormatStep = %q, want 0007", got)
	}
	if got := FormatStep(12345, 4); got != "12345" {
		t.Errorf("FormatStep overflow = %q, want 12345", got)
	}
}

func TestFormatValue(t *testing.T) {
	cases := map[float64]string{
		0:         "0",
		1.5:       "1.5",
		-2.25:     "-2.25",
		3:         "3",
		0.0001234: "1.234e-04",
		1e7:       "1.000e+07",
	}
	for in, want := range cases {
		if got := FormatValue(in); got != want {
			t.Errorf("FormatValue(%v) = %q, want %q", in, got, want)
		}
	}
}
