package schedule

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 14, hour, minute, 0, 0, time.UTC)
}

func TestResolveDaytimeWindow(t *testing.T) {
	p := NewPolicy([]Window{
		{ID: "day", Label: "Veg day", Start: 6 * 60, End: 22 * 60, MinLux: 4000, MaxLux: 8000, Enabled: true},
	})
	thr := p.Resolve(at(12, 0), 3000, 6000)
	if thr.WindowID != "day" || thr.MinLux != 4000 {
		t.Fatalf("noon must hit the day window, got %+v", thr)
	}
	thr = p.Resolve(at(5, 59), 3000, 6000)
	if thr.WindowID != "" || thr.WindowLabel != DefaultLabel {
		t.Fatalf("05:59 must fall back to defaults, got %+v", thr)
	}
	// End is exclusive.
	thr = p.Resolve(at(22, 0), 3000, 6000)
	if thr.WindowID != "" {
		t.Fatalf("22:00 must be outside a window ending at 22:00, got %+v", thr)
	}
}

func TestResolveOvernightWindow(t *testing.T) {
	p := NewPolicy([]Window{
		{ID: "night", Start: 22 * 60, End: 6 * 60, MinLux: 500, MaxLux: 1500, Enabled: true},
	})
	for _, tc := range []struct {
		hour, minute int
		active       bool
	}{
		{23, 30, true},
		{2, 0, true},
		{5, 59, true},
		{6, 0, false},
		{12, 0, false},
		{22, 0, true},
	} {
		thr := p.Resolve(at(tc.hour, tc.minute), 3000, 6000)
		got := thr.WindowID == "night"
		if got != tc.active {
			t.Fatalf("%02d:%02d active = %v, want %v", tc.hour, tc.minute, got, tc.active)
		}
	}
}

func TestResolvePriorityAndTieBreaks(t *testing.T) {
	p := NewPolicy([]Window{
		{ID: "base", Start: 0, End: 12 * 60, MinLux: 1000, MaxLux: 2000, Enabled: true, Priority: 0},
		{ID: "boost", Start: 8 * 60, End: 10 * 60, MinLux: 5000, MaxLux: 9000, Enabled: true, Priority: 5},
	})
	thr := p.Resolve(at(9, 0), 0, 0)
	if thr.WindowID != "boost" {
		t.Fatalf("higher priority must win, got %+v", thr)
	}

	// Same priority: earlier start wins, then the smaller id.
	p = NewPolicy([]Window{
		{ID: "b", Start: 9 * 60, End: 12 * 60, Enabled: true},
		{ID: "a", Start: 8 * 60, End: 12 * 60, Enabled: true},
	})
	if thr := p.Resolve(at(10, 0), 0, 0); thr.WindowID != "a" {
		t.Fatalf("earlier start must win the tie, got %+v", thr)
	}
	p = NewPolicy([]Window{
		{ID: "w2", Start: 8 * 60, End: 12 * 60, Enabled: true},
		{ID: "w1", Start: 8 * 60, End: 12 * 60, Enabled: true},
	})
	if thr := p.Resolve(at(10, 0), 0, 0); thr.WindowID != "w1" {
		t.Fatalf("smallest id must win the full tie, got %+v", thr)
	}
}

func TestResolveSkipsDisabledWindows(t *testing.T) {
	p := NewPolicy([]Window{
		{ID: "off", Start: 0, End: 24 * 60, MinLux: 100, MaxLux: 200, Enabled: false},
	})
	thr := p.Resolve(at(12, 0), 3000, 6000)
	if thr.WindowLabel != DefaultLabel || thr.MinLux != 3000 {
		t.Fatalf("disabled window must not match, got %+v", thr)
	}
}

func TestWindowLabelFallsBackToSpan(t *testing.T) {
	p := NewPolicy([]Window{
		{ID: "x", Start: 6*60 + 30, End: 21 * 60, Enabled: true},
	})
	thr := p.Resolve(at(12, 0), 0, 0)
	if thr.WindowLabel != "06:30-21:00" {
		t.Fatalf("label = %q, want the HH:MM span", thr.WindowLabel)
	}
}

func TestFromSpecsValidation(t *testing.T) {
	if _, err := FromSpecs([]Spec{{StartTime: "8:61", EndTime: "10:00"}}); err == nil {
		t.Fatalf("bad minute must be rejected")
	}
	if _, err := FromSpecs([]Spec{{StartTime: "08:00", EndTime: "10:00", MinLux: 500, MaxLux: 100}}); err == nil {
		t.Fatalf("min above max must be rejected")
	}
	if _, err := FromSpecs([]Spec{
		{ID: "dup", StartTime: "08:00", EndTime: "10:00"},
		{ID: "dup", StartTime: "12:00", EndTime: "14:00"},
	}); err == nil {
		t.Fatalf("duplicate ids must be rejected")
	}

	windows, err := FromSpecs([]Spec{{StartTime: "08:00", EndTime: "10:00", MaxLux: 100, Enabled: true}})
	if err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
	if windows[0].ID == "" {
		t.Fatalf("blank id must be generated")
	}
	if windows[0].Start != 480 || windows[0].End != 600 {
		t.Fatalf("parsed span = %d-%d, want 480-600", windows[0].Start, windows[0].End)
	}
}

func TestReplaceIsAtomic(t *testing.T) {
	p := NewPolicy(nil)
	if thr := p.Resolve(at(12, 0), 3000, 6000); thr.WindowLabel != DefaultLabel {
		t.Fatalf("empty policy must fall back to defaults")
	}
	p.Replace([]Window{{ID: "n", Start: 0, End: 24 * 60, MinLux: 10, MaxLux: 20, Enabled: true}})
	if thr := p.Resolve(at(12, 0), 3000, 6000); thr.WindowID != "n" {
		t.Fatalf("replaced set must be in force")
	}
}
