package actions

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"home-autopilot/internal/homeconfig"
	"home-autopilot/internal/rules"
	"home-autopilot/internal/stats"
)

var buildClock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

func build(deviations ...rules.Deviation) []Action {
	return Build(&homeconfig.Config{}, &stats.Record{}, deviations, buildClock)
}

func TestBuildThresholdReason(t *testing.T) {
	out := build(rules.Deviation{
		Metric:    "houseConsumption",
		ObjectID:  "energy.houseConsumption",
		Category:  "energy",
		Severity:  "medium",
		Message:   "Hoher Hausverbrauch (3500 W)",
		Current:   ptr(3500),
		Threshold: ptr(3000),
	})

	if len(out) != 1 {
		t.Fatalf("expected 1 action, got %d", len(out))
	}
	a := out[0]
	if a.Reason != "Current 3500, reference 3000" {
		t.Fatalf("reason = %q", a.Reason)
	}
	if a.Priority != "medium" || a.Category != "energy" || a.LearningKey != "houseConsumption" {
		t.Fatalf("unexpected action: %+v", a)
	}
	if a.Type != "suggestion" || a.Status != StatusProposed || !a.RequiresApproval {
		t.Fatalf("defaults wrong: %+v", a)
	}
	wantPrefix := fmt.Sprintf("houseConsumption-%d-", buildClock.UnixMilli())
	if !strings.HasPrefix(a.ID, wantPrefix) {
		t.Fatalf("id = %q, want prefix %q", a.ID, wantPrefix)
	}
}

func TestBuildAveragePreferredOverThreshold(t *testing.T) {
	out := build(rules.Deviation{
		Type:      "history",
		Current:   ptr(140),
		Average:   ptr(100),
		Threshold: ptr(9999),
	})

	if out[0].Reason != "Current 140, reference 100" {
		t.Fatalf("reason = %q", out[0].Reason)
	}
}

func TestBuildReasonFallbacks(t *testing.T) {
	out := build(
		rules.Deviation{Type: "history", Current: ptr(42)},
		rules.Deviation{Type: "pv_plausibility", Title: "PV Nord ungewöhnlich hoch"},
	)

	if out[0].Reason != "Current value: 42" {
		t.Fatalf("reason = %q", out[0].Reason)
	}
	if out[1].Reason != "No comparison data available" {
		t.Fatalf("reason = %q", out[1].Reason)
	}
	if out[1].Title != "PV Nord ungewöhnlich hoch" {
		t.Fatalf("title lost: %+v", out[1])
	}
}

func TestBuildMetricPreferenceOrder(t *testing.T) {
	out := build(
		rules.Deviation{Metric: "m", ObjectID: "o", Type: "t"},
		rules.Deviation{ObjectID: "o", Type: "t"},
		rules.Deviation{Type: "t"},
		rules.Deviation{},
	)

	wants := []string{"m", "o", "t", "unknown"}
	for i, want := range wants {
		if out[i].LearningKey != want {
			t.Fatalf("action %d learningKey = %q, want %q", i, out[i].LearningKey, want)
		}
	}
}

func TestBuildIDsUniqueWithinCycle(t *testing.T) {
	out := build(
		rules.Deviation{Metric: "x"},
		rules.Deviation{Metric: "x"},
	)

	if out[0].ID == out[1].ID {
		t.Fatalf("same-metric same-millisecond ids must differ: %q", out[0].ID)
	}
}

func TestBuildDefaults(t *testing.T) {
	out := build(rules.Deviation{Type: "history"})

	a := out[0]
	if a.Category != "deviation" || a.Priority != "medium" || a.Title != "Abweichung erkannt" {
		t.Fatalf("defaults wrong: %+v", a)
	}
	if a.Description != "Der Wert von history weicht vom erwarteten Bereich ab." {
		t.Fatalf("description = %q", a.Description)
	}
	if !a.Timestamp.Equal(buildClock) {
		t.Fatalf("timestamp = %v", a.Timestamp)
	}
}
