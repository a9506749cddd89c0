package homeconfig

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestSanitizeDataPointsDedup(t *testing.T) {
	raw := map[string]any{
		"dataPoints": []any{
			map[string]any{"objectId": " a.b.c ", "role": "energy.houseConsumption", "enabled": true},
			map[string]any{"objectId": "a.b.c", "role": "shadow", "enabled": true},
			map[string]any{"objectId": "", "role": "dropped"},
			map[string]any{"objectId": 42, "role": "dropped"},
			nil,
			map[string]any{"objectId": "x.y", "enabled": "true"},
		},
	}

	cfg := Normalize(raw)

	if len(cfg.DataPoints) != 2 {
		t.Fatalf("expected 2 data points, got %d", len(cfg.DataPoints))
	}
	if cfg.DataPoints[0].ObjectID != "a.b.c" {
		t.Fatalf("objectId not trimmed: %q", cfg.DataPoints[0].ObjectID)
	}
	if cfg.DataPoints[0].Role != "energy.houseConsumption" {
		t.Fatalf("first occurrence should win, got role %q", cfg.DataPoints[0].Role)
	}
	if cfg.DataPoints[1].ObjectID != "x.y" || !cfg.DataPoints[1].Enabled {
		t.Fatalf("string \"true\" should enable: %+v", cfg.DataPoints[1])
	}
}

func TestNormalizeObjectIDFromObject(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"  plain  ", "plain"},
		{map[string]any{"id": "from-id"}, "from-id"},
		{map[string]any{"_id": "from-_id"}, "from-_id"},
		{map[string]any{"value": "from-value"}, "from-value"},
		{map[string]any{"id": "", "value": "fallback"}, "fallback"},
		{map[string]any{"id": float64(7)}, "7"},
		{true, ""},
		{nil, ""},
		{[]any{"nope"}, ""},
	}

	for _, tc := range cases {
		if got := NormalizeObjectID(tc.in); got != tc.want {
			t.Fatalf("NormalizeObjectID(%#v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeEnabled(t *testing.T) {
	truthy := []any{true, "true", "1", float64(1), 1}
	for _, v := range truthy {
		if !NormalizeEnabled(v) {
			t.Fatalf("%#v should be enabled", v)
		}
	}

	falsy := []any{false, "yes", "0", float64(2), nil, "TRUE"}
	for _, v := range falsy {
		if NormalizeEnabled(v) {
			t.Fatalf("%#v should be disabled", v)
		}
	}
}

func TestLegacyFallback(t *testing.T) {
	raw := map[string]any{
		"energy": map[string]any{
			"houseConsumption": "meter.house",
			"batterySoc":       "bat.soc",
		},
		"temperature": map[string]any{"outside": "weather.temp"},
		"water":       map[string]any{"total": "water.meter"},
		"consumers":   []any{map[string]any{"objectId": "plug.1", "name": "Spülmaschine"}},
		"rooms": []any{
			map[string]any{"temperature": "room.wz.temp", "heatingPower": "room.wz.heat", "name": "Wohnzimmer"},
		},
		"heaters":        []any{map[string]any{"objectId": "heat.1", "type": "Wärmepumpe"}},
		"windowContacts": []any{map[string]any{"objectId": "win.1"}},
		"leakSensors":    []any{map[string]any{"objectId": "leak.1"}},
		"pvSources": []any{
			map[string]any{"name": "Dach Süd", "orientation": "Süd", "objectId": "pv.south"},
		},
	}

	cfg := Normalize(raw)

	byID := make(map[string]DataPoint)
	for _, dp := range cfg.DataPoints {
		if !dp.Enabled {
			t.Fatalf("fallback point %s should be enabled", dp.ObjectID)
		}
		if dp.Role != dp.Category {
			t.Fatalf("fallback role must equal category: %+v", dp)
		}
		byID[dp.ObjectID] = dp
	}

	// house, soc, outside, total, consumer, room temp + heat, heater, window, leak
	if len(cfg.DataPoints) != 10 {
		t.Fatalf("expected 10 fallback points, got %d", len(cfg.DataPoints))
	}
	if byID["meter.house"].Description != "Hausverbrauch" {
		t.Fatalf("unexpected description: %+v", byID["meter.house"])
	}
	if byID["plug.1"].Role != "consumer.power" || byID["plug.1"].Description != "Spülmaschine" {
		t.Fatalf("consumer mapping wrong: %+v", byID["plug.1"])
	}
	if byID["room.wz.heat"].Role != "room.heating" {
		t.Fatalf("room heating mapping wrong: %+v", byID["room.wz.heat"])
	}

	// PV sources never enter the fallback list.
	if _, ok := byID["pv.south"]; ok {
		t.Fatal("pv source must not be synthesized into dataPoints")
	}
	if len(cfg.PVSources) != 1 || cfg.PVSources[0].ObjectID != "pv.south" {
		t.Fatalf("pv source missing: %+v", cfg.PVSources)
	}
	if cfg.PVSources[0].Unit != "W" {
		t.Fatalf("pv unit default wrong: %+v", cfg.PVSources[0])
	}
}

func TestExplicitListWinsOverLegacy(t *testing.T) {
	raw := map[string]any{
		"dataPoints": []any{
			map[string]any{"objectId": "explicit.1", "role": "energy.houseConsumption", "enabled": true},
		},
		"energy": map[string]any{"houseConsumption": "legacy.house"},
	}

	cfg := Normalize(raw)
	if len(cfg.DataPoints) != 1 || cfg.DataPoints[0].ObjectID != "explicit.1" {
		t.Fatalf("explicit list must win: %+v", cfg.DataPoints)
	}
}

func TestGPTEnabledFollowsKeyPresence(t *testing.T) {
	cfg := Normalize(map[string]any{
		"gpt": map[string]any{"enabled": false, "openaiApiKey": "sk-test"},
	})
	if !cfg.GPT.Enabled {
		t.Fatal("gpt must be enabled when a key is present")
	}
	if cfg.GPT.Model != "gpt-4o-mini" {
		t.Fatalf("model default wrong: %q", cfg.GPT.Model)
	}

	cfg = Normalize(map[string]any{
		"gpt": map[string]any{"enabled": true},
	})
	if cfg.GPT.Enabled {
		t.Fatal("gpt must stay disabled without a key")
	}
}

func TestTelegramRecipients(t *testing.T) {
	cfg := Normalize(map[string]any{
		"telegram": map[string]any{
			"enabled":  true,
			"instance": "telegram.0",
			"recipients": []any{
				" 12345 ",
				map[string]any{"chatId": "67890"},
				map[string]any{"id": float64(42)},
				map[string]any{"value": ""},
				map[string]any{"name": "no usable key"},
				nil,
			},
		},
	})

	if !cfg.Telegram.Enabled {
		t.Fatal("telegram should be enabled")
	}
	want := []string{"12345", "67890", "42"}
	if !reflect.DeepEqual(cfg.Telegram.Recipients, want) {
		t.Fatalf("recipients = %v, want %v", cfg.Telegram.Recipients, want)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	raw := map[string]any{
		"dataPoints": []any{
			map[string]any{"objectId": " a ", "role": "energy.houseConsumption", "category": "energy.houseConsumption", "enabled": "1", "unit": "W"},
			map[string]any{"objectId": "b", "enabled": true},
		},
		"pvSources": []any{map[string]any{"name": "Ost", "orientation": "Ost", "objectId": "pv.east"}},
		"telegram":  map[string]any{"enabled": true, "recipients": []any{"1"}},
		"gpt":       map[string]any{"openaiApiKey": "sk-x"},
		"history":   map[string]any{"instance": "influxdb.0"},
	}

	first := Normalize(raw)

	encoded, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var roundTrip map[string]any
	if err := json.Unmarshal(encoded, &roundTrip); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	second := Normalize(roundTrip)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("normalize not idempotent:\nfirst:  %s\nsecond: %s", a, b)
	}
}

func TestEnabledDataPoints(t *testing.T) {
	cfg := &Config{DataPoints: []DataPoint{
		{ObjectID: "a", Enabled: true},
		{ObjectID: "b", Enabled: false},
		{ObjectID: "c", Enabled: true},
	}}
	enabled := cfg.EnabledDataPoints()
	if len(enabled) != 2 || enabled[0].ObjectID != "a" || enabled[1].ObjectID != "c" {
		t.Fatalf("unexpected enabled points: %+v", enabled)
	}
}
