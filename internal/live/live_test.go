package live

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"home-autopilot/internal/homeconfig"
)

type fakeReader struct {
	values map[string]any
	errors map[string]error
}

func (f *fakeReader) ReadValue(_ context.Context, objectID string) (any, error) {
	if err, ok := f.errors[objectID]; ok {
		return nil, err
	}
	return f.values[objectID], nil
}

func testConfig() *homeconfig.Config {
	return &homeconfig.Config{
		DataPoints: []homeconfig.DataPoint{
			{ObjectID: "meter.house", Role: "energy.houseConsumption", Category: "energy.houseConsumption", Enabled: true},
			{ObjectID: "weather.temp", Role: "temperature.outside", Category: "temperature.outside", Enabled: true},
			{ObjectID: "water.meter", Role: "water.total", Category: "water.total", Enabled: true},
			{ObjectID: "leak.cellar", Category: "leak", Enabled: true},
			{ObjectID: "room.wz", Category: "room", Enabled: true},
			{ObjectID: "off.point", Category: "energy.x", Enabled: false},
		},
		PVSources: []homeconfig.PVSource{
			{Name: "Dach Süd", Orientation: "Süd", ObjectID: "pv.south", Unit: "W"},
			{Name: "Dach Ost", Orientation: "Ost", ObjectID: "pv.east", Unit: "W"},
		},
	}
}

func TestCollectBucketsAndRaw(t *testing.T) {
	reader := &fakeReader{values: map[string]any{
		"meter.house":  1200.0,
		"weather.temp": 7.5,
		"water.meter":  321.0,
		"leak.cellar":  false,
		"room.wz":      21.5,
		"pv.south":     800.0,
		"pv.east":      200.0,
	}}

	snapshot := NewCollector(reader, zerolog.Nop()).Collect(context.Background(), testConfig())

	if len(snapshot.Raw) != 7 {
		t.Fatalf("raw should hold every enabled point and pv source, got %d", len(snapshot.Raw))
	}
	if _, ok := snapshot.Raw["off.point"]; ok {
		t.Fatal("disabled point must not be read")
	}
	if snapshot.Energy["energy.houseConsumption"].Value != 1200.0 {
		t.Fatalf("energy bucket wrong: %+v", snapshot.Energy)
	}
	if snapshot.Temperature["temperature.outside"].Value != 7.5 {
		t.Fatalf("temperature bucket wrong: %+v", snapshot.Temperature)
	}
	if snapshot.Water["water.total"].Value != 321.0 {
		t.Fatalf("water bucket wrong: %+v", snapshot.Water)
	}
	if len(snapshot.Leaks) != 1 || snapshot.Leaks[0].ObjectID != "leak.cellar" {
		t.Fatalf("leak bucket wrong: %+v", snapshot.Leaks)
	}
	if len(snapshot.Rooms) != 1 {
		t.Fatalf("room bucket wrong: %+v", snapshot.Rooms)
	}

	if snapshot.PVPower == nil || *snapshot.PVPower != 1000 {
		t.Fatalf("pv total wrong: %+v", snapshot.PVPower)
	}
	if len(snapshot.PVSources) != 2 || snapshot.PVSources[0].Orientation != "Süd" {
		t.Fatalf("pv details wrong: %+v", snapshot.PVSources)
	}
}

func TestCollectReadFailureDegradesToNil(t *testing.T) {
	reader := &fakeReader{
		values: map[string]any{"weather.temp": 7.5, "pv.south": 500.0, "pv.east": 100.0},
		errors: map[string]error{"meter.house": errors.New("boom")},
	}

	snapshot := NewCollector(reader, zerolog.Nop()).Collect(context.Background(), testConfig())

	value, present := snapshot.Raw["meter.house"]
	if !present || value != nil {
		t.Fatalf("failed read must resolve to nil in raw, got %#v (present=%v)", value, present)
	}
	if _, ok := snapshot.Energy["energy.houseConsumption"]; ok {
		t.Fatal("failed read must not populate the category bucket")
	}
	if snapshot.ReadFailures != 1 {
		t.Fatalf("read failures = %d, want 1", snapshot.ReadFailures)
	}
	// remaining points still collected
	if snapshot.Temperature["temperature.outside"].Value != 7.5 {
		t.Fatal("failure must not abort the batch")
	}
}

func TestCollectPVNoValidSources(t *testing.T) {
	reader := &fakeReader{values: map[string]any{
		"pv.south": "offline",
		"pv.east":  nil,
	}}

	snapshot := NewCollector(reader, zerolog.Nop()).Collect(context.Background(), testConfig())

	if snapshot.PVPower != nil {
		t.Fatalf("pv total must be nil without valid sources, got %v", *snapshot.PVPower)
	}
	if len(snapshot.PVSources) != 0 {
		t.Fatalf("no pv details expected: %+v", snapshot.PVSources)
	}
}
