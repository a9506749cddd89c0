package stats

import (
	"testing"
	"time"

	"home-autopilot/internal/history"
	"home-autopilot/internal/homeconfig"
	"home-autopilot/internal/live"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func pvSnapshot(raw map[string]any, pvPower *float64) *live.Snapshot {
	return &live.Snapshot{Raw: raw, PVPower: pvPower}
}

func ptr(v float64) *float64 { return &v }

func roleConfig() *homeconfig.Config {
	return &homeconfig.Config{DataPoints: []homeconfig.DataPoint{
		{ObjectID: "meter.house", Role: "energy.houseConsumption", Enabled: true},
		{ObjectID: "grid.raw", Role: "energy.gridPower", Enabled: true},
		{ObjectID: "bat.soc", Role: "energy.batterySoc", Enabled: true},
		{ObjectID: "bat.power", Role: "energy.batteryPower", Unit: "kW", Enabled: true},
		{ObjectID: "wallbox", Role: "energy.wallbox", Enabled: true},
		{ObjectID: "weather.temp", Role: "temperature.outside", Enabled: true},
		{ObjectID: "water.meter", Role: "water.total", Enabled: true},
		{ObjectID: "misc", Role: "unknown.role", Enabled: true},
	}}
}

func TestComputeRoleMappingAndUnits(t *testing.T) {
	snapshot := pvSnapshot(map[string]any{
		"meter.house":  2000.0,
		"grid.raw":     999.0,
		"bat.soc":      55.0,
		"bat.power":    -0.3, // kW
		"wallbox":      0.0,
		"weather.temp": 4.2,
		"water.meter":  118.0,
		"misc":         1.0,
	}, ptr(500.0))

	record := Compute(roleConfig(), snapshot, nil, testNow)

	if record.Energy.HouseConsumption == nil || *record.Energy.HouseConsumption != 2000 {
		t.Fatalf("houseConsumption = %v", record.Energy.HouseConsumption)
	}
	if record.Energy.BatteryPower == nil || *record.Energy.BatteryPower != -300 {
		t.Fatalf("kW battery power must be normalised to watts: %v", record.Energy.BatteryPower)
	}
	if record.Temperature.Outside == nil || *record.Temperature.Outside != 4.2 {
		t.Fatalf("outside = %v", record.Temperature.Outside)
	}
	if record.Water.Total == nil || *record.Water.Total != 118 {
		t.Fatalf("water total = %v", record.Water.Total)
	}
	if record.Energy.WallboxPower == nil || *record.Energy.WallboxPower != 0 {
		t.Fatalf("wallbox = %v", record.Energy.WallboxPower)
	}

	// grid = 2000 - 500 - (-300): the derivation overwrites the raw read
	if record.Energy.GridPower == nil || *record.Energy.GridPower != 1800 {
		t.Fatalf("gridPower = %v, want 1800", record.Energy.GridPower)
	}
}

func TestComputeGridDerivationRequiresHouseAndPV(t *testing.T) {
	snapshot := pvSnapshot(map[string]any{"grid.raw": 999.0}, nil)

	record := Compute(roleConfig(), snapshot, nil, testNow)

	if record.Energy.GridPower == nil || *record.Energy.GridPower != 999 {
		t.Fatalf("without house+pv the raw grid value must survive: %v", record.Energy.GridPower)
	}
}

func TestBatteryStateBoundaries(t *testing.T) {
	cases := []struct {
		soc, power *float64
		want       string
	}{
		{ptr(15), ptr(2), BatteryShutdown},
		{nil, ptr(11), BatteryDischarging},
		{nil, ptr(-11), BatteryCharging},
		{nil, ptr(0), BatteryIdle},
		{ptr(15), ptr(11), BatteryDischarging}, // soc low but power flowing
		{ptr(15), nil, BatteryIdle},
		{nil, nil, BatteryIdle},
	}

	for _, tc := range cases {
		if got := classifyBattery(tc.soc, tc.power); got != tc.want {
			t.Fatalf("classifyBattery(%v, %v) = %q, want %q", tc.soc, tc.power, got, tc.want)
		}
	}
}

func TestComputeHistorySummaries(t *testing.T) {
	base := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	data := history.Data{
		"b.point": {
			{Timestamp: base, Value: 10},
			{Timestamp: base.Add(time.Minute), Value: 30},
		},
		"a.point": {},
	}

	record := Compute(&homeconfig.Config{}, &live.Snapshot{Raw: map[string]any{}}, data, testNow)

	if len(record.Deviations) != 2 {
		t.Fatalf("expected one summary per series, got %d", len(record.Deviations))
	}
	if record.Deviations[0].ObjectID != "a.point" || record.Deviations[1].ObjectID != "b.point" {
		t.Fatalf("summaries must be ordered by objectId: %+v", record.Deviations)
	}
	if record.Deviations[0].Avg != nil {
		t.Fatalf("empty series must reduce to nil: %+v", record.Deviations[0])
	}
	if record.Deviations[1].Avg == nil || *record.Deviations[1].Avg != 20 {
		t.Fatalf("avg = %v, want 20", record.Deviations[1].Avg)
	}
	if record.Deviations[1].Last == nil || *record.Deviations[1].Last != 30 {
		t.Fatalf("last = %v, want 30", record.Deviations[1].Last)
	}
}

func TestComputeEmptyConfig(t *testing.T) {
	record := Compute(&homeconfig.Config{}, &live.Snapshot{Raw: map[string]any{}}, nil, testNow)

	if record.Energy.HouseConsumption != nil || record.Energy.PVPower != nil ||
		record.Energy.GridPower != nil || record.Energy.BatterySoc != nil ||
		record.Energy.BatteryPower != nil || record.Energy.WallboxPower != nil ||
		record.Temperature.Outside != nil || record.Water.Total != nil {
		t.Fatalf("all numeric fields must be nil: %+v", record)
	}
	if record.Energy.BatteryState != BatteryIdle {
		t.Fatalf("batteryState = %q, want idle", record.Energy.BatteryState)
	}
	if record.Timestamp != testNow {
		t.Fatalf("timestamp = %v", record.Timestamp)
	}
}
