package stats

import (
	"math"
	"sort"
	"strings"
	"time"

	"home-autopilot/internal/history"
	"home-autopilot/internal/homeconfig"
	"home-autopilot/internal/live"
)

// Battery states derived from SOC and power.
const (
	BatteryShutdown    = "shutdown"
	BatteryDischarging = "discharging"
	BatteryCharging    = "charging"
	BatteryIdle        = "idle"
)

// EnergyStats holds the derived energy metrics in watts (SOC in percent).
type EnergyStats struct {
	HouseConsumption *float64 `json:"houseConsumption"`
	PVPower          *float64 `json:"pvPower"`
	GridPower        *float64 `json:"gridPower"`
	BatterySoc       *float64 `json:"batterySoc"`
	BatteryPower     *float64 `json:"batteryPower"`
	BatteryState     string   `json:"batteryState"`
	WallboxPower     *float64 `json:"wallboxPower"`
}

// TemperatureStats holds the derived temperature metrics.
type TemperatureStats struct {
	Outside *float64 `json:"outside"`
}

// WaterStats holds the derived water metrics.
type WaterStats struct {
	Total *float64 `json:"total"`
}

// ObjectSummary is the raw history summary of one data point, distinct from
// the rule engine's interpreted deviations.
type ObjectSummary struct {
	ObjectID string   `json:"objectId"`
	Avg      *float64 `json:"avg"`
	Min      *float64 `json:"min"`
	Max      *float64 `json:"max"`
	Last     *float64 `json:"last"`
}

// Record is the derived-metrics output of one analysis cycle.
type Record struct {
	Timestamp   time.Time        `json:"timestamp"`
	Energy      EnergyStats      `json:"energy"`
	Temperature TemperatureStats `json:"temperature"`
	Water       WaterStats       `json:"water"`
	Deviations  []ObjectSummary  `json:"deviations"`
}

// Compute combines the live snapshot and history data into a single derived
// metrics record. It is a pure function of its inputs.
func Compute(cfg *homeconfig.Config, snapshot *live.Snapshot, data history.Data, now time.Time) *Record {
	record := &Record{
		Timestamp:  now.UTC(),
		Energy:     EnergyStats{BatteryState: BatteryIdle},
		Deviations: []ObjectSummary{},
	}

	if cfg != nil && snapshot != nil {
		applyRoles(cfg, snapshot, record)
	}

	if snapshot != nil && snapshot.PVPower != nil && finite(*snapshot.PVPower) {
		record.Energy.PVPower = cloneFloat(*snapshot.PVPower)
	}

	deriveGridPower(record)
	record.Energy.BatteryState = classifyBattery(record.Energy.BatterySoc, record.Energy.BatteryPower)

	ids := make([]string, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		series := data[id]
		record.Deviations = append(record.Deviations, ObjectSummary{
			ObjectID: id,
			Avg:      history.Average(series),
			Min:      history.Minimum(series),
			Max:      history.Maximum(series),
			Last:     history.Last(series),
		})
	}

	return record
}

func applyRoles(cfg *homeconfig.Config, snapshot *live.Snapshot, record *Record) {
	for _, dp := range cfg.DataPoints {
		value, ok := finiteNumber(snapshot.Raw[dp.ObjectID])
		if !ok {
			continue
		}

		switch dp.Role {
		case "energy.houseConsumption":
			record.Energy.HouseConsumption = cloneFloat(value)
		case "energy.gridPower":
			record.Energy.GridPower = cloneFloat(value)
		case "energy.batterySoc":
			record.Energy.BatterySoc = cloneFloat(value)
		case "energy.wallbox":
			record.Energy.WallboxPower = cloneFloat(value)
		case "temperature.outside":
			record.Temperature.Outside = cloneFloat(value)
		case "water.total":
			record.Water.Total = cloneFloat(value)
		case "energy.batteryPower":
			// battery power is normalised to watts before any use
			if strings.EqualFold(dp.Unit, "kw") {
				value *= 1000
			}
			record.Energy.BatteryPower = cloneFloat(value)
		}
	}
}

// deriveGridPower overwrites any raw-read grid power with
// houseConsumption - pvPower - batteryPower when consumption and PV are both
// known. An unknown battery counts as zero.
func deriveGridPower(record *Record) {
	house := record.Energy.HouseConsumption
	pv := record.Energy.PVPower
	if house == nil || pv == nil {
		return
	}

	battery := 0.0
	if record.Energy.BatteryPower != nil {
		battery = *record.Energy.BatteryPower
	}

	record.Energy.GridPower = cloneFloat(*house - *pv - battery)
}

// classifyBattery evaluates the battery state machine in priority order;
// the first matching state wins.
func classifyBattery(soc, power *float64) string {
	if soc != nil && *soc < 20 && power != nil && math.Abs(*power) < 5 {
		// SOC critical with no flow: the BMS has most likely disconnected
		return BatteryShutdown
	}
	if power != nil && *power > 10 {
		return BatteryDischarging
	}
	if power != nil && *power < -10 {
		return BatteryCharging
	}
	return BatteryIdle
}

func cloneFloat(v float64) *float64 {
	return &v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteNumber(value any) (float64, bool) {
	var num float64
	switch v := value.(type) {
	case float64:
		num = v
	case float32:
		num = float64(v)
	case int:
		num = float64(v)
	case int64:
		num = float64(v)
	default:
		return 0, false
	}
	if !finite(num) {
		return 0, false
	}
	return num, true
}
