package rules

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"home-autopilot/internal/history"
	"home-autopilot/internal/homeconfig"
	"home-autopilot/internal/live"
	"home-autopilot/internal/stats"
)

// Deviation origins.
const (
	TypePVPlausibility = "pv_plausibility"
	TypeHistory        = "history"
)

// Severities, also used as action priorities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityMedium  = "medium"
	SeverityHigh    = "high"
)

// Thresholds of the fixed live rules.
const (
	HouseConsumptionLimit = 3000.0
	BatterySocLimit       = 20.0
	pvSignalFloor         = 300.0
)

// PVDetails carries the orientation-grouped power behind a PV deviation.
type PVDetails struct {
	East       float64 `json:"east"`
	South      float64 `json:"south"`
	West       float64 `json:"west"`
	North      float64 `json:"north"`
	TimeWindow string  `json:"timeWindow"`
}

// Deviation is an interpreted anomaly. Which fields are set depends on the
// originating rule; every variant carries enough data for the action
// synthesizer to build a readable action without further lookups.
type Deviation struct {
	Type      string     `json:"type,omitempty"`
	ObjectID  string     `json:"objectId,omitempty"`
	Metric    string     `json:"metric,omitempty"`
	Category  string     `json:"category"`
	Severity  string     `json:"severity"`
	Title     string     `json:"title,omitempty"`
	Message   string     `json:"message"`
	Current   *float64   `json:"current,omitempty"`
	Threshold *float64   `json:"threshold,omitempty"`
	Average   *float64   `json:"average,omitempty"`
	Delta     *float64   `json:"delta,omitempty"`
	Details   *PVDetails `json:"details,omitempty"`
}

// Detect evaluates all rule categories against the cycle's inputs. The
// output order is fixed: PV plausibility, fixed thresholds, history
// deviations. Rules are pure; a rule whose inputs are absent does not fire.
func Detect(cfg *homeconfig.Config, snapshot *live.Snapshot, data history.Data, record *stats.Record, now time.Time) []Deviation {
	deviations := []Deviation{}

	deviations = append(deviations, detectPVPlausibility(snapshot, now)...)
	deviations = append(deviations, detectThresholds(record)...)
	deviations = append(deviations, detectHistoryDeviations(cfg, snapshot, data)...)

	return deviations
}

func detectPVPlausibility(snapshot *live.Snapshot, now time.Time) []Deviation {
	var deviations []Deviation

	if snapshot == nil || len(snapshot.PVSources) < 2 {
		return deviations
	}

	grouped := GroupByOrientation(snapshot.PVSources)
	window := TimeWindow(now)

	east, south, west, north := grouped.East, grouped.South, grouped.West, grouped.North
	total := east + south + west + north
	if total <= pvSignalFloor {
		// too little production for the directional ratios to mean anything
		return deviations
	}

	details := &PVDetails{East: east, South: south, West: west, North: north, TimeWindow: window}

	if window == WindowMidday && south < max(east, west)*0.7 {
		deviations = append(deviations, Deviation{
			Type:     TypePVPlausibility,
			Category: "energy",
			Severity: SeverityWarning,
			Title:    "PV-Ausrichtung mittags ungewöhnlich",
			Message:  "Zur Mittagszeit ist die Leistung der südlich ausgerichteten PV-Anlagen im Verhältnis zu Ost/West ungewöhnlich niedrig.",
			Details:  details,
		})
	}

	if window == WindowMorning && east < south*0.5 {
		deviations = append(deviations, Deviation{
			Type:     TypePVPlausibility,
			Category: "energy",
			Severity: SeverityInfo,
			Title:    "PV Ost liefert morgens wenig",
			Message:  "Am Vormittag ist die Leistung der ostseitigen PV-Anlagen ungewöhnlich niedrig.",
			Details:  details,
		})
	}

	if window == WindowAfternoon && west < south*0.5 {
		deviations = append(deviations, Deviation{
			Type:     TypePVPlausibility,
			Category: "energy",
			Severity: SeverityInfo,
			Title:    "PV West liefert nachmittags wenig",
			Message:  "Am Nachmittag ist die Leistung der westseitigen PV-Anlagen ungewöhnlich niedrig.",
			Details:  details,
		})
	}

	// checked in every time window
	if north > south*0.8 {
		deviations = append(deviations, Deviation{
			Type:     TypePVPlausibility,
			Category: "energy",
			Severity: SeverityInfo,
			Title:    "PV Nord ungewöhnlich hoch",
			Message:  "Die nordseitige PV-Leistung ist im Verhältnis zur Südseite ungewöhnlich hoch.",
			Details:  details,
		})
	}

	return deviations
}

func detectThresholds(record *stats.Record) []Deviation {
	var deviations []Deviation
	if record == nil {
		return deviations
	}

	if house := record.Energy.HouseConsumption; house != nil && *house > HouseConsumptionLimit {
		deviations = append(deviations, Deviation{
			ObjectID:  "energy.houseConsumption",
			Metric:    "houseConsumption",
			Category:  "energy",
			Severity:  SeverityMedium,
			Message:   fmt.Sprintf("Hoher Hausverbrauch (%.0f W)", *house),
			Current:   clone(*house),
			Threshold: clone(HouseConsumptionLimit),
		})
	}

	if soc := record.Energy.BatterySoc; soc != nil && *soc < BatterySocLimit {
		deviations = append(deviations, Deviation{
			ObjectID:  "energy.batterySoc",
			Metric:    "batterySoc",
			Category:  "energy",
			Severity:  SeverityHigh,
			Message:   fmt.Sprintf("Batterie-Ladestand niedrig (%s %%)", formatNumber(*soc)),
			Current:   clone(*soc),
			Threshold: clone(BatterySocLimit),
		})
	}

	return deviations
}

func detectHistoryDeviations(cfg *homeconfig.Config, snapshot *live.Snapshot, data history.Data) []Deviation {
	var deviations []Deviation
	if cfg == nil || snapshot == nil {
		return deviations
	}

	for _, dp := range cfg.DataPoints {
		if !dp.Enabled {
			continue
		}

		series := data[dp.ObjectID]
		if len(series) == 0 {
			continue
		}

		avg := history.Average(series)
		current, ok := finiteNumber(snapshot.Raw[dp.ObjectID])
		if avg == nil || !ok {
			continue
		}

		diff := current - *avg
		if abs(diff) <= abs(*avg)*0.3 {
			continue
		}

		category := dp.Category
		if category == "" {
			category = "other"
		}

		deviations = append(deviations, Deviation{
			Type:     TypeHistory,
			Category: category,
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("Abweichung von Historie bei %s", dp.ObjectID),
			Current:  clone(current),
			Average:  clone(*avg),
			Delta:    clone(diff),
		})
	}

	return deviations
}

func clone(v float64) *float64 {
	return &v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
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
	if math.IsNaN(num) || math.IsInf(num, 0) {
		return 0, false
	}
	return num, true
}
