package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"home-autopilot/internal/storage"
)

// Daily renders the daily summary message from the runs and actions of the
// report window. Runs are expected newest first, as returned by the store.
func Daily(now time.Time, runs []storage.RunRecord, actions []storage.ActionRecord) string {
	builder := strings.Builder{}
	builder.WriteString("[Tagesbericht Hausüberwachung]\n")
	builder.WriteString(fmt.Sprintf("Datum: %s\n\n", now.UTC().Format("2006-01-02")))

	if len(runs) == 0 {
		builder.WriteString("Keine Analysen im Berichtszeitraum.\n")
		return builder.String()
	}

	latest := runs[0]
	builder.WriteString("Letzte Messung:\n")
	builder.WriteString(fmt.Sprintf("  Hausverbrauch: %s W\n", formatWatt(latest.HouseConsumption)))
	builder.WriteString(fmt.Sprintf("  PV-Leistung: %s W\n", formatWatt(latest.PVPower)))
	builder.WriteString(fmt.Sprintf("  Netzleistung: %s W\n", formatWatt(latest.GridPower)))
	builder.WriteString(fmt.Sprintf("  Batterie: %s %% (%s)\n", formatPercent(latest.BatterySoc), batteryStateLabel(latest.BatteryState)))
	builder.WriteString("\n")

	deviations := 0
	errored := 0
	for _, run := range runs {
		deviations += run.DeviationCount
		if run.Status == storage.RunErrored {
			errored++
		}
	}

	builder.WriteString(fmt.Sprintf("Analysen: %d", len(runs)))
	if errored > 0 {
		builder.WriteString(fmt.Sprintf(" (%d fehlgeschlagen)", errored))
	}
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("Abweichungen: %d\n", deviations))
	builder.WriteString(fmt.Sprintf("Vorschläge: %d\n", len(actions)))

	open := make([]storage.ActionRecord, 0, len(actions))
	for _, action := range actions {
		if action.Status == "proposed" {
			open = append(open, action)
		}
	}
	if len(open) > 0 {
		builder.WriteString("\nOffene Vorschläge:\n")
		for _, action := range open {
			builder.WriteString(fmt.Sprintf("• [%s] %s\n", strings.ToUpper(action.Priority), action.Title))
		}
	}

	return builder.String()
}

func formatWatt(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return decimal.NewFromFloat(*v).StringFixed(0)
}

func formatPercent(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return decimal.NewFromFloat(*v).StringFixed(1)
}

func batteryStateLabel(state string) string {
	switch state {
	case "charging":
		return "lädt"
	case "discharging":
		return "entlädt"
	case "shutdown":
		return "abgeschaltet"
	case "idle":
		return "Leerlauf"
	default:
		if state == "" {
			return "unbekannt"
		}
		return state
	}
}
