package actions

import (
	"fmt"
	"strconv"
	"time"

	"home-autopilot/internal/homeconfig"
	"home-autopilot/internal/rules"
	"home-autopilot/internal/stats"
)

// Action lifecycle states. Everything beyond proposed is managed by the
// external approval workflow.
const (
	StatusProposed = "proposed"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Action is a user-facing, approvable suggestion synthesized from one
// deviation.
type Action struct {
	ID               string    `json:"id"`
	Category         string    `json:"category"`
	Type             string    `json:"type"`
	Priority         string    `json:"priority"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Reason           string    `json:"reason"`
	RequiresApproval bool      `json:"requiresApproval"`
	LearningKey      string    `json:"learningKey"`
	Timestamp        time.Time `json:"timestamp"`
	Status           string    `json:"status"`
}

// Build maps deviations to proposed actions. Ids carry the metric, the
// synthesis timestamp in milliseconds, and a per-cycle sequence number so two
// deviations for the same metric in the same millisecond stay distinct.
func Build(cfg *homeconfig.Config, record *stats.Record, deviations []rules.Deviation, now time.Time) []Action {
	out := make([]Action, 0, len(deviations))

	for seq, deviation := range deviations {
		metric := firstNonEmpty(deviation.Metric, deviation.ObjectID, deviation.Type, "unknown")

		category := deviation.Category
		if category == "" {
			category = "deviation"
		}

		priority := deviation.Severity
		if priority == "" {
			priority = "medium"
		}

		title := deviation.Title
		if title == "" {
			title = "Abweichung erkannt"
		}

		description := deviation.Message
		if description == "" {
			description = fmt.Sprintf("Der Wert von %s weicht vom erwarteten Bereich ab.", metric)
		}

		out = append(out, Action{
			ID:               fmt.Sprintf("%s-%d-%d", metric, now.UnixMilli(), seq),
			Category:         category,
			Type:             "suggestion",
			Priority:         priority,
			Title:            title,
			Description:      description,
			Reason:           buildReason(deviation.Current, reference(deviation)),
			RequiresApproval: true,
			LearningKey:      metric,
			Timestamp:        now.UTC(),
			Status:           StatusProposed,
		})
	}

	return out
}

// reference resolves the comparison value, preferring the history average
// over the fixed threshold.
func reference(deviation rules.Deviation) *float64 {
	if deviation.Average != nil {
		return deviation.Average
	}
	return deviation.Threshold
}

func buildReason(current, reference *float64) string {
	if current != nil && reference != nil {
		return fmt.Sprintf("Current %s, reference %s", formatNumber(*current), formatNumber(*reference))
	}
	if current != nil {
		return fmt.Sprintf("Current value: %s", formatNumber(*current))
	}
	return "No comparison data available"
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
