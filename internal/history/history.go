package history

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"home-autopilot/internal/homeconfig"
	"home-autopilot/internal/source"
)

// Data maps objectId to its retrieved sample series. It is rebuilt from
// scratch every analysis cycle, never cached across runs.
type Data map[string][]source.Sample

// Summary reduces one series to its headline statistics. All fields are nil
// for an empty series.
type Summary struct {
	Avg  *float64 `json:"avg"`
	Min  *float64 `json:"min"`
	Max  *float64 `json:"max"`
	Last *float64 `json:"last"`
}

// Collector retrieves recent samples for the configured data points.
type Collector struct {
	reader source.HistoryReader
	logger zerolog.Logger
}

// NewCollector constructs a history collector.
func NewCollector(reader source.HistoryReader, logger zerolog.Logger) *Collector {
	return &Collector{
		reader: reader,
		logger: logger.With().Str("component", "history_collector").Logger(),
	}
}

// Collect loads series for every configured history point. A failed read is
// logged and yields an empty series; it never blocks the other points.
func (c *Collector) Collect(ctx context.Context, cfg *homeconfig.Config) Data {
	data := Data{}

	for _, adapter := range cfg.History.Adapters {
		if !adapter.Enabled || adapter.Instance == "" {
			continue
		}

		for _, id := range adapterPointIDs(adapter, cfg) {
			if existing, ok := data[id]; ok && len(existing) > 0 {
				continue
			}

			series, err := c.reader.ReadHistory(ctx, adapter.Instance, id, adapter.Window, adapter.Step)
			if err != nil {
				c.logger.Warn().Err(err).
					Str("adapter", adapter.Name).
					Str("object_id", id).
					Msg("history read failed")
				data[id] = nil
				continue
			}
			data[id] = series
		}
	}

	return data
}

// adapterPointIDs resolves the series an adapter should load: its explicit
// point list, or all enabled data points when none is configured.
func adapterPointIDs(adapter homeconfig.HistoryAdapter, cfg *homeconfig.Config) []string {
	if len(adapter.Points) > 0 {
		ids := make([]string, 0, len(adapter.Points))
		for _, p := range adapter.Points {
			if p.ID != "" {
				ids = append(ids, p.ID)
			}
		}
		return ids
	}

	points := cfg.EnabledDataPoints()
	ids := make([]string, 0, len(points))
	for _, dp := range points {
		ids = append(ids, dp.ObjectID)
	}
	return ids
}

// Summarize reduces every series in the data set.
func Summarize(data Data) map[string]Summary {
	summaries := make(map[string]Summary, len(data))
	for id, series := range data {
		summaries[id] = Summary{
			Avg:  Average(series),
			Min:  Minimum(series),
			Max:  Maximum(series),
			Last: Last(series),
		}
	}
	return summaries
}

// Average returns the mean of the finite sample values, nil when none exist.
func Average(series []source.Sample) *float64 {
	sum := 0.0
	count := 0
	for _, s := range series {
		if !finite(s.Value) {
			continue
		}
		sum += s.Value
		count++
	}
	if count == 0 {
		return nil
	}
	avg := sum / float64(count)
	return &avg
}

// Minimum returns the smallest finite sample value, nil when none exist.
func Minimum(series []source.Sample) *float64 {
	var min float64
	found := false
	for _, s := range series {
		if !finite(s.Value) {
			continue
		}
		if !found || s.Value < min {
			min = s.Value
			found = true
		}
	}
	if !found {
		return nil
	}
	return &min
}

// Maximum returns the largest finite sample value, nil when none exist.
func Maximum(series []source.Sample) *float64 {
	var max float64
	found := false
	for _, s := range series {
		if !finite(s.Value) {
			continue
		}
		if !found || s.Value > max {
			max = s.Value
			found = true
		}
	}
	if !found {
		return nil
	}
	return &max
}

// Last returns the most recent finite sample value, nil when none exist.
func Last(series []source.Sample) *float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if finite(series[i].Value) {
			value := series[i].Value
			return &value
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
