package live

import (
	"context"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"home-autopilot/internal/homeconfig"
	"home-autopilot/internal/source"
)

// Reading is the categorized payload of one data point.
type Reading struct {
	ObjectID    string `json:"objectId"`
	Category    string `json:"category"`
	Value       any    `json:"value"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
}

// PVDetail retains one PV source's orientation-tagged reading.
type PVDetail struct {
	Name        string  `json:"name"`
	Orientation string  `json:"orientation"`
	Value       float64 `json:"value"`
	Unit        string  `json:"unit"`
}

// Snapshot is the categorized current state of the installation. Raw holds
// every resolved value keyed by objectId and is the canonical lookup table
// for the later pipeline stages.
type Snapshot struct {
	Energy      map[string]Reading `json:"energy"`
	Temperature map[string]Reading `json:"temperature"`
	Water       map[string]Reading `json:"water"`
	Leaks       []Reading          `json:"leaks"`
	Rooms       []Reading          `json:"rooms"`
	Raw         map[string]any     `json:"raw"`

	// Aggregated PV power: sum over sources with a finite value, nil when no
	// source delivered one. Absence of data must not read as zero output.
	PVPower   *float64   `json:"pvPower"`
	PVSources []PVDetail `json:"pvSources"`

	ReadFailures int `json:"-"`
}

// Collector resolves current values for every enabled data point.
type Collector struct {
	reader source.ValueReader
	logger zerolog.Logger
}

// NewCollector constructs a live context collector.
func NewCollector(reader source.ValueReader, logger zerolog.Logger) *Collector {
	return &Collector{
		reader: reader,
		logger: logger.With().Str("component", "live_collector").Logger(),
	}
}

// Collect reads all enabled data points and PV sources. A failed read
// resolves to nil and never aborts the batch.
func (c *Collector) Collect(ctx context.Context, cfg *homeconfig.Config) *Snapshot {
	snapshot := &Snapshot{
		Energy:      map[string]Reading{},
		Temperature: map[string]Reading{},
		Water:       map[string]Reading{},
		Leaks:       []Reading{},
		Rooms:       []Reading{},
		Raw:         map[string]any{},
	}

	for _, dp := range cfg.DataPoints {
		if !dp.Enabled || dp.ObjectID == "" {
			continue
		}

		value, err := c.readValue(ctx, dp.ObjectID)
		snapshot.Raw[dp.ObjectID] = value
		if err != nil {
			snapshot.ReadFailures++
			continue
		}

		reading := Reading{
			ObjectID:    dp.ObjectID,
			Category:    dp.Category,
			Value:       value,
			Unit:        dp.Unit,
			Description: dp.Description,
		}

		switch {
		case strings.HasPrefix(dp.Category, "energy"):
			snapshot.Energy[dp.Category] = reading
		case strings.HasPrefix(dp.Category, "temperature"):
			snapshot.Temperature[dp.Category] = reading
		case strings.HasPrefix(dp.Category, "water"):
			snapshot.Water[dp.Category] = reading
		case dp.Category == "leak":
			snapshot.Leaks = append(snapshot.Leaks, reading)
		case dp.Category == "room":
			snapshot.Rooms = append(snapshot.Rooms, reading)
		}
	}

	for _, src := range cfg.PVSources {
		if src.ObjectID == "" {
			continue
		}
		value, err := c.readValue(ctx, src.ObjectID)
		snapshot.Raw[src.ObjectID] = value
		if err != nil {
			snapshot.ReadFailures++
		}
	}

	c.aggregatePV(cfg, snapshot)

	return snapshot
}

func (c *Collector) readValue(ctx context.Context, objectID string) (any, error) {
	value, err := c.reader.ReadValue(ctx, objectID)
	if err != nil {
		c.logger.Warn().Err(err).Str("object_id", objectID).Msg("state read failed")
		return nil, err
	}
	return value, nil
}

func (c *Collector) aggregatePV(cfg *homeconfig.Config, snapshot *Snapshot) {
	var total float64
	valid := 0
	details := make([]PVDetail, 0, len(cfg.PVSources))

	for _, src := range cfg.PVSources {
		if src.ObjectID == "" {
			continue
		}

		value, ok := finiteNumber(snapshot.Raw[src.ObjectID])
		if !ok {
			continue
		}

		total += value
		valid++

		name := src.Name
		if name == "" {
			name = src.ObjectID
		}
		orientation := src.Orientation
		if orientation == "" {
			orientation = "unknown"
		}
		unit := src.Unit
		if unit == "" {
			unit = "W"
		}

		details = append(details, PVDetail{
			Name:        name,
			Orientation: orientation,
			Value:       value,
			Unit:        unit,
		})
	}

	if valid > 0 {
		snapshot.PVPower = &total
	}
	snapshot.PVSources = details
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
