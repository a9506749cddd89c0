package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"home-autopilot/internal/analysis"
	"home-autopilot/internal/history"
	"home-autopilot/internal/homeconfig"
	"home-autopilot/internal/live"
	"home-autopilot/internal/source"
)

// Simulate feeds synthetic live values through a full cycle to exercise the
// rule set and, when configured, the alert channel.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	installation, err := a.loadInstallation()
	if err != nil {
		return err
	}

	notifier := a.newNotifier(installation)
	if a.Config.Alerting.Enabled && notifier == nil {
		return errors.New("alerting enabled but no notifier could be configured")
	}

	cfg := &homeconfig.Config{
		DataPoints: []homeconfig.DataPoint{
			{ObjectID: "energy.houseConsumption", Role: "energy.houseConsumption", Category: "energy", Enabled: true},
			{ObjectID: "energy.batterySoc", Role: "energy.batterySoc", Category: "energy", Enabled: true},
		},
		PVSources: []homeconfig.PVSource{
			{ObjectID: "energy.pv.simulated", Name: "Simuliert", Orientation: "south", Unit: "W"},
		},
	}

	values := &staticValueReader{values: map[string]any{
		"energy.houseConsumption": opts.HouseConsumption,
		"energy.batterySoc":       opts.BatterySoc,
		"energy.pv.simulated":     opts.PVPower,
	}}

	runner, err := analysis.NewRunner(analysis.Options{
		Config:      cfg,
		Live:        live.NewCollector(values, a.Logger),
		History:     history.NewCollector(&staticHistoryReader{}, a.Logger),
		Notifier:    asNotifier(notifier),
		MinPriority: a.Config.Alerting.MinPriority,
	}, a.Logger)
	if err != nil {
		return err
	}

	result, err := runner.RunCycle(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int("deviations", len(result.Deviations)).
		Int("actions", len(result.Actions)).
		Msg("simulation complete")
	logDeviations(a.Logger, result)
	return nil
}

func logDeviations(logger zerolog.Logger, result *analysis.Result) {
	for _, deviation := range result.Deviations {
		logger.Info().
			Str("type", deviation.Type).
			Str("severity", deviation.Severity).
			Str("title", deviation.Title).
			Msg("simulated deviation")
	}
}

type staticValueReader struct {
	values map[string]any
}

func (s *staticValueReader) ReadValue(_ context.Context, objectID string) (any, error) {
	if value, ok := s.values[objectID]; ok {
		return value, nil
	}
	return nil, errors.New("no simulated value")
}

type staticHistoryReader struct{}

func (s *staticHistoryReader) ReadHistory(context.Context, string, string, time.Duration, time.Duration) ([]source.Sample, error) {
	return nil, nil
}

var _ source.ValueReader = (*staticValueReader)(nil)
var _ source.HistoryReader = (*staticHistoryReader)(nil)
