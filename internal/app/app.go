package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"home-autopilot/internal/alerting"
	"home-autopilot/internal/analysis"
	"home-autopilot/internal/config"
	"home-autopilot/internal/gpt"
	"home-autopilot/internal/history"
	"home-autopilot/internal/homeconfig"
	"home-autopilot/internal/live"
	"home-autopilot/internal/metrics"
	"home-autopilot/internal/report"
	"home-autopilot/internal/scheduler"
	"home-autopilot/internal/source"
	"home-autopilot/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// loadInstallation reads and normalises the installation document.
func (a *App) loadInstallation() (*homeconfig.Config, error) {
	raw, err := homeconfig.Load(a.Config.Installation.Path)
	if err != nil {
		return nil, fmt.Errorf("load installation config: %w", err)
	}
	return homeconfig.Normalize(raw), nil
}

func (a *App) newSourceClient() *source.Client {
	return source.NewClient(source.Options{
		BaseURL:   a.Config.Source.BaseURL,
		Timeout:   a.Config.Source.RequestTimeout,
		UserAgent: a.Config.Source.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier(installation *homeconfig.Config) *alerting.TelegramNotifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	if !installation.Telegram.Enabled || len(installation.Telegram.Recipients) == 0 {
		a.Logger.Warn().Msg("alerting enabled but no telegram recipients configured")
		return nil
	}
	cfg := a.Config.Alerting.Telegram
	return alerting.NewTelegramNotifier(cfg.BotToken, installation.Telegram.Recipients, cfg.APIBase, cfg.RequestTimeout, a.Logger)
}

func (a *App) newEnricher(installation *homeconfig.Config) gpt.Enricher {
	if !installation.GPT.Enabled {
		return nil
	}
	client, err := gpt.NewClient(gpt.Options{
		APIKey:  installation.GPT.OpenAIAPIKey,
		APIBase: a.Config.GPT.APIBase,
		Model:   installation.GPT.Model,
		Timeout: a.Config.GPT.RequestTimeout,
	}, a.Logger)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("gpt enrichment disabled")
		return nil
	}
	return client
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newRunner(installation *homeconfig.Config, store *storage.Store, notifier alerting.Notifier) (*analysis.Runner, error) {
	client := a.newSourceClient()

	opts := analysis.Options{
		Config:      installation,
		Live:        live.NewCollector(client, a.Logger),
		History:     history.NewCollector(client, a.Logger),
		Enricher:    a.newEnricher(installation),
		Notifier:    notifier,
		LockKey:     a.Config.Scheduler.AdvisoryLockKey,
		MinPriority: a.Config.Alerting.MinPriority,
	}
	if store != nil {
		opts.RunStore = store
		opts.ActionStore = store
		opts.Locker = store
	}

	return analysis.NewRunner(opts, a.Logger)
}

// Run executes the long-running analysis service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	installation, err := a.loadInstallation()
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	notifier := a.newNotifier(installation)
	runner, err := a.newRunner(installation, store, asNotifier(notifier))
	if err != nil {
		return err
	}

	if a.Config.Metrics.Enabled {
		metrics.Init()
		go func() {
			if err := metrics.Serve(ctx, a.Config.Metrics.ListenAddr, a.Logger); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error().Err(err).Msg("metrics listener terminated")
			}
		}()
	}

	var window *scheduler.ReportWindow
	if installation.Scheduler.Enabled {
		window, err = scheduler.NewReportWindow(installation.Scheduler.Time, installation.Scheduler.Days, installation.Scheduler.Timezone)
		if err != nil {
			return fmt.Errorf("configure report window: %w", err)
		}
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	a.Logger.Info().Msg("starting analysis service")
	err = sched.Run(ctx, func(tickCtx context.Context, bucket time.Time) error {
		if _, runErr := runner.RunCycle(tickCtx, bucket); runErr != nil && !errors.Is(runErr, analysis.ErrCycleInFlight) {
			return runErr
		}
		a.maybeSendDailyReport(tickCtx, window, store, notifier, bucket)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("analysis service stopped")
	return nil
}

func (a *App) maybeSendDailyReport(ctx context.Context, window *scheduler.ReportWindow, store *storage.Store, sender *alerting.TelegramNotifier, now time.Time) {
	if window == nil || store == nil || sender == nil || !window.Due(now) {
		return
	}

	runs, err := store.ListRunsBetween(ctx, now.Add(-24*time.Hour), now)
	if err != nil {
		a.Logger.Error().Err(err).Msg("daily report query failed")
		return
	}
	// Newest first for the headline section.
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	actions, err := store.ListRecentActions(ctx, 50)
	if err != nil {
		a.Logger.Error().Err(err).Msg("daily report action query failed")
		return
	}

	text := report.Daily(now, runs, actions)
	if err := sender.SendText(ctx, text); err != nil {
		a.Logger.Error().Err(err).Msg("daily report dispatch failed")
		return
	}
	window.MarkSent(now)
	a.Logger.Info().Msg("daily report sent")
}

// asNotifier avoids handing a typed nil pointer to an interface field.
func asNotifier(n *alerting.TelegramNotifier) alerting.Notifier {
	if n == nil {
		return nil
	}
	return n
}

// ExportOptions hold parameters for exporting historical runs.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit   int
	Actions bool
}

// SimulateOptions feed a synthetic cycle through the pipeline.
type SimulateOptions struct {
	HouseConsumption float64
	PVPower          float64
	BatterySoc       float64
}
