package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"home-autopilot/internal/actions"
	"home-autopilot/internal/alerting"
	"home-autopilot/internal/gpt"
	"home-autopilot/internal/history"
	"home-autopilot/internal/homeconfig"
	"home-autopilot/internal/live"
	"home-autopilot/internal/metrics"
	"home-autopilot/internal/rules"
	"home-autopilot/internal/stats"
	"home-autopilot/internal/storage"
)

// ErrCycleInFlight indicates a trigger arrived while a cycle was running.
var ErrCycleInFlight = errors.New("analysis: cycle already in flight")

// Result captures the outcome of one analysis cycle.
type Result struct {
	StartedAt  time.Time
	Snapshot   *live.Snapshot
	History    history.Data
	Record     *stats.Record
	Deviations []rules.Deviation
	Actions    []actions.Action
	RunID      *int64
	Status     string
	Err        error
}

// Runner orchestrates one full pipeline cycle: normalise configuration,
// collect live and history data, compute statistics, detect deviations,
// synthesise actions, then enrich, notify, and persist.
type Runner struct {
	cfg         *homeconfig.Config
	liveCol     *live.Collector
	historyCol  *history.Collector
	enricher    gpt.Enricher
	notifier    alerting.Notifier
	runStore    storage.RunStore
	actionStore storage.ActionStore
	locker      storage.AdvisoryLocker
	lockKey     int64
	minPriority string
	logger      zerolog.Logger

	running atomic.Bool
}

// Options wire the runner's collaborators. Store, notifier, and enricher are
// optional; the pipeline degrades to computing and logging without them.
type Options struct {
	Config      *homeconfig.Config
	Live        *live.Collector
	History     *history.Collector
	Enricher    gpt.Enricher
	Notifier    alerting.Notifier
	RunStore    storage.RunStore
	ActionStore storage.ActionStore
	Locker      storage.AdvisoryLocker
	LockKey     int64
	MinPriority string
}

// NewRunner constructs the pipeline orchestrator.
func NewRunner(opts Options, logger zerolog.Logger) (*Runner, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("installation config is required")
	}
	if opts.Live == nil {
		return nil, fmt.Errorf("live collector is required")
	}
	if opts.History == nil {
		return nil, fmt.Errorf("history collector is required")
	}
	minPriority := opts.MinPriority
	if minPriority == "" {
		minPriority = "high"
	}

	return &Runner{
		cfg:         opts.Config,
		liveCol:     opts.Live,
		historyCol:  opts.History,
		enricher:    opts.Enricher,
		notifier:    opts.Notifier,
		runStore:    opts.RunStore,
		actionStore: opts.ActionStore,
		locker:      opts.Locker,
		lockKey:     opts.LockKey,
		minPriority: minPriority,
		logger:      logger.With().Str("component", "analysis").Logger(),
	}, nil
}

// RunCycle executes one analysis cycle. Concurrent triggers are rejected
// with ErrCycleInFlight rather than queued.
func (r *Runner) RunCycle(ctx context.Context, startedAt time.Time) (*Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		metrics.ObserveCycleRejected()
		r.logger.Warn().Time("started_at", startedAt).Msg("Analyse übersprungen, Zyklus läuft bereits")
		return nil, ErrCycleInFlight
	}
	defer r.running.Store(false)

	unlock, proceed, err := r.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	if !proceed {
		metrics.ObserveCycleRejected()
		r.logger.Debug().Time("started_at", startedAt).Msg("Analyse übersprungen, Sperre anderweitig gehalten")
		return nil, ErrCycleInFlight
	}
	if unlock != nil {
		defer unlock()
	}

	began := time.Now()
	result := r.executeCycle(ctx, startedAt)
	metrics.ObserveCycle(result.Status, time.Since(began))
	return result, result.Err
}

func (r *Runner) executeCycle(ctx context.Context, startedAt time.Time) *Result {
	result := &Result{StartedAt: startedAt, Status: storage.RunComplete}

	if len(r.cfg.EnabledDataPoints()) == 0 {
		r.logger.Info().Msg("Keine aktiven Datenpunkte, Analyse entfällt")
		result.Status = storage.RunEmpty
		result.Record = stats.Compute(r.cfg, &live.Snapshot{}, nil, startedAt)
		r.persist(ctx, result)
		return result
	}

	result.Snapshot = r.liveCol.Collect(ctx, r.cfg)
	metrics.ObserveReadFailures(result.Snapshot.ReadFailures)

	result.History = r.historyCol.Collect(ctx, r.cfg)
	result.Record = stats.Compute(r.cfg, result.Snapshot, result.History, startedAt)
	result.Deviations = rules.Detect(r.cfg, result.Snapshot, result.History, result.Record, startedAt)
	for _, deviation := range result.Deviations {
		metrics.ObserveDeviation(deviation.Severity)
	}

	result.Actions = actions.Build(r.cfg, result.Record, result.Deviations, startedAt)
	for _, action := range result.Actions {
		metrics.ObserveAction(action.Priority)
	}

	r.enrich(ctx, result)
	r.notify(ctx, result)
	r.persist(ctx, result)

	r.logger.Info().
		Time("started_at", startedAt).
		Int("deviations", len(result.Deviations)).
		Int("actions", len(result.Actions)).
		Str("status", result.Status).
		Msg("Analysezyklus abgeschlossen")
	return result
}

// enrich is fail-open: enrichment errors are logged, the plain actions stand.
func (r *Runner) enrich(ctx context.Context, result *Result) {
	if r.enricher == nil || !r.cfg.GPT.Enabled || len(result.Actions) == 0 {
		return
	}
	enriched, err := r.enricher.Enrich(ctx, result.Record, result.Deviations, result.Actions)
	if err != nil {
		r.logger.Warn().Err(err).Msg("GPT-Anreicherung fehlgeschlagen")
		return
	}
	result.Actions = enriched
}

func (r *Runner) notify(ctx context.Context, result *Result) {
	if r.notifier == nil {
		return
	}
	urgent := make([]actions.Action, 0, len(result.Actions))
	for _, action := range result.Actions {
		if priorityRank(action.Priority) >= priorityRank(r.minPriority) {
			urgent = append(urgent, action)
		}
	}
	if len(urgent) == 0 {
		return
	}

	note := alerting.Notification{StartedAt: result.StartedAt, Actions: urgent}
	if err := r.notifier.Notify(ctx, note); err != nil {
		metrics.ObserveAlert("error")
		r.logger.Error().Err(err).Msg("Benachrichtigung fehlgeschlagen")
		return
	}
	metrics.ObserveAlert("success")
}

func (r *Runner) persist(ctx context.Context, result *Result) {
	if r.runStore == nil {
		return
	}

	run := buildRunRecord(result)
	stored, err := r.runStore.InsertRun(ctx, run)
	if err != nil {
		r.logger.Error().Err(err).Msg("Analyse konnte nicht gespeichert werden")
		return
	}
	result.RunID = &stored.ID

	if r.actionStore == nil || len(result.Actions) == 0 {
		return
	}
	records := make([]storage.ActionRecord, 0, len(result.Actions))
	for _, action := range result.Actions {
		records = append(records, storage.ActionRecord{
			ID:               action.ID,
			RunID:            result.RunID,
			Category:         action.Category,
			Priority:         action.Priority,
			Title:            action.Title,
			Description:      action.Description,
			Reason:           action.Reason,
			LearningKey:      action.LearningKey,
			RequiresApproval: action.RequiresApproval,
			Status:           action.Status,
		})
	}
	if err := r.actionStore.InsertActions(ctx, records); err != nil {
		r.logger.Error().Err(err).Msg("Vorschläge konnten nicht gespeichert werden")
	}
}

func buildRunRecord(result *Result) storage.RunRecord {
	run := storage.RunRecord{
		StartedAt:      result.StartedAt,
		DeviationCount: len(result.Deviations),
		ActionCount:    len(result.Actions),
		Status:         result.Status,
	}
	if result.Record != nil {
		run.HouseConsumption = result.Record.Energy.HouseConsumption
		run.PVPower = result.Record.Energy.PVPower
		run.GridPower = result.Record.Energy.GridPower
		run.BatterySoc = result.Record.Energy.BatterySoc
		run.BatteryState = result.Record.Energy.BatteryState
		if encoded, err := json.Marshal(result.Record); err == nil {
			run.Stats = encoded
		}
	}
	if result.Err != nil {
		msg := result.Err.Error()
		run.Error = &msg
		run.Status = storage.RunErrored
	}
	return run
}

func (r *Runner) acquireLock(ctx context.Context) (func(), bool, error) {
	if r.lockKey == 0 || r.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := r.locker.TryAdvisoryLock(ctx, r.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func priorityRank(priority string) int {
	switch priority {
	case "low":
		return 1
	case "medium":
		return 2
	case "high":
		return 3
	default:
		return 0
	}
}
