package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertRunSQL = `INSERT INTO analysis_runs (
        started_at,
        house_consumption,
        pv_power,
        grid_power,
        battery_soc,
        battery_state,
        deviation_count,
        action_count,
        stats,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    RETURNING id, created_at;`

	listRunsBetweenSQL = `SELECT
        id,
        started_at,
        house_consumption,
        pv_power,
        grid_power,
        battery_soc,
        battery_state,
        deviation_count,
        action_count,
        stats,
        status,
        error,
        created_at
    FROM analysis_runs
    WHERE started_at >= $1
      AND started_at < $2
    ORDER BY started_at;`

	listRecentRunsSQL = `SELECT
        id,
        started_at,
        house_consumption,
        pv_power,
        grid_power,
        battery_soc,
        battery_state,
        deviation_count,
        action_count,
        stats,
        status,
        error,
        created_at
    FROM analysis_runs
    ORDER BY started_at DESC
    LIMIT $1;`

	markRunErroredSQL = `UPDATE analysis_runs
    SET status = 'errored', error = $2
    WHERE id = $1;`

	countRunsSQL = `SELECT COUNT(*) FROM analysis_runs;`

	insertActionSQL = `INSERT INTO actions (
        id,
        run_id,
        category,
        priority,
        title,
        description,
        reason,
        learning_key,
        requires_approval,
        status
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    ON CONFLICT (id) DO NOTHING;`

	listRecentActionsSQL = `SELECT
        id,
        run_id,
        category,
        priority,
        title,
        description,
        reason,
        learning_key,
        requires_approval,
        status,
        created_at
    FROM actions
    ORDER BY created_at DESC
    LIMIT $1;`

	updateActionStatusSQL = `UPDATE actions
    SET status = $2
    WHERE id = $1;`

	deleteActionsBeforeSQL = `DELETE FROM actions WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// RunStore defines operations for analysis run persistence.
type RunStore interface {
	InsertRun(ctx context.Context, run RunRecord) (RunRecord, error)
	ListRunsBetween(ctx context.Context, from, to time.Time) ([]RunRecord, error)
	ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
	MarkRunErrored(ctx context.Context, id int64, errMsg string) error
	CountRuns(ctx context.Context) (int64, error)
}

// ActionStore defines operations for proposed action auditing.
type ActionStore interface {
	InsertActions(ctx context.Context, actions []ActionRecord) error
	ListRecentActions(ctx context.Context, limit int) ([]ActionRecord, error)
	UpdateActionStatus(ctx context.Context, id, status string) error
	DeleteActionsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to analysis runs and actions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertRun persists one analysis cycle and returns the stored record.
func (s *Store) InsertRun(ctx context.Context, run RunRecord) (RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return RunRecord{}, err
	}

	stats := run.Stats
	if stats == nil {
		stats = json.RawMessage(`{}`)
	}

	var errMsg interface{}
	if run.Error != nil {
		errMsg = *run.Error
	}

	row := pool.QueryRow(ctx, insertRunSQL,
		run.StartedAt,
		run.HouseConsumption,
		run.PVPower,
		run.GridPower,
		run.BatterySoc,
		run.BatteryState,
		run.DeviationCount,
		run.ActionCount,
		stats,
		run.Status,
		errMsg,
	)

	stored := run
	if scanErr := row.Scan(&stored.ID, &stored.CreatedAt); scanErr != nil {
		return RunRecord{}, fmt.Errorf("insert run: %w", scanErr)
	}
	return stored, nil
}

// ListRunsBetween lists runs within [from, to) ordered by start time.
func (s *Store) ListRunsBetween(ctx context.Context, from, to time.Time) ([]RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRunsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list runs between: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0)
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

// ListRecentRuns lists the most recent runs ordered by descending start time.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0, limit)
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

// MarkRunErrored marks a run as errored.
func (s *Store) MarkRunErrored(ctx context.Context, id int64, errMsg string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, markRunErroredSQL, id, errMsg)
	if execErr != nil {
		return fmt.Errorf("mark run errored: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CountRuns counts stored runs.
func (s *Store) CountRuns(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countRunsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count runs: %w", scanErr)
	}
	return count, nil
}

// InsertActions persists proposed actions. Existing ids are left untouched.
func (s *Store) InsertActions(ctx context.Context, actions []ActionRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	for _, action := range actions {
		var runID interface{}
		if action.RunID != nil {
			runID = *action.RunID
		}
		if _, execErr := pool.Exec(ctx, insertActionSQL,
			action.ID,
			runID,
			action.Category,
			action.Priority,
			action.Title,
			action.Description,
			action.Reason,
			action.LearningKey,
			action.RequiresApproval,
			action.Status,
		); execErr != nil {
			return fmt.Errorf("insert action %s: %w", action.ID, execErr)
		}
	}
	return nil
}

// ListRecentActions lists most recent proposed actions.
func (s *Store) ListRecentActions(ctx context.Context, limit int) ([]ActionRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentActionsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent actions: %w", queryErr)
	}
	defer rows.Close()

	actions := make([]ActionRecord, 0, limit)
	for rows.Next() {
		var rec ActionRecord
		var runID sql.NullInt64
		if err := rows.Scan(
			&rec.ID,
			&runID,
			&rec.Category,
			&rec.Priority,
			&rec.Title,
			&rec.Description,
			&rec.Reason,
			&rec.LearningKey,
			&rec.RequiresApproval,
			&rec.Status,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if runID.Valid {
			value := runID.Int64
			rec.RunID = &value
		}
		actions = append(actions, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return actions, nil
}

// UpdateActionStatus transitions an action to a new review status.
func (s *Store) UpdateActionStatus(ctx context.Context, id, status string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, updateActionStatusSQL, id, status)
	if execErr != nil {
		return fmt.Errorf("update action status: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteActionsBefore deletes historical actions.
func (s *Store) DeleteActionsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteActionsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete actions before: %w", execErr)
	}
	return nil
}

func scanRun(rows pgx.Rows) (RunRecord, error) {
	var (
		id           int64
		startedAt    time.Time
		house        sql.NullFloat64
		pv           sql.NullFloat64
		grid         sql.NullFloat64
		soc          sql.NullFloat64
		batteryState string
		deviations   int
		actionCount  int
		stats        json.RawMessage
		status       string
		errMsg       sql.NullString
		createdAt    time.Time
	)

	if err := rows.Scan(
		&id,
		&startedAt,
		&house,
		&pv,
		&grid,
		&soc,
		&batteryState,
		&deviations,
		&actionCount,
		&stats,
		&status,
		&errMsg,
		&createdAt,
	); err != nil {
		return RunRecord{}, err
	}

	run := RunRecord{
		ID:             id,
		StartedAt:      startedAt,
		BatteryState:   batteryState,
		DeviationCount: deviations,
		ActionCount:    actionCount,
		Stats:          stats,
		Status:         status,
		CreatedAt:      createdAt,
	}

	if house.Valid {
		value := house.Float64
		run.HouseConsumption = &value
	}
	if pv.Valid {
		value := pv.Float64
		run.PVPower = &value
	}
	if grid.Valid {
		value := grid.Float64
		run.GridPower = &value
	}
	if soc.Valid {
		value := soc.Float64
		run.BatterySoc = &value
	}
	if errMsg.Valid {
		msg := errMsg.String
		run.Error = &msg
	}

	return run, nil
}
