package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/balkashynov/wotrack/internal/models"
	"github.com/balkashynov/wotrack/internal/tracker"
)

var processTimerColumns = []string{
	"work_order_id", "process_name", "accumulated_seconds", "status", "run_started_at", "last_updated_at",
}

const upsertTimerSuffix = `ON CONFLICT (work_order_id, process_name) DO UPDATE
	SET accumulated_seconds=excluded.accumulated_seconds, status=excluded.status,
	run_started_at=excluded.run_started_at, last_updated_at=excluded.last_updated_at`

// lockTimerStmt serializes transactions working on the same timer until
// they commit; it works whether or not the row exists yet
const lockTimerStmt = `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`

func selectTimers(workOrderID string) sq.SelectBuilder {
	return psql.Select(processTimerColumns...).
		From(ProcessTimerTable).
		Where(sq.Eq{"work_order_id": workOrderID}).
		OrderBy("process_name")
}

func upsertTimer(key tracker.Key, t *models.ProcessTimer) sq.InsertBuilder {
	var started interface{}
	if t.Status == models.TimerRunning && t.RunStartedAt != nil {
		started = *t.RunStartedAt
	}
	return psql.Insert(ProcessTimerTable).
		Columns(processTimerColumns...).
		Values(key.WorkOrderID, key.Process, t.AccumulatedSeconds, string(t.Status), started, t.LastUpdatedAt).
		Suffix(upsertTimerSuffix)
}

func (s *Store) LoadTimer(ctx context.Context, key tracker.Key) (*models.ProcessTimer, error) {
	timers, err := s.listTimers(ctx, selectTimers(key.WorkOrderID).Where(sq.Eq{"process_name": key.Process}).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(timers) == 0 {
		return nil, nil
	}
	return &timers[0], nil
}

func (s *Store) SaveTimer(ctx context.Context, key tracker.Key, timer *models.ProcessTimer) error {
	if _, err := s.exec(ctx, upsertTimer(key, timer)); err != nil {
		return fmt.Errorf("failed to save timer %s: %w", key, err)
	}
	return nil
}

func (s *Store) ListTimers(ctx context.Context, workOrderID string) ([]models.ProcessTimer, error) {
	return s.listTimers(ctx, selectTimers(workOrderID))
}

func (s *Store) listTimers(ctx context.Context, b sq.SelectBuilder) ([]models.ProcessTimer, error) {
	rows, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to query timers: %w", err)
	}
	defer rows.Close()

	var timers []models.ProcessTimer
	for rows.Next() {
		var (
			t       models.ProcessTimer
			status  string
			started sql.NullTime
		)
		if err := rows.Scan(&t.WorkOrderID, &t.ProcessName, &t.AccumulatedSeconds, &status, &started, &t.LastUpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan timer: %w", err)
		}
		t.Status = models.TimerStatus(status)
		if t.Status == models.TimerRunning && !started.Valid {
			return nil, fmt.Errorf("timer %s/%s is running without run_started_at", t.WorkOrderID, t.ProcessName)
		}
		if started.Valid && t.Status == models.TimerRunning {
			st := started.Time
			t.RunStartedAt = &st
		}
		timers = append(timers, t)
	}
	return timers, rows.Err()
}

// RunAtomic runs fn in a transaction holding the advisory lock of key
func (s *Store) RunAtomic(ctx context.Context, key tracker.Key, fn func(g tracker.Gateway) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, lockTimerStmt, key.WorkOrderID, key.Process); err != nil {
		return fmt.Errorf("failed to lock timer %s: %w", key, err)
	}
	if err := fn(&Store{DB: s.DB, tx: tx, logger: s.logger}); err != nil {
		return err
	}
	return tx.Commit()
}
