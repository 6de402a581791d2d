package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/timekeep/internal/model"
)

// ScheduleAt enqueues a callback to run at cb.RunAt. The callback becomes
// visible to the dispatcher only when the surrounding transaction commits,
// so a state change and the callback that follows it are atomic.
//
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (t *Tx) ScheduleAt(ctx context.Context, cb model.Callback) error {
	args, err := json.Marshal(cb.Args)
	if err != nil {
		return fmt.Errorf("schedule callback: marshal args: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO callbacks (id, kind, run_at, args)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, cb.ID, string(cb.Kind), toMillis(cb.RunAt), string(args))
	if err != nil {
		return fmt.Errorf("schedule callback: %w", err)
	}
	return nil
}

// AcquireDueCallbacks leases up to limit callbacks whose run time has passed.
// A leased callback is invisible to other dispatchers until the lease
// expires, after which it is handed out again. Delivery is therefore
// at-least-once and handlers must be idempotent.
func (s *Store) AcquireDueCallbacks(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]model.Callback, error) {
	var acquired []model.Callback
	err := s.InTx(ctx, func(tx *Tx) error {
		rows, err := tx.tx.QueryContext(ctx, `
			SELECT id, kind, run_at, args, attempts FROM callbacks
			WHERE completed_at IS NULL AND failed_at IS NULL
			  AND run_at <= ?
			  AND (leased_until IS NULL OR leased_until <= ?)
			ORDER BY run_at ASC, id ASC
			LIMIT ?
		`, toMillis(now), toMillis(now), limit)
		if err != nil {
			return fmt.Errorf("query due callbacks: %w", err)
		}
		cbs, err := scanCallbacks(rows)
		if err != nil {
			return err
		}

		for i := range cbs {
			if _, err := tx.tx.ExecContext(ctx, `
				UPDATE callbacks SET leased_until = ?, attempts = attempts + 1 WHERE id = ?
			`, toMillis(now.Add(lease)), cbs[i].ID); err != nil {
				return fmt.Errorf("lease callback %s: %w", cbs[i].ID, err)
			}
			cbs[i].Attempts++
		}
		acquired = cbs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("acquire due callbacks: %w", err)
	}
	return acquired, nil
}

// CompleteCallback marks a callback as handled.
func (s *Store) CompleteCallback(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE callbacks SET completed_at = ?, leased_until = NULL WHERE id = ?
	`, toMillis(now), id)
	if err != nil {
		return fmt.Errorf("complete callback: %w", err)
	}
	return nil
}

// FailCallback records a failed attempt. If retryAt is nil the callback is
// marked permanently failed; otherwise it is released for another attempt at
// retryAt.
func (s *Store) FailCallback(ctx context.Context, id string, now time.Time, retryAt *time.Time, cause string) error {
	var err error
	if retryAt == nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE callbacks SET failed_at = ?, leased_until = NULL, last_error = ? WHERE id = ?
		`, toMillis(now), cause, id)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE callbacks SET run_at = ?, leased_until = NULL, last_error = ? WHERE id = ?
		`, toMillis(*retryAt), cause, id)
	}
	if err != nil {
		return fmt.Errorf("fail callback: %w", err)
	}
	return nil
}

// PendingCallbacks returns callbacks that are neither completed nor failed,
// ordered by run time. Kinds may be used to filter; no kinds returns all.
func (s *Store) PendingCallbacks(ctx context.Context, kinds ...model.CallbackKind) ([]model.Callback, error) {
	query := `SELECT id, kind, run_at, args, attempts FROM callbacks
		WHERE completed_at IS NULL AND failed_at IS NULL`
	var args []any
	if len(kinds) > 0 {
		query += ` AND kind IN (?` + strings.Repeat(", ?", len(kinds)-1) + `)`
		for _, k := range kinds {
			args = append(args, string(k))
		}
	}
	query += ` ORDER BY run_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pending callbacks: %w", err)
	}
	return scanCallbacks(rows)
}

func scanCallbacks(rows *sql.Rows) ([]model.Callback, error) {
	defer rows.Close()

	cbs := []model.Callback{}
	for rows.Next() {
		var (
			cb         model.Callback
			kind, args string
			runAt      int64
		)
		if err := rows.Scan(&cb.ID, &kind, &runAt, &args, &cb.Attempts); err != nil {
			return nil, fmt.Errorf("scan callback: %w", err)
		}
		cb.Kind = model.CallbackKind(kind)
		cb.RunAt = fromMillis(runAt)
		if err := json.Unmarshal([]byte(args), &cb.Args); err != nil {
			return nil, fmt.Errorf("callback %s: unmarshal args: %w", cb.ID, err)
		}
		cbs = append(cbs, cb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate callbacks: %w", err)
	}
	return cbs, nil
}
