package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/timekeep/internal/model"
)

const entryColumns = `id, workspace_id, user_id, project_id, started_at, stopped_at, seconds, source, category, note, is_overrun`

// InsertEntry inserts a time entry. An open entry fails if the user already
// has an open entry for the same project and context.
func (t *Tx) InsertEntry(ctx context.Context, e *model.TimeEntry) error {
	var seconds sql.NullInt64
	if e.Seconds != nil {
		seconds = sql.NullInt64{Int64: *e.Seconds, Valid: true}
	}
	_, err := t.tx.ExecContext(ctx, `INSERT INTO time_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.Context.WorkspaceID,
		e.UserID,
		e.ProjectID,
		toMillis(e.StartedAt),
		nullMillis(e.StoppedAt),
		seconds,
		string(e.Source),
		model.NormalizeText(e.Category),
		model.NormalizeText(e.Note),
		boolInt(e.IsOverrun),
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// GetOpenEntry returns the open entry for (user, project, context).
// Returns ErrNotFound if there is none.
func (t *Tx) GetOpenEntry(ctx context.Context, userID, projectID string, c model.Context) (*model.TimeEntry, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+entryColumns+`
		FROM time_entries
		WHERE user_id = ? AND project_id = ? AND workspace_id = ? AND stopped_at IS NULL
	`, userID, projectID, c.WorkspaceID)
	e, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("get open entry: %w", err)
	}
	return e, nil
}

// GetEntry returns an entry by id.
func (t *Tx) GetEntry(ctx context.Context, id string) (*model.TimeEntry, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

// CloseEntry closes an open entry. Closing an already closed entry returns
// ErrNotFound; closed entries are never rewritten.
func (t *Tx) CloseEntry(ctx context.Context, id string, stoppedAt time.Time, seconds int64, source model.Source) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE time_entries SET stopped_at = ?, seconds = ?, source = ?
		WHERE id = ? AND stopped_at IS NULL
	`, toMillis(stoppedAt), seconds, string(source), id)
	if err != nil {
		return fmt.Errorf("close entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("close entry: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("close entry %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteOpenEntry removes an open entry. Closed entries cannot be deleted
// through this path.
func (t *Tx) DeleteOpenEntry(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM time_entries WHERE id = ? AND stopped_at IS NULL`, id); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// SumClosedSeconds returns the billed seconds of all closed entries for a
// project in a context, across all users. Legacy overrun rows are excluded.
func (t *Tx) SumClosedSeconds(ctx context.Context, projectID string, c model.Context) (int64, error) {
	var total sql.NullInt64
	err := t.tx.QueryRowContext(ctx, `
		SELECT SUM(seconds) FROM time_entries
		WHERE project_id = ? AND workspace_id = ? AND stopped_at IS NOT NULL AND is_overrun = 0
	`, projectID, c.WorkspaceID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum closed seconds: %w", err)
	}
	return total.Int64, nil
}

// ListEntries returns a user's entries, newest first.
func (t *Tx) ListEntries(ctx context.Context, userID string, limit int) ([]*model.TimeEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := t.tx.QueryContext(ctx, `SELECT `+entryColumns+`
		FROM time_entries WHERE user_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := []*model.TimeEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

func scanEntry(row rowScanner) (*model.TimeEntry, error) {
	var (
		e             model.TimeEntry
		ws, source    string
		started       int64
		stopped, secs sql.NullInt64
		overrun       int
	)
	err := row.Scan(&e.ID, &ws, &e.UserID, &e.ProjectID, &started, &stopped, &secs, &source, &e.Category, &e.Note, &overrun)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Context = model.Context{WorkspaceID: ws}
	e.StartedAt = fromMillis(started)
	e.StoppedAt = timePtr(stopped)
	if secs.Valid {
		s := secs.Int64
		e.Seconds = &s
	}
	e.Source = model.Source(source)
	e.IsOverrun = overrun != 0
	return &e, nil
}
