package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/timekeep/internal/model"
)

// InsertAlert appends an alert to the outbox.
func (s *Store) InsertAlert(ctx context.Context, a model.Alert) error {
	metadata, err := model.MarshalMetadata(a.Metadata)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (user_id, type, title, body, metadata, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.UserID, string(a.Type), a.Title, a.Body, string(metadata), toMillis(a.SentAt))
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ListAlerts returns a user's alerts in the order they were sent.
func (s *Store) ListAlerts(ctx context.Context, userID string) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, type, title, body, metadata, sent_at
		FROM alerts WHERE user_id = ?
		ORDER BY id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	alerts := []model.Alert{}
	for rows.Next() {
		var (
			a             model.Alert
			typ, metadata string
			sentAt        int64
		)
		if err := rows.Scan(&a.UserID, &typ, &a.Title, &a.Body, &metadata, &sentAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Type = model.AlertType(typ)
		a.SentAt = fromMillis(sentAt)
		if err := json.Unmarshal([]byte(metadata), &a.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal alert metadata: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}
