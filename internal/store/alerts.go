package store

import (
	"context"
	"fmt"

	"kalshi-edge/pkg/types"
)

// CreateAlert inserts a threshold watch and returns its ID.
func (s *Store) CreateAlert(ctx context.Context, a types.Alert) (int64, error) {
	if err := s.writable(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (kind, ticker, threshold, direction, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(a.Kind), a.Ticker, a.Threshold, string(a.Direction), a.Active,
		timeText(nowUTC()))
	if err != nil {
		return 0, fmt.Errorf("create alert: %w", err)
	}
	return res.LastInsertId()
}

// ListAlerts returns alerts, optionally only active ones.
func (s *Store) ListAlerts(ctx context.Context, activeOnly bool) ([]types.Alert, error) {
	query := `SELECT id, kind, ticker, threshold, direction, active, created_at FROM alerts`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Alert
	for rows.Next() {
		var (
			a               types.Alert
			kind, direction string
			created         string
		)
		if err := rows.Scan(&a.ID, &kind, &a.Ticker, &a.Threshold, &direction,
			&a.Active, &created); err != nil {
			return nil, err
		}
		a.Kind = types.AlertKind(kind)
		a.Direction = types.AlertDirection(direction)
		a.CreatedAt = textTime(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetAlertActive flips an alert on or off.
func (s *Store) SetAlertActive(ctx context.Context, id int64, active bool) error {
	if err := s.writable(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteAlert removes an alert permanently.
func (s *Store) DeleteAlert(ctx context.Context, id int64) error {
	if err := s.writable(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %d: %w", id, ErrNotFound)
	}
	return nil
}
