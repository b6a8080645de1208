package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"kalshi-edge/pkg/types"
)

// CreateThesis inserts a new thesis. A missing ID gets a fresh UUID; the
// assigned ID is returned. CreatedAt/UpdatedAt are stamped here.
func (s *Store) CreateThesis(ctx context.Context, th types.Thesis) (string, error) {
	if err := s.writable(); err != nil {
		return "", err
	}
	if th.ID == "" {
		th.ID = uuid.NewString()
	}
	if th.Status == "" {
		th.Status = types.ThesisDraft
	}
	now := nowUTC()
	markets, err := json.Marshal(th.Markets)
	if err != nil {
		return "", fmt.Errorf("marshal thesis markets: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO theses
			(id, title, markets, notes, your_probability, market_probability,
			 confidence, status, resolution_outcome, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		th.ID, th.Title, string(markets), th.Notes, th.YourProbability,
		th.MarketProbability, string(th.Confidence), string(th.Status),
		th.ResolutionOutcome, timeText(now), timeText(now))
	if err != nil {
		return "", fmt.Errorf("create thesis: %w", err)
	}
	return th.ID, nil
}

// UpdateThesis rewrites the mutable fields of an existing thesis and
// bumps UpdatedAt.
func (s *Store) UpdateThesis(ctx context.Context, th types.Thesis) error {
	if err := s.writable(); err != nil {
		return err
	}
	markets, err := json.Marshal(th.Markets)
	if err != nil {
		return fmt.Errorf("marshal thesis markets: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE theses SET
			title = ?, markets = ?, notes = ?, your_probability = ?,
			market_probability = ?, confidence = ?, status = ?,
			resolution_outcome = ?, updated_at = ?
		WHERE id = ?`,
		th.Title, string(markets), th.Notes, th.YourProbability,
		th.MarketProbability, string(th.Confidence), string(th.Status),
		th.ResolutionOutcome, timeText(nowUTC()), th.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("thesis %s: %w", th.ID, ErrNotFound)
	}
	return nil
}

// ResolveThesis marks a thesis resolved with the market's outcome.
func (s *Store) ResolveThesis(ctx context.Context, id, outcome string) error {
	if err := s.writable(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE theses SET status = ?, resolution_outcome = ?, updated_at = ?
		WHERE id = ?`,
		string(types.ThesisResolved), outcome, timeText(nowUTC()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("thesis %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteThesis removes a thesis permanently.
func (s *Store) DeleteThesis(ctx context.Context, id string) error {
	if err := s.writable(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM theses WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("thesis %s: %w", id, ErrNotFound)
	}
	return nil
}

const thesisColumns = `id, title, markets, notes, your_probability,
	market_probability, confidence, status, resolution_outcome, created_at, updated_at`

// GetThesis fetches one thesis by UUID.
func (s *Store) GetThesis(ctx context.Context, id string) (types.Thesis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+thesisColumns+` FROM theses WHERE id = ?`, id)
	th, err := scanThesis(row)
	if err == sql.ErrNoRows {
		return types.Thesis{}, fmt.Errorf("thesis %s: %w", id, ErrNotFound)
	}
	return th, err
}

// ListTheses returns theses, optionally filtered by status, newest first.
func (s *Store) ListTheses(ctx context.Context, status types.ThesisStatus) ([]types.Thesis, error) {
	query := `SELECT ` + thesisColumns + ` FROM theses`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Thesis
	for rows.Next() {
		th, err := scanThesis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, th)
	}
	return out, rows.Err()
}

// ThesesForMarket returns theses whose market list contains the ticker.
func (s *Store) ThesesForMarket(ctx context.Context, ticker string) ([]types.Thesis, error) {
	all, err := s.ListTheses(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []types.Thesis
	for _, th := range all {
		for _, m := range th.Markets {
			if m == ticker {
				out = append(out, th)
				break
			}
		}
	}
	return out, nil
}

func scanThesis(r rowScanner) (types.Thesis, error) {
	var (
		th                          types.Thesis
		markets, confidence, status string
		created, updated            string
	)
	err := r.Scan(&th.ID, &th.Title, &markets, &th.Notes, &th.YourProbability,
		&th.MarketProbability, &confidence, &status, &th.ResolutionOutcome,
		&created, &updated)
	if err != nil {
		return types.Thesis{}, err
	}
	if err := json.Unmarshal([]byte(markets), &th.Markets); err != nil {
		return types.Thesis{}, fmt.Errorf("thesis %s markets: %w", th.ID, err)
	}
	th.Confidence = types.Confidence(confidence)
	th.Status = types.ThesisStatus(status)
	th.CreatedAt = textTime(created)
	th.UpdatedAt = textTime(updated)
	return th, nil
}
