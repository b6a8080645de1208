package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"kalshi-edge/pkg/types"
)

// InsertPrediction persists one agent run, successful or failed, and
// returns the assigned row ID.
func (s *Store) InsertPrediction(ctx context.Context, p types.PredictionLog) (int64, error) {
	if err := s.writable(); err != nil {
		return 0, err
	}
	factors := p.FactorsJSON
	if factors == "" {
		factors = "[]"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO prediction_log
			(ticker, predicted_prob, market_prob, confidence, reasoning,
			 factors_json, status, diagnostic, escalated, predicted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Ticker, p.PredictedProb, p.MarketProbAtTime, string(p.Confidence),
		p.Reasoning, factors, string(p.Status), p.Diagnostic, p.Escalated,
		timeText(p.PredictedAt))
	if err != nil {
		return 0, fmt.Errorf("insert prediction: %w", err)
	}
	return res.LastInsertId()
}

const predictionColumns = `id, ticker, predicted_prob, market_prob, confidence,
	reasoning, factors_json, status, diagnostic, escalated, predicted_at,
	actual_outcome, resolved_at, brier_score`

// GetPrediction fetches one run by row ID.
func (s *Store) GetPrediction(ctx context.Context, id int64) (types.PredictionLog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+predictionColumns+` FROM prediction_log WHERE id = ?`, id)
	p, err := scanPrediction(row)
	if err == sql.ErrNoRows {
		return types.PredictionLog{}, fmt.Errorf("prediction %d: %w", id, ErrNotFound)
	}
	return p, err
}

// PredictionQuery narrows ListPredictions.
type PredictionQuery struct {
	Ticker     string
	Status     types.PredictionStatus
	Unresolved bool // only successful runs awaiting an outcome
	Limit      int
}

// ListPredictions returns runs newest first.
func (s *Store) ListPredictions(ctx context.Context, q PredictionQuery) ([]types.PredictionLog, error) {
	var (
		where []string
		args  []any
	)
	if q.Ticker != "" {
		where = append(where, "ticker = ?")
		args = append(args, q.Ticker)
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.Unresolved {
		where = append(where, "status = 'ok' AND actual_outcome IS NULL")
	}

	query := `SELECT ` + predictionColumns + ` FROM prediction_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY predicted_at DESC, id DESC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.PredictionLog
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ResolveOutcomes joins unresolved successful predictions against the
// settlements table, filling in the actual outcome, resolution time, and
// Brier score (predicted − outcome)². Returns how many rows resolved.
func (s *Store) ResolveOutcomes(ctx context.Context) (int64, error) {
	if err := s.writable(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE prediction_log SET
			actual_outcome = (SELECT st.value FROM settlements st WHERE st.ticker = prediction_log.ticker),
			resolved_at    = (SELECT st.settled_at FROM settlements st WHERE st.ticker = prediction_log.ticker),
			brier_score    = (SELECT (prediction_log.predicted_prob - st.value) * (prediction_log.predicted_prob - st.value)
			                  FROM settlements st WHERE st.ticker = prediction_log.ticker)
		WHERE status = 'ok'
		  AND actual_outcome IS NULL
		  AND ticker IN (SELECT ticker FROM settlements)`)
	if err != nil {
		return 0, fmt.Errorf("resolve outcomes: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("resolved prediction outcomes", "count", n)
	}
	return n, nil
}

// CalibrationSummary aggregates resolved predictions: count and mean
// Brier score. Lower is better; 0.25 is coin-flip performance.
type CalibrationSummary struct {
	Resolved  int64
	MeanBrier float64
}

// Calibration summarizes all resolved predictions.
func (s *Store) Calibration(ctx context.Context) (CalibrationSummary, error) {
	var (
		cs   CalibrationSummary
		mean sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(brier_score) FROM prediction_log
		WHERE brier_score IS NOT NULL`).Scan(&cs.Resolved, &mean)
	if err != nil {
		return CalibrationSummary{}, err
	}
	cs.MeanBrier = mean.Float64
	return cs, nil
}

func scanPrediction(r rowScanner) (types.PredictionLog, error) {
	var (
		p                  types.PredictionLog
		confidence, status string
		predicted          string
		outcome            sql.NullInt64
		resolved           sql.NullString
		brier              sql.NullFloat64
	)
	err := r.Scan(&p.ID, &p.Ticker, &p.PredictedProb, &p.MarketProbAtTime,
		&confidence, &p.Reasoning, &p.FactorsJSON, &status, &p.Diagnostic,
		&p.Escalated, &predicted, &outcome, &resolved, &brier)
	if err != nil {
		return types.PredictionLog{}, err
	}
	p.Confidence = types.Confidence(confidence)
	p.Status = types.PredictionStatus(status)
	p.PredictedAt = textTime(predicted)
	if outcome.Valid {
		v := int(outcome.Int64)
		p.ActualOutcome = &v
	}
	if resolved.Valid && resolved.String != "" {
		t := textTime(resolved.String)
		p.ResolvedAt = &t
	}
	if brier.Valid {
		b := brier.Float64
		p.BrierScore = &b
	}
	return p, nil
}
