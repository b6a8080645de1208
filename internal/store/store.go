// Package store is the embedded persistence layer, a single-writer SQLite
// database in WAL mode.
//
// Every aggregate the platform keeps (markets, events, price snapshots,
// settlements, fills, orders, theses, predictions, alerts, news, sentiment)
// has its own repository file with upsert-batch, lookup, and list methods.
// Mutating batches always run inside a transaction and commit every 100
// rows, so a failure mid-batch keeps everything committed so far.
//
// The schema is managed by forward-only migrations. Opening a database
// written by a newer build leaves the store readable but refuses every
// write with ErrSchemaMismatch.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// batchSize is how many rows commit per transaction in batch writes.
const batchSize = 100

// ErrSchemaMismatch is returned by every mutating call when the on-disk
// schema is newer than this build understands.
var ErrSchemaMismatch = errors.New("store: schema version newer than this build")

// ErrNotFound is returned by point lookups that match nothing.
var ErrNotFound = errors.New("store: not found")

// Store wraps the SQLite handle. Safe for concurrent readers; writers are
// serialized by the callers (the ingestion scheduler owns all periodic
// writes).
type Store struct {
	db       *sql.DB
	logger   *slog.Logger
	readOnly bool
}

// Open opens (or creates) the database at path and applies any pending
// migrations. Use ":memory:" for an ephemeral store in tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	// The sqlite driver is in-process; one writer connection avoids
	// SQLITE_BUSY churn under WAL.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger.With("component", "store")}
	if err := s.migrate(); err != nil {
		if errors.Is(err, ErrSchemaMismatch) {
			s.readOnly = true
			s.logger.Warn("schema is newer than this build, store is read-only",
				"path", path)
			return s, nil
		}
		db.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	s.logger.Info("store opened", "path", path, "schema_version", len(migrations))
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrations is the forward-only schema history. Index i holds the DDL
// that brings the schema from version i to i+1. Never reorder or edit a
// shipped entry; append a new one.
var migrations = []string{
	// v1: exchange aggregates and sync bookkeeping.
	`
	CREATE TABLE schema_version (version INTEGER PRIMARY KEY);

	CREATE TABLE events (
		ticker         TEXT PRIMARY KEY,
		series_ticker  TEXT NOT NULL DEFAULT '',
		title          TEXT NOT NULL DEFAULT '',
		sub_title      TEXT NOT NULL DEFAULT '',
		category       TEXT NOT NULL DEFAULT '',
		multivariate   INTEGER NOT NULL DEFAULT 0,
		strike_date    TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE series (
		ticker             TEXT PRIMARY KEY,
		title              TEXT NOT NULL DEFAULT '',
		category           TEXT NOT NULL DEFAULT '',
		frequency          TEXT NOT NULL DEFAULT '',
		settlement_sources TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE markets (
		ticker          TEXT PRIMARY KEY,
		event_ticker    TEXT NOT NULL DEFAULT '' REFERENCES events(ticker),
		series_ticker   TEXT NOT NULL DEFAULT '',
		title           TEXT NOT NULL DEFAULT '',
		subtitle        TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL,
		multivariate    INTEGER NOT NULL DEFAULT 0,
		yes_bid         INTEGER NOT NULL DEFAULT 0,
		yes_ask         INTEGER NOT NULL DEFAULT 0,
		last_price      INTEGER NOT NULL DEFAULT 0,
		volume          INTEGER NOT NULL DEFAULT 0,
		volume_24h      INTEGER NOT NULL DEFAULT 0,
		open_interest   INTEGER NOT NULL DEFAULT 0,
		liquidity       INTEGER,
		created_time    TEXT NOT NULL DEFAULT '',
		open_time       TEXT NOT NULL DEFAULT '',
		close_time      TEXT NOT NULL DEFAULT '',
		expiration_time TEXT NOT NULL DEFAULT '',
		settlement_time TEXT NOT NULL DEFAULT '',
		result          TEXT NOT NULL DEFAULT '',
		updated_at      TEXT NOT NULL
	);
	CREATE INDEX idx_markets_status ON markets(status);
	CREATE INDEX idx_markets_event ON markets(event_ticker);
	CREATE INDEX idx_markets_close ON markets(close_time);

	CREATE TABLE price_snapshots (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker        TEXT NOT NULL,
		snapshot_ts   TEXT NOT NULL,
		yes_bid       INTEGER NOT NULL,
		yes_ask       INTEGER NOT NULL,
		volume        INTEGER NOT NULL DEFAULT 0,
		open_interest INTEGER NOT NULL DEFAULT 0,
		liquidity     INTEGER,
		UNIQUE (ticker, snapshot_ts)
	);
	CREATE INDEX idx_snapshots_ticker_ts ON price_snapshots(ticker, snapshot_ts);

	CREATE TABLE settlements (
		ticker        TEXT PRIMARY KEY,
		value         INTEGER NOT NULL,
		settled_at    TEXT NOT NULL,
		determined_at TEXT NOT NULL DEFAULT '',
		revenue       INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE fills (
		fill_id  TEXT PRIMARY KEY,
		order_id TEXT NOT NULL DEFAULT '',
		ticker   TEXT NOT NULL,
		side     TEXT NOT NULL,
		action   TEXT NOT NULL,
		count    INTEGER NOT NULL,
		price    INTEGER NOT NULL,
		fees     INTEGER NOT NULL DEFAULT 0,
		trade_ts TEXT NOT NULL
	);
	CREATE INDEX idx_fills_ticker_ts ON fills(ticker, trade_ts);

	CREATE TABLE orders (
		order_id        TEXT PRIMARY KEY,
		ticker          TEXT NOT NULL,
		side            TEXT NOT NULL,
		action          TEXT NOT NULL,
		status          TEXT NOT NULL,
		count           INTEGER NOT NULL,
		remaining_count INTEGER NOT NULL,
		price           INTEGER NOT NULL,
		created_ts      TEXT NOT NULL DEFAULT '',
		expiration_ts   TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX idx_orders_status ON orders(status);

	CREATE TABLE sync_state (
		key        TEXT PRIMARY KEY,
		cursor     TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);
	`,

	// v2: research objects.
	`
	CREATE TABLE theses (
		id                 TEXT PRIMARY KEY,
		title              TEXT NOT NULL,
		markets            TEXT NOT NULL DEFAULT '[]',
		notes              TEXT NOT NULL DEFAULT '',
		your_probability   REAL NOT NULL DEFAULT 0,
		market_probability REAL NOT NULL DEFAULT 0,
		confidence         TEXT NOT NULL DEFAULT 'low',
		status             TEXT NOT NULL DEFAULT 'draft',
		resolution_outcome TEXT NOT NULL DEFAULT '',
		created_at         TEXT NOT NULL,
		updated_at         TEXT NOT NULL
	);
	CREATE INDEX idx_theses_status ON theses(status);

	CREATE TABLE prediction_log (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker         TEXT NOT NULL,
		predicted_prob REAL NOT NULL,
		market_prob    REAL NOT NULL,
		confidence     TEXT NOT NULL,
		reasoning      TEXT NOT NULL DEFAULT '',
		factors_json   TEXT NOT NULL DEFAULT '[]',
		status         TEXT NOT NULL,
		diagnostic     TEXT NOT NULL DEFAULT '',
		escalated      INTEGER NOT NULL DEFAULT 0,
		predicted_at   TEXT NOT NULL,
		actual_outcome INTEGER,
		resolved_at    TEXT,
		brier_score    REAL
	);
	CREATE INDEX idx_predictions_ticker ON prediction_log(ticker);
	CREATE INDEX idx_predictions_unresolved ON prediction_log(status, actual_outcome);

	CREATE TABLE alerts (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		kind       TEXT NOT NULL,
		ticker     TEXT NOT NULL,
		threshold  REAL NOT NULL,
		direction  TEXT NOT NULL,
		active     INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);
	CREATE INDEX idx_alerts_ticker ON alerts(ticker);
	`,

	// v3: external signal inputs for the alert monitor.
	`
	CREATE TABLE news_items (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker       TEXT NOT NULL,
		title        TEXT NOT NULL,
		url          TEXT NOT NULL DEFAULT '',
		source       TEXT NOT NULL DEFAULT '',
		published_at TEXT NOT NULL,
		fetched_at   TEXT NOT NULL
	);
	CREATE INDEX idx_news_ticker_published ON news_items(ticker, published_at);

	CREATE TABLE sentiment_scores (
		ticker      TEXT NOT NULL,
		scored_at   TEXT NOT NULL,
		score       REAL NOT NULL,
		sample_size INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (ticker, scored_at)
	);
	`,
}

func (s *Store) migrate() error {
	version := 0
	s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version > len(migrations) {
		return fmt.Errorf("%w: on-disk version %d, supported %d",
			ErrSchemaMismatch, version, len(migrations))
	}

	for v := version; v < len(migrations); v++ {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", v+1, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", v+1); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", v+1, err)
		}
		if v > 0 {
			s.logger.Info("applied migration", "version", v+1)
		}
	}
	return nil
}

// SchemaVersion returns the applied on-disk schema version.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	err := s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&v)
	return v, err
}

// writable gates every mutating method.
func (s *Store) writable() error {
	if s.readOnly {
		return ErrSchemaMismatch
	}
	return nil
}

// inBatches runs fn once per batchSize-chunk of total rows, each chunk in
// its own committed transaction. A mid-stream failure keeps the chunks
// already committed.
func (s *Store) inBatches(ctx context.Context, total int, fn func(tx *sql.Tx, from, to int) error) error {
	for from := 0; from < total; from += batchSize {
		to := from + batchSize
		if to > total {
			to = total
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx, from, to); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// Timestamps are stored as RFC3339 UTC text. The zero time maps to the
// empty string, matching the wire layer's "not set".
func timeText(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func textTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
