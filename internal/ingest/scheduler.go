// Package ingest drives the periodic collection pipeline: market
// discovery, price snapshots, settlement and fill sync, and prediction
// outcome resolution, committed page by page into the store.
//
// The loop is drift-corrected: ticks fire at start + k·P and missed
// ticks are skipped, never replayed. Cancellation is cooperative and
// lands between requests; a page that started writing always finishes
// its transaction.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kalshi-edge/internal/exchange"
	"kalshi-edge/internal/store"
	"kalshi-edge/pkg/types"
)

// ErrTooManyFailures reports the consecutive-failure escalation: the
// loop exits non-zero instead of silently looping on a broken feed.
var ErrTooManyFailures = errors.New("ingest: too many consecutive failing ticks")

// Stage names one unit of pipeline work.
type Stage string

const (
	StageSyncMarkets     Stage = "sync-markets"
	StageSnapshot        Stage = "snapshot"
	StageSyncSettlements Stage = "sync-settlements"
	StageSyncFills       Stage = "sync-fills"
	StageResolveOutcomes Stage = "resolve-outcomes"
)

// ParseStages resolves configured stage names, preserving order.
func ParseStages(names []string) ([]Stage, error) {
	out := make([]Stage, 0, len(names))
	for _, n := range names {
		switch s := Stage(n); s {
		case StageSyncMarkets, StageSnapshot, StageSyncSettlements, StageSyncFills, StageResolveOutcomes:
			out = append(out, s)
		default:
			return nil, fmt.Errorf("ingest: unknown stage %q", n)
		}
	}
	return out, nil
}

// Client is the exchange surface the scheduler consumes.
// *exchange.Client satisfies it.
type Client interface {
	Markets(filter exchange.MarketFilter) *exchange.Pager[types.Market]
	Settlements(cursor string, maxPages int) *exchange.Pager[types.Settlement]
	Fills(filter exchange.FillFilter) *exchange.Pager[types.Fill]
	Authenticated() bool
}

// Store is the persistence surface the scheduler writes through.
// *store.Store satisfies it.
type Store interface {
	UpsertMarkets(ctx context.Context, markets []types.Market) error
	InsertSnapshots(ctx context.Context, snaps []types.PriceSnapshot) (int64, error)
	UpsertSettlements(ctx context.Context, settlements []types.Settlement) error
	InsertFills(ctx context.Context, fills []types.Fill) (int64, error)
	LatestFillTime(ctx context.Context) (time.Time, error)
	SyncCursor(ctx context.Context, key string) (string, error)
	SetSyncCursor(ctx context.Context, key, cursor string) error
	ResolveOutcomes(ctx context.Context) (int64, error)
}

// Config tunes one scheduler.
type Config struct {
	Period   time.Duration
	Stages   []Stage
	MaxPages int // per-pager safety cap, 0 = unlimited
	// MaxConsecutiveFailures is how many failing ticks in a row the
	// continuous loop tolerates before exiting. 0 means the default.
	MaxConsecutiveFailures int
}

const defaultMaxConsecutiveFailures = 5

// Scheduler runs the pipeline stages on a drift-corrected period.
type Scheduler struct {
	client Client
	store  Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func New(client Client, store Store, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = defaultMaxConsecutiveFailures
	}
	if len(cfg.Stages) == 0 {
		cfg.Stages = []Stage{StageSyncMarkets, StageSnapshot, StageSyncSettlements, StageSyncFills, StageResolveOutcomes}
	}
	return &Scheduler{
		client: client,
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "ingest"),
		now:    time.Now,
	}
}

// RunOnce executes a single tick and exits.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.tick(ctx)
}

// Run executes ticks at start + k·P until the context is cancelled or
// MaxConsecutiveFailures ticks fail in a row. Ticks that would fire in
// the past are skipped, not replayed.
func (s *Scheduler) Run(ctx context.Context) error {
	start := s.now()
	failures := 0
	timer := time.NewTimer(0)
	defer timer.Stop()

	for k := int64(0); ; k++ {
		next := start.Add(time.Duration(k) * s.cfg.Period)
		if wait := next.Sub(s.now()); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		} else if k > 0 {
			// Behind schedule: skip forward to the next future slot.
			behind := s.now().Sub(start)
			skipTo := int64(behind/s.cfg.Period) + 1
			s.logger.Warn("ticks missed, skipping forward", "from_k", k, "to_k", skipTo)
			k = skipTo - 1
			continue
		}

		if err := s.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			s.logger.Error("tick failed", "consecutive", failures, "error", err)
			if failures >= s.cfg.MaxConsecutiveFailures {
				return fmt.Errorf("%w: %d in a row, last: %v", ErrTooManyFailures, failures, err)
			}
			continue
		}
		failures = 0
	}
}

// tick runs every configured stage once. A failing stage is logged and
// the remaining stages still run; the tick reports failure if any
// stage failed.
func (s *Scheduler) tick(ctx context.Context) error {
	began := s.now()
	var errs []error
	for _, stage := range s.cfg.Stages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.runStage(ctx, stage); err != nil {
			s.logger.Error("stage failed", "stage", stage, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", stage, err))
		}
	}
	s.logger.Info("tick complete", "stages", len(s.cfg.Stages), "failed", len(errs), "elapsed", s.now().Sub(began))
	return errors.Join(errs...)
}

func (s *Scheduler) runStage(ctx context.Context, stage Stage) error {
	switch stage {
	case StageSyncMarkets:
		return s.syncMarkets(ctx)
	case StageSnapshot:
		return s.snapshot(ctx)
	case StageSyncSettlements:
		return s.syncSettlements(ctx)
	case StageSyncFills:
		return s.syncFills(ctx)
	case StageResolveOutcomes:
		return s.resolveOutcomes(ctx)
	}
	return fmt.Errorf("unknown stage %q", stage)
}

// drainPages pulls a pager to exhaustion, committing each page through
// persist and recording the resume cursor after every page. On a
// mid-stream failure the committed pages stay committed and the stored
// cursor marks where the next run resumes.
func drainPages[T any](ctx context.Context, s *Scheduler, stage Stage, p *exchange.Pager[T], persist func([]T) error) error {
	for {
		items, ok, err := p.Next(ctx)
		if err != nil {
			s.logger.Warn("paginated fetch failed mid-stream",
				"stage", stage, "pages_committed", p.Pages(), "last_cursor", p.Cursor())
			return err
		}
		if !ok {
			// Empty after a natural end-of-stream; still the truncation
			// point when the page cap stopped the drain, so the next
			// tick picks up where this one left off.
			return s.store.SetSyncCursor(ctx, string(stage), p.Cursor())
		}
		if len(items) > 0 {
			if err := persist(items); err != nil {
				return err
			}
		}
		if err := s.store.SetSyncCursor(ctx, string(stage), p.Cursor()); err != nil {
			return err
		}
	}
}

func (s *Scheduler) syncMarkets(ctx context.Context) error {
	cursor, err := s.store.SyncCursor(ctx, string(StageSyncMarkets))
	if err != nil {
		return err
	}
	pager := s.client.Markets(exchange.MarketFilter{Cursor: cursor, MaxPages: s.cfg.MaxPages})
	return drainPages(ctx, s, StageSyncMarkets, pager, func(markets []types.Market) error {
		return s.store.UpsertMarkets(ctx, markets)
	})
}

func (s *Scheduler) snapshot(ctx context.Context) error {
	at := s.now().UTC()
	pager := s.client.Markets(exchange.MarketFilter{
		Status:       types.StatusOpen,
		Multivariate: exchange.MultivariateExclude,
		MaxPages:     s.cfg.MaxPages,
	})
	total := int64(0)
	err := drainPages(ctx, s, StageSnapshot, pager, func(markets []types.Market) error {
		snaps := make([]types.PriceSnapshot, 0, len(markets))
		for _, m := range markets {
			snaps = append(snaps, types.PriceSnapshot{
				Ticker:       m.Ticker,
				SnapshotTS:   at,
				YesBid:       m.YesBid,
				YesAsk:       m.YesAsk,
				Volume:       m.Volume24h, // trailing activity, what downstream scoring reads
				OpenInterest: m.OpenInterest,
				Liquidity:    m.Liquidity,
			})
		}
		n, err := s.store.InsertSnapshots(ctx, snaps)
		total += n
		return err
	})
	if err == nil {
		s.logger.Debug("snapshot pass complete", "inserted", total)
	}
	return err
}

func (s *Scheduler) syncSettlements(ctx context.Context) error {
	if !s.client.Authenticated() {
		s.logger.Warn("skipping settlements sync, client is unauthenticated")
		return nil
	}
	cursor, err := s.store.SyncCursor(ctx, string(StageSyncSettlements))
	if err != nil {
		return err
	}
	pager := s.client.Settlements(cursor, s.cfg.MaxPages)
	return drainPages(ctx, s, StageSyncSettlements, pager, func(settlements []types.Settlement) error {
		return s.store.UpsertSettlements(ctx, settlements)
	})
}

func (s *Scheduler) syncFills(ctx context.Context) error {
	if !s.client.Authenticated() {
		s.logger.Warn("skipping fills sync, client is unauthenticated")
		return nil
	}
	cursor, err := s.store.SyncCursor(ctx, string(StageSyncFills))
	if err != nil {
		return err
	}
	// Incremental: fills at or after the latest stored trade. The
	// overlap at the boundary is harmless, inserts dedupe on fill id.
	// A fresh database has no fills yet; sync from the beginning.
	since, err := s.store.LatestFillTime(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	pager := s.client.Fills(exchange.FillFilter{MinTS: since, Cursor: cursor, MaxPages: s.cfg.MaxPages})
	return drainPages(ctx, s, StageSyncFills, pager, func(fills []types.Fill) error {
		_, err := s.store.InsertFills(ctx, fills)
		return err
	})
}

func (s *Scheduler) resolveOutcomes(ctx context.Context) error {
	n, err := s.store.ResolveOutcomes(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("prediction outcomes resolved", "rows", n)
	}
	return nil
}
