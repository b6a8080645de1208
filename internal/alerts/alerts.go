// Package alerts evaluates user-configured threshold watches against
// the latest stored market state and hands firings to a Notifier.
// Delivery is local only; a Notifier may be a no-op, a log line, or
// anything a caller plugs in.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kalshi-edge/pkg/types"
)

// Event is one alert firing.
type Event struct {
	Alert   types.Alert
	Value   float64 // observed value that crossed the threshold
	Message string
	FiredAt time.Time
}

// Notifier receives alert firings. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NopNotifier swallows events.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }

// LogNotifier writes each firing as a structured log line.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, ev Event) error {
	n.Logger.Info("alert fired",
		"alert_id", ev.Alert.ID,
		"kind", ev.Alert.Kind,
		"ticker", ev.Alert.Ticker,
		"threshold", ev.Alert.Threshold,
		"value", ev.Value,
		"message", ev.Message)
	return nil
}

// Source is the stored state alerts evaluate against. *store.Store
// satisfies it.
type Source interface {
	ListAlerts(ctx context.Context, activeOnly bool) ([]types.Alert, error)
	LatestSnapshot(ctx context.Context, ticker string) (types.PriceSnapshot, error)
	LatestSentiment(ctx context.Context, ticker string) (types.SentimentScore, error)
}

// Evaluator runs active alerts against the latest observations.
type Evaluator struct {
	src      Source
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewEvaluator(src Source, notifier Notifier, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		src:      src,
		notifier: notifier,
		logger:   logger.With("component", "alerts"),
		now:      time.Now,
	}
}

// EvaluateAll checks every active alert once and notifies for each one
// whose condition holds. Alerts whose ticker has no stored observation
// yet are skipped. Returns the number of firings.
func (e *Evaluator) EvaluateAll(ctx context.Context) (int, error) {
	active, err := e.src.ListAlerts(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("alerts: listing: %w", err)
	}

	fired := 0
	for _, a := range active {
		if ctx.Err() != nil {
			return fired, ctx.Err()
		}
		value, ok := e.observe(ctx, a)
		if !ok {
			continue
		}
		if !crossed(a, value) {
			continue
		}
		ev := Event{
			Alert:   a,
			Value:   value,
			Message: fmt.Sprintf("%s %s is %s %.2f (observed %.2f)", a.Ticker, a.Kind, a.Direction, a.Threshold, value),
			FiredAt: e.now().UTC(),
		}
		if err := e.notifier.Notify(ctx, ev); err != nil {
			e.logger.Warn("notify failed", "alert_id", a.ID, "error", err)
			continue
		}
		fired++
	}
	e.logger.Debug("evaluation pass complete", "active", len(active), "fired", fired)
	return fired, nil
}

// observe resolves the watched quantity for one alert.
func (e *Evaluator) observe(ctx context.Context, a types.Alert) (float64, bool) {
	switch a.Kind {
	case types.AlertSentiment:
		s, err := e.src.LatestSentiment(ctx, a.Ticker)
		if err != nil {
			return 0, false
		}
		return s.Score, true
	case types.AlertPrice, types.AlertVolume, types.AlertSpread:
		snap, err := e.src.LatestSnapshot(ctx, a.Ticker)
		if err != nil {
			return 0, false
		}
		switch a.Kind {
		case types.AlertPrice:
			return snap.MidCents(), true
		case types.AlertVolume:
			return float64(snap.Volume), true
		default:
			return float64(snap.YesAsk.Cents() - snap.YesBid.Cents()), true
		}
	}
	e.logger.Warn("unknown alert kind", "alert_id", a.ID, "kind", a.Kind)
	return 0, false
}

func crossed(a types.Alert, value float64) bool {
	if a.Direction == types.AlertBelow {
		return value < a.Threshold
	}
	return value > a.Threshold
}
