package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"testing"
	"time"

	"kalshi-edge/pkg/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// open market with the given quotes in cents.
func mkt(ticker string, bidCents, askCents int64) types.Market {
	return types.Market{
		Ticker:       ticker,
		Status:       types.StatusOpen,
		YesBid:       types.Price(bidCents) * types.PerCent,
		YesAsk:       types.Price(askCents) * types.PerCent,
		Volume24h:    1000,
		OpenInterest: 1000,
	}
}

func newTestScanner(history SnapshotSource) *Scanner {
	s := New(history, quietLogger())
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestProfileByName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"early", "standard", "strict", ""} {
		p, err := ProfileByName(name)
		if err != nil {
			t.Fatalf("ProfileByName(%q): %v", name, err)
		}
		if name != "" && p.Name != name {
			t.Errorf("ProfileByName(%q).Name = %q", name, p.Name)
		}
	}
	if _, err := ProfileByName("bogus"); err == nil {
		t.Error("ProfileByName(bogus): want error")
	}
}

func TestCloseRaceBandIsInclusive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		bid, ask int64 // cents
		want     bool
	}{
		{"dead center", 49, 51, true},
		{"exactly 0.40", 38, 42, true},
		{"exactly 0.60", 58, 62, true},
		{"just below", 37, 42, false}, // mid 0.395
		{"just above", 59, 62, false}, // mid 0.605
	}

	s := newTestScanner(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := s.CloseRace([]types.Market{mkt("T", tt.bid, tt.ask)}, ProfileEarly, 0, 0)
			if got := len(hits) == 1; got != tt.want {
				t.Errorf("mid %.3f: included = %v, want %v", mkt("T", tt.bid, tt.ask).MidProb(), got, tt.want)
			}
		})
	}
}

func TestCloseRaceRanking(t *testing.T) {
	t.Parallel()

	// Perfect coin flip, 2c spread, volume 10^6 − 1 so every term is exact:
	// 0.5·1 + 0.3·(log10(10^6)/6) + 0.2·(1 − 2/20) = 0.98.
	m := mkt("EVEN", 49, 51)
	m.Volume24h = 999_999

	s := newTestScanner(nil)
	hits := s.CloseRace([]types.Market{m}, ProfileEarly, 0, 0)
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if got := hits[0].Score; math.Abs(got-0.98) > 1e-9 {
		t.Errorf("rank = %v, want 0.98", got)
	}
}

func TestCloseRaceOrdersBestFirst(t *testing.T) {
	t.Parallel()

	center := mkt("CENTER", 49, 51)
	edge := mkt("EDGE", 40, 44)

	s := newTestScanner(nil)
	hits := s.CloseRace([]types.Market{edge, center}, ProfileEarly, 0, 0)
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Market.Ticker != "CENTER" {
		t.Errorf("best hit = %q, want CENTER", hits[0].Market.Ticker)
	}
}

func TestEligibilityGate(t *testing.T) {
	t.Parallel()

	closed := mkt("CLOSED", 49, 51)
	closed.Status = types.StatusClosed
	multi := mkt("MULTI", 49, 51)
	multi.Multivariate = true
	unpriced := mkt("BLANK", 0, 100)
	thin := mkt("THIN", 49, 51)
	thin.Volume24h = 10
	wide := mkt("WIDE", 40, 60)

	s := newTestScanner(nil)
	hits := s.HighVolume([]types.Market{closed, multi, unpriced, thin, wide, mkt("OK", 49, 51)}, ProfileStandard)
	if len(hits) != 1 || hits[0].Market.Ticker != "OK" {
		t.Fatalf("hits = %+v, want only OK", hits)
	}
}

func TestWideSpreadRanksWidestFirst(t *testing.T) {
	t.Parallel()

	s := newTestScanner(nil)
	hits := s.WideSpread([]types.Market{mkt("A", 45, 50), mkt("B", 40, 50)}, ProfileEarly)
	if len(hits) != 2 || hits[0].Market.Ticker != "B" || hits[0].Score != 10 {
		t.Fatalf("hits = %+v, want B (10c) first", hits)
	}
}

func TestExpiringSoonWindow(t *testing.T) {
	t.Parallel()

	s := newTestScanner(nil)
	now := s.now()

	soon := mkt("SOON", 49, 51)
	soon.CloseTime = now.Add(2 * time.Hour)
	later := mkt("LATER", 49, 51)
	later.CloseTime = now.Add(20 * time.Hour)
	far := mkt("FAR", 49, 51)
	far.CloseTime = now.Add(100 * time.Hour)
	past := mkt("PAST", 49, 51)
	past.CloseTime = now.Add(-time.Hour)

	hits := s.ExpiringSoon([]types.Market{far, later, soon, past}, ProfileEarly, 24*time.Hour)
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Market.Ticker != "SOON" || hits[1].Market.Ticker != "LATER" {
		t.Errorf("order = %q, %q; want SOON, LATER", hits[0].Market.Ticker, hits[1].Market.Ticker)
	}
}

type fakeHistory struct {
	snaps map[string]types.PriceSnapshot
}

func (f fakeHistory) LatestSnapshotBefore(_ context.Context, ticker string, _ time.Time) (types.PriceSnapshot, error) {
	s, ok := f.snaps[ticker]
	if !ok {
		return types.PriceSnapshot{}, fmt.Errorf("no snapshot for %s", ticker)
	}
	return s, nil
}

func TestMoversRanksByAbsoluteChange(t *testing.T) {
	t.Parallel()

	history := fakeHistory{snaps: map[string]types.PriceSnapshot{
		"UP":   {Ticker: "UP", YesBid: 30 * types.PerCent, YesAsk: 32 * types.PerCent},   // mid 31
		"DOWN": {Ticker: "DOWN", YesBid: 60 * types.PerCent, YesAsk: 62 * types.PerCent}, // mid 61
	}}
	s := newTestScanner(history)

	markets := []types.Market{
		mkt("UP", 49, 51),    // mid 50, moved +19
		mkt("DOWN", 54, 56),  // mid 55, moved −6
		mkt("FRESH", 49, 51), // no baseline, skipped
	}
	hits, err := s.Movers(context.Background(), markets, ProfileEarly, time.Hour)
	if err != nil {
		t.Fatalf("Movers: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Market.Ticker != "UP" || hits[0].Score != 19 {
		t.Errorf("top mover = %q (%v), want UP (19)", hits[0].Market.Ticker, hits[0].Score)
	}
	if hits[1].Market.Ticker != "DOWN" || hits[1].Score != 6 {
		t.Errorf("second mover = %q (%v), want DOWN (6)", hits[1].Market.Ticker, hits[1].Score)
	}
}

func TestMoversWithoutHistoryFails(t *testing.T) {
	t.Parallel()

	s := newTestScanner(nil)
	if _, err := s.Movers(context.Background(), nil, ProfileEarly, time.Hour); err == nil {
		t.Fatal("want error when no snapshot source is wired")
	}
}

func TestArbitrage(t *testing.T) {
	t.Parallel()

	s := newTestScanner(nil)

	// Three-way event with YES mids 0.40 + 0.35 + 0.30 = 1.05.
	rich := []types.Market{mkt("A", 39, 41), mkt("B", 34, 36), mkt("C", 29, 31)}
	// Fairly priced complement set.
	fair := []types.Market{mkt("D", 49, 51), mkt("E", 49, 51)}
	// Would sum over 1 but one leg has no quotes.
	blank := []types.Market{mkt("F", 59, 61), mkt("G", 0, 0)}

	hits := s.Arbitrage([][]types.Market{rich, fair, blank}, 0.02)
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if math.Abs(hits[0].Excess-0.05) > 1e-9 {
		t.Errorf("excess = %v, want 0.05", hits[0].Excess)
	}
	if len(hits[0].Tickers) != 3 {
		t.Errorf("tickers = %v, want the full set", hits[0].Tickers)
	}

	if got := s.Arbitrage([][]types.Market{rich}, 0.10); len(got) != 0 {
		t.Errorf("epsilon 0.10 should suppress a 0.05 excess, got %+v", got)
	}
}

func TestNewMarketsLabelsUnpriced(t *testing.T) {
	t.Parallel()

	s := newTestScanner(nil)
	now := s.now()

	discovery := mkt("DISC", 0, 100)
	discovery.CreatedTime = now.Add(-2 * time.Hour)
	noQuotes := mkt("QUIET", 0, 0)
	noQuotes.CreatedTime = now.Add(-3 * time.Hour)
	priced := mkt("LIVE", 49, 51)
	priced.OpenTime = now.Add(-time.Hour) // created_time missing, open_time stands in
	old := mkt("OLD", 49, 51)
	old.CreatedTime = now.Add(-72 * time.Hour)

	markets := []types.Market{discovery, noQuotes, priced, old}

	hits := s.NewMarkets(markets, ProfileEarly, 24*time.Hour, true)
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3", len(hits))
	}
	byTicker := map[string]Opportunity{}
	for _, h := range hits {
		byTicker[h.Market.Ticker] = h
	}
	if got := byTicker["DISC"].Label; got != LabelAwaitingDiscovery {
		t.Errorf("DISC label = %q, want %q", got, LabelAwaitingDiscovery)
	}
	if got := byTicker["QUIET"].Label; got != LabelNoQuotes {
		t.Errorf("QUIET label = %q, want %q", got, LabelNoQuotes)
	}
	if got := byTicker["LIVE"].Label; got != "" {
		t.Errorf("LIVE label = %q, want none", got)
	}
	if hits[0].Market.Ticker != "LIVE" {
		t.Errorf("newest first, got %q", hits[0].Market.Ticker)
	}

	// Without includeUnpriced only the quoted listing survives.
	hits = s.NewMarkets(markets, ProfileEarly, 24*time.Hour, false)
	if len(hits) != 1 || hits[0].Market.Ticker != "LIVE" {
		t.Fatalf("hits = %+v, want only LIVE", hits)
	}
}
