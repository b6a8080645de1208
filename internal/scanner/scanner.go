// Package scanner screens the market universe for opportunities.
//
// Each mode is a pure ranking over a slice of markets; the movers mode
// additionally needs a historical snapshot source. A quality profile
// gates which markets are even considered, so early-stage discovery and
// strict production screens share one code path.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"kalshi-edge/pkg/types"
)

// Profile gates which markets a scan considers.
type Profile struct {
	Name            string
	MinVolume24h    int64
	MinOpenInterest int64
	MaxSpreadCents  int64 // 0 = no cap
}

// The three built-in quality profiles. Early casts the widest net for
// newly listed markets; strict keeps only deep, tight books.
var (
	ProfileEarly    = Profile{Name: "early"}
	ProfileStandard = Profile{Name: "standard", MinVolume24h: 500, MinOpenInterest: 100, MaxSpreadCents: 10}
	ProfileStrict   = Profile{Name: "strict", MinVolume24h: 2000, MinOpenInterest: 500, MaxSpreadCents: 5}
)

// ProfileByName resolves a profile from configuration.
func ProfileByName(name string) (Profile, error) {
	switch name {
	case "", "standard":
		return ProfileStandard, nil
	case "early":
		return ProfileEarly, nil
	case "strict":
		return ProfileStrict, nil
	}
	return Profile{}, fmt.Errorf("scanner: unknown profile %q", name)
}

// Opportunity is one ranked scan hit. Score semantics depend on the
// mode: ranking value for close-race, contracts for high-volume, cents
// for wide-spread and movers, excess probability for arbitrage.
type Opportunity struct {
	Market types.Market
	Score  float64
	Label  string // placeholder annotation for new-markets hits
}

// SnapshotSource supplies the historical baseline the movers mode
// compares against. *store.Store satisfies it.
type SnapshotSource interface {
	LatestSnapshotBefore(ctx context.Context, ticker string, cutoff time.Time) (types.PriceSnapshot, error)
}

// Scanner runs the scan modes. history may be nil if movers is unused.
type Scanner struct {
	history SnapshotSource
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a scanner backed by the given snapshot history.
func New(history SnapshotSource, logger *slog.Logger) *Scanner {
	return &Scanner{history: history, logger: logger.With("component", "scanner"), now: time.Now}
}

// eligible applies the default gate: open, priced, non-multivariate
// markets that clear the profile's floors.
func eligible(m types.Market, p Profile, allowUnpriced bool) bool {
	if !m.Tradable() || m.Multivariate {
		return false
	}
	if !allowUnpriced && m.Unpriced() {
		return false
	}
	if m.Volume24h < p.MinVolume24h || m.OpenInterest < p.MinOpenInterest {
		return false
	}
	if p.MaxSpreadCents > 0 && !m.Unpriced() && m.SpreadCents() > p.MaxSpreadCents {
		return false
	}
	return true
}

// closeRaceRank scores how interesting a near-even market is: closeness
// to 50/50 dominates, activity and tightness break ties.
func closeRaceRank(m types.Market) float64 {
	mid := m.MidProb()
	closeness := 1 - math.Abs(2*mid-1)
	activity := math.Log10(float64(m.Volume24h)+1) / 6
	tightness := 1 - math.Min(float64(m.SpreadCents()), 20)/20
	return 0.5*closeness + 0.3*activity + 0.2*tightness
}

// CloseRace returns markets whose midpoint falls inside [lo, hi]
// (inclusive on both ends), best-ranked first. Zero bounds default to
// the 40–60 band.
func (s *Scanner) CloseRace(markets []types.Market, p Profile, lo, hi float64) []Opportunity {
	if lo == 0 && hi == 0 {
		lo, hi = 0.40, 0.60
	}
	var out []Opportunity
	for _, m := range markets {
		if !eligible(m, p, false) {
			continue
		}
		mid := m.MidProb()
		if mid < lo || mid > hi {
			continue
		}
		out = append(out, Opportunity{Market: m, Score: closeRaceRank(m)})
	}
	sortByScore(out)
	return out
}

// HighVolume ranks by trailing 24h volume.
func (s *Scanner) HighVolume(markets []types.Market, p Profile) []Opportunity {
	var out []Opportunity
	for _, m := range markets {
		if !eligible(m, p, false) {
			continue
		}
		out = append(out, Opportunity{Market: m, Score: float64(m.Volume24h)})
	}
	sortByScore(out)
	return out
}

// WideSpread ranks by quoted spread, widest first.
func (s *Scanner) WideSpread(markets []types.Market, p Profile) []Opportunity {
	var out []Opportunity
	for _, m := range markets {
		if !eligible(m, p, false) {
			continue
		}
		out = append(out, Opportunity{Market: m, Score: float64(m.SpreadCents())})
	}
	sortByScore(out)
	return out
}

// ExpiringSoon returns markets closing within the lookahead window,
// soonest first. Score is hours to close.
func (s *Scanner) ExpiringSoon(markets []types.Market, p Profile, lookahead time.Duration) []Opportunity {
	now := s.now()
	var out []Opportunity
	for _, m := range markets {
		if !eligible(m, p, false) || m.CloseTime.IsZero() {
			continue
		}
		until := m.CloseTime.Sub(now)
		if until < 0 || until > lookahead {
			continue
		}
		out = append(out, Opportunity{Market: m, Score: until.Hours()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}

// Movers ranks by absolute midpoint change in cents against the latest
// stored snapshot at least period old. Markets without a baseline that
// old are skipped; a mover needs history.
func (s *Scanner) Movers(ctx context.Context, markets []types.Market, p Profile, period time.Duration) ([]Opportunity, error) {
	if s.history == nil {
		return nil, fmt.Errorf("scanner: movers requires a snapshot source")
	}
	cutoff := s.now().Add(-period)

	var out []Opportunity
	for _, m := range markets {
		if !eligible(m, p, false) {
			continue
		}
		prior, err := s.history.LatestSnapshotBefore(ctx, m.Ticker, cutoff)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue // no baseline yet
		}
		change := math.Abs(m.MidCents() - prior.MidCents())
		if change == 0 {
			continue
		}
		out = append(out, Opportunity{Market: m, Score: change})
	}
	sortByScore(out)
	return out, nil
}

// ArbitrageHit is one mispriced complement set: the YES midpoints of a
// mutually exclusive market set summing above 1.
type ArbitrageHit struct {
	Tickers []string
	SumYes  float64
	Excess  float64 // SumYes − 1
}

// Arbitrage scans groups of mutually exclusive markets for combined YES
// pricing above 1 + epsilon. Callers supply the groups (one per event,
// or user-chosen ticker sets); unpriced members disqualify a group.
func (s *Scanner) Arbitrage(groups [][]types.Market, epsilon float64) []ArbitrageHit {
	var hits []ArbitrageHit
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		var (
			sum     float64
			tickers []string
			skip    bool
		)
		for _, m := range group {
			if m.Unpriced() {
				skip = true
				break
			}
			sum += m.MidProb()
			tickers = append(tickers, m.Ticker)
		}
		if skip || sum <= 1+epsilon {
			continue
		}
		hits = append(hits, ArbitrageHit{Tickers: tickers, SumYes: sum, Excess: sum - 1})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Excess > hits[j].Excess })
	return hits
}

// Placeholder labels for unpriced new listings.
const (
	LabelAwaitingDiscovery = "[AWAITING PRICE DISCOVERY]"
	LabelNoQuotes          = "[NO QUOTES]"
)

// NewMarkets returns markets listed within the window, newest first.
// created_time decides age, falling back to open_time when the exchange
// omits it. Unpriced listings only appear with includeUnpriced, tagged
// with a placeholder label.
func (s *Scanner) NewMarkets(markets []types.Market, p Profile, window time.Duration, includeUnpriced bool) []Opportunity {
	now := s.now()
	var out []Opportunity
	for _, m := range markets {
		if !eligible(m, p, includeUnpriced) {
			continue
		}
		listed := m.CreatedTime
		if listed.IsZero() {
			listed = m.OpenTime
		}
		if listed.IsZero() || now.Sub(listed) > window {
			continue
		}
		op := Opportunity{Market: m, Score: now.Sub(listed).Hours()}
		if m.Unpriced() {
			if m.YesBid == 0 && m.YesAsk == types.PerDollar {
				op.Label = LabelAwaitingDiscovery
			} else {
				op.Label = LabelNoQuotes
			}
		}
		out = append(out, op)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}

func sortByScore(ops []Opportunity) {
	sort.SliceStable(ops, func(i, j int) bool { return ops[i].Score > ops[j].Score })
}
