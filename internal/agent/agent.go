// Package agent runs the research pipeline for one market under a
// hard dollar budget: gather evidence, synthesize a structured
// analysis, verify it deterministically, and persist the prediction.
// A step whose estimate exceeds the remaining budget is never started;
// the run downshifts to a cheaper research mode instead of failing
// while any mode is still affordable.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"kalshi-edge/internal/exchange"
	"kalshi-edge/internal/liquidity"
	"kalshi-edge/internal/research"
	"kalshi-edge/internal/synth"
	"kalshi-edge/internal/verify"
	"kalshi-edge/pkg/types"
)

var (
	ErrBudgetExceeded = errors.New("agent: budget cannot cover any research mode")
	ErrMarketNotFound = errors.New("agent: market not found")
	ErrMarketClosed   = errors.New("agent: market is not trading")
)

// Mode selects research depth.
type Mode string

const (
	ModeFast     Mode = "fast"
	ModeStandard Mode = "standard"
	ModeDeep     Mode = "deep"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFast, ModeStandard, ModeDeep:
		return Mode(s), nil
	case "":
		return ModeStandard, nil
	}
	return "", fmt.Errorf("agent: unknown mode %q", s)
}

// downshift returns the next cheaper mode, ok=false from fast.
func (m Mode) downshift() (Mode, bool) {
	switch m {
	case ModeDeep:
		return ModeStandard, true
	case ModeStandard:
		return ModeFast, true
	}
	return "", false
}

// state names one stop of the run's state machine, for logging.
type state string

const (
	stateInit       state = "init"
	stateLoadMarket state = "load_market"
	stateResearch   state = "research"
	stateSynthesize state = "synthesize"
	stateVerify     state = "verify"
	statePersist    state = "persist"
	stateDone       state = "done"
	stateFailed     state = "failed"
)

// Estimates are the up-front dollar costs used to gate each step
// before it starts. Actual reported costs are what get deducted.
type Estimates struct {
	Fast     float64
	Standard float64
	Deep     float64
	Contents float64 // standard-mode contents sub-step
	Answer   float64 // standard-mode answer sub-step
	Synth    float64
}

func DefaultEstimates() Estimates {
	return Estimates{
		Fast:     0.01,
		Standard: 0.05,
		Deep:     0.15,
		Contents: 0.01,
		Answer:   0.02,
		Synth:    0.02,
	}
}

func (e Estimates) forMode(m Mode) float64 {
	switch m {
	case ModeFast:
		return e.Fast
	case ModeStandard:
		return e.Standard
	default:
		return e.Deep
	}
}

// Config is loaded once at construction and immutable afterwards.
type Config struct {
	Estimates    Estimates
	TopK         int // contents fetched in standard mode
	PollInterval time.Duration
	PollDeadline time.Duration
	Liquidity    liquidity.Config
}

func DefaultConfig() Config {
	return Config{
		Estimates:    DefaultEstimates(),
		TopK:         3,
		PollInterval: 5 * time.Second,
		PollDeadline: 5 * time.Minute,
		Liquidity:    liquidity.DefaultConfig(),
	}
}

// MarketSource is the live-market dependency. *exchange.Client
// satisfies it.
type MarketSource interface {
	GetMarket(ctx context.Context, ticker string) (types.Market, error)
	GetOrderbook(ctx context.Context, ticker string, depth int) (types.Orderbook, error)
}

// ThesisSource supplies user-pinned context. *store.Store satisfies it.
type ThesisSource interface {
	ThesesForMarket(ctx context.Context, ticker string) ([]types.Thesis, error)
}

// PredictionWriter persists run outcomes. *store.Store satisfies it.
type PredictionWriter interface {
	InsertPrediction(ctx context.Context, p types.PredictionLog) (int64, error)
}

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	Analysis         types.AnalysisResult
	Verification     types.VerificationReport
	Mode             Mode // mode actually executed after any downshift
	TotalCostDollars float64
	RemainingDollars float64
	Escalated        bool
	PredictionID     int64
}

// Orchestrator wires the pipeline. Runs for distinct tickers may
// proceed in parallel; concurrent runs for the same ticker collapse
// into one.
type Orchestrator struct {
	markets  MarketSource
	theses   ThesisSource
	writer   PredictionWriter
	provider research.Provider
	synth    synth.Synthesizer
	verifier *verify.Verifier
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	group singleflight.Group
}

func New(markets MarketSource, theses ThesisSource, writer PredictionWriter,
	provider research.Provider, synthesizer synth.Synthesizer, verifier *verify.Verifier,
	cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		markets:  markets,
		theses:   theses,
		writer:   writer,
		provider: provider,
		synth:    synthesizer,
		verifier: verifier,
		cfg:      cfg,
		logger:   logger.With("component", "agent"),
		now:      time.Now,
	}
}

// Run executes the pipeline for one ticker under budgetDollars.
// Concurrent calls for the same ticker share a single execution and
// its result.
func (o *Orchestrator) Run(ctx context.Context, ticker string, mode Mode, budgetDollars float64) (RunResult, error) {
	v, err, _ := o.group.Do(ticker, func() (any, error) {
		return o.run(ctx, ticker, mode, budgetDollars)
	})
	res, _ := v.(RunResult)
	return res, err
}

// ledger tracks remaining budget. Steps call reserve with their
// estimate before starting and charge with the actual cost after.
type ledger struct {
	remaining float64
}

func (l *ledger) reserve(estimate float64) bool { return l.remaining >= estimate }
func (l *ledger) charge(actual float64)         { l.remaining -= actual }

func (o *Orchestrator) run(ctx context.Context, ticker string, mode Mode, budgetDollars float64) (RunResult, error) {
	logger := o.logger.With("ticker", ticker, "run_mode", mode)
	logger.Debug("state", "state", stateInit, "budget_usd", budgetDollars)

	res := RunResult{Mode: mode}
	bank := &ledger{remaining: budgetDollars}

	logger.Debug("state", "state", stateLoadMarket)
	market, err := o.markets.GetMarket(ctx, ticker)
	if err != nil {
		if exchange.IsNotFound(err) {
			return res, fmt.Errorf("%w: %s", ErrMarketNotFound, ticker)
		}
		return res, err
	}
	if !market.Tradable() {
		return res, fmt.Errorf("%w: %s is %s", ErrMarketClosed, ticker, market.Status)
	}
	marketProb := market.MidProb()

	prior := o.priorThesisContext(ctx, ticker)

	fail := func(cause error) (RunResult, error) {
		res.TotalCostDollars = budgetDollars - bank.remaining
		res.RemainingDollars = bank.remaining
		return res, o.persistFailure(ctx, logger, ticker, marketProb, cause)
	}

	// Pick the deepest affordable mode, downshifting from the
	// requested one. Budget enforcement is hard: an unaffordable mode
	// is never started.
	for !bank.reserve(o.cfg.Estimates.forMode(mode)) {
		next, ok := mode.downshift()
		if !ok {
			return fail(fmt.Errorf("%w: budget %.4f below fast estimate %.4f",
				ErrBudgetExceeded, bank.remaining, o.cfg.Estimates.Fast))
		}
		logger.Info("budget downshift",
			"from", mode, "to", next,
			"estimate_usd", o.cfg.Estimates.forMode(mode),
			"remaining_usd", bank.remaining)
		mode = next
	}
	res.Mode = mode

	logger.Debug("state", "state", stateResearch, "mode", mode)
	bundle, err := o.research(ctx, logger, market, mode, bank)
	if err != nil {
		return fail(err)
	}

	logger.Debug("state", "state", stateSynthesize)
	if !bank.reserve(o.cfg.Estimates.Synth) {
		return fail(fmt.Errorf("%w: synthesis estimate %.4f exceeds remaining %.4f",
			ErrBudgetExceeded, o.cfg.Estimates.Synth, bank.remaining))
	}
	synthRes, err := o.synth.Synthesize(ctx, synth.Input{
		Ticker:      ticker,
		Title:       market.Title,
		MarketProb:  marketProb,
		CloseTime:   market.CloseTime,
		Factors:     bundle.factors,
		Citations:   bundle.citations,
		PriorThesis: prior,
	})
	bank.charge(synthRes.CostDollars)
	if err != nil {
		return fail(err)
	}
	res.Analysis = synthRes.Analysis

	logger.Debug("state", "state", stateVerify)
	res.Verification = o.verifier.Verify(res.Analysis, bundle.sources, marketProb, o.liquidityGrade(ctx, market))
	res.Escalated = res.Verification.SuggestedEscalation

	logger.Debug("state", "state", statePersist)
	factorsJSON, _ := json.Marshal(res.Analysis.Factors)
	id, err := o.writer.InsertPrediction(ctx, types.PredictionLog{
		Ticker:           ticker,
		PredictedProb:    res.Analysis.PredictedProbability,
		MarketProbAtTime: marketProb,
		Confidence:       res.Analysis.Confidence,
		Reasoning:        res.Analysis.Reasoning,
		FactorsJSON:      string(factorsJSON),
		Status:           types.PredictionOK,
		Escalated:        res.Escalated,
		PredictedAt:      o.now().UTC(),
	})
	if err != nil {
		return res, fmt.Errorf("agent: persisting prediction: %w", err)
	}
	res.PredictionID = id
	res.TotalCostDollars = budgetDollars - bank.remaining
	res.RemainingDollars = bank.remaining

	logger.Info("run complete",
		"state", stateDone,
		"mode", mode,
		"predicted", res.Analysis.PredictedProbability,
		"market", marketProb,
		"cost_usd", res.TotalCostDollars,
		"escalated", res.Escalated)
	return res, nil
}

// persistFailure records a terminal pipeline error as a failed
// prediction row, then returns the original error.
func (o *Orchestrator) persistFailure(ctx context.Context, logger *slog.Logger, ticker string, marketProb float64, cause error) error {
	logger.Warn("run failed", "state", stateFailed, "error", cause)
	if _, err := o.writer.InsertPrediction(ctx, types.PredictionLog{
		Ticker:           ticker,
		MarketProbAtTime: marketProb,
		Status:           types.PredictionFailed,
		Diagnostic:       cause.Error(),
		PredictedAt:      o.now().UTC(),
	}); err != nil {
		logger.Error("failed run could not be persisted", "error", err)
	}
	return cause
}

func (o *Orchestrator) priorThesisContext(ctx context.Context, ticker string) string {
	theses, err := o.theses.ThesesForMarket(ctx, ticker)
	if err != nil {
		o.logger.Warn("thesis lookup failed", "ticker", ticker, "error", err)
		return ""
	}
	var parts []string
	for _, th := range theses {
		if th.Status != types.ThesisActive {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", th.Title, th.Notes))
	}
	return strings.Join(parts, "\n")
}

func (o *Orchestrator) liquidityGrade(ctx context.Context, market types.Market) liquidity.Grade {
	ob, err := o.markets.GetOrderbook(ctx, market.Ticker, 0)
	if err != nil {
		o.logger.Warn("orderbook unavailable for liquidity grade", "ticker", market.Ticker, "error", err)
		return liquidity.GradeIlliquid
	}
	analysis, err := liquidity.Analyze(market, ob, o.cfg.Liquidity)
	if err != nil {
		return liquidity.GradeIlliquid
	}
	return analysis.Grade
}
