// Package synth turns a research bundle into a structured analysis.
// Backends are interchangeable behind the Synthesizer interface; every
// backend's output passes through the same schema check, with one
// retry before the run fails.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"kalshi-edge/pkg/types"
)

// ErrInvalidSynthesis reports a backend that produced schema-violating
// output twice in a row.
var ErrInvalidSynthesis = errors.New("synth: backend output failed schema validation")

// Input is everything a backend sees for one market.
type Input struct {
	Ticker      string
	Title       string
	MarketProb  float64 // market-implied probability at run time
	CloseTime   time.Time
	Factors     []types.Factor // evidence gathered by the research step
	Citations   []string       // full source URL set
	PriorThesis string         // user-authored thesis text, "" if none
}

// Result is one synthesis call: the analysis plus what it cost.
type Result struct {
	Analysis    types.AnalysisResult
	CostDollars float64
}

// Synthesizer produces an AnalysisResult from a research bundle.
type Synthesizer interface {
	Synthesize(ctx context.Context, in Input) (Result, error)
}

// ValidateAnalysis checks the structured-output schema: probability in
// range, recognized confidence, matching ticker, well-formed factors.
func ValidateAnalysis(a types.AnalysisResult, ticker string) error {
	if a.Ticker != ticker {
		return fmt.Errorf("ticker %q does not match requested %q", a.Ticker, ticker)
	}
	if a.PredictedProbability < 0 || a.PredictedProbability > 1 {
		return fmt.Errorf("predicted_probability %v outside [0,1]", a.PredictedProbability)
	}
	switch a.Confidence {
	case types.ConfidenceLow, types.ConfidenceMedium, types.ConfidenceHigh:
	default:
		return fmt.Errorf("unknown confidence %q", a.Confidence)
	}
	if strings.TrimSpace(a.Reasoning) == "" {
		return fmt.Errorf("empty reasoning")
	}
	for i, f := range a.Factors {
		if strings.TrimSpace(f.Claim) == "" {
			return fmt.Errorf("factor %d has empty claim", i)
		}
		switch f.Polarity {
		case types.PolarityBullish, types.PolarityBearish, types.PolarityNeutral:
		default:
			return fmt.Errorf("factor %d has unknown polarity %q", i, f.Polarity)
		}
	}
	return nil
}

// Checked wraps a backend with schema validation and the single retry.
type Checked struct {
	inner  Synthesizer
	logger *slog.Logger
}

func NewChecked(inner Synthesizer, logger *slog.Logger) *Checked {
	return &Checked{inner: inner, logger: logger.With("component", "synth")}
}

// Synthesize calls the backend, validating its output. A schema
// violation is retried once; the retry's cost still counts. A second
// violation surfaces as ErrInvalidSynthesis.
func (c *Checked) Synthesize(ctx context.Context, in Input) (Result, error) {
	var total float64
	for attempt := 1; attempt <= 2; attempt++ {
		res, err := c.inner.Synthesize(ctx, in)
		total += res.CostDollars
		if err != nil {
			return Result{CostDollars: total}, err
		}
		if verr := ValidateAnalysis(res.Analysis, in.Ticker); verr != nil {
			c.logger.Warn("synthesis output rejected",
				"ticker", in.Ticker, "attempt", attempt, "error", verr)
			continue
		}
		res.CostDollars = total
		return res, nil
	}
	return Result{CostDollars: total}, ErrInvalidSynthesis
}

// New dispatches a backend by configured name. provider-a, provider-b,
// and local are HTTP structured-output endpoints differing only in
// defaults; mock needs no credentials.
func New(backend, endpoint, apiKey string, costPerCall float64, logger *slog.Logger) (Synthesizer, error) {
	var inner Synthesizer
	switch backend {
	case "", "mock":
		inner = NewMock()
	case "provider-a", "provider-b", "local":
		httpBackend, err := newHTTPBackend(backend, endpoint, apiKey, costPerCall, logger)
		if err != nil {
			return nil, err
		}
		inner = httpBackend
	default:
		return nil, fmt.Errorf("synth: unknown backend %q", backend)
	}
	return NewChecked(inner, logger), nil
}
