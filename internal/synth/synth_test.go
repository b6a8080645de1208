package synth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"kalshi-edge/pkg/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func sampleInput() Input {
	return Input{
		Ticker:     "FED-CUT",
		Title:      "Fed cuts rates in March?",
		MarketProb: 0.40,
		Factors: []types.Factor{
			{Claim: "CPI came in below forecast", Polarity: types.PolarityBullish, Citations: []string{"https://a"}},
			{Claim: "Two governors signaled patience", Polarity: types.PolarityBearish, Citations: []string{"https://b"}},
		},
		Citations: []string{"https://a", "https://b"},
	}
}

func TestValidateAnalysis(t *testing.T) {
	t.Parallel()

	valid := types.AnalysisResult{
		Ticker:               "FED-CUT",
		PredictedProbability: 0.45,
		Confidence:           types.ConfidenceMedium,
		Reasoning:            "balance of evidence",
	}

	tests := []struct {
		name    string
		mutate  func(*types.AnalysisResult)
		wantErr bool
	}{
		{"valid", func(*types.AnalysisResult) {}, false},
		{"wrong ticker", func(a *types.AnalysisResult) { a.Ticker = "OTHER" }, true},
		{"probability above 1", func(a *types.AnalysisResult) { a.PredictedProbability = 1.2 }, true},
		{"negative probability", func(a *types.AnalysisResult) { a.PredictedProbability = -0.1 }, true},
		{"bad confidence", func(a *types.AnalysisResult) { a.Confidence = "certain" }, true},
		{"empty reasoning", func(a *types.AnalysisResult) { a.Reasoning = "  " }, true},
		{"factor without claim", func(a *types.AnalysisResult) {
			a.Factors = []types.Factor{{Claim: "", Polarity: types.PolarityNeutral}}
		}, true},
		{"factor bad polarity", func(a *types.AnalysisResult) {
			a.Factors = []types.Factor{{Claim: "x", Polarity: "sideways"}}
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid
			tt.mutate(&a)
			if err := ValidateAnalysis(a, "FED-CUT"); (err != nil) != tt.wantErr {
				t.Errorf("ValidateAnalysis() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMockIsValidAndDeterministic(t *testing.T) {
	t.Parallel()

	m := NewMock()
	a, err := m.Synthesize(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if verr := ValidateAnalysis(a.Analysis, "FED-CUT"); verr != nil {
		t.Errorf("mock output invalid: %v", verr)
	}
	b, _ := m.Synthesize(context.Background(), sampleInput())
	if a.Analysis.PredictedProbability != b.Analysis.PredictedProbability {
		t.Error("mock output is not deterministic")
	}
	if a.CostDollars == 0 {
		t.Error("mock must report a nonzero cost")
	}
}

// flaky returns invalid output for the first n calls, then delegates
// to the mock.
type flaky struct {
	badCalls int
	calls    int
	inner    Synthesizer
}

func (f *flaky) Synthesize(ctx context.Context, in Input) (Result, error) {
	f.calls++
	if f.calls <= f.badCalls {
		return Result{
			Analysis:    types.AnalysisResult{Ticker: in.Ticker, PredictedProbability: 7},
			CostDollars: 0.01,
		}, nil
	}
	return f.inner.Synthesize(ctx, in)
}

func TestCheckedRetriesOnceThenFails(t *testing.T) {
	t.Parallel()

	// One bad call: the retry succeeds, and both calls' costs accrue.
	once := &flaky{badCalls: 1, inner: NewMock()}
	checked := NewChecked(once, quietLogger())
	res, err := checked.Synthesize(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("Synthesize after one bad call: %v", err)
	}
	if once.calls != 2 {
		t.Errorf("backend called %d times, want 2", once.calls)
	}
	if want := 0.01 + NewMock().CostDollars; res.CostDollars != want {
		t.Errorf("cost = %v, want %v (both attempts)", res.CostDollars, want)
	}

	// Two bad calls: second violation is terminal.
	twice := &flaky{badCalls: 2, inner: NewMock()}
	checked = NewChecked(twice, quietLogger())
	if _, err := checked.Synthesize(context.Background(), sampleInput()); !errors.Is(err, ErrInvalidSynthesis) {
		t.Errorf("err = %v, want ErrInvalidSynthesis", err)
	}
	if twice.calls != 2 {
		t.Errorf("backend called %d times, want exactly 2", twice.calls)
	}
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	for _, backend := range []string{"", "mock", "local"} {
		if _, err := New(backend, "http://127.0.0.1:1", "", 0.05, quietLogger()); err != nil {
			t.Errorf("New(%q): %v", backend, err)
		}
	}
	if _, err := New("oracle", "", "", 0, quietLogger()); err == nil {
		t.Error("unknown backend accepted")
	}
}

func TestHTTPBackendDecodesAnalysis(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k-test" {
			t.Errorf("missing bearer header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"ticker": "FED-CUT",
			"predicted_probability": 0.47,
			"confidence": "medium",
			"reasoning": "looks close",
			"factors": [],
			"citations": ["https://a"]
		}`))
	}))
	defer srv.Close()

	s, err := New("provider-a", srv.URL, "k-test", 0.07, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := s.Synthesize(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Analysis.PredictedProbability != 0.47 || res.Analysis.Confidence != types.ConfidenceMedium {
		t.Errorf("analysis = %+v", res.Analysis)
	}
	if res.CostDollars != 0.07 {
		t.Errorf("cost = %v, want 0.07", res.CostDollars)
	}
}

func TestHTTPBackendErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, err := New("local", srv.URL, "", 0.01, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Synthesize(context.Background(), sampleInput()); err == nil {
		t.Error("5xx status accepted")
	}
}
