package agent

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kalshi-edge/internal/exchange"
	"kalshi-edge/internal/research"
	"kalshi-edge/internal/synth"
	"kalshi-edge/internal/verify"
	"kalshi-edge/pkg/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// ————————————————————————————————————————————————————————————————————————
// Fakes
// ————————————————————————————————————————————————————————————————————————

type fakeMarkets struct {
	market types.Market
	book   types.Orderbook
}

func (f fakeMarkets) GetMarket(_ context.Context, ticker string) (types.Market, error) {
	if ticker != f.market.Ticker {
		return types.Market{}, &exchange.APIError{Kind: exchange.KindNotFound, Status: 404, Message: "no such market"}
	}
	return f.market, nil
}

func (f fakeMarkets) GetOrderbook(context.Context, string, int) (types.Orderbook, error) {
	return f.book, nil
}

type fakeTheses struct{ theses []types.Thesis }

func (f fakeTheses) ThesesForMarket(context.Context, string) ([]types.Thesis, error) {
	return f.theses, nil
}

type fakeWriter struct {
	mu   sync.Mutex
	rows []types.PredictionLog
}

func (f *fakeWriter) InsertPrediction(_ context.Context, p types.PredictionLog) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, p)
	return int64(len(f.rows)), nil
}

func (f *fakeWriter) all() []types.PredictionLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.PredictionLog(nil), f.rows...)
}

func openMarket() types.Market {
	return types.Market{
		Ticker:    "FED-CUT",
		Title:     "Fed cuts rates in March?",
		Status:    types.StatusOpen,
		YesBid:    40 * types.PerCent,
		YesAsk:    44 * types.PerCent,
		Volume24h: 5000,
	}
}

func testBook() types.Orderbook {
	return types.Orderbook{
		Ticker:  "FED-CUT",
		YesBids: []types.Level{{PriceCents: 40, Quantity: 500}},
		NoBids:  []types.Level{{PriceCents: 56, Quantity: 500}},
	}
}

type deps struct {
	markets  fakeMarkets
	writer   *fakeWriter
	provider research.Provider
	synth    synth.Synthesizer
	cfg      Config
	theses   []types.Thesis
}

func newOrchestrator(t *testing.T, d deps) (*Orchestrator, *fakeWriter) {
	t.Helper()
	if d.writer == nil {
		d.writer = &fakeWriter{}
	}
	if d.provider == nil {
		d.provider = research.NewMock()
	}
	if d.synth == nil {
		d.synth = synth.NewMock()
	}
	if d.cfg.TopK == 0 {
		d.cfg = DefaultConfig()
		d.cfg.PollInterval = time.Millisecond
		d.cfg.PollDeadline = time.Second
	}
	if d.markets.market.Ticker == "" {
		d.markets = fakeMarkets{market: openMarket(), book: testBook()}
	}
	o := New(d.markets, fakeTheses{theses: d.theses}, d.writer, d.provider, d.synth,
		verify.New(verify.DefaultConfig(), quietLogger()), d.cfg, quietLogger())
	return o, d.writer
}

// ————————————————————————————————————————————————————————————————————————
// Tests
// ————————————————————————————————————————————————————————————————————————

func TestRunStandardPersistsPrediction(t *testing.T) {
	t.Parallel()

	o, writer := newOrchestrator(t, deps{})
	res, err := o.Run(context.Background(), "FED-CUT", ModeStandard, 1.00)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Mode != ModeStandard {
		t.Errorf("mode = %q, want standard", res.Mode)
	}
	if res.Analysis.Ticker != "FED-CUT" {
		t.Errorf("analysis ticker = %q", res.Analysis.Ticker)
	}
	if res.TotalCostDollars <= 0 || res.RemainingDollars >= 1.00 {
		t.Errorf("cost accounting: total %v remaining %v", res.TotalCostDollars, res.RemainingDollars)
	}
	if math.Abs(res.TotalCostDollars+res.RemainingDollars-1.00) > 1e-9 {
		t.Errorf("total %v + remaining %v != budget", res.TotalCostDollars, res.RemainingDollars)
	}

	rows := writer.all()
	if len(rows) != 1 {
		t.Fatalf("got %d prediction rows, want 1", len(rows))
	}
	row := rows[0]
	if row.Status != types.PredictionOK {
		t.Errorf("status = %q, want ok", row.Status)
	}
	if math.Abs(row.MarketProbAtTime-0.42) > 1e-9 {
		t.Errorf("market prob = %v, want 0.42", row.MarketProbAtTime)
	}
	if row.FactorsJSON == "" {
		t.Error("factors not serialized")
	}
}

func TestBudgetDownshiftDeepToStandard(t *testing.T) {
	t.Parallel()

	// Deep estimates $0.15 against an $0.08 budget: skipped. Standard
	// estimates $0.05 and its calls cost exactly that, leaving $0.03.
	provider := research.NewMock()
	provider.Costs = research.Costs{Search: 0.02, Contents: 0.01, Answer: 0.02, Task: 0.15}

	zeroCostSynth := synth.NewMock()
	zeroCostSynth.CostDollars = 0

	cfg := DefaultConfig()
	cfg.TopK = 1

	o, writer := newOrchestrator(t, deps{provider: provider, synth: zeroCostSynth, cfg: cfg})
	res, err := o.Run(context.Background(), "FED-CUT", ModeDeep, 0.08)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Mode != ModeStandard {
		t.Errorf("executed mode = %q, want standard after downshift", res.Mode)
	}
	if math.Abs(res.RemainingDollars-0.03) > 1e-9 {
		t.Errorf("remaining = %v, want 0.03", res.RemainingDollars)
	}
	if rows := writer.all(); len(rows) != 1 || rows[0].Status != types.PredictionOK {
		t.Errorf("rows = %+v", rows)
	}
}

func TestBudgetBelowEveryModeFails(t *testing.T) {
	t.Parallel()

	o, writer := newOrchestrator(t, deps{})
	_, err := o.Run(context.Background(), "FED-CUT", ModeDeep, 0.001)
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("err = %v, want ErrBudgetExceeded", err)
	}
	rows := writer.all()
	if len(rows) != 1 || rows[0].Status != types.PredictionFailed || rows[0].Diagnostic == "" {
		t.Errorf("want one failed row with diagnostic, got %+v", rows)
	}
}

func TestMarketNotFoundFailsFast(t *testing.T) {
	t.Parallel()

	o, writer := newOrchestrator(t, deps{})
	_, err := o.Run(context.Background(), "NOPE", ModeFast, 1.00)
	if !errors.Is(err, ErrMarketNotFound) {
		t.Fatalf("err = %v, want ErrMarketNotFound", err)
	}
	if len(writer.all()) != 0 {
		t.Error("no prediction row should be written before the market loads")
	}
}

func TestClosedMarketFailsFast(t *testing.T) {
	t.Parallel()

	settled := openMarket()
	settled.Status = types.StatusSettled
	o, _ := newOrchestrator(t, deps{markets: fakeMarkets{market: settled, book: testBook()}})
	if _, err := o.Run(context.Background(), "FED-CUT", ModeFast, 1.00); !errors.Is(err, ErrMarketClosed) {
		t.Fatalf("err = %v, want ErrMarketClosed", err)
	}
}

type invalidSynth struct{}

func (invalidSynth) Synthesize(_ context.Context, in synth.Input) (synth.Result, error) {
	return synth.Result{Analysis: types.AnalysisResult{Ticker: in.Ticker, PredictedProbability: 9}}, nil
}

func TestSynthesizerFailurePersistsFailedRow(t *testing.T) {
	t.Parallel()

	o, writer := newOrchestrator(t, deps{synth: synth.NewChecked(invalidSynth{}, quietLogger())})
	_, err := o.Run(context.Background(), "FED-CUT", ModeFast, 1.00)
	if !errors.Is(err, synth.ErrInvalidSynthesis) {
		t.Fatalf("err = %v, want ErrInvalidSynthesis", err)
	}
	rows := writer.all()
	if len(rows) != 1 || rows[0].Status != types.PredictionFailed {
		t.Fatalf("rows = %+v, want one failed row", rows)
	}
	if rows[0].Diagnostic == "" {
		t.Error("failed row missing diagnostic")
	}
}

func TestDeepModePollsTaskToCompletion(t *testing.T) {
	t.Parallel()

	provider := research.NewMock()
	provider.PollsToComplete = 3

	o, _ := newOrchestrator(t, deps{provider: provider})
	res, err := o.Run(context.Background(), "FED-CUT", ModeDeep, 1.00)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Mode != ModeDeep {
		t.Errorf("mode = %q, want deep", res.Mode)
	}
	if len(res.Analysis.Factors) != 1 || res.Analysis.Factors[0].Claim == "" {
		t.Errorf("deep factors = %+v, want the task report", res.Analysis.Factors)
	}
}

// gatedProvider blocks Search until released, counting calls.
type gatedProvider struct {
	*research.Mock
	release chan struct{}
	calls   atomic.Int64
}

func (g *gatedProvider) Search(ctx context.Context, query string, opts research.SearchOpts) (research.SearchResponse, error) {
	g.calls.Add(1)
	<-g.release
	return g.Mock.Search(ctx, query, opts)
}

func TestConcurrentRunsForSameTickerCollapse(t *testing.T) {
	t.Parallel()

	provider := &gatedProvider{Mock: research.NewMock(), release: make(chan struct{})}
	o, writer := newOrchestrator(t, deps{provider: provider})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.Run(context.Background(), "FED-CUT", ModeFast, 1.00); err != nil {
				t.Errorf("Run: %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond) // let both calls reach the group
	close(provider.release)
	wg.Wait()

	if got := provider.calls.Load(); got != 1 {
		t.Errorf("provider searched %d times, want 1 shared run", got)
	}
	if rows := writer.all(); len(rows) != 1 {
		t.Errorf("got %d rows, want 1", len(rows))
	}
}

// capturingSynth records the input it was handed.
type capturingSynth struct {
	inner synth.Synthesizer
	last  synth.Input
}

func (c *capturingSynth) Synthesize(ctx context.Context, in synth.Input) (synth.Result, error) {
	c.last = in
	return c.inner.Synthesize(ctx, in)
}

func TestActiveThesisFlowsIntoSynthesis(t *testing.T) {
	t.Parallel()

	rec := &capturingSynth{inner: synth.NewMock()}
	theses := []types.Thesis{
		{Title: "Cut is coming", Notes: "labor market cooling", Status: types.ThesisActive},
		{Title: "Stale idea", Notes: "ignore me", Status: types.ThesisVoid},
	}
	o, _ := newOrchestrator(t, deps{synth: rec, theses: theses})
	if _, err := o.Run(context.Background(), "FED-CUT", ModeFast, 1.00); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.last.PriorThesis != "Cut is coming: labor market cooling" {
		t.Errorf("prior thesis = %q", rec.last.PriorThesis)
	}
	if math.Abs(rec.last.MarketProb-0.42) > 1e-9 {
		t.Errorf("market prob = %v, want 0.42", rec.last.MarketProb)
	}
}
