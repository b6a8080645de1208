// Kalshi Edge — a research and decision-support daemon for binary
// prediction markets. It polls the exchange API for market state, keeps a
// local price history, screens for liquidity and mispricing, reconciles
// the account's fills into FIFO positions, and runs a budget-capped
// research pipeline that produces verified edge recommendations.
//
// Architecture:
//
//	main.go               — entry point: config, subcommand dispatch, SIGINT/SIGTERM
//	config/config.go      — YAML config with KALSHI_* / bare env overrides
//	exchange/client.go    — signed REST client: retry, rate limiting, pagination
//	exchange/auth.go      — RSA-PSS request signing (ts||METHOD||path)
//	store/                — embedded sqlite store: migrations, repositories, prune
//	ingest/scheduler.go   — drift-corrected collection loop (markets/snapshots/fills)
//	liquidity/            — depth score, slippage walker, composite grade
//	scanner/              — close-race / movers / arbitrage / new-market screens
//	portfolio/            — fills → FIFO lots → realized/unrealized P&L
//	agent/                — research → synthesize → verify → persist, under budget
//	alerts/               — threshold watches over stored state
//
// It produces recommendations only; the one order-placement path is
// invoked exclusively as a dry run.
package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"kalshi-edge/internal/agent"
	"kalshi-edge/internal/alerts"
	"kalshi-edge/internal/config"
	"kalshi-edge/internal/exchange"
	"kalshi-edge/internal/ingest"
	"kalshi-edge/internal/portfolio"
	"kalshi-edge/internal/research"
	"kalshi-edge/internal/scanner"
	"kalshi-edge/internal/store"
	"kalshi-edge/internal/synth"
	"kalshi-edge/internal/verify"
	"kalshi-edge/pkg/types"
)

// Exit codes: 0 success, 1 user error, 2 system error.
const (
	exitOK     = 0
	exitUser   = 1
	exitSystem = 2
)

// usageError marks failures caused by the invocation rather than the
// system; they exit 1 without a stack of diagnostics.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global := flag.NewFlagSet("edged", flag.ContinueOnError)
	cfgPath := global.String("config", defaultConfigPath(), "path to YAML config")
	if err := global.Parse(args); err != nil {
		return exitUser
	}
	if global.NArg() == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return exitUser
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitUser
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		return exitUser
	}

	logger := newLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, rest := global.Arg(0), global.Args()[1:]
	err = dispatch(ctx, cmd, rest, cfg, logger)
	var ue usageError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		logger.Info("interrupted")
		return exitOK
	case errors.As(err, &ue):
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitUser
	default:
		logger.Error("command failed", "command", cmd, "error", err)
		return exitSystem
	}
}

func dispatch(ctx context.Context, cmd string, args []string, cfg *config.Config, logger *slog.Logger) error {
	switch cmd {
	case "ingest":
		return cmdIngest(ctx, args, cfg, logger)
	case "scan":
		return cmdScan(ctx, args, cfg, logger)
	case "analyze":
		return cmdAnalyze(ctx, args, cfg, logger)
	case "portfolio":
		return cmdPortfolio(ctx, args, cfg, logger)
	case "alerts":
		return cmdAlerts(ctx, args, cfg, logger)
	case "prune":
		return cmdPrune(ctx, args, cfg, logger)
	case "reclaim":
		return cmdReclaim(ctx, cfg, logger)
	default:
		return usagef("unknown command %q\n%s", cmd, usage)
	}
}

const usage = `usage: edged [-config path] <command> [flags]

commands:
  ingest     run the collection pipeline (-once for a single pass)
  scan       screen markets: close-race | high-volume | wide-spread |
             expiring-soon | movers | arbitrage | new-markets
  analyze    run the research pipeline for one ticker
  portfolio  reconcile fills into positions and P&L
  alerts     evaluate active alerts (-watch to loop)
  prune      delete old snapshots and news (-apply to really delete)
  reclaim    compact the database file`

func defaultConfigPath() string {
	if p := os.Getenv("KALSHI_CONFIG"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

func newLogger(lc config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(lc.Level)}
	var handler slog.Handler
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newClient builds the exchange client, authenticated when credentials
// are configured, public otherwise. The rate limiter is shared by every
// request the process makes.
func newClient(cfg *config.Config, logger *slog.Logger) (*exchange.Client, error) {
	rl := exchange.NewRateLimiter(exchange.Tier(cfg.Tier), logger)
	if !cfg.Credentials.Configured() {
		return exchange.NewPublicClient(cfg.BaseURL(), rl, logger), nil
	}

	key, err := loadPrivateKey(cfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}
	signer := exchange.NewSigner(cfg.Credentials.KeyID, key)
	return exchange.NewClient(cfg.BaseURL(), signer, rl, logger), nil
}

func loadPrivateKey(creds config.CredentialsConfig) (*rsa.PrivateKey, error) {
	if creds.PrivateKeyB64 != "" {
		return exchange.ParsePrivateKeyB64(creds.PrivateKeyB64)
	}
	return exchange.LoadPrivateKeyPEM(creds.PrivateKeyPath)
}

func cmdIngest(ctx context.Context, args []string, cfg *config.Config, logger *slog.Logger) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	once := fs.Bool("once", false, "run a single pass and exit")
	if err := fs.Parse(args); err != nil {
		return usagef("ingest: %v", err)
	}

	stages, err := ingest.ParseStages(cfg.Ingest.Stages)
	if err != nil {
		return usagef("%v", err)
	}

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	db, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	sched := ingest.New(client, db, ingest.Config{
		Period:                 cfg.Ingest.Period,
		Stages:                 stages,
		MaxPages:               cfg.Ingest.MaxPages,
		MaxConsecutiveFailures: cfg.Ingest.MaxConsecutiveFailures,
	}, logger)

	if *once {
		return sched.RunOnce(ctx)
	}
	logger.Info("ingest loop started", "period", cfg.Ingest.Period, "environment", cfg.Environment)
	return sched.Run(ctx)
}

func cmdScan(ctx context.Context, args []string, cfg *config.Config, logger *slog.Logger) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	profileName := fs.String("profile", "standard", "quality profile: early | standard | strict")
	limit := fs.Int("limit", 20, "max rows to print")
	period := fs.Duration("period", time.Hour, "movers: comparison lookback")
	window := fs.Duration("window", 24*time.Hour, "expiring-soon lookahead / new-markets age window")
	epsilon := fs.Float64("epsilon", 0.02, "arbitrage: minimum excess probability")
	includeUnpriced := fs.Bool("include-unpriced", false, "new-markets: include markets with no quotes yet")
	if err := fs.Parse(args); err != nil {
		return usagef("scan: %v", err)
	}
	if fs.NArg() != 1 {
		return usagef("scan: exactly one mode required")
	}
	mode := fs.Arg(0)

	profile, err := scanner.ProfileByName(*profileName)
	if err != nil {
		return usagef("%v", err)
	}

	db, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	markets, err := db.ListMarkets(ctx, store.MarketQuery{})
	if err != nil {
		return err
	}
	sc := scanner.New(db, logger)

	var hits []scanner.Opportunity
	switch mode {
	case "close-race":
		hits = sc.CloseRace(markets, profile, 0.40, 0.60)
	case "high-volume":
		hits = sc.HighVolume(markets, profile)
	case "wide-spread":
		hits = sc.WideSpread(markets, profile)
	case "expiring-soon":
		hits = sc.ExpiringSoon(markets, profile, *window)
	case "movers":
		hits, err = sc.Movers(ctx, markets, profile, *period)
		if err != nil {
			return err
		}
	case "new-markets":
		hits = sc.NewMarkets(markets, profile, *window, *includeUnpriced)
	case "arbitrage":
		byEvent := map[string][]types.Market{}
		for _, m := range markets {
			if m.EventTicker != "" {
				byEvent[m.EventTicker] = append(byEvent[m.EventTicker], m)
			}
		}
		groups := make([][]types.Market, 0, len(byEvent))
		for _, g := range byEvent {
			groups = append(groups, g)
		}
		arbs := sc.Arbitrage(groups, *epsilon)
		for i, a := range arbs {
			if i >= *limit {
				break
			}
			fmt.Printf("sum_yes=%.3f excess=%.3f  %s\n", a.SumYes, a.Excess, strings.Join(a.Tickers, " + "))
		}
		if len(arbs) == 0 {
			fmt.Println("no hits")
		}
		return nil
	default:
		return usagef("scan: unknown mode %q", mode)
	}

	for i, h := range hits {
		if i >= *limit {
			break
		}
		label := ""
		if h.Label != "" {
			label = " " + h.Label
		}
		fmt.Printf("%-32s %8.3f  %s%s\n", h.Market.Ticker, h.Score, h.Market.Title, label)
	}
	if len(hits) == 0 {
		fmt.Println("no hits")
	}
	return nil
}

func cmdAnalyze(ctx context.Context, args []string, cfg *config.Config, logger *slog.Logger) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	modeFlag := fs.String("mode", cfg.Agent.Mode, "research depth: fast | standard | deep")
	budget := fs.Float64("budget", cfg.Agent.BudgetUSD, "dollar cap for this run")
	if err := fs.Parse(args); err != nil {
		return usagef("analyze: %v", err)
	}
	if fs.NArg() != 1 {
		return usagef("analyze: exactly one ticker required")
	}
	ticker := fs.Arg(0)

	mode, err := agent.ParseMode(*modeFlag)
	if err != nil {
		return usagef("%v", err)
	}

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	db, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	synthesizer, err := synth.New(cfg.Synth.Backend, cfg.Synth.Endpoint, cfg.Synth.APIKey, cfg.Synth.CostPerCall, logger)
	if err != nil {
		return usagef("%v", err)
	}

	agentCfg := agent.DefaultConfig()
	agentCfg.TopK = cfg.Agent.TopK
	agentCfg.PollInterval = cfg.Agent.PollInterval
	agentCfg.PollDeadline = cfg.Agent.PollDeadline

	orch := agent.New(client, db, db,
		research.NewMock(), synthesizer, verify.New(verify.DefaultConfig(), logger),
		agentCfg, logger)

	res, err := orch.Run(ctx, ticker, mode, *budget)
	if err != nil {
		if errors.Is(err, agent.ErrMarketNotFound) || errors.Is(err, agent.ErrMarketClosed) {
			return usagef("%v", err)
		}
		return err
	}

	fmt.Printf("ticker:     %s\n", ticker)
	fmt.Printf("mode:       %s\n", res.Mode)
	fmt.Printf("predicted:  %.3f\n", res.Analysis.PredictedProbability)
	fmt.Printf("confidence: %s\n", res.Analysis.Confidence)
	fmt.Printf("verified:   %t (grounding %.2f)\n", res.Verification.Passed, res.Verification.GroundingScore)
	fmt.Printf("cost:       $%.4f (remaining $%.4f)\n", res.TotalCostDollars, res.RemainingDollars)
	if res.Escalated {
		fmt.Println("escalation: suggested (deeper research or a stronger model)")
	}
	fmt.Println()
	fmt.Println(res.Analysis.Reasoning)
	return nil
}

func cmdPortfolio(ctx context.Context, args []string, cfg *config.Config, logger *slog.Logger) error {
	fs := flag.NewFlagSet("portfolio", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return usagef("portfolio: %v", err)
	}

	db, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	fills, err := db.ListFills(ctx, "")
	if err != nil {
		return err
	}
	settlements, err := db.ListSettlements(ctx)
	if err != nil {
		return err
	}

	rec := portfolio.NewReconciler(logger)
	rec.Apply(fills)
	rec.ApplySettlements(settlements)

	marks := portfolio.ChainMarks{portfolio.SnapshotMarks{History: db}}
	if client, err := newClient(cfg, logger); err == nil {
		marks = portfolio.ChainMarks{portfolio.BookMarks{Books: client}, portfolio.SnapshotMarks{History: db}}
	}
	rep := rec.Mark(ctx, marks)

	for _, p := range rep.Positions {
		mark := "unmarked"
		if p.Marked {
			mark = p.Mark.String()
		}
		fmt.Printf("%-32s %-3s qty=%-6d mark=%-9s realized=%s unrealized=%s fees=%s\n",
			p.Ticker, p.Side, p.Qty, mark, p.Realized, p.Unrealized, p.FeesPaid)
	}
	fmt.Printf("\nrealized=%s unrealized=%s fees=%s net=%s (%d fills, %d settlements)\n",
		rep.Realized, rep.Unrealized, rep.FeesPaid, rep.NetPnL, len(fills), len(settlements))
	return nil
}

func cmdAlerts(ctx context.Context, args []string, cfg *config.Config, logger *slog.Logger) error {
	fs := flag.NewFlagSet("alerts", flag.ContinueOnError)
	watch := fs.Bool("watch", false, "keep evaluating on the configured interval")
	if err := fs.Parse(args); err != nil {
		return usagef("alerts: %v", err)
	}

	db, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	eval := alerts.NewEvaluator(db, alerts.LogNotifier{Logger: logger}, logger)
	for {
		fired, err := eval.EvaluateAll(ctx)
		if err != nil {
			return err
		}
		if !*watch {
			fmt.Printf("%d alert(s) fired\n", fired)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Alerts.PollInterval):
		}
	}
}

func cmdPrune(ctx context.Context, args []string, cfg *config.Config, logger *slog.Logger) error {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	keep := fs.Duration("keep", 90*24*time.Hour, "retain rows newer than this")
	apply := fs.Bool("apply", false, "actually delete (default is a dry run)")
	if err := fs.Parse(args); err != nil {
		return usagef("prune: %v", err)
	}

	db, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	cutoff := time.Now().UTC().Add(-*keep)
	rep, err := db.Prune(ctx, cutoff, !*apply)
	if err != nil {
		return err
	}
	verb := "would delete"
	if *apply {
		verb = "deleted"
	}
	fmt.Printf("%s %d snapshot(s) and %d news item(s) older than %s\n",
		verb, rep.Snapshots, rep.News, cutoff.Format(time.RFC3339))
	return nil
}

func cmdReclaim(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Reclaim(ctx)
}
