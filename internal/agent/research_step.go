package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kalshi-edge/internal/research"
	"kalshi-edge/pkg/types"
)

// bundle is the evidence a research mode hands to the synthesizer.
// sources is the full URL set the provider actually returned; the
// verifier grounds factor citations against it.
type bundle struct {
	factors   []types.Factor
	citations []string
	sources   []string
}

func (b *bundle) addResult(r research.Result) {
	claim := r.Summary
	if claim == "" {
		claim = r.Title
	}
	if claim == "" {
		claim = r.URL
	}
	b.factors = append(b.factors, types.Factor{
		Claim:     claim,
		Polarity:  types.PolarityNeutral,
		Citations: []string{r.URL},
	})
	b.addSource(r.URL)
}

func (b *bundle) addSource(url string) {
	for _, s := range b.sources {
		if s == url {
			return
		}
	}
	b.sources = append(b.sources, url)
	b.citations = append(b.citations, url)
}

// research executes the selected mode's provider calls, charging the
// ledger with each call's reported cost. Sub-steps inside standard
// mode are individually estimate-gated and silently skipped when
// unaffordable.
func (o *Orchestrator) research(ctx context.Context, logger *slog.Logger, market types.Market, mode Mode, bank *ledger) (bundle, error) {
	query := market.Title
	if query == "" {
		query = market.Ticker
	}

	switch mode {
	case ModeFast:
		return o.fastResearch(ctx, query, bank)
	case ModeStandard:
		return o.standardResearch(ctx, logger, query, bank)
	case ModeDeep:
		return o.deepResearch(ctx, market, bank)
	}
	return bundle{}, fmt.Errorf("agent: unknown research mode %q", mode)
}

func (o *Orchestrator) fastResearch(ctx context.Context, query string, bank *ledger) (bundle, error) {
	resp, err := o.provider.Search(ctx, query, research.SearchOpts{
		NumResults: 5,
		Type:       research.SearchFast,
	})
	if err != nil {
		return bundle{}, fmt.Errorf("agent: fast search: %w", err)
	}
	bank.charge(resp.CostDollars)

	var b bundle
	for _, r := range resp.Results {
		b.addResult(r)
	}
	return b, nil
}

func (o *Orchestrator) standardResearch(ctx context.Context, logger *slog.Logger, query string, bank *ledger) (bundle, error) {
	resp, err := o.provider.Search(ctx, query, research.SearchOpts{
		NumResults: 10,
		Type:       research.SearchAuto,
		Contents:   &research.ContentsSpec{Summary: true},
	})
	if err != nil {
		return bundle{}, fmt.Errorf("agent: search: %w", err)
	}
	bank.charge(resp.CostDollars)

	var b bundle
	for _, r := range resp.Results {
		b.addResult(r)
	}

	if topK := min(o.cfg.TopK, len(resp.Results)); topK > 0 && bank.reserve(o.cfg.Estimates.Contents) {
		urls := make([]string, topK)
		for i := range urls {
			urls[i] = resp.Results[i].URL
		}
		contents, err := o.provider.GetContents(ctx, urls, research.ContentsOpts{
			Text:      true,
			Livecrawl: research.LivecrawlFallback,
		})
		if err != nil {
			return bundle{}, fmt.Errorf("agent: contents: %w", err)
		}
		bank.charge(contents.CostDollars)
		// Full texts replace the search-result snippets for the top hits.
		byURL := make(map[string]string, len(contents.Results))
		for _, c := range contents.Results {
			if c.Text != "" {
				byURL[c.URL] = c.Text
			}
		}
		for i, f := range b.factors {
			if len(f.Citations) == 1 {
				if text, ok := byURL[f.Citations[0]]; ok {
					b.factors[i].Claim = text
				}
			}
		}
	} else {
		logger.Debug("contents step skipped", "remaining_usd", bank.remaining)
	}

	if bank.reserve(o.cfg.Estimates.Answer) {
		ans, err := o.provider.Answer(ctx, query, research.SearchOpts{})
		if err != nil {
			return bundle{}, fmt.Errorf("agent: answer: %w", err)
		}
		bank.charge(ans.CostDollars)
		b.factors = append(b.factors, types.Factor{
			Claim:     ans.Answer,
			Polarity:  types.PolarityNeutral,
			Citations: ans.Citations,
		})
		for _, c := range ans.Citations {
			b.addSource(c)
		}
	} else {
		logger.Debug("answer step skipped", "remaining_usd", bank.remaining)
	}
	return b, nil
}

func (o *Orchestrator) deepResearch(ctx context.Context, market types.Market, bank *ledger) (bundle, error) {
	instructions := fmt.Sprintf(
		"Research the binary market %q (%s). Gather evidence for and against YES resolution.",
		market.Title, market.Ticker)
	taskID, err := o.provider.StartResearchTask(ctx, instructions, "deep-default", nil)
	if err != nil {
		return bundle{}, fmt.Errorf("agent: starting research task: %w", err)
	}

	deadline := time.NewTimer(o.cfg.PollDeadline)
	defer deadline.Stop()
	tick := time.NewTicker(o.cfg.PollInterval)
	defer tick.Stop()

	for {
		result, err := o.provider.PollResearchTask(ctx, taskID)
		if err != nil {
			return bundle{}, fmt.Errorf("agent: polling task %s: %w", taskID, err)
		}
		switch result.Status {
		case research.TaskCompleted:
			bank.charge(result.CostDollars)
			return bundle{factors: []types.Factor{{
				Claim:    result.Output,
				Polarity: types.PolarityNeutral,
			}}}, nil
		case research.TaskFailed:
			bank.charge(result.CostDollars)
			return bundle{}, fmt.Errorf("agent: research task %s failed", taskID)
		}

		select {
		case <-ctx.Done():
			return bundle{}, ctx.Err()
		case <-deadline.C:
			return bundle{}, fmt.Errorf("agent: research task %s exceeded polling deadline %s", taskID, o.cfg.PollDeadline)
		case <-tick.C:
		}
	}
}
