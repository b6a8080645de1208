package exchange

import (
	"context"
	"os"
	"testing"
	"time"

	"kalshi-edge/pkg/types"
)

// Live integration coverage against the demo exchange. Opt in with
// RUN_LIVE_API=1; everything here reads public market data only.

func liveClient(t *testing.T) *Client {
	t.Helper()
	if os.Getenv("RUN_LIVE_API") != "1" {
		t.Skip("set RUN_LIVE_API=1 to run live API tests")
	}
	return NewPublicClient("https://demo-api.kalshi.co", NewRateLimiter(TierBasic, quietLogger()), quietLogger())
}

func TestLiveGetMarkets(t *testing.T) {
	client := liveClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	markets, err := client.GetMarkets(ctx, MarketFilter{Status: types.StatusOpen, MaxPages: 1})
	if err != nil {
		t.Fatalf("GetMarkets() error: %v", err)
	}
	if len(markets) == 0 {
		t.Skip("demo exchange has no open markets right now")
	}
	for _, m := range markets[:min(5, len(markets))] {
		if m.Ticker == "" {
			t.Errorf("market with empty ticker: %+v", m)
		}
		if m.YesBid > m.YesAsk && m.YesAsk != 0 {
			t.Errorf("%s: yes_bid %v above yes_ask %v", m.Ticker, m.YesBid, m.YesAsk)
		}
	}
}

func TestLiveGetOrderbook(t *testing.T) {
	client := liveClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	markets, err := client.GetMarkets(ctx, MarketFilter{Status: types.StatusOpen, MaxPages: 1})
	if err != nil {
		t.Fatalf("GetMarkets() error: %v", err)
	}
	if len(markets) == 0 {
		t.Skip("demo exchange has no open markets right now")
	}

	ob, err := client.GetOrderbook(ctx, markets[0].Ticker, 0)
	if err != nil {
		t.Fatalf("GetOrderbook(%s) error: %v", markets[0].Ticker, err)
	}
	for _, lvl := range append(append([]types.Level{}, ob.YesBids...), ob.NoBids...) {
		if lvl.Quantity <= 0 {
			t.Errorf("level %+v has non-positive quantity", lvl)
		}
	}
}
