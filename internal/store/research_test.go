package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kalshi-edge/pkg/types"
)

func TestThesisCRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateThesis(ctx, types.Thesis{
		Title:             "Fed holds in June",
		Markets:           []string{"FED-24JUN", "FED-24JUL"},
		Notes:             "dot plot unchanged",
		YourProbability:   0.72,
		MarketProbability: 0.61,
		Confidence:        types.ConfidenceMedium,
		Status:            types.ThesisActive,
	})
	require.NoError(t, err)
	_, parseErr := uuid.Parse(id)
	assert.NoError(t, parseErr, "assigned ID must be a UUID")

	th, err := s.GetThesis(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Fed holds in June", th.Title)
	assert.Equal(t, []string{"FED-24JUN", "FED-24JUL"}, th.Markets)
	assert.False(t, th.CreatedAt.IsZero())

	th.Notes = "updated after CPI print"
	require.NoError(t, s.UpdateThesis(ctx, th))
	th2, err := s.GetThesis(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "updated after CPI print", th2.Notes)

	require.NoError(t, s.ResolveThesis(ctx, id, "yes"))
	th3, err := s.GetThesis(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.ThesisResolved, th3.Status)
	assert.Equal(t, "yes", th3.ResolutionOutcome)

	byMarket, err := s.ThesesForMarket(ctx, "FED-24JUL")
	require.NoError(t, err)
	assert.Len(t, byMarket, 1)

	require.NoError(t, s.DeleteThesis(ctx, id))
	_, err = s.GetThesis(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteThesis(ctx, id), ErrNotFound)
}

func TestPredictionInsertAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.InsertPrediction(ctx, types.PredictionLog{
		Ticker:           "M-1",
		PredictedProb:    0.70,
		MarketProbAtTime: 0.46,
		Confidence:       types.ConfidenceMedium,
		Reasoning:        "weather model consensus",
		FactorsJSON:      `[{"claim":"forecast shows 87F","polarity":"bullish","citations":["https://example.com/f"]}]`,
		Status:           types.PredictionOK,
		PredictedAt:      ts(12, 0),
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	// A failed run is persisted too, with its diagnostic.
	_, err = s.InsertPrediction(ctx, types.PredictionLog{
		Ticker:      "M-2",
		Status:      types.PredictionFailed,
		Diagnostic:  "research budget exhausted",
		PredictedAt: ts(12, 5),
	})
	require.NoError(t, err)

	ok, err := s.ListPredictions(ctx, PredictionQuery{Status: types.PredictionOK})
	require.NoError(t, err)
	require.Len(t, ok, 1)
	assert.Equal(t, "M-1", ok[0].Ticker)
	assert.Nil(t, ok[0].ActualOutcome)

	failed, err := s.ListPredictions(ctx, PredictionQuery{Status: types.PredictionFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "research budget exhausted", failed[0].Diagnostic)
}

func TestResolveOutcomesComputesBrier(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertPrediction(ctx, types.PredictionLog{
		Ticker: "M-YES", PredictedProb: 0.70, Status: types.PredictionOK, PredictedAt: ts(12, 0),
	})
	require.NoError(t, err)
	_, err = s.InsertPrediction(ctx, types.PredictionLog{
		Ticker: "M-NO", PredictedProb: 0.30, Status: types.PredictionOK, PredictedAt: ts(12, 0),
	})
	require.NoError(t, err)
	_, err = s.InsertPrediction(ctx, types.PredictionLog{
		Ticker: "M-OPEN", PredictedProb: 0.50, Status: types.PredictionOK, PredictedAt: ts(12, 0),
	})
	require.NoError(t, err)
	// Failed runs never resolve.
	_, err = s.InsertPrediction(ctx, types.PredictionLog{
		Ticker: "M-YES", Status: types.PredictionFailed, PredictedAt: ts(12, 0),
	})
	require.NoError(t, err)

	require.NoError(t, s.UpsertSettlements(ctx, []types.Settlement{
		{Ticker: "M-YES", Value: 1, SettledAt: ts(21, 0)},
		{Ticker: "M-NO", Value: 0, SettledAt: ts(21, 0)},
	}))

	n, err := s.ResolveOutcomes(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// Second pass is a no-op.
	n, err = s.ResolveOutcomes(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	yes, err := s.ListPredictions(ctx, PredictionQuery{Ticker: "M-YES", Status: types.PredictionOK})
	require.NoError(t, err)
	require.Len(t, yes, 1)
	require.NotNil(t, yes[0].ActualOutcome)
	assert.Equal(t, 1, *yes[0].ActualOutcome)
	require.NotNil(t, yes[0].BrierScore)
	assert.InDelta(t, 0.09, *yes[0].BrierScore, 1e-9) // (0.70 − 1)²
	require.NotNil(t, yes[0].ResolvedAt)
	assert.Equal(t, ts(21, 0), *yes[0].ResolvedAt)

	no, err := s.ListPredictions(ctx, PredictionQuery{Ticker: "M-NO"})
	require.NoError(t, err)
	require.Len(t, no, 1)
	require.NotNil(t, no[0].BrierScore)
	assert.InDelta(t, 0.09, *no[0].BrierScore, 1e-9) // (0.30 − 0)²

	unresolved, err := s.ListPredictions(ctx, PredictionQuery{Unresolved: true})
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "M-OPEN", unresolved[0].Ticker)

	cal, err := s.Calibration(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, cal.Resolved)
	assert.InDelta(t, 0.09, cal.MeanBrier, 1e-9)
}

func TestAlertLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateAlert(ctx, types.Alert{
		Kind: types.AlertPrice, Ticker: "M-1", Threshold: 60,
		Direction: types.AlertAbove, Active: true,
	})
	require.NoError(t, err)

	active, err := s.ListAlerts(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, types.AlertPrice, active[0].Kind)

	require.NoError(t, s.SetAlertActive(ctx, id, false))
	active, err = s.ListAlerts(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := s.ListAlerts(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteAlert(ctx, id))
	assert.ErrorIs(t, s.DeleteAlert(ctx, id), ErrNotFound)
}

func TestNewsAndSentiment(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertNews(ctx, []types.NewsItem{
		{Ticker: "M-1", Title: "old story", PublishedAt: ts(8, 0)},
		{Ticker: "M-1", Title: "new story", PublishedAt: ts(14, 0)},
		{Ticker: "M-2", Title: "other market", PublishedAt: ts(9, 0)},
	}))

	news, err := s.ListNews(ctx, "M-1", 0)
	require.NoError(t, err)
	require.Len(t, news, 2)
	assert.Equal(t, "new story", news[0].Title)

	one, err := s.ListNews(ctx, "M-1", 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)

	require.NoError(t, s.InsertSentiment(ctx, types.SentimentScore{
		Ticker: "M-1", Score: -0.2, SampleSize: 40, ScoredAt: ts(10, 0),
	}))
	require.NoError(t, s.InsertSentiment(ctx, types.SentimentScore{
		Ticker: "M-1", Score: 0.4, SampleSize: 55, ScoredAt: ts(13, 0),
	}))

	sc, err := s.LatestSentiment(ctx, "M-1")
	require.NoError(t, err)
	assert.Equal(t, 0.4, sc.Score)

	_, err = s.LatestSentiment(ctx, "M-9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPruneDryRunThenReal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertSnapshots(ctx, []types.PriceSnapshot{
		{Ticker: "M-1", SnapshotTS: ts(8, 0)},
		{Ticker: "M-1", SnapshotTS: ts(16, 0)},
	})
	require.NoError(t, err)
	require.NoError(t, s.InsertNews(ctx, []types.NewsItem{
		{Ticker: "M-1", Title: "stale", PublishedAt: ts(7, 0)},
		{Ticker: "M-1", Title: "fresh", PublishedAt: ts(15, 0)},
	}))

	cutoff := ts(12, 0)

	report, err := s.Prune(ctx, cutoff, true)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.EqualValues(t, 1, report.Snapshots)
	assert.EqualValues(t, 1, report.News)

	// Dry run deleted nothing.
	snaps, err := s.SnapshotsInRange(ctx, "M-1", ts(0, 0), ts(23, 0))
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	report, err = s.Prune(ctx, cutoff, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.Snapshots)

	snaps, err = s.SnapshotsInRange(ctx, "M-1", ts(0, 0), ts(23, 0))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, ts(16, 0), snaps[0].SnapshotTS)

	require.NoError(t, s.Reclaim(ctx))
}
