package research

import (
	"context"
	"testing"
	"time"
)

func TestSearchOptsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    SearchOpts
		wantErr bool
	}{
		{"zero value", SearchOpts{}, false},
		{"max results", SearchOpts{NumResults: 100}, false},
		{"too many results", SearchOpts{NumResults: 101}, true},
		{"negative results", SearchOpts{NumResults: -1}, true},
		{"known type", SearchOpts{Type: SearchNeural}, false},
		{"unknown type", SearchOpts{Type: "psychic"}, true},
		{"inverted dates", SearchOpts{
			StartDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.opts.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestContentsOptsValidate(t *testing.T) {
	t.Parallel()

	if err := (ContentsOpts{Livecrawl: LivecrawlFallback}).Validate(); err != nil {
		t.Errorf("fallback: %v", err)
	}
	if err := (ContentsOpts{Livecrawl: "sometimes"}).Validate(); err == nil {
		t.Error("unknown livecrawl mode accepted")
	}
}

func TestMockSearchReportsCost(t *testing.T) {
	t.Parallel()

	m := NewMock()
	resp, err := m.Search(context.Background(), "fed rate decision", SearchOpts{NumResults: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Errorf("got %d results, want 3", len(resp.Results))
	}
	if resp.CostDollars != DefaultCosts.Search {
		t.Errorf("cost = %v, want %v", resp.CostDollars, DefaultCosts.Search)
	}
}

func TestMockContentsCostScalesPerURL(t *testing.T) {
	t.Parallel()

	m := NewMock()
	resp, err := m.GetContents(context.Background(), []string{"https://a", "https://b", "https://c"}, ContentsOpts{Text: true})
	if err != nil {
		t.Fatalf("GetContents: %v", err)
	}
	if want := DefaultCosts.Contents * 3; resp.CostDollars != want {
		t.Errorf("cost = %v, want %v", resp.CostDollars, want)
	}
}

func TestMockTaskLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMock()

	id, err := m.StartResearchTask(ctx, "will the fed cut in march", "deep-1", nil)
	if err != nil {
		t.Fatalf("StartResearchTask: %v", err)
	}

	first, err := m.PollResearchTask(ctx, id)
	if err != nil {
		t.Fatalf("poll 1: %v", err)
	}
	if first.Status != TaskRunning {
		t.Errorf("poll 1 status = %q, want running", first.Status)
	}

	second, err := m.PollResearchTask(ctx, id)
	if err != nil {
		t.Fatalf("poll 2: %v", err)
	}
	if second.Status != TaskCompleted || second.Output == "" {
		t.Errorf("poll 2 = %+v, want completed with output", second)
	}

	if _, err := m.PollResearchTask(ctx, "no-such-task"); err == nil {
		t.Error("unknown task id accepted")
	}
}

func TestMockSearchIsDeterministic(t *testing.T) {
	t.Parallel()

	m := NewMock()
	a, _ := m.Search(context.Background(), "same query", SearchOpts{NumResults: 2})
	b, _ := m.Search(context.Background(), "same query", SearchOpts{NumResults: 2})
	if a.Results[0].URL != b.Results[0].URL {
		t.Errorf("same query produced different URLs: %q vs %q", a.Results[0].URL, b.Results[0].URL)
	}
}
