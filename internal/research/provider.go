// Package research defines the external evidence-gathering contract
// the agent pipeline consumes. Implementations are thin adapters over
// a hosted search API; everything here is provider-neutral, and every
// call reports its dollar cost so the orchestrator can enforce a hard
// budget before starting the next step.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SearchType selects the provider's retrieval strategy.
type SearchType string

const (
	SearchAuto   SearchType = "auto"
	SearchNeural SearchType = "neural"
	SearchFast   SearchType = "fast"
	SearchDeep   SearchType = "deep"
)

// Livecrawl controls whether contents are fetched fresh or from the
// provider's index.
type Livecrawl string

const (
	LivecrawlNever     Livecrawl = "never"
	LivecrawlFallback  Livecrawl = "fallback"
	LivecrawlPreferred Livecrawl = "preferred"
	LivecrawlAlways    Livecrawl = "always"
	LivecrawlAuto      Livecrawl = "auto"
)

// ContentsSpec selects which content fields come back with results.
type ContentsSpec struct {
	Text       bool
	Highlights bool
	Summary    bool
}

// SearchOpts tunes Search and FindSimilar. The zero value asks for the
// provider defaults.
type SearchOpts struct {
	NumResults     int // 1..100; 0 = provider default
	Type           SearchType
	Category       string
	StartDate      time.Time
	EndDate        time.Time
	IncludeDomains []string
	ExcludeDomains []string
	IncludeText    string
	ExcludeText    string
	Contents       *ContentsSpec
}

func (o SearchOpts) Validate() error {
	if o.NumResults < 0 || o.NumResults > 100 {
		return fmt.Errorf("research: num_results %d outside 1..100", o.NumResults)
	}
	switch o.Type {
	case "", SearchAuto, SearchNeural, SearchFast, SearchDeep:
	default:
		return fmt.Errorf("research: unknown search type %q", o.Type)
	}
	if !o.StartDate.IsZero() && !o.EndDate.IsZero() && o.EndDate.Before(o.StartDate) {
		return fmt.Errorf("research: end_date before start_date")
	}
	return nil
}

// ContentsOpts tunes GetContents.
type ContentsOpts struct {
	Text             bool
	Highlights       bool
	Summary          bool
	Livecrawl        Livecrawl
	LivecrawlTimeout time.Duration
}

func (o ContentsOpts) Validate() error {
	switch o.Livecrawl {
	case "", LivecrawlNever, LivecrawlFallback, LivecrawlPreferred, LivecrawlAlways, LivecrawlAuto:
		return nil
	}
	return fmt.Errorf("research: unknown livecrawl mode %q", o.Livecrawl)
}

// Result is one retrieved document.
type Result struct {
	URL         string
	Title       string
	PublishedAt time.Time
	Score       float64
	Text        string
	Summary     string
	Highlights  []string
}

// SearchResponse carries results plus the dollar cost of the call.
type SearchResponse struct {
	Results     []Result
	CostDollars float64
}

// AnswerResponse is a direct question answer with its sources.
type AnswerResponse struct {
	Answer      string
	Citations   []string
	CostDollars float64
}

// TaskStatus is the lifecycle of an asynchronous research task.
type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// TaskResult is one poll of an asynchronous research task. Output is
// set only when Status is completed; CostDollars is the total accrued
// so far.
type TaskResult struct {
	Status      TaskStatus
	Output      string
	CostDollars float64
}

// Provider is the narrow research capability the orchestrator consumes.
// Every operation reports cost; callers check budget before invoking.
type Provider interface {
	Search(ctx context.Context, query string, opts SearchOpts) (SearchResponse, error)
	GetContents(ctx context.Context, urls []string, opts ContentsOpts) (SearchResponse, error)
	FindSimilar(ctx context.Context, url string, opts SearchOpts) (SearchResponse, error)
	Answer(ctx context.Context, question string, opts SearchOpts) (AnswerResponse, error)
	StartResearchTask(ctx context.Context, instructions, model string, outputSchema json.RawMessage) (string, error)
	PollResearchTask(ctx context.Context, taskID string) (TaskResult, error)
}
