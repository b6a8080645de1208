package research

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Costs are the per-operation dollar charges a mock provider reports.
// They default to plausible list prices so budget logic can be
// exercised without a live key.
type Costs struct {
	Search   float64
	Contents float64 // per URL
	Answer   float64
	Task     float64
}

// DefaultCosts mirror typical hosted-search pricing.
var DefaultCosts = Costs{
	Search:   0.005,
	Contents: 0.001,
	Answer:   0.01,
	Task:     0.15,
}

// Mock is a deterministic in-process Provider for dry runs and tests.
// Results are synthesized from the query text; research tasks complete
// after PollsToComplete polls. Safe for concurrent use.
type Mock struct {
	Costs           Costs
	PollsToComplete int
	FailTasks       bool // every task ends failed

	mu    sync.Mutex
	tasks map[string]*mockTask
}

type mockTask struct {
	instructions string
	polls        int
}

// NewMock returns a mock charging DefaultCosts, completing tasks on
// the second poll.
func NewMock() *Mock {
	return &Mock{Costs: DefaultCosts, PollsToComplete: 2, tasks: make(map[string]*mockTask)}
}

func mockResults(seed string, n int) []Result {
	if n <= 0 {
		n = 5
	}
	out := make([]Result, n)
	for i := range out {
		out[i] = Result{
			URL:     fmt.Sprintf("https://example.com/%s/%d", uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed)), i),
			Title:   fmt.Sprintf("Result %d for %q", i+1, seed),
			Score:   1 - float64(i)*0.1,
			Summary: fmt.Sprintf("Synthetic summary %d about %s.", i+1, seed),
		}
	}
	return out
}

func (m *Mock) Search(_ context.Context, query string, opts SearchOpts) (SearchResponse, error) {
	if err := opts.Validate(); err != nil {
		return SearchResponse{}, err
	}
	return SearchResponse{Results: mockResults(query, opts.NumResults), CostDollars: m.Costs.Search}, nil
}

func (m *Mock) GetContents(_ context.Context, urls []string, opts ContentsOpts) (SearchResponse, error) {
	if err := opts.Validate(); err != nil {
		return SearchResponse{}, err
	}
	results := make([]Result, len(urls))
	for i, u := range urls {
		results[i] = Result{URL: u, Title: "Contents of " + u, Text: "Synthetic full text for " + u}
	}
	return SearchResponse{Results: results, CostDollars: m.Costs.Contents * float64(len(urls))}, nil
}

func (m *Mock) FindSimilar(_ context.Context, url string, opts SearchOpts) (SearchResponse, error) {
	if err := opts.Validate(); err != nil {
		return SearchResponse{}, err
	}
	return SearchResponse{Results: mockResults("similar:"+url, opts.NumResults), CostDollars: m.Costs.Search}, nil
}

func (m *Mock) Answer(_ context.Context, question string, opts SearchOpts) (AnswerResponse, error) {
	if err := opts.Validate(); err != nil {
		return AnswerResponse{}, err
	}
	results := mockResults(question, 2)
	return AnswerResponse{
		Answer:      fmt.Sprintf("Synthetic answer to %q.", question),
		Citations:   []string{results[0].URL, results[1].URL},
		CostDollars: m.Costs.Answer,
	}, nil
}

func (m *Mock) StartResearchTask(_ context.Context, instructions, _ string, _ json.RawMessage) (string, error) {
	id := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tasks == nil {
		m.tasks = make(map[string]*mockTask)
	}
	m.tasks[id] = &mockTask{instructions: instructions}
	return id, nil
}

func (m *Mock) PollResearchTask(_ context.Context, taskID string) (TaskResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return TaskResult{}, fmt.Errorf("research: unknown task %s", taskID)
	}
	task.polls++
	if task.polls < m.PollsToComplete {
		return TaskResult{Status: TaskRunning, CostDollars: m.Costs.Task}, nil
	}
	if m.FailTasks {
		return TaskResult{Status: TaskFailed, CostDollars: m.Costs.Task}, nil
	}
	return TaskResult{
		Status:      TaskCompleted,
		Output:      fmt.Sprintf("Synthetic deep-research report: %s", task.instructions),
		CostDollars: m.Costs.Task,
	}, nil
}

var _ Provider = (*Mock)(nil)
