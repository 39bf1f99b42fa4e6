package model

import "time"

// Category buckets a test for scheduling and reporting.
type Category string

const (
	CategoryUnit        Category = "unit"
	CategoryMock        Category = "mock"
	CategoryIntegration Category = "integration"
	CategoryAPI         Category = "api"
	CategoryProperty    Category = "property"
	CategoryFlaky       Category = "flaky"
)

// Categories returns all known categories in a stable order.
func Categories() []Category {
	return []Category{
		CategoryUnit,
		CategoryMock,
		CategoryIntegration,
		CategoryAPI,
		CategoryProperty,
		CategoryFlaky,
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryUnit, CategoryMock, CategoryIntegration, CategoryAPI, CategoryProperty, CategoryFlaky:
		return true
	}
	return false
}

// Priority is the execution ordering tier. Lower values run first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	}
	return "unknown"
}

// Status is the terminal outcome of a single test attempt.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusErrored Status = "errored"
	StatusSkipped Status = "skipped"
)

// TestCase describes one discovered test and its scheduling metadata.
// Discovery creates it; the classifier assigns category and priority;
// after that it is treated as immutable for the run.
type TestCase struct {
	// Fully-qualified identity: suite + "." + name
	ID string `json:"id"`
	// Suite is the package the test belongs to
	Suite string `json:"suite"`
	// Name of the test function
	Name string `json:"name"`
	// Source file the test was discovered in
	File string `json:"file"`
	// Line number of the test function
	Line int `json:"line"`
	// Category assigned by directive or classifier
	Category Category `json:"category"`
	// Priority tier, lower runs first
	Priority Priority `json:"priority"`
	// ParallelSafe marks the test eligible for concurrent execution
	ParallelSafe bool `json:"parallel_safe"`
	// RequiresAuth marks tests needing live credentials (forced sequential)
	RequiresAuth bool `json:"requires_auth"`
	// RequiresNetwork marks tests hitting the network
	RequiresNetwork bool `json:"requires_network"`
	// CategoryAnnotated is set when the category came from an explicit directive
	CategoryAnnotated bool `json:"-"`
	// PriorityAnnotated is set when the priority came from an explicit directive
	PriorityAnnotated bool `json:"-"`
}

// TestResult is the outcome of one attempt of one test. A retried flaky
// test produces one result per attempt.
type TestResult struct {
	RunID     string        `json:"run_id"`
	TestID    string        `json:"test_id"`
	Attempt   int           `json:"attempt"`
	Status    Status        `json:"status"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// RunSummary aggregates one orchestrator invocation.
type RunSummary struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Total     int           `json:"total"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
	Errored   int           `json:"errored"`
	Skipped   int           `json:"skipped"`
	// Configuration snapshot
	Parallel bool `json:"parallel"`
	Workers  int  `json:"workers"`
	FailFast bool `json:"fail_fast"`
}

// SuccessRate returns the passed fraction as a percentage.
func (s RunSummary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Total) * 100
}

// RunConfig is the per-invocation execution configuration.
type RunConfig struct {
	Parallel    bool
	Workers     int
	FailFast    bool
	Categories  []Category
	RetryBudget int
	CI          bool
}

// HistoricalMetric is derived per-test statistics over a lookback window.
// Computed on demand by the analytics engine, never stored.
type HistoricalMetric struct {
	TestID       string        `json:"test_id"`
	Runs         int           `json:"runs"`
	Passes       int           `json:"passes"`
	Failures     int           `json:"failures"`
	MinDuration  time.Duration `json:"min_duration"`
	MaxDuration  time.Duration `json:"max_duration"`
	MeanDuration time.Duration `json:"mean_duration"`
	// Fraction of executions whose outcome differs from the modal outcome
	FlakinessScore float64   `json:"flakiness_score"`
	LastRun        time.Time `json:"last_run"`
}

// Batch is one concurrency unit of the execution plan. Batches are
// synchronization barriers: the next batch starts only after every case
// in the current one reported a terminal status.
type Batch struct {
	Cases    []TestCase
	Parallel bool
}

// Plan is the ordered batch sequence produced by the scheduler.
type Plan struct {
	Batches []Batch
}

// Total returns the number of test cases across all batches.
func (p Plan) Total() int {
	n := 0
	for _, b := range p.Batches {
		n += len(b.Cases)
	}
	return n
}
