// Package analytics derives per-test statistics from persisted
// results: flakiness scores, slow-test rankings and parallelization
// suggestions.
package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/testpilot/testpilot/model"
)

// Defaults for analysis thresholds.
const (
	DefaultFlakyThreshold = 0.2
	DefaultFlakyMinRuns   = 3
	DefaultSlowTop        = 10

	fastCeiling = 1 * time.Second
	slowFloor   = 5 * time.Second
)

// ResultSource provides read access to persisted results. The store
// implements it; tests substitute fixtures.
type ResultSource interface {
	ResultsSince(cutoff time.Time, testID string) ([]model.TestResult, error)
}

// Engine computes historical metrics from a result source.
type Engine struct {
	source ResultSource
	// FlakyThreshold is the minimum flakiness score to report a test
	// as flaky.
	FlakyThreshold float64
	// FlakyMinRuns is the minimum execution count before a flakiness
	// score is meaningful.
	FlakyMinRuns int
	now          func() time.Time
}

// New returns an engine with default thresholds.
func New(source ResultSource) *Engine {
	return &Engine{
		source:         source,
		FlakyThreshold: DefaultFlakyThreshold,
		FlakyMinRuns:   DefaultFlakyMinRuns,
		now:            time.Now,
	}
}

// Suggestion is the parallelization advice derived from history.
type Suggestion struct {
	FastTests   int `json:"fast_tests"`
	MediumTests int `json:"medium_tests"`
	SlowTests   int `json:"slow_tests"`
	// SuggestedWorkers is the recommended worker pool size.
	SuggestedWorkers int `json:"suggested_workers"`
	// EstimatedSpeedup over fully sequential execution.
	EstimatedSpeedup float64 `json:"estimated_speedup"`
	// ExcludeFromParallel lists tests that should stay out of parallel
	// batches: their history shows unstable outcomes.
	ExcludeFromParallel []string `json:"exclude_from_parallel,omitempty"`
}

// Metrics computes per-test metrics over the lookback window, sorted by
// test identity for stable output. testID narrows to one test when
// non-empty.
func (e *Engine) Metrics(days int, testID string) ([]model.HistoricalMetric, error) {
	cutoff := e.now().AddDate(0, 0, -days)
	results, err := e.source.ResultsSince(cutoff, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}

	byTest := make(map[string][]model.TestResult)
	for _, res := range results {
		// Skips carry no execution signal.
		if res.Status == model.StatusSkipped {
			continue
		}
		byTest[res.TestID] = append(byTest[res.TestID], res)
	}

	metrics := make([]model.HistoricalMetric, 0, len(byTest))
	for id, rs := range byTest {
		metrics = append(metrics, e.compute(id, rs))
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].TestID < metrics[j].TestID })
	return metrics, nil
}

// MetricsByTest returns the same metrics keyed by test identity, the
// shape the classifier consumes.
func (e *Engine) MetricsByTest(days int) (map[string]model.HistoricalMetric, error) {
	metrics, err := e.Metrics(days, "")
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.HistoricalMetric, len(metrics))
	for _, m := range metrics {
		out[m.TestID] = m
	}
	return out, nil
}

func (e *Engine) compute(id string, results []model.TestResult) model.HistoricalMetric {
	m := model.HistoricalMetric{TestID: id, Runs: len(results)}

	outcomes := make(map[model.Status]int)
	var total time.Duration
	for i, res := range results {
		outcomes[res.Status]++
		if res.Status == model.StatusPassed {
			m.Passes++
		} else {
			m.Failures++
		}
		total += res.Duration
		if i == 0 || res.Duration < m.MinDuration {
			m.MinDuration = res.Duration
		}
		if res.Duration > m.MaxDuration {
			m.MaxDuration = res.Duration
		}
		if res.Timestamp.After(m.LastRun) {
			m.LastRun = res.Timestamp
		}
	}
	m.MeanDuration = total / time.Duration(len(results))

	// Flakiness: fraction of executions differing from the modal
	// outcome. Only meaningful with enough runs and at least two
	// distinct outcomes.
	if len(outcomes) >= 2 && m.Runs >= e.FlakyMinRuns {
		modal := 0
		for _, count := range outcomes {
			if count > modal {
				modal = count
			}
		}
		m.FlakinessScore = float64(m.Runs-modal) / float64(m.Runs)
	}
	return m
}

// FlakyTests returns tests whose flakiness score exceeds the threshold,
// most flaky first.
func (e *Engine) FlakyTests(days int) ([]model.HistoricalMetric, error) {
	metrics, err := e.Metrics(days, "")
	if err != nil {
		return nil, err
	}
	var flaky []model.HistoricalMetric
	for _, m := range metrics {
		if m.FlakinessScore > e.FlakyThreshold {
			flaky = append(flaky, m)
		}
	}
	sort.SliceStable(flaky, func(i, j int) bool { return flaky[i].FlakinessScore > flaky[j].FlakinessScore })
	return flaky, nil
}

// SlowTests returns the topK tests by mean duration, slowest first.
func (e *Engine) SlowTests(days, topK int) ([]model.HistoricalMetric, error) {
	metrics, err := e.Metrics(days, "")
	if err != nil {
		return nil, err
	}
	sort.SliceStable(metrics, func(i, j int) bool { return metrics[i].MeanDuration > metrics[j].MeanDuration })
	if topK > 0 && topK < len(metrics) {
		metrics = metrics[:topK]
	}
	return metrics, nil
}

// SuggestParallelization buckets tests by mean duration and recommends
// a worker count sized to the medium and slow buckets, clamped to 2..8.
func (e *Engine) SuggestParallelization(days int) (Suggestion, error) {
	metrics, err := e.Metrics(days, "")
	if err != nil {
		return Suggestion{}, err
	}

	var sug Suggestion
	var sequentialTime time.Duration
	for _, m := range metrics {
		switch {
		case m.MeanDuration < fastCeiling:
			sug.FastTests++
		case m.MeanDuration < slowFloor:
			sug.MediumTests++
		default:
			sug.SlowTests++
		}
		sequentialTime += m.MeanDuration
		if m.FlakinessScore > e.FlakyThreshold {
			sug.ExcludeFromParallel = append(sug.ExcludeFromParallel, m.TestID)
		}
	}

	sug.SuggestedWorkers = clamp(sug.MediumTests+sug.SlowTests, 2, 8)
	sug.EstimatedSpeedup = 1.0
	if sequentialTime > 0 {
		parallelTime := sequentialTime / time.Duration(sug.SuggestedWorkers)
		if parallelTime > 0 {
			sug.EstimatedSpeedup = float64(sequentialTime) / float64(parallelTime)
		}
	}
	return sug, nil
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
