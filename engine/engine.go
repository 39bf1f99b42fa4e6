// Package engine executes an execution plan batch by batch. Each batch
// is a synchronization barrier; parallel batches are drained by a
// worker pool bounded by the configured worker count.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/testpilot/testpilot/model"
)

// Invoker runs one test case and reports its outcome. Implementations
// must never panic across the boundary on an ordinary test failure;
// panics that do escape are converted to errored results.
type Invoker interface {
	Invoke(ctx context.Context, tc model.TestCase) (model.Status, string)
}

// Recorder persists test results as they complete. A write failure is
// fatal for the run: durability of the current run can no longer be
// guaranteed.
type Recorder interface {
	RecordResult(res model.TestResult) error
}

// Engine drives plan execution.
type Engine struct {
	logger   zerolog.Logger
	invoker  Invoker
	recorder Recorder
}

// New returns an engine running tests through invoker and persisting
// through recorder.
func New(logger zerolog.Logger, invoker Invoker, recorder Recorder) *Engine {
	return &Engine{logger: logger, invoker: invoker, recorder: recorder}
}

// Run executes the plan and returns the run summary plus the final
// result per test case (retry attempts are recorded individually but
// collapse into one final result).
//
// Fail-fast is evaluated at batch boundaries only: an already-dispatched
// batch runs to completion, then every case in the remaining batches is
// recorded as skipped.
func (e *Engine) Run(ctx context.Context, plan model.Plan, cfg model.RunConfig) (model.RunSummary, []model.TestResult, error) {
	start := time.Now()
	summary := model.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: start,
		Total:     plan.Total(),
		Parallel:  cfg.Parallel,
		Workers:   cfg.Workers,
		FailFast:  cfg.FailFast,
	}

	e.logger.Info().
		Int("tests", summary.Total).
		Bool("parallel", cfg.Parallel).
		Int("workers", cfg.Workers).
		Bool("fail_fast", cfg.FailFast).
		Msg("Starting test run")

	final := make([]model.TestResult, 0, summary.Total)
	aborted := false

	for _, batch := range plan.Batches {
		if aborted {
			for _, tc := range batch.Cases {
				res := model.TestResult{
					RunID:     summary.RunID,
					TestID:    tc.ID,
					Attempt:   1,
					Status:    model.StatusSkipped,
					Timestamp: time.Now(),
				}
				if err := e.recorder.RecordResult(res); err != nil {
					return summary, final, fmt.Errorf("failed to record result for %s: %w", tc.ID, err)
				}
				final = append(final, res)
				summary.Skipped++
			}
			continue
		}

		var results []model.TestResult
		var err error
		if batch.Parallel && cfg.Workers > 1 {
			results, err = e.runParallel(ctx, summary.RunID, batch, cfg)
		} else {
			results, err = e.runSequential(ctx, summary.RunID, batch, cfg)
		}
		if err != nil {
			return summary, final, err
		}

		for _, res := range results {
			final = append(final, res)
			switch res.Status {
			case model.StatusPassed:
				summary.Passed++
			case model.StatusFailed:
				summary.Failed++
			case model.StatusErrored:
				summary.Errored++
			case model.StatusSkipped:
				summary.Skipped++
			}
			if cfg.FailFast && (res.Status == model.StatusFailed || res.Status == model.StatusErrored) {
				aborted = true
			}
		}
		if aborted {
			e.logger.Warn().Msg("Fail fast: halting remaining batches")
		}
	}

	summary.Duration = time.Since(start)
	return summary, final, nil
}

func (e *Engine) runSequential(ctx context.Context, runID string, batch model.Batch, cfg model.RunConfig) ([]model.TestResult, error) {
	results := make([]model.TestResult, 0, len(batch.Cases))
	for _, tc := range batch.Cases {
		res, err := e.runCase(ctx, runID, tc, cfg)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// runParallel drains the batch through a pool bounded by cfg.Workers.
// Result order matches case order regardless of completion order.
func (e *Engine) runParallel(ctx context.Context, runID string, batch model.Batch, cfg model.RunConfig) ([]model.TestResult, error) {
	results := make([]model.TestResult, len(batch.Cases))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, tc := range batch.Cases {
		i, tc := i, tc
		g.Go(func() error {
			res, err := e.runCase(gctx, runID, tc, cfg)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// runCase drives one test through its attempt state machine:
// running -> {passed, failed, errored}, with failed/errored looping back
// through retrying while the flaky retry budget lasts. Every attempt is
// recorded; the final status is the first pass, else the last failure.
func (e *Engine) runCase(ctx context.Context, runID string, tc model.TestCase, cfg model.RunConfig) (model.TestResult, error) {
	budget := 0
	if tc.Category == model.CategoryFlaky {
		budget = cfg.RetryBudget
	}

	var res model.TestResult
	for attempt := 1; attempt <= budget+1; attempt++ {
		res = e.invokeOnce(ctx, runID, tc, attempt)
		if err := e.recorder.RecordResult(res); err != nil {
			return res, fmt.Errorf("failed to record result for %s: %w", tc.ID, err)
		}
		if res.Status == model.StatusPassed {
			break
		}
		if attempt <= budget {
			e.logger.Warn().
				Str("test", tc.ID).
				Int("attempt", attempt).
				Str("status", string(res.Status)).
				Msg("Flaky test did not pass, retrying")
		}
	}

	e.logger.Debug().
		Str("test", tc.ID).
		Str("status", string(res.Status)).
		Dur("duration", res.Duration).
		Msg("Test completed")
	return res, nil
}

func (e *Engine) invokeOnce(ctx context.Context, runID string, tc model.TestCase, attempt int) model.TestResult {
	start := time.Now()
	status, errMsg := e.safeInvoke(ctx, tc)
	return model.TestResult{
		RunID:     runID,
		TestID:    tc.ID,
		Attempt:   attempt,
		Status:    status,
		Duration:  time.Since(start),
		Error:     errMsg,
		Timestamp: start,
	}
}

// safeInvoke is the invocation boundary: a panicking test is recorded
// as errored, never crashing the orchestrator.
func (e *Engine) safeInvoke(ctx context.Context, tc model.TestCase) (status model.Status, errMsg string) {
	defer func() {
		if r := recover(); r != nil {
			status = model.StatusErrored
			errMsg = fmt.Sprintf("panic during invocation: %v", r)
		}
	}()
	return e.invoker.Invoke(ctx, tc)
}
