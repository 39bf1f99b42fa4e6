package cli

// This file contains the run command: discovery, classification,
// scheduling and execution of the test suite.

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/testpilot/testpilot/analytics"
	"github.com/testpilot/testpilot/classify"
	"github.com/testpilot/testpilot/config"
	"github.com/testpilot/testpilot/discovery"
	"github.com/testpilot/testpilot/engine"
	"github.com/testpilot/testpilot/model"
	"github.com/testpilot/testpilot/schedule"
	"github.com/testpilot/testpilot/store"
)

// ciReportFile is where CI mode writes the structured summary.
const ciReportFile = "test-results.json"

func (a *App) run(ctx *cli.Context) error {
	root := ctx.Args().First()
	if root == "" {
		root = "."
	}

	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return err
	}

	categories, err := parseCategories(ctx.StringSlice("category"))
	if err != nil {
		return err
	}

	workers := cfg.Workers
	if ctx.IsSet("workers") {
		workers = ctx.Int("workers")
	}
	if workers < 1 {
		return fmt.Errorf("workers must be a positive integer, got %d", workers)
	}

	storePath := cfg.StorePath
	if ctx.IsSet("store") {
		storePath = ctx.String("store")
	}

	// The store must be writable up front: without durable recording
	// the run is not worth starting.
	st, err := store.Open(storePath)
	if err != nil {
		return fmt.Errorf("result store unavailable: %w", err)
	}
	defer st.Close()

	a.logger.Info().Str("root", root).Msg("Discovering tests")
	scanner := discovery.New(a.logger)
	reg, err := scanner.Scan(root)
	if err != nil {
		return err
	}
	a.logger.Info().Int("tests", reg.Len()).Msg("Discovery complete")

	analyzer := analytics.New(st)
	analyzer.FlakyThreshold = cfg.FlakyThreshold
	hist, err := analyzer.MetricsByTest(cfg.LookbackDays)
	if err != nil {
		// Missing history must not block a run.
		a.logger.Warn().Err(err).Msg("Failed to load historical metrics")
		hist = nil
	}

	classifier := classify.New(a.logger)
	classifier.FlakyThreshold = cfg.FlakyThreshold
	classifier.FlakyMinRuns = cfg.FlakyMinRuns
	classifier.Classify(reg, hist)

	runCfg := model.RunConfig{
		Parallel:    ctx.Bool("parallel"),
		Workers:     workers,
		FailFast:    ctx.Bool("fail-fast"),
		Categories:  categories,
		RetryBudget: cfg.RetryBudget,
		CI:          ctx.Bool("ci"),
	}

	plan := schedule.Build(reg, runCfg)
	if plan.Total() == 0 {
		fmt.Println("No tests matched the requested categories")
		return nil
	}

	invoker := engine.NewGoTestInvoker(a.logger, cfg.TestTimeout)
	eng := engine.New(a.logger, invoker, st)

	summary, results, err := eng.Run(ctx.Context, plan, runCfg)
	if err != nil {
		return fmt.Errorf("run aborted, results may be incomplete: %w", err)
	}

	// The summary row finalizes the run for analytics readers.
	if err := st.RecordSummary(summary); err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}

	a.printSummary(summary, results, invoker, reg)

	if runCfg.CI {
		if err := writeCIReport(ciReportFile, summary, results); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to write CI report")
		} else {
			fmt.Printf("\nStructured report written to %s\n", ciReportFile)
		}
	}

	if summary.Failed > 0 || summary.Errored > 0 {
		return cli.Exit("", 1)
	}
	return nil
}

func (a *App) printSummary(summary model.RunSummary, results []model.TestResult, invoker *engine.GoTestInvoker, reg *model.Registry) {
	fmt.Printf("\n=== Run Summary (%s) ===\n\n", shortID(summary.RunID))
	fmt.Printf("Total:    %d\n", summary.Total)
	fmt.Printf("Passed:   %d\n", summary.Passed)
	fmt.Printf("Failed:   %d\n", summary.Failed)
	fmt.Printf("Errored:  %d\n", summary.Errored)
	fmt.Printf("Skipped:  %d\n", summary.Skipped)
	fmt.Printf("Duration: %s\n", summary.Duration.Round(time.Millisecond))
	fmt.Printf("Success:  %.1f%%\n", summary.SuccessRate())

	if summary.Failed == 0 && summary.Errored == 0 {
		return
	}

	fmt.Println("\nFailed tests:")
	for _, res := range results {
		if res.Status != model.StatusFailed && res.Status != model.StatusErrored {
			continue
		}
		fmt.Printf("  ✗ %s (%s)\n", res.TestID, res.Status)
		if res.Error != "" {
			fmt.Printf("    %s\n", firstLine(res.Error))
		}
		if tc, ok := reg.Get(res.TestID); ok {
			fmt.Printf("    Repro: %s\n", invoker.ReproCommand(tc))
		}
	}
}

// ciReport is the machine-parsable summary emitted in CI mode.
type ciReport struct {
	RunID       string             `json:"run_id"`
	Timestamp   time.Time          `json:"timestamp"`
	DurationSec float64            `json:"duration_sec"`
	Total       int                `json:"total"`
	Passed      int                `json:"passed"`
	Failed      int                `json:"failed"`
	Errored     int                `json:"errored"`
	Skipped     int                `json:"skipped"`
	SuccessRate float64            `json:"success_rate"`
	Results     []model.TestResult `json:"results"`
}

func writeCIReport(path string, summary model.RunSummary, results []model.TestResult) error {
	report := ciReport{
		RunID:       summary.RunID,
		Timestamp:   summary.StartedAt,
		DurationSec: summary.Duration.Seconds(),
		Total:       summary.Total,
		Passed:      summary.Passed,
		Failed:      summary.Failed,
		Errored:     summary.Errored,
		Skipped:     summary.Skipped,
		SuccessRate: summary.SuccessRate(),
		Results:     results,
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
