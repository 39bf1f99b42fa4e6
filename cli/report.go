package cli

// This file contains the report command: historical analytics rendered
// from the result store.

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/testpilot/testpilot/analytics"
	"github.com/testpilot/testpilot/config"
	"github.com/testpilot/testpilot/model"
	"github.com/testpilot/testpilot/store"
)

func (a *App) report(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return err
	}

	storePath := cfg.StorePath
	if ctx.IsSet("store") {
		storePath = ctx.String("store")
	}

	st, err := store.Open(storePath)
	if err != nil {
		return fmt.Errorf("result store unavailable: %w", err)
	}
	defer st.Close()

	analyzer := analytics.New(st)
	analyzer.FlakyThreshold = cfg.FlakyThreshold

	days := ctx.Int("days")
	onlyFlaky := ctx.Bool("flaky")
	onlySlow := ctx.Bool("slow")
	onlyOptimize := ctx.Bool("optimize")
	all := !onlyFlaky && !onlySlow && !onlyOptimize

	if testID := ctx.String("test"); testID != "" {
		return a.reportSingle(analyzer, days, testID)
	}

	fmt.Printf("\n=== Analytics (%d days) ===\n", days)

	if all || onlyFlaky {
		flaky, err := analyzer.FlakyTests(days)
		if err != nil {
			return err
		}
		fmt.Printf("\nFlaky tests (%d):\n", len(flaky))
		for _, m := range flaky {
			fmt.Printf("  %s: %d/%d failures (score %.2f)\n", m.TestID, m.Failures, m.Runs, m.FlakinessScore)
		}
	}

	if all || onlySlow {
		slow, err := analyzer.SlowTests(days, cfg.SlowTop)
		if err != nil {
			return err
		}
		fmt.Printf("\nSlowest tests (top %d):\n", cfg.SlowTop)
		for _, m := range slow {
			fmt.Printf("  %s: mean %s (min %s, max %s, %d runs)\n",
				m.TestID,
				m.MeanDuration.Round(time.Millisecond),
				m.MinDuration.Round(time.Millisecond),
				m.MaxDuration.Round(time.Millisecond),
				m.Runs)
		}
	}

	if all || onlyOptimize {
		sug, err := analyzer.SuggestParallelization(days)
		if err != nil {
			return err
		}
		fmt.Println("\nParallelization suggestions:")
		fmt.Printf("  Fast tests (<1s):     %d\n", sug.FastTests)
		fmt.Printf("  Medium tests (1-5s):  %d\n", sug.MediumTests)
		fmt.Printf("  Slow tests (>=5s):    %d\n", sug.SlowTests)
		fmt.Printf("  Suggested workers:    %d\n", sug.SuggestedWorkers)
		fmt.Printf("  Estimated speedup:    %.2fx\n", sug.EstimatedSpeedup)
		for _, id := range sug.ExcludeFromParallel {
			fmt.Printf("  Keep sequential:      %s\n", id)
		}
	}

	return nil
}

func (a *App) reportSingle(analyzer *analytics.Engine, days int, testID string) error {
	metrics, err := analyzer.Metrics(days, testID)
	if err != nil {
		return err
	}
	if len(metrics) == 0 {
		fmt.Printf("No recorded executions for %s in the last %d days\n", testID, days)
		return nil
	}
	printMetric(metrics[0])
	return nil
}

func printMetric(m model.HistoricalMetric) {
	fmt.Printf("\n%s\n", m.TestID)
	fmt.Printf("  Executions: %d (%d passed, %d failed)\n", m.Runs, m.Passes, m.Failures)
	fmt.Printf("  Duration:   mean %s, min %s, max %s\n",
		m.MeanDuration.Round(time.Millisecond),
		m.MinDuration.Round(time.Millisecond),
		m.MaxDuration.Round(time.Millisecond))
	fmt.Printf("  Flakiness:  %.2f\n", m.FlakinessScore)
	fmt.Printf("  Last run:   %s\n", m.LastRun.Format("2006-01-02 15:04:05"))
}
