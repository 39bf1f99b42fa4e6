package cli

// This file contains the list command for displaying previous runs.

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/testpilot/testpilot/config"
	"github.com/testpilot/testpilot/store"
)

func (a *App) list(ctx *cli.Context) error {
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

	summaries, err := st.Summaries(ctx.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to load run history: %w", err)
	}

	if len(summaries) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	fmt.Printf("\n=== Runs (%d shown) ===\n\n", len(summaries))

	for _, sum := range summaries {
		timestamp := sum.StartedAt.Format("2006-01-02 15:04:05")
		duration := sum.Duration.Round(time.Millisecond)

		status := "✓"
		if sum.Failed > 0 || sum.Errored > 0 {
			status = "✗"
		}

		fmt.Printf("%s  %s  [%s]  id=%s\n", status, timestamp, duration, shortID(sum.RunID))
		fmt.Printf("   %d total: %d passed, %d failed, %d errored, %d skipped (%.1f%%)\n",
			sum.Total, sum.Passed, sum.Failed, sum.Errored, sum.Skipped, sum.SuccessRate())
		mode := "sequential"
		if sum.Parallel {
			mode = fmt.Sprintf("parallel (%d workers)", sum.Workers)
		}
		if sum.FailFast {
			mode += ", fail-fast"
		}
		fmt.Printf("   Mode: %s\n", mode)
		fmt.Println()
	}

	fmt.Println("View analytics: testpilot report --days 30")

	return nil
}
