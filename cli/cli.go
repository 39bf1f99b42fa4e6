package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/testpilot/testpilot/model"
)

const AppName = "testpilot"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Test automation orchestrator for the affiliate API suite",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Discover, schedule and execute tests",
		ArgsUsage: "[ROOT]",
		Action:    app.run,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "parallel",
				Aliases: []string{"p"},
				Usage:   "Run parallel-safe tests in a bounded worker pool",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Worker pool size for parallel execution",
			},
			&cli.BoolFlag{
				Name:    "fail-fast",
				Aliases: []string{"f"},
				Usage:   "Stop scheduling further batches after the first failure",
			},
			&cli.StringSliceFlag{
				Name:    "category",
				Aliases: []string{"c"},
				Usage:   "Only run the given categories (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "ci",
				Usage: "CI mode: also write a machine-parsable test-results.json",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Result store path (overrides config)",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Config file path (default: .testpilot.yaml if present)",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "report",
		Usage:  "Render historical analytics from recorded runs",
		Action: app.report,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "days",
				Aliases: []string{"d"},
				Usage:   "Lookback window in days",
				Value:   30,
			},
			&cli.BoolFlag{
				Name:  "flaky",
				Usage: "List flaky tests only",
			},
			&cli.BoolFlag{
				Name:  "slow",
				Usage: "List slow tests only",
			},
			&cli.BoolFlag{
				Name:  "optimize",
				Usage: "Show parallelization suggestions only",
			},
			&cli.StringFlag{
				Name:  "test",
				Usage: "Filter metrics by test identity",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Result store path (overrides config)",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Config file path (default: .testpilot.yaml if present)",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "list",
		Usage:  "List previous test runs",
		Action: app.list,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Result store path (overrides config)",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Config file path (default: .testpilot.yaml if present)",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "probe",
		Usage:  "Issue one signed request against the affiliate API to validate credentials",
		Action: app.probe,
	})
	return app
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && commit != "" {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}

// parseCategories validates the repeatable --category flag.
func parseCategories(values []string) ([]model.Category, error) {
	var out []model.Category
	for _, v := range values {
		cat := model.Category(v)
		if !cat.Valid() {
			return nil, fmt.Errorf("unknown category %q (valid: %v)", v, model.Categories())
		}
		out = append(out, cat)
	}
	return out, nil
}
