// Package classify assigns categories and priorities to discovered
// tests. Classification is an explicit ordered rule list; the
// historical flakiness override always runs last.
package classify

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/testpilot/testpilot/model"
)

// Default thresholds for the historical flakiness override.
const (
	DefaultFlakyThreshold = 0.2
	DefaultFlakyMinRuns   = 5
)

// Classifier assigns category and priority to registry entries.
type Classifier struct {
	logger zerolog.Logger
	// FlakyThreshold is the flakiness score above which a test is
	// reclassified as flaky regardless of its name.
	FlakyThreshold float64
	// FlakyMinRuns is the minimum historical run count before the
	// override applies.
	FlakyMinRuns int
}

// New returns a classifier with default thresholds.
func New(logger zerolog.Logger) *Classifier {
	return &Classifier{
		logger:         logger,
		FlakyThreshold: DefaultFlakyThreshold,
		FlakyMinRuns:   DefaultFlakyMinRuns,
	}
}

// categoryRule is one step of the classification chain. It returns the
// category and true when it decides, false to defer to the next rule.
type categoryRule struct {
	name  string
	apply func(tc model.TestCase) (model.Category, bool)
}

// Naming vocabulary checked in order. "flaky" is matched last among the
// keywords so that e.g. TestFlakyAPIRequest is categorized api first and
// left to the historical override.
var nameKeywords = []struct {
	keyword  string
	category model.Category
}{
	{"mock", model.CategoryMock},
	{"integration", model.CategoryIntegration},
	{"api", model.CategoryAPI},
	{"property", model.CategoryProperty},
	{"flaky", model.CategoryFlaky},
}

var categoryRules = []categoryRule{
	{
		name: "explicit-directive",
		apply: func(tc model.TestCase) (model.Category, bool) {
			if tc.CategoryAnnotated {
				return tc.Category, true
			}
			return "", false
		},
	},
	{
		name: "naming-heuristic",
		apply: func(tc model.TestCase) (model.Category, bool) {
			name := strings.ToLower(tc.Name)
			for _, kw := range nameKeywords {
				if strings.Contains(name, kw.keyword) {
					return kw.category, true
				}
			}
			return "", false
		},
	},
	{
		name: "default-unit",
		apply: func(tc model.TestCase) (model.Category, bool) {
			return model.CategoryUnit, true
		},
	},
}

// Classify annotates every registry entry with a category and priority.
// hist maps test identity to its historical metric; pass nil when no
// history is available.
func (c *Classifier) Classify(reg *model.Registry, hist map[string]model.HistoricalMetric) {
	for _, tc := range reg.Cases() {
		tc.Category = c.category(tc, hist)
		if !tc.PriorityAnnotated {
			tc.Priority = c.priority(tc)
		}

		// Auth-requiring and flaky tests never share a batch with
		// others; retries and credentials need isolation.
		if tc.RequiresAuth || tc.Category == model.CategoryFlaky {
			tc.ParallelSafe = false
		}

		if err := reg.Update(tc); err != nil {
			c.logger.Warn().Err(err).Str("test", tc.ID).Msg("Failed to update registry entry")
		}
	}
}

func (c *Classifier) category(tc model.TestCase, hist map[string]model.HistoricalMetric) model.Category {
	var category model.Category
	for _, rule := range categoryRules {
		if cat, ok := rule.apply(tc); ok {
			category = cat
			c.logger.Debug().Str("test", tc.ID).Str("rule", rule.name).Str("category", string(cat)).Msg("Category assigned")
			break
		}
	}

	// Final rule: historical override. A test that flaps in history is
	// flaky no matter what its name or directive says.
	if m, ok := hist[tc.ID]; ok {
		if m.Runs >= c.FlakyMinRuns && m.FlakinessScore > c.FlakyThreshold {
			c.logger.Info().
				Str("test", tc.ID).
				Float64("score", m.FlakinessScore).
				Int("runs", m.Runs).
				Msg("Historical flakiness override")
			return model.CategoryFlaky
		}
	}
	return category
}

func (c *Classifier) priority(tc model.TestCase) model.Priority {
	if strings.Contains(strings.ToLower(tc.Name), "critical") {
		return model.PriorityCritical
	}
	// Network-bound tests run last, isolated from the fast tiers.
	if tc.RequiresAuth || tc.RequiresNetwork || tc.Category == model.CategoryAPI {
		return model.PriorityLow
	}
	switch tc.Category {
	case model.CategoryUnit, model.CategoryMock:
		return model.PriorityHigh
	}
	return model.PriorityMedium
}
