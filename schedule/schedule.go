// Package schedule resolves a classified registry into an execution
// plan: priority tiers emitted in ascending order, each tier split into
// one parallel batch followed by sequential singleton batches.
package schedule

import "github.com/testpilot/testpilot/model"

// Build produces the execution plan for the given configuration.
//
// Within a tier the parallel-eligible cases form a single batch drained
// by a bounded worker pool; sequential-only cases each occupy a
// singleton batch, in discovery order. With parallelism disabled (or a
// single worker) every case becomes a singleton batch in the same
// overall order, so the global start order never depends on the
// parallel setting.
func Build(reg *model.Registry, cfg model.RunConfig) model.Plan {
	cases := filter(reg.Cases(), cfg.Categories)

	// Partition into tiers, preserving discovery order within each.
	tiers := make(map[model.Priority][]model.TestCase)
	for _, tc := range cases {
		tiers[tc.Priority] = append(tiers[tc.Priority], tc)
	}

	parallel := cfg.Parallel && cfg.Workers > 1

	var plan model.Plan
	for _, tier := range []model.Priority{model.PriorityCritical, model.PriorityHigh, model.PriorityMedium, model.PriorityLow} {
		var eligible, sequential []model.TestCase
		for _, tc := range tiers[tier] {
			if tc.ParallelSafe && !tc.RequiresAuth {
				eligible = append(eligible, tc)
			} else {
				sequential = append(sequential, tc)
			}
		}

		switch {
		case parallel && len(eligible) > 1:
			plan.Batches = append(plan.Batches, model.Batch{Cases: eligible, Parallel: true})
		default:
			for _, tc := range eligible {
				plan.Batches = append(plan.Batches, model.Batch{Cases: []model.TestCase{tc}})
			}
		}
		for _, tc := range sequential {
			plan.Batches = append(plan.Batches, model.Batch{Cases: []model.TestCase{tc}})
		}
	}
	return plan
}

func filter(cases []model.TestCase, categories []model.Category) []model.TestCase {
	if len(categories) == 0 {
		return cases
	}
	wanted := make(map[model.Category]bool, len(categories))
	for _, c := range categories {
		wanted[c] = true
	}
	var out []model.TestCase
	for _, tc := range cases {
		if wanted[tc.Category] {
			out = append(out, tc)
		}
	}
	return out
}
