package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testpilot/testpilot/model"
)

func buildRegistry(t *testing.T, cases ...model.TestCase) *model.Registry {
	t.Helper()
	reg := model.NewRegistry()
	for _, tc := range cases {
		require.NoError(t, reg.Add(tc))
	}
	return reg
}

// flatten returns test identities in batch emission order.
func flatten(plan model.Plan) []string {
	var out []string
	for _, b := range plan.Batches {
		for _, tc := range b.Cases {
			out = append(out, tc.ID)
		}
	}
	return out
}

func TestBuild_TierOrdering(t *testing.T) {
	reg := buildRegistry(t,
		model.TestCase{ID: "s.TestLow", Priority: model.PriorityLow, ParallelSafe: true},
		model.TestCase{ID: "s.TestHigh", Priority: model.PriorityHigh, ParallelSafe: true},
		model.TestCase{ID: "s.TestCritical", Priority: model.PriorityCritical, ParallelSafe: true},
		model.TestCase{ID: "s.TestMedium", Priority: model.PriorityMedium, ParallelSafe: true},
	)

	plan := Build(reg, model.RunConfig{})
	assert.Equal(t, []string{"s.TestCritical", "s.TestHigh", "s.TestMedium", "s.TestLow"}, flatten(plan))
}

func TestBuild_OrderIndependentOfParallelFlag(t *testing.T) {
	reg := buildRegistry(t,
		model.TestCase{ID: "s.TestA", Priority: model.PriorityHigh, ParallelSafe: true},
		model.TestCase{ID: "s.TestB", Priority: model.PriorityHigh, ParallelSafe: true},
		model.TestCase{ID: "s.TestC", Priority: model.PriorityHigh},
		model.TestCase{ID: "s.TestD", Priority: model.PriorityLow, ParallelSafe: true},
	)

	sequential := Build(reg, model.RunConfig{})
	parallel := Build(reg, model.RunConfig{Parallel: true, Workers: 4})

	assert.Equal(t, flatten(sequential), flatten(parallel))
}

func TestBuild_ParallelBatchPerTier(t *testing.T) {
	reg := buildRegistry(t,
		model.TestCase{ID: "s.TestA", Priority: model.PriorityHigh, ParallelSafe: true},
		model.TestCase{ID: "s.TestB", Priority: model.PriorityHigh, ParallelSafe: true},
		model.TestCase{ID: "s.TestC", Priority: model.PriorityHigh},
	)

	plan := Build(reg, model.RunConfig{Parallel: true, Workers: 4})

	require.Len(t, plan.Batches, 2)
	assert.True(t, plan.Batches[0].Parallel)
	assert.Len(t, plan.Batches[0].Cases, 2)
	assert.False(t, plan.Batches[1].Parallel)
	assert.Len(t, plan.Batches[1].Cases, 1)
}

func TestBuild_ParallelDisabledMakesSingletons(t *testing.T) {
	reg := buildRegistry(t,
		model.TestCase{ID: "s.TestA", ParallelSafe: true},
		model.TestCase{ID: "s.TestB", ParallelSafe: true},
		model.TestCase{ID: "s.TestC", ParallelSafe: true},
	)

	for _, cfg := range []model.RunConfig{
		{},
		{Parallel: true, Workers: 1},
	} {
		plan := Build(reg, cfg)
		require.Len(t, plan.Batches, 3)
		for _, b := range plan.Batches {
			assert.False(t, b.Parallel)
			assert.Len(t, b.Cases, 1)
		}
	}
}

func TestBuild_AuthNeverSharesABatch(t *testing.T) {
	reg := buildRegistry(t,
		model.TestCase{ID: "s.TestUnit1", Priority: model.PriorityHigh, ParallelSafe: true},
		model.TestCase{ID: "s.TestUnit2", Priority: model.PriorityHigh, ParallelSafe: true},
		// Auth test with deliberately close priority; ParallelSafe left
		// true to prove the scheduler enforces isolation on its own.
		model.TestCase{ID: "s.TestAuth", Priority: model.PriorityHigh, ParallelSafe: true, RequiresAuth: true},
	)

	plan := Build(reg, model.RunConfig{Parallel: true, Workers: 4})

	for _, b := range plan.Batches {
		for _, tc := range b.Cases {
			if tc.RequiresAuth {
				assert.Len(t, b.Cases, 1, "auth test must occupy a singleton batch")
			}
		}
	}
}

func TestBuild_CategoryFilter(t *testing.T) {
	reg := buildRegistry(t,
		model.TestCase{ID: "s.TestA", Category: model.CategoryUnit, ParallelSafe: true},
		model.TestCase{ID: "s.TestB", Category: model.CategoryAPI, ParallelSafe: true},
		model.TestCase{ID: "s.TestC", Category: model.CategoryMock, ParallelSafe: true},
	)

	plan := Build(reg, model.RunConfig{Categories: []model.Category{model.CategoryUnit, model.CategoryMock}})
	assert.Equal(t, []string{"s.TestA", "s.TestC"}, flatten(plan))
}

func TestBuild_SingleEligibleCaseStaysSequential(t *testing.T) {
	reg := buildRegistry(t,
		model.TestCase{ID: "s.TestOnly", ParallelSafe: true},
	)

	plan := Build(reg, model.RunConfig{Parallel: true, Workers: 4})
	require.Len(t, plan.Batches, 1)
	assert.False(t, plan.Batches[0].Parallel)
}
