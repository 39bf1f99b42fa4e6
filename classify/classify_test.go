package classify

import (
	"testing"

	"github.com/rs/zerolog"
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

func TestClassifier_NamingHeuristic(t *testing.T) {
	tests := []struct {
		name string
		want model.Category
	}{
		{"TestMockResponseParsing", model.CategoryMock},
		{"TestIntegrationCheckout", model.CategoryIntegration},
		{"TestAPIShortLink", model.CategoryAPI},
		{"TestPropertySignatureRoundtrip", model.CategoryProperty},
		{"TestFlakyConnection", model.CategoryFlaky},
		{"TestSignaturePadding", model.CategoryUnit},
	}

	c := New(zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := buildRegistry(t, model.TestCase{
				ID: "suite." + tt.name, Name: tt.name, ParallelSafe: true,
			})
			c.Classify(reg, nil)
			got, _ := reg.Get("suite." + tt.name)
			assert.Equal(t, tt.want, got.Category)
		})
	}
}

func TestClassifier_ExplicitDirectiveWins(t *testing.T) {
	reg := buildRegistry(t, model.TestCase{
		ID:                "suite.TestMockSomething",
		Name:              "TestMockSomething",
		Category:          model.CategoryIntegration,
		CategoryAnnotated: true,
		ParallelSafe:      true,
	})

	New(zerolog.Nop()).Classify(reg, nil)

	got, _ := reg.Get("suite.TestMockSomething")
	assert.Equal(t, model.CategoryIntegration, got.Category)
}

func TestClassifier_HistoricalOverride(t *testing.T) {
	reg := buildRegistry(t, model.TestCase{
		ID: "suite.TestCheckout", Name: "TestCheckout", ParallelSafe: true,
	})

	hist := map[string]model.HistoricalMetric{
		"suite.TestCheckout": {TestID: "suite.TestCheckout", Runs: 10, FlakinessScore: 0.3},
	}

	New(zerolog.Nop()).Classify(reg, hist)

	got, _ := reg.Get("suite.TestCheckout")
	assert.Equal(t, model.CategoryFlaky, got.Category)
	// Flaky tests are pulled out of parallel batches.
	assert.False(t, got.ParallelSafe)
}

func TestClassifier_HistoricalOverrideNeedsEnoughRuns(t *testing.T) {
	reg := buildRegistry(t, model.TestCase{
		ID: "suite.TestCheckout", Name: "TestCheckout", ParallelSafe: true,
	})

	hist := map[string]model.HistoricalMetric{
		"suite.TestCheckout": {TestID: "suite.TestCheckout", Runs: 3, FlakinessScore: 0.6},
	}

	New(zerolog.Nop()).Classify(reg, hist)

	got, _ := reg.Get("suite.TestCheckout")
	assert.Equal(t, model.CategoryUnit, got.Category)
}

func TestClassifier_Priorities(t *testing.T) {
	tests := []struct {
		name string
		tc   model.TestCase
		want model.Priority
	}{
		{
			name: "critical name",
			tc:   model.TestCase{ID: "s.TestCriticalPath", Name: "TestCriticalPath"},
			want: model.PriorityCritical,
		},
		{
			name: "auth runs last",
			tc:   model.TestCase{ID: "s.TestCheckout", Name: "TestCheckout", RequiresAuth: true},
			want: model.PriorityLow,
		},
		{
			name: "api runs last",
			tc:   model.TestCase{ID: "s.TestAPIOffers", Name: "TestAPIOffers"},
			want: model.PriorityLow,
		},
		{
			name: "unit runs early",
			tc:   model.TestCase{ID: "s.TestParse", Name: "TestParse"},
			want: model.PriorityHigh,
		},
		{
			name: "mock runs early",
			tc:   model.TestCase{ID: "s.TestMockServer", Name: "TestMockServer"},
			want: model.PriorityHigh,
		},
		{
			name: "integration in the middle",
			tc:   model.TestCase{ID: "s.TestIntegrationFlow", Name: "TestIntegrationFlow"},
			want: model.PriorityMedium,
		},
	}

	c := New(zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.tc.ParallelSafe = true
			reg := buildRegistry(t, tt.tc)
			c.Classify(reg, nil)
			got, _ := reg.Get(tt.tc.ID)
			assert.Equal(t, tt.want, got.Priority)
		})
	}
}

func TestClassifier_AnnotatedPriorityKept(t *testing.T) {
	reg := buildRegistry(t, model.TestCase{
		ID:                "s.TestAPIOffers",
		Name:              "TestAPIOffers",
		Priority:          model.PriorityCritical,
		PriorityAnnotated: true,
		ParallelSafe:      true,
	})

	New(zerolog.Nop()).Classify(reg, nil)

	got, _ := reg.Get("s.TestAPIOffers")
	assert.Equal(t, model.PriorityCritical, got.Priority)
}

func TestClassifier_AuthForcesSequential(t *testing.T) {
	reg := buildRegistry(t, model.TestCase{
		ID: "s.TestCheckout", Name: "TestCheckout", RequiresAuth: true, ParallelSafe: true,
	})

	New(zerolog.Nop()).Classify(reg, nil)

	got, _ := reg.Get("s.TestCheckout")
	assert.False(t, got.ParallelSafe)
}
