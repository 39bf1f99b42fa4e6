package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testpilot/testpilot/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func result(runID, testID string, status model.Status, at time.Time) model.TestResult {
	return model.TestResult{
		RunID:     runID,
		TestID:    testID,
		Attempt:   1,
		Status:    status,
		Duration:  120 * time.Millisecond,
		Timestamp: at,
	}
}

func summary(runID string, at time.Time) model.RunSummary {
	return model.RunSummary{
		RunID:     runID,
		StartedAt: at,
		Duration:  3 * time.Second,
		Total:     2,
		Passed:    1,
		Failed:    1,
		Parallel:  true,
		Workers:   4,
	}
}

func TestStore_OpenCreatesParentDirectory(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RecordResult(result("run-1", "pkg.TestA", model.StatusPassed, time.Now())))
}

func TestStore_Roundtrip(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	res := model.TestResult{
		RunID:     "run-1",
		TestID:    "pkg.TestA",
		Attempt:   2,
		Status:    model.StatusFailed,
		Duration:  250 * time.Millisecond,
		Error:     "assertion failed: want 3, got 4",
		Timestamp: now,
	}
	require.NoError(t, s.RecordResult(res))
	require.NoError(t, s.RecordSummary(summary("run-1", now)))

	got, err := s.ResultsSince(now.Add(-time.Hour), "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, "pkg.TestA", got[0].TestID)
	assert.Equal(t, 2, got[0].Attempt)
	assert.Equal(t, model.StatusFailed, got[0].Status)
	assert.Equal(t, 250*time.Millisecond, got[0].Duration)
	assert.Equal(t, res.Error, got[0].Error)
	assert.True(t, got[0].Timestamp.Equal(now))
}

func TestStore_UnfinalizedRunInvisible(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	require.NoError(t, s.RecordResult(result("run-1", "pkg.TestA", model.StatusPassed, now)))

	got, err := s.ResultsSince(now.Add(-time.Hour), "")
	require.NoError(t, err)
	assert.Empty(t, got, "results must stay hidden until the summary row lands")

	require.NoError(t, s.RecordSummary(summary("run-1", now)))

	got, err = s.ResultsSince(now.Add(-time.Hour), "")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_ResultsSinceFilters(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	require.NoError(t, s.RecordResult(result("run-1", "pkg.TestOld", model.StatusPassed, now.Add(-48*time.Hour))))
	require.NoError(t, s.RecordResult(result("run-1", "pkg.TestA", model.StatusPassed, now.Add(-time.Minute))))
	require.NoError(t, s.RecordResult(result("run-1", "pkg.TestB", model.StatusFailed, now)))
	require.NoError(t, s.RecordSummary(summary("run-1", now)))

	got, err := s.ResultsSince(now.Add(-time.Hour), "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Oldest first.
	assert.Equal(t, "pkg.TestA", got[0].TestID)
	assert.Equal(t, "pkg.TestB", got[1].TestID)

	got, err = s.ResultsSince(now.Add(-time.Hour), "pkg.TestB")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pkg.TestB", got[0].TestID)
}

func TestStore_SummariesNewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordSummary(summary(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	got, err := s.Summaries(3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "run-4", got[0].RunID)
	assert.Equal(t, "run-3", got[1].RunID)
	assert.Equal(t, "run-2", got[2].RunID)
	assert.True(t, got[0].Parallel)
	assert.Equal(t, 4, got[0].Workers)

	all, err := s.Summaries(0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestStore_ConcurrentAppends(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				res := result("run-1", fmt.Sprintf("pkg.Test%d_%d", i, j), model.StatusPassed, now)
				assert.NoError(t, s.RecordResult(res))
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, s.RecordSummary(summary("run-1", now)))

	got, err := s.ResultsSince(now.Add(-time.Hour), "")
	require.NoError(t, err)
	assert.Len(t, got, 80)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	now := time.Now()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordResult(result("run-1", "pkg.TestA", model.StatusPassed, now)))
	require.NoError(t, s.RecordSummary(summary("run-1", now)))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.ResultsSince(now.Add(-time.Hour), "")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
