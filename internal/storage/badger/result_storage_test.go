package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/common"
	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/models"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	db, err := NewBadgerDB(arbor.NewLogger(), &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "probo-test"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func newTestResultStorage(t *testing.T) interfaces.ResultStorage {
	t.Helper()
	return NewResultStorage(newTestDB(t), arbor.NewLogger())
}

func seedRunAndSuite(t *testing.T, store interfaces.ResultStorage) (*models.TestRun, *models.TestSuite) {
	t.Helper()
	ctx := context.Background()

	run := &models.TestRun{
		ID:        "run_test",
		Status:    models.RunStatusRunning,
		StartedAt: time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, store.SaveRun(ctx, run))

	suite := &models.TestSuite{
		ID:        "suite_test",
		RunID:     run.ID,
		Name:      "dashboard",
		Category:  models.CategoryDashboard,
		Planned:   3,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, store.BeginSuite(ctx, suite))

	return run, suite
}

func TestRecordResult_Idempotent(t *testing.T) {
	store := newTestResultStorage(t)
	ctx := context.Background()
	run, suite := seedRunAndSuite(t, store)

	result := &models.TestResult{
		RunID:     run.ID,
		SuiteID:   suite.ID,
		SpecID:    "DASH-001",
		Status:    models.ResultStatusFailed,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, store.RecordResult(ctx, result))

	// Re-recording the same (suite, spec) pair overwrites, never duplicates
	result.Status = models.ResultStatusPassed
	require.NoError(t, store.RecordResult(ctx, result))

	results, err := store.ResultsBySuite(ctx, suite.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.ResultStatusPassed, results[0].Status)
}

func TestRecordResult_RejectsUnknownStatus(t *testing.T) {
	store := newTestResultStorage(t)
	_, suite := seedRunAndSuite(t, store)

	err := store.RecordResult(context.Background(), &models.TestResult{
		RunID:   "run_test",
		SuiteID: suite.ID,
		SpecID:  "DASH-001",
		Status:  models.ResultStatus("skipped"),
	})
	assert.Error(t, err)
}

func TestCompleteSuite_RecomputesCounters(t *testing.T) {
	store := newTestResultStorage(t)
	ctx := context.Background()
	run, suite := seedRunAndSuite(t, store)

	statuses := []models.ResultStatus{
		models.ResultStatusPassed,
		models.ResultStatusFailed,
		models.ResultStatusWarning,
	}
	for i, status := range statuses {
		require.NoError(t, store.RecordResult(ctx, &models.TestResult{
			RunID:     run.ID,
			SuiteID:   suite.ID,
			SpecID:    fmt.Sprintf("DASH-%03d", i+1),
			Status:    status,
			StartedAt: time.Now().UTC(),
		}))
	}

	completed, err := store.CompleteSuite(ctx, suite.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, completed.Counters.Total)
	assert.Equal(t, 1, completed.Counters.Passed)
	assert.Equal(t, 1, completed.Counters.Failed)
	assert.Equal(t, 1, completed.Counters.Warnings)
	assert.NotNil(t, completed.CompletedAt)

	// Counters survive a reload and still match a fresh aggregation
	reloaded, err := store.GetSuite(ctx, suite.ID)
	require.NoError(t, err)
	results, err := store.ResultsBySuite(ctx, suite.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ComputeCounters(results), reloaded.Counters)
}

func TestCompleteRun_SetsFinalStateOnce(t *testing.T) {
	store := newTestResultStorage(t)
	ctx := context.Background()
	run, suite := seedRunAndSuite(t, store)

	require.NoError(t, store.RecordResult(ctx, &models.TestResult{
		RunID:     run.ID,
		SuiteID:   suite.ID,
		SpecID:    "DASH-001",
		Status:    models.ResultStatusPassed,
		StartedAt: time.Now().UTC(),
	}))

	completed, err := store.CompleteRun(ctx, run.ID, models.RunStatusCompleted, nil)
	require.NoError(t, err)
	require.NotNil(t, completed.CompletedAt)
	assert.Equal(t, models.RunStatusCompleted, completed.Status)
	assert.Equal(t, 1, completed.Summary.TotalTests)
	assert.Equal(t, 1, completed.Summary.TotalSuites)

	firstCompletedAt := *completed.CompletedAt

	// A second completion is a no-op, even with a different status
	again, err := store.CompleteRun(ctx, run.ID, models.RunStatusFailed, fmt.Errorf("late error"))
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, again.Status)
	assert.Equal(t, firstCompletedAt, *again.CompletedAt)
	assert.Empty(t, again.Error)
}

func TestCompleteRun_FatalAbortPreservesResults(t *testing.T) {
	store := newTestResultStorage(t)
	ctx := context.Background()
	run, suite := seedRunAndSuite(t, store)

	require.NoError(t, store.RecordResult(ctx, &models.TestResult{
		RunID:     run.ID,
		SuiteID:   suite.ID,
		SpecID:    "DASH-001",
		Status:    models.ResultStatusFailed,
		StartedAt: time.Now().UTC(),
	}))

	aborted, err := store.CompleteRun(ctx, run.ID, models.RunStatusFailed, fmt.Errorf("session lost"))
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, aborted.Status)
	assert.Contains(t, aborted.Error, "session lost")
	assert.Equal(t, 1, aborted.Summary.TotalTests)

	results, err := store.ResultsBySuite(ctx, suite.ID)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestResultsBySuite_OrderedByStart(t *testing.T) {
	store := newTestResultStorage(t)
	ctx := context.Background()
	run, suite := seedRunAndSuite(t, store)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, offset := range []time.Duration{2 * time.Second, 0, time.Second} {
		require.NoError(t, store.RecordResult(ctx, &models.TestResult{
			RunID:     run.ID,
			SuiteID:   suite.ID,
			SpecID:    fmt.Sprintf("DASH-%03d", i+1),
			Status:    models.ResultStatusPassed,
			StartedAt: base.Add(offset),
		}))
	}

	results, err := store.ResultsBySuite(ctx, suite.ID)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "DASH-002", results[0].SpecID)
	assert.Equal(t, "DASH-003", results[1].SpecID)
	assert.Equal(t, "DASH-001", results[2].SpecID)
}

func TestSuitesByRun(t *testing.T) {
	store := newTestResultStorage(t)
	ctx := context.Background()
	run, _ := seedRunAndSuite(t, store)

	require.NoError(t, store.BeginSuite(ctx, &models.TestSuite{
		ID:        "suite_second",
		RunID:     run.ID,
		Name:      "search",
		Category:  models.CategorySearch,
		StartedAt: time.Now().UTC().Add(time.Minute),
	}))

	suites, err := store.SuitesByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, suites, 2)
	assert.Equal(t, "suite_test", suites[0].ID)
	assert.Equal(t, "suite_second", suites[1].ID)
}
