package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/models"
)

// ResultStorage implements the ResultStorage interface for Badger
type ResultStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewResultStorage creates a new ResultStorage instance
func NewResultStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ResultStorage {
	return &ResultStorage{
		db:     db,
		logger: logger,
	}
}

// resultKey builds the upsert key for a result. Re-recording the same
// (suiteID, specID) pair overwrites the existing record.
func resultKey(suiteID, specID string) string {
	return suiteID + "/" + specID
}

func (s *ResultStorage) SaveRun(ctx context.Context, run *models.TestRun) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *ResultStorage) GetRun(ctx context.Context, id string) (*models.TestRun, error) {
	var run models.TestRun
	if err := s.db.Store().Get(id, &run); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("run not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

func (s *ResultStorage) BeginSuite(ctx context.Context, suite *models.TestSuite) error {
	if suite.ID == "" {
		return fmt.Errorf("suite ID is required")
	}
	if suite.RunID == "" {
		return fmt.Errorf("suite run ID is required")
	}
	if err := s.db.Store().Upsert(suite.ID, suite); err != nil {
		return fmt.Errorf("failed to begin suite: %w", err)
	}

	s.logger.Debug().
		Str("suite_id", suite.ID).
		Str("category", string(suite.Category)).
		Int("planned", suite.Planned).
		Msg("Suite record created")

	return nil
}

func (s *ResultStorage) GetSuite(ctx context.Context, id string) (*models.TestSuite, error) {
	var suite models.TestSuite
	if err := s.db.Store().Get(id, &suite); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("suite not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get suite: %w", err)
	}
	return &suite, nil
}

func (s *ResultStorage) SuitesByRun(ctx context.Context, runID string) ([]*models.TestSuite, error) {
	var suites []models.TestSuite
	if err := s.db.Store().Find(&suites, badgerhold.Where("RunID").Eq(runID)); err != nil {
		return nil, fmt.Errorf("failed to find suites: %w", err)
	}

	sort.Slice(suites, func(i, j int) bool {
		return suites[i].StartedAt.Before(suites[j].StartedAt)
	})

	result := make([]*models.TestSuite, len(suites))
	for i := range suites {
		result[i] = &suites[i]
	}
	return result, nil
}

// RecordResult persists one test outcome. Idempotent upsert keyed by
// (suiteID, specID) so a resumed run overwrites rather than duplicates.
func (s *ResultStorage) RecordResult(ctx context.Context, result *models.TestResult) error {
	if result.SuiteID == "" || result.SpecID == "" {
		return fmt.Errorf("result suite ID and spec ID are required")
	}
	if result.Status != models.ResultStatusPassed &&
		result.Status != models.ResultStatusFailed &&
		result.Status != models.ResultStatusWarning {
		return fmt.Errorf("invalid result status: %q", result.Status)
	}

	if err := s.db.Store().Upsert(resultKey(result.SuiteID, result.SpecID), result); err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	return nil
}

func (s *ResultStorage) ResultsBySuite(ctx context.Context, suiteID string) ([]*models.TestResult, error) {
	var results []models.TestResult
	if err := s.db.Store().Find(&results, badgerhold.Where("SuiteID").Eq(suiteID)); err != nil {
		return nil, fmt.Errorf("failed to find results: %w", err)
	}

	// Execution order: results start sequentially within a suite
	sort.Slice(results, func(i, j int) bool {
		if results[i].StartedAt.Equal(results[j].StartedAt) {
			return results[i].SpecID < results[j].SpecID
		}
		return results[i].StartedAt.Before(results[j].StartedAt)
	})

	out := make([]*models.TestResult, len(results))
	for i := range results {
		out[i] = &results[i]
	}
	return out, nil
}

// CompleteSuite recomputes the suite counters from its recorded results and
// persists them. Counts reflect what actually executed - a delta against
// Planned signals a fatal abort.
func (s *ResultStorage) CompleteSuite(ctx context.Context, suiteID string) (*models.TestSuite, error) {
	suite, err := s.GetSuite(ctx, suiteID)
	if err != nil {
		return nil, err
	}

	results, err := s.ResultsBySuite(ctx, suiteID)
	if err != nil {
		return nil, err
	}

	suite.Counters = models.ComputeCounters(results)
	now := time.Now().UTC()
	suite.CompletedAt = &now

	if err := s.db.Store().Upsert(suite.ID, suite); err != nil {
		return nil, fmt.Errorf("failed to complete suite: %w", err)
	}

	s.logger.Debug().
		Str("suite_id", suite.ID).
		Int("total", suite.Counters.Total).
		Int("passed", suite.Counters.Passed).
		Int("failed", suite.Counters.Failed).
		Int("warnings", suite.Counters.Warnings).
		Msg("Suite completed")

	return suite, nil
}

// CompleteRun sets the final status, completion timestamp and summary
// exactly once. A second call returns the already-completed run unchanged.
func (s *ResultStorage) CompleteRun(ctx context.Context, runID string, status models.RunStatus, runErr error) (*models.TestRun, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.CompletedAt != nil {
		return run, nil
	}

	summary, err := s.computeRunSummary(ctx, run)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Status = status
	run.Summary = summary
	if runErr != nil {
		run.Error = runErr.Error()
	}

	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return nil, fmt.Errorf("failed to complete run: %w", err)
	}

	return run, nil
}

// computeRunSummary aggregates all recorded results for the run
func (s *ResultStorage) computeRunSummary(ctx context.Context, run *models.TestRun) (models.RunSummary, error) {
	var results []models.TestResult
	if err := s.db.Store().Find(&results, badgerhold.Where("RunID").Eq(run.ID)); err != nil {
		return models.RunSummary{}, fmt.Errorf("failed to aggregate run results: %w", err)
	}

	suites, err := s.SuitesByRun(ctx, run.ID)
	if err != nil {
		return models.RunSummary{}, err
	}

	ptrs := make([]*models.TestResult, len(results))
	for i := range results {
		ptrs[i] = &results[i]
	}
	counters := models.ComputeCounters(ptrs)

	return models.RunSummary{
		TotalTests:    counters.Total,
		TotalPassed:   counters.Passed,
		TotalFailed:   counters.Failed,
		TotalWarnings: counters.Warnings,
		TotalSuites:   len(suites),
		SuccessRate:   counters.SuccessRate,
		DurationMs:    time.Now().UTC().Sub(run.StartedAt).Milliseconds(),
	}, nil
}
