package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/common"
	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/models"
	"github.com/ternarybob/probo/internal/services/matrix"
)

// Scheduler executes a generated test matrix as one run: per-category suites,
// batched execution with progress checkpoints, and sequential per-test
// isolation. A single test failure never stops the run; session loss that
// cannot be recovered does.
type Scheduler struct {
	cfg      *common.Config
	sessions interfaces.SessionManager
	store    interfaces.ResultStorage
	events   interfaces.EventService
	logger   arbor.ILogger

	// now is injectable for tests
	now func() time.Time
}

// NewScheduler creates a batch execution scheduler
func NewScheduler(cfg *common.Config, sessions interfaces.SessionManager, store interfaces.ResultStorage, events interfaces.EventService, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		sessions: sessions,
		store:    store,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// Execute runs the full matrix. The returned TestRun is always persisted,
// including on fatal abort; the error is non-nil only for fatal aborts.
func (s *Scheduler) Execute(ctx context.Context, specs []models.TestSpec) (*models.TestRun, error) {
	run := &models.TestRun{
		ID:           common.NewRunID(),
		Status:       models.RunStatusRunning,
		StartedAt:    s.now().UTC(),
		PlannedTotal: len(specs),
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Int("planned", run.PlannedTotal).
		Msg("Test run started")

	session, err := s.sessions.EnsureValidSession(ctx)
	if err != nil {
		return s.abortRun(ctx, run, fmt.Errorf("pre-run session validation failed: %w", err))
	}
	run.AuthSessionID = session.ID
	if err := s.store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to update run record: %w", err)
	}

	s.publish(ctx, interfaces.EventRunStarted, interfaces.ProgressPayload{
		RunID:        run.ID,
		TotalPlanned: run.PlannedTotal,
	})

	completed := 0
	for _, group := range matrix.SplitByCategory(specs) {
		n, err := s.executeSuite(ctx, run, group, completed)
		if err != nil {
			return s.abortRun(ctx, run, err)
		}
		completed = n
	}

	run, err = s.store.CompleteRun(ctx, run.ID, models.RunStatusCompleted, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to complete run: %w", err)
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Int("total", run.Summary.TotalTests).
		Int("passed", run.Summary.TotalPassed).
		Int("failed", run.Summary.TotalFailed).
		Int("warnings", run.Summary.TotalWarnings).
		Float64("success_rate", run.Summary.SuccessRate).
		Msg("Test run completed")

	if err := s.events.PublishSync(ctx, interfaces.Event{
		Type:      interfaces.EventRunCompleted,
		Timestamp: s.now().UTC(),
		Payload: interfaces.SummaryPayload{
			RunID:   run.ID,
			Status:  run.Status,
			Summary: run.Summary,
		},
	}); err != nil {
		s.logger.Warn().Err(err).Msg("Run completion event handler failed")
	}

	return run, nil
}

// executeSuite runs one category group in batches. Returns the updated
// completed count; a non-nil error is fatal for the whole run.
func (s *Scheduler) executeSuite(ctx context.Context, run *models.TestRun, group []models.TestSpec, completed int) (int, error) {
	category := group[0].Category

	suite := &models.TestSuite{
		ID:        common.NewSuiteID(),
		RunID:     run.ID,
		Name:      string(category),
		Category:  category,
		Planned:   len(group),
		StartedAt: s.now().UTC(),
	}
	if err := s.store.BeginSuite(ctx, suite); err != nil {
		return completed, fmt.Errorf("failed to begin suite %s: %w", suite.Name, err)
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Str("suite_id", suite.ID).
		Str("category", string(category)).
		Int("planned", suite.Planned).
		Msg("Suite started")

	batchSize := s.cfg.Runner.BatchSize
	for start := 0; start < len(group); start += batchSize {
		if err := ctx.Err(); err != nil {
			return completed, fmt.Errorf("run cancelled: %w", err)
		}

		// Proactive refresh at batch boundaries keeps mid-run expiry from
		// bleeding across more than one batch
		if completed > 0 {
			if err := s.sessions.RefreshIfNeeded(ctx); err != nil {
				return completed, fmt.Errorf("session refresh failed: %w", err)
			}
		}

		end := start + batchSize
		if end > len(group) {
			end = len(group)
		}

		for i := start; i < end; i++ {
			spec := &group[i]
			result, authFailed := s.executeTest(ctx, run, suite, spec)
			if err := s.store.RecordResult(ctx, result); err != nil {
				return completed, fmt.Errorf("failed to record result for %s: %w", spec.ID, err)
			}
			completed++

			// A login surface mid-test means the session died underneath us.
			// The test stays failed; the run recovers once or aborts.
			if authFailed {
				if _, err := s.sessions.EnsureValidSession(ctx); err != nil {
					return completed, fmt.Errorf("session lost mid-run: %w", err)
				}
			}
		}

		s.publish(ctx, interfaces.EventBatchProgress, interfaces.ProgressPayload{
			RunID:           run.ID,
			TestsCompleted:  completed,
			TotalPlanned:    run.PlannedTotal,
			CurrentCategory: string(category),
		})
	}

	done, err := s.store.CompleteSuite(ctx, suite.ID)
	if err != nil {
		return completed, fmt.Errorf("failed to complete suite %s: %w", suite.Name, err)
	}

	if done.Counters.Total != done.Planned {
		s.logger.Warn().
			Str("suite_id", done.ID).
			Int("planned", done.Planned).
			Int("executed", done.Counters.Total).
			Msg("Suite executed count differs from plan")
	}

	s.publish(ctx, interfaces.EventSuiteCompleted, done)

	return completed, nil
}

// abortRun marks the run failed exactly once, preserving all results recorded
// so far, and emits the failure event
func (s *Scheduler) abortRun(ctx context.Context, run *models.TestRun, cause error) (*models.TestRun, error) {
	s.logger.Error().
		Err(cause).
		Str("run_id", run.ID).
		Msg("Test run aborted")

	failed, err := s.store.CompleteRun(ctx, run.ID, models.RunStatusFailed, cause)
	if err != nil {
		return run, fmt.Errorf("failed to record run abort (cause: %v): %w", cause, err)
	}

	if err := s.events.PublishSync(ctx, interfaces.Event{
		Type:      interfaces.EventRunFailed,
		Timestamp: s.now().UTC(),
		Payload: interfaces.SummaryPayload{
			RunID:   failed.ID,
			Status:  failed.Status,
			Summary: failed.Summary,
			Error:   failed.Error,
		},
	}); err != nil {
		s.logger.Warn().Err(err).Msg("Run failure event handler failed")
	}

	return failed, cause
}

func (s *Scheduler) publish(ctx context.Context, eventType interfaces.EventType, payload interface{}) {
	if err := s.events.PublishSync(ctx, interfaces.Event{
		Type:      eventType,
		Timestamp: s.now().UTC(),
		Payload:   payload,
	}); err != nil {
		s.logger.Warn().
			Err(err).
			Str("event_type", string(eventType)).
			Msg("Event handler failed")
	}
}
