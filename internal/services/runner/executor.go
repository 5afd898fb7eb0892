package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/models"
)

// executeTest runs one spec in its own browsing context and always produces a
// result - panics and errors become failed results, never a crashed run. The
// authFailed flag tells the scheduler the page showed a login surface, which
// is a session problem rather than a test problem.
func (s *Scheduler) executeTest(ctx context.Context, run *models.TestRun, suite *models.TestSuite, spec *models.TestSpec) (result *models.TestResult, authFailed bool) {
	timeout := s.cfg.Runner.TestTimeout.Duration
	if spec.LongRunning {
		timeout = s.cfg.Runner.LongTestTimeout.Duration
	}
	testCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result = &models.TestResult{
		RunID:     run.ID,
		SuiteID:   suite.ID,
		SpecID:    spec.ID,
		Name:      spec.Name,
		Category:  spec.Category,
		StartedAt: s.now().UTC(),
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("spec_id", spec.ID).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(debug.Stack())).
				Msg("Test execution panicked")
			result.Status = models.ResultStatusFailed
			result.ErrorKind = models.ErrorKindException
			result.Error = fmt.Sprintf("panic: %v", r)
		}
		result.EndedAt = s.now().UTC()
		result.Finalize()

		s.logger.Info().
			Str("spec_id", spec.ID).
			Str("status", string(result.Status)).
			Int64("duration_ms", result.DurationMs).
			Int64("load_ms", result.LoadTimeMs).
			Msg("Test executed")
	}()

	execCtx, err := s.sessions.NewExecutionContext(testCtx)
	if err != nil {
		result.Status = models.ResultStatusFailed
		result.ErrorKind = models.ErrorKindException
		result.Error = fmt.Sprintf("failed to create browsing context: %v", err)
		return result, false
	}
	defer execCtx.Close()

	if spec.Viewport != nil {
		if err := execCtx.EmulateViewport(testCtx, spec.Viewport.Width, spec.Viewport.Height); err != nil {
			result.Status = models.ResultStatusFailed
			result.ErrorKind = models.ErrorKindException
			result.Error = fmt.Sprintf("viewport emulation failed: %v", err)
			return result, false
		}
	}

	// Stress specs declare a concurrency factor; each unit is a repeated
	// navigation in the same context and the worst load time is judged
	iterations := 1
	if spec.Concurrency > 1 {
		iterations = spec.Concurrency
	}

	var visit *interfaces.PageVisit
	var worstLoad int64
	for i := 0; i < iterations; i++ {
		visit, err = execCtx.Navigate(testCtx, spec.TargetPath())
		if err != nil {
			result.Status = models.ResultStatusFailed
			if errors.Is(err, context.DeadlineExceeded) {
				result.ErrorKind = models.ErrorKindTimeout
				result.Error = fmt.Sprintf("navigation exceeded %s: %v", timeout, err)
			} else {
				result.ErrorKind = models.ErrorKindException
				result.Error = fmt.Sprintf("navigation failed: %v", err)
			}
			s.captureEvidence(testCtx, execCtx, result)
			return result, false
		}
		if ms := visit.LoadTime.Milliseconds(); ms > worstLoad {
			worstLoad = ms
		}
	}

	result.FinalURL = visit.URL
	result.FinalTitle = visit.Title
	result.LoadTimeMs = worstLoad

	authenticated, err := execCtx.IsAuthenticated(testCtx)
	if err != nil {
		result.Status = models.ResultStatusFailed
		result.ErrorKind = models.ErrorKindException
		result.Error = fmt.Sprintf("authentication probe failed: %v", err)
		return result, false
	}
	if !authenticated {
		result.Status = models.ResultStatusFailed
		result.ErrorKind = models.ErrorKindAssertion
		result.Error = "page shows login surface, session not authenticated"
		s.captureEvidence(testCtx, execCtx, result)
		return result, true
	}

	switch {
	case worstLoad > s.cfg.Runner.HardLoadThreshold.Milliseconds():
		result.Status = models.ResultStatusFailed
		result.ErrorKind = models.ErrorKindAssertion
		result.Error = fmt.Sprintf("load time %dms exceeded hard threshold %s", worstLoad, s.cfg.Runner.HardLoadThreshold)
		s.captureEvidence(testCtx, execCtx, result)
	case worstLoad > s.cfg.Runner.SoftLoadThreshold.Milliseconds():
		result.Status = models.ResultStatusWarning
		result.Note = fmt.Sprintf("load time %dms exceeded soft threshold %s", worstLoad, s.cfg.Runner.SoftLoadThreshold)
	default:
		result.Status = models.ResultStatusPassed
	}

	return result, false
}

// captureEvidence best-effort screenshots a failed test. Evidence is an aid,
// never a reason to fail further.
func (s *Scheduler) captureEvidence(ctx context.Context, execCtx interfaces.ExecutionContext, result *models.TestResult) {
	path, err := execCtx.Screenshot(ctx, result.SpecID)
	if err != nil {
		s.logger.Debug().
			Err(err).
			Str("spec_id", result.SpecID).
			Msg("Evidence screenshot failed")
		return
	}
	result.Screenshot = path
}
