package schedule

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// RunFunc executes one full test run
type RunFunc func() error

// Service triggers unattended runs on a cron schedule. Overlapping triggers
// are skipped, not queued: a matrix run can take hours and stacking runs
// would contend for the same browser and session.
type Service struct {
	cron    *cron.Cron
	logger  arbor.ILogger
	runFn   RunFunc
	mu      sync.Mutex
	running bool
	started bool
	lastRun *time.Time
	lastErr string
}

// NewService creates a schedule service around the given run function
func NewService(runFn RunFunc, logger arbor.ILogger) *Service {
	return &Service{
		cron:   cron.New(),
		logger: logger,
		runFn:  runFn,
	}
}

// Start registers the cron expression and begins scheduling
func (s *Service) Start(cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("schedule already started")
	}
	if cronExpr == "" {
		return fmt.Errorf("cron expression is required")
	}

	if _, err := s.cron.AddFunc(cronExpr, s.trigger); err != nil {
		return fmt.Errorf("failed to register cron schedule: %w", err)
	}

	s.cron.Start()
	s.started = true

	s.logger.Info().
		Str("cron_expr", cronExpr).
		Msg("Scheduled runs enabled")

	return nil
}

// Stop halts scheduling and waits for an in-flight run to finish
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.logger.Info().Msg("Scheduled runs stopped")
}

// trigger executes one run unless a previous one is still in flight
func (s *Service) trigger() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn().Msg("Previous scheduled run still in progress, skipping trigger")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Scheduled run panicked")
		}
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info().Msg("Scheduled run triggered")

	now := time.Now().UTC()
	err := s.runFn()

	s.mu.Lock()
	s.lastRun = &now
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduled run failed")
	}
}

// Status reports the last scheduled run outcome
func (s *Service) Status() (lastRun *time.Time, lastErr string, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr, s.running
}
