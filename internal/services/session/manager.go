package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/common"
	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/models"
)

// Manager owns the current AuthSession for a run. It is the only writer:
// capture and refresh are serialized through it and never overlap an
// in-flight test. Sessions are immutable - renewal swaps in a new value.
type Manager struct {
	cfg     *common.Config
	driver  interfaces.BrowserDriver
	store   interfaces.SessionStorage
	backoff common.Backoff
	logger  arbor.ILogger

	mu      sync.Mutex
	current *models.AuthSession

	// now is injectable for staleness tests
	now func() time.Time
}

// NewManager creates a session lifecycle manager
func NewManager(cfg *common.Config, driver interfaces.BrowserDriver, store interfaces.SessionStorage, logger arbor.ILogger) *Manager {
	return &Manager{
		cfg:     cfg,
		driver:  driver,
		store:   store,
		backoff: common.DefaultBackoff(),
		logger:  logger,
		now:     time.Now,
	}
}

// Initialize loads the most recent stored session if it is within its
// staleness threshold. When no usable session is stored, a fresh interactive
// capture is performed if permitted; otherwise ErrNoSessionAvailable.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.store.LatestSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stored session: %w", err)
	}

	if stored != nil && !stored.IsStale(m.now()) {
		stored.Validation = models.SessionValidationUnknown
		m.current = stored
		m.logger.Info().
			Str("session_id", stored.ID).
			Dur("age", stored.Age(m.now())).
			Msg("Loaded stored auth session")
		return nil
	}

	if stored != nil {
		m.logger.Info().
			Str("session_id", stored.ID).
			Dur("age", stored.Age(m.now())).
			Dur("threshold", stored.StalenessThreshold).
			Msg("Stored auth session is past its staleness threshold")
	}

	if !m.cfg.Session.InteractiveCapture {
		return models.ErrNoSessionAvailable
	}

	// First capture follows the same retry policy as mid-run re-capture
	if err := m.recaptureLocked(ctx); err != nil {
		return fmt.Errorf("initial session capture failed: %w", err)
	}
	return nil
}

// Current returns the current AuthSession, or nil before Initialize
func (m *Manager) Current() *models.AuthSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// EnsureValidSession validates the current session with one lightweight
// authenticated navigation. On validation failure it re-captures, retrying
// once with backoff; a further failure is fatal for the run and returned as
// *models.SessionCaptureError.
func (m *Manager) EnsureValidSession(ctx context.Context) (*models.AuthSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureValidLocked(ctx)
}

func (m *Manager) ensureValidLocked(ctx context.Context) (*models.AuthSession, error) {
	if m.current == nil {
		return nil, models.ErrNoSessionAvailable
	}

	if m.current.IsStale(m.now()) {
		m.logger.Info().
			Str("session_id", m.current.ID).
			Msg("Session past staleness threshold, re-capturing")
		m.current.Validation = models.SessionValidationExpired
	} else {
		valid, err := m.validate(ctx, m.current)
		if err != nil {
			m.logger.Warn().
				Err(err).
				Str("session_id", m.current.ID).
				Msg("Session validation probe errored")
		}
		if valid {
			m.current.Validation = models.SessionValidationValid
			return m.current, nil
		}
		m.current.Validation = models.SessionValidationExpired
		m.logger.Info().
			Str("session_id", m.current.ID).
			Msg("Session no longer authenticated, re-capturing")
	}

	if err := m.recaptureLocked(ctx); err != nil {
		return nil, err
	}
	return m.current, nil
}

// validate performs one authenticated probe navigation in a disposable
// execution context. A login surface is an expected negative outcome, not an
// error.
func (m *Manager) validate(ctx context.Context, session *models.AuthSession) (bool, error) {
	execCtx, err := m.driver.NewExecutionContext(ctx, session)
	if err != nil {
		return false, fmt.Errorf("failed to create validation context: %w", err)
	}
	defer execCtx.Close()

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.Runner.TestTimeout.Duration)
	defer cancel()

	if _, err := execCtx.Navigate(probeCtx, m.cfg.Target.ProbePath); err != nil {
		return false, fmt.Errorf("validation navigation failed: %w", err)
	}

	return execCtx.IsAuthenticated(probeCtx)
}

// recaptureLocked replaces the current session with a freshly captured one,
// retrying per the backoff policy. Exhausting the retry budget returns
// *models.SessionCaptureError - fatal, because continuing without a valid
// session would turn every later test into a silently-wrong failure.
func (m *Manager) recaptureLocked(ctx context.Context) error {
	err := m.backoff.Retry(ctx, m.logger, "session capture", func() error {
		return m.captureLocked(ctx)
	})
	if err != nil {
		return &models.SessionCaptureError{
			Attempts: m.backoff.MaxAttempts,
			Err:      err,
		}
	}
	return nil
}

// captureLocked performs one capture attempt and persists the new session
func (m *Manager) captureLocked(ctx context.Context) error {
	session, err := m.driver.CaptureSession(ctx)
	if err != nil {
		return err
	}

	if err := m.store.StoreSession(ctx, session); err != nil {
		return fmt.Errorf("failed to persist captured session: %w", err)
	}

	previous := ""
	if m.current != nil {
		previous = m.current.ID
	}
	m.current = session

	m.logger.Info().
		Str("session_id", session.ID).
		Str("replaced", previous).
		Msg("Auth session captured and persisted")

	return nil
}

// RefreshIfNeeded proactively re-validates between batches once the session
// age crosses the configured fraction of its staleness threshold. This
// bounds the blast radius of mid-run expiry to at most one batch.
func (m *Manager) RefreshIfNeeded(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return models.ErrNoSessionAvailable
	}

	if !m.current.NeedsRefresh(m.now(), m.cfg.Session.RefreshFraction) {
		return nil
	}

	m.logger.Info().
		Str("session_id", m.current.ID).
		Dur("age", m.current.Age(m.now())).
		Msg("Session nearing staleness threshold, refreshing before next batch")

	if _, err := m.ensureValidLocked(ctx); err != nil {
		return err
	}
	return nil
}

// NewExecutionContext creates an isolated browsing context seeded with the
// current session. Contexts are independently disposable and share no
// mutable state.
func (m *Manager) NewExecutionContext(ctx context.Context) (interfaces.ExecutionContext, error) {
	m.mu.Lock()
	session := m.current
	m.mu.Unlock()

	if session == nil {
		return nil, models.ErrNoSessionAvailable
	}

	return m.driver.NewExecutionContext(ctx, session)
}
