package interfaces

import (
	"context"

	"github.com/ternarybob/probo/internal/models"
)

// SessionManager owns the current AuthSession pointer for a run. All
// capture and refresh writes are serialized through it; tests only ever read
// the session through execution contexts.
type SessionManager interface {
	// Initialize loads the most recent stored session if it is within its
	// staleness threshold, otherwise captures a fresh one when permitted.
	// Returns models.ErrNoSessionAvailable when neither is possible.
	Initialize(ctx context.Context) error

	// Current returns the current AuthSession, or nil before Initialize
	Current() *models.AuthSession

	// EnsureValidSession validates the current session with a lightweight
	// authenticated navigation, re-capturing on failure. A second
	// consecutive failure returns *models.SessionCaptureError (fatal).
	EnsureValidSession(ctx context.Context) (*models.AuthSession, error)

	// RefreshIfNeeded proactively re-validates between batches once the
	// session age crosses the configured fraction of its staleness
	// threshold
	RefreshIfNeeded(ctx context.Context) error

	// NewExecutionContext creates an isolated browsing context seeded with
	// the current session
	NewExecutionContext(ctx context.Context) (ExecutionContext, error)
}
