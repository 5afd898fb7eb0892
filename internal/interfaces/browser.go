package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/probo/internal/models"
)

// PageVisit describes the observed outcome of one navigation
type PageVisit struct {
	URL      string
	Title    string
	HTML     string
	LoadTime time.Duration
}

// ExecutionContext is an isolated, disposable browsing context pre-seeded
// with an AuthSession's cookies and storage. Contexts created from the same
// session share no mutable state and must always be closed, even on error.
type ExecutionContext interface {
	// Navigate loads the given path (relative to the target base URL) and
	// waits for the load-complete signal
	Navigate(ctx context.Context, path string) (*PageVisit, error)

	// EmulateViewport applies viewport emulation before navigation
	EmulateViewport(ctx context.Context, width, height int64) error

	// IsAuthenticated reports whether the last loaded page indicates an
	// authenticated state. An explicit probe - a login surface is a negative
	// answer, not an error.
	IsAuthenticated(ctx context.Context) (bool, error)

	// Screenshot captures an evidence artifact of the current page and
	// returns the file path it was written to
	Screenshot(ctx context.Context, name string) (string, error)

	// Close disposes the browsing context and its resources
	Close()
}

// BrowserDriver is the boundary to the browser automation engine. The core
// never touches a raw browser connection outside this interface.
type BrowserDriver interface {
	// NewExecutionContext launches an isolated browsing context seeded with
	// the given session state, behaving as already authenticated
	NewExecutionContext(ctx context.Context, session *models.AuthSession) (ExecutionContext, error)

	// CaptureSession performs an interactive capture: opens a login surface,
	// waits for the operator to authenticate, then serializes the resulting
	// browser state as a new AuthSession
	CaptureSession(ctx context.Context) (*models.AuthSession, error)

	// Shutdown releases all browser resources
	Shutdown() error
}
