package interfaces

import (
	"context"

	"github.com/ternarybob/probo/internal/models"
)

// SessionStorage persists captured AuthSessions
type SessionStorage interface {
	StoreSession(ctx context.Context, session *models.AuthSession) error
	GetSession(ctx context.Context, id string) (*models.AuthSession, error)
	// LatestSession returns the most recently captured session, or nil when
	// none is stored
	LatestSession(ctx context.Context) (*models.AuthSession, error)
	DeleteSession(ctx context.Context, id string) error
}

// ResultStorage durably persists run/suite/result records as they are
// produced and answers rollup queries. Parent records exist before any child
// results so partial runs remain analyzable after a crash.
type ResultStorage interface {
	SaveRun(ctx context.Context, run *models.TestRun) error
	GetRun(ctx context.Context, id string) (*models.TestRun, error)

	BeginSuite(ctx context.Context, suite *models.TestSuite) error
	GetSuite(ctx context.Context, id string) (*models.TestSuite, error)
	SuitesByRun(ctx context.Context, runID string) ([]*models.TestSuite, error)

	// RecordResult is an idempotent upsert keyed by (suiteID, specID):
	// re-recording the same test overwrites rather than duplicates
	RecordResult(ctx context.Context, result *models.TestResult) error
	ResultsBySuite(ctx context.Context, suiteID string) ([]*models.TestResult, error)

	// CompleteSuite recomputes and persists suite counters as a pure
	// aggregation over recorded results. Safe to call when some planned
	// tests never ran.
	CompleteSuite(ctx context.Context, suiteID string) (*models.TestSuite, error)

	// CompleteRun sets the final status and summary exactly once; later
	// calls return the already-completed run unchanged
	CompleteRun(ctx context.Context, runID string, status models.RunStatus, runErr error) (*models.TestRun, error)
}

// StorageManager owns the database connection and hands out typed stores
type StorageManager interface {
	SessionStorage() SessionStorage
	ResultStorage() ResultStorage
	Close() error
}
