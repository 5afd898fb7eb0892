package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/common"
	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/models"
	"github.com/ternarybob/probo/internal/services/events"
	"github.com/ternarybob/probo/internal/storage/badger"
)

// scriptedExec scripts one test's browser interaction
type scriptedExec struct {
	authenticated bool
	navErr        error
	loadTime      time.Duration
}

func (s *scriptedExec) Navigate(ctx context.Context, path string) (*interfaces.PageVisit, error) {
	if s.navErr != nil {
		return nil, s.navErr
	}
	return &interfaces.PageVisit{
		URL:      "https://jira.example.com" + path,
		Title:    "Dashboard - JIRA",
		LoadTime: s.loadTime,
	}, nil
}

func (s *scriptedExec) EmulateViewport(ctx context.Context, width, height int64) error {
	return nil
}

func (s *scriptedExec) IsAuthenticated(ctx context.Context) (bool, error) {
	return s.authenticated, nil
}

func (s *scriptedExec) Screenshot(ctx context.Context, name string) (string, error) {
	return "", fmt.Errorf("screenshots disabled in tests")
}

func (s *scriptedExec) Close() {}

// fakeSessions scripts the session manager: per-spec exec contexts plus
// controllable validation outcomes
type fakeSessions struct {
	mu           sync.Mutex
	session      *models.AuthSession
	execByPath   map[string]*scriptedExec
	defaultExec  *scriptedExec
	ensureErr    error
	ensureCalls  int
	refreshErr   error
	refreshCalls int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		session: &models.AuthSession{
			ID:                 "session_test",
			CapturedAt:         time.Now().UTC(),
			StalenessThreshold: 8 * time.Hour,
		},
		execByPath:  make(map[string]*scriptedExec),
		defaultExec: &scriptedExec{authenticated: true, loadTime: 200 * time.Millisecond},
	}
}

func (f *fakeSessions) Initialize(ctx context.Context) error { return nil }

func (f *fakeSessions) Current() *models.AuthSession { return f.session }

func (f *fakeSessions) EnsureValidSession(ctx context.Context) (*models.AuthSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	return f.session, nil
}

func (f *fakeSessions) RefreshIfNeeded(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	return f.refreshErr
}

func (f *fakeSessions) NewExecutionContext(ctx context.Context) (interfaces.ExecutionContext, error) {
	return &pathRoutingExec{sessions: f}, nil
}

// pathRoutingExec picks the scripted behavior once the navigated path is known
type pathRoutingExec struct {
	sessions *fakeSessions
	chosen   *scriptedExec
}

func (p *pathRoutingExec) resolve(path string) *scriptedExec {
	if p.chosen == nil {
		p.sessions.mu.Lock()
		if exec, ok := p.sessions.execByPath[path]; ok {
			p.chosen = exec
		} else {
			p.chosen = p.sessions.defaultExec
		}
		p.sessions.mu.Unlock()
	}
	return p.chosen
}

func (p *pathRoutingExec) Navigate(ctx context.Context, path string) (*interfaces.PageVisit, error) {
	return p.resolve(path).Navigate(ctx, path)
}

func (p *pathRoutingExec) EmulateViewport(ctx context.Context, width, height int64) error {
	return nil
}

func (p *pathRoutingExec) IsAuthenticated(ctx context.Context) (bool, error) {
	if p.chosen == nil {
		return true, nil
	}
	return p.chosen.IsAuthenticated(ctx)
}

func (p *pathRoutingExec) Screenshot(ctx context.Context, name string) (string, error) {
	return "", fmt.Errorf("screenshots disabled in tests")
}

func (p *pathRoutingExec) Close() {}

// eventRecorder collects published events in order
type eventRecorder struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (r *eventRecorder) record(ctx context.Context, event interfaces.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) ofType(t interfaces.EventType) []interfaces.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []interfaces.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func testSpecs(category models.TestCategory, prefix string, n int) []models.TestSpec {
	specs := make([]models.TestSpec, n)
	for i := range specs {
		specs[i] = models.TestSpec{
			ID:       fmt.Sprintf("%s-%03d", prefix, i+1),
			Name:     fmt.Sprintf("%s check %d", category, i+1),
			Category: category,
			Path:     fmt.Sprintf("/secure/%s-%d.jspa", prefix, i+1),
		}
	}
	return specs
}

func newTestScheduler(t *testing.T, sessions interfaces.SessionManager) (*Scheduler, interfaces.ResultStorage, *eventRecorder) {
	t.Helper()

	logger := arbor.NewLogger()
	cfg := common.NewDefaultConfig()
	cfg.Target.BaseURL = "https://jira.example.com"

	db, err := badger.NewBadgerDB(logger, &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "probo-test"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := badger.NewResultStorage(db, logger)

	recorder := &eventRecorder{}
	eventService := events.NewService(logger)
	for _, et := range []interfaces.EventType{
		interfaces.EventRunStarted,
		interfaces.EventBatchProgress,
		interfaces.EventSuiteCompleted,
		interfaces.EventRunCompleted,
		interfaces.EventRunFailed,
	} {
		require.NoError(t, eventService.Subscribe(et, recorder.record))
	}

	return NewScheduler(cfg, sessions, store, eventService, logger), store, recorder
}

func TestExecute_FullRunCompletes(t *testing.T) {
	sessions := newFakeSessions()
	scheduler, store, recorder := newTestScheduler(t, sessions)

	specs := append(
		testSpecs(models.CategoryDashboard, "DASH", 7),
		testSpecs(models.CategorySearch, "SRCH", 3)...,
	)

	run, err := scheduler.Execute(context.Background(), specs)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.NotNil(t, run.CompletedAt)
	assert.Equal(t, 10, run.Summary.TotalTests)
	assert.Equal(t, 10, run.Summary.TotalPassed)
	assert.Equal(t, 2, run.Summary.TotalSuites)
	assert.InDelta(t, 100.0, run.Summary.SuccessRate, 0.001)

	suites, err := store.SuitesByRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, suites, 2)
	for _, suite := range suites {
		assert.Equal(t, suite.Planned, suite.Counters.Total)
		assert.NotNil(t, suite.CompletedAt)
	}

	// 7 dashboard specs at batch size 5 -> 2 checkpoints, 3 search -> 1
	progress := recorder.ofType(interfaces.EventBatchProgress)
	require.Len(t, progress, 3)
	last := progress[2].Payload.(interfaces.ProgressPayload)
	assert.Equal(t, 10, last.TestsCompleted)
	assert.Equal(t, 10, last.TotalPlanned)

	assert.Len(t, recorder.ofType(interfaces.EventRunCompleted), 1)
	assert.Empty(t, recorder.ofType(interfaces.EventRunFailed))
}

// One broken page never stops the run
func TestExecute_SingleFailureContinues(t *testing.T) {
	sessions := newFakeSessions()
	sessions.execByPath["/secure/DASH-2.jspa"] = &scriptedExec{
		authenticated: true,
		navErr:        fmt.Errorf("net::ERR_CONNECTION_RESET"),
	}
	scheduler, store, _ := newTestScheduler(t, sessions)

	run, err := scheduler.Execute(context.Background(), testSpecs(models.CategoryDashboard, "DASH", 3))
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.Summary.TotalTests)
	assert.Equal(t, 2, run.Summary.TotalPassed)
	assert.Equal(t, 1, run.Summary.TotalFailed)

	suites, err := store.SuitesByRun(context.Background(), run.ID)
	require.NoError(t, err)
	results, err := store.ResultsBySuite(context.Background(), suites[0].ID)
	require.NoError(t, err)

	var failed *models.TestResult
	for _, r := range results {
		if r.SpecID == "DASH-002" {
			failed = r
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, models.ResultStatusFailed, failed.Status)
	assert.Equal(t, models.ErrorKindException, failed.ErrorKind)
	assert.Contains(t, failed.Error, "ERR_CONNECTION_RESET")
}

func TestExecute_TimeoutClassified(t *testing.T) {
	sessions := newFakeSessions()
	sessions.execByPath["/secure/DASH-1.jspa"] = &scriptedExec{
		authenticated: true,
		navErr:        context.DeadlineExceeded,
	}
	scheduler, store, _ := newTestScheduler(t, sessions)

	run, err := scheduler.Execute(context.Background(), testSpecs(models.CategoryDashboard, "DASH", 1))
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)

	suites, err := store.SuitesByRun(context.Background(), run.ID)
	require.NoError(t, err)
	results, err := store.ResultsBySuite(context.Background(), suites[0].ID)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, models.ResultStatusFailed, results[0].Status)
	assert.Equal(t, models.ErrorKindTimeout, results[0].ErrorKind)
}

func TestExecute_LoadThresholds(t *testing.T) {
	sessions := newFakeSessions()
	// Soft threshold 3s, hard threshold 10s
	sessions.execByPath["/secure/PERF-1.jspa"] = &scriptedExec{authenticated: true, loadTime: time.Second}
	sessions.execByPath["/secure/PERF-2.jspa"] = &scriptedExec{authenticated: true, loadTime: 5 * time.Second}
	sessions.execByPath["/secure/PERF-3.jspa"] = &scriptedExec{authenticated: true, loadTime: 12 * time.Second}
	scheduler, store, _ := newTestScheduler(t, sessions)

	run, err := scheduler.Execute(context.Background(), testSpecs(models.CategoryPerformance, "PERF", 3))
	require.NoError(t, err)

	assert.Equal(t, 1, run.Summary.TotalPassed)
	assert.Equal(t, 1, run.Summary.TotalWarnings)
	assert.Equal(t, 1, run.Summary.TotalFailed)

	suites, err := store.SuitesByRun(context.Background(), run.ID)
	require.NoError(t, err)
	results, err := store.ResultsBySuite(context.Background(), suites[0].ID)
	require.NoError(t, err)

	byID := make(map[string]*models.TestResult)
	for _, r := range results {
		byID[r.SpecID] = r
	}
	assert.Equal(t, models.ResultStatusPassed, byID["PERF-001"].Status)
	assert.Equal(t, models.ResultStatusWarning, byID["PERF-002"].Status)
	assert.Equal(t, models.ResultStatusFailed, byID["PERF-003"].Status)
	assert.Equal(t, models.ErrorKindAssertion, byID["PERF-003"].ErrorKind)

	// Warnings carry a note, not an error
	assert.Empty(t, byID["PERF-002"].Error)
	assert.Empty(t, byID["PERF-002"].ErrorKind)
	assert.NotEmpty(t, byID["PERF-002"].Note)
}

// A login surface mid-test fails that test and triggers one session recovery
func TestExecute_AuthLossRecovers(t *testing.T) {
	sessions := newFakeSessions()
	sessions.execByPath["/secure/DASH-2.jspa"] = &scriptedExec{authenticated: false}
	scheduler, _, _ := newTestScheduler(t, sessions)

	run, err := scheduler.Execute(context.Background(), testSpecs(models.CategoryDashboard, "DASH", 3))
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.Summary.TotalFailed)
	assert.Equal(t, 2, run.Summary.TotalPassed)

	// Once pre-run, once after the auth failure
	assert.Equal(t, 2, sessions.ensureCalls)
}

// Unrecoverable session loss is a fatal abort: prior results preserved, run
// marked failed, no further tests executed
func TestExecute_SessionLostFatal(t *testing.T) {
	sessions := newFakeSessions()
	sessions.execByPath["/secure/DASH-2.jspa"] = &scriptedExec{authenticated: false}
	scheduler, store, recorder := newTestScheduler(t, sessions)

	// First ensure (pre-run) succeeds, the mid-run recovery fails
	firstEnsure := true
	scheduler.sessions = &ensureFailsAfterFirst{inner: sessions, first: &firstEnsure}

	run, err := scheduler.Execute(context.Background(), testSpecs(models.CategoryDashboard, "DASH", 5))
	require.Error(t, err)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.NotNil(t, run.CompletedAt)
	assert.Contains(t, run.Error, "session lost mid-run")

	// The two tests that ran before the abort are preserved
	suites, serr := store.SuitesByRun(context.Background(), run.ID)
	require.NoError(t, serr)
	results, rerr := store.ResultsBySuite(context.Background(), suites[0].ID)
	require.NoError(t, rerr)
	assert.Len(t, results, 2)

	assert.Len(t, recorder.ofType(interfaces.EventRunFailed), 1)
	assert.Empty(t, recorder.ofType(interfaces.EventRunCompleted))
}

// ensureFailsAfterFirst lets the pre-run validation pass and fails every
// later EnsureValidSession call
type ensureFailsAfterFirst struct {
	inner interfaces.SessionManager
	first *bool
}

func (e *ensureFailsAfterFirst) Initialize(ctx context.Context) error { return e.inner.Initialize(ctx) }
func (e *ensureFailsAfterFirst) Current() *models.AuthSession        { return e.inner.Current() }

func (e *ensureFailsAfterFirst) EnsureValidSession(ctx context.Context) (*models.AuthSession, error) {
	if *e.first {
		*e.first = false
		return e.inner.EnsureValidSession(ctx)
	}
	return nil, &models.SessionCaptureError{Attempts: 2, Err: fmt.Errorf("capture window closed")}
}

func (e *ensureFailsAfterFirst) RefreshIfNeeded(ctx context.Context) error {
	return e.inner.RefreshIfNeeded(ctx)
}

func (e *ensureFailsAfterFirst) NewExecutionContext(ctx context.Context) (interfaces.ExecutionContext, error) {
	return e.inner.NewExecutionContext(ctx)
}

func TestExecute_PreRunValidationFailureAborts(t *testing.T) {
	sessions := newFakeSessions()
	sessions.ensureErr = &models.SessionCaptureError{Attempts: 2, Err: fmt.Errorf("no session")}
	scheduler, _, recorder := newTestScheduler(t, sessions)

	run, err := scheduler.Execute(context.Background(), testSpecs(models.CategoryDashboard, "DASH", 3))
	require.Error(t, err)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, 0, run.Summary.TotalTests)
	assert.Len(t, recorder.ofType(interfaces.EventRunFailed), 1)
}

func TestExecute_CancelledContextAborts(t *testing.T) {
	sessions := newFakeSessions()
	scheduler, _, _ := newTestScheduler(t, sessions)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := scheduler.Execute(ctx, testSpecs(models.CategoryDashboard, "DASH", 3))
	require.Error(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
}
