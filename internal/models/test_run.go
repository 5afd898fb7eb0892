package models

import "time"

// ResultStatus is the closed set of per-test outcomes
type ResultStatus string

const (
	ResultStatusPassed  ResultStatus = "passed"
	ResultStatusFailed  ResultStatus = "failed"
	ResultStatusWarning ResultStatus = "warning"
)

// ErrorKind classifies why a test failed. Empty for passed/warning results.
type ErrorKind string

const (
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindAssertion ErrorKind = "assertion"
	ErrorKindException ErrorKind = "exception"
)

// RunStatus represents the state of a test run. A run marked failed is a
// fatal abort - no further tests executed, prior results preserved.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// TestResult is the recorded outcome of executing one TestSpec exactly once.
// Error and ErrorKind are set only on failed results; Note carries
// soft-threshold detail on warnings.
type TestResult struct {
	RunID      string       `json:"run_id"`
	SuiteID    string       `json:"suite_id"`
	SpecID     string       `json:"spec_id"`
	Name       string       `json:"name"`
	Category   TestCategory `json:"category"`
	Status     ResultStatus `json:"status"`
	StartedAt  time.Time    `json:"started_at"`
	EndedAt    time.Time    `json:"ended_at"`
	DurationMs int64        `json:"duration_ms"`
	LoadTimeMs int64        `json:"load_time_ms,omitempty"`
	Error      string       `json:"error,omitempty"`
	ErrorKind  ErrorKind    `json:"error_kind,omitempty"`
	Note       string       `json:"note,omitempty"`
	FinalURL   string       `json:"final_url,omitempty"`
	FinalTitle string       `json:"final_title,omitempty"`
	Screenshot string       `json:"screenshot,omitempty"`
}

// Finalize derives DurationMs from the start/end timestamps, clamping to zero
// so the duration is never negative
func (r *TestResult) Finalize() {
	if r.EndedAt.Before(r.StartedAt) {
		r.EndedAt = r.StartedAt
	}
	r.DurationMs = r.EndedAt.Sub(r.StartedAt).Milliseconds()
}

// SuiteCounters holds aggregate counts for a suite. Always recomputable as a
// pure aggregation over the suite's results.
type SuiteCounters struct {
	Total       int     `json:"total"`
	Passed      int     `json:"passed"`
	Failed      int     `json:"failed"`
	Warnings    int     `json:"warnings"`
	SuccessRate float64 `json:"success_rate"`
}

// ComputeCounters aggregates results into suite counters. Pure function - the
// persisted counters must never drift from what this returns.
func ComputeCounters(results []*TestResult) SuiteCounters {
	c := SuiteCounters{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case ResultStatusPassed:
			c.Passed++
		case ResultStatusFailed:
			c.Failed++
		case ResultStatusWarning:
			c.Warnings++
		}
	}
	if c.Total > 0 {
		c.SuccessRate = float64(c.Passed) / float64(c.Total) * 100
	}
	return c
}

// TestSuite groups the results of one category within a run
type TestSuite struct {
	ID          string        `json:"id"`
	RunID       string        `json:"run_id"`
	Name        string        `json:"name"`
	Category    TestCategory  `json:"category"`
	Planned     int           `json:"planned"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Counters    SuiteCounters `json:"counters"`
}

// RunSummary is the final rollup emitted at run completion or fatal abort.
// Warnings are counted separately from passed and failed - gating policy
// belongs to the external reporting layer.
type RunSummary struct {
	TotalTests    int     `json:"totalTests"`
	TotalPassed   int     `json:"totalPassed"`
	TotalFailed   int     `json:"totalFailed"`
	TotalWarnings int     `json:"totalWarnings"`
	TotalSuites   int     `json:"totalSuites"`
	SuccessRate   float64 `json:"successRate"`
	DurationMs    int64   `json:"durationMs"`
}

// TestRun is the top-level container for one execution of the full matrix.
// It references an AuthSession but does not own it - the session lifecycle is
// independent and the session may be replaced mid-run.
type TestRun struct {
	ID            string     `json:"id"`
	AuthSessionID string     `json:"auth_session_id"`
	Status        RunStatus  `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	PlannedTotal  int        `json:"planned_total"`
	Error         string     `json:"error,omitempty"`
	Summary       RunSummary `json:"summary"`
}
