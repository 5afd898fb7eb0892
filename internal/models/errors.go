package models

import (
	"errors"
	"fmt"
)

// ErrNoSessionAvailable is returned when no stored AuthSession exists (or the
// stored one is past its staleness threshold) and interactive capture is not
// permitted.
var ErrNoSessionAvailable = errors.New("no valid auth session available")

// SessionCaptureError is fatal for a run: session capture or validation
// failed after the retry budget was exhausted. Continuing without a valid
// session would turn every subsequent test into a silently-wrong failure.
type SessionCaptureError struct {
	Attempts int
	Err      error
}

func (e *SessionCaptureError) Error() string {
	return fmt.Sprintf("session capture failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *SessionCaptureError) Unwrap() error {
	return e.Err
}

// ConfigMismatchError is raised pre-flight when a generated category's spec
// count disagrees with the declared plan. Fatal before any browser launches.
type ConfigMismatchError struct {
	Category  string
	Declared  int
	Generated int
}

func (e *ConfigMismatchError) Error() string {
	return fmt.Sprintf("matrix mismatch for category %q: declared %d tests, generated %d", e.Category, e.Declared, e.Generated)
}
