package common

import (
	"github.com/google/uuid"
)

// NewSessionID generates a unique auth session ID with the "session_" prefix
func NewSessionID() string {
	return "session_" + uuid.New().String()
}

// NewRunID generates a unique test run ID with the "run_" prefix
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewSuiteID generates a unique test suite ID with the "suite_" prefix
func NewSuiteID() string {
	return "suite_" + uuid.New().String()
}
