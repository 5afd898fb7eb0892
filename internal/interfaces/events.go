package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/probo/internal/models"
)

// EventType identifies the kind of event being published
type EventType string

const (
	EventRunStarted     EventType = "run_started"
	EventBatchProgress  EventType = "batch_progress"
	EventSuiteCompleted EventType = "suite_completed"
	EventRunCompleted   EventType = "run_completed"
	EventRunFailed      EventType = "run_failed"
)

// Event is a structured notification published by the scheduler
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ProgressPayload is emitted after each batch
type ProgressPayload struct {
	RunID           string `json:"run_id"`
	TestsCompleted  int    `json:"testsCompleted"`
	TotalPlanned    int    `json:"totalPlanned"`
	CurrentCategory string `json:"currentCategory"`
}

// SummaryPayload is emitted once at run completion or fatal abort
type SummaryPayload struct {
	RunID   string            `json:"run_id"`
	Status  models.RunStatus  `json:"status"`
	Summary models.RunSummary `json:"summary"`
	Error   string            `json:"error,omitempty"`
}

// EventHandler processes a published event
type EventHandler func(ctx context.Context, event Event) error

// EventService provides pub/sub event distribution
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error
	// Publish delivers the event to subscribers asynchronously
	Publish(ctx context.Context, event Event) error
	// PublishSync delivers the event and waits for all handlers
	PublishSync(ctx context.Context, event Event) error
}
