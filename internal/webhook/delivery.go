package webhook

import (
	"time"

	"github.com/google/uuid"
)

// Status is a delivery's position in the state machine:
// pending -> retrying -> success | failed. Only an explicit manual retry
// leaves a terminal state, resetting to pending.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRetrying Status = "retrying"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
)

// Terminal reports whether no further automatic attempts will be made.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// MaxDiagnosticBytes bounds the stored response body and error message so
// operators can diagnose failures without the ledger replaying whole
// subscriber responses.
const MaxDiagnosticBytes = 1000

// Delivery is one endpoint's attempt sequence for one event: the unit of
// retry and observability. Created once, updated in place, never deleted by
// the engine.
type Delivery struct {
	ID             string
	OrganizationID string
	EndpointID     string
	EventID        string
	EventType      EventType
	Payload        Event
	Status         Status
	Attempts       int
	MaxAttempts    int
	HTTPStatus     int
	ResponseBody   string
	ErrorMessage   string
	NextRetryAt    *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewDelivery builds a pending delivery of event to endpoint.
func NewDelivery(endpoint Endpoint, event Event, maxAttempts int) *Delivery {
	now := time.Now().UTC()
	return &Delivery{
		ID:             uuid.NewString(),
		OrganizationID: endpoint.OrganizationID,
		EndpointID:     endpoint.ID,
		EventID:        event.ID,
		EventType:      event.Type,
		Payload:        event,
		Status:         StatusPending,
		Attempts:       0,
		MaxAttempts:    maxAttempts,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Truncate caps s at MaxDiagnosticBytes.
func Truncate(s string) string {
	if len(s) <= MaxDiagnosticBytes {
		return s
	}
	return s[:MaxDiagnosticBytes]
}
