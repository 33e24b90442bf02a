package webhook

import "time"

// Task is the hand-off envelope between the dispatcher or retry scheduler and
// an attempt executor. It is small on purpose: the executor re-reads the
// delivery row and the endpoint record, so a stale envelope can never deliver
// stale state.
type Task struct {
	DeliveryID     string            `json:"delivery_id"`
	EventID        string            `json:"event_id"`
	OrganizationID string            `json:"organization_id"`
	EndpointID     string            `json:"endpoint_id"`
	EventType      string            `json:"event_type"`
	Attempt        int               `json:"attempt"`
	PublishedAt    string            `json:"published_at"` // RFC3339
	TraceHeaders   map[string]string `json:"trace_headers,omitempty"`
}

// NewTask builds the envelope for one delivery.
func NewTask(d *Delivery, traceHeaders map[string]string) Task {
	return Task{
		DeliveryID:     d.ID,
		EventID:        d.EventID,
		OrganizationID: d.OrganizationID,
		EndpointID:     d.EndpointID,
		EventType:      string(d.EventType),
		Attempt:        d.Attempts,
		PublishedAt:    d.Payload.Timestamp.Format(time.RFC3339),
		TraceHeaders:   traceHeaders,
	}
}
