package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/menucast/outhook/internal/webhook"
)

func TestNewDeadLetter(t *testing.T) {
	tests := []struct {
		name     string
		delivery *webhook.Delivery
	}{
		{
			name: "exhausted delivery with diagnostics",
			delivery: &webhook.Delivery{
				ID:             "delivery-123",
				OrganizationID: "org-789",
				EndpointID:     "endpoint-abc",
				EventID:        "event-456",
				EventType:      webhook.EventMenuPublished,
				Payload: webhook.Event{
					ID:        "event-456",
					Type:      webhook.EventMenuPublished,
					Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
					Data:      map[string]any{"menu_id": "m-1"},
				},
				Status:       webhook.StatusFailed,
				Attempts:     5,
				MaxAttempts:  5,
				HTTPStatus:   500,
				ErrorMessage: "unexpected status 500",
			},
		},
		{
			name: "terminally failed delivery without HTTP response",
			delivery: &webhook.Delivery{
				ID:             "delivery-min",
				OrganizationID: "org-1",
				EndpointID:     "endpoint-1",
				EventID:        "event-1",
				EventType:      webhook.EventQRScanned,
				Status:         webhook.StatusFailed,
				Attempts:       5,
				ErrorMessage:   "dial tcp: lookup receiver.invalid: no such host",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dl := NewDeadLetter(tt.delivery)

			if dl.Type != DeadLetterType {
				t.Errorf("NewDeadLetter() Type = %q, want %q", dl.Type, DeadLetterType)
			}
			if dl.Version != "v1" {
				t.Errorf("NewDeadLetter() Version = %q, want %q", dl.Version, "v1")
			}
			if _, err := time.Parse(time.RFC3339Nano, dl.At); err != nil {
				t.Errorf("NewDeadLetter() At %q is not RFC3339: %v", dl.At, err)
			}
			if dl.DeliveryID != tt.delivery.ID {
				t.Errorf("NewDeadLetter() DeliveryID = %q, want %q", dl.DeliveryID, tt.delivery.ID)
			}
			if dl.EventID != tt.delivery.EventID {
				t.Errorf("NewDeadLetter() EventID = %q, want %q", dl.EventID, tt.delivery.EventID)
			}
			if dl.OrganizationID != tt.delivery.OrganizationID {
				t.Errorf("NewDeadLetter() OrganizationID = %q, want %q", dl.OrganizationID, tt.delivery.OrganizationID)
			}
			if dl.EndpointID != tt.delivery.EndpointID {
				t.Errorf("NewDeadLetter() EndpointID = %q, want %q", dl.EndpointID, tt.delivery.EndpointID)
			}
			if dl.EventType != string(tt.delivery.EventType) {
				t.Errorf("NewDeadLetter() EventType = %q, want %q", dl.EventType, tt.delivery.EventType)
			}
			if dl.Attempts != tt.delivery.Attempts {
				t.Errorf("NewDeadLetter() Attempts = %d, want %d", dl.Attempts, tt.delivery.Attempts)
			}
			if dl.HTTPStatus != tt.delivery.HTTPStatus {
				t.Errorf("NewDeadLetter() HTTPStatus = %d, want %d", dl.HTTPStatus, tt.delivery.HTTPStatus)
			}
			if dl.LastError != tt.delivery.ErrorMessage {
				t.Errorf("NewDeadLetter() LastError = %q, want %q", dl.LastError, tt.delivery.ErrorMessage)
			}
			if dl.Payload.ID != tt.delivery.Payload.ID {
				t.Errorf("NewDeadLetter() Payload.ID = %q, want %q", dl.Payload.ID, tt.delivery.Payload.ID)
			}
		})
	}
}

func TestDeadLetterJSONRoundTrip(t *testing.T) {
	d := &webhook.Delivery{
		ID:             "delivery-json",
		OrganizationID: "org-json",
		EndpointID:     "endpoint-json",
		EventID:        "event-json",
		EventType:      webhook.EventVenueDeleted,
		Payload: webhook.Event{
			ID:        "event-json",
			Type:      webhook.EventVenueDeleted,
			Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Data:      map[string]any{"venue_id": "v-1"},
		},
		Attempts:     5,
		HTTPStatus:   503,
		ErrorMessage: "unexpected status 503",
	}

	dl := NewDeadLetter(d)
	data, err := json.Marshal(dl)
	if err != nil {
		t.Fatalf("json.Marshal() error: %v", err)
	}

	var decoded DeadLetter
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error: %v", err)
	}

	if decoded.Type != DeadLetterType {
		t.Errorf("round-trip Type = %q, want %q", decoded.Type, DeadLetterType)
	}
	if decoded.DeliveryID != "delivery-json" {
		t.Errorf("round-trip DeliveryID = %q, want %q", decoded.DeliveryID, "delivery-json")
	}
	if decoded.Attempts != 5 {
		t.Errorf("round-trip Attempts = %d, want 5", decoded.Attempts)
	}
	if decoded.Payload.Type != webhook.EventVenueDeleted {
		t.Errorf("round-trip Payload.Type = %q, want %q", decoded.Payload.Type, webhook.EventVenueDeleted)
	}
	if decoded.Payload.Data["venue_id"] != "v-1" {
		t.Errorf("round-trip Payload.Data[venue_id] = %v, want %q", decoded.Payload.Data["venue_id"], "v-1")
	}
}
