package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMustRegister(t *testing.T) {
	reg := prometheus.NewRegistry()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("MustRegister() panicked: %v", r)
		}
	}()

	MustRegister(reg)

	// Record some values so every collector shows up in Gather()
	RecordEventDispatched("org-1", "menu.updated")
	RecordDelivery("success", "org-1", "ep-1")
	RecordHTTPDelivery("200", 100*time.Millisecond)
	RecordRetry("timeout")
	RecordExhausted("http_5xx")
	UpdateQueueBacklog(5)
	UpdateQueueTopicDepth("deliveries", "workers", 3)

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Registry.Gather() error: %v", err)
	}

	expectedMetrics := []string{
		"outhook_events_dispatched_total",
		"outhook_delivery_attempts_total",
		"outhook_delivery_latency_seconds",
		"outhook_retries_total",
		"outhook_deliveries_exhausted_total",
		"outhook_worker_backlog",
		"outhook_queue_topic_depth",
	}

	registeredMetrics := make(map[string]bool)
	for _, mf := range metricFamilies {
		registeredMetrics[mf.GetName()] = true
	}

	for _, expected := range expectedMetrics {
		if !registeredMetrics[expected] {
			t.Errorf("Expected metric %s not found in registry", expected)
		}
	}
}

func TestRecordEventDispatched(t *testing.T) {
	EventsDispatchedTotal.Reset()

	tests := []struct {
		name           string
		organizationID string
		eventType      string
		calls          int
	}{
		{
			name:           "single event dispatched",
			organizationID: "org-123",
			eventType:      "menu.published",
			calls:          1,
		},
		{
			name:           "multiple events dispatched",
			organizationID: "org-456",
			eventType:      "venue.updated",
			calls:          5,
		},
		{
			name:           "empty organization ID",
			organizationID: "",
			eventType:      "qr.scanned",
			calls:          1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < tt.calls; i++ {
				RecordEventDispatched(tt.organizationID, tt.eventType)
			}

			counter := EventsDispatchedTotal.WithLabelValues(tt.organizationID, tt.eventType)
			value := testutil.ToFloat64(counter)
			if value != float64(tt.calls) {
				t.Errorf("RecordEventDispatched() counter value = %f, want %f", value, float64(tt.calls))
			}
		})
	}
}

func TestRecordDelivery(t *testing.T) {
	DeliveriesTotal.Reset()

	tests := []struct {
		name           string
		outcome        string
		organizationID string
		endpointID     string
		calls          int
	}{
		{
			name:           "successful delivery",
			outcome:        "success",
			organizationID: "org-1",
			endpointID:     "ep-1",
			calls:          1,
		},
		{
			name:           "failed deliveries",
			outcome:        "failure",
			organizationID: "org-1",
			endpointID:     "ep-2",
			calls:          3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < tt.calls; i++ {
				RecordDelivery(tt.outcome, tt.organizationID, tt.endpointID)
			}

			counter := DeliveriesTotal.WithLabelValues(tt.outcome, tt.organizationID, tt.endpointID)
			value := testutil.ToFloat64(counter)
			if value != float64(tt.calls) {
				t.Errorf("RecordDelivery() counter value = %f, want %f", value, float64(tt.calls))
			}
		})
	}
}

func TestRecordRetry(t *testing.T) {
	RetriesTotal.Reset()

	tests := []struct {
		name   string
		reason string
		calls  int
	}{
		{
			name:   "timeout retries",
			reason: "timeout",
			calls:  2,
		},
		{
			name:   "server error retries",
			reason: "http_5xx",
			calls:  4,
		},
		{
			name:   "connection refused",
			reason: "connection_refused",
			calls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < tt.calls; i++ {
				RecordRetry(tt.reason)
			}

			counter := RetriesTotal.WithLabelValues(tt.reason)
			value := testutil.ToFloat64(counter)
			if value != float64(tt.calls) {
				t.Errorf("RecordRetry() counter value = %f, want %f", value, float64(tt.calls))
			}
		})
	}
}

func TestRecordExhausted(t *testing.T) {
	ExhaustedTotal.Reset()

	RecordExhausted("http_4xx")
	RecordExhausted("http_4xx")
	RecordExhausted("timeout")

	if got := testutil.ToFloat64(ExhaustedTotal.WithLabelValues("http_4xx")); got != 2 {
		t.Errorf("ExhaustedTotal[http_4xx] = %f, want 2", got)
	}
	if got := testutil.ToFloat64(ExhaustedTotal.WithLabelValues("timeout")); got != 1 {
		t.Errorf("ExhaustedTotal[timeout] = %f, want 1", got)
	}
}

func TestUpdateQueueBacklog(t *testing.T) {
	tests := []struct {
		name  string
		depth float64
	}{
		{
			name:  "zero backlog",
			depth: 0,
		},
		{
			name:  "growing backlog",
			depth: 42,
		},
		{
			name:  "backlog drained",
			depth: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			UpdateQueueBacklog(tt.depth)

			value := testutil.ToFloat64(QueueBacklog)
			if value != tt.depth {
				t.Errorf("UpdateQueueBacklog() gauge value = %f, want %f", value, tt.depth)
			}
		})
	}
}

func TestUpdateQueueTopicDepth(t *testing.T) {
	QueueTopicDepth.Reset()

	tests := []struct {
		name    string
		topic   string
		channel string
		depth   float64
	}{
		{
			name:    "deliveries topic",
			topic:   "deliveries",
			channel: "workers",
			depth:   17,
		},
		{
			name:    "dead letter topic",
			topic:   "deliveries_dead",
			channel: "archiver",
			depth:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			UpdateQueueTopicDepth(tt.topic, tt.channel, tt.depth)

			gauge := QueueTopicDepth.WithLabelValues(tt.topic, tt.channel)
			value := testutil.ToFloat64(gauge)
			if value != tt.depth {
				t.Errorf("UpdateQueueTopicDepth() gauge value = %f, want %f", value, tt.depth)
			}
		})
	}
}
