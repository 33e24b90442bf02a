package webhook

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/menucast/outhook/internal/logging"
	"github.com/menucast/outhook/internal/metrics"
	"github.com/menucast/outhook/internal/tracing"
)

// Dispatcher fans an event out to every subscribed endpoint. The caller is
// never blocked on subscriber network I/O: Dispatch only performs the local
// registry lookup and ledger-row creation, then hands each delivery to the
// transport.
type Dispatcher struct {
	registry    Registry
	ledger      Ledger
	transport   Transport
	maxAttempts int
	log         *logging.Logger
}

// Dispatch resolves the enabled endpoints subscribed to eventType, creates
// one pending delivery per endpoint, and hands each to the executor without
// waiting. Zero matching endpoints is a no-op, not an error. Returns the
// event that was fanned out, or nil when nothing matched.
func (d *Dispatcher) Dispatch(ctx context.Context, organizationID string, eventType EventType, data map[string]any) *Event {
	ctx, span := tracing.StartSpan(ctx, "webhook.dispatch",
		attribute.String("organization_id", organizationID),
		attribute.String("event_type", string(eventType)),
	)
	defer span.End()

	endpoints, err := d.registry.FindEnabledEndpoints(ctx, organizationID)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		d.log.WithContext(ctx).WithOrg(organizationID).WithField("event_type", eventType).WithError(err).Error("endpoint lookup failed, dropping dispatch")
		return nil
	}

	var matched []Endpoint
	for _, ep := range endpoints {
		if ep.SubscribedTo(eventType) {
			matched = append(matched, ep)
		}
	}
	span.SetAttributes(attribute.Int("subscribers_count", len(matched)))
	if len(matched) == 0 {
		return nil
	}

	event := NewEvent(eventType, data)
	span.SetAttributes(attribute.String("event_id", event.ID))
	metrics.RecordEventDispatched(organizationID, string(eventType))

	traceHeaders := tracing.PropagateTraceToTask(ctx)
	fanout := 0
	for _, ep := range matched {
		delivery := NewDelivery(ep, event, d.maxAttempts)
		if err := d.ledger.CreateDelivery(ctx, delivery); err != nil {
			// Ledger unavailable for this row: abandon this endpoint's
			// delivery, keep going for the others.
			tracing.SetSpanError(ctx, err)
			d.log.WithContext(ctx).WithOrg(organizationID).WithEvent(event.ID).WithEndpoint(ep.ID).WithError(err).Error("delivery row creation failed, abandoning endpoint")
			continue
		}
		if err := d.transport.Deliver(ctx, NewTask(delivery, traceHeaders)); err != nil {
			// Queue unavailable: park the row as immediately due so the
			// sweep re-hands it instead of losing it.
			tracing.SetSpanError(ctx, err)
			d.log.WithContext(ctx).WithDelivery(delivery.ID).WithEndpoint(ep.ID).WithError(err).Error("transport hand-off failed, parking delivery for sweep")
			now := delivery.CreatedAt
			delivery.Status = StatusRetrying
			delivery.NextRetryAt = &now
			if uerr := d.ledger.UpdateDelivery(ctx, delivery); uerr != nil {
				d.log.WithContext(ctx).WithDelivery(delivery.ID).WithError(uerr).Error("park update failed, delivery abandoned")
			}
			continue
		}
		fanout++
	}
	span.SetAttributes(attribute.Int("fanout_count", fanout))
	return &event
}
