package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/menucast/outhook/internal/logging"
	"github.com/menucast/outhook/internal/metrics"
	"github.com/menucast/outhook/internal/signature"
	"github.com/menucast/outhook/internal/tracing"
)

// Headers carries the outbound request header names and user-agent tag. The
// zero value is not usable; DefaultHeaders covers normal deployments.
type Headers struct {
	Signature string
	Timestamp string
	Delivery  string
	Event     string
	UserAgent string
}

// DefaultHeaders is the header set Menucast documents to receivers.
func DefaultHeaders() Headers {
	return Headers{
		Signature: "X-Outhook-Signature",
		Timestamp: "X-Outhook-Timestamp",
		Delivery:  "X-Outhook-Delivery",
		Event:     "X-Outhook-Event",
		UserAgent: "Outhook/1.0",
	}
}

// Executor performs one HTTP delivery attempt: sign, record the attempt,
// POST, classify, update the ledger. It never propagates errors to its
// caller; both the dispatcher and the retry scheduler invoke it and both must
// stay isolated from per-delivery failures.
type Executor struct {
	ledger    Ledger
	registry  Registry
	scheduler *Scheduler
	client    *http.Client // process-scoped, injected once
	headers   Headers
	log       *logging.Logger
}

// Attempt runs one delivery attempt for the task. It always terminates by
// updating the ledger (or logging why it could not) and never panics out.
func (x *Executor) Attempt(ctx context.Context, t Task) {
	ctx = tracing.ExtractTraceFromTask(ctx, t.TraceHeaders)
	ctx, span := tracing.StartSpan(ctx, "webhook.attempt",
		attribute.String("delivery_id", t.DeliveryID),
		attribute.String("event_id", t.EventID),
		attribute.String("organization_id", t.OrganizationID),
		attribute.String("endpoint_id", t.EndpointID),
		attribute.String("event_type", t.EventType),
	)
	defer span.End()

	d, err := x.ledger.FindDelivery(ctx, t.DeliveryID)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		x.log.WithContext(ctx).WithDelivery(t.DeliveryID).WithError(err).Error("delivery lookup failed, attempt skipped")
		return
	}
	if d.Status.Terminal() {
		// A superseded timer or duplicate task fired after the delivery
		// already landed or failed for good. Only a manual retry moves a
		// terminal row, and that resets the row before queueing a task.
		return
	}
	if d.Attempts >= d.MaxAttempts {
		x.log.WithContext(ctx).WithDelivery(d.ID).WithField("attempts", d.Attempts).Warn("attempt ceiling already reached, skipping")
		return
	}

	ep, err := x.registry.FindEndpoint(ctx, d.EndpointID)
	if err != nil || ep.Secret == "" {
		// No endpoint or no secret means no signable request, ever. That is
		// terminal, not retryable.
		tracing.SetSpanError(ctx, err)
		x.failTerminal(ctx, d, "endpoint secret unavailable")
		return
	}

	body, err := json.Marshal(d.Payload)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		x.failTerminal(ctx, d, fmt.Sprintf("payload marshal: %v", err))
		return
	}
	sig, err := signature.Sign(body, ep.Secret)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		x.failTerminal(ctx, d, fmt.Sprintf("sign: %v", err))
		return
	}

	// Record the attempt before the network call so a crash mid-flight never
	// under-counts attempts.
	d.Status = StatusRetrying
	d.Attempts++
	d.NextRetryAt = nil
	if err := x.ledger.UpdateDelivery(ctx, d); err != nil {
		tracing.SetSpanError(ctx, err)
		x.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("pre-attempt ledger update failed, attempt skipped")
		return
	}
	span.SetAttributes(attribute.Int("attempt", d.Attempts))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		tracing.SetSpanError(ctx, err)
		x.failTerminal(ctx, d, fmt.Sprintf("build request: %v", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", x.headers.UserAgent)
	req.Header.Set(x.headers.Signature, sig)
	req.Header.Set(x.headers.Timestamp, strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set(x.headers.Delivery, d.ID)
	req.Header.Set(x.headers.Event, d.EventID)
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		req.Header.Set("X-Trace-Id", traceID)
	}

	start := time.Now()
	resp, doErr := x.client.Do(req)
	latency := time.Since(start)

	status := 0
	respBody := ""
	if doErr == nil {
		status = resp.StatusCode
		b, _ := io.ReadAll(io.LimitReader(resp.Body, MaxDiagnosticBytes))
		respBody = string(b)
		_ = resp.Body.Close()
	}
	span.SetAttributes(
		attribute.Int("http.status_code", status),
		attribute.Int64("http.latency_ms", latency.Milliseconds()),
	)

	if doErr == nil && status >= 200 && status < 300 {
		now := time.Now().UTC()
		d.Status = StatusSuccess
		d.HTTPStatus = status
		d.ResponseBody = Truncate(respBody)
		d.ErrorMessage = ""
		d.NextRetryAt = nil
		d.CompletedAt = &now
		if err := x.ledger.UpdateDelivery(ctx, d); err != nil {
			// The HTTP call landed; retrying it because the ledger write
			// failed would double-deliver. Log loudly and stop.
			tracing.SetSpanError(ctx, err)
			x.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("success recorded on wire but ledger update failed")
		}
		metrics.RecordDelivery("success", d.OrganizationID, d.EndpointID)
		metrics.RecordHTTPDelivery(strconv.Itoa(status), latency)
		x.log.WithContext(ctx).WithDelivery(d.ID).WithEndpoint(d.EndpointID).WithFields(map[string]any{
			"attempt":     d.Attempts,
			"http_status": status,
		}).Info("delivery succeeded")
		return
	}

	errMsg := ""
	if doErr != nil {
		errMsg = doErr.Error()
		span.SetAttributes(attribute.String("http.error", errMsg))
	} else {
		errMsg = fmt.Sprintf("unexpected status %d", status)
	}
	metrics.RecordDelivery("failure", d.OrganizationID, d.EndpointID)
	if status > 0 {
		metrics.RecordHTTPDelivery(strconv.Itoa(status), latency)
	}
	x.scheduler.HandleFailure(ctx, d, status, respBody, errMsg)
}

// failTerminal marks d failed for a condition no retry can fix.
func (x *Executor) failTerminal(ctx context.Context, d *Delivery, reason string) {
	now := time.Now().UTC()
	d.Status = StatusFailed
	d.ErrorMessage = Truncate(reason)
	d.NextRetryAt = nil
	d.CompletedAt = &now
	if err := x.ledger.UpdateDelivery(ctx, d); err != nil {
		x.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("terminal failure ledger update failed")
	}
	metrics.RecordExhausted("terminal")
	x.log.WithContext(ctx).WithDelivery(d.ID).WithEndpoint(d.EndpointID).WithField("reason", reason).Error("delivery failed terminally")
}
