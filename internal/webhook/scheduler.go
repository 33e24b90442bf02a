package webhook

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/menucast/outhook/internal/logging"
	"github.com/menucast/outhook/internal/metrics"
	"github.com/menucast/outhook/internal/tracing"
)

// DefaultBackoff is the delay table indexed by attempt number (1-based),
// clamped to the last entry for attempts beyond its length.
func DefaultBackoff() []time.Duration {
	return []time.Duration{
		1 * time.Minute,
		5 * time.Minute,
		30 * time.Minute,
		2 * time.Hour,
		12 * time.Hour,
	}
}

// DefaultMaxAttempts is the automatic retry ceiling.
const DefaultMaxAttempts = 5

// Scheduler drives the retry state machine. On a failed attempt below the
// ceiling it computes the backoff delay and writes next_retry_at into the
// ledger; the sweep loop later claims due rows and re-hands them to the
// executor. Scheduled retries therefore survive process restarts.
type Scheduler struct {
	ledger    Ledger
	transport Transport
	backoff   []time.Duration
	jitterPct float64
	interval  time.Duration
	batchSize int
	log       *logging.Logger

	// OnExhausted, when set, observes deliveries that reach the terminal
	// failed state after exhausting all attempts (e.g. to publish a
	// dead-letter notice).
	OnExhausted func(ctx context.Context, d *Delivery)
}

// BackoffDelay returns the delay after the given 1-based attempt number,
// with jitter applied.
func (s *Scheduler) BackoffDelay(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.backoff) {
		idx = len(s.backoff) - 1
	}
	base := s.backoff[idx]
	if s.jitterPct <= 0 {
		return base
	}
	j := 1 + (rand.Float64()*2-1)*s.jitterPct
	if j < 0.1 {
		j = 0.1
	}
	return time.Duration(float64(base) * j)
}

// HandleFailure records a failed attempt's diagnostics and either schedules
// the next attempt or marks the delivery terminally failed.
func (s *Scheduler) HandleFailure(ctx context.Context, d *Delivery, httpStatus int, respBody, errMsg string) {
	reason := classifyReason(errMsg, httpStatus)
	metrics.RecordRetry(reason)

	d.HTTPStatus = httpStatus
	d.ResponseBody = Truncate(respBody)
	d.ErrorMessage = Truncate(errMsg)

	if d.Attempts >= d.MaxAttempts {
		now := time.Now().UTC()
		d.Status = StatusFailed
		d.NextRetryAt = nil
		d.CompletedAt = &now
		if err := s.ledger.UpdateDelivery(ctx, d); err != nil {
			tracing.SetSpanError(ctx, err)
			s.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("exhaustion ledger update failed")
			return
		}
		metrics.RecordExhausted(reason)
		s.log.WithContext(ctx).WithDelivery(d.ID).WithEndpoint(d.EndpointID).WithFields(map[string]any{
			"attempts": d.Attempts,
			"reason":   reason,
		}).Error("delivery exhausted all attempts")
		if s.OnExhausted != nil {
			s.OnExhausted(ctx, d)
		}
		return
	}

	delay := s.BackoffDelay(d.Attempts)
	next := time.Now().UTC().Add(delay)
	d.Status = StatusRetrying
	d.NextRetryAt = &next
	d.CompletedAt = nil
	if err := s.ledger.UpdateDelivery(ctx, d); err != nil {
		tracing.SetSpanError(ctx, err)
		s.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("retry schedule ledger update failed")
		return
	}
	s.log.WithContext(ctx).WithDelivery(d.ID).WithEndpoint(d.EndpointID).WithFields(map[string]any{
		"attempt": d.Attempts,
		"delay":   delay.String(),
		"reason":  reason,
	}).Info("retry scheduled")
}

// Run sweeps the ledger for due retries until ctx is canceled. Each claimed
// row is handed back to the executor through the transport.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "webhook.sweep")
	defer span.End()

	due, err := s.ledger.ClaimDue(ctx, time.Now().UTC(), s.batchSize)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		s.log.WithContext(ctx).WithError(err).Error("sweep claim failed")
		return
	}
	span.SetAttributes(attribute.Int("due_count", len(due)))
	if len(due) == 0 {
		return
	}

	traceHeaders := tracing.PropagateTraceToTask(ctx)
	for _, d := range due {
		if err := s.transport.Deliver(ctx, NewTask(d, traceHeaders)); err != nil {
			// Leave the row as-is; ClaimDue cleared next_retry_at, so
			// reschedule it a tick out rather than dropping it.
			s.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("sweep hand-off failed, rescheduling")
			next := time.Now().UTC().Add(s.interval)
			d.NextRetryAt = &next
			if uerr := s.ledger.UpdateDelivery(ctx, d); uerr != nil {
				s.log.WithContext(ctx).WithDelivery(d.ID).WithError(uerr).Error("sweep reschedule failed")
			}
			continue
		}
		s.log.WithContext(ctx).WithDelivery(d.ID).WithField("attempt", d.Attempts).Debug("due retry handed to executor")
	}
}

// classifyReason buckets a failure for metrics.
func classifyReason(errMsg string, status int) string {
	if errMsg != "" && status == 0 {
		lower := strings.ToLower(errMsg)
		switch {
		case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
			return "timeout"
		case strings.Contains(lower, "connection refused"):
			return "connection_refused"
		case strings.Contains(lower, "no such host"), strings.Contains(lower, "dns"):
			return "dns_error"
		default:
			return "network"
		}
	}
	switch {
	case status >= 500:
		return "http_5xx"
	case status == 429:
		return "http_429"
	case status >= 400:
		return "http_4xx"
	default:
		return "other"
	}
}
