// Package webhook is the outbound delivery engine: it fans domain events out
// to subscribed endpoints, signs each request, tracks every delivery in a
// persistent ledger, and retries failures on a bounded backoff schedule.
// Delivery is at-least-once; receivers deduplicate by delivery id.
package webhook

import (
	"context"
	"net/http"
	"time"

	"github.com/menucast/outhook/internal/logging"
)

// DefaultTimeout bounds one delivery attempt's HTTP round trip.
const DefaultTimeout = 30 * time.Second

// DefaultSweepInterval is how often the scheduler polls for due retries.
const DefaultSweepInterval = 30 * time.Second

// Options tune the engine. Zero values fall back to the documented defaults.
type Options struct {
	MaxAttempts   int
	Backoff       []time.Duration
	JitterPct     float64
	Headers       Headers
	SweepInterval time.Duration
	SweepBatch    int

	// Transport overrides the in-process goroutine hand-off, e.g. with the
	// NSQ transport so attempts run in a separate worker process.
	Transport Transport

	// Client is the process-scoped HTTP client used for attempts. When nil
	// a client with DefaultTimeout is created.
	Client *http.Client

	Logger *logging.Logger
}

// Engine wires the dispatcher, attempt executor, and retry scheduler around a
// shared ledger and endpoint registry.
type Engine struct {
	dispatcher *Dispatcher
	executor   *Executor
	scheduler  *Scheduler
	ledger     Ledger
	transport  Transport
	log        *logging.Logger
}

// NewEngine builds an engine over the given registry and ledger.
func NewEngine(registry Registry, ledger Ledger, opts Options) *Engine {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if len(opts.Backoff) == 0 {
		opts.Backoff = DefaultBackoff()
	}
	if opts.Headers == (Headers{}) {
		opts.Headers = DefaultHeaders()
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = 100
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: DefaultTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = logging.New("outhook-engine")
	}

	e := &Engine{ledger: ledger, log: opts.Logger}
	e.scheduler = &Scheduler{
		ledger:    ledger,
		backoff:   opts.Backoff,
		jitterPct: opts.JitterPct,
		interval:  opts.SweepInterval,
		batchSize: opts.SweepBatch,
		log:       opts.Logger,
	}
	e.executor = &Executor{
		ledger:    ledger,
		registry:  registry,
		scheduler: e.scheduler,
		client:    opts.Client,
		headers:   opts.Headers,
		log:       opts.Logger,
	}
	e.transport = opts.Transport
	if e.transport == nil {
		e.transport = &GoTransport{Executor: e.executor}
	}
	e.scheduler.transport = e.transport
	e.dispatcher = &Dispatcher{
		registry:    registry,
		ledger:      ledger,
		transport:   e.transport,
		maxAttempts: opts.MaxAttempts,
		log:         opts.Logger,
	}
	return e
}

// Dispatch fires an event at every subscribed endpoint of the organization.
// Fire-and-forget: the caller is never blocked on subscriber I/O and never
// sees subscriber failures. Returns the fanned-out event, nil when no
// endpoint matched.
func (e *Engine) Dispatch(ctx context.Context, organizationID string, eventType EventType, data map[string]any) *Event {
	return e.dispatcher.Dispatch(ctx, organizationID, eventType, data)
}

// Attempt runs one delivery attempt. Exposed for queue workers that consume
// tasks published by a remote dispatcher.
func (e *Engine) Attempt(ctx context.Context, t Task) {
	e.executor.Attempt(ctx, t)
}

// Run operates the retry sweep until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	e.scheduler.Run(ctx)
}

// Scheduler exposes the retry scheduler, e.g. to attach an OnExhausted hook.
func (e *Engine) Scheduler() *Scheduler {
	return e.scheduler
}

// Retry resets a delivery to pending with attempts and timestamps cleared and
// hands it to the executor immediately, outside the backoff schedule. Reports
// whether a delivery with that id existed. An automatic retry already
// scheduled for the same row may still fire; duplicate attempts are
// acceptable because receivers deduplicate by delivery id.
func (e *Engine) Retry(ctx context.Context, deliveryID string) (bool, error) {
	d, err := e.ledger.FindDelivery(ctx, deliveryID)
	if err != nil {
		if err == ErrDeliveryNotFound {
			return false, nil
		}
		return false, err
	}

	d.Status = StatusPending
	d.Attempts = 0
	d.HTTPStatus = 0
	d.ResponseBody = ""
	d.ErrorMessage = ""
	d.NextRetryAt = nil
	d.CompletedAt = nil
	if err := e.ledger.UpdateDelivery(ctx, d); err != nil {
		return false, err
	}
	if err := e.transport.Deliver(ctx, NewTask(d, nil)); err != nil {
		return false, err
	}
	return true, nil
}
