package webhook

import "context"

// Transport hands a delivery task to an attempt executor without the caller
// waiting on the attempt. The in-process transport runs the executor in a
// goroutine; the NSQ transport publishes the task so a worker process picks
// it up. Delivery semantics are identical on both.
type Transport interface {
	Deliver(ctx context.Context, t Task) error
}

// GoTransport executes attempts in-process on detached goroutines. It is the
// default for single-process deployments and the one the tests use.
type GoTransport struct {
	Executor *Executor
}

// Deliver starts the attempt in the background. The attempt is detached from
// the caller's context on purpose: the business request that triggered the
// event may complete long before the attempt does.
func (g *GoTransport) Deliver(_ context.Context, t Task) error {
	go g.Executor.Attempt(context.Background(), t)
	return nil
}
