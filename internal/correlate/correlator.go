// Package correlate layers request/response calls over the fundamentally
// fire-and-forget event bus.
//
// There is no response channel in the protocol: a "response" is an Event on
// the shared broadcast stream whose CausalityID equals the id of the Intent
// that caused it. The correlator owns that matching, plus timeouts,
// cancellation, and listener cleanup.
package correlate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/protocol/wire"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/transport"
	"github.com/google/uuid"
)

// DefaultTimeout is used when a request passes a zero timeout.
const DefaultTimeout = 10 * time.Second

// TimeoutError reports that no matching event was observed in time.
//
// This is distinct from a backend-reported error: a timeout means "no
// response at all", not "the response was a failure".
type TimeoutError struct {
	// IntentID is the correlation id that went unanswered.
	IntentID string
	// Timeout is the window that elapsed.
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no response for intent %s within %s", e.IntentID, e.Timeout)
}

// Correlator issues correlated requests over one transport.
type Correlator struct {
	transport transport.Transport

	mu      sync.Mutex
	pending map[string]struct{}
}

// New creates a correlator over the given transport.
func New(t transport.Transport) *Correlator {
	return &Correlator{
		transport: t,
		pending:   make(map[string]struct{}),
	}
}

// Owns reports whether a request is currently awaiting the given causality
// id. Shared event routes use this to keep a failure destined for a pending
// request from also being surfaced as unclaimed.
func (c *Correlator) Owns(causalityID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[causalityID]
	return ok
}

func (c *Correlator) claim(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[id] = struct{}{}
}

func (c *Correlator) release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

// Request dispatches an intent and waits for the first event that both
// carries the intent's id as its CausalityID and yields a value from the
// extractor. An extractor returning ok == false keeps the request waiting.
//
// The listener attaches before the intent is dispatched. This ordering is
// load-bearing: the transport guarantees subscribe-then-publish visibility,
// so a backend that answers faster than this goroutine resumes cannot slip a
// response past us.
//
// Outcomes, first one wins:
//   - a matching event with a defined extractor result resolves the call;
//   - a matching IntentFailed rejects with the decoded backend error;
//   - a dispatch rejection is returned unchanged;
//   - timeout rejects with *TimeoutError;
//   - ctx cancellation rejects with ctx.Err().
//
// In every exit path the listener is detached. Later matching events are
// silently unobserved; at-most-once consumption is the intended contract.
func Request[T any](
	ctx context.Context,
	c *Correlator,
	domain wire.Domain,
	intent wire.Intent,
	extractor func(wire.Event) (T, bool),
	timeout time.Duration,
) (T, error) {
	var zero T
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	id := uuid.NewString()
	resultCh := make(chan T, 1)
	failCh := make(chan error, 1)

	// Claimed for the whole lifetime of the request, including the window
	// where the transport delivers a response synchronously inside Dispatch.
	c.claim(id)
	defer c.release(id)

	unsubscribe := c.transport.Subscribe(func(env wire.EventEnvelope) {
		if env.CausalityID != id {
			return
		}
		if failed, ok := env.Event.(wire.IntentFailed); ok {
			select {
			case failCh <- failed.Error:
			default:
			}
			return
		}
		value, ok := extractor(env.Event)
		if !ok {
			return
		}
		// Non-blocking: only the first match is consumed, and a slow caller
		// must never stall the shared event stream.
		select {
		case resultCh <- value:
		default:
		}
	})
	defer unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// The correlation id rides as the intent id so the backend can echo it
	// back as causality_id.
	if err := c.transport.Dispatch(ctx, wire.NewEnvelope(domain, intent, wire.WithIntentID(id))); err != nil {
		return zero, err
	}

	// The response may already be buffered: the transport can deliver it
	// synchronously inside Dispatch, before we reach this select.
	select {
	case value := <-resultCh:
		return value, nil
	case err := <-failCh:
		return zero, err
	case <-timer.C:
		return zero, &TimeoutError{IntentID: id, Timeout: timeout}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
