// Package transporttest provides a scripted in-memory Transport for tests.
package transporttest

import (
	"context"
	"sync"

	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/protocol/wire"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/transport"
)

// Fake is an in-memory Transport that records dispatched envelopes and lets
// tests inject inbound events. Delivery is synchronous: EmitEvent returns
// after every subscriber has observed the envelope.
type Fake struct {
	mu         sync.Mutex
	dispatched []wire.Envelope
	ackErr     error
	onDispatch func(wire.Envelope)
	closed     bool

	subs transport.Subscribers
}

// NewFake creates a fake transport that acknowledges every dispatch.
func NewFake() *Fake {
	return &Fake{}
}

// SetAckError makes every subsequent Dispatch fail with err.
func (f *Fake) SetAckError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ackErr = err
}

// OnDispatch registers a hook invoked synchronously inside Dispatch, after
// the envelope is recorded and before the ack result is returned. Tests use
// it to emit a response faster than any listener could attach afterwards.
func (f *Fake) OnDispatch(fn func(wire.Envelope)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDispatch = fn
}

// Dispatched returns a copy of all envelopes dispatched so far, in order.
func (f *Fake) Dispatched() []wire.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wire.Envelope, len(f.dispatched))
	copy(out, f.dispatched)
	return out
}

// EmitEvent delivers an inbound envelope to every subscriber.
func (f *Fake) EmitEvent(env wire.EventEnvelope) {
	f.subs.Publish(env)
}

// Dispatch implements transport.Transport.
func (f *Fake) Dispatch(ctx context.Context, env wire.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.dispatched = append(f.dispatched, env)
	hook := f.onDispatch
	ackErr := f.ackErr
	f.mu.Unlock()

	if hook != nil {
		hook(env)
	}
	return ackErr
}

// Subscribe implements transport.Transport.
func (f *Fake) Subscribe(h transport.Handler) func() {
	return f.subs.Add(h)
}

// Subscribers returns the number of active subscriptions, for leak checks.
func (f *Fake) Subscribers() int {
	return f.subs.Len()
}

// Connected implements transport.Transport.
func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

// Close implements transport.Transport.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
