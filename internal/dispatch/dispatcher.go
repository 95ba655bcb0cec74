// Package dispatch sends one-way Intent messages to the backend.
//
// The dispatcher is a pure wrapper over the transport's invoke channel: it
// wraps an intent in a fresh envelope and makes exactly one dispatch call.
// It holds no state and no queue, never retries, and never deduplicates;
// retry policy for idempotency-keyed intents is a caller concern.
package dispatch

import (
	"context"

	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/protocol/wire"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/transport"
)

// Dispatcher wraps intents in envelopes and sends them.
type Dispatcher struct {
	transport transport.Transport
}

// New creates a dispatcher over the given transport.
func New(t transport.Transport) *Dispatcher {
	return &Dispatcher{transport: t}
}

// Dispatch sends one intent. It resolves when the backend acknowledges
// receipt, never when work completes. A transport rejection is propagated
// unchanged to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, domain wire.Domain, intent wire.Intent, opts ...wire.Option) error {
	return d.transport.Dispatch(ctx, wire.NewEnvelope(domain, intent, opts...))
}

// Per-domain wrappers. These are envelope-shape sugar only: each constructs
// the tagged wrapper for its domain and calls the generic Dispatch.

// Chat dispatches a chat-domain intent.
func (d *Dispatcher) Chat(ctx context.Context, intent wire.Intent, opts ...wire.Option) error {
	return d.Dispatch(ctx, wire.DomainChat, intent, opts...)
}

// Editor dispatches an editor-domain intent.
func (d *Dispatcher) Editor(ctx context.Context, intent wire.Intent, opts ...wire.Option) error {
	return d.Dispatch(ctx, wire.DomainEditor, intent, opts...)
}

// File dispatches a file-domain intent.
func (d *Dispatcher) File(ctx context.Context, intent wire.Intent, opts ...wire.Option) error {
	return d.Dispatch(ctx, wire.DomainFile, intent, opts...)
}

// Workflow dispatches a workflow-domain intent.
func (d *Dispatcher) Workflow(ctx context.Context, intent wire.Intent, opts ...wire.Option) error {
	return d.Dispatch(ctx, wire.DomainWorkflow, intent, opts...)
}

// Terminal dispatches a terminal-domain intent.
func (d *Dispatcher) Terminal(ctx context.Context, intent wire.Intent, opts ...wire.Option) error {
	return d.Dispatch(ctx, wire.DomainTerminal, intent, opts...)
}

// History dispatches a history-domain intent.
func (d *Dispatcher) History(ctx context.Context, intent wire.Intent, opts ...wire.Option) error {
	return d.Dispatch(ctx, wire.DomainHistory, intent, opts...)
}

// Language dispatches a language-domain intent.
func (d *Dispatcher) Language(ctx context.Context, intent wire.Intent, opts ...wire.Option) error {
	return d.Dispatch(ctx, wire.DomainLanguage, intent, opts...)
}

// System dispatches a system-domain intent.
func (d *Dispatcher) System(ctx context.Context, intent wire.Intent, opts ...wire.Option) error {
	return d.Dispatch(ctx, wire.DomainSystem, intent, opts...)
}
