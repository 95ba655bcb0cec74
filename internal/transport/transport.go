// Package transport defines the wire contract between the client core and
// the ZaguanBlade backend: a single invoke-style dispatch call that
// acknowledges receipt, and a single broadcast subscription of inbound
// event envelopes.
package transport

import (
	"context"
	"sort"
	"sync"

	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/protocol/wire"
)

// Handler consumes one inbound event envelope.
//
// Handlers are invoked synchronously in backend emission order and must not
// block; anything slow belongs on the handler's own goroutine or channel.
type Handler func(wire.EventEnvelope)

// Transport is the backend connection used by the client core.
type Transport interface {
	// Dispatch sends one envelope and resolves when the backend acknowledges
	// receipt. Receipt is not completion: completion, when it exists, arrives
	// later as a correlated event. A rejected acknowledgment is returned
	// unchanged; the transport never retries.
	Dispatch(ctx context.Context, env wire.Envelope) error

	// Subscribe registers a handler for the inbound broadcast stream and
	// returns its detach function. Registration completes synchronously
	// before Subscribe returns, so a subscribe-then-dispatch sequence is
	// guaranteed to observe the dispatch's responses.
	Subscribe(h Handler) (unsubscribe func())

	// Connected reports whether the transport currently has a live link.
	Connected() bool

	// Close tears down the connection.
	Close() error
}

// Subscribers is the fan-out registry shared by Transport implementations.
//
// The zero value is ready to use.
type Subscribers struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

// Add registers a handler and returns its detach function.
//
// The registration is visible to any Publish that starts after Add returns.
func (s *Subscribers) Add(h Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers == nil {
		s.handlers = make(map[int]Handler)
	}
	id := s.nextID
	s.nextID++
	s.handlers[id] = h

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

// Len returns the number of active subscriptions.
func (s *Subscribers) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Publish delivers one envelope to every active handler, in registration
// order. The ordering is part of the contract: long-lived routes registered
// at construction observe each envelope before any per-request listener
// attached later can resolve its caller.
func (s *Subscribers) Publish(env wire.EventEnvelope) {
	s.mu.RLock()
	ids := make([]int, 0, len(s.handlers))
	for id := range s.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, s.handlers[id])
	}
	s.mu.RUnlock()

	for _, h := range handlers {
		h(env)
	}
}
