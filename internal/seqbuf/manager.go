package seqbuf

import "sync"

// Manager multiplexes many independent streams keyed by stream id (a message
// id or terminal id), creating a Buffer lazily on the first chunk and
// tearing it down on completion.
//
// After a stream completes, a later chunk for the same id starts a fresh
// buffer at seq 0; nothing from the prior stream leaks into the new one.
type Manager struct {
	mu      sync.Mutex
	streams map[string]*Buffer
	factory func(streamID string) *Buffer
}

// NewManager creates a manager whose per-stream buffers come from factory.
func NewManager(factory func(streamID string) *Buffer) *Manager {
	return &Manager{
		streams: make(map[string]*Buffer),
		factory: factory,
	}
}

// Add routes one delivery to its stream's buffer.
//
// Buffer callbacks run synchronously under the manager's lock and must not
// call back into the Manager.
func (m *Manager) Add(streamID string, seq int64, data string, final bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, ok := m.streams[streamID]
	if !ok {
		buf = m.factory(streamID)
		m.streams[streamID] = buf
	}
	if buf.Add(seq, data, final) {
		delete(m.streams, streamID)
	}
}

// Drop discards a stream's buffered state without completing it. Used when
// the source of a stream dies before its final chunk can ever arrive.
func (m *Manager) Drop(streamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, streamID)
}

// Active returns the number of streams currently buffering.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}
