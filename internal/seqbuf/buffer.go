// Package seqbuf restores per-stream ordering for numbered chunk streams
// (chat token deltas, terminal output) that the transport may deliver out of
// order or in duplicate.
//
// The consumer of a stream observes a gap-free, duplicate-free, strictly
// increasing sequence starting at 0, regardless of arrival order, up to and
// including the chunk marked final.
package seqbuf

import "fmt"

// chunk is one stored delivery.
type chunk struct {
	data  string
	final bool
}

// Callbacks receive the reassembled stream.
type Callbacks struct {
	// OnChunk is invoked with each chunk's data, strictly in seq order.
	OnChunk func(data string)
	// OnComplete is invoked exactly once, after the final chunk is flushed.
	OnComplete func()
	// OnError is invoked when the pending cap is exceeded; the stream is
	// dead afterwards. Optional.
	OnError func(err error)
}

// Buffer reorders one logical stream.
//
// State machine: Idle -> Buffering -> (Flushing)* -> Completed. A Buffer is
// single-use: once completed or failed it accepts no further chunks; the
// Manager replaces it for a reused stream id.
//
// Buffer is not safe for concurrent use; the Manager serializes access.
type Buffer struct {
	callbacks  Callbacks
	maxPending int

	pending map[int64]chunk
	nextSeq int64
	done    bool
}

// NewBuffer creates a buffer for one stream.
//
// maxPending caps buffered-but-not-yet-flushable chunks; zero means
// unbounded. Streams are short-lived (one message or command), but a
// pathological transport could withhold seq 0 forever while later chunks
// pile up, so bounded callers fail the stream instead.
func NewBuffer(callbacks Callbacks, maxPending int) *Buffer {
	return &Buffer{
		callbacks:  callbacks,
		maxPending: maxPending,
		pending:    make(map[int64]chunk),
	}
}

// Add stores one delivery and flushes every contiguous chunk now available.
//
// Storage is unconditional: out-of-order chunks are held, and a duplicate
// seq overwrites the previous payload (last write wins) rather than being
// double-applied. The flush loop is synchronous: one Add call may deliver
// many chunks to the consumer.
//
// Add reports whether the stream reached its end (completed or failed); the
// owner must discard the buffer once it does.
func (b *Buffer) Add(seq int64, data string, final bool) (done bool) {
	if b.done {
		return true
	}
	if seq < b.nextSeq {
		// Duplicate of an already-flushed chunk; at-most-once consumption.
		return false
	}

	b.pending[seq] = chunk{data: data, final: final}

	for {
		next, ok := b.pending[b.nextSeq]
		if !ok {
			break
		}
		delete(b.pending, b.nextSeq)
		b.nextSeq++
		if b.callbacks.OnChunk != nil {
			b.callbacks.OnChunk(next.data)
		}
		if next.final {
			// Finality is authoritative: anything buffered beyond the final
			// chunk is discarded.
			b.done = true
			b.pending = nil
			if b.callbacks.OnComplete != nil {
				b.callbacks.OnComplete()
			}
			return true
		}
	}

	if b.maxPending > 0 && len(b.pending) > b.maxPending {
		b.done = true
		b.pending = nil
		if b.callbacks.OnError != nil {
			b.callbacks.OnError(fmt.Errorf(
				"stream reorder span exceeded %d pending chunks waiting for seq %d",
				b.maxPending, b.nextSeq))
		}
		return true
	}
	return false
}

// NextSeq returns the next sequence number the consumer is waiting for.
func (b *Buffer) NextSeq() int64 { return b.nextSeq }

// Pending returns the number of buffered-but-not-yet-flushable chunks.
func (b *Buffer) Pending() int { return len(b.pending) }
