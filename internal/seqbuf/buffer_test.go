package seqbuf

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	chunks    []string
	completes int
	errs      []error
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnChunk:    func(data string) { r.chunks = append(r.chunks, data) },
		OnComplete: func() { r.completes++ },
		OnError:    func(err error) { r.errs = append(r.errs, err) },
	}
}

func TestBufferInOrderDelivery(t *testing.T) {
	var rec recorder
	buf := NewBuffer(rec.callbacks(), 0)

	require.False(t, buf.Add(0, "a", false))
	require.False(t, buf.Add(1, "b", false))
	require.True(t, buf.Add(2, "c", true))

	require.Equal(t, []string{"a", "b", "c"}, rec.chunks)
	require.Equal(t, 1, rec.completes)
}

func TestBufferReordersAnyPermutation(t *testing.T) {
	const n = 7
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		order := rng.Perm(n)

		var rec recorder
		buf := NewBuffer(rec.callbacks(), 0)
		for _, seq := range order {
			buf.Add(int64(seq), fmt.Sprintf("c%d", seq), seq == n-1)
		}

		want := make([]string, n)
		for i := range want {
			want[i] = fmt.Sprintf("c%d", i)
		}
		require.Equal(t, want, rec.chunks, "order %v", order)
		require.Equal(t, 1, rec.completes, "order %v", order)
	}
}

func TestBufferHoldsGapThenFlushesContiguousRun(t *testing.T) {
	var rec recorder
	buf := NewBuffer(rec.callbacks(), 0)

	buf.Add(2, "c", false)
	buf.Add(1, "b", false)
	require.Empty(t, rec.chunks)
	require.Equal(t, 2, buf.Pending())

	// One Add flushes the whole contiguous run synchronously.
	buf.Add(0, "a", false)
	require.Equal(t, []string{"a", "b", "c"}, rec.chunks)
	require.Equal(t, int64(3), buf.NextSeq())
	require.Equal(t, 0, rec.completes)
}

func TestBufferLastWriteWinsForDuplicateSeq(t *testing.T) {
	var rec recorder
	buf := NewBuffer(rec.callbacks(), 0)

	buf.Add(1, "old", false)
	buf.Add(1, "new", false)
	buf.Add(0, "a", false)
	require.Equal(t, []string{"a", "new"}, rec.chunks)

	// Duplicates of already-flushed chunks are ignored, not re-applied.
	buf.Add(0, "zombie", false)
	require.Equal(t, []string{"a", "new"}, rec.chunks)
}

func TestBufferFinalDropsBufferedTail(t *testing.T) {
	var rec recorder
	buf := NewBuffer(rec.callbacks(), 0)

	// Chunks beyond the final marker arrived first; finality wins.
	buf.Add(5, "ghost", false)
	require.True(t, buf.Add(0, "end", true))

	require.Equal(t, []string{"end"}, rec.chunks)
	require.Equal(t, 1, rec.completes)
	require.Equal(t, 0, buf.Pending())

	// A completed buffer accepts nothing further.
	require.True(t, buf.Add(6, "more", false))
	require.Equal(t, []string{"end"}, rec.chunks)
	require.Equal(t, 1, rec.completes)
}

func TestBufferPendingCap(t *testing.T) {
	var rec recorder
	buf := NewBuffer(rec.callbacks(), 2)

	require.False(t, buf.Add(10, "x", false))
	require.False(t, buf.Add(11, "y", false))
	require.True(t, buf.Add(12, "z", false))

	require.Empty(t, rec.chunks)
	require.Zero(t, rec.completes)
	require.Len(t, rec.errs, 1)
	require.Contains(t, rec.errs[0].Error(), "seq 0")
}

func TestManagerIsolatesStreamsAndResets(t *testing.T) {
	recs := map[string]*recorder{}
	m := NewManager(func(streamID string) *Buffer {
		rec, ok := recs[streamID]
		if !ok {
			rec = &recorder{}
			recs[streamID] = rec
		}
		return NewBuffer(rec.callbacks(), 0)
	})

	m.Add("s1", 1, "1b", true)
	m.Add("s2", 0, "2a", false)
	m.Add("s1", 0, "1a", false)
	require.Equal(t, 1, m.Active())
	require.Equal(t, []string{"1a", "1b"}, recs["s1"].chunks)
	require.Equal(t, 1, recs["s1"].completes)

	// A reused stream id after completion starts a fresh buffer at seq 0,
	// uncontaminated by the prior stream.
	m.Add("s1", 0, "fresh", true)
	require.Equal(t, []string{"1a", "1b", "fresh"}, recs["s1"].chunks)
	require.Equal(t, 2, recs["s1"].completes)

	m.Add("s2", 1, "2b", true)
	require.Equal(t, []string{"2a", "2b"}, recs["s2"].chunks)
	require.Equal(t, 0, m.Active())
}

func TestManagerDrop(t *testing.T) {
	var rec recorder
	m := NewManager(func(string) *Buffer { return NewBuffer(rec.callbacks(), 0) })

	m.Add("s1", 1, "held", false)
	require.Equal(t, 1, m.Active())
	m.Drop("s1")
	require.Equal(t, 0, m.Active())
	require.Empty(t, rec.chunks)
	require.Zero(t, rec.completes)
}
