package terminal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/dispatch"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/protocol/wire"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/transport/transporttest"
	"github.com/stretchr/testify/require"
)

const testTerminalID = "term-1"

type muxFixture struct {
	fake *transporttest.Fake
	mux  *Multiplexer
}

func newMuxFixture(t *testing.T) *muxFixture {
	t.Helper()
	fake := transporttest.NewFake()
	return &muxFixture{
		fake: fake,
		mux: NewMultiplexer(Config{
			TerminalID: testTerminalID,
			Dispatcher: dispatch.New(fake),
		}),
	}
}

type runOutcome struct {
	result Result
	err    error
}

// startRun issues a command on its own goroutine and returns the channel its
// outcome will arrive on.
func (f *muxFixture) startRun(cmd Command) <-chan runOutcome {
	ch := make(chan runOutcome, 1)
	go func() {
		res, err := f.mux.Run(context.Background(), cmd)
		ch <- runOutcome{result: res, err: err}
	}()
	return ch
}

// inputLines returns the payloads of all TerminalInput intents dispatched so
// far, in order.
func (f *muxFixture) inputLines() []string {
	var lines []string
	for _, env := range f.fake.Dispatched() {
		if in, ok := env.Message.Intent.(wire.TerminalInput); ok {
			lines = append(lines, in.Data)
		}
	}
	return lines
}

func (f *muxFixture) spawnCount() int {
	n := 0
	for _, env := range f.fake.Dispatched() {
		if _, ok := env.Message.Intent.(wire.TerminalSpawn); ok {
			n++
		}
	}
	return n
}

// callIDFromLine recovers the generated call id from a dispatched input line.
func callIDFromLine(t *testing.T, line string) string {
	t.Helper()
	_, rest, ok := strings.Cut(line, payloadStart)
	require.True(t, ok, "line %q has no start marker", line)
	id, _, ok := strings.Cut(rest, `\007`)
	require.True(t, ok, "line %q has no marker terminator", line)
	return id
}

func (f *muxFixture) spawn(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return f.spawnCount() == 1 },
		time.Second, time.Millisecond)
	f.mux.HandleEvent(wire.TerminalSpawned{TerminalID: testTerminalID})
}

func (f *muxFixture) emitOutput(seq int64, data string) {
	f.mux.HandleEvent(wire.TerminalOutput{
		TerminalID: testTerminalID, Data: data, Seq: seq,
	})
}

func (f *muxFixture) awaitInputs(t *testing.T, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool { return len(f.inputLines()) >= n },
		time.Second, time.Millisecond)
	return f.inputLines()
}

func TestRunResolvesOnExitMarker(t *testing.T) {
	f := newMuxFixture(t)

	ch := f.startRun(Command{Command: "echo hi"})
	f.spawn(t)

	lines := f.awaitInputs(t, 1)
	callID := callIDFromLine(t, lines[0])

	f.emitOutput(0, StartMarker(callID)+"hello")
	f.emitOutput(1, "world"+ExitMarker(callID, 0))

	outcome := <-ch
	require.NoError(t, outcome.err)
	require.Equal(t, "helloworld", outcome.result.Output)
	require.Equal(t, 0, outcome.result.ExitCode)
	require.Equal(t, 0, f.mux.PendingCommands())
}

func TestRunReportsNonZeroExitAsResult(t *testing.T) {
	f := newMuxFixture(t)

	ch := f.startRun(Command{Command: "false"})
	f.spawn(t)
	callID := callIDFromLine(t, f.awaitInputs(t, 1)[0])

	f.emitOutput(0, StartMarker(callID)+"boom\n"+ExitMarker(callID, 2))

	outcome := <-ch
	require.NoError(t, outcome.err)
	require.Equal(t, 2, outcome.result.ExitCode)
	require.Equal(t, "boom\n", outcome.result.Output)
}

func TestRunSanitizesStructuredOutput(t *testing.T) {
	f := newMuxFixture(t)

	ch := f.startRun(Command{Command: "ls"})
	f.spawn(t)
	callID := callIDFromLine(t, f.awaitInputs(t, 1)[0])

	f.emitOutput(0, StartMarker(callID)+"\x1b[31mred\x1b[0m file\r\n"+ExitMarker(callID, 0))

	outcome := <-ch
	require.NoError(t, outcome.err)
	require.Equal(t, "red file\n", outcome.result.Output)
}

func TestQueuedCommandsFlushInIssuanceOrder(t *testing.T) {
	f := newMuxFixture(t)

	// Three commands issued before the session is ready: nothing is sent,
	// everything waits in the queue.
	ch1 := f.startRun(Command{Command: "first"})
	require.Eventually(t, func() bool { return f.mux.PendingCommands() == 1 },
		time.Second, time.Millisecond)
	ch2 := f.startRun(Command{Command: "second"})
	require.Eventually(t, func() bool { return f.mux.PendingCommands() == 2 },
		time.Second, time.Millisecond)
	ch3 := f.startRun(Command{Command: "third"})
	require.Eventually(t, func() bool { return f.mux.PendingCommands() == 3 },
		time.Second, time.Millisecond)

	require.Empty(t, f.inputLines())
	require.Eventually(t, func() bool { return f.spawnCount() == 1 },
		time.Second, time.Millisecond)

	f.mux.HandleEvent(wire.TerminalSpawned{TerminalID: testTerminalID})

	lines := f.awaitInputs(t, 3)
	require.Contains(t, lines[0], "first")
	require.Contains(t, lines[1], "second")
	require.Contains(t, lines[2], "third")

	// Resolve in an order different from issuance; each caller gets its own
	// result.
	var seq int64
	for _, want := range []int{1, 2, 0} {
		callID := callIDFromLine(t, lines[want])
		f.emitOutput(seq, StartMarker(callID)+lines[want][:5]+ExitMarker(callID, want))
		seq++
	}
	require.Equal(t, 1, (<-ch2).result.ExitCode)
	require.Equal(t, 2, (<-ch3).result.ExitCode)
	require.Equal(t, 0, (<-ch1).result.ExitCode)
}

func TestInputIntentCarriesCallIDAsIdempotencyKey(t *testing.T) {
	f := newMuxFixture(t)

	f.startRun(Command{Command: "echo"})
	f.spawn(t)
	f.awaitInputs(t, 1)

	for _, env := range f.fake.Dispatched() {
		if _, ok := env.Message.Intent.(wire.TerminalInput); ok {
			callID := callIDFromLine(t, env.Message.Intent.(wire.TerminalInput).Data)
			require.Equal(t, callID, env.Message.IdempotencyKey)
		}
	}
}

func TestSessionDeathResolvesAllPending(t *testing.T) {
	f := newMuxFixture(t)

	ch1 := f.startRun(Command{Command: "one"})
	f.spawn(t)
	callID := callIDFromLine(t, f.awaitInputs(t, 1)[0])
	ch2 := f.startRun(Command{Command: "two"})
	f.awaitInputs(t, 2)

	// The first command produced partial output before the session died.
	f.emitOutput(0, StartMarker(callID)+"partial")

	f.mux.HandleEvent(wire.TerminalExited{
		TerminalID: testTerminalID, ExitCode: 137, Error: "killed",
	})

	for _, ch := range []<-chan runOutcome{ch1, ch2} {
		select {
		case outcome := <-ch:
			require.ErrorIs(t, outcome.err, ErrSessionExited)
			require.Equal(t, SyntheticExitCode, outcome.result.ExitCode)
		case <-time.After(time.Second):
			t.Fatal("pending command never resolved after session death")
		}
	}
	require.Equal(t, 0, f.mux.PendingCommands())
}

func TestRunAfterSessionDeathRespawns(t *testing.T) {
	f := newMuxFixture(t)

	ch := f.startRun(Command{Command: "one"})
	f.spawn(t)
	f.awaitInputs(t, 1)
	f.mux.HandleEvent(wire.TerminalExited{TerminalID: testTerminalID, ExitCode: 1})
	require.ErrorIs(t, (<-ch).err, ErrSessionExited)

	// A fresh Run requests a new session and starts a new stream at seq 0.
	ch = f.startRun(Command{Command: "two"})
	require.Eventually(t, func() bool { return f.spawnCount() == 2 },
		time.Second, time.Millisecond)
	f.mux.HandleEvent(wire.TerminalSpawned{TerminalID: testTerminalID})

	lines := f.awaitInputs(t, 2)
	callID := callIDFromLine(t, lines[1])
	f.emitOutput(0, StartMarker(callID)+"back"+ExitMarker(callID, 0))

	outcome := <-ch
	require.NoError(t, outcome.err)
	require.Equal(t, "back", outcome.result.Output)
}

func TestInputDispatchFailureResolvesCommand(t *testing.T) {
	f := newMuxFixture(t)

	ch := f.startRun(Command{Command: "doomed"})
	require.Eventually(t, func() bool { return f.spawnCount() == 1 },
		time.Second, time.Millisecond)

	f.fake.SetAckError(errors.New("backend unreachable"))
	f.mux.HandleEvent(wire.TerminalSpawned{TerminalID: testTerminalID})

	outcome := <-ch
	require.Error(t, outcome.err)
	require.Contains(t, outcome.err.Error(), "input dispatch failed")
	require.Equal(t, SyntheticExitCode, outcome.result.ExitCode)
	require.Equal(t, 0, f.mux.PendingCommands())
}

func TestSpawnDispatchFailureReturnsError(t *testing.T) {
	f := newMuxFixture(t)
	f.fake.SetAckError(errors.New("no connection"))

	_, err := f.mux.Run(context.Background(), Command{Command: "x"})
	require.ErrorContains(t, err, "no connection")
	require.Equal(t, 0, f.mux.PendingCommands())
}

func TestSpawnDispatchFailureFailsQueuedCommands(t *testing.T) {
	f := newMuxFixture(t)
	f.fake.SetAckError(errors.New("no connection"))

	// Hold the spawn dispatch open so a second command can queue behind it.
	spawnSeen := make(chan struct{})
	release := make(chan struct{})
	f.fake.OnDispatch(func(env wire.Envelope) {
		if _, ok := env.Message.Intent.(wire.TerminalSpawn); ok {
			close(spawnSeen)
			<-release
		}
	})

	chA := f.startRun(Command{Command: "a"})
	<-spawnSeen
	chB := f.startRun(Command{Command: "b"})
	require.Eventually(t, func() bool { return f.mux.PendingCommands() == 2 },
		time.Second, time.Millisecond)
	close(release)

	require.ErrorContains(t, (<-chA).err, "no connection")

	// The queued command must not wait for a session that is never coming.
	select {
	case outcome := <-chB:
		require.ErrorContains(t, outcome.err, "session spawn failed")
		require.Equal(t, SyntheticExitCode, outcome.result.ExitCode)
	case <-time.After(time.Second):
		t.Fatal("queued command never resolved after spawn failure")
	}
	require.Equal(t, 0, f.mux.PendingCommands())

	// A later Run starts over with a fresh spawn request.
	f.fake.SetAckError(nil)
	f.fake.OnDispatch(nil)
	f.startRun(Command{Command: "c"})
	require.Eventually(t, func() bool { return f.spawnCount() == 2 },
		time.Second, time.Millisecond)
}

func TestOutOfOrderOutputIsReassembled(t *testing.T) {
	f := newMuxFixture(t)

	ch := f.startRun(Command{Command: "cat"})
	f.spawn(t)
	callID := callIDFromLine(t, f.awaitInputs(t, 1)[0])

	// Chunks arrive shuffled; the marker is split across two of them.
	marker := ExitMarker(callID, 0)
	f.emitOutput(2, "cd"+marker[:4])
	f.emitOutput(0, StartMarker(callID))
	f.emitOutput(3, marker[4:])
	f.emitOutput(1, "ab")

	outcome := <-ch
	require.NoError(t, outcome.err)
	require.Equal(t, "abcd", outcome.result.Output)
}

func TestRawStreamReachesWidgetInOrder(t *testing.T) {
	fake := transporttest.NewFake()
	var mu sync.Mutex
	var raw strings.Builder
	mux := NewMultiplexer(Config{
		TerminalID: testTerminalID,
		Dispatcher: dispatch.New(fake),
		OnRaw: func(data string) {
			mu.Lock()
			raw.WriteString(data)
			mu.Unlock()
		},
	})

	mux.HandleEvent(wire.TerminalOutput{TerminalID: testTerminalID, Seq: 1, Data: "\x1b[1mB"})
	mux.HandleEvent(wire.TerminalOutput{TerminalID: testTerminalID, Seq: 0, Data: "A"})

	// Raw bytes are re-ordered but never sanitized.
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "A\x1b[1mB", raw.String())
}

func TestEventsForOtherTerminalsIgnored(t *testing.T) {
	f := newMuxFixture(t)

	ch := f.startRun(Command{Command: "x"})
	require.Eventually(t, func() bool { return f.spawnCount() == 1 },
		time.Second, time.Millisecond)

	f.mux.HandleEvent(wire.TerminalSpawned{TerminalID: "someone-else"})
	f.mux.HandleEvent(wire.TerminalExited{TerminalID: "someone-else", ExitCode: 1})

	require.Empty(t, f.inputLines())
	require.Equal(t, 1, f.mux.PendingCommands())

	select {
	case <-ch:
		t.Fatal("command resolved by a foreign terminal's exit")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRunContextCancellation(t *testing.T) {
	f := newMuxFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan runOutcome, 1)
	go func() {
		res, err := f.mux.Run(ctx, Command{Command: "sleep 100"})
		ch <- runOutcome{result: res, err: err}
	}()
	require.Eventually(t, func() bool { return f.mux.PendingCommands() == 1 },
		time.Second, time.Millisecond)

	cancel()
	outcome := <-ch
	require.ErrorIs(t, outcome.err, context.Canceled)
	require.Equal(t, 0, f.mux.PendingCommands())
}
