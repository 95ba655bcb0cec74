package terminal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/dispatch"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/protocol/wire"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/seqbuf"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/pkg/logger"
	"github.com/google/uuid"
)

// ErrSessionExited reports that the shared shell session died while a
// command was still pending.
var ErrSessionExited = errors.New("terminal session exited")

// SyntheticExitCode is reported for commands that never reached their exit
// marker because the session died under them.
const SyntheticExitCode = -1

// Command describes one logical shell command.
type Command struct {
	// Command is the shell command line to run.
	Command string
	// Cwd optionally selects a working directory for this command.
	Cwd string
}

// Result is the structured outcome of one command.
type Result struct {
	// Output is the command's visible output with ANSI styling stripped.
	Output string
	// ExitCode is the shell's reported exit status, or SyntheticExitCode
	// when the session died before the exit marker was observed.
	ExitCode int
}

// commandState tracks a pending command's lifecycle explicitly.
type commandState int

const (
	cmdQueued commandState = iota
	cmdSent
	cmdStarted
	cmdExited
)

// pendingCommand is the in-memory record for one issued command.
type pendingCommand struct {
	callID  string
	command string
	state   commandState
	output  strings.Builder
	result  chan commandOutcome
}

type commandOutcome struct {
	result Result
	err    error
}

// Config configures a Multiplexer.
type Config struct {
	// TerminalID identifies the shared backend session.
	TerminalID string
	// Dispatcher sends the multiplexer's own Input/Spawn/Kill intents.
	Dispatcher *dispatch.Dispatcher
	// OnRaw, when set, receives the ordered raw byte stream for the visual
	// terminal widget. It is invoked outside the multiplexer's lock.
	OnRaw func(data string)
	// MaxReorderSpan caps the sequence buffer's pending chunks; zero means
	// unbounded.
	MaxReorderSpan int
}

// Multiplexer runs many logical commands through one shared shell session.
//
// Input intents are never sent before the backend confirms the session is
// spawned: until the Spawned event is observed, marker-wrapped lines wait in
// a FIFO queue and are flushed in issuance order the instant readiness is
// observed. The shell executes its stdin strictly in write order, and exits
// are matched by call id, so multiple commands may be dispatched before an
// earlier one's exit marker returns.
type Multiplexer struct {
	cfg Config

	mu             sync.Mutex
	spawnRequested bool
	spawned        bool
	flushing       bool
	queue          []string // pending input lines, FIFO until Spawned
	order          []string // call ids in issuance order
	pending        map[string]*pendingCommand
	parser         *markerParser
	buf            *seqbuf.Buffer
	rawPending     []string
}

// NewMultiplexer creates a multiplexer for one shared session.
func NewMultiplexer(cfg Config) *Multiplexer {
	m := &Multiplexer{
		cfg:     cfg,
		pending: make(map[string]*pendingCommand),
	}
	m.parser = newMarkerParser(parserCallbacks{
		onOutput: m.handleOutput,
		onStart:  m.handleStart,
		onExit:   m.handleExit,
	})
	m.buf = m.newSeqBuffer()
	return m
}

func (m *Multiplexer) newSeqBuffer() *seqbuf.Buffer {
	return seqbuf.NewBuffer(seqbuf.Callbacks{
		OnChunk: m.consumeOrdered,
		OnError: func(err error) {
			logger.Errorf("Terminal %s stream failed: %v", m.cfg.TerminalID, err)
			m.failPendingLocked(fmt.Errorf("output stream lost: %w", err))
		},
	}, m.cfg.MaxReorderSpan)
}

// Run executes one command and blocks until its exit marker is observed,
// the session dies, or ctx is done.
//
// A caller awaiting a command always eventually gets a result: session
// death resolves the command with SyntheticExitCode and ErrSessionExited
// rather than leaving it dangling.
func (m *Multiplexer) Run(ctx context.Context, cmd Command) (Result, error) {
	callID := uuid.NewString()
	pc := &pendingCommand{
		callID:  callID,
		command: cmd.Command,
		state:   cmdQueued,
		result:  make(chan commandOutcome, 1),
	}
	line := commandLine(callID, cmd.Command, cmd.Cwd)

	m.mu.Lock()
	needSpawn := !m.spawnRequested
	if needSpawn {
		m.spawnRequested = true
	}
	m.pending[callID] = pc
	m.order = append(m.order, callID)
	m.queue = append(m.queue, line)
	ready := m.spawned
	m.mu.Unlock()

	if needSpawn {
		if err := m.cfg.Dispatcher.Terminal(ctx, wire.TerminalSpawn{
			TerminalID: m.cfg.TerminalID,
		}); err != nil {
			// Commands issued while the spawn ack was in flight queued behind
			// this request and have no session coming. Settle all of them; a
			// later Run starts over with a fresh spawn.
			m.mu.Lock()
			m.spawnRequested = false
			m.queue = nil
			m.failPendingLocked(fmt.Errorf("session spawn failed: %w", err))
			m.mu.Unlock()
			return Result{}, err
		}
	}
	if ready {
		m.flushQueue(ctx)
	}

	select {
	case outcome := <-pc.result:
		return outcome.result, outcome.err
	case <-ctx.Done():
		m.mu.Lock()
		m.removeLocked(callID, line)
		m.mu.Unlock()
		return Result{}, ctx.Err()
	}
}

// Stop asks the backend to terminate the shared session. The resulting exit
// still flows through the normal Exited event path.
func (m *Multiplexer) Stop(ctx context.Context) error {
	return m.cfg.Dispatcher.Terminal(ctx, wire.TerminalKill{TerminalID: m.cfg.TerminalID})
}

// Resize reports a new viewport size for the shared session.
func (m *Multiplexer) Resize(ctx context.Context, cols, rows int) error {
	return m.cfg.Dispatcher.Terminal(ctx, wire.TerminalResize{
		TerminalID: m.cfg.TerminalID, Cols: cols, Rows: rows,
	})
}

// PendingCommands returns the number of commands awaiting their exit marker.
func (m *Multiplexer) PendingCommands() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// HandleEvent consumes one terminal-domain event. Events for other terminal
// ids are ignored.
func (m *Multiplexer) HandleEvent(event wire.Event) {
	switch e := event.(type) {
	case wire.TerminalSpawned:
		if e.TerminalID != m.cfg.TerminalID {
			return
		}
		m.mu.Lock()
		m.spawned = true
		m.mu.Unlock()
		logger.Debugf("Terminal %s spawned, flushing queued input", m.cfg.TerminalID)
		m.flushQueue(context.Background())

	case wire.TerminalOutput:
		if e.TerminalID != m.cfg.TerminalID {
			return
		}
		m.mu.Lock()
		m.buf.Add(e.Seq, e.Data, e.IsFinal)
		raw := m.rawPending
		m.rawPending = nil
		m.mu.Unlock()
		if m.cfg.OnRaw != nil {
			for _, data := range raw {
				m.cfg.OnRaw(data)
			}
		}

	case wire.TerminalExited:
		if e.TerminalID != m.cfg.TerminalID {
			return
		}
		annotation := e.Error
		if annotation == "" {
			annotation = fmt.Sprintf("exit status %d", e.ExitCode)
		}
		m.mu.Lock()
		m.failPendingLocked(fmt.Errorf("%w: %s", ErrSessionExited, annotation))
		// Reset so a later Run can respawn a fresh session.
		m.spawned = false
		m.spawnRequested = false
		m.queue = nil
		m.parser = newMarkerParser(parserCallbacks{
			onOutput: m.handleOutput,
			onStart:  m.handleStart,
			onExit:   m.handleExit,
		})
		m.buf = m.newSeqBuffer()
		m.mu.Unlock()
	}
}

// flushQueue sends queued input lines in issuance order. The flushing flag
// gives one caller at a time exclusive pop-and-dispatch rights, so lines from
// concurrent callers cannot interleave; a caller that finds the flag held
// returns and lets the holder drain its line too.
func (m *Multiplexer) flushQueue(ctx context.Context) {
	for {
		m.mu.Lock()
		if m.flushing || !m.spawned || len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		m.flushing = true
		line := m.queue[0]
		m.queue = m.queue[1:]
		callID := ""
		if len(m.order) > 0 {
			callID = m.order[0]
			m.order = m.order[1:]
		}
		var pc *pendingCommand
		if callID != "" {
			pc = m.pending[callID]
		}
		m.mu.Unlock()

		err := m.cfg.Dispatcher.Terminal(ctx,
			wire.TerminalInput{TerminalID: m.cfg.TerminalID, Data: line},
			wire.WithIdempotencyKey(callID))
		m.mu.Lock()
		m.flushing = false
		if err != nil {
			if pc != nil {
				m.resolveLocked(pc, Result{ExitCode: SyntheticExitCode},
					fmt.Errorf("input dispatch failed: %w", err))
			}
			m.mu.Unlock()
			continue
		}
		if pc != nil && pc.state == cmdQueued {
			pc.state = cmdSent
		}
		m.mu.Unlock()
	}
}

// consumeOrdered receives gap-free ordered output from the sequence buffer.
// Runs under m.mu.
func (m *Multiplexer) consumeOrdered(data string) {
	m.rawPending = append(m.rawPending, data)
	m.parser.Feed(data)
}

// handleOutput attributes visible output to the active command. Runs under
// m.mu (parser callbacks fire inside consumeOrdered).
func (m *Multiplexer) handleOutput(callID, text string) {
	if callID == "" {
		return
	}
	if pc, ok := m.pending[callID]; ok {
		pc.output.WriteString(text)
	}
}

func (m *Multiplexer) handleStart(callID string) {
	if pc, ok := m.pending[callID]; ok && pc.state != cmdExited {
		pc.state = cmdStarted
	}
}

func (m *Multiplexer) handleExit(callID string, exitCode int) {
	pc, ok := m.pending[callID]
	if !ok {
		return
	}
	m.resolveLocked(pc, Result{
		Output:   StripANSI(pc.output.String()),
		ExitCode: exitCode,
	}, nil)
}

// resolveLocked reports a command's outcome and removes its record.
func (m *Multiplexer) resolveLocked(pc *pendingCommand, result Result, err error) {
	pc.state = cmdExited
	select {
	case pc.result <- commandOutcome{result: result, err: err}:
	default:
	}
	delete(m.pending, pc.callID)
	for i, id := range m.order {
		if id == pc.callID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// failPendingLocked resolves every still-pending command with a synthetic
// failure. Never leaves a caller hanging.
func (m *Multiplexer) failPendingLocked(cause error) {
	for _, pc := range m.pending {
		m.resolveLocked(pc, Result{
			Output:   StripANSI(pc.output.String()),
			ExitCode: SyntheticExitCode,
		}, cause)
	}
}

// removeLocked forgets a command without resolving it (caller gave up).
func (m *Multiplexer) removeLocked(callID, line string) {
	delete(m.pending, callID)
	for i, id := range m.order {
		if id == callID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if line != "" {
		for i, queued := range m.queue {
			if queued == line {
				m.queue = append(m.queue[:i], m.queue[i+1:]...)
				break
			}
		}
	}
}
