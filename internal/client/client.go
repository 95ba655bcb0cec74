// Package client is the app-facing facade over the protocol stack.
//
// It owns one transport subscription and fans inbound events out to streaming
// reassembly, the terminal multiplexer, and the UI handlers; outbound it
// exposes one method per user-level operation, hiding envelopes, correlation
// ids, and sequence numbers from callers.
package client

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/correlate"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/dispatch"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/protocol/wire"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/seqbuf"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/terminal"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/transport"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/version"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/pkg/logger"
	"github.com/google/uuid"
)

// Handlers receive pushed backend state. All fields are optional; a nil
// handler drops its events. Handlers are invoked synchronously on the
// transport's delivery path and must not block.
type Handlers struct {
	// OnAssistantText receives in-order assistant message text.
	OnAssistantText func(messageID, text string)
	// OnAssistantDone fires when an assistant message stream completes.
	OnAssistantDone func(messageID string)
	// OnReasoningText receives in-order reasoning-trace text.
	OnReasoningText func(messageID, text string)
	// OnToolUpdate receives agent tool call status changes.
	OnToolUpdate func(update wire.ToolUpdate)
	// OnWorkspaceStatus receives pushed git status snapshots.
	OnWorkspaceStatus func(status wire.WorkspaceStatus)
	// OnIntentFailed receives backend errors that no pending request claimed.
	OnIntentFailed func(causalityID string, err wire.BackendError)
	// OnTerminalRaw receives the ordered raw terminal byte stream.
	OnTerminalRaw func(data string)
}

// Config configures a Client.
type Config struct {
	// RequestTimeout bounds correlated requests; zero means the correlator
	// default.
	RequestTimeout time.Duration
	// TerminalID names the shared shell session; empty picks a random id.
	TerminalID string
	// Handlers receive pushed state.
	Handlers Handlers
}

// Client is the protocol facade used by the UI layer.
type Client struct {
	transport  transport.Transport
	dispatcher *dispatch.Dispatcher
	correlator *correlate.Correlator
	handlers   Handlers
	timeout    time.Duration

	messages  *seqbuf.Manager
	reasoning *seqbuf.Manager
	term      *terminal.Multiplexer

	unsubscribe func()
}

// New wires a client over an already-connected transport. Close releases the
// subscription; the transport itself stays owned by the caller.
func New(t transport.Transport, cfg Config) *Client {
	terminalID := cfg.TerminalID
	if terminalID == "" {
		terminalID = uuid.NewString()
	}

	c := &Client{
		transport:  t,
		dispatcher: dispatch.New(t),
		correlator: correlate.New(t),
		handlers:   cfg.Handlers,
		timeout:    cfg.RequestTimeout,
	}
	c.messages = seqbuf.NewManager(func(messageID string) *seqbuf.Buffer {
		return seqbuf.NewBuffer(seqbuf.Callbacks{
			OnChunk: func(text string) {
				if c.handlers.OnAssistantText != nil {
					c.handlers.OnAssistantText(messageID, text)
				}
			},
			OnComplete: func() {
				if c.handlers.OnAssistantDone != nil {
					c.handlers.OnAssistantDone(messageID)
				}
			},
			OnError: func(err error) {
				logger.Errorf("Message stream %s failed: %v", messageID, err)
			},
		}, 0)
	})
	c.reasoning = seqbuf.NewManager(func(messageID string) *seqbuf.Buffer {
		return seqbuf.NewBuffer(seqbuf.Callbacks{
			OnChunk: func(text string) {
				if c.handlers.OnReasoningText != nil {
					c.handlers.OnReasoningText(messageID, text)
				}
			},
			OnError: func(err error) {
				logger.Errorf("Reasoning stream %s failed: %v", messageID, err)
			},
		}, 0)
	})
	c.term = terminal.NewMultiplexer(terminal.Config{
		TerminalID: terminalID,
		Dispatcher: c.dispatcher,
		OnRaw:      cfg.Handlers.OnTerminalRaw,
	})

	c.unsubscribe = t.Subscribe(c.route)
	return c
}

// route consumes one inbound envelope. Correlated requests hold their own
// subscriptions; this path only serves pushed state.
func (c *Client) route(env wire.EventEnvelope) {
	switch e := env.Event.(type) {
	case wire.MessageDelta:
		c.messages.Add(e.MessageID, e.Seq, e.Delta, e.IsFinal)
	case wire.ReasoningDelta:
		c.reasoning.Add(e.MessageID, e.Seq, e.Delta, e.IsFinal)
	case wire.ToolUpdate:
		if c.handlers.OnToolUpdate != nil {
			c.handlers.OnToolUpdate(e)
		}
	case wire.WorkspaceStatus:
		if c.handlers.OnWorkspaceStatus != nil {
			c.handlers.OnWorkspaceStatus(e)
		}
	case wire.TerminalOutput, wire.TerminalSpawned, wire.TerminalExited:
		c.term.HandleEvent(env.Event)
	case wire.ProtocolVersion:
		c.checkProtocolVersion(e)
	case wire.IntentFailed:
		// The transport fans every event out to all subscribers, so a failure
		// answering a pending correlated request also lands here. That caller
		// already gets it as its error return; only failures nobody is
		// waiting on reach the handler.
		if c.correlator.Owns(env.CausalityID) {
			return
		}
		if c.handlers.OnIntentFailed != nil {
			c.handlers.OnIntentFailed(env.CausalityID, e.Error)
		} else {
			logger.Warnf("Unclaimed intent failure (causality %s): %v", env.CausalityID, e.Error)
		}
	}
}

func (c *Client) checkProtocolVersion(pv wire.ProtocolVersion) {
	cur := wire.CurrentVersion()
	if cur.Compare(pv.Min) < 0 || cur.Compare(pv.Max) > 0 {
		logger.Errorf("Protocol version %s outside backend range [%s, %s]; upgrade required",
			cur, pv.Min, pv.Max)
		return
	}
	logger.Debugf("Protocol version %s accepted by backend range [%s, %s]", cur, pv.Min, pv.Max)
}

// Hello announces the client build to the backend. Called once after connect.
func (c *Client) Hello(ctx context.Context) error {
	return c.dispatcher.System(ctx, wire.ClientInfo{
		Version:  version.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	})
}

// Chat domain.

// SendChat submits a user message. It resolves on backend receipt; the
// assistant's reply streams in through OnAssistantText.
func (c *Client) SendChat(ctx context.Context, text string, attachments ...string) error {
	return c.dispatcher.Chat(ctx, wire.SendMessage{Text: text, Attachments: attachments})
}

// StopGeneration interrupts the in-flight agent turn.
func (c *Client) StopGeneration(ctx context.Context, messageID string) error {
	return c.dispatcher.Chat(ctx, wire.StopGeneration{MessageID: messageID})
}

// Workflow domain.

// ApproveTool approves a pending agent tool call. The tool call id doubles as
// the idempotency key: a retried approval must not approve twice.
func (c *Client) ApproveTool(ctx context.Context, toolCallID string) error {
	return c.dispatcher.Workflow(ctx,
		wire.ApproveTool{ToolCallID: toolCallID},
		wire.WithIdempotencyKey(toolCallID))
}

// RejectTool rejects a pending agent tool call.
func (c *Client) RejectTool(ctx context.Context, toolCallID, reason string) error {
	return c.dispatcher.Workflow(ctx,
		wire.RejectTool{ToolCallID: toolCallID, Reason: reason},
		wire.WithIdempotencyKey(toolCallID))
}

// Editor and file domains.

// ApplyEdit applies a text edit to an open buffer.
func (c *Client) ApplyEdit(ctx context.Context, edit wire.ApplyEdit) error {
	return c.dispatcher.Editor(ctx, edit)
}

// ReadFile fetches a workspace file's contents.
func (c *Client) ReadFile(ctx context.Context, path string) (string, error) {
	contents, err := correlate.Request(ctx, c.correlator, wire.DomainFile,
		wire.ReadFile{Path: path},
		func(e wire.Event) (wire.FileContents, bool) {
			fc, ok := e.(wire.FileContents)
			return fc, ok
		}, c.timeout)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return contents.Content, nil
}

// WriteFile persists new contents for a workspace file. Each call carries a
// fresh idempotency key so a transport-level retry cannot double-apply.
func (c *Client) WriteFile(ctx context.Context, path, content string) error {
	return c.dispatcher.File(ctx,
		wire.WriteFile{Path: path, Content: content},
		wire.WithIdempotencyKey(uuid.NewString()))
}

// ListDir fetches a directory listing.
func (c *Client) ListDir(ctx context.Context, path string) ([]wire.DirEntry, error) {
	listing, err := correlate.Request(ctx, c.correlator, wire.DomainFile,
		wire.ListDir{Path: path},
		func(e wire.Event) (wire.DirListing, bool) {
			dl, ok := e.(wire.DirListing)
			return dl, ok
		}, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	return listing.Entries, nil
}

// History domain.

// History fetches recent conversation entries, newest page first.
func (c *Client) History(ctx context.Context, limit int, before string) (wire.HistoryEntries, error) {
	return correlate.Request(ctx, c.correlator, wire.DomainHistory,
		wire.HistoryList{Limit: limit, Before: before},
		func(e wire.Event) (wire.HistoryEntries, bool) {
			he, ok := e.(wire.HistoryEntries)
			return he, ok
		}, c.timeout)
}

// Language domain.

// DocumentSymbols fetches the symbol outline of a file.
func (c *Client) DocumentSymbols(ctx context.Context, path string) ([]wire.Symbol, error) {
	result, err := correlate.Request(ctx, c.correlator, wire.DomainLanguage,
		wire.DocumentSymbols{Path: path},
		func(e wire.Event) (wire.SymbolsResult, bool) {
			sr, ok := e.(wire.SymbolsResult)
			return sr, ok
		}, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("symbols for %s: %w", path, err)
	}
	return result.Symbols, nil
}

// Hover fetches hover information at a position.
func (c *Client) Hover(ctx context.Context, path string, line, col int) (string, error) {
	result, err := correlate.Request(ctx, c.correlator, wire.DomainLanguage,
		wire.Hover{Path: path, Line: line, Col: col},
		func(e wire.Event) (wire.HoverResult, bool) {
			hr, ok := e.(wire.HoverResult)
			return hr, ok
		}, c.timeout)
	if err != nil {
		return "", err
	}
	return result.Contents, nil
}

// System domain.

// Ping round-trips a liveness check through the backend.
func (c *Client) Ping(ctx context.Context) error {
	_, err := correlate.Request(ctx, c.correlator, wire.DomainSystem,
		wire.Ping{},
		func(e wire.Event) (wire.Pong, bool) {
			p, ok := e.(wire.Pong)
			return p, ok
		}, c.timeout)
	return err
}

// Terminal domain.

// RunCommand executes one shell command in the shared session and returns its
// captured output and exit code.
func (c *Client) RunCommand(ctx context.Context, command, cwd string) (terminal.Result, error) {
	return c.term.Run(ctx, terminal.Command{Command: command, Cwd: cwd})
}

// ResizeTerminal reports a new terminal viewport size.
func (c *Client) ResizeTerminal(ctx context.Context, cols, rows int) error {
	return c.term.Resize(ctx, cols, rows)
}

// KillTerminal terminates the shared shell session.
func (c *Client) KillTerminal(ctx context.Context) error {
	return c.term.Stop(ctx)
}

// Connected reports transport liveness.
func (c *Client) Connected() bool {
	return c.transport.Connected()
}

// Close releases the client's subscription. Pending terminal commands resolve
// only through backend events; callers wanting a hard stop should cancel their
// contexts first.
func (c *Client) Close() error {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	return nil
}
