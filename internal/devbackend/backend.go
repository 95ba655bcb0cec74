// Package devbackend is an in-process backend for development and
// integration testing.
//
// It implements transport.Transport directly, so the whole client stack runs
// against it unchanged: file operations hit a sandboxed directory, chat
// streams a canned reply through the normal delta path, and terminal sessions
// are real shells on a PTY. Responses are emitted synchronously inside
// Dispatch wherever possible, which is the harshest ordering a real backend
// can produce for the correlation layer.
package devbackend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/protocol/wire"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/transport"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/pkg/logger"
	"github.com/google/uuid"
)

// Config configures the dev backend.
type Config struct {
	// Root is the directory serving file-domain intents. Paths in intents
	// are relative to it and may not escape it.
	Root string
	// Shell is the terminal session command; empty means /bin/sh.
	Shell string
	// ChunkSize splits canned chat replies into deltas; zero means 8 bytes.
	ChunkSize int
}

// Backend is an in-process transport.Transport.
type Backend struct {
	cfg  Config
	subs transport.Subscribers

	mu       sync.Mutex
	closed   bool
	history  []wire.HistoryEntry
	seenKeys map[string]struct{}
	sessions map[string]*shellSession
	msgSeq   int
}

// New creates a dev backend rooted at cfg.Root.
func New(cfg Config) *Backend {
	if cfg.Shell == "" {
		cfg.Shell = "/bin/sh"
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 8
	}
	return &Backend{
		cfg:      cfg,
		seenKeys: make(map[string]struct{}),
		sessions: make(map[string]*shellSession),
	}
}

// Subscribe implements transport.Transport.
func (b *Backend) Subscribe(h transport.Handler) func() {
	return b.subs.Add(h)
}

// Connected implements transport.Transport.
func (b *Backend) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

// Close kills every shell session and stops serving.
func (b *Backend) Close() error {
	b.mu.Lock()
	b.closed = true
	sessions := make([]*shellSession, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.sessions = make(map[string]*shellSession)
	b.mu.Unlock()

	for _, s := range sessions {
		s.kill()
	}
	return nil
}

// Dispatch implements transport.Transport. The returned error is the "ack":
// nil means the intent was accepted, not that its work finished.
func (b *Backend) Dispatch(ctx context.Context, env wire.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.Connected() {
		return fmt.Errorf("dev backend is closed")
	}
	if env.Protocol != wire.ProtocolName {
		return fmt.Errorf("unknown protocol %q", env.Protocol)
	}
	if b.duplicate(env.Message.IdempotencyKey) {
		logger.Debugf("Dropping duplicate intent (key %s)", env.Message.IdempotencyKey)
		return nil
	}

	causality := env.Message.ID
	switch intent := env.Message.Intent.(type) {
	case wire.Ping:
		b.emit(causality, wire.Pong{})
	case wire.ClientInfo:
		logger.Infof("Client connected: %s (%s)", intent.Version, intent.Platform)
		b.emit(causality, wire.ProtocolVersion{
			Min: wire.Version{Major: 1},
			Max: wire.CurrentVersion(),
		})
	case wire.SendMessage:
		b.handleSendMessage(causality, intent)
	case wire.StopGeneration:
		// Canned replies finish immediately; nothing to interrupt.
	case wire.ReadFile:
		b.handleReadFile(causality, intent)
	case wire.WriteFile:
		b.handleWriteFile(causality, intent)
	case wire.ListDir:
		b.handleListDir(causality, intent)
	case wire.ApplyEdit:
		b.handleApplyEdit(causality, intent)
	case wire.ApproveTool:
		b.emit(causality, wire.ToolUpdate{ToolCallID: intent.ToolCallID, Status: "approved"})
	case wire.RejectTool:
		b.emit(causality, wire.ToolUpdate{
			ToolCallID: intent.ToolCallID, Status: "rejected", Detail: intent.Reason,
		})
	case wire.HistoryList:
		b.handleHistoryList(causality, intent)
	case wire.DocumentSymbols:
		b.handleDocumentSymbols(causality, intent)
	case wire.Hover:
		b.emit(causality, wire.HoverResult{
			Contents: fmt.Sprintf("`%s:%d:%d`", intent.Path, intent.Line, intent.Col),
		})
	case wire.TerminalSpawn:
		b.handleTerminalSpawn(causality, intent)
	case wire.TerminalInput:
		return b.handleTerminalInput(intent)
	case wire.TerminalResize:
		b.handleTerminalResize(intent)
	case wire.TerminalKill:
		b.handleTerminalKill(intent)
	default:
		b.fail(causality, wire.ValidationError{
			Field: "intent", Message: fmt.Sprintf("unsupported intent %T", intent),
		})
	}
	return nil
}

func (b *Backend) duplicate(key string) bool {
	if key == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, seen := b.seenKeys[key]; seen {
		return true
	}
	b.seenKeys[key] = struct{}{}
	return false
}

func (b *Backend) emit(causalityID string, event wire.Event) {
	b.subs.Publish(wire.EventEnvelope{
		ID:          uuid.NewString(),
		Timestamp:   time.Now().UnixMilli(),
		CausalityID: causalityID,
		Event:       event,
	})
}

func (b *Backend) fail(causalityID string, err wire.BackendError) {
	b.emit(causalityID, wire.IntentFailed{Error: err})
}

// Chat.

func (b *Backend) handleSendMessage(causality string, intent wire.SendMessage) {
	b.mu.Lock()
	b.msgSeq++
	messageID := fmt.Sprintf("msg-%d", b.msgSeq)
	now := time.Now().UnixMilli()
	b.history = append(b.history,
		wire.HistoryEntry{ID: messageID + "-user", Role: "user", Text: intent.Text, CreatedAt: now})
	b.mu.Unlock()

	reply := fmt.Sprintf("You said: %q. This is the dev backend; no agent is attached.", intent.Text)

	// Deltas are emitted with adjacent pairs swapped. A client that renders
	// them verbatim shows scrambled text; the reassembly buffer must fix it.
	chunks := splitChunks(reply, b.cfg.ChunkSize)
	order := make([]int, len(chunks))
	for i := range order {
		order[i] = i
	}
	for i := 0; i+1 < len(order)-1; i += 2 {
		order[i], order[i+1] = order[i+1], order[i]
	}
	for _, seq := range order {
		b.emit(causality, wire.MessageDelta{
			MessageID: messageID,
			Delta:     chunks[seq],
			Seq:       int64(seq),
			IsFinal:   seq == len(chunks)-1,
		})
	}

	b.mu.Lock()
	b.history = append(b.history,
		wire.HistoryEntry{ID: messageID, Role: "assistant", Text: reply, CreatedAt: time.Now().UnixMilli()})
	b.mu.Unlock()
}

func splitChunks(s string, size int) []string {
	var chunks []string
	for len(s) > size {
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	return append(chunks, s)
}

// Files.

// resolve maps a workspace-relative path into the sandbox root, refusing
// escapes.
func (b *Backend) resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute path")
	}
	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace")
	}
	return filepath.Join(b.cfg.Root, clean), nil
}

func (b *Backend) handleReadFile(causality string, intent wire.ReadFile) {
	path, err := b.resolve(intent.Path)
	if err != nil {
		b.fail(causality, wire.PermissionDenied{})
		return
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		b.fail(causality, wire.ResourceNotFound{ID: intent.Path})
		return
	}
	if err != nil {
		b.fail(causality, wire.Internal{TraceID: uuid.NewString(), Message: err.Error()})
		return
	}
	b.emit(causality, wire.FileContents{Path: intent.Path, Content: string(data)})
}

func (b *Backend) handleWriteFile(causality string, intent wire.WriteFile) {
	path, err := b.resolve(intent.Path)
	if err != nil {
		b.fail(causality, wire.PermissionDenied{})
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		b.fail(causality, wire.Internal{TraceID: uuid.NewString(), Message: err.Error()})
		return
	}
	if err := os.WriteFile(path, []byte(intent.Content), 0644); err != nil {
		b.fail(causality, wire.Internal{TraceID: uuid.NewString(), Message: err.Error()})
	}
}

func (b *Backend) handleListDir(causality string, intent wire.ListDir) {
	path, err := b.resolve(intent.Path)
	if err != nil {
		b.fail(causality, wire.PermissionDenied{})
		return
	}
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		b.fail(causality, wire.ResourceNotFound{ID: intent.Path})
		return
	}
	if err != nil {
		b.fail(causality, wire.Internal{TraceID: uuid.NewString(), Message: err.Error()})
		return
	}
	listing := wire.DirListing{Path: intent.Path}
	for _, entry := range entries {
		e := wire.DirEntry{Name: entry.Name(), IsDir: entry.IsDir()}
		if info, err := entry.Info(); err == nil && !entry.IsDir() {
			e.Size = info.Size()
		}
		listing.Entries = append(listing.Entries, e)
	}
	sort.Slice(listing.Entries, func(i, j int) bool {
		return listing.Entries[i].Name < listing.Entries[j].Name
	})
	b.emit(causality, listing)
}

func (b *Backend) handleApplyEdit(causality string, intent wire.ApplyEdit) {
	path, err := b.resolve(intent.Path)
	if err != nil {
		b.fail(causality, wire.PermissionDenied{})
		return
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		b.fail(causality, wire.ResourceNotFound{ID: intent.Path})
		return
	}
	if err != nil {
		b.fail(causality, wire.Internal{TraceID: uuid.NewString(), Message: err.Error()})
		return
	}
	lines := strings.Split(string(data), "\n")
	if intent.StartLine < 0 || intent.StartLine > intent.EndLine || intent.EndLine >= len(lines) {
		b.fail(causality, wire.ValidationError{
			Field:   "start_line",
			Message: fmt.Sprintf("range [%d, %d] outside file of %d lines", intent.StartLine, intent.EndLine, len(lines)),
		})
		return
	}
	var out []string
	out = append(out, lines[:intent.StartLine]...)
	out = append(out, strings.Split(intent.Text, "\n")...)
	out = append(out, lines[intent.EndLine+1:]...)
	if err := os.WriteFile(path, []byte(strings.Join(out, "\n")), 0644); err != nil {
		b.fail(causality, wire.Internal{TraceID: uuid.NewString(), Message: err.Error()})
	}
}

// History.

func (b *Backend) handleHistoryList(causality string, intent wire.HistoryList) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.history
	if intent.Before != "" {
		for i, e := range entries {
			if e.ID == intent.Before {
				entries = entries[:i]
				break
			}
		}
	}
	limit := intent.Limit
	if limit <= 0 {
		limit = 50
	}
	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[len(entries)-limit:]
	}
	page := make([]wire.HistoryEntry, len(entries))
	copy(page, entries)
	b.emit(causality, wire.HistoryEntries{Entries: page, HasMore: hasMore})
}

// Language. A toy scanner over Go-ish sources; enough to exercise the
// request path.

func (b *Backend) handleDocumentSymbols(causality string, intent wire.DocumentSymbols) {
	path, err := b.resolve(intent.Path)
	if err != nil {
		b.fail(causality, wire.PermissionDenied{})
		return
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		b.fail(causality, wire.ResourceNotFound{ID: intent.Path})
		return
	}
	if err != nil {
		b.fail(causality, wire.Internal{TraceID: uuid.NewString(), Message: err.Error()})
		return
	}
	result := wire.SymbolsResult{Path: intent.Path}
	for i, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "func "):
			result.Symbols = append(result.Symbols, wire.Symbol{
				Name: symbolName(trimmed, "func "), Kind: "function", Line: i,
			})
		case strings.HasPrefix(trimmed, "type "):
			result.Symbols = append(result.Symbols, wire.Symbol{
				Name: symbolName(trimmed, "type "), Kind: "type", Line: i,
			})
		}
	}
	b.emit(causality, result)
}

func symbolName(line, prefix string) string {
	rest := strings.TrimPrefix(line, prefix)
	for i, r := range rest {
		if r == '(' || r == ' ' || r == '[' || r == '{' {
			return rest[:i]
		}
	}
	return rest
}
