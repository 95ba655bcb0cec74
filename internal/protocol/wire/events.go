package wire

// EventType is the discriminator tag for an Event variant.
type EventType string

const (
	EventMessageDelta    EventType = "message-delta"
	EventReasoningDelta  EventType = "reasoning-delta"
	EventToolUpdate      EventType = "tool-update"
	EventTerminalOutput  EventType = "terminal-output"
	EventTerminalSpawned EventType = "terminal-spawned"
	EventTerminalExited  EventType = "terminal-exited"
	EventFileContents    EventType = "file-contents"
	EventDirListing      EventType = "dir-listing"
	EventWorkspaceStatus EventType = "workspace-status"
	EventHistoryEntries  EventType = "history-entries"
	EventSymbolsResult   EventType = "symbols-result"
	EventHoverResult     EventType = "hover-result"
	EventPong            EventType = "pong"
	EventProtocolVersion EventType = "protocol-version"
	EventIntentFailed    EventType = "intent-failed"
)

// Event is a backend-originated message, broadcast to every subscriber of
// the inbound stream. An Event may or may not correlate to a prior Intent.
type Event interface {
	eventType() EventType
}

// Delivery events.

// MessageDelta is one streamed token chunk of an assistant message.
type MessageDelta struct {
	// MessageID identifies the logical stream this chunk belongs to.
	MessageID string `json:"message_id"`
	// Delta is the appended text.
	Delta string `json:"delta"`
	// Seq is the per-stream monotonic sequence number, starting at 0.
	Seq int64 `json:"seq"`
	// IsFinal marks the last chunk of the stream.
	IsFinal bool `json:"is_final,omitempty"`
}

func (MessageDelta) eventType() EventType { return EventMessageDelta }

// ReasoningDelta is one streamed chunk of the assistant's reasoning trace.
type ReasoningDelta struct {
	MessageID string `json:"message_id"`
	Delta     string `json:"delta"`
	Seq       int64  `json:"seq"`
	IsFinal   bool   `json:"is_final,omitempty"`
}

func (ReasoningDelta) eventType() EventType { return EventReasoningDelta }

// ToolUpdate reports progress of an agent tool call.
type ToolUpdate struct {
	// MessageID is the assistant message the tool call belongs to.
	MessageID string `json:"message_id"`
	// ToolCallID identifies the tool call.
	ToolCallID string `json:"tool_call_id"`
	// Status is one of "pending", "approved", "rejected", "running", "done",
	// "failed".
	Status string `json:"status"`
	// Detail is an optional status annotation (e.g. partial tool output).
	Detail string `json:"detail,omitempty"`
}

func (ToolUpdate) eventType() EventType { return EventToolUpdate }

// Terminal domain.

// TerminalOutput is one chunk of raw shell output.
//
// Chunks may arrive out of order; Seq restores the byte stream client-side.
type TerminalOutput struct {
	// TerminalID identifies the session the bytes came from.
	TerminalID string `json:"terminal_id"`
	// Data is the raw output, UTF-8 with embedded escape sequences.
	Data string `json:"data"`
	// Seq is the per-session monotonic sequence number, starting at 0.
	Seq int64 `json:"seq"`
	// IsFinal marks the last chunk the session will ever emit.
	IsFinal bool `json:"is_final,omitempty"`
}

func (TerminalOutput) eventType() EventType { return EventTerminalOutput }

// TerminalSpawned confirms that a requested shell session is running.
//
// No TerminalInput intent may be dispatched for a session before this event
// is observed; earlier input would be written to a not-yet-existing process.
type TerminalSpawned struct {
	TerminalID string `json:"terminal_id"`
}

func (TerminalSpawned) eventType() EventType { return EventTerminalSpawned }

// TerminalExited reports that a shell session terminated.
type TerminalExited struct {
	TerminalID string `json:"terminal_id"`
	// ExitCode is the shell process exit status.
	ExitCode int `json:"exit_code"`
	// Error annotates abnormal termination (e.g. a crash).
	Error string `json:"error,omitempty"`
}

func (TerminalExited) eventType() EventType { return EventTerminalExited }

// File domain.

// FileContents answers a ReadFile intent.
type FileContents struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (FileContents) eventType() EventType { return EventFileContents }

// DirEntry is one entry of a directory listing.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// DirListing answers a ListDir intent.
type DirListing struct {
	Path    string     `json:"path"`
	Entries []DirEntry `json:"entries"`
}

func (DirListing) eventType() EventType { return EventDirListing }

// Workflow domain.

// WorkspaceStatus is the backend's git status snapshot, pushed whenever the
// working tree changes.
type WorkspaceStatus struct {
	// Branch is the checked-out branch name.
	Branch string `json:"branch"`
	// Dirty lists workspace-relative paths with uncommitted changes.
	Dirty []string `json:"dirty,omitempty"`
	// Ahead and Behind count commits relative to the upstream.
	Ahead  int `json:"ahead,omitempty"`
	Behind int `json:"behind,omitempty"`
}

func (WorkspaceStatus) eventType() EventType { return EventWorkspaceStatus }

// History domain.

// HistoryEntry is one persisted conversation message.
type HistoryEntry struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
}

// HistoryEntries answers a HistoryList intent.
type HistoryEntries struct {
	Entries []HistoryEntry `json:"entries"`
	// HasMore indicates that older entries exist beyond this page.
	HasMore bool `json:"has_more,omitempty"`
}

func (HistoryEntries) eventType() EventType { return EventHistoryEntries }

// Language domain.

// Symbol is one entry of a document symbol outline.
type Symbol struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Line int    `json:"line"`
}

// SymbolsResult answers a DocumentSymbols intent.
type SymbolsResult struct {
	Path    string   `json:"path"`
	Symbols []Symbol `json:"symbols"`
}

func (SymbolsResult) eventType() EventType { return EventSymbolsResult }

// HoverResult answers a Hover intent.
type HoverResult struct {
	// Contents is the hover markdown; empty when nothing is known.
	Contents string `json:"contents"`
}

func (HoverResult) eventType() EventType { return EventHoverResult }

// System domain.

// Pong answers a Ping intent.
type Pong struct{}

func (Pong) eventType() EventType { return EventPong }

// ProtocolVersion announces the backend's supported protocol versions.
type ProtocolVersion struct {
	// Min and Max bound the supported version range (inclusive).
	Min Version `json:"min"`
	Max Version `json:"max"`
}

func (ProtocolVersion) eventType() EventType { return EventProtocolVersion }

// IntentFailed reports a structured backend error for a prior intent.
//
// This is a successful correlation whose payload happens to be an error; it
// is distinct from a correlation timeout, which means no response at all was
// observed.
type IntentFailed struct {
	// Error is the decoded backend error.
	Error BackendError `json:"-"`
}

func (IntentFailed) eventType() EventType { return EventIntentFailed }
