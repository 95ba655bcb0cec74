package wire

// IntentType is the discriminator tag for an Intent variant.
type IntentType string

const (
	IntentSendMessage     IntentType = "send-message"
	IntentStopGeneration  IntentType = "stop-generation"
	IntentApplyEdit       IntentType = "apply-edit"
	IntentReadFile        IntentType = "read-file"
	IntentWriteFile       IntentType = "write-file"
	IntentListDir         IntentType = "list-dir"
	IntentApproveTool     IntentType = "approve-tool"
	IntentRejectTool      IntentType = "reject-tool"
	IntentTerminalSpawn   IntentType = "terminal-spawn"
	IntentTerminalInput   IntentType = "terminal-input"
	IntentTerminalResize  IntentType = "terminal-resize"
	IntentTerminalKill    IntentType = "terminal-kill"
	IntentHistoryList     IntentType = "history-list"
	IntentDocumentSymbols IntentType = "document-symbols"
	IntentHover           IntentType = "hover"
	IntentPing            IntentType = "ping"
	IntentClientInfo      IntentType = "client-info"
)

// Intent is a one-way command message from client to backend.
//
// Dispatch is fire-and-forget from the caller's perspective: the dispatch
// call resolves once the backend acknowledges receipt, never once work
// completes. Completion, when needed, is a separate correlated Event.
type Intent interface {
	intentType() IntentType
}

// Chat domain.

// SendMessage submits a user chat message for the agent to process.
type SendMessage struct {
	// Text is the user-visible message text.
	Text string `json:"text"`
	// Attachments lists workspace-relative paths attached as context.
	Attachments []string `json:"attachments,omitempty"`
}

func (SendMessage) intentType() IntentType { return IntentSendMessage }

// StopGeneration asks the backend to stop the in-flight agent turn.
type StopGeneration struct {
	// MessageID optionally narrows the stop to one assistant message.
	MessageID string `json:"message_id,omitempty"`
}

func (StopGeneration) intentType() IntentType { return IntentStopGeneration }

// Editor domain.

// ApplyEdit applies a text edit to an open editor buffer.
type ApplyEdit struct {
	// Path is the workspace-relative file path.
	Path string `json:"path"`
	// StartLine and EndLine bound the replaced range (inclusive, 0-based).
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
	// Text is the replacement text.
	Text string `json:"text"`
}

func (ApplyEdit) intentType() IntentType { return IntentApplyEdit }

// File domain.

// ReadFile requests the contents of a workspace file. The result arrives as
// a correlated FileContents event.
type ReadFile struct {
	// Path is the workspace-relative file path.
	Path string `json:"path"`
}

func (ReadFile) intentType() IntentType { return IntentReadFile }

// WriteFile persists new contents for a workspace file.
//
// Callers should attach an idempotency key; a retried write must not be
// double-applied if the backend already observed it.
type WriteFile struct {
	// Path is the workspace-relative file path.
	Path string `json:"path"`
	// Content is the full new file content.
	Content string `json:"content"`
}

func (WriteFile) intentType() IntentType { return IntentWriteFile }

// ListDir requests a directory listing. The result arrives as a correlated
// DirListing event.
type ListDir struct {
	// Path is the workspace-relative directory path.
	Path string `json:"path"`
}

func (ListDir) intentType() IntentType { return IntentListDir }

// Workflow domain.

// ApproveTool approves a pending agent tool call.
type ApproveTool struct {
	// ToolCallID identifies the pending tool call.
	ToolCallID string `json:"tool_call_id"`
}

func (ApproveTool) intentType() IntentType { return IntentApproveTool }

// RejectTool rejects a pending agent tool call.
type RejectTool struct {
	// ToolCallID identifies the pending tool call.
	ToolCallID string `json:"tool_call_id"`
	// Reason is an optional user-supplied justification.
	Reason string `json:"reason,omitempty"`
}

func (RejectTool) intentType() IntentType { return IntentRejectTool }

// Terminal domain.

// TerminalSpawn asks the backend to start a shell session.
type TerminalSpawn struct {
	// TerminalID is the client-chosen id for the new session.
	TerminalID string `json:"terminal_id"`
	// Cwd is the initial working directory; empty means the workspace root.
	Cwd string `json:"cwd,omitempty"`
}

func (TerminalSpawn) intentType() IntentType { return IntentTerminalSpawn }

// TerminalInput writes bytes to a shell session's stdin.
type TerminalInput struct {
	// TerminalID identifies the target session.
	TerminalID string `json:"terminal_id"`
	// Data is the raw input, UTF-8.
	Data string `json:"data"`
}

func (TerminalInput) intentType() IntentType { return IntentTerminalInput }

// TerminalResize reports a new viewport size for a shell session.
type TerminalResize struct {
	TerminalID string `json:"terminal_id"`
	Cols       int    `json:"cols"`
	Rows       int    `json:"rows"`
}

func (TerminalResize) intentType() IntentType { return IntentTerminalResize }

// TerminalKill asks the backend to terminate a shell session. The session's
// exit is still reported through the normal Exited event path.
type TerminalKill struct {
	TerminalID string `json:"terminal_id"`
}

func (TerminalKill) intentType() IntentType { return IntentTerminalKill }

// History domain.

// HistoryList requests recent conversation entries. The result arrives as a
// correlated HistoryEntries event.
type HistoryList struct {
	// Limit bounds the number of entries; zero means backend default.
	Limit int `json:"limit,omitempty"`
	// Before is an optional exclusive upper bound entry id for paging.
	Before string `json:"before,omitempty"`
}

func (HistoryList) intentType() IntentType { return IntentHistoryList }

// Language domain.

// DocumentSymbols requests the symbol outline for a file. The result arrives
// as a correlated SymbolsResult event.
type DocumentSymbols struct {
	// Path is the workspace-relative file path.
	Path string `json:"path"`
}

func (DocumentSymbols) intentType() IntentType { return IntentDocumentSymbols }

// Hover requests hover information at a position. The result arrives as a
// correlated HoverResult event.
type Hover struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Col  int    `json:"col"`
}

func (Hover) intentType() IntentType { return IntentHover }

// System domain.

// Ping checks backend liveness. The backend answers with a correlated Pong.
type Ping struct{}

func (Ping) intentType() IntentType { return IntentPing }

// ClientInfo announces the client build to the backend after connecting.
type ClientInfo struct {
	// Version is the client's semantic version string.
	Version string `json:"version"`
	// Platform is the client OS/arch, e.g. "darwin/arm64".
	Platform string `json:"platform,omitempty"`
}

func (ClientInfo) intentType() IntentType { return IntentClientInfo }
