package devbackend

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/client"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/protocol/wire"
	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T) (*Backend, *client.Client, string) {
	t.Helper()
	root := t.TempDir()
	backend := New(Config{Root: root})
	t.Cleanup(func() { _ = backend.Close() })
	c := client.New(backend, client.Config{RequestTimeout: 5 * time.Second})
	t.Cleanup(func() { _ = c.Close() })
	return backend, c, root
}

func TestPingRoundTrip(t *testing.T) {
	_, c, _ := newFixture(t)
	require.NoError(t, c.Ping(context.Background()))
}

func TestFileReadWriteRoundTrip(t *testing.T) {
	_, c, root := newFixture(t)
	ctx := context.Background()

	require.NoError(t, c.WriteFile(ctx, "notes/todo.txt", "buy milk"))

	onDisk, err := os.ReadFile(filepath.Join(root, "notes", "todo.txt"))
	require.NoError(t, err)
	require.Equal(t, "buy milk", string(onDisk))

	content, err := c.ReadFile(ctx, "notes/todo.txt")
	require.NoError(t, err)
	require.Equal(t, "buy milk", content)
}

func TestReadMissingFileIsNotFound(t *testing.T) {
	_, c, _ := newFixture(t)

	_, err := c.ReadFile(context.Background(), "nope.txt")
	var notFound wire.ResourceNotFound
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "nope.txt", notFound.ID)
}

func TestPathEscapeIsDenied(t *testing.T) {
	_, c, _ := newFixture(t)

	_, err := c.ReadFile(context.Background(), "../outside.txt")
	var denied wire.PermissionDenied
	require.ErrorAs(t, err, &denied)

	_, err = c.ReadFile(context.Background(), "/etc/passwd")
	require.ErrorAs(t, err, &denied)
}

func TestListDirSorted(t *testing.T) {
	_, c, root := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("b"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0755))

	entries, err := c.ListDir(context.Background(), ".")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "a.txt", entries[0].Name)
	require.Equal(t, "b.txt", entries[1].Name)
	require.Equal(t, "sub", entries[2].Name)
	require.True(t, entries[2].IsDir)
}

func TestApplyEditReplacesRange(t *testing.T) {
	_, c, root := newFixture(t)
	path := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\nfour"), 0644))

	// Edits are fire-and-forget; the dev backend applies them synchronously
	// inside the ack, so the file is already updated on return.
	require.NoError(t, c.ApplyEdit(context.Background(), wire.ApplyEdit{
		Path: "f.txt", StartLine: 1, EndLine: 2, Text: "TWO\nTHREE",
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "one\nTWO\nTHREE\nfour", string(data))
}

func TestChatReplyReassembledDespiteShuffle(t *testing.T) {
	backend := New(Config{Root: t.TempDir(), ChunkSize: 4})
	defer backend.Close()

	var mu sync.Mutex
	var text strings.Builder
	done := make(chan struct{}, 1)
	c := client.New(backend, client.Config{Handlers: client.Handlers{
		OnAssistantText: func(_, chunk string) {
			mu.Lock()
			text.WriteString(chunk)
			mu.Unlock()
		},
		OnAssistantDone: func(string) { done <- struct{}{} },
	}})
	defer c.Close()

	require.NoError(t, c.SendChat(context.Background(), "hello"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reply never completed")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, `You said: "hello". This is the dev backend; no agent is attached.`, text.String())
}

func TestHistoryRecordsConversation(t *testing.T) {
	backend := New(Config{Root: t.TempDir()})
	defer backend.Close()
	c := client.New(backend, client.Config{RequestTimeout: time.Second})
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.SendChat(ctx, "first"))
	require.NoError(t, c.SendChat(ctx, "second"))

	page, err := c.History(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, page.Entries, 4) // two user turns, two assistant replies
	require.Equal(t, "user", page.Entries[0].Role)
	require.Equal(t, "first", page.Entries[0].Text)
	require.Equal(t, "assistant", page.Entries[3].Role)
	require.False(t, page.HasMore)

	page, err = c.History(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	require.True(t, page.HasMore)
}

func TestIdempotencyKeyDeduplicates(t *testing.T) {
	backend := New(Config{Root: t.TempDir()})
	defer backend.Close()
	ctx := context.Background()

	first := wire.NewEnvelope(wire.DomainFile,
		wire.WriteFile{Path: "a.txt", Content: "v1"},
		wire.WithIdempotencyKey("write-1"))
	require.NoError(t, backend.Dispatch(ctx, first))

	// A retry with the same key is acknowledged but not re-applied.
	retry := wire.NewEnvelope(wire.DomainFile,
		wire.WriteFile{Path: "a.txt", Content: "v2"},
		wire.WithIdempotencyKey("write-1"))
	require.NoError(t, backend.Dispatch(ctx, retry))

	data, err := os.ReadFile(filepath.Join(backend.cfg.Root, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(data))
}

func TestDocumentSymbolsScan(t *testing.T) {
	_, c, root := newFixture(t)
	src := "package demo\n\ntype Widget struct{}\n\nfunc Build() {}\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "demo.go"), []byte(src), 0644))

	symbols, err := c.DocumentSymbols(context.Background(), "demo.go")
	require.NoError(t, err)
	require.Len(t, symbols, 2)
	require.Equal(t, wire.Symbol{Name: "Widget", Kind: "type", Line: 2}, symbols[0])
	require.Equal(t, wire.Symbol{Name: "Build", Kind: "function", Line: 4}, symbols[1])
}

func TestToolApprovalEmitsUpdate(t *testing.T) {
	backend := New(Config{Root: t.TempDir()})
	defer backend.Close()
	updates := make(chan wire.ToolUpdate, 1)
	c := client.New(backend, client.Config{Handlers: client.Handlers{
		OnToolUpdate: func(u wire.ToolUpdate) { updates <- u },
	}})
	defer c.Close()

	require.NoError(t, c.ApproveTool(context.Background(), "tc-1"))

	select {
	case u := <-updates:
		require.Equal(t, "tc-1", u.ToolCallID)
		require.Equal(t, "approved", u.Status)
	case <-time.After(time.Second):
		t.Fatal("tool update never arrived")
	}
}

func TestRunCommandAgainstRealShell(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping PTY integration test in short mode")
	}
	if runtime.GOOS == "windows" {
		t.Skip("PTY sessions are unix-only")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}

	backend := New(Config{Root: t.TempDir()})
	defer backend.Close()
	c := client.New(backend, client.Config{TerminalID: "dev-term"})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result, err := c.RunCommand(ctx, "echo marker-round-trip", "")
	require.NoError(t, err)
	require.Equal(t, 0, result.ExitCode)
	require.Contains(t, result.Output, "marker-round-trip")

	result, err = c.RunCommand(ctx, "exit_code_test() { return 7; }; exit_code_test", "")
	require.NoError(t, err)
	require.Equal(t, 7, result.ExitCode)
}
