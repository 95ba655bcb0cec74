package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/protocol/wire"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/pkg/logger"
	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"
)

// eventsPath is the Socket.IO path served by the backend for the event bus.
const eventsPath = "/v1/events"

// dispatchAckTimeout bounds how long a dispatch waits for the receipt ack
// when the caller's context has no earlier deadline.
const dispatchAckTimeout = 10 * time.Second

// SocketIO is the production Transport backed by a Socket.IO connection to
// the backend process.
type SocketIO struct {
	serverURL   string
	token       string
	workspaceID string

	mu        sync.RWMutex
	socket    *socket.Socket
	connected bool
	closeOnce sync.Once

	subs Subscribers

	onConnect    func()
	onDisconnect func(reason string)
}

// NewSocketIO creates a Socket.IO transport for one workspace.
func NewSocketIO(serverURL, token, workspaceID string) *SocketIO {
	return &SocketIO{
		serverURL:   serverURL,
		token:       token,
		workspaceID: workspaceID,
	}
}

// OnConnect registers a callback invoked whenever the link comes up.
func (t *SocketIO) OnConnect(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConnect = fn
}

// OnDisconnect registers a callback invoked whenever the link drops.
func (t *SocketIO) OnDisconnect(fn func(reason string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDisconnect = fn
}

// Connect establishes the Socket.IO connection and wires the event stream.
func (t *SocketIO) Connect() error {
	logger.Debugf("Connecting to backend: %s (path: %s)", t.serverURL, eventsPath)

	opts := socket.DefaultOptions()
	opts.SetPath(eventsPath)
	opts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))
	opts.SetAuth(map[string]interface{}{
		"token":       t.token,
		"clientType":  "workspace",
		"workspaceId": t.workspaceID,
	})

	sock, err := socket.Connect(t.serverURL, opts)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	t.mu.Lock()
	t.socket = sock
	t.mu.Unlock()

	sock.On(types.EventName("connect"), func(args ...any) {
		t.mu.Lock()
		t.connected = true
		onConnect := t.onConnect
		t.mu.Unlock()
		logger.Debugf("Backend connected, socket id: %s", sock.Id())
		if onConnect != nil {
			onConnect()
		}
	})

	sock.On(types.EventName("disconnect"), func(args ...any) {
		t.mu.Lock()
		t.connected = false
		onDisconnect := t.onDisconnect
		t.mu.Unlock()
		reason := ""
		if len(args) > 0 {
			if r, ok := args[0].(string); ok {
				reason = r
			}
		}
		logger.Warnf("Backend disconnected: %s", reason)
		if onDisconnect != nil {
			onDisconnect(reason)
		}
	})

	sock.On(types.EventName("connect_error"), func(args ...any) {
		if len(args) > 0 {
			logger.Errorf("Backend connection error: %v", args[0])
		}
	})

	sock.On(types.EventName("event"), func(args ...any) {
		if len(args) == 0 {
			return
		}
		data, ok := args[0].(map[string]interface{})
		if !ok {
			logger.Tracef("Dropping malformed event frame (%T)", args[0])
			return
		}
		env, ok := wire.DecodeEventEnvelope(data)
		if !ok {
			// Unknown variants are expected when the backend is newer.
			logger.Tracef("Ignoring unrecognized event: %v", data["event"])
			return
		}
		t.subs.Publish(env)
	})

	return nil
}

// WaitForConnect waits for the socket to report connected or times out.
func (t *SocketIO) WaitForConnect(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if t.Connected() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return t.Connected()
}

// Dispatch implements Transport.
func (t *SocketIO) Dispatch(ctx context.Context, env wire.Envelope) error {
	t.mu.RLock()
	sock := t.socket
	t.mu.RUnlock()

	if sock == nil {
		return fmt.Errorf("not connected")
	}

	payload, err := envelopeToStructured(env)
	if err != nil {
		return err
	}

	logger.Tracef("Dispatching intent %s domain=%s", env.Message.ID, env.Domain)

	ackCh := make(chan map[string]interface{}, 1)
	errCh := make(chan error, 1)

	sock.Emit("intent", payload, func(args []any, err error) {
		if err != nil {
			errCh <- err
			return
		}
		if len(args) == 0 {
			ackCh <- nil
			return
		}
		if ack, ok := args[0].(map[string]interface{}); ok {
			ackCh <- ack
			return
		}
		ackCh <- nil
	})

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dispatchAckTimeout)
		defer cancel()
	}

	select {
	case ack := <-ackCh:
		return ackError(ack)
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe implements Transport.
func (t *SocketIO) Subscribe(h Handler) func() {
	return t.subs.Add(h)
}

// Connected implements Transport.
func (t *SocketIO) Connected() bool {
	t.mu.RLock()
	sock := t.socket
	connected := t.connected
	t.mu.RUnlock()

	if connected {
		return true
	}
	return sock != nil && sock.Connected()
}

// Close implements Transport.
func (t *SocketIO) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.socket != nil {
			t.socket.Disconnect()
			t.socket = nil
		}
		t.connected = false
	})
	return nil
}

// envelopeToStructured converts the envelope to the generic map form the
// Socket.IO layer serializes.
func envelopeToStructured(env wire.Envelope) (map[string]interface{}, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	m := map[string]interface{}{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ackError converts a dispatch acknowledgment into an error, or nil when the
// backend accepted the intent.
func ackError(ack map[string]interface{}) error {
	if ack == nil {
		return nil
	}
	result, _ := ack["result"].(string)
	if result == "" || result == "success" {
		return nil
	}
	if errObj, ok := ack["error"]; ok {
		if raw, err := json.Marshal(errObj); err == nil {
			if backendErr, ok := wire.DecodeBackendError(raw); ok {
				return backendErr
			}
		}
	}
	if msg, _ := ack["message"].(string); msg != "" {
		return fmt.Errorf("dispatch rejected: %s", msg)
	}
	return fmt.Errorf("dispatch rejected: %s", result)
}
