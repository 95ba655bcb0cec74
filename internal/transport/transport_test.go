package transport

import (
	"testing"

	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/protocol/wire"
	"github.com/stretchr/testify/require"
)

func TestSubscribersPublishAndDetach(t *testing.T) {
	var subs Subscribers

	var first, second []string
	unsubFirst := subs.Add(func(env wire.EventEnvelope) {
		first = append(first, env.ID)
	})
	unsubSecond := subs.Add(func(env wire.EventEnvelope) {
		second = append(second, env.ID)
	})
	require.Equal(t, 2, subs.Len())

	subs.Publish(wire.EventEnvelope{ID: "e1", Event: wire.Pong{}})
	require.Equal(t, []string{"e1"}, first)
	require.Equal(t, []string{"e1"}, second)

	unsubFirst()
	require.Equal(t, 1, subs.Len())
	subs.Publish(wire.EventEnvelope{ID: "e2", Event: wire.Pong{}})
	require.Equal(t, []string{"e1"}, first)
	require.Equal(t, []string{"e1", "e2"}, second)

	// Detaching twice is harmless.
	unsubFirst()
	unsubSecond()
	require.Equal(t, 0, subs.Len())
}

func TestSubscribersPublishInRegistrationOrder(t *testing.T) {
	var subs Subscribers

	var order []string
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		subs.Add(func(wire.EventEnvelope) {
			order = append(order, name)
		})
	}

	subs.Publish(wire.EventEnvelope{ID: "e1", Event: wire.Pong{}})
	require.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g", "h"}, order)
}

func TestAckError(t *testing.T) {
	require.NoError(t, ackError(nil))
	require.NoError(t, ackError(map[string]interface{}{"result": "success"}))

	err := ackError(map[string]interface{}{
		"result": "error",
		"error":  map[string]interface{}{"kind": "permission-denied"},
	})
	require.Error(t, err)
	backendErr, ok := err.(wire.BackendError)
	require.True(t, ok)
	require.Equal(t, wire.ErrKindPermissionDenied, backendErr.Kind())

	err = ackError(map[string]interface{}{"result": "error", "message": "nope"})
	require.EqualError(t, err, "dispatch rejected: nope")
}
