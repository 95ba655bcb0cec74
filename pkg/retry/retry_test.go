package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/correlate"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/protocol/wire"
	"github.com/stretchr/testify/require"
)

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDoRetriesCorrelationTimeout(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &correlate.TimeoutError{IntentID: "i1", Timeout: time.Second}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoHonorsRetryAfter(t *testing.T) {
	calls := 0
	start := time.Now()
	err := Do(context.Background(), fastPolicy(), func(context.Context) error {
		calls++
		if calls == 1 {
			return wire.RateLimited{RetryAfterMs: 30}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestDoStopsOnTerminalError(t *testing.T) {
	calls := 0
	terminal := wire.PermissionDenied{}
	err := Do(context.Background(), fastPolicy(), func(context.Context) error {
		calls++
		return terminal
	})
	require.Equal(t, 1, calls)
	var denied wire.PermissionDenied
	require.ErrorAs(t, err, &denied)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(context.Context) error {
		calls++
		return wire.Timeout{TimeoutMs: 100}
	})
	require.Equal(t, 3, calls)
	var timeout wire.Timeout
	require.ErrorAs(t, err, &timeout)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 5, BaseDelay: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return &correlate.TimeoutError{IntentID: "i1", Timeout: time.Second}
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestDoWrappedErrorsStillClassified(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.Join(errors.New("request failed"), wire.RateLimited{RetryAfterMs: 1})
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}
