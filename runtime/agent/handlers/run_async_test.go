package handlers_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentruntime/core/runtime/agent/store"
	"github.com/agentruntime/core/runtime/agent/stream"
)

// waitForTerminal polls GetRun until the run reaches a terminal status or
// the deadline elapses.
func waitForTerminal(t *testing.T, h interface {
	GetRun(ctx context.Context, id string) (store.Run, error)
}, runID string, timeout time.Duration) store.Run {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		run, err := h.GetRun(context.Background(), runID)
		require.NoError(t, err)
		if run.Status.IsTerminal() {
			return run
		}
		if time.Now().After(deadline) {
			t.Fatalf("run %s did not reach a terminal status within %s (last status %q)", runID, timeout, run.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestAsyncRunReturnsQueuedThenCompletes exercises S3: asyncRun returns
// immediately with status queued, and the background task eventually
// lands on completed with the generator's output recorded.
func TestAsyncRunReturnsQueuedThenCompletes(t *testing.T) {
	ctx := context.Background()
	runner := &fakeRunner{
		delay:  10 * time.Millisecond,
		chunks: []stream.Chunk{textChunk("Processed 1 messages"), usageChunk(10, 5)},
	}
	h := newTestHandlers(t, runner)

	input := []store.InputMessage{{Role: store.RoleUser, Content: store.NewInputText("Hi")}}
	run, err := h.AsyncRun(ctx, "", input, nil, nil)
	require.NoError(t, err)
	require.Equal(t, store.RunQueued, run.Status)
	require.Nil(t, run.CompletedAt)

	final := waitForTerminal(t, h, run.ID, time.Second)
	require.Equal(t, store.RunCompleted, final.Status)
	require.Len(t, final.Output, 1)
	require.Equal(t, "Processed 1 messages", final.Output[0].Content[0].Text.Value)
	require.NotNil(t, final.Usage)
	require.Equal(t, 15, final.Usage.TotalTokens)

	th, err := h.GetThread(ctx, run.ThreadID)
	require.NoError(t, err)
	require.Len(t, th.Messages, 2)
}

// TestAsyncRunCancelWhileRunning exercises S4: cancelling mid-flight stops
// the generator before it produces its final chunk, and the run ends up
// cancelled with cancelled_at set and completed_at unset.
func TestAsyncRunCancelWhileRunning(t *testing.T) {
	ctx := context.Background()
	runner := &fakeRunner{
		delay:  100 * time.Millisecond,
		chunks: []stream.Chunk{textChunk("first"), textChunk("second")},
	}
	h := newTestHandlers(t, runner)

	input := []store.InputMessage{{Role: store.RoleUser, Content: store.NewInputText("Hi")}}
	run, err := h.AsyncRun(ctx, "", input, nil, nil)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	cancelled, err := h.CancelRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, store.RunCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	require.Nil(t, cancelled.CompletedAt)

	final, err := h.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, store.RunCancelled, final.Status)
	require.Empty(t, final.Output, "a cancelled run must not carry completed output")
}

// TestCancelRunTerminalRaisesIllegalState exercises cancelRun against a run
// id that the registry never tracked (e.g. after process restart): it
// should still raise IllegalState rather than silently no-op, once the run
// is already terminal.
func TestCancelRunTerminalRaisesIllegalState(t *testing.T) {
	ctx := context.Background()
	h := newTestHandlers(t, &fakeRunner{chunks: []stream.Chunk{textChunk("ok")}})

	run, err := h.SyncRun(ctx, "", []store.InputMessage{{Role: store.RoleUser, Content: store.NewInputText("Hi")}}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, store.RunCompleted, run.Status)

	_, err = h.CancelRun(ctx, run.ID)
	require.Error(t, err)
}

// TestCancelRunNotFound exercises cancelRun against an id the store has
// never seen at all.
func TestCancelRunNotFound(t *testing.T) {
	h := newTestHandlers(t, &fakeRunner{})
	_, err := h.CancelRun(context.Background(), "run_nope")
	require.Error(t, err)
}
