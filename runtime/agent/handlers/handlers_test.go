package handlers_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentruntime/core/runtime/agent/handlers"
	"github.com/agentruntime/core/runtime/agent/store"
	"github.com/agentruntime/core/runtime/agent/stream"
	"github.com/agentruntime/core/runtime/agent/taskregistry"
)

// fakeSink is an in-memory stream.Sink used to assert on the exact event
// sequence a handler emits, without a real HTTP connection.
type fakeSink struct {
	mu     sync.Mutex
	events []stream.Event
	closed bool
}

func newFakeSink() *fakeSink { return &fakeSink{} }

func (s *fakeSink) Send(ctx context.Context, event stream.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *fakeSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) Events() []stream.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stream.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *fakeSink) Names() []stream.EventName {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stream.EventName, len(s.events))
	for i, e := range s.events {
		out[i] = e.Name()
	}
	return out
}

func (s *fakeSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ stream.Sink = (*fakeSink)(nil)

// fakeRunner is a test ExecRunner: it replays a fixed chunk sequence,
// optionally pausing before each one so cancellation tests have a window to
// act, and optionally failing at startup.
type fakeRunner struct {
	chunks   []stream.Chunk
	startErr error
	delay    time.Duration
}

func (r *fakeRunner) ExecRun(ctx context.Context, input []store.InputMessage, cancel <-chan struct{}) (<-chan stream.Chunk, error) {
	if r.startErr != nil {
		return nil, r.startErr
	}
	ch := make(chan stream.Chunk)
	go func() {
		defer close(ch)
		for _, c := range r.chunks {
			if r.delay > 0 {
				select {
				case <-time.After(r.delay):
				case <-cancel:
					return
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- c:
			case <-cancel:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func newTestHandlers(t *testing.T, runner handlers.ExecRunner) *handlers.Handlers {
	t.Helper()
	st := store.NewFileStore(t.TempDir())
	require.NoError(t, st.Init(context.Background()))
	return handlers.New(st, taskregistry.New(), runner)
}

func textChunk(text string) stream.Chunk {
	return stream.Chunk{
		Type:    "assistant",
		Message: &stream.ChunkMessage{Role: store.RoleAssistant, Content: store.NewInputText(text)},
	}
}

func usageChunk(prompt, completion int) stream.Chunk {
	return stream.Chunk{Type: "result", Usage: &stream.ChunkUsage{PromptTokens: prompt, CompletionTokens: completion}}
}

func TestCreateThreadAndGetThread(t *testing.T) {
	ctx := context.Background()
	h := newTestHandlers(t, &fakeRunner{})

	proj, err := h.CreateThread(ctx, map[string]any{"k": "v"})
	require.NoError(t, err)
	require.NotEmpty(t, proj.ID)
	require.Equal(t, "thread", proj.Object)
	require.LessOrEqual(t, proj.CreatedAt, time.Now().Unix())

	th, err := h.GetThread(ctx, proj.ID)
	require.NoError(t, err)
	require.Equal(t, proj.ID, th.ID)
	require.Equal(t, proj.CreatedAt, th.CreatedAt)
	require.Equal(t, "v", th.Metadata["k"])
	require.Empty(t, th.Messages, "round-trip: a freshly created thread has no messages")
}

func TestGetThreadNotFound(t *testing.T) {
	h := newTestHandlers(t, &fakeRunner{})
	_, err := h.GetThread(context.Background(), "thread_nope")
	require.Error(t, err)
	require.True(t, errors.Is(err, store.ErrNotFound))
}

func TestGetRunNotFound(t *testing.T) {
	h := newTestHandlers(t, &fakeRunner{})
	_, err := h.GetRun(context.Background(), "run_nope")
	require.Error(t, err)
	require.True(t, errors.Is(err, store.ErrNotFound))
}
