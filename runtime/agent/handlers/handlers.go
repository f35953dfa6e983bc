// Package handlers implements the seven Default Handlers (createThread,
// getThread, syncRun, asyncRun, streamRun, getRun, cancelRun) on top of the
// Record Store, the Stream Adapter, and the in-flight task registry.
//
// Handlers is composed over an ExecRunner the user supplies; it never knows
// whether it is being driven by a chi route, a test, or any other host.
package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/agentruntime/core/internal/telemetry"
	"github.com/agentruntime/core/runtime/agent/store"
	"github.com/agentruntime/core/runtime/agent/stream"
	"github.com/agentruntime/core/runtime/agent/taskregistry"
)

// ExecRunner is the one capability a user agent must supply: a lazy,
// cancellable producer of stream chunks. cancel closes when the caller
// (request context for syncRun/streamRun, the in-flight task for asyncRun)
// wants the generator to stop.
type ExecRunner interface {
	ExecRun(ctx context.Context, input []store.InputMessage, cancel <-chan struct{}) (<-chan stream.Chunk, error)
}

// ThreadProjection is the createThread response shape: a thread without
// its message history.
type ThreadProjection struct {
	ID        string         `json:"id"`
	Object    string         `json:"object"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt int64          `json:"created_at"`
}

func projectThread(th store.Thread) ThreadProjection {
	return ThreadProjection{ID: th.ID, Object: th.Object, Metadata: th.Metadata, CreatedAt: th.CreatedAt}
}

// Handlers implements the seven Default Handlers for one agent instance.
type Handlers struct {
	Store   store.Store
	Tasks   *taskregistry.Registry
	Runner  ExecRunner
	Logger  telemetry.Logger
	Tracer  telemetry.Tracer
	Metrics telemetry.Metrics
}

// New builds a Handlers, defaulting any unset telemetry seam to a no-op
// implementation so callers never need nil checks.
func New(st store.Store, tasks *taskregistry.Registry, runner ExecRunner) *Handlers {
	return &Handlers{
		Store:   st,
		Tasks:   tasks,
		Runner:  runner,
		Logger:  telemetry.NewNoopLogger(),
		Tracer:  telemetry.NewNoopTracer(),
		Metrics: telemetry.NewNoopMetrics(),
	}
}

func nowUnixSeconds() int64 { return time.Now().Unix() }

// CreateThread creates a new, empty thread.
func (h *Handlers) CreateThread(ctx context.Context, metadata map[string]any) (ThreadProjection, error) {
	ctx, span := h.Tracer.Start(ctx, "handlers.create_thread")
	defer span.End()

	th, err := h.Store.CreateThread(ctx, metadata)
	if err != nil {
		span.RecordError(err)
		return ThreadProjection{}, err
	}
	h.Metrics.IncCounter("agent_thread_created_total", 1)
	return projectThread(th), nil
}

// GetThread returns the full thread, including its message history.
func (h *Handlers) GetThread(ctx context.Context, id string) (store.Thread, error) {
	ctx, span := h.Tracer.Start(ctx, "handlers.get_thread")
	defer span.End()
	th, err := h.Store.GetThread(ctx, id)
	if err != nil {
		span.RecordError(err)
	}
	return th, err
}

// GetRun returns the full run record.
func (h *Handlers) GetRun(ctx context.Context, id string) (store.Run, error) {
	ctx, span := h.Tracer.Start(ctx, "handlers.get_run")
	defer span.End()
	run, err := h.Store.GetRun(ctx, id)
	if err != nil {
		span.RecordError(err)
	}
	return run, err
}

// resolveThreadID returns threadID unchanged if non-empty, otherwise
// creates a fresh thread and returns its id (syncRun/asyncRun/streamRun
// step 1).
func (h *Handlers) resolveThreadID(ctx context.Context, threadID string) (string, error) {
	if threadID != "" {
		return threadID, nil
	}
	th, err := h.Store.CreateThread(ctx, nil)
	if err != nil {
		return "", err
	}
	return th.ID, nil
}

// nonSystemMessages converts input messages with role != system into thread
// Messages (invariant 6: system messages are dropped before append).
func nonSystemMessages(input []store.InputMessage, threadID, runID string) []store.Message {
	out := make([]store.Message, 0, len(input))
	for _, in := range input {
		if in.Role == store.RoleSystem {
			continue
		}
		blocks := ToContentBlocksFromInput(in.Content)
		out = append(out, store.Message{
			ID:       "msg_" + uuid.NewString(),
			Object:   "thread.message",
			ThreadID: threadID,
			RunID:    runID,
			Role:     in.Role,
			Status:   store.MessageCompleted,
			Content:  blocks,
			Metadata: in.Metadata,
		})
	}
	return out
}

// ToContentBlocksFromInput mirrors stream.ToContentBlocks for
// store.InputContent, used to convert input messages (as opposed to
// generator chunks) into content blocks for thread history.
func ToContentBlocksFromInput(content store.InputContent) []store.ContentBlock {
	if !content.IsParts() {
		return []store.ContentBlock{store.NewTextBlock(content.String())}
	}
	blocks := make([]store.ContentBlock, 0, len(content.Parts()))
	for _, part := range content.Parts() {
		if part.Type != "text" {
			continue
		}
		blocks = append(blocks, store.NewTextBlock(part.Text))
	}
	return blocks
}

// drainAll reads every chunk off ch until it closes, stopping early (with
// the chunk's error) if a chunk carries Err.
func drainAll(ch <-chan stream.Chunk) ([]stream.Chunk, error) {
	var chunks []stream.Chunk
	for chunk := range ch {
		if chunk.Err != nil {
			return chunks, execError(chunk.Err.Message)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

type execErr struct{ message string }

func (e *execErr) Error() string { return e.message }

func execError(message string) error { return &execErr{message: message} }

func lastErrorFor(err error) *store.LastError {
	return &store.LastError{Code: execErrorCode, Message: err.Error()}
}
