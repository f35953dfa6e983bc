package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/agentruntime/core/runtime/agent/store"
	"github.com/agentruntime/core/runtime/agent/stream"
)

// StreamRun implements streamRun: the SSE event sequence of spec §4.3. The
// host binding is responsible for raw framing (event:/data: lines,
// flushing, headers) via the Sink it passes in; StreamRun only decides
// what events to send and in what order.
//
// Unlike syncRun/asyncRun (which use the Stream Adapter's collect to
// produce one output Message per chunk that carries a message), StreamRun
// accumulates every chunk's content blocks into a single message so
// clients can render it incrementally via thread.message.delta frames —
// the per-chunk adapter logic is inlined here rather than buffered, per
// spec §4.3's "no buffering of the full stream" requirement.
//
// ctx doubles as the cancel token: the host binding is expected to cancel
// it when the client's connection closes (net/http does this automatically
// for the request context of a streaming handler).
func (h *Handlers) StreamRun(ctx context.Context, sink stream.Sink, threadID string, input []store.InputMessage, cfg *store.RunConfig, metadata map[string]any) error {
	ctx, span := h.Tracer.Start(ctx, "handlers.stream_run")
	defer span.End()

	threadID, err := h.resolveThreadID(ctx, threadID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	run, err := h.Store.CreateRun(ctx, input, threadID, cfg, metadata)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if sendErr := sink.Send(ctx, stream.NewRunCreated(run)); sendErr != nil {
		return sendErr
	}
	defer func() { _ = sink.Send(context.Background(), stream.NewDone(run.ID)) }()

	inProgress := store.RunInProgress
	startedAt := nowUnixSeconds()
	run, err = h.Store.UpdateRun(ctx, run.ID, store.RunPatch{Status: &inProgress, StartedAt: &startedAt})
	if err != nil {
		span.RecordError(err)
		return err
	}
	if sendErr := sink.Send(ctx, stream.NewRunInProgress(run)); sendErr != nil {
		return sendErr
	}

	msgID := "msg_" + uuid.NewString()
	shell := store.Message{ID: msgID, Object: "thread.message", ThreadID: threadID, RunID: run.ID, Role: store.RoleAssistant, Status: store.MessageInProgress, Content: []store.ContentBlock{}}
	if sendErr := sink.Send(ctx, stream.NewMessageCreated(shell)); sendErr != nil {
		return sendErr
	}

	ch, err := h.Runner.ExecRun(ctx, input, ctx.Done())
	if err != nil {
		return h.streamFail(ctx, sink, run, err)
	}

	var content []store.ContentBlock
	var promptTokens, completionTokens int
	var hasUsage bool

	for chunk := range ch {
		if chunk.Err != nil {
			return h.streamFail(ctx, sink, run, execError(chunk.Err.Message))
		}
		if chunk.Message != nil {
			blocks := stream.ToContentBlocks(chunk.Message)
			content = append(content, blocks...)
			if sendErr := sink.Send(ctx, stream.NewMessageDelta(run.ID, msgID, blocks)); sendErr != nil {
				return sendErr
			}
		}
		if chunk.Usage != nil {
			promptTokens += chunk.Usage.PromptTokens
			completionTokens += chunk.Usage.CompletionTokens
			hasUsage = true
		}
	}

	final := store.Message{ID: msgID, Object: "thread.message", ThreadID: threadID, RunID: run.ID, Role: store.RoleAssistant, Status: store.MessageCompleted, Content: content}
	if sendErr := sink.Send(ctx, stream.NewMessageCompleted(final)); sendErr != nil {
		return sendErr
	}

	var usage *store.Usage
	if hasUsage {
		usage = &store.Usage{PromptTokens: promptTokens, CompletionTokens: completionTokens, TotalTokens: promptTokens + completionTokens}
	}
	var output []store.Message
	if len(content) > 0 {
		output = []store.Message{final}
	}

	completed := store.RunCompleted
	completedAt := nowUnixSeconds()
	run, err = h.Store.UpdateRun(ctx, run.ID, store.RunPatch{
		Status:      &completed,
		SetOutput:   true,
		Output:      output,
		Usage:       usage,
		CompletedAt: &completedAt,
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	if sendErr := sink.Send(ctx, stream.NewRunCompleted(run)); sendErr != nil {
		return sendErr
	}

	toAppend := append(nonSystemMessages(input, threadID, run.ID), output...)
	if appendErr := h.Store.AppendMessages(ctx, threadID, toAppend); appendErr != nil {
		h.Logger.Error(ctx, "failed to append stream output to thread", "run_id", run.ID, "error", appendErr)
	}

	h.Metrics.IncCounter("agent_run_completed_total", 1)
	return nil
}

// streamFail replaces message.completed/run.completed with a single
// thread.run.failed frame. A store failure while recording the failure is
// logged, not returned, so it cannot mask execErr.
func (h *Handlers) streamFail(ctx context.Context, sink stream.Sink, run store.Run, execErr error) error {
	failed := store.RunFailed
	failedAt := nowUnixSeconds()
	lastErr := lastErrorFor(execErr)
	updated, updateErr := h.Store.UpdateRun(ctx, run.ID, store.RunPatch{
		Status:    &failed,
		LastError: lastErr,
		FailedAt:  &failedAt,
	})
	if updateErr != nil {
		h.Logger.Error(ctx, "failed to persist run failure", "run_id", run.ID, "store_error", updateErr, "exec_error", execErr)
		updated = run
		updated.Status = store.RunFailed
		updated.LastError = lastErr
	}
	_ = sink.Send(ctx, stream.NewRunFailed(updated))
	return execErr
}
