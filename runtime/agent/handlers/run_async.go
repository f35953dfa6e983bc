package handlers

import (
	"context"

	"github.com/agentruntime/core/runtime/agent/store"
	"github.com/agentruntime/core/runtime/agent/stream"
	"github.com/agentruntime/core/runtime/agent/taskregistry"
)

// AsyncRun implements asyncRun: create the run, register an in-flight task,
// launch the background drain-and-finalize protocol, and return
// immediately with status queued. cancelRun owns the terminal write when
// the background task is aborted.
func (h *Handlers) AsyncRun(ctx context.Context, threadID string, input []store.InputMessage, cfg *store.RunConfig, metadata map[string]any) (store.Run, error) {
	ctx, span := h.Tracer.Start(ctx, "handlers.async_run")
	defer span.End()

	threadID, err := h.resolveThreadID(ctx, threadID)
	if err != nil {
		span.RecordError(err)
		return store.Run{}, err
	}

	run, err := h.Store.CreateRun(ctx, input, threadID, cfg, metadata)
	if err != nil {
		span.RecordError(err)
		return store.Run{}, err
	}

	task := h.Tasks.Insert(run.ID)
	h.Metrics.IncCounter("agent_run_queued_total", 1)
	go h.runInBackground(run, threadID, input, task)

	return run, nil
}

// runInBackground drives one async run to completion or cancellation. It
// always calls task.Finish and always removes the task from the registry,
// so cancelRun's await can never block forever on a run that already
// exited.
func (h *Handlers) runInBackground(run store.Run, threadID string, input []store.InputMessage, task *taskregistry.Task) {
	ctx := context.Background()
	defer h.Tasks.Remove(run.ID)

	inProgress := store.RunInProgress
	startedAt := nowUnixSeconds()
	run, err := h.Store.UpdateRun(ctx, run.ID, store.RunPatch{Status: &inProgress, StartedAt: &startedAt})
	if err != nil {
		h.Logger.Error(ctx, "failed to mark run in_progress", "run_id", run.ID, "error", err)
		task.Finish(err)
		return
	}

	ch, err := h.Runner.ExecRun(ctx, input, task.Cancelled())
	if err != nil {
		if !task.IsCancelled() {
			h.persistFailedNoRaise(ctx, run.ID, err)
		}
		task.Finish(err)
		return
	}

	chunks, cancelled, drainErr := drainCooperative(ch, task.Cancelled())
	if cancelled {
		task.Finish(nil)
		return
	}
	if drainErr != nil {
		h.persistFailedNoRaise(ctx, run.ID, drainErr)
		task.Finish(drainErr)
		return
	}

	result := stream.Collect(chunks, run.ID)
	completed := store.RunCompleted
	completedAt := nowUnixSeconds()
	if _, err := h.Store.UpdateRun(ctx, run.ID, store.RunPatch{
		Status:      &completed,
		SetOutput:   true,
		Output:      result.Output,
		Usage:       result.Usage,
		CompletedAt: &completedAt,
	}); err != nil {
		h.Logger.Error(ctx, "failed to persist completed run", "run_id", run.ID, "error", err)
		task.Finish(err)
		return
	}

	toAppend := append(nonSystemMessages(input, threadID, run.ID), result.Output...)
	if err := h.Store.AppendMessages(ctx, threadID, toAppend); err != nil {
		h.Logger.Error(ctx, "failed to append run output to thread", "run_id", run.ID, "error", err)
	}

	h.Metrics.IncCounter("agent_run_completed_total", 1)
	task.Finish(nil)
}

// persistFailedNoRaise is failRun's async counterpart: async has no caller
// to re-raise the error to, so it only records it (spec §7).
func (h *Handlers) persistFailedNoRaise(ctx context.Context, runID string, execErr error) {
	failed := store.RunFailed
	failedAt := nowUnixSeconds()
	if _, err := h.Store.UpdateRun(ctx, runID, store.RunPatch{
		Status:    &failed,
		LastError: lastErrorFor(execErr),
		FailedAt:  &failedAt,
	}); err != nil {
		h.Logger.Error(ctx, "failed to persist run failure", "run_id", runID, "store_error", err, "exec_error", execErr)
	}
}

// drainCooperative reads chunks until ch closes, a chunk carries Err, or
// cancel fires, checking cancel at every loop boundary so an aborted
// generator is noticed promptly even if it keeps producing chunks.
func drainCooperative(ch <-chan stream.Chunk, cancel <-chan struct{}) (chunks []stream.Chunk, cancelled bool, err error) {
	for {
		select {
		case <-cancel:
			return chunks, true, nil
		case chunk, ok := <-ch:
			if !ok {
				return chunks, false, nil
			}
			if chunk.Err != nil {
				return chunks, false, execError(chunk.Err.Message)
			}
			chunks = append(chunks, chunk)
		}
	}
}
