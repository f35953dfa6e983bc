package handlers

import (
	"context"

	"github.com/agentruntime/core/runtime/agent/store"
	"github.com/agentruntime/core/runtime/agent/stream"
)

// SyncRun implements syncRun: create a run, drain the generator to
// completion, persist the terminal status, append to the thread, and
// return the finished run. The request context doubles as the cancel
// token — there is no caller left to observe a background cancellation
// once this call returns, unlike asyncRun.
func (h *Handlers) SyncRun(ctx context.Context, threadID string, input []store.InputMessage, cfg *store.RunConfig, metadata map[string]any) (store.Run, error) {
	ctx, span := h.Tracer.Start(ctx, "handlers.sync_run")
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

	inProgress := store.RunInProgress
	startedAt := nowUnixSeconds()
	if run, err = h.Store.UpdateRun(ctx, run.ID, store.RunPatch{Status: &inProgress, StartedAt: &startedAt}); err != nil {
		span.RecordError(err)
		return store.Run{}, err
	}

	ch, err := h.Runner.ExecRun(ctx, input, ctx.Done())
	if err != nil {
		return h.failRun(ctx, run, err)
	}

	chunks, drainErr := drainAll(ch)
	if drainErr != nil {
		return h.failRun(ctx, run, drainErr)
	}

	result := stream.Collect(chunks, run.ID)
	completed := store.RunCompleted
	completedAt := nowUnixSeconds()
	run, err = h.Store.UpdateRun(ctx, run.ID, store.RunPatch{
		Status:      &completed,
		SetOutput:   true,
		Output:      result.Output,
		Usage:       result.Usage,
		CompletedAt: &completedAt,
	})
	if err != nil {
		span.RecordError(err)
		return store.Run{}, err
	}

	toAppend := append(nonSystemMessages(input, threadID, run.ID), result.Output...)
	if appendErr := h.Store.AppendMessages(ctx, threadID, toAppend); appendErr != nil {
		span.RecordError(appendErr)
		return store.Run{}, appendErr
	}

	h.Metrics.IncCounter("agent_run_completed_total", 1)
	return run, nil
}

// failRun persists the failed terminal status (step 6) and re-raises the
// original ExecError. A store failure while recording the failure must not
// mask the original error (spec §7's StoreError-vs-ExecError policy).
func (h *Handlers) failRun(ctx context.Context, run store.Run, execErr error) (store.Run, error) {
	failed := store.RunFailed
	failedAt := nowUnixSeconds()
	lastErr := lastErrorFor(execErr)
	if _, updateErr := h.Store.UpdateRun(ctx, run.ID, store.RunPatch{
		Status:    &failed,
		LastError: lastErr,
		FailedAt:  &failedAt,
	}); updateErr != nil {
		h.Logger.Error(ctx, "failed to persist run failure", "run_id", run.ID, "store_error", updateErr, "exec_error", execErr)
	}
	return store.Run{}, execErr
}
