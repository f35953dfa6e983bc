package handlers

import (
	"context"

	"github.com/agentruntime/core/runtime/agent/store"
)

// CancelRun implements cancelRun. If an in-flight task is registered for
// runID, it signals cancellation and awaits the task's completion before
// touching the store — this ordering (abort, then await, then read/write)
// is what prevents the cancel write from racing the background drainer's
// own terminal write.
func (h *Handlers) CancelRun(ctx context.Context, runID string) (store.Run, error) {
	ctx, span := h.Tracer.Start(ctx, "handlers.cancel_run")
	defer span.End()

	if task, ok := h.Tasks.Lookup(runID); ok {
		task.Cancel()
		// Deliberately not ctx: the inbound request context can be
		// canceled by a client disconnect or proxy timeout before the
		// background task finishes draining, which would let the store
		// writes below race the drainer's own terminal write.
		_ = task.Await(context.Background())
	}

	run, err := h.Store.GetRun(ctx, runID)
	if err != nil {
		span.RecordError(err)
		return store.Run{}, err
	}

	if run.Status.IsTerminal() {
		err := illegalStatef("cannot cancel run with status %q", run.Status)
		span.RecordError(err)
		return store.Run{}, err
	}

	cancelled := store.RunCancelled
	cancelledAt := nowUnixSeconds()
	run, err = h.Store.UpdateRun(ctx, runID, store.RunPatch{Status: &cancelled, CancelledAt: &cancelledAt})
	if err != nil {
		span.RecordError(err)
		return store.Run{}, err
	}

	h.Metrics.IncCounter("agent_run_cancelled_total", 1)
	return run, nil
}
