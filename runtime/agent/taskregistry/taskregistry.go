// Package taskregistry tracks in-flight background runs for one agent
// instance: the mapping from run id to a cancel handle and a
// completion-future, guarded by a single mutex (invariant 7, §5's
// shared-resource discipline).
//
// Registry mutation happens from three paths — async run creation, the
// background drainer's finalization, and cancelRun — and the abort → await →
// update sequencing that eliminates the cancel/finalize race lives in the
// handlers package, built on the primitives here.
package taskregistry

import (
	"context"
	"sync"
)

// Task is one in-flight background run: a one-shot cancel signal and a
// completion-future a waiter can block on.
type Task struct {
	done       chan struct{}
	cancel     chan struct{}
	cancelOnce sync.Once
	doneOnce   sync.Once
	err        error
}

func newTask() *Task {
	return &Task{done: make(chan struct{}), cancel: make(chan struct{})}
}

// Cancel signals abort. Safe to call more than once or concurrently;
// only the first call has effect.
func (t *Task) Cancel() {
	t.cancelOnce.Do(func() { close(t.cancel) })
}

// Cancelled returns the channel that closes when Cancel has been called.
// The handler passes this to the user generator as the cancel token.
func (t *Task) Cancelled() <-chan struct{} { return t.cancel }

// IsCancelled reports whether Cancel has been called, without blocking.
func (t *Task) IsCancelled() bool {
	select {
	case <-t.cancel:
		return true
	default:
		return false
	}
}

// Finish marks the task complete with the given error (nil on success).
// Must be called exactly once per task, by the goroutine driving it; later
// calls are no-ops.
func (t *Task) Finish(err error) {
	t.doneOnce.Do(func() {
		t.err = err
		close(t.done)
	})
}

// Await blocks until Finish is called or ctx is done, returning the task's
// stored error in the former case or ctx.Err() in the latter.
func (t *Task) Await(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Registry is the per-agent-instance map of run id to Task.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Insert creates and registers a new Task for runID. Callers must not
// insert twice for the same runID without an intervening Remove.
func (r *Registry) Insert(runID string) *Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := newTask()
	r.tasks[runID] = t
	return t
}

// Lookup returns the Task registered for runID, if any. The returned
// pointer is a handle shared with the background goroutine driving the
// task; callers must only use its exported methods, never mutate its
// fields.
func (r *Registry) Lookup(runID string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[runID]
	return t, ok
}

// Remove deregisters runID. Safe to call even if runID is not present.
func (r *Registry) Remove(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, runID)
}

// Len reports the number of currently tracked in-flight runs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// AwaitAll blocks until every currently registered task settles (success or
// failure); errors are swallowed, matching the Agent Enhancer teardown
// contract, which must not fail just because a background run did. Tasks
// registered after the snapshot is taken are not waited on.
func (r *Registry) AwaitAll(ctx context.Context) {
	r.mu.Lock()
	snapshot := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		snapshot = append(snapshot, t)
	}
	r.mu.Unlock()

	for _, t := range snapshot {
		_ = t.Await(ctx)
	}
}
