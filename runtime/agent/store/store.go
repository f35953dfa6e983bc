package store

import "context"

// Store is the persistence seam Default Handlers build on. Implementations
// treat Thread.Messages as append-only. UpdateRun applies whatever status a
// patch carries, terminal or not; the Default Handlers keep terminal
// statuses sticky by checking IsTerminal before a cancel write.
//
// FileStore (this package) is the default; mongostore offers a
// MongoDB-backed alternative with the same contract.
type Store interface {
	// Init prepares the store for use (creating directories, opening
	// connections, ...). It must be safe to call once before any other
	// method and is typically invoked by the Agent Enhancer during startup.
	Init(ctx context.Context) error

	// Destroy releases any resources held by the store. Called during
	// shutdown, after in-flight runs have been awaited.
	Destroy(ctx context.Context) error

	// CreateThread creates a new, empty thread and persists it.
	CreateThread(ctx context.Context, metadata map[string]any) (Thread, error)

	// GetThread returns the full thread record, including its message
	// history in append order. Returns ErrNotFound if id is unknown.
	GetThread(ctx context.Context, id string) (Thread, error)

	// AppendMessages appends one or more messages to a thread's history, in
	// the order given. Returns ErrNotFound if the thread does not exist.
	AppendMessages(ctx context.Context, threadID string, messages []Message) error

	// CreateRun creates a new run record in status "queued" and persists it.
	// threadID may be empty, in which case the run is not tied to a thread.
	CreateRun(ctx context.Context, input []InputMessage, threadID string, cfg *RunConfig, metadata map[string]any) (Run, error)

	// GetRun returns the full run record. Returns ErrNotFound if id is
	// unknown.
	GetRun(ctx context.Context, id string) (Run, error)

	// UpdateRun applies patch to the run identified by id and returns the
	// updated record. Implementations read-modify-write: callers racing on
	// the same id may overwrite each other's updates unless they coordinate
	// externally (see package doc on concurrency).
	UpdateRun(ctx context.Context, id string, patch RunPatch) (Run, error)
}
