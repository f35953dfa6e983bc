// Package stream defines the user-facing chunk type a generator yields, the
// canonical SSE event catalog derived from it, and the Sink abstraction
// streamRun writes those events to.
//
// Sink keeps the "host framework owns the wire" boundary: the core never
// imports net/http. A transport (the chi-based SSE writer in
// internal/httpapi, or the in-memory fakeSink in tests) implements Sink and
// does the actual framing.
package stream

import (
	"context"

	"github.com/agentruntime/core/runtime/agent/store"
)

// ChunkUsage is the usage fragment of a user-produced chunk.
type ChunkUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ChunkMessage is the message fragment of a user-produced chunk. Content
// follows the same string-or-parts shape as InputMessage.content.
type ChunkMessage struct {
	Role    store.Role         `json:"role"`
	Content store.InputContent `json:"content"`
}

// ChunkError lets a generator report a runtime failure as the terminal
// value on its chunk channel, since ExecRunner.ExecRun's error return only
// covers synchronous setup failures (the channel could not be created at
// all). A chunk carrying Err ends the drain early, the same as if ExecRun
// itself had returned an error.
type ChunkError struct {
	Message string `json:"message"`
}

// Chunk is one value yielded by the user generator. Type is free-form and
// opaque to the runtime: behavior is driven purely by whether Message,
// Usage, or Err are present, not by Type's value. Chunks with none of the
// three are no-ops.
type Chunk struct {
	Type    string        `json:"type"`
	Message *ChunkMessage `json:"message,omitempty"`
	Usage   *ChunkUsage   `json:"usage,omitempty"`
	Err     *ChunkError   `json:"-"`
}

// Sink delivers SSE events to a streaming client. Implementations must be
// safe to use from the single goroutine driving one streamRun invocation;
// the runtime never shares a Sink across concurrent runs.
type Sink interface {
	// Send writes one event frame. An error aborts the remainder of the
	// stream; streamRun does not retry.
	Send(ctx context.Context, event Event) error

	// Close releases resources held by the sink (flush, close the
	// underlying connection). Idempotent.
	Close(ctx context.Context) error
}

// EventName is an SSE "event:" field value, exactly one of the names listed
// in the streamRun event table.
type EventName string

const (
	EventRunCreated       EventName = "thread.run.created"
	EventRunInProgress    EventName = "thread.run.in_progress"
	EventMessageCreated   EventName = "thread.message.created"
	EventMessageDelta     EventName = "thread.message.delta"
	EventMessageCompleted EventName = "thread.message.completed"
	EventRunCompleted     EventName = "thread.run.completed"
	EventRunFailed        EventName = "thread.run.failed"
	EventDone             EventName = "done"
)

// Event is one SSE frame: a name plus a JSON-serializable payload. done is
// the sole exception — its wire payload is the literal bytes "[DONE]", not
// a JSON document; Sink implementations must special-case EventDone rather
// than call json.Marshal on its Payload.
type Event interface {
	Name() EventName
	RunID() string
	Payload() any
}

// base is embedded by every concrete event type to satisfy Event.
type base struct {
	name    EventName
	runID   string
	payload any
}

func (b base) Name() EventName { return b.name }
func (b base) RunID() string   { return b.runID }
func (b base) Payload() any    { return b.payload }

// MessageDeltaPayload is the data payload of a thread.message.delta event.
type MessageDeltaPayload struct {
	ID     string      `json:"id"`
	Object string      `json:"object"`
	Delta  DeltaFields `json:"delta"`
}

// DeltaFields holds the incremental content carried by a delta frame.
type DeltaFields struct {
	Content []store.ContentBlock `json:"content"`
}

// NewRunCreated builds the frame 1 event: the run projection in status queued.
func NewRunCreated(run store.Run) Event {
	return base{name: EventRunCreated, runID: run.ID, payload: run}
}

// NewRunInProgress builds the frame 2 event: run projection, in_progress.
func NewRunInProgress(run store.Run) Event {
	return base{name: EventRunInProgress, runID: run.ID, payload: run}
}

// NewMessageCreated builds the frame 3 event: an in_progress message shell
// with empty content.
func NewMessageCreated(msg store.Message) Event {
	return base{name: EventMessageCreated, runID: msg.RunID, payload: msg}
}

// NewMessageDelta builds a thread.message.delta frame for one chunk's
// newly produced content blocks.
func NewMessageDelta(runID, messageID string, blocks []store.ContentBlock) Event {
	return base{
		name:  EventMessageDelta,
		runID: runID,
		payload: MessageDeltaPayload{
			ID:     messageID,
			Object: "thread.message.delta",
			Delta:  DeltaFields{Content: blocks},
		},
	}
}

// NewMessageCompleted builds the frame N+1 event: the message with
// accumulated content, status completed.
func NewMessageCompleted(msg store.Message) Event {
	return base{name: EventMessageCompleted, runID: msg.RunID, payload: msg}
}

// NewRunCompleted builds the frame N+2 event on a success path.
func NewRunCompleted(run store.Run) Event {
	return base{name: EventRunCompleted, runID: run.ID, payload: run}
}

// NewRunFailed builds the replacement for message.completed/run.completed on
// a failure path: the run with its last_error set.
func NewRunFailed(run store.Run) Event {
	return base{name: EventRunFailed, runID: run.ID, payload: run}
}

// doneLiteral is the exact wire payload of the terminal done frame.
const doneLiteral = "[DONE]"

// NewDone builds the terminal frame. Its Payload is the literal string
// "[DONE]"; Sink implementations must write it verbatim, not JSON-encode it.
func NewDone(runID string) Event {
	return base{name: EventDone, runID: runID, payload: doneLiteral}
}
