// Package store defines the durable Thread/Run record model and the
// persistence interface (the "Record Store") that Default Handlers build on.
//
// Two implementations ship with this package tree: the default FileStore
// (one JSON document per thread/run, atomic rename on write) and, under
// mongostore, a MongoDB-backed alternative.
//
// Concurrency: both implementations update threads and runs by
// read-modify-write. FileStore serializes UpdateRun within one process;
// neither store coordinates AppendMessages, so concurrent appends to the
// same thread may lose messages.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Role is the speaker of a message.
type Role string

// Recognized roles. System messages are accepted on input but are always
// dropped before being appended to a thread (invariant 6).
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageStatus is the lifecycle state of a Message.
type MessageStatus string

const (
	MessageInProgress MessageStatus = "in_progress"
	MessageIncomplete MessageStatus = "incomplete"
	MessageCompleted  MessageStatus = "completed"
)

// RunStatus is the lifecycle state of a Run. Terminal statuses
// (Completed, Failed, Cancelled, Expired) are sticky: invariant 2 requires
// that once entered, a run never leaves a terminal status.
type RunStatus string

const (
	RunQueued      RunStatus = "queued"
	RunInProgress  RunStatus = "in_progress"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
	RunCancelled   RunStatus = "cancelled"
	RunCancelling  RunStatus = "cancelling"
	RunExpired     RunStatus = "expired"
)

// IsTerminal reports whether s is one of the sticky terminal statuses.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunExpired:
		return true
	default:
		return false
	}
}

// TextContent is the payload of a "text" content block.
type TextContent struct {
	Value       string `json:"value"`
	Annotations []any  `json:"annotations"`
}

// ContentBlock is one ordered element of a Message's content. The only kind
// specified is "text"; the runtime never constructs any other Type.
type ContentBlock struct {
	Type string      `json:"type"`
	Text TextContent `json:"text"`
}

// NewTextBlock builds a ContentBlock of type "text" with empty annotations.
func NewTextBlock(value string) ContentBlock {
	return ContentBlock{Type: "text", Text: TextContent{Value: value, Annotations: []any{}}}
}

// Message is both a thread history entry and a run output entry; the two
// uses share this shape per the data model.
type Message struct {
	ID        string         `json:"id"`
	Object    string         `json:"object"`
	CreatedAt int64          `json:"created_at"`
	ThreadID  string         `json:"thread_id,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	Role      Role           `json:"role"`
	Status    MessageStatus  `json:"status"`
	Content   []ContentBlock `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Thread is an append-only conversation log.
type Thread struct {
	ID        string         `json:"id"`
	Object    string         `json:"object"`
	Messages  []Message      `json:"messages"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt int64          `json:"created_at"`
}

// LastError records why a run failed.
type LastError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Usage reports token accounting for a completed run. Invariant 5 requires
// TotalTokens == PromptTokens + CompletionTokens whenever Usage is reported.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// RunConfig carries caller-supplied execution hints. Enforcement of
// TimeoutMS is optional per spec; MaxIterations is accepted and persisted
// but not interpreted by the core.
type RunConfig struct {
	MaxIterations *int   `json:"max_iterations,omitempty"`
	TimeoutMS     *int64 `json:"timeout_ms,omitempty"`
}

// InputContentPart is one element of a multi-part InputMessage content
// sequence. Only Type == "text" parts are kept by the stream adapter; other
// types are accepted on the wire but ignored when forming content blocks.
type InputContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// InputContent is the polymorphic InputMessage.content field: either a bare
// string or an ordered array of InputContentPart. It marshals back to
// whichever shape it was decoded from.
type InputContent struct {
	text    string
	parts   []InputContentPart
	isParts bool
}

// NewInputText builds an InputContent holding a plain string.
func NewInputText(s string) InputContent { return InputContent{text: s} }

// NewInputParts builds an InputContent holding a part sequence.
func NewInputParts(parts []InputContentPart) InputContent {
	return InputContent{parts: parts, isParts: true}
}

// String returns the scalar form, or "" if this content is a part sequence.
func (c InputContent) String() string { return c.text }

// Parts returns the part-sequence form, or nil if this content is a scalar
// string.
func (c InputContent) Parts() []InputContentPart { return c.parts }

// IsParts reports whether the content was supplied as a part sequence.
func (c InputContent) IsParts() bool { return c.isParts }

// MarshalJSON renders the content in whichever shape it was constructed with.
func (c InputContent) MarshalJSON() ([]byte, error) {
	if c.isParts {
		return json.Marshal(c.parts)
	}
	return json.Marshal(c.text)
}

// UnmarshalJSON accepts either a JSON string or a JSON array of
// InputContentPart, matching the spec's `string | {type,text}[]` shape.
func (c *InputContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = InputContent{text: s}
		return nil
	}
	var parts []InputContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content must be a string or an array of text parts: %w", err)
	}
	*c = InputContent{parts: parts, isParts: true}
	return nil
}

// InputMessage is one element of CreateRunInput.input.messages, as
// submitted by the caller.
type InputMessage struct {
	Role     Role           `json:"role"`
	Content  InputContent   `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Run is the durable record of one agent run execution.
type Run struct {
	ID          string         `json:"id"`
	Object      string         `json:"object"`
	ThreadID    string         `json:"thread_id,omitempty"`
	Status      RunStatus      `json:"status"`
	Input       []InputMessage `json:"input"`
	Output      []Message      `json:"output,omitempty"`
	LastError   *LastError     `json:"last_error,omitempty"`
	Usage       *Usage         `json:"usage,omitempty"`
	Config      *RunConfig     `json:"config,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   int64          `json:"created_at"`
	StartedAt   *int64         `json:"started_at,omitempty"`
	CompletedAt *int64         `json:"completed_at,omitempty"`
	CancelledAt *int64         `json:"cancelled_at,omitempty"`
	FailedAt    *int64         `json:"failed_at,omitempty"`
}

// RunPatch describes a shallow, field-level update to a Run record. A nil
// field means "leave unchanged"; UpdateRun must never alter ID, Object,
// CreatedAt, or Input (invariant enforced by the store implementations, not
// by this type).
type RunPatch struct {
	Status      *RunStatus
	Output      []Message
	SetOutput   bool
	LastError   *LastError
	Usage       *Usage
	StartedAt   *int64
	CompletedAt *int64
	CancelledAt *int64
	FailedAt    *int64
	Metadata    map[string]any
	SetMetadata bool
}

// Sentinel error kinds. Behavior, not identity, is what callers should rely
// on: use errors.Is against these values.
var (
	// ErrNotFound is returned by GetThread/GetRun when the id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrIllegalArgument is returned for empty ids or ids that would resolve
	// outside the store's base directory.
	ErrIllegalArgument = errors.New("illegal argument")
)
