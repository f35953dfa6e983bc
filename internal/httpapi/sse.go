package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/agentruntime/core/runtime/agent/stream"
)

// SSESink is the chi host binding's stream.Sink implementation: it frames
// every Event as `event: <name>\ndata: <json>\n\n` and flushes after each
// write, matching the teacher-adjacent SSE handler convention (set
// Content-Type/Cache-Control/Connection once, then write-and-flush per
// event) rather than buffering the response.
type SSESink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSESink sets the SSE response headers and returns a Sink that writes
// to w. Returns an error if w does not support flushing, since an
// unflushed SSE response is indistinguishable from a hung connection to
// the client.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("httpapi: response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSESink{w: w, flusher: flusher}, nil
}

// Send writes one SSE frame. done is special-cased: its wire payload is
// the literal bytes "[DONE]", not a JSON document (stream.NewDone's doc
// comment).
func (s *SSESink) Send(ctx context.Context, event stream.Event) error {
	var data []byte
	if event.Name() == stream.EventDone {
		data = []byte(fmt.Sprintf("%v", event.Payload()))
	} else {
		b, err := json.Marshal(event.Payload())
		if err != nil {
			return fmt.Errorf("httpapi: marshal %s payload: %w", event.Name(), err)
		}
		data = b
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Name(), data); err != nil {
		return fmt.Errorf("httpapi: write SSE frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// Close is a no-op: the chi handler releases the connection itself when
// the request handler returns.
func (s *SSESink) Close(ctx context.Context) error { return nil }

var _ stream.Sink = (*SSESink)(nil)
