// Package httpapi is the optional, concrete HTTP host binding for the
// runtime core: a chi router mapping the seven routes of the external
// interface onto a handlers.Handlers instance. The core package tree
// (runtime/agent/*) never imports net/http; this package is where that
// boundary is crossed.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/agentruntime/core/runtime/agent/handlers"
	"github.com/agentruntime/core/runtime/agent/store"
)

// createRunInput is the wire shape of CreateRunInput (spec §6).
type createRunInput struct {
	ThreadID string `json:"thread_id,omitempty"`
	Input    struct {
		Messages []store.InputMessage `json:"messages"`
	} `json:"input"`
	Config   *store.RunConfig `json:"config,omitempty"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// NewRouter builds a chi.Router exposing the seven routes under /api/v1,
// backed by h.
func NewRouter(h *handlers.Handlers) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/threads", createThread(h))
		r.Get("/threads/{id}", getThread(h))
		r.Post("/runs", createRun(h))
		r.Post("/runs/stream", streamRun(h))
		r.Post("/runs/wait", waitRun(h))
		r.Get("/runs/{id}", getRun(h))
		r.Post("/runs/{id}/cancel", cancelRun(h))
	})
	return r
}

func createThread(h *handlers.Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Metadata map[string]any `json:"metadata,omitempty"`
		}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
		}
		proj, err := h.CreateThread(r.Context(), body.Metadata)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, proj)
	}
}

func getThread(h *handlers.Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		th, err := h.GetThread(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, th)
	}
}

func createRun(h *handlers.Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in createRunInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		run, err := h.AsyncRun(r.Context(), in.ThreadID, in.Input.Messages, in.Config, in.Metadata)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func waitRun(h *handlers.Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in createRunInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		run, err := h.SyncRun(r.Context(), in.ThreadID, in.Input.Messages, in.Config, in.Metadata)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func streamRun(h *handlers.Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in createRunInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sink, err := NewSSESink(w)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		// StreamRun's own error is already reported to the client via the
		// thread.run.failed/done frames; nothing left to write here.
		_ = h.StreamRun(r.Context(), sink, in.ThreadID, in.Input.Messages, in.Config, in.Metadata)
	}
}

func getRun(h *handlers.Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := h.GetRun(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func cancelRun(h *handlers.Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := h.CancelRun(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

// statusFor maps the core's sentinel errors to an HTTP status. Spec §6
// permits implementers to map NotFound/IllegalState more precisely than
// the inherited 500 default; this binding takes that option.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrIllegalArgument):
		return http.StatusBadRequest
	case errors.Is(err, handlers.ErrIllegalState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
