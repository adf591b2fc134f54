package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"
	"github.com/wolfeidau/nosferatu/internal/dispatch"
	httpmw "github.com/wolfeidau/nosferatu/internal/http"
)

var errStateMissing = errors.New("request state missing")

type healthResponse struct {
	Status string `json:"status"`
}

type createTaskRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at"`
}

type createTaskResponse struct {
	Status string `json:"status"`
}

type handlers struct {
	pages *Renderer
	langs *Languages
	now   func() time.Time
}

func health(w http.ResponseWriter, r *http.Request) {
	httpmw.WriteJSON(w, http.StatusOK, healthResponse{Status: "success"})
}

func (h *handlers) page(name string, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, ok := httpmw.StateFromContext(r.Context())
		if !ok {
			httpmw.WriteError(w, r, errStateMissing)
			return
		}
		h.pages.Write(w, r, state, status, name, h.langs.Resolve(r))
	}
}

func fault(w http.ResponseWriter, r *http.Request) {
	panic("panic like it's 1999")
}

// createTask queues a RunTask for the dispatcher. The body is optional; when
// present it may carry the time the task was scheduled for. Enqueue blocks
// while the queue is full.
func (h *handlers) createTask(w http.ResponseWriter, r *http.Request) {
	state, ok := httpmw.StateFromContext(r.Context())
	if !ok {
		httpmw.WriteError(w, r, errStateMissing)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpmw.WriteJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": http.StatusText(http.StatusRequestEntityTooLarge)})
			return
		}
		httpmw.WriteError(w, r, fmt.Errorf("failed to read body: %w", err))
		return
	}

	scheduledAt := h.now()
	if len(bytes.TrimSpace(body)) > 0 {
		var req createTaskRequest
		if err := json.Unmarshal(body, &req); err != nil {
			httpmw.WriteError(w, r, fmt.Errorf("failed to decode task request: %w", err))
			return
		}
		if req.ScheduledAt != nil {
			scheduledAt = *req.ScheduledAt
		}
	}

	msg := dispatch.NewRunTask(scheduledAt)
	if err := state.Tasks.Enqueue(r.Context(), msg); err != nil {
		httpmw.WriteError(w, r, fmt.Errorf("failed to enqueue task: %w", err))
		return
	}

	hlog.FromRequest(r).Debug().Str("message", msg.String()).Msg("task queued")
	httpmw.WriteJSON(w, http.StatusAccepted, createTaskResponse{Status: "queued"})
}
