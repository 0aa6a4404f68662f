package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/beacon/internal/store"
	"github.com/btouchard/beacon/internal/task"
)

type transitionRequest struct {
	UserID string `json:"user_id"`
}

type taskView struct {
	ID          string   `json:"id"`
	StoryID     string   `json:"story_id"`
	Status      string   `json:"status"`
	OwnerID     string   `json:"owner_id,omitempty"`
	ClaimedAt   string   `json:"claimed_at,omitempty"`
	CompletedAt string   `json:"completed_at,omitempty"`
	Estimate    int      `json:"estimate,omitempty"`
	Criteria    []string `json:"criteria,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

func viewOf(t *task.Task) taskView {
	return taskView{
		ID:          t.ID,
		StoryID:     t.StoryID,
		Status:      string(t.Status),
		OwnerID:     t.OwnerID,
		ClaimedAt:   formatTime(t.ClaimedAt),
		CompletedAt: formatTime(t.CompletedAt),
		Estimate:    t.Estimate,
		Criteria:    t.Criteria,
		CreatedAt:   formatTime(t.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// transitionHandler applies one ownership operation and surfaces the outcome
// synchronously: a rejected transition is an authorization-relevant result,
// returned with a specific code, never retried here.
func transitionHandler(deps *Deps, op task.Op) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req transitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
			writeError(w, http.StatusBadRequest, "bad_request", "user_id is required")
			return
		}

		var (
			t   *task.Task
			err error
		)
		switch op {
		case task.OpClaim:
			t, err = deps.Service.Claim(id, req.UserID)
		case task.OpStart:
			t, err = deps.Service.Start(id, req.UserID)
		case task.OpComplete:
			t, err = deps.Service.Complete(id, req.UserID)
		case task.OpRelease:
			t, err = deps.Service.Release(id, req.UserID)
		}
		if err != nil {
			writeTransitionError(w, err)
			return
		}

		slog.Info("task transition",
			"op", op,
			"task_id", id,
			"user_id", req.UserID,
			"status", t.Status)
		writeJSON(w, http.StatusOK, viewOf(t))
	}
}

func writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, task.ErrAlreadyOwned):
		writeError(w, http.StatusConflict, "already_owned", "task is already owned")
	case errors.Is(err, task.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not_owner", "only the current owner may do this")
	case errors.Is(err, task.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, "invalid_transition", "operation not allowed from the current status")
	case errors.Is(err, task.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "task not found")
	default:
		slog.Error("transition failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func getTaskHandler(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := deps.Store.GetTask(chi.URLParam(r, "id"))
		if errors.Is(err, task.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}
		writeJSON(w, http.StatusOK, viewOf(t))
	}
}

func listTasksHandler(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))

		tasks, err := deps.Store.ListTasks(store.TaskFilter{
			StoryID: q.Get("story"),
			Status:  task.Status(q.Get("status")),
			OwnerID: q.Get("owner"),
			Limit:   limit,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}

		views := make([]taskView, 0, len(tasks))
		for i := range tasks {
			views = append(views, viewOf(&tasks[i]))
		}
		writeJSON(w, http.StatusOK, map[string]any{"tasks": views})
	}
}

func taskEventsHandler(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		events, err := deps.Store.GetEvents(chi.URLParam(r, "id"), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}

		type eventView struct {
			Type      string          `json:"type"`
			ActorID   string          `json:"actor_id,omitempty"`
			Payload   json.RawMessage `json:"payload,omitempty"`
			CreatedAt string          `json:"created_at"`
		}
		views := make([]eventView, 0, len(events))
		for _, e := range events {
			views = append(views, eventView{
				Type:      e.Type,
				ActorID:   e.ActorID,
				Payload:   json.RawMessage(e.Payload),
				CreatedAt: formatTime(e.CreatedAt),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": views})
	}
}

func getStoryHandler(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Store.GetStory(chi.URLParam(r, "id"))
		if errors.Is(err, store.ErrNoRecord) {
			writeError(w, http.StatusNotFound, "not_found", "story not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"id":          st.ID,
			"title":       st.Title,
			"description": st.Description,
		})
	}
}

func getUserHandler(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := deps.Store.GetUser(chi.URLParam(r, "id"))
		if errors.Is(err, store.ErrNoRecord) {
			writeError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"id":           u.ID,
			"email":        u.Email,
			"display_name": u.DisplayName,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writing response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}
