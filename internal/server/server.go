// Package server exposes the Beacon HTTP surface: the ownership mutation
// API, the read APIs consumed by identity resolution, and the SSE event
// stream.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/beacon/internal/auth"
	"github.com/btouchard/beacon/internal/hub"
	"github.com/btouchard/beacon/internal/store"
	"github.com/btouchard/beacon/internal/task"
)

// Deps holds shared dependencies injected into the handlers.
type Deps struct {
	Service  *task.Service
	Store    store.Store
	Hub      *hub.Hub
	Verifier *auth.Verifier

	// MCP, when set, is mounted at /mcp behind the same bearer auth as
	// the rest of the API.
	MCP http.Handler
}

// New builds the router.
func New(deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(securityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(deps.Verifier))

		r.Get("/events", hub.SSEHandler(deps.Hub))

		if deps.MCP != nil {
			r.Handle("/mcp", deps.MCP)
		}

		r.Route("/api", func(r chi.Router) {
			r.Post("/tasks/{id}/claim", transitionHandler(deps, task.OpClaim))
			r.Post("/tasks/{id}/start", transitionHandler(deps, task.OpStart))
			r.Post("/tasks/{id}/complete", transitionHandler(deps, task.OpComplete))
			r.Post("/tasks/{id}/release", transitionHandler(deps, task.OpRelease))

			r.Get("/tasks", listTasksHandler(deps))
			r.Get("/tasks/{id}", getTaskHandler(deps))
			r.Get("/tasks/{id}/events", taskEventsHandler(deps))
			r.Get("/stories/{id}", getStoryHandler(deps))
			r.Get("/users/{id}", getUserHandler(deps))
		})
	})

	return r
}
