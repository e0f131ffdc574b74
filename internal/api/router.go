package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notebooks.
	r.Get("/notebooks", h.ListNotebooks)
	r.Post("/notebooks", h.CreateNotebook)
	r.Patch("/notebooks/{notebook}", h.RenameNotebook)
	r.Delete("/notebooks/{notebook}", h.DeleteNotebook)

	// Notes.
	r.Post("/notebooks/{notebook}/notes", h.CreateNote)
	r.Get("/notebooks/{notebook}/notes/{note}", h.GetNote)
	r.Put("/notebooks/{notebook}/notes/{note}", h.UpdateNote)
	r.Patch("/notebooks/{notebook}/notes/{note}", h.RenameNote)
	r.Delete("/notebooks/{notebook}/notes/{note}", h.DeleteNote)

	// Scratch note.
	r.Get("/orphan", h.GetOrphan)
	r.Put("/orphan", h.UpdateOrphan)

	// Sync.
	r.Post("/sync", h.Sync)
	r.Post("/archive", h.Archive)
	r.Get("/sync/status", h.SyncStatus)
	r.Get("/sync/history", h.SyncHistory)

	// Search.
	r.Get("/search", h.Search)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
