package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/inkwell/internal/apperr"
	"github.com/starford/inkwell/internal/syncer"
)

const maxBody = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// param returns a decoded URL parameter. Names may carry encoded spaces
// and reserved characters (e.g. My%20Notes).
func param(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// ListNotebooks handles GET /api/notebooks.
//
//	@Summary		List notebooks with their note names
//	@Tags			notebooks
//	@Produce		json
//	@Success		200	{object}	NotebookListResponse
//	@Security		BearerAuth
//	@Router			/notebooks [get]
func (h *Handler) ListNotebooks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, NotebookListResponse{Notebooks: h.svc.ListNotebooks()})
}

// CreateNotebook handles POST /api/notebooks.
//
//	@Summary		Create a notebook
//	@Tags			notebooks
//	@Accept			json
//	@Produce		json
//	@Param			body	body		NameRequest	true	"Notebook name"
//	@Success		201		{object}	NotebookItem
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebooks [post]
func (h *Handler) CreateNotebook(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if !decode(w, r, &req) {
		return
	}
	nb, err := h.svc.CreateNotebook(r.Context(), req.Name)
	if err != nil {
		writeError(w, "create notebook", err)
		return
	}
	writeJSON(w, http.StatusCreated, nb)
}

// RenameNotebook handles PATCH /api/notebooks/{notebook}.
//
//	@Summary		Rename a notebook
//	@Tags			notebooks
//	@Accept			json
//	@Produce		json
//	@Param			notebook	path		string		true	"Notebook name"
//	@Param			body		body		NameRequest	true	"New name"
//	@Success		200			{object}	NotebookItem
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebooks/{notebook} [patch]
func (h *Handler) RenameNotebook(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if !decode(w, r, &req) {
		return
	}
	nb, err := h.svc.RenameNotebook(r.Context(), param(r, "notebook"), req.Name)
	if err != nil {
		writeError(w, "rename notebook", err)
		return
	}
	writeJSON(w, http.StatusOK, nb)
}

// DeleteNotebook handles DELETE /api/notebooks/{notebook}.
//
//	@Summary		Delete a notebook and its notes
//	@Tags			notebooks
//	@Param			notebook	path	string	true	"Notebook name"
//	@Success		204			"Notebook deleted"
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebooks/{notebook} [delete]
func (h *Handler) DeleteNotebook(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteNotebook(r.Context(), param(r, "notebook")); err != nil {
		writeError(w, "delete notebook", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateNote handles POST /api/notebooks/{notebook}/notes.
//
//	@Summary		Create a note, optionally adopting the scratch note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			notebook	path		string				true	"Notebook name"
//	@Param			body		body		CreateNoteRequest	true	"Note to create"
//	@Success		201			{object}	NoteDetail
//	@Failure		400			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebooks/{notebook}/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !decode(w, r, &req) {
		return
	}
	note, err := h.svc.CreateNote(r.Context(), param(r, "notebook"), req)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// GetNote handles GET /api/notebooks/{notebook}/notes/{note}.
//
//	@Summary		Get a note with its content
//	@Tags			notes
//	@Produce		json
//	@Param			notebook	path		string	true	"Notebook name"
//	@Param			note		path		string	true	"Note name"
//	@Success		200			{object}	NoteDetail
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebooks/{notebook}/notes/{note} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.svc.GetNote(r.Context(), param(r, "notebook"), param(r, "note"))
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// UpdateNote handles PUT /api/notebooks/{notebook}/notes/{note}.
//
//	@Summary		Replace and save a note's content
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			notebook	path		string				true	"Notebook name"
//	@Param			note		path		string				true	"Note name"
//	@Param			body		body		UpdateNoteRequest	true	"New content"
//	@Success		200			{object}	NoteDetail
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebooks/{notebook}/notes/{note} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req UpdateNoteRequest
	if !decode(w, r, &req) {
		return
	}
	note, err := h.svc.UpdateNote(r.Context(), param(r, "notebook"), param(r, "note"), req.Content)
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// RenameNote handles PATCH /api/notebooks/{notebook}/notes/{note}.
//
//	@Summary		Rename a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			notebook	path		string		true	"Notebook name"
//	@Param			note		path		string		true	"Note name"
//	@Param			body		body		NameRequest	true	"New name"
//	@Success		200			{object}	NoteDetail
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebooks/{notebook}/notes/{note} [patch]
func (h *Handler) RenameNote(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if !decode(w, r, &req) {
		return
	}
	note, err := h.svc.RenameNote(r.Context(), param(r, "notebook"), param(r, "note"), req.Name)
	if err != nil {
		writeError(w, "rename note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notebooks/{notebook}/notes/{note}.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			notebook	path	string	true	"Notebook name"
//	@Param			note		path	string	true	"Note name"
//	@Success		204			"Note deleted"
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebooks/{notebook}/notes/{note} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteNote(r.Context(), param(r, "notebook"), param(r, "note")); err != nil {
		writeError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetOrphan handles GET /api/orphan.
//
//	@Summary		Get the scratch note
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	NoteDetail
//	@Security		BearerAuth
//	@Router			/orphan [get]
func (h *Handler) GetOrphan(w http.ResponseWriter, r *http.Request) {
	note, err := h.svc.Orphan(r.Context())
	if err != nil {
		writeError(w, "get orphan", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// UpdateOrphan handles PUT /api/orphan.
//
//	@Summary		Replace the scratch note's content
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		UpdateNoteRequest	true	"New content"
//	@Success		200		{object}	NoteDetail
//	@Security		BearerAuth
//	@Router			/orphan [put]
func (h *Handler) UpdateOrphan(w http.ResponseWriter, r *http.Request) {
	var req UpdateNoteRequest
	if !decode(w, r, &req) {
		return
	}
	note, err := h.svc.SetOrphan(r.Context(), req.Content)
	if err != nil {
		writeError(w, "update orphan", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// syncFailure is the body of a failed sync or archive run.
type syncFailure struct {
	Error  string         `json:"error"`
	Kind   string         `json:"kind"`
	Report *syncer.Report `json:"report,omitempty"`
}

func (h *Handler) runSync(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context) (syncer.Report, error)) {
	rep, err := fn(r.Context())
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			writeError(w, op, err)
			return
		}
		body := syncFailure{Error: err.Error(), Kind: apperr.KindName(err)}
		if rep.ID != "" {
			body.Report = &rep
		}
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Sync handles POST /api/sync.
//
//	@Summary		Archive, pull, push and reload
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	syncer.Report
//	@Failure		409	{object}	syncFailure	"Merge conflict or sync already running"
//	@Failure		502	{object}	syncFailure
//	@Failure		504	{object}	syncFailure
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, "sync", h.svc.Sync)
}

// Archive handles POST /api/archive.
//
//	@Summary		Commit local changes without contacting the remote
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	syncer.Report
//	@Security		BearerAuth
//	@Router			/archive [post]
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, "archive", h.svc.Archive)
}

// SyncStatus handles GET /api/sync/status.
//
//	@Summary		Current sync state with the last attempt and last success
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	syncer.Status
//	@Security		BearerAuth
//	@Router			/sync/status [get]
func (h *Handler) SyncStatus(w http.ResponseWriter, _ *http.Request) {
	st, err := h.svc.SyncStatus()
	if err != nil {
		writeError(w, "sync status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// SyncHistory handles GET /api/sync/history.
//
//	@Summary		Recent sync runs, newest first
//	@Tags			sync
//	@Produce		json
//	@Param			limit	query	int	false	"Max reports"
//	@Success		200		{array}	syncer.Report
//	@Security		BearerAuth
//	@Router			/sync/history [get]
func (h *Handler) SyncHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	reports, err := h.svc.SyncHistory(limit)
	if err != nil {
		writeError(w, "sync history", err)
		return
	}
	if reports == nil {
		reports = []syncer.Report{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	out := make([]SearchResult, len(results))
	for i, res := range results {
		out[i] = SearchResult{Path: res.Path, Title: res.Title, Snippet: res.Snippet}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: out})
}
