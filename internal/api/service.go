package api

import (
	"context"

	"github.com/starford/inkwell/internal/backend"
	"github.com/starford/inkwell/internal/models"
	"github.com/starford/inkwell/internal/notes"
	"github.com/starford/inkwell/internal/parser"
	"github.com/starford/inkwell/internal/search"
	"github.com/starford/inkwell/internal/storage"
	"github.com/starford/inkwell/internal/syncer"
)

// Service adapts the note manager and backend to the API's response types.
type Service struct {
	notes   *notes.Manager
	backend *backend.Service
}

// NewService creates a new API service.
func NewService(m *notes.Manager, b *backend.Service) *Service {
	return &Service{notes: m, backend: b}
}

// ListNotebooks returns every notebook with its note names.
func (s *Service) ListNotebooks() []NotebookItem {
	nbs := s.notes.Notebooks()
	out := make([]NotebookItem, len(nbs))
	for i, nb := range nbs {
		out[i] = notebookItem(nb)
	}
	return out
}

// CreateNotebook adds an empty notebook.
func (s *Service) CreateNotebook(ctx context.Context, name string) (NotebookItem, error) {
	nb, err := s.notes.CreateNotebook(ctx, name)
	if err != nil {
		return NotebookItem{}, err
	}
	return notebookItem(nb), nil
}

// RenameNotebook renames a notebook.
func (s *Service) RenameNotebook(ctx context.Context, name, newName string) (NotebookItem, error) {
	if err := s.notes.RenameNotebook(ctx, name, newName); err != nil {
		return NotebookItem{}, err
	}
	nb, err := s.notes.Notebook(newName)
	if err != nil {
		return NotebookItem{}, err
	}
	return notebookItem(nb), nil
}

// DeleteNotebook removes a notebook.
func (s *Service) DeleteNotebook(ctx context.Context, name string) error {
	return s.notes.DeleteNotebook(ctx, name)
}

// GetNote returns a note with its content.
func (s *Service) GetNote(ctx context.Context, notebook, name string) (*NoteDetail, error) {
	n, err := s.notes.Note(notebook, name)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, n)
}

// CreateNote adds a note. Non-empty content is saved right away.
func (s *Service) CreateNote(ctx context.Context, notebook string, req CreateNoteRequest) (*NoteDetail, error) {
	n, err := s.notes.CreateNote(ctx, notebook, req.Name, req.FromOrphan)
	if err != nil {
		return nil, err
	}
	if req.Content != nil {
		n.SetContent(*req.Content)
	}
	if n.Changed() {
		if err := s.notes.SaveNote(ctx, n); err != nil {
			return nil, err
		}
	}
	return s.detail(ctx, n)
}

// UpdateNote replaces a note's content and saves it.
func (s *Service) UpdateNote(ctx context.Context, notebook, name, content string) (*NoteDetail, error) {
	n, err := s.notes.Note(notebook, name)
	if err != nil {
		return nil, err
	}
	n.SetContent(content)
	if err := s.notes.SaveNote(ctx, n); err != nil {
		return nil, err
	}
	return s.detail(ctx, n)
}

// RenameNote renames a note.
func (s *Service) RenameNote(ctx context.Context, notebook, name, newName string) (*NoteDetail, error) {
	if err := s.notes.RenameNote(ctx, notebook, name, newName); err != nil {
		return nil, err
	}
	return s.GetNote(ctx, notebook, newName)
}

// DeleteNote removes a note.
func (s *Service) DeleteNote(ctx context.Context, notebook, name string) error {
	return s.notes.DeleteNote(ctx, notebook, name)
}

// Orphan returns the scratch note.
func (s *Service) Orphan(ctx context.Context) (*NoteDetail, error) {
	return s.detail(ctx, s.notes.OrphanNote())
}

// SetOrphan replaces the scratch note's content. It is kept in memory only.
func (s *Service) SetOrphan(ctx context.Context, content string) (*NoteDetail, error) {
	n := s.notes.OrphanNote()
	n.SetContent(content)
	return s.detail(ctx, n)
}

// Sync runs the sync protocol.
func (s *Service) Sync(ctx context.Context) (syncer.Report, error) {
	return s.notes.Sync(ctx)
}

// Archive commits local changes.
func (s *Service) Archive(ctx context.Context) (syncer.Report, error) {
	return s.notes.Archive(ctx)
}

// SyncStatus returns the sync state and history.
func (s *Service) SyncStatus() (syncer.Status, error) {
	return s.backend.Status()
}

// SyncHistory returns recent sync reports.
func (s *Service) SyncHistory(n int) ([]syncer.Report, error) {
	return s.backend.History(n)
}

// Search delegates full-text search to the backend.
func (s *Service) Search(query string, limit int) ([]search.Result, error) {
	return s.backend.Search(query, limit)
}

func (s *Service) detail(ctx context.Context, n *models.Note) (*NoteDetail, error) {
	content, err := s.notes.NoteContent(ctx, n)
	if err != nil {
		return nil, err
	}
	d := &NoteDetail{
		Name:     n.Name(),
		Path:     n.Path(),
		Content:  content,
		Checksum: storage.Checksum([]byte(content)),
		Changed:  n.Changed(),
		Tags:     []string{},
	}
	if nb := n.Notebook(); nb != nil {
		d.Notebook = nb.Name()
	}
	if res, err := parser.Parse([]byte(content)); err == nil {
		d.Title = res.Title
		if res.Tags != nil {
			d.Tags = res.Tags
		}
	}
	return d, nil
}

func notebookItem(nb *models.Notebook) NotebookItem {
	return NotebookItem{Name: nb.Name(), Dir: nb.Dir(), Notes: nb.NoteNames()}
}
