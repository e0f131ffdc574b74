package notes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/inkwell/internal/apperr"
	"github.com/starford/inkwell/internal/backend"
	"github.com/starford/inkwell/internal/events"
	"github.com/starford/inkwell/internal/index"
	"github.com/starford/inkwell/internal/models"
)

const errUnsaved = "cannot rename: unsaved changes exist"

// CreateNotebook adds an empty notebook.
func (m *Manager) CreateNotebook(ctx context.Context, name string) (*models.Notebook, error) {
	const op = "notes.create-notebook"
	if err := validateName(op, "notebook", name); err != nil {
		return nil, err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	err := m.checkNewNotebook(op, name, "")
	staged := index.Index(m.tree.Snapshot()).WithNotebook(name)
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	payload := events.EntityPayload{Notebook: name}
	if _, err := m.backend.Apply(ctx, backend.Mutation{Op: backend.OpCreateNotebook, Notebook: name, Index: staged}); err != nil {
		return nil, m.failed(events.NotebookCreateFailed, payload,
			fmt.Sprintf("could not create notebook %q; reload the notes to recover", name), err)
	}

	nb := models.NewNotebook(name)
	m.mu.Lock()
	m.tree.Add(nb)
	m.mu.Unlock()
	m.publish(events.NotebookCreated, payload)
	return nb, nil
}

// checkNewNotebook validates that name can be used for a notebook; except is
// the notebook being renamed. Callers hold m.mu.
func (m *Manager) checkNewNotebook(op, name, except string) error {
	if !m.hasDir {
		return apperr.Validation(op, "no note directory configured")
	}
	if _, ok := m.tree.Notebook(name); ok && name != except {
		return apperr.Duplicate(op, "notebook", name)
	}
	if m.tree.HasSlugCollision(name, except) {
		return apperr.Validation(op, fmt.Sprintf("notebook %q would share a directory with an existing notebook", name))
	}
	return nil
}

// CreateNote adds a note to notebook. With fromOrphan the current orphan note
// is adopted, keeping its content. Otherwise an existing file for the derived
// path is left on disk and loaded lazily; a new note starts empty.
func (m *Manager) CreateNote(ctx context.Context, notebook, name string, fromOrphan bool) (*models.Note, error) {
	const op = "notes.create-note"
	if err := validateName(op, "note", name); err != nil {
		return nil, err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	nb, staged, err := m.stageNote(op, notebook, name, "")
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	staged = staged.WithNote(notebook, name)

	payload := events.EntityPayload{Notebook: notebook, Note: name}
	res, err := m.backend.Apply(ctx, backend.Mutation{Op: backend.OpCreateNote, Notebook: notebook, Note: name, Index: staged})
	if err != nil {
		return nil, m.failed(events.NoteCreateFailed, payload,
			fmt.Sprintf("could not create note %q in %q; reload the notes to recover", name, notebook), err)
	}

	var n *models.Note
	if fromOrphan {
		n = m.OrphanNote()
		nb.Adopt(n, name)
	} else {
		n = nb.AddNote(name)
		if !res.Existed {
			n.MarkSaved("")
		}
	}
	m.publish(events.NoteCreated, payload)
	return n, nil
}

// stageNote resolves notebook and checks that name is free in it; except is
// the note being renamed. Callers hold m.mu.
func (m *Manager) stageNote(op, notebook, name, except string) (*models.Notebook, index.Index, error) {
	if !m.hasDir {
		return nil, nil, apperr.Validation(op, "no note directory configured")
	}
	nb, ok := m.tree.Notebook(notebook)
	if !ok {
		return nil, nil, notFound(op, "notebook", notebook)
	}
	if _, ok := nb.Note(name); ok && name != except {
		return nil, nil, apperr.Duplicate(op, "note", name)
	}
	if nb.HasSlugCollision(name, except) {
		return nil, nil, apperr.Validation(op, fmt.Sprintf("note %q would share a file with an existing note", name))
	}
	return nb, index.Index(m.tree.Snapshot()), nil
}

// RenameNotebook renames a notebook and its directory. It is refused while
// any of its notes has unsaved changes.
func (m *Manager) RenameNotebook(ctx context.Context, name, newName string) error {
	const op = "notes.rename-notebook"
	if err := validateName(op, "notebook", newName); err != nil {
		return err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	nb, ok := m.tree.Notebook(name)
	var err error
	switch {
	case !ok:
		err = notFound(op, "notebook", name)
	case name == newName:
	case nb.HasChangedNotes():
		err = apperr.Precondition(op, errUnsaved)
	default:
		err = m.checkNewNotebook(op, newName, name)
	}
	staged := index.Index(m.tree.Snapshot()).RenameNotebook(name, newName)
	m.mu.RUnlock()
	if err != nil || name == newName {
		return err
	}

	payload := events.EntityPayload{Notebook: name, NewName: newName}
	if _, err := m.backend.Apply(ctx, backend.Mutation{Op: backend.OpRenameNotebook, Notebook: name, NewName: newName, Index: staged}); err != nil {
		return m.failed(events.NotebookRenameFailed, payload,
			fmt.Sprintf("could not rename notebook %q to %q; reload the notes to recover", name, newName), err)
	}

	m.mu.Lock()
	m.tree.Rename(name, newName)
	m.mu.Unlock()
	m.publish(events.NotebookRenamed, payload)
	return nil
}

// RenameNote renames a note and its file. It is refused while the note has
// unsaved changes.
func (m *Manager) RenameNote(ctx context.Context, notebook, name, newName string) error {
	const op = "notes.rename-note"
	if err := validateName(op, "note", newName); err != nil {
		return err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	nb, staged, err := m.stageNote(op, notebook, newName, name)
	var n *models.Note
	if err == nil {
		var ok bool
		if n, ok = nb.Note(name); !ok {
			err = notFound(op, "note", notebook+"/"+name)
		}
	}
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	if name == newName {
		return nil
	}
	if n.Changed() {
		return apperr.Precondition(op, errUnsaved)
	}
	staged = staged.RenameNote(notebook, name, newName)

	payload := events.EntityPayload{Notebook: notebook, Note: name, NewName: newName}
	if _, err := m.backend.Apply(ctx, backend.Mutation{Op: backend.OpRenameNote, Notebook: notebook, Note: name, NewName: newName, Index: staged}); err != nil {
		return m.failed(events.NoteRenameFailed, payload,
			fmt.Sprintf("could not rename note %q to %q; reload the notes to recover", name, newName), err)
	}

	nb.RenameNote(name, newName)
	m.publish(events.NoteRenamed, payload)
	return nil
}

// DeleteNotebook removes a notebook and its directory. Unsaved changes are
// discarded with a warning.
func (m *Manager) DeleteNotebook(ctx context.Context, name string) error {
	const op = "notes.delete-notebook"

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	nb, ok := m.tree.Notebook(name)
	staged := index.Index(m.tree.Snapshot()).WithoutNotebook(name)
	m.mu.RUnlock()
	if !ok {
		return notFound(op, "notebook", name)
	}
	if nb.HasChangedNotes() {
		m.notifier.Warn(fmt.Sprintf("notebook %q had unsaved changes; they are discarded", name), nil)
	}

	payload := events.EntityPayload{Notebook: name}
	m.publish(events.NotebookDeleting, payload)
	if _, err := m.backend.Apply(ctx, backend.Mutation{Op: backend.OpDeleteNotebook, Notebook: name, Index: staged}); err != nil {
		return m.failed(events.NotebookDeleteFailed, payload,
			fmt.Sprintf("could not delete notebook %q; restore its files manually from git history if they are missing", name), err)
	}

	m.mu.Lock()
	m.tree.Remove(name)
	m.mu.Unlock()
	m.publish(events.NotebookDeleted, payload)
	return nil
}

// DeleteNote removes a note and its file.
func (m *Manager) DeleteNote(ctx context.Context, notebook, name string) error {
	const op = "notes.delete-note"

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	nb, ok := m.tree.Notebook(notebook)
	var n *models.Note
	if ok {
		n, ok = nb.Note(name)
	}
	staged := index.Index(m.tree.Snapshot()).WithoutNote(notebook, name)
	m.mu.RUnlock()
	if !ok {
		return notFound(op, "note", notebook+"/"+name)
	}
	if n.Changed() {
		m.notifier.Warn(fmt.Sprintf("note %q had unsaved changes; they are discarded", notebook+"/"+name), nil)
	}

	payload := events.EntityPayload{Notebook: notebook, Note: name}
	m.publish(events.NoteDeleting, payload)
	if _, err := m.backend.Apply(ctx, backend.Mutation{Op: backend.OpDeleteNote, Notebook: notebook, Note: name, Index: staged}); err != nil {
		return m.failed(events.NoteDeleteFailed, payload,
			fmt.Sprintf("could not delete note %q; restore it manually from git history if it is missing", notebook+"/"+name), err)
	}

	nb.Detach(name)
	m.publish(events.NoteDeleted, payload)
	m.logger.Debug("notes: deleted", slog.String("notebook", notebook), slog.String("note", name))
	return nil
}
