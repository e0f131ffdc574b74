package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/inkwell/internal/apperr"
	"github.com/starford/inkwell/internal/events"
	"github.com/starford/inkwell/internal/models"
	"github.com/starford/inkwell/internal/syncer"
)

// NoteContent returns the note content, reading it from disk on first use.
func (m *Manager) NoteContent(ctx context.Context, n *models.Note) (string, error) {
	if content, ok := n.Content(); ok {
		return content, nil
	}
	path := n.Path()
	if path == "" {
		content, _ := n.Content()
		return content, nil
	}
	data, err := m.backend.ReadNote(ctx, path)
	if err != nil {
		return "", err
	}
	return n.LoadContent(data), nil
}

// SaveNote writes the note's authoritative content when it has changed.
func (m *Manager) SaveNote(ctx context.Context, n *models.Note) error {
	const op = "notes.save-note"
	if n.IsOrphan() {
		return apperr.Validation(op, "the scratch note has no file; create a note from it first")
	}
	if !n.Changed() {
		return nil
	}
	nb := n.Notebook()
	payload := events.EntityPayload{Notebook: nb.Name(), Note: n.Name()}
	content := n.AuthoritativeContent()
	if err := m.backend.WriteNote(ctx, n.Path(), content); err != nil {
		if !errors.Is(err, apperr.ErrPersistence) {
			return err
		}
		payload.Error = err.Error()
		m.publish(events.NoteSaveFailed, payload)
		m.notifier.Fatal(fmt.Sprintf("could not save note %q; copy its content before reloading", nb.Name()+"/"+n.Name()), err)
		return err
	}
	n.MarkSaved(content)
	m.publish(events.NoteSaved, payload)
	return nil
}

// SaveAll saves every changed note and returns all failures joined.
func (m *Manager) SaveAll(ctx context.Context) error {
	var errs []error
	for _, nb := range m.Notebooks() {
		for _, n := range nb.Notes() {
			if !n.Changed() {
				continue
			}
			if err := m.SaveNote(ctx, n); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Sync saves changed notes, runs the sync protocol on the backend and reloads
// the tree from the merged index. Structural mutations wait for the whole run.
// A failed run still reloads when the pull already updated the files.
func (m *Manager) Sync(ctx context.Context) (syncer.Report, error) {
	if !m.HasDirectory() {
		return syncer.Report{}, apperr.Validation("notes.sync", "no note directory configured")
	}
	if !m.syncing.CompareAndSwap(false, true) {
		return syncer.Report{}, apperr.Wrap(apperr.ErrSyncInProgress, "notes.sync", errors.New("another run is active"))
	}
	defer m.syncing.Store(false)
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.SaveAll(ctx); err != nil {
		return syncer.Report{}, err
	}
	rep, err := m.backend.Sync(ctx)
	if err != nil && !rep.LocalUpdated {
		return rep, err
	}
	// The backend queues a reload request for Watch; this reload makes the
	// tree current before Sync returns, so drop the queued one.
	select {
	case <-m.backend.ReloadRequests():
	default:
	}
	if lerr := m.load(ctx); lerr != nil {
		m.logger.Error("notes: reload after sync failed", slog.String("error", lerr.Error()))
		m.notifier.Warn("sync finished but the note index could not be reloaded", lerr)
		return rep, errors.Join(err, lerr)
	}
	return rep, err
}

// Archive saves changed notes and commits them without touching the remote.
func (m *Manager) Archive(ctx context.Context) (syncer.Report, error) {
	if !m.HasDirectory() {
		return syncer.Report{}, apperr.Validation("notes.archive", "no note directory configured")
	}
	if !m.syncing.CompareAndSwap(false, true) {
		return syncer.Report{}, apperr.Wrap(apperr.ErrSyncInProgress, "notes.archive", errors.New("another run is active"))
	}
	defer m.syncing.Store(false)
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.SaveAll(ctx); err != nil {
		return syncer.Report{}, err
	}
	return m.backend.Archive(ctx)
}
