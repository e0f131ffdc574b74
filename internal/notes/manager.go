// Package notes holds the live notebook tree and is its single mutator.
//
// Structural changes are two-phase: the new index is staged on a copy of the
// current projection, the backend applies the file change and persists the
// staged index, and only then is the change committed into the tree and
// announced. A failed persist leaves the tree at its last known good state.
package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/starford/inkwell/internal/apperr"
	"github.com/starford/inkwell/internal/backend"
	"github.com/starford/inkwell/internal/events"
	"github.com/starford/inkwell/internal/index"
	"github.com/starford/inkwell/internal/models"
	"github.com/starford/inkwell/internal/syncer"
)

// Backend is the privileged side that owns the note directory.
type Backend interface {
	LoadIndex(ctx context.Context) (index.Index, error)
	ReadNote(ctx context.Context, path string) (string, error)
	WriteNote(ctx context.Context, path, content string) error
	Apply(ctx context.Context, m backend.Mutation) (backend.Result, error)
	Sync(ctx context.Context) (syncer.Report, error)
	Archive(ctx context.Context) (syncer.Report, error)
	ReloadRequests() <-chan struct{}
}

// Notifier shows alerts to the user.
type Notifier interface {
	Fatal(msg string, err error)
	Warn(msg string, err error)
}

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(ev events.Event)
}

// Manager owns the live tree.
type Manager struct {
	backend  Backend
	notifier Notifier
	pub      Publisher
	logger   *slog.Logger

	// opMu serialises structural mutations, reloads and sync runs.
	opMu sync.Mutex
	// syncing rejects a second sync or archive instead of queueing it on opMu.
	syncing atomic.Bool

	mu     sync.RWMutex
	tree   *models.Tree
	orphan *models.Note
	hasDir bool
	loaded bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithNotifier sets the alert sink.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithPublisher sets the event sink.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.pub = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager returns a Manager with an empty tree. Call Load to populate it.
func NewManager(b Backend, opts ...Option) *Manager {
	m := &Manager{
		backend: b,
		logger:  slog.Default(),
		tree:    models.NewTree(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.notifier == nil {
		m.notifier = logNotifier{m.logger}
	}
	return m
}

func (m *Manager) publish(typ string, data any) {
	if m.pub != nil {
		m.pub.Publish(events.Event{Type: typ, Data: data})
	}
}

// Load rebuilds the tree from the index on disk. Without a note directory it
// leaves an empty tree and returns nil. Unsaved notes that still exist after
// the reload are carried over; others are reported and dropped.
func (m *Manager) Load(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.load(ctx)
}

// load is Load for callers already holding opMu.
func (m *Manager) load(ctx context.Context) error {
	ix, err := m.backend.LoadIndex(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if ix == nil {
		m.hasDir = false
		m.tree = models.NewTree()
		m.mu.Unlock()
		m.logger.Info("notes: no note directory configured")
		return nil
	}
	next := models.FromSnapshot(ix)
	dropped := carryOver(m.tree, next)
	m.tree = next
	m.hasDir = true
	first := !m.loaded
	m.loaded = true
	m.mu.Unlock()

	for _, path := range dropped {
		m.notifier.Warn(fmt.Sprintf("unsaved changes to %s were discarded because the note no longer exists", path), nil)
	}
	typ := events.IndexReloaded
	if first {
		typ = events.IndexLoaded
	}
	m.logger.Info("notes: index loaded", slog.Int("notebooks", next.Len()), slog.Bool("first", first))
	m.publish(typ, ix)
	return nil
}

// carryOver moves changed notes of prev into next where the same notebook and
// note exist, returning the paths of changed notes that could not be kept.
func carryOver(prev, next *models.Tree) []string {
	var dropped []string
	for _, nb := range prev.Notebooks() {
		for _, n := range nb.Notes() {
			if !n.Changed() {
				continue
			}
			target, ok := next.Notebook(nb.Name())
			if !ok {
				dropped = append(dropped, n.Path())
				continue
			}
			name := n.Name()
			if _, ok := target.Note(name); !ok {
				dropped = append(dropped, n.Path())
				continue
			}
			target.Adopt(n, name)
		}
	}
	return dropped
}

// Watch reloads the tree whenever the backend asks for it, until ctx ends.
func (m *Manager) Watch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.backend.ReloadRequests():
			if err := m.Load(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				m.logger.Error("notes: reload failed", slog.String("error", err.Error()))
				m.notifier.Warn("could not reload the note index", err)
			}
		}
	}
}

// HasDirectory reports whether a note directory is configured.
func (m *Manager) HasDirectory() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasDir
}

// Notebooks returns the notebooks ordered by name.
func (m *Manager) Notebooks() []*models.Notebook {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Notebooks()
}

// Notebook looks up a notebook.
func (m *Manager) Notebook(name string) (*models.Notebook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	nb, ok := m.tree.Notebook(name)
	if !ok {
		return nil, notFound("notes.notebook", "notebook", name)
	}
	return nb, nil
}

// Note looks up a note inside a notebook.
func (m *Manager) Note(notebook, name string) (*models.Note, error) {
	nb, err := m.Notebook(notebook)
	if err != nil {
		return nil, err
	}
	n, ok := nb.Note(name)
	if !ok {
		return nil, notFound("notes.note", "note", notebook+"/"+name)
	}
	return n, nil
}

// Snapshot returns the current notebook → note names projection.
func (m *Manager) Snapshot() index.Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return index.Index(m.tree.Snapshot())
}

// OrphanNote returns the scratch note. The same note is returned until it is
// adopted by a notebook; after that a fresh one is created.
func (m *Manager) OrphanNote() *models.Note {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orphan == nil || !m.orphan.IsOrphan() || m.orphan.Name() != "" {
		m.orphan = models.NewOrphan()
	}
	return m.orphan
}

func notFound(op, what, name string) error {
	return &apperr.Error{Kind: apperr.ErrNotFound, Op: op, Msg: fmt.Sprintf("%s %q not found", what, name)}
}

// failed reports a mutation error. Errors raised before anything reached the
// disk are returned as they are; persistence failures are announced and
// escalated because memory and disk may now disagree.
func (m *Manager) failed(typ string, payload events.EntityPayload, alert string, err error) error {
	if !errors.Is(err, apperr.ErrPersistence) {
		return err
	}
	payload.Error = err.Error()
	m.publish(typ, payload)
	m.notifier.Fatal(alert, err)
	return err
}

type logNotifier struct{ logger *slog.Logger }

func (l logNotifier) Fatal(msg string, err error) {
	l.logger.Error("notes: "+msg, slog.Any("error", err))
}

func (l logNotifier) Warn(msg string, err error) {
	l.logger.Warn("notes: "+msg, slog.Any("error", err))
}
