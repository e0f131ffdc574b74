// Package backend owns the note directory and its git repository. Every
// file and git operation runs on one goroutine, so a sync run never
// interleaves with a structural mutation.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/starford/inkwell/internal/apperr"
	"github.com/starford/inkwell/internal/events"
	"github.com/starford/inkwell/internal/gitsync"
	"github.com/starford/inkwell/internal/index"
	"github.com/starford/inkwell/internal/search"
	"github.com/starford/inkwell/internal/storage"
	"github.com/starford/inkwell/internal/syncer"
)

// ErrClosed is returned for requests issued after Close.
var ErrClosed = errors.New("backend: closed")

// Service is the privileged side of the engine.
type Service struct {
	dir    string
	repo   *gitsync.Repo
	orch   *syncer.Orchestrator
	db     *search.DB
	bus    *events.Bus
	logger *slog.Logger

	syncOpts []syncer.Option

	// set by Prepare, touched only from the loop goroutine afterwards
	fs    *storage.FS
	store *index.Store

	syncing   atomic.Bool
	reqs      chan func()
	reload    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Service.
type Option func(*Service)

// WithRepo sets the git repository mirroring the note directory.
func WithRepo(r *gitsync.Repo) Option {
	return func(s *Service) { s.repo = r }
}

// WithSearch keeps db in step with note writes.
func WithSearch(db *search.DB) Option {
	return func(s *Service) { s.db = db }
}

// WithBus publishes reload requests and file events on bus.
func WithBus(bus *events.Bus) Option {
	return func(s *Service) { s.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithSyncOptions passes options to the sync orchestrator.
func WithSyncOptions(opts ...syncer.Option) Option {
	return func(s *Service) { s.syncOpts = append(s.syncOpts, opts...) }
}

// New starts a Service for dir. An empty dir means no note directory has been
// selected; loads are no-ops and everything else is rejected.
func New(dir string, opts ...Option) *Service {
	s := &Service{
		dir:    dir,
		logger: slog.Default(),
		reqs:   make(chan func()),
		reload: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.repo == nil && dir != "" {
		s.repo = gitsync.New(gitsync.Config{Dir: dir}, nil, s.logger)
	}
	if s.repo != nil {
		orchOpts := append([]syncer.Option{
			syncer.WithLogger(s.logger),
			syncer.WithReloader(func(context.Context) error {
				s.RequestReload()
				return nil
			}),
		}, s.syncOpts...)
		s.orch = syncer.New(s.repo, orchOpts...)
	}
	go s.loop()
	return s
}

func (s *Service) loop() {
	for {
		select {
		case fn := <-s.reqs:
			fn()
		case <-s.done:
			return
		}
	}
}

// do runs fn on the loop goroutine and waits for it. A context that ends
// before the loop accepts the request returns the context error.
func (s *Service) do(ctx context.Context, fn func() error) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	res := make(chan error, 1)
	select {
	case s.reqs <- func() { res <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
	return <-res
}

// Close stops the loop. Pending callers get ErrClosed.
func (s *Service) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Dir returns the note directory, empty when none is configured.
func (s *Service) Dir() string { return s.dir }

// Prepare makes the note directory usable: the repository is initialised or
// cloned, a fresh directory gets an empty index, and the search index is
// brought up to date.
func (s *Service) Prepare(ctx context.Context) error {
	if s.dir == "" {
		return nil
	}
	return s.do(ctx, func() error {
		if err := s.repo.Init(ctx); err != nil {
			return err
		}
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return apperr.Persistence("backend.prepare", err)
		}
		fsys, err := storage.NewFS(s.dir)
		if err != nil {
			return apperr.Persistence("backend.prepare", err)
		}
		s.fs = fsys
		s.store = index.NewStore(fsys)

		if err := s.seedIndex(); err != nil {
			return err
		}
		if s.db != nil {
			if err := search.Sync(s.db, s.fs, s.logger); err != nil {
				s.logger.Warn("backend: search sync failed", slog.String("error", err.Error()))
			}
		}
		s.logger.Info("backend: note directory ready", slog.String("dir", s.fs.Root()))
		return nil
	})
}

// seedIndex writes an empty index into a directory holding no notes yet. A
// directory with notes but no index is left alone so loading reports it.
func (s *Service) seedIndex() error {
	ok, err := s.store.Exists()
	if err != nil {
		return apperr.Persistence("backend.prepare", err)
	}
	if ok {
		return nil
	}
	files, err := s.fs.List("")
	if err != nil {
		return apperr.Persistence("backend.prepare", err)
	}
	if len(files) > 0 {
		s.logger.Warn("backend: note directory has notes but no index", slog.Int("notes", len(files)))
		return nil
	}
	s.logger.Info("backend: seeding empty index")
	return s.store.Save(index.Index{})
}

func (s *Service) ready(op string) error {
	if s.dir == "" {
		return apperr.Validation(op, "no note directory configured")
	}
	if s.fs == nil {
		return apperr.Precondition(op, "note directory not prepared")
	}
	return nil
}

// LoadIndex reads the index file. Without a note directory it returns nil, nil.
func (s *Service) LoadIndex(ctx context.Context) (index.Index, error) {
	if s.dir == "" {
		return nil, nil
	}
	var ix index.Index
	err := s.do(ctx, func() error {
		if err := s.ready("backend.load"); err != nil {
			return err
		}
		var err error
		ix, err = s.store.Load()
		return err
	})
	return ix, err
}

// ReadNote returns the content of the note file at path; a missing file reads
// as empty.
func (s *Service) ReadNote(ctx context.Context, path string) (string, error) {
	var content string
	err := s.do(ctx, func() error {
		if err := s.ready("backend.read"); err != nil {
			return err
		}
		data, err := s.fs.Read(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return apperr.Persistence("backend.read", err)
		}
		content = string(data)
		return nil
	})
	return content, err
}

// WriteNote atomically writes content to path.
func (s *Service) WriteNote(ctx context.Context, path, content string) error {
	return s.do(ctx, func() error {
		if err := s.ready("backend.write"); err != nil {
			return err
		}
		existed, err := s.fs.Exists(path)
		if err != nil {
			return apperr.Persistence("backend.write", err)
		}
		data := []byte(content)
		if err := s.fs.Write(path, data); err != nil {
			return apperr.Persistence("backend.write", err)
		}
		s.indexNote(path, data)
		if s.bus != nil {
			kind := "updated"
			if !existed {
				kind = "created"
			}
			s.bus.PublishFileEvent(kind, path)
		}
		return nil
	})
}

// Search runs a full-text query. Without a search index it returns nothing.
func (s *Service) Search(query string, limit int) ([]search.Result, error) {
	if s.db == nil {
		return nil, nil
	}
	return s.db.Search(query, limit)
}

func (s *Service) indexNote(path string, data []byte) {
	if s.db == nil {
		return
	}
	if err := search.IndexFile(s.db, path, data); err != nil {
		s.logger.Warn("backend: search index failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// reindex brings the search index in line with the directory after
// structural changes.
func (s *Service) reindex() {
	if s.db == nil {
		return
	}
	if err := search.Sync(s.db, s.fs, s.logger); err != nil {
		s.logger.Warn("backend: search sync failed", slog.String("error", err.Error()))
	}
}

// Sync runs the full sync protocol as one request on the loop.
func (s *Service) Sync(ctx context.Context) (syncer.Report, error) {
	return s.runSync(ctx, syncer.KindSync)
}

// Archive stages and commits local changes.
func (s *Service) Archive(ctx context.Context) (syncer.Report, error) {
	return s.runSync(ctx, syncer.KindArchive)
}

// runSync rejects a run while another one is queued or running; a queued run
// would otherwise wait on the loop behind the first.
func (s *Service) runSync(ctx context.Context, kind string) (syncer.Report, error) {
	op := "backend." + kind
	if s.orch == nil {
		return syncer.Report{}, apperr.Validation(op, "no note directory configured")
	}
	if !s.syncing.CompareAndSwap(false, true) {
		return syncer.Report{}, apperr.Wrap(apperr.ErrSyncInProgress, op, fmt.Errorf("state %s", s.orch.State()))
	}
	defer s.syncing.Store(false)

	var rep syncer.Report
	err := s.do(ctx, func() error {
		if err := s.ready(op); err != nil {
			return err
		}
		var err error
		if kind == syncer.KindArchive {
			rep, err = s.orch.Archive(ctx)
		} else {
			rep, err = s.orch.Sync(ctx)
		}
		if err == nil || rep.LocalUpdated {
			s.reindex()
		}
		return err
	})
	s.publishSync(rep, err)
	return rep, err
}

func (s *Service) publishSync(rep syncer.Report, err error) {
	if s.bus == nil || rep.ID == "" {
		return
	}
	switch {
	case errors.Is(err, apperr.ErrMergeConflict):
		s.bus.Publish(events.Event{Type: events.SyncConflict, Data: rep})
	case err != nil:
		s.bus.Publish(events.Event{Type: events.SyncFailed, Data: rep})
	default:
		s.bus.Publish(events.Event{Type: events.SyncCompleted, Data: rep})
	}
}

// Status returns the orchestrator state and sync history.
func (s *Service) Status() (syncer.Status, error) {
	if s.orch == nil {
		return syncer.Status{State: syncer.Idle, LocalOnly: true}, nil
	}
	return s.orch.Status()
}

// History returns up to n recent sync reports.
func (s *Service) History(n int) ([]syncer.Report, error) {
	if s.orch == nil {
		return nil, nil
	}
	return s.orch.History(n)
}

// ReloadRequests delivers a value whenever the index on disk may have
// changed underneath the live tree.
func (s *Service) ReloadRequests() <-chan struct{} { return s.reload }

// RequestReload queues a reload request; requests coalesce.
func (s *Service) RequestReload() {
	select {
	case s.reload <- struct{}{}:
	default:
	}
	if s.bus != nil {
		s.bus.Publish(events.Event{Type: events.IndexReloadRequested, Data: events.PathPayload{Path: s.dir}})
	}
}
