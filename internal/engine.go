package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/starford/inkwell/internal/api"
	"github.com/starford/inkwell/internal/apperr"
	"github.com/starford/inkwell/internal/backend"
	"github.com/starford/inkwell/internal/events"
	"github.com/starford/inkwell/internal/gitsync"
	"github.com/starford/inkwell/internal/notes"
	"github.com/starford/inkwell/internal/search"
	"github.com/starford/inkwell/internal/syncer"
)

// engine is the wired note engine shared by every entry point.
type engine struct {
	cfg     *Config
	logger  *slog.Logger
	bus     *events.Bus
	db      *search.DB
	backend *backend.Service
	notes   *notes.Manager
	svc     *api.Service
}

// newLogger returns a text handler when w is a terminal and JSON otherwise.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// newEngine opens the search index and sync history, prepares the note
// directory and loads the index into the manager.
func newEngine(ctx context.Context, cfg *Config, logger *slog.Logger) (*engine, error) {
	e := &engine{cfg: cfg, logger: logger, bus: events.NewBus(2 * time.Second)}

	if err := os.MkdirAll(filepath.Dir(cfg.Search.Path), 0o755); err != nil {
		e.close()
		return nil, fmt.Errorf("create search dir: %w", err)
	}
	db, err := search.Open(cfg.Search.Path)
	if err != nil {
		e.close()
		return nil, fmt.Errorf("init search: %w", err)
	}
	e.db = db

	history, err := syncer.OpenHistory(cfg.State.Path, 0)
	if err != nil {
		e.close()
		return nil, fmt.Errorf("init sync history: %w", err)
	}

	dir := cfg.Notes.Dir
	opts := []backend.Option{
		backend.WithSearch(db),
		backend.WithBus(e.bus),
		backend.WithLogger(logger),
		backend.WithSyncOptions(
			syncer.WithTimeout(cfg.Git.Timeout),
			syncer.WithHistory(history),
			syncer.WithObserver(func(s syncer.State) {
				e.bus.Publish(events.Event{Type: events.SyncState, Data: map[string]string{"state": string(s)}})
			}),
		),
	}
	if dir != "" {
		repo := gitsync.New(cfg.Git.Repo(dir), cfg.Git.Auth.Credentials(), logger, gitsync.WithGitBinary(cfg.Git.Binary))
		opts = append(opts, backend.WithRepo(repo))
	}
	e.backend = backend.New(dir, opts...)
	if err := e.backend.Prepare(ctx); err != nil {
		e.close()
		return nil, fmt.Errorf("prepare note directory: %w", err)
	}

	e.notes = notes.NewManager(e.backend,
		notes.WithNotifier(events.NewAlerts(e.bus, logger)),
		notes.WithPublisher(e.bus),
		notes.WithLogger(logger),
	)
	if err := e.notes.Load(ctx); err != nil {
		e.close()
		return nil, fmt.Errorf("load index: %w", err)
	}
	e.svc = api.NewService(e.notes, e.backend)
	return e, nil
}

// sync runs one sync and logs its outcome; failures are not fatal to the
// caller.
func (e *engine) sync(ctx context.Context, reason string) {
	if !e.notes.HasDirectory() {
		return
	}
	rep, err := e.notes.Sync(ctx)
	if err != nil {
		e.logger.Warn("sync failed",
			slog.String("reason", reason),
			slog.String("kind", apperr.KindName(err)),
			slog.String("error", err.Error()))
		return
	}
	e.logger.Info("sync completed",
		slog.String("reason", reason),
		slog.String("commit", rep.Commit),
		slog.Bool("pushed", rep.Pushed))
}

func (e *engine) close() {
	if e.backend != nil {
		e.backend.Close()
	}
	if e.db != nil {
		e.db.Close()
	}
	e.bus.Close()
}
