// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/inkwell/internal/api"
	"github.com/starford/inkwell/internal/mcpserver"
	"github.com/starford/inkwell/internal/search"
	"github.com/starford/inkwell/internal/storage"
	"github.com/starford/inkwell/internal/syncer"
)

func (a *application) validate() error {
	if a.config == nil {
		return fmt.Errorf("config is required")
	}
	return nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts...)
	if err := app.validate(); err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("notes_dir", cfg.Notes.Dir),
		slog.String("remote", cfg.Git.RemoteURL),
		slog.String("search_path", cfg.Search.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	e, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer e.close()

	if cfg.Sync.OnStart {
		e.sync(ctx, "start")
	}

	var ready atomic.Bool
	ready.Store(true)

	apiRouter := api.NewRouter(e.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, e.bus)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"shutting down"}`))
			return
		}
		st, _ := e.backend.Status()
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","sync":%q}`, st.State)
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Keep the search index in step with edits made outside the engine.
	if dir := e.backend.Dir(); dir != "" {
		g.Go(func() error {
			store, err := storage.NewFS(dir)
			if err != nil {
				logger.Warn("watcher: disabled", slog.String("error", err.Error()))
				return nil
			}
			if err := search.Watch(gCtx, e.db, store, logger, e.bus.PublishFileEvent); err != nil {
				logger.Warn("watcher: stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Reload the tree whenever the backend signals the index changed.
	g.Go(func() error {
		if err := e.notes.Watch(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("notes: watch stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	var interval *periodic
	if cfg.Sync.Interval > 0 {
		interval = startPeriodic(gCtx, cfg.Sync.Interval, func(ctx context.Context) {
			e.sync(ctx, "interval")
		})
		defer interval.Stop()
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}
		ready.Store(false)

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// An interval run still in flight would make the exit sync fail as busy.
		if interval != nil {
			interval.Stop()
		}
		if cfg.Sync.OnExit {
			exitCtx, cancel := context.WithTimeout(context.Background(), 2*cfg.Git.Timeout)
			defer cancel()
			e.sync(exitCtx, "exit")
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the background loops stop with the server.
var errShutdown = errors.New("shutdown")

// RunSync runs one sync or archive and returns its report.
func RunSync(ctx context.Context, kind string, opts ...Option) (syncer.Report, error) {
	app := newApplication(opts...)
	if err := app.validate(); err != nil {
		return syncer.Report{}, err
	}
	logger := newLogger(os.Stderr, app.config.App.LogLevel)
	e, err := newEngine(ctx, app.config, logger)
	if err != nil {
		return syncer.Report{}, err
	}
	defer e.close()

	if kind == syncer.KindArchive {
		return e.notes.Archive(ctx)
	}
	return e.notes.Sync(ctx)
}

// ServeMCP exposes the engine over MCP on stdin/stdout. Logs go to stderr so
// they never mix with protocol messages.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(opts...)
	if err := app.validate(); err != nil {
		return err
	}
	logger := newLogger(os.Stderr, app.config.App.LogLevel)
	slog.SetDefault(logger)
	e, err := newEngine(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer e.close()

	go func() {
		if err := e.notes.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("notes: watch stopped", slog.String("error", err.Error()))
		}
	}()

	return mcpserver.New(e.svc, app.version).ServeStdio()
}
