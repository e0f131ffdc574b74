// Package testutil provides shared test helpers for note directories,
// search databases and event capture.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/inkwell/internal/backend"
	"github.com/starford/inkwell/internal/events"
	"github.com/starford/inkwell/internal/gitsync"
	"github.com/starford/inkwell/internal/search"
)

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDB creates a temporary search database that is automatically cleaned up.
func TestDB(t *testing.T) *search.DB {
	t.Helper()
	db, err := search.Open(filepath.Join(t.TempDir(), "inkwell-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestBackend prepares a local-only backend over a fresh note directory. Extra
// options are applied after the defaults.
func TestBackend(t *testing.T, opts ...backend.Option) (string, *backend.Service) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "notes")
	logger := QuietLogger()
	repo := gitsync.New(gitsync.Config{Dir: dir, UserName: "Test User", UserEmail: "test@example.com"}, nil, logger)
	all := append([]backend.Option{backend.WithLogger(logger), backend.WithRepo(repo)}, opts...)
	b := backend.New(dir, all...)
	t.Cleanup(b.Close)
	if err := b.Prepare(context.Background()); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	return dir, b
}

// ReadFile returns the content of rel under dir.
func ReadFile(t *testing.T, dir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// Recorder captures published events and alerts.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
	fatals []string
	warns  []string
}

// Publish records ev.
func (r *Recorder) Publish(ev events.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Fatal records a fatal alert.
func (r *Recorder) Fatal(msg string, _ error) {
	r.mu.Lock()
	r.fatals = append(r.fatals, msg)
	r.mu.Unlock()
}

// Warn records a warning.
func (r *Recorder) Warn(msg string, _ error) {
	r.mu.Lock()
	r.warns = append(r.warns, msg)
	r.mu.Unlock()
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// Fatals returns the recorded fatal alerts.
func (r *Recorder) Fatals() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fatals...)
}

// Warns returns the recorded warnings.
func (r *Recorder) Warns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.warns...)
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events, r.fatals, r.warns = nil, nil, nil
	r.mu.Unlock()
}
