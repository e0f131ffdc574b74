package backend_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/inkwell/internal/apperr"
	"github.com/starford/inkwell/internal/backend"
	"github.com/starford/inkwell/internal/index"
	"github.com/starford/inkwell/internal/syncer"
	"github.com/starford/inkwell/internal/testutil"
)

func TestPrepareSeedsEmptyIndex(t *testing.T) {
	dir, b := testutil.TestBackend(t)

	if got := testutil.ReadFile(t, dir, ".note-index.json"); got != "{}\n" {
		t.Errorf("seeded index = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		t.Errorf("repository not initialised: %v", err)
	}
	ix, err := b.LoadIndex(context.Background())
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if ix == nil || len(ix) != 0 {
		t.Errorf("index = %v, want empty non-nil", ix)
	}
}

func TestNoDirectory(t *testing.T) {
	b := backend.New("", backend.WithLogger(testutil.QuietLogger()))
	defer b.Close()
	ctx := context.Background()

	if err := b.Prepare(ctx); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	ix, err := b.LoadIndex(ctx)
	if err != nil || ix != nil {
		t.Fatalf("LoadIndex = %v, %v; want nil, nil", ix, err)
	}
	_, err = b.Apply(ctx, backend.Mutation{Op: backend.OpCreateNotebook, Notebook: "Work", Index: index.Index{"Work": {}}})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Apply err = %v, want validation", err)
	}
	if _, err := b.Sync(ctx); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Sync err = %v, want validation", err)
	}
	st, err := b.Status()
	if err != nil || !st.LocalOnly || st.State != syncer.Idle {
		t.Errorf("Status = %+v, %v", st, err)
	}
}

func TestExistingNotesWithoutIndex(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "notes")
	if err := os.MkdirAll(filepath.Join(dir, "work"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "work", "todo.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	b := backend.New(dir, backend.WithLogger(testutil.QuietLogger()))
	defer b.Close()
	ctx := context.Background()
	if err := b.Prepare(ctx); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	_, err := b.LoadIndex(ctx)
	if !errors.Is(err, apperr.ErrIndexMissing) {
		t.Errorf("LoadIndex err = %v, want index missing", err)
	}
}

func TestApplyLifecycle(t *testing.T) {
	dir, b := testutil.TestBackend(t)
	ctx := context.Background()

	apply := func(m backend.Mutation) backend.Result {
		t.Helper()
		res, err := b.Apply(ctx, m)
		if err != nil {
			t.Fatalf("%s: %v", m.Op, err)
		}
		return res
	}

	ix := index.Index{}.WithNotebook("My Work")
	apply(backend.Mutation{Op: backend.OpCreateNotebook, Notebook: "My Work", Index: ix})
	if fi, err := os.Stat(filepath.Join(dir, "my-work")); err != nil || !fi.IsDir() {
		t.Fatalf("notebook dir missing: %v", err)
	}

	ix = ix.WithNote("My Work", "To Do")
	if res := apply(backend.Mutation{Op: backend.OpCreateNote, Notebook: "My Work", Note: "To Do", Index: ix}); res.Existed {
		t.Error("new note reported as existing")
	}
	if got := testutil.ReadFile(t, dir, "my-work/to-do.md"); got != "" {
		t.Errorf("new note content = %q", got)
	}

	if err := b.WriteNote(ctx, "my-work/to-do.md", "- buy milk"); err != nil {
		t.Fatalf("WriteNote: %v", err)
	}
	if res := apply(backend.Mutation{Op: backend.OpCreateNote, Notebook: "My Work", Note: "to do", Index: ix}); !res.Existed {
		t.Error("existing file not reported")
	}

	ix = ix.RenameNote("My Work", "To Do", "Done")
	apply(backend.Mutation{Op: backend.OpRenameNote, Notebook: "My Work", Note: "To Do", NewName: "Done", Index: ix})
	if got := testutil.ReadFile(t, dir, "my-work/done.md"); got != "- buy milk" {
		t.Errorf("renamed note content = %q", got)
	}

	ix = ix.RenameNotebook("My Work", "Archive")
	apply(backend.Mutation{Op: backend.OpRenameNotebook, Notebook: "My Work", NewName: "Archive", Index: ix})
	if _, err := os.Stat(filepath.Join(dir, "my-work")); !os.IsNotExist(err) {
		t.Errorf("old notebook dir still present: %v", err)
	}

	loaded, err := b.LoadIndex(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.Equal(index.Index{"Archive": {"Done"}}) {
		t.Errorf("index = %v", loaded)
	}

	content, err := b.ReadNote(ctx, "archive/done.md")
	if err != nil || content != "- buy milk" {
		t.Errorf("ReadNote = %q, %v", content, err)
	}

	ix = ix.WithoutNote("Archive", "Done")
	apply(backend.Mutation{Op: backend.OpDeleteNote, Notebook: "Archive", Note: "Done", Index: ix})
	if _, err := os.Stat(filepath.Join(dir, "archive", "done.md")); !os.IsNotExist(err) {
		t.Errorf("note file still present: %v", err)
	}

	ix = ix.WithoutNotebook("Archive")
	apply(backend.Mutation{Op: backend.OpDeleteNotebook, Notebook: "Archive", Index: ix})
	if got := testutil.ReadFile(t, dir, ".note-index.json"); got != "{}\n" {
		t.Errorf("final index = %q", got)
	}
}

func TestRenameMissingFilesStillPersistsIndex(t *testing.T) {
	_, b := testutil.TestBackend(t)
	ctx := context.Background()

	// Notes listed in the index without a file on disk can still be renamed.
	ix := index.Index{"Work": {"Ghost"}}
	if _, err := b.Apply(ctx, backend.Mutation{Op: backend.OpRenameNote, Notebook: "Work", Note: "Ghost", NewName: "Spirit", Index: ix.RenameNote("Work", "Ghost", "Spirit")}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	loaded, err := b.LoadIndex(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.Equal(index.Index{"Work": {"Spirit"}}) {
		t.Errorf("index = %v", loaded)
	}
}

func TestApplyFailureIsPersistence(t *testing.T) {
	dir, b := testutil.TestBackend(t)
	ctx := context.Background()

	if err := os.MkdirAll(filepath.Join(dir, "b"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "a"), 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := b.Apply(ctx, backend.Mutation{Op: backend.OpRenameNotebook, Notebook: "a", NewName: "b", Index: index.Index{"b": {}}})
	if !errors.Is(err, apperr.ErrPersistence) {
		t.Fatalf("err = %v, want persistence", err)
	}
	if got := testutil.ReadFile(t, dir, ".note-index.json"); got != "{}\n" {
		t.Errorf("index changed after failure: %q", got)
	}
}

func TestSyncLocalOnlyCommitsAndRequestsReload(t *testing.T) {
	_, b := testutil.TestBackend(t)
	ctx := context.Background()

	if _, err := b.Apply(ctx, backend.Mutation{Op: backend.OpCreateNotebook, Notebook: "Work", Index: index.Index{"Work": {}}}); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteNote(ctx, "work/todo.md", "- buy milk"); err != nil {
		t.Fatal(err)
	}

	rep, err := b.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if rep.Commit == "" || rep.Staged == 0 {
		t.Errorf("report = %+v, want a commit", rep)
	}
	if rep.Pushed {
		t.Error("local-only sync pushed")
	}
	select {
	case <-b.ReloadRequests():
	case <-time.After(time.Second):
		t.Fatal("no reload request after sync")
	}

	rep, err = b.Archive(ctx)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if rep.Commit != "" {
		t.Errorf("clean archive produced commit %s", rep.Commit)
	}
}

func TestSearchFollowsWrites(t *testing.T) {
	db := testutil.TestDB(t)
	_, b := testutil.TestBackend(t, backend.WithSearch(db))
	ctx := context.Background()

	if err := b.WriteNote(ctx, "work/groceries.md", "# Groceries\n\nremember the pomegranate"); err != nil {
		t.Fatal(err)
	}
	results, err := b.Search("pomegranate", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "work/groceries.md" || results[0].Title != "Groceries" {
		t.Errorf("results = %+v", results)
	}
}

func TestClosedBackend(t *testing.T) {
	_, b := testutil.TestBackend(t)
	b.Close()
	if _, err := b.ReadNote(context.Background(), "x.md"); !errors.Is(err, backend.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestCancelledBeforeAccepted(t *testing.T) {
	_, b := testutil.TestBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// The loop may still win the race for an idle backend; either outcome is
	// fine as long as a cancelled call never hangs.
	_, err := b.ReadNote(ctx, "x.md")
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}
