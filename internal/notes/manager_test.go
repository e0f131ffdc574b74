package notes_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"

	"github.com/starford/inkwell/internal/apperr"
	"github.com/starford/inkwell/internal/backend"
	"github.com/starford/inkwell/internal/events"
	"github.com/starford/inkwell/internal/index"
	"github.com/starford/inkwell/internal/notes"
	"github.com/starford/inkwell/internal/testutil"
)

type buffer struct {
	version int
	content string
}

func (b *buffer) Version() int    { return b.version }
func (b *buffer) Content() string { return b.content }

func (b *buffer) edit(s string) {
	b.content = s
	b.version++
}

type fixture struct {
	dir string
	be  *backend.Service
	rec *testutil.Recorder
	m   *notes.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir, be := testutil.TestBackend(t)
	rec := &testutil.Recorder{}
	m := notes.NewManager(be,
		notes.WithNotifier(rec),
		notes.WithPublisher(rec),
		notes.WithLogger(testutil.QuietLogger()),
	)
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return &fixture{dir: dir, be: be, rec: rec, m: m}
}

// fresh returns a second manager over the same backend, as after a restart.
func (f *fixture) fresh(t *testing.T) *notes.Manager {
	t.Helper()
	m := notes.NewManager(f.be, notes.WithLogger(testutil.QuietLogger()))
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

func (f *fixture) index(t *testing.T) string {
	t.Helper()
	return testutil.ReadFile(t, f.dir, ".note-index.json")
}

func TestLoadEmitsLoadedThenReloaded(t *testing.T) {
	f := newFixture(t)
	if err := f.m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []string{events.IndexLoaded, events.IndexReloaded}
	if got := f.rec.Types(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestNoDirectoryConfigured(t *testing.T) {
	be := backend.New("", backend.WithLogger(testutil.QuietLogger()))
	defer be.Close()
	m := notes.NewManager(be, notes.WithLogger(testutil.QuietLogger()))
	ctx := context.Background()

	if err := m.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.HasDirectory() {
		t.Error("HasDirectory = true")
	}
	if _, err := m.CreateNotebook(ctx, "Work"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("CreateNotebook err = %v, want validation", err)
	}
	if _, err := m.Sync(ctx); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Sync err = %v, want validation", err)
	}
}

func TestCreateNotebookThenFreshLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"Work", "My Notes", "Ünïcode", "a:b"} {
		if _, err := f.m.CreateNotebook(ctx, name); err != nil {
			t.Fatalf("CreateNotebook(%q): %v", name, err)
		}
	}

	m := f.fresh(t)
	for _, name := range []string{"Work", "My Notes", "Ünïcode", "a:b"} {
		nb, err := m.Notebook(name)
		if err != nil {
			t.Errorf("Notebook(%q): %v", name, err)
			continue
		}
		if nb.Name() != name || nb.Len() != 0 {
			t.Errorf("notebook %q: name %q, %d notes", name, nb.Name(), nb.Len())
		}
	}
}

func TestCreateNotebookValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.m.CreateNotebook(ctx, "Work"); err != nil {
		t.Fatal(err)
	}
	before := f.index(t)
	f.rec.Reset()

	cases := []struct {
		name string
		kind error
	}{
		{"", apperr.ErrValidation},
		{"Work", apperr.ErrAlreadyExists},
		{"work", apperr.ErrValidation}, // same directory as Work
		{".hidden", apperr.ErrValidation},
		{"???", apperr.ErrValidation},
		{strings.Repeat("x", 201), apperr.ErrValidation},
	}
	for _, tc := range cases {
		_, err := f.m.CreateNotebook(ctx, tc.name)
		if !errors.Is(err, tc.kind) {
			t.Errorf("CreateNotebook(%q) err = %v, want %v", tc.name, err, tc.kind)
		}
	}
	if got := f.index(t); got != before {
		t.Errorf("index changed:\n%s", got)
	}
	if types := f.rec.Types(); len(types) != 0 {
		t.Errorf("events after rejected creates: %v", types)
	}
	if len(f.m.Notebooks()) != 1 {
		t.Errorf("notebooks = %d", len(f.m.Notebooks()))
	}
}

func TestRoundTripAndIdempotentSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, nb := range []string{"Zeta", "Alpha"} {
		if _, err := f.m.CreateNotebook(ctx, nb); err != nil {
			t.Fatal(err)
		}
		for _, n := range []string{"b", "a", "C"} {
			if _, err := f.m.CreateNote(ctx, nb, n, false); err != nil {
				t.Fatal(err)
			}
		}
	}
	first := f.index(t)

	want := index.Index{"Alpha": {"C", "a", "b"}, "Zeta": {"C", "a", "b"}}
	if got := f.fresh(t).Snapshot(); !got.Equal(want) {
		t.Errorf("reloaded snapshot = %v, want %v", got, want)
	}

	// Persisting the unchanged projection again yields the same bytes.
	if _, err := f.be.Apply(ctx, backend.Mutation{Op: backend.OpCreateNotebook, Notebook: "Zeta", Index: f.m.Snapshot()}); err != nil {
		t.Fatal(err)
	}
	if second := f.index(t); second != first {
		t.Errorf("second save differs:\n%s\nvs\n%s", first, second)
	}
}

func TestCreateNoteStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.m.CreateNotebook(ctx, "Work"); err != nil {
		t.Fatal(err)
	}

	n, err := f.m.CreateNote(ctx, "Work", "todo", false)
	if err != nil {
		t.Fatal(err)
	}
	if content, loaded := n.Content(); !loaded || content != "" || n.Changed() {
		t.Errorf("new note: content %q loaded %v changed %v", content, loaded, n.Changed())
	}
	if got := testutil.ReadFile(t, f.dir, "work/todo.md"); got != "" {
		t.Errorf("file content = %q", got)
	}

	// A file already on disk is loaded lazily rather than overwritten.
	if err := os.WriteFile(filepath.Join(f.dir, "work", "ideas.md"), []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}
	ideas, err := f.m.CreateNote(ctx, "Work", "Ideas", false)
	if err != nil {
		t.Fatal(err)
	}
	if _, loaded := ideas.Content(); loaded {
		t.Error("existing file was treated as loaded")
	}
	content, err := f.m.NoteContent(ctx, ideas)
	if err != nil || content != "keep me" {
		t.Errorf("NoteContent = %q, %v", content, err)
	}

	if _, err := f.m.CreateNote(ctx, "Work", "todo", false); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate err = %v", err)
	}
	if _, err := f.m.CreateNote(ctx, "Work", "TODO", false); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("colliding err = %v", err)
	}
	if _, err := f.m.CreateNote(ctx, "Nope", "x", false); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing notebook err = %v", err)
	}
}

func TestOrphanIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.m.CreateNotebook(ctx, "Work"); err != nil {
		t.Fatal(err)
	}

	o := f.m.OrphanNote()
	if o != f.m.OrphanNote() {
		t.Fatal("orphan changed between calls")
	}
	if !o.IsOrphan() || o.Name() != "" {
		t.Fatal("orphan has an owner or a name")
	}
	o.SetContent("scratch")

	n, err := f.m.CreateNote(ctx, "Work", "kept", true)
	if err != nil {
		t.Fatal(err)
	}
	if n != o {
		t.Error("adoption did not preserve identity")
	}
	if c, _ := n.Content(); c != "scratch" || !n.Changed() {
		t.Errorf("adopted note content %q changed %v", c, n.Changed())
	}
	next := f.m.OrphanNote()
	if next == o {
		t.Error("orphan not regenerated after adoption")
	}
	if next != f.m.OrphanNote() {
		t.Error("new orphan not stable")
	}

	if err := f.m.SaveNote(ctx, n); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ReadFile(t, f.dir, "work/kept.md"); got != "scratch" {
		t.Errorf("saved orphan content = %q", got)
	}
	if err := f.m.SaveNote(ctx, next); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("saving orphan err = %v", err)
	}
}

func TestRenameWithUnsavedChangesFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.m.CreateNotebook(ctx, "Work"); err != nil {
		t.Fatal(err)
	}
	n, err := f.m.CreateNote(ctx, "Work", "todo", false)
	if err != nil {
		t.Fatal(err)
	}
	buf := &buffer{content: ""}
	n.AttachBuffer(buf)
	buf.edit("typing")

	before := f.index(t)
	snap := f.m.Snapshot()
	f.rec.Reset()

	if err := f.m.RenameNotebook(ctx, "Work", "Job"); !errors.Is(err, apperr.ErrPrecondition) {
		t.Errorf("RenameNotebook err = %v", err)
	}
	if err := f.m.RenameNote(ctx, "Work", "todo", "done"); !errors.Is(err, apperr.ErrPrecondition) {
		t.Errorf("RenameNote err = %v", err)
	}
	if !f.m.Snapshot().Equal(snap) {
		t.Errorf("tree changed: %v", f.m.Snapshot())
	}
	if got := f.index(t); got != before {
		t.Errorf("index changed: %s", got)
	}
	if _, err := os.Stat(filepath.Join(f.dir, "work", "todo.md")); err != nil {
		t.Errorf("file moved: %v", err)
	}
	if len(f.rec.Types()) != 0 {
		t.Errorf("events: %v", f.rec.Types())
	}

	if err := f.m.SaveNote(ctx, n); err != nil {
		t.Fatal(err)
	}
	if err := f.m.RenameNote(ctx, "Work", "todo", "done"); err != nil {
		t.Fatalf("rename after save: %v", err)
	}
	if got := testutil.ReadFile(t, f.dir, "work/done.md"); got != "typing" {
		t.Errorf("renamed content = %q", got)
	}
	if n.Name() != "done" || n.Path() != "work/done.md" {
		t.Errorf("note now %q at %q", n.Name(), n.Path())
	}
}

func TestRenameThenRecreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"A", "B"} {
		if _, err := f.m.CreateNotebook(ctx, name); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.m.CreateNote(ctx, "A", "n", false); err != nil {
		t.Fatal(err)
	}

	if err := f.m.RenameNotebook(ctx, "A", "C"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := f.m.CreateNotebook(ctx, "A"); err != nil {
		t.Fatalf("recreate: %v", err)
	}

	want := index.Index{"A": {}, "B": {}, "C": {"n"}}
	if got := f.m.Snapshot(); !got.Equal(want) {
		t.Errorf("tree = %v", got)
	}
	if got := f.fresh(t).Snapshot(); !got.Equal(want) {
		t.Errorf("index = %v", got)
	}
	if _, err := os.Stat(filepath.Join(f.dir, "c", "n.md")); err != nil {
		t.Errorf("moved note missing: %v", err)
	}

	types := f.rec.Types()
	if !contains(types, events.NotebookRenamed) || !contains(types, events.NotebookCreated) {
		t.Errorf("events = %v", types)
	}
}

func TestRenameCollisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"A", "B"} {
		if _, err := f.m.CreateNotebook(ctx, name); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.m.RenameNotebook(ctx, "A", "B"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("err = %v", err)
	}
	if err := f.m.RenameNotebook(ctx, "A", "b"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v", err)
	}
	if err := f.m.RenameNotebook(ctx, "missing", "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
	// Case-only rename keeps the directory.
	if err := f.m.RenameNotebook(ctx, "A", "a"); err != nil {
		t.Fatalf("case rename: %v", err)
	}
	if _, err := f.m.Notebook("a"); err != nil {
		t.Error(err)
	}
}

func TestDeleteLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.m.CreateNotebook(ctx, "Work"); err != nil {
		t.Fatal(err)
	}
	n, err := f.m.CreateNote(ctx, "Work", "todo", false)
	if err != nil {
		t.Fatal(err)
	}
	n.SetContent("unsaved")
	f.rec.Reset()

	if err := f.m.DeleteNote(ctx, "Work", "todo"); err != nil {
		t.Fatal(err)
	}
	if want := []string{events.NoteDeleting, events.NoteDeleted}; !reflect.DeepEqual(f.rec.Types(), want) {
		t.Errorf("events = %v", f.rec.Types())
	}
	if len(f.rec.Warns()) != 1 {
		t.Errorf("warnings = %v", f.rec.Warns())
	}
	if _, err := os.Stat(filepath.Join(f.dir, "work", "todo.md")); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}

	if err := f.m.DeleteNotebook(ctx, "Work"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(f.dir, "work")); !os.IsNotExist(err) {
		t.Errorf("dir still present: %v", err)
	}
	if got := f.index(t); got != "{}\n" {
		t.Errorf("index = %q", got)
	}
	if err := f.m.DeleteNotebook(ctx, "Work"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

// failingBackend fails every structural change after validation.
type failingBackend struct {
	*backend.Service
}

func (b failingBackend) Apply(context.Context, backend.Mutation) (backend.Result, error) {
	return backend.Result{}, apperr.Persistence("backend.apply", errors.New("disk full"))
}

func TestPersistFailureLeavesTreeUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.m.CreateNotebook(ctx, "Work"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.CreateNote(ctx, "Work", "todo", false); err != nil {
		t.Fatal(err)
	}

	rec := &testutil.Recorder{}
	m := notes.NewManager(failingBackend{f.be}, notes.WithNotifier(rec), notes.WithPublisher(rec), notes.WithLogger(testutil.QuietLogger()))
	if err := m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	rec.Reset()
	snap := m.Snapshot()

	steps := []struct {
		run    func() error
		failed string
	}{
		{func() error { _, err := m.CreateNotebook(ctx, "New"); return err }, events.NotebookCreateFailed},
		{func() error { _, err := m.CreateNote(ctx, "Work", "x", false); return err }, events.NoteCreateFailed},
		{func() error { return m.RenameNotebook(ctx, "Work", "Job") }, events.NotebookRenameFailed},
		{func() error { return m.RenameNote(ctx, "Work", "todo", "done") }, events.NoteRenameFailed},
		{func() error { return m.DeleteNote(ctx, "Work", "todo") }, events.NoteDeleteFailed},
		{func() error { return m.DeleteNotebook(ctx, "Work") }, events.NotebookDeleteFailed},
	}
	for _, s := range steps {
		rec.Reset()
		if err := s.run(); !errors.Is(err, apperr.ErrPersistence) {
			t.Errorf("%s: err = %v", s.failed, err)
		}
		if !contains(rec.Types(), s.failed) {
			t.Errorf("%s not published: %v", s.failed, rec.Types())
		}
		if len(rec.Fatals()) != 1 {
			t.Errorf("%s: fatals = %v", s.failed, rec.Fatals())
		}
		if !m.Snapshot().Equal(snap) {
			t.Errorf("%s: tree changed to %v", s.failed, m.Snapshot())
		}
	}
}

func TestSaveAllAndContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.m.CreateNotebook(ctx, "Work"); err != nil {
		t.Fatal(err)
	}
	a, _ := f.m.CreateNote(ctx, "Work", "a", false)
	b, _ := f.m.CreateNote(ctx, "Work", "b", false)
	a.SetContent("first")
	buf := &buffer{}
	b.AttachBuffer(buf)
	buf.edit("second")

	if err := f.m.SaveAll(ctx); err != nil {
		t.Fatal(err)
	}
	if a.Changed() || b.Changed() {
		t.Error("notes still changed after SaveAll")
	}
	if testutil.ReadFile(t, f.dir, "work/a.md") != "first" || testutil.ReadFile(t, f.dir, "work/b.md") != "second" {
		t.Error("SaveAll wrote the wrong content")
	}
}

var archiveRe = regexp.MustCompile(`^inkwell: archive \d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`)

func TestEndToEndLocalSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.m.CreateNotebook(ctx, "Work"); err != nil {
		t.Fatal(err)
	}
	n, err := f.m.CreateNote(ctx, "Work", "todo", false)
	if err != nil {
		t.Fatal(err)
	}
	n.SetContent("- buy milk")

	rep, err := f.m.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if rep.Commit == "" {
		t.Fatal("no commit recorded")
	}

	if got := f.index(t); got != "{\n  \"Work\": [\n    \"todo\"\n  ]\n}\n" {
		t.Errorf("index = %q", got)
	}
	if got := testutil.ReadFile(t, f.dir, "work/todo.md"); got != "- buy milk" {
		t.Errorf("note = %q", got)
	}

	repo, err := git.PlainOpen(f.dir)
	if err != nil {
		t.Fatal(err)
	}
	head, err := repo.Head()
	if err != nil {
		t.Fatal(err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		t.Fatal(err)
	}
	if msg := strings.TrimSpace(commit.Message); !archiveRe.MatchString(msg) {
		t.Errorf("commit message %q", msg)
	}
	if head.Hash().String() != rep.Commit {
		t.Errorf("head %s, report %s", head.Hash(), rep.Commit)
	}

	// Sync reloads the tree; the note is now a fresh, unloaded instance.
	reloaded, err := f.m.Note("Work", "todo")
	if err != nil {
		t.Fatal(err)
	}
	content, err := f.m.NoteContent(ctx, reloaded)
	if err != nil || content != "- buy milk" {
		t.Errorf("content after reload = %q, %v", content, err)
	}
	if !contains(f.rec.Types(), events.IndexReloaded) {
		t.Errorf("no reload event: %v", f.rec.Types())
	}
}

func TestReloadCarriesUnsavedNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.m.CreateNotebook(ctx, "Work"); err != nil {
		t.Fatal(err)
	}
	n, _ := f.m.CreateNote(ctx, "Work", "draft", false)
	n.SetContent("half written")

	if err := f.m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := f.m.Note("Work", "draft")
	if err != nil {
		t.Fatal(err)
	}
	if got != n || !got.Changed() {
		t.Error("unsaved note was not carried over")
	}
}

func TestWatchReloadsOnRequest(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.m.Watch(ctx) }()

	f.rec.Reset()
	f.be.RequestReload()

	for i := 0; i < 200 && !contains(f.rec.Types(), events.IndexReloaded); i++ {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch: %v", err)
	}
	if !contains(f.rec.Types(), events.IndexReloaded) {
		t.Errorf("no reload after request: %v", f.rec.Types())
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
