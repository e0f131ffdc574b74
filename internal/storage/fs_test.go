package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempNotes(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempNotes(t)
	content := []byte("# Hello\nWorld\n")
	if err := s.Write("note.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempNotes(t)
	if err := s.Write("a/b/c.md", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("a/b/c.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestExists(t *testing.T) {
	s := tempNotes(t)
	ok, err := s.Exists("missing.md")
	if err != nil || ok {
		t.Fatalf("Exists(missing) = %v, %v", ok, err)
	}
	_ = s.Write("here.md", nil)
	ok, err = s.Exists("here.md")
	if err != nil || !ok {
		t.Fatalf("Exists(here) = %v, %v", ok, err)
	}
}

func TestDelete(t *testing.T) {
	s := tempNotes(t)
	_ = s.Write("del.md", []byte("bye"))
	if err := s.Delete("del.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.md"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestRemoveAll(t *testing.T) {
	s := tempNotes(t)
	_ = s.Write("work/a.md", []byte("a"))
	_ = s.Write("work/b.md", []byte("b"))
	if err := s.RemoveAll("work"); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if ok, _ := s.Exists("work"); ok {
		t.Error("directory still present")
	}
	if err := s.RemoveAll(""); err == nil {
		t.Error("removing the root must fail")
	}
}

func TestMove(t *testing.T) {
	s := tempNotes(t)
	_ = s.Write("old.md", []byte("data"))
	if err := s.Move("old.md", "sub/new.md"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	got, err := s.Read("sub/new.md")
	if err != nil {
		t.Fatalf("Read after move: %v", err)
	}
	if string(got) != "data" {
		t.Errorf("content = %q", got)
	}
	if _, err := s.Read("old.md"); err == nil {
		t.Error("old path should not exist")
	}
}

func TestMoveDirectory(t *testing.T) {
	s := tempNotes(t)
	_ = s.Write("a/n.md", []byte("n"))
	if err := s.Move("a", "c"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if got, err := s.Read("c/n.md"); err != nil || string(got) != "n" {
		t.Fatalf("Read moved file = %q, %v", got, err)
	}
}

func TestMoveRefusesExistingTarget(t *testing.T) {
	s := tempNotes(t)
	_ = s.Write("a.md", []byte("a"))
	_ = s.Write("b.md", []byte("b"))
	if err := s.Move("a.md", "b.md"); err == nil {
		t.Fatal("expected error when target exists")
	}
	if got, _ := s.Read("b.md"); string(got) != "b" {
		t.Errorf("target overwritten: %q", got)
	}
}

func TestList(t *testing.T) {
	s := tempNotes(t)
	_ = s.Write("a.md", []byte("a"))
	_ = s.Write("sub/b.md", []byte("b"))
	_ = s.Write("readme.txt", []byte("not md"))
	_ = s.Write(".git/info.md", []byte("hidden"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(items), items)
	}
	for _, it := range items {
		if it.Path != "a.md" && it.Path != "sub/b.md" {
			t.Errorf("unexpected path %q", it.Path)
		}
		if it.Checksum == "" {
			t.Errorf("missing checksum for %q", it.Path)
		}
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempNotes(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteNoCorruption(t *testing.T) {
	s := tempNotes(t)
	_ = s.Write("atomic.md", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("atomic.md", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.md")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".inkwell-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestChecksumStable(t *testing.T) {
	if Checksum([]byte("x")) != Checksum([]byte("x")) {
		t.Fatal("checksum not deterministic")
	}
	if Checksum([]byte("x")) == Checksum([]byte("y")) {
		t.Fatal("different input, same checksum")
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "inkwell-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
