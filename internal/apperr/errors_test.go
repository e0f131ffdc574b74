package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Persistence("backend.write", cause)
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, cause) {
		t.Fatalf("errors.Is failed for %v", err)
	}
	if got := err.Error(); got != "backend.write: persistence failed: disk full" {
		t.Errorf("Error() = %q", got)
	}
}

func TestDuplicateIsValidation(t *testing.T) {
	err := Duplicate("notes.create", "notebook", "Work")
	if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate should be validation and already-exists: %v", err)
	}
}

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := Wrap(ErrNetwork, "gitsync.push", errors.New("connection reset"))
	if Wrap(ErrNetwork, "syncer.push", inner) != inner {
		t.Error("Wrap re-wrapped an error that already carries the kind")
	}
	if Wrap(ErrNetwork, "x", nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestKindName(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("boom"), "internal"},
		{Validation("op", "bad"), "validation"},
		{Precondition("op", "unsaved"), "precondition"},
		{fmt.Errorf("pull: %w", &MergeConflictError{Files: []string{"a.md"}}), "merge_conflict"},
		{Wrap(ErrTimedOut, "syncer.pull", errors.New("deadline")), "timed_out"},
		{Wrap(ErrSyncInProgress, "backend.sync", errors.New("busy")), "sync_in_progress"},
	}
	for _, tt := range tests {
		if got := KindName(tt.err); got != tt.want {
			t.Errorf("KindName(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestMergeConflictMessage(t *testing.T) {
	err := &MergeConflictError{Files: []string{"work/todo.md", ".note-index.json"}}
	if got := err.Error(); got != "merge conflict in work/todo.md, .note-index.json" {
		t.Errorf("Error() = %q", got)
	}
}

func TestDuplicateMessage(t *testing.T) {
	if got := Duplicate("notes.create", "notebook", "Work").Error(); got != `notes.create: notebook "Work": already exists` {
		t.Errorf("Error() = %q", got)
	}
}
