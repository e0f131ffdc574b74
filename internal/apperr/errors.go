// Package apperr defines the error kinds shared by the note engine.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrValidation     = errors.New("validation failed")
	ErrPrecondition   = errors.New("precondition failed")
	ErrPersistence    = errors.New("persistence failed")
	ErrIndexMissing   = errors.New("index file missing")
	ErrMergeConflict  = errors.New("merge conflict")
	ErrCredential     = errors.New("credential error")
	ErrNetwork        = errors.New("network error")
	ErrTimedOut       = errors.New("timed out")
	ErrSyncInProgress = errors.New("sync already in progress")
)

// Error attaches an operation name and an optional cause to one of the kinds above.
// errors.Is matches both the kind and the cause.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Validation reports a rejected input; no state was changed.
func Validation(op, msg string) error {
	return &Error{Kind: ErrValidation, Op: op, Msg: msg}
}

// Duplicate reports a name that is already taken.
func Duplicate(op, what, name string) error {
	return &Error{Kind: ErrValidation, Op: op, Msg: fmt.Sprintf("%s %q", what, name), Err: ErrAlreadyExists}
}

// Precondition reports an operation refused because of the current state.
func Precondition(op, msg string) error {
	return &Error{Kind: ErrPrecondition, Op: op, Msg: msg}
}

// Persistence wraps a failed write, rename or remove.
func Persistence(op string, err error) error {
	return &Error{Kind: ErrPersistence, Op: op, Err: err}
}

// Wrap attaches kind to err unless err already carries it.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// MergeConflictError is returned by a pull whose merge left unmerged paths.
type MergeConflictError struct {
	Files []string
}

func (e *MergeConflictError) Error() string {
	if len(e.Files) == 0 {
		return "merge conflict"
	}
	return fmt.Sprintf("merge conflict in %s", strings.Join(e.Files, ", "))
}

func (e *MergeConflictError) Is(target error) bool {
	return target == ErrMergeConflict
}

var kindNames = []struct {
	err  error
	name string
}{
	{ErrMergeConflict, "merge_conflict"},
	{ErrSyncInProgress, "sync_in_progress"},
	{ErrTimedOut, "timed_out"},
	{ErrCredential, "credential"},
	{ErrNetwork, "network"},
	{ErrIndexMissing, "index_missing"},
	{ErrPrecondition, "precondition"},
	{ErrNotFound, "not_found"},
	{ErrValidation, "validation"},
	{ErrAlreadyExists, "validation"},
	{ErrPersistence, "persistence"},
}

// KindName returns a stable label for the kind err carries, "internal" when
// it carries none and "" for a nil error.
func KindName(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kindNames {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}
