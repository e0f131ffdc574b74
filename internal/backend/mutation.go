package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/starford/inkwell/internal/apperr"
	"github.com/starford/inkwell/internal/index"
	"github.com/starford/inkwell/internal/models"
)

// Op is a structural change to the note tree.
type Op int

const (
	OpCreateNotebook Op = iota + 1
	OpRenameNotebook
	OpDeleteNotebook
	OpCreateNote
	OpRenameNote
	OpDeleteNote
)

func (o Op) String() string {
	switch o {
	case OpCreateNotebook:
		return "create-notebook"
	case OpRenameNotebook:
		return "rename-notebook"
	case OpDeleteNotebook:
		return "delete-notebook"
	case OpCreateNote:
		return "create-note"
	case OpRenameNote:
		return "rename-note"
	case OpDeleteNote:
		return "delete-note"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Mutation is a file-system change plus the index to persist once it is
// done. Index is the staged projection of the tree after the change.
type Mutation struct {
	Op       Op
	Notebook string
	Note     string
	NewName  string
	Index    index.Index
}

// Result reports what Apply found on disk.
type Result struct {
	// Existed is set by OpCreateNote when the note file was already present.
	Existed bool
}

// Apply performs m on the note directory and persists m.Index. Any failure
// after validation is an apperr.ErrPersistence; the directory may then be
// partially changed.
func (s *Service) Apply(ctx context.Context, m Mutation) (Result, error) {
	var res Result
	op := "backend." + m.Op.String()
	err := s.do(ctx, func() error {
		if err := s.ready(op); err != nil {
			return err
		}
		if m.Index == nil {
			return apperr.Validation(op, "staged index is required")
		}
		var err error
		res, err = s.applyFiles(m)
		if err != nil {
			return apperr.Persistence(op, err)
		}
		if err := s.store.Save(m.Index); err != nil {
			return err
		}
		s.reindex()
		s.logger.Info("backend: applied",
			slog.String("op", m.Op.String()),
			slog.String("notebook", m.Notebook),
			slog.String("note", m.Note),
			slog.String("new_name", m.NewName),
		)
		return nil
	})
	return res, err
}

func (s *Service) applyFiles(m Mutation) (Result, error) {
	switch m.Op {
	case OpCreateNotebook:
		return Result{}, s.fs.MkdirAll(models.NotebookDir(m.Notebook))

	case OpRenameNotebook:
		from, to := models.NotebookDir(m.Notebook), models.NotebookDir(m.NewName)
		return Result{}, s.move(from, to, true)

	case OpDeleteNotebook:
		return Result{}, s.fs.RemoveAll(models.NotebookDir(m.Notebook))

	case OpCreateNote:
		p := models.NotePath(m.Notebook, m.Note)
		ok, err := s.fs.Exists(p)
		if err != nil {
			return Result{}, err
		}
		if ok {
			return Result{Existed: true}, nil
		}
		if err := s.fs.Write(p, nil); err != nil {
			return Result{}, err
		}
		if s.bus != nil {
			s.bus.PublishFileEvent("created", p)
		}
		return Result{}, nil

	case OpRenameNote:
		from, to := models.NotePath(m.Notebook, m.Note), models.NotePath(m.Notebook, m.NewName)
		return Result{}, s.move(from, to, false)

	case OpDeleteNote:
		p := models.NotePath(m.Notebook, m.Note)
		if err := s.fs.Delete(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Result{}, err
		}
		if s.bus != nil {
			s.bus.PublishFileEvent("deleted", p)
		}
		return Result{}, nil

	default:
		return Result{}, fmt.Errorf("unknown operation %s", m.Op)
	}
}

// move renames from to to. A missing source is only created when mkdir is
// set; notes listed in the index without a file have nothing to move.
func (s *Service) move(from, to string, mkdir bool) error {
	ok, err := s.fs.Exists(from)
	if err != nil {
		return err
	}
	if !ok {
		if mkdir {
			return s.fs.MkdirAll(to)
		}
		return nil
	}
	return s.fs.Move(from, to)
}
