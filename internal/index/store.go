package index

import (
	"fmt"

	"github.com/starford/inkwell/internal/apperr"
	"github.com/starford/inkwell/internal/models"
	"github.com/starford/inkwell/internal/storage"
)

// Store persists the index file inside the note directory.
type Store struct {
	fs storage.Provider
}

// NewStore returns a Store writing models.IndexFile through fs.
func NewStore(fs storage.Provider) *Store {
	return &Store{fs: fs}
}

// Exists reports whether the index file is present.
func (s *Store) Exists() (bool, error) {
	return s.fs.Exists(models.IndexFile)
}

// Load reads and validates the index. A missing file yields apperr.ErrIndexMissing.
func (s *Store) Load() (Index, error) {
	ok, err := s.fs.Exists(models.IndexFile)
	if err != nil {
		return nil, apperr.Persistence("index.load", err)
	}
	if !ok {
		return nil, &apperr.Error{Kind: apperr.ErrIndexMissing, Op: "index.load", Msg: fmt.Sprintf("%s not found in %s", models.IndexFile, s.fs.Root())}
	}
	data, err := s.fs.Read(models.IndexFile)
	if err != nil {
		return nil, apperr.Persistence("index.load", err)
	}
	ix, err := Unmarshal(data)
	if err != nil {
		return nil, apperr.Persistence("index.load", err)
	}
	return ix, nil
}

// Save writes the canonical form of ix atomically.
func (s *Store) Save(ix Index) error {
	data, err := Marshal(ix)
	if err != nil {
		return apperr.Persistence("index.save", err)
	}
	if err := s.fs.Write(models.IndexFile, data); err != nil {
		return apperr.Persistence("index.save", err)
	}
	return nil
}
