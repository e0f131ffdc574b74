package models

import (
	"sort"
	"sync"
)

// Notebook is a named collection of notes mapped to one directory.
type Notebook struct {
	mu    sync.RWMutex
	name  string
	notes map[string]*Note
}

// NewNotebook returns an empty notebook.
func NewNotebook(name string) *Notebook {
	return &Notebook{name: name, notes: make(map[string]*Note)}
}

// Name returns the notebook name.
func (nb *Notebook) Name() string {
	nb.mu.RLock()
	defer nb.mu.RUnlock()
	return nb.name
}

// Dir returns the notebook directory relative to the note directory.
func (nb *Notebook) Dir() string {
	return NotebookDir(nb.Name())
}

// Note looks up a note by name.
func (nb *Notebook) Note(name string) (*Note, bool) {
	nb.mu.RLock()
	defer nb.mu.RUnlock()
	n, ok := nb.notes[name]
	return n, ok
}

// Notes returns the notes ordered by name.
func (nb *Notebook) Notes() []*Note {
	nb.mu.RLock()
	out := make([]*Note, 0, len(nb.notes))
	for _, n := range nb.notes {
		out = append(out, n)
	}
	nb.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// NoteNames returns the sorted note names.
func (nb *Notebook) NoteNames() []string {
	nb.mu.RLock()
	out := make([]string, 0, len(nb.notes))
	for name := range nb.notes {
		out = append(out, name)
	}
	nb.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Len returns the number of notes.
func (nb *Notebook) Len() int {
	nb.mu.RLock()
	defer nb.mu.RUnlock()
	return len(nb.notes)
}

// HasChangedNotes reports whether any owned note has unsaved changes.
func (nb *Notebook) HasChangedNotes() bool {
	nb.mu.RLock()
	notes := make([]*Note, 0, len(nb.notes))
	for _, n := range nb.notes {
		notes = append(notes, n)
	}
	nb.mu.RUnlock()
	for _, n := range notes {
		if n.Changed() {
			return true
		}
	}
	return false
}

// HasSlugCollision reports whether a note other than except slugs to the same
// file name as name.
func (nb *Notebook) HasSlugCollision(name, except string) bool {
	slug := Slug(name)
	nb.mu.RLock()
	defer nb.mu.RUnlock()
	for other := range nb.notes {
		if other != except && Slug(other) == slug {
			return true
		}
	}
	return false
}

// Adopt makes nb the owner of n under name, replacing any previous owner link.
func (nb *Notebook) Adopt(n *Note, name string) {
	if prev := n.Notebook(); prev != nil && prev != nb {
		prev.Detach(n.Name())
	}
	n.setOwner(nb, name)
	nb.mu.Lock()
	nb.notes[name] = n
	nb.mu.Unlock()
}

// AddNote creates an unloaded note owned by nb.
func (nb *Notebook) AddNote(name string) *Note {
	n := newNote(name)
	nb.Adopt(n, name)
	return n
}

// Detach removes the note from nb and clears its owner. It returns the note
// or nil when absent.
func (nb *Notebook) Detach(name string) *Note {
	nb.mu.Lock()
	n, ok := nb.notes[name]
	if ok {
		delete(nb.notes, name)
	}
	nb.mu.Unlock()
	if !ok {
		return nil
	}
	n.setOwner(nil, name)
	return n
}

// RenameNote moves a note to a new key. It reports false when from is absent.
func (nb *Notebook) RenameNote(from, to string) bool {
	nb.mu.Lock()
	n, ok := nb.notes[from]
	if ok {
		delete(nb.notes, from)
		nb.notes[to] = n
	}
	nb.mu.Unlock()
	if ok {
		n.setOwner(nb, to)
	}
	return ok
}

func (nb *Notebook) setName(name string) {
	nb.mu.Lock()
	nb.name = name
	nb.mu.Unlock()
}
