package models

import (
	"path"
	"sort"
	"strings"
)

// IndexFile is the name of the notebook manifest inside the note directory.
const IndexFile = ".note-index.json"

var slugReplacer = strings.NewReplacer(
	"/", "-",
	`\`, "-",
	":", "-",
	"?", "-",
	`"`, "-",
	"<", "-",
	">", "-",
	"|", "-",
	" ", "-",
)

// Slug maps a notebook or note name to a file-system name: lowercase, with
// path separators, reserved characters and spaces replaced by '-'.
func Slug(name string) string {
	return slugReplacer.Replace(strings.ToLower(name))
}

// NotebookDir returns the directory of a notebook relative to the note directory.
func NotebookDir(notebook string) string {
	return Slug(notebook)
}

// NotePath returns the file of a note relative to the note directory.
func NotePath(notebook, note string) string {
	return path.Join(Slug(notebook), Slug(note)+".md")
}

// Tree is the set of notebooks keyed by name.
type Tree struct {
	notebooks map[string]*Notebook
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{notebooks: make(map[string]*Notebook)}
}

// FromSnapshot builds a tree of unloaded notes from a notebook → note names map.
func FromSnapshot(snap map[string][]string) *Tree {
	t := NewTree()
	for name, notes := range snap {
		nb := NewNotebook(name)
		for _, n := range notes {
			nb.AddNote(n)
		}
		t.notebooks[name] = nb
	}
	return t
}

// Notebook looks up a notebook by name.
func (t *Tree) Notebook(name string) (*Notebook, bool) {
	nb, ok := t.notebooks[name]
	return nb, ok
}

// Notebooks returns the notebooks ordered by name.
func (t *Tree) Notebooks() []*Notebook {
	out := make([]*Notebook, 0, len(t.notebooks))
	for _, nb := range t.notebooks {
		out = append(out, nb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len returns the number of notebooks.
func (t *Tree) Len() int {
	return len(t.notebooks)
}

// HasSlugCollision reports whether a notebook other than except maps to the
// same directory as name.
func (t *Tree) HasSlugCollision(name, except string) bool {
	slug := Slug(name)
	for other := range t.notebooks {
		if other != except && Slug(other) == slug {
			return true
		}
	}
	return false
}

// Add inserts a notebook, replacing any notebook of the same name.
func (t *Tree) Add(nb *Notebook) {
	t.notebooks[nb.Name()] = nb
}

// Remove deletes a notebook and orphans nothing: its notes keep their owner
// link so open editors still resolve paths until they close.
func (t *Tree) Remove(name string) *Notebook {
	nb, ok := t.notebooks[name]
	if !ok {
		return nil
	}
	delete(t.notebooks, name)
	return nb
}

// Rename moves a notebook to a new key and updates its name.
func (t *Tree) Rename(from, to string) bool {
	nb, ok := t.notebooks[from]
	if !ok {
		return false
	}
	delete(t.notebooks, from)
	nb.setName(to)
	t.notebooks[to] = nb
	return true
}

// Snapshot projects the tree to notebook name → sorted note names.
func (t *Tree) Snapshot() map[string][]string {
	out := make(map[string][]string, len(t.notebooks))
	for name, nb := range t.notebooks {
		out[name] = nb.NoteNames()
	}
	return out
}
