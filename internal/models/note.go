// Package models defines the in-memory notebook/note tree. It performs no I/O.
package models

import "sync"

// Buffer is a live editable view of a note's content, typically owned by an
// editor widget. Its version increases on every edit.
type Buffer interface {
	Version() int
	Content() string
}

// Note is a single markdown document. A note without a notebook is an orphan.
//
// A note never holds its own lock while taking its notebook's.
type Note struct {
	mu sync.RWMutex

	name     string
	notebook *Notebook

	content string
	loaded  bool
	dirty   bool

	buffer       Buffer
	savedVersion int
}

// NewOrphan returns a fresh note with no name and no owner.
func NewOrphan() *Note {
	return &Note{loaded: true}
}

func newNote(name string) *Note {
	return &Note{name: name}
}

// Name returns the note name; empty for the orphan note.
func (n *Note) Name() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.name
}

// Notebook returns the owning notebook or nil.
func (n *Note) Notebook() *Notebook {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.notebook
}

// IsOrphan reports whether the note has no owning notebook.
func (n *Note) IsOrphan() bool {
	return n.Notebook() == nil
}

// Path returns the note file path relative to the note directory, or "" for an orphan.
func (n *Note) Path() string {
	n.mu.RLock()
	nb, name := n.notebook, n.name
	n.mu.RUnlock()
	if nb == nil {
		return ""
	}
	return NotePath(nb.Name(), name)
}

// Content returns the in-memory content and whether it has been loaded.
func (n *Note) Content() (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.content, n.loaded
}

// SetContent replaces the content directly and marks the note changed.
func (n *Note) SetContent(content string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.content = content
	n.loaded = true
	n.dirty = true
}

// MarkSaved records content as matching disk: the note is no longer changed
// and the attached buffer's current version becomes the saved version.
func (n *Note) MarkSaved(content string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.content = content
	n.loaded = true
	n.dirty = false
	if n.buffer != nil {
		n.savedVersion = n.buffer.Version()
	}
}

// LoadContent fills in content read from disk unless the note was loaded or
// edited in the meantime. It returns the note's content afterwards.
func (n *Note) LoadContent(content string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.loaded {
		n.content = content
		n.loaded = true
	}
	return n.content
}

// MarkUnloaded drops any in-memory content so the next read goes to disk.
func (n *Note) MarkUnloaded() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.content = ""
	n.loaded = false
	n.dirty = false
}

// AttachBuffer connects an editable buffer. Attaching is not a change.
func (n *Note) AttachBuffer(b Buffer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.buffer = b
	if b != nil {
		n.savedVersion = b.Version()
	}
}

// DetachBuffer disconnects the buffer, keeping its last content in memory.
func (n *Note) DetachBuffer() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.buffer == nil {
		return
	}
	if n.buffer.Version() != n.savedVersion {
		n.content = n.buffer.Content()
		n.loaded = true
		n.dirty = true
	}
	n.buffer = nil
}

// Changed is true if content was set directly or the buffer moved past the
// version recorded at the last save.
func (n *Note) Changed() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.dirty {
		return true
	}
	return n.buffer != nil && n.buffer.Version() != n.savedVersion
}

// AuthoritativeContent returns what should be written on save: the buffer's
// content when one is attached, otherwise the in-memory content.
func (n *Note) AuthoritativeContent() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.buffer != nil {
		return n.buffer.Content()
	}
	return n.content
}

func (n *Note) setOwner(nb *Notebook, name string) {
	n.mu.Lock()
	n.notebook = nb
	n.name = name
	n.mu.Unlock()
}
