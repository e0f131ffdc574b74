// Package storage defines the note directory file-system abstraction.
package storage

import "time"

// FileInfo describes one markdown file found under the note directory.
type FileInfo struct {
	Path      string // relative, slash separated
	Checksum  string
	UpdatedAt time.Time
}

// Provider is the interface for note directory file operations. All paths are
// relative to the note directory.
type Provider interface {
	// Root returns the absolute note directory.
	Root() string
	// List returns every .md file under dir, skipping hidden directories.
	List(dir string) ([]FileInfo, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Exists reports whether path exists.
	Exists(path string) (bool, error)
	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error
	// Delete removes the file at path.
	Delete(path string) error
	// RemoveAll removes dir and everything below it.
	RemoveAll(dir string) error
	// Move renames oldPath to newPath. Works for files and directories.
	Move(oldPath, newPath string) error
}
