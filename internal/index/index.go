// Package index reads and writes the canonical notebook manifest
// (.note-index.json): notebook name → sorted note names.
package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// Index maps notebook names to note names.
type Index map[string][]string

// Clone returns a deep copy.
func (ix Index) Clone() Index {
	out := make(Index, len(ix))
	for nb, notes := range ix {
		out[nb] = slices.Clone(notes)
		if out[nb] == nil {
			out[nb] = []string{}
		}
	}
	return out
}

// Notebooks returns the sorted notebook names.
func (ix Index) Notebooks() []string {
	out := make([]string, 0, len(ix))
	for nb := range ix {
		out = append(out, nb)
	}
	sort.Strings(out)
	return out
}

// Equal reports whether both indexes hold the same mapping, ignoring order.
func (ix Index) Equal(other Index) bool {
	if len(ix) != len(other) {
		return false
	}
	a, b := ix.canonical(), other.canonical()
	for nb, notes := range a {
		o, ok := b[nb]
		if !ok || !slices.Equal(notes, o) {
			return false
		}
	}
	return true
}

// WithNotebook returns a copy containing an empty notebook name.
func (ix Index) WithNotebook(name string) Index {
	out := ix.Clone()
	if _, ok := out[name]; !ok {
		out[name] = []string{}
	}
	return out
}

// RenameNotebook returns a copy with notebook from stored under to.
func (ix Index) RenameNotebook(from, to string) Index {
	out := ix.Clone()
	notes, ok := out[from]
	if !ok {
		return out
	}
	delete(out, from)
	out[to] = notes
	return out
}

// WithoutNotebook returns a copy without notebook name.
func (ix Index) WithoutNotebook(name string) Index {
	out := ix.Clone()
	delete(out, name)
	return out
}

// WithNote returns a copy with note added to notebook, creating the notebook
// entry if needed.
func (ix Index) WithNote(notebook, note string) Index {
	out := ix.Clone()
	notes := out[notebook]
	if !slices.Contains(notes, note) {
		notes = append(notes, note)
	}
	if notes == nil {
		notes = []string{}
	}
	out[notebook] = notes
	return out
}

// RenameNote returns a copy with note from renamed to to inside notebook.
func (ix Index) RenameNote(notebook, from, to string) Index {
	out := ix.Clone()
	notes := out[notebook]
	if i := slices.Index(notes, from); i >= 0 {
		notes[i] = to
	}
	return out
}

// WithoutNote returns a copy with note removed from notebook.
func (ix Index) WithoutNote(notebook, note string) Index {
	out := ix.Clone()
	if notes, ok := out[notebook]; ok {
		out[notebook] = slices.DeleteFunc(notes, func(n string) bool { return n == note })
	}
	return out
}

// canonical returns a copy with every note list sorted and non-nil.
func (ix Index) canonical() Index {
	out := ix.Clone()
	for _, notes := range out {
		sort.Strings(notes)
	}
	return out
}

// Marshal renders the canonical form: keys sorted, note names sorted,
// two-space indentation, trailing newline. The same mapping always
// yields the same bytes.
func Marshal(ix Index) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if ix == nil {
		ix = Index{}
	}
	// encoding/json writes map keys in sorted order.
	if err := enc.Encode(map[string][]string(ix.canonical())); err != nil {
		return nil, fmt.Errorf("index: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal validates data against the index schema and decodes it.
func Unmarshal(data []byte) (Index, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("index: decode: %w", err)
	}
	return Index(raw).canonical(), nil
}
