package api

// NotebookItem is a notebook with its note names.
type NotebookItem struct {
	Name  string   `json:"name" example:"Work" validate:"required"`
	Dir   string   `json:"dir" example:"work" validate:"required"`
	Notes []string `json:"notes" validate:"required"`
}

// NotebookListResponse wraps the notebook listing.
type NotebookListResponse struct {
	Notebooks []NotebookItem `json:"notebooks" validate:"required"`
}

// NameRequest is the body for creating or renaming a notebook or note.
type NameRequest struct {
	Name string `json:"name" example:"Work" validate:"required"`
}

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Name       string  `json:"name" example:"todo" validate:"required"`
	Content    *string `json:"content,omitempty" example:"- buy milk"`
	FromOrphan bool    `json:"from_orphan,omitempty"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content string `json:"content" example:"- buy milk"`
}

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Notebook string   `json:"notebook,omitempty" example:"Work"`
	Name     string   `json:"name" example:"todo"`
	Path     string   `json:"path,omitempty" example:"work/todo.md"`
	Title    string   `json:"title" example:"Todo"`
	Content  string   `json:"content" example:"- buy milk"`
	Checksum string   `json:"checksum"`
	Tags     []string `json:"tags"`
	Changed  bool     `json:"changed"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"work/todo.md" validate:"required"`
	Title   string `json:"title" example:"Todo" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}
