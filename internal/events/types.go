package events

// Notebook lifecycle.
const (
	NotebookCreated      = "notebook.created"
	NotebookCreateFailed = "notebook.create-failed"
	NotebookRenamed      = "notebook.renamed"
	NotebookRenameFailed = "notebook.rename-failed"
	NotebookDeleting     = "notebook.deleting"
	NotebookDeleted      = "notebook.deleted"
	NotebookDeleteFailed = "notebook.delete-failed"
)

// Note lifecycle.
const (
	NoteCreated      = "note.created"
	NoteCreateFailed = "note.create-failed"
	NoteRenamed      = "note.renamed"
	NoteRenameFailed = "note.rename-failed"
	NoteDeleting     = "note.deleting"
	NoteDeleted      = "note.deleted"
	NoteDeleteFailed = "note.delete-failed"
	NoteSaved        = "note.saved"
	NoteSaveFailed   = "note.save-failed"
)

// Index and sync.
const (
	IndexLoaded          = "index.loaded"
	IndexReloaded        = "index.reloaded"
	IndexReloadRequested = "index.reload-requested"
	SyncState            = "sync.state"
	SyncCompleted        = "sync.completed"
	SyncFailed           = "sync.failed"
	SyncConflict         = "sync.conflict"
	AlertFatal           = "alert.fatal"
	AlertWarning         = "alert.warning"
	FileCreated          = "file.created"
	FileUpdated          = "file.updated"
	FileDeleted          = "file.deleted"
	SearchUpdated        = "search.updated"
)

// EntityPayload identifies a notebook or note in lifecycle events.
type EntityPayload struct {
	Notebook string `json:"notebook"`
	Note     string `json:"note,omitempty"`
	NewName  string `json:"new_name,omitempty"`
	Error    string `json:"error,omitempty"`
}

// PathPayload carries a path relative to the note directory.
type PathPayload struct {
	Path string `json:"path"`
}

// AlertPayload is a user-visible alert.
type AlertPayload struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
