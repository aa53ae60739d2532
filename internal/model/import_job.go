package model

const (
	ImportStatusPending             = "pending"
	ImportStatusRunning             = "running"
	ImportStatusCompleted           = "completed"
	ImportStatusCompletedWithErrors = "completed_with_errors"
	ImportStatusFailed              = "failed"
)

func IsTerminalStatus(status string) bool {
	switch status {
	case ImportStatusCompleted, ImportStatusCompletedWithErrors, ImportStatusFailed:
		return true
	}
	return false
}

type ImportError struct {
	NoteTitle string            `json:"note_title"`
	Message   string            `json:"message"`
	Resources []ResourceFailure `json:"resources,omitempty"`
}

type ResourceFailure struct {
	Hash     string `json:"hash"`
	Filename string `json:"filename,omitempty"`
	Message  string `json:"message"`
}

type ImportJob struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	NotebookID     string        `json:"notebook_id"`
	SourceFilename string        `json:"source_filename"`
	Format         string        `json:"format"`
	Status         string        `json:"status"`
	TotalNotes     *int          `json:"total_notes"`
	ImportedCount  int           `json:"imported_count"`
	FailedCount    int           `json:"failed_count"`
	Errors         []ImportError `json:"errors"`
	// Warnings carries degraded but imported notes, e.g. a dropped attachment.
	Warnings    []ImportError `json:"warnings"`
	StartedAt   int64         `json:"started_at"`
	CompletedAt int64         `json:"completed_at"`
	Ctime       int64         `json:"ctime"`
	Mtime       int64         `json:"mtime"`
}

func (j *ImportJob) Processed() int {
	return j.ImportedCount + j.FailedCount
}
