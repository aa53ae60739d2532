package notify

import (
	"context"
	"time"

	"github.com/xxxsen/noteimport/internal/model"
)

const ActionJobFinished = "import.job.finished"

type Publisher interface {
	Publish(ctx context.Context, msg *JobMessage) error
	Close() error
}

type JobMessage struct {
	Action         string `json:"action"`
	JobID          string `json:"job_id"`
	UserID         string `json:"user_id"`
	NotebookID     string `json:"notebook_id"`
	SourceFilename string `json:"source_filename"`
	Status         string `json:"status"`
	TotalNotes     *int   `json:"total_notes"`
	ImportedCount  int    `json:"imported_count"`
	FailedCount    int    `json:"failed_count"`
	CompletedAt    int64  `json:"completed_at"`
	// Timestamp is when the message was built, not when the job ended.
	Timestamp time.Time `json:"timestamp"`
}

func NewJobMessage(job *model.ImportJob) *JobMessage {
	return &JobMessage{
		Action:         ActionJobFinished,
		JobID:          job.ID,
		UserID:         job.UserID,
		NotebookID:     job.NotebookID,
		SourceFilename: job.SourceFilename,
		Status:         job.Status,
		TotalNotes:     job.TotalNotes,
		ImportedCount:  job.ImportedCount,
		FailedCount:    job.FailedCount,
		CompletedAt:    job.CompletedAt,
		Timestamp:      time.Now().UTC(),
	}
}

// Nop drops every message; used when notify is disabled.
type Nop struct{}

func (Nop) Publish(context.Context, *JobMessage) error { return nil }

func (Nop) Close() error { return nil }
