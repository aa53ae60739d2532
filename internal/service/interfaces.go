package service

import (
	"context"

	"github.com/xxxsen/noteimport/internal/model"
	"github.com/xxxsen/noteimport/internal/notify"
)

type JobStore interface {
	Create(ctx context.Context, job *model.ImportJob) error
	Get(ctx context.Context, userID, jobID string) (*model.ImportJob, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]model.ImportJob, error)
	UpdateProgress(ctx context.Context, job *model.ImportJob) error
	FailStale(ctx context.Context, cutoff int64, message string, now int64) (int64, error)
}

type NotebookStore interface {
	Create(ctx context.Context, nb *model.Notebook) error
	GetByName(ctx context.Context, userID, name string) (*model.Notebook, error)
}

type NoteStore interface {
	Create(ctx context.Context, note *model.Note) error
}

type TagStore interface {
	Upsert(ctx context.Context, tag *model.Tag) (*model.Tag, error)
}

type NoteTagStore interface {
	Link(ctx context.Context, userID, noteID string, tagIDs []string) error
}

type AttachmentStore interface {
	CreateBatch(ctx context.Context, items []model.Attachment) error
}

// TransactionManager runs fn in one database transaction; stores called with
// the context passed to fn join it.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, msg *notify.JobMessage) error
}
