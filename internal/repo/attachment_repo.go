package repo

import (
	"context"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/noteimport/internal/model"
	"github.com/xxxsen/noteimport/internal/pkg/dbutil"
)

var attachmentFields = []string{
	"id", "user_id", "note_id", "hash", "file_key", "locator", "mime_type", "filename", "size", "width", "height", "ctime",
}

type AttachmentRepo struct {
	db *sqlx.DB
}

func NewAttachmentRepo(db *sqlx.DB) *AttachmentRepo {
	return &AttachmentRepo{db: db}
}

func (r *AttachmentRepo) CreateBatch(ctx context.Context, items []model.Attachment) error {
	if len(items) == 0 {
		return nil
	}
	data := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		data = append(data, map[string]interface{}{
			"id":        item.ID,
			"user_id":   item.UserID,
			"note_id":   item.NoteID,
			"hash":      item.Hash,
			"file_key":  item.FileKey,
			"locator":   item.Locator,
			"mime_type": item.MimeType,
			"filename":  item.Filename,
			"size":      item.Size,
			"width":     item.Width,
			"height":    item.Height,
			"ctime":     item.Ctime,
		})
	}
	sqlStr, args, err := builder.BuildInsert("attachments", data)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = executor(ctx, r.db).ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *AttachmentRepo) ListByNote(ctx context.Context, userID, noteID string) ([]model.Attachment, error) {
	sqlStr, args, err := builder.BuildSelect("attachments", map[string]interface{}{
		"user_id":  userID,
		"note_id":  noteID,
		"_orderby": "ctime asc",
	}, attachmentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := executor(ctx, r.db).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	items := make([]model.Attachment, 0)
	for rows.Next() {
		var item model.Attachment
		if err := rows.Scan(&item.ID, &item.UserID, &item.NoteID, &item.Hash, &item.FileKey, &item.Locator,
			&item.MimeType, &item.Filename, &item.Size, &item.Width, &item.Height, &item.Ctime); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
