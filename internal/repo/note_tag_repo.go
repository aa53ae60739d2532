package repo

import (
	"context"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/noteimport/internal/pkg/dbutil"
)

type NoteTagRepo struct {
	db *sqlx.DB
}

func NewNoteTagRepo(db *sqlx.DB) *NoteTagRepo {
	return &NoteTagRepo{db: db}
}

func (r *NoteTagRepo) Link(ctx context.Context, userID, noteID string, tagIDs []string) error {
	if len(tagIDs) == 0 {
		return nil
	}
	data := make([]map[string]interface{}, 0, len(tagIDs))
	for _, tagID := range tagIDs {
		data = append(data, map[string]interface{}{
			"user_id": userID,
			"note_id": noteID,
			"tag_id":  tagID,
		})
	}
	sqlStr, args, err := builder.BuildInsert("note_tags", data)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr+" ON CONFLICT DO NOTHING", args)
	_, err = executor(ctx, r.db).ExecContext(ctx, sqlStr, args...)
	return err
}
