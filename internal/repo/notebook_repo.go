package repo

import (
	"context"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/noteimport/internal/model"
	"github.com/xxxsen/noteimport/internal/pkg/dbutil"
	appErr "github.com/xxxsen/noteimport/internal/pkg/errors"
)

var errNotFound = appErr.ErrNotFound

var notebookFields = []string{"id", "user_id", "name", "ctime", "mtime"}

type NotebookRepo struct {
	db *sqlx.DB
}

func NewNotebookRepo(db *sqlx.DB) *NotebookRepo {
	return &NotebookRepo{db: db}
}

func (r *NotebookRepo) Create(ctx context.Context, nb *model.Notebook) error {
	sqlStr, args, err := builder.BuildInsert("notebooks", []map[string]interface{}{{
		"id":      nb.ID,
		"user_id": nb.UserID,
		"name":    nb.Name,
		"ctime":   nb.Ctime,
		"mtime":   nb.Mtime,
	}})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := executor(ctx, r.db).ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *NotebookRepo) GetByName(ctx context.Context, userID, name string) (*model.Notebook, error) {
	sqlStr, args, err := builder.BuildSelect("notebooks", map[string]interface{}{
		"user_id": userID,
		"name":    name,
	}, notebookFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := executor(ctx, r.db).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, appErr.ErrNotFound
	}
	var nb model.Notebook
	if err := rows.Scan(&nb.ID, &nb.UserID, &nb.Name, &nb.Ctime, &nb.Mtime); err != nil {
		return nil, err
	}
	return &nb, nil
}
