package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/noteimport/internal/model"
	"github.com/xxxsen/noteimport/internal/pkg/dbutil"
	appErr "github.com/xxxsen/noteimport/internal/pkg/errors"
)

var tagFields = []string{"id", "user_id", "name", "ctime", "mtime"}

type TagRepo struct {
	db *sqlx.DB
}

func NewTagRepo(db *sqlx.DB) *TagRepo {
	return &TagRepo{db: db}
}

// NameKey is the case folded form tags are unique on per user.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Upsert inserts tag unless a tag with the same name key already exists for
// the user, and returns whichever row is stored. A concurrent insert of the
// same name is resolved by fetching the winner.
func (r *TagRepo) Upsert(ctx context.Context, tag *model.Tag) (*model.Tag, error) {
	sqlStr := `
		INSERT INTO tags (id, user_id, name, name_key, ctime, mtime)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, name_key) DO NOTHING
		RETURNING id, user_id, name, ctime, mtime
	`
	args := []interface{}{tag.ID, tag.UserID, tag.Name, NameKey(tag.Name), tag.Ctime, tag.Mtime}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var stored model.Tag
	err := executor(ctx, r.db).QueryRowxContext(ctx, sqlStr, args...).Scan(
		&stored.ID, &stored.UserID, &stored.Name, &stored.Ctime, &stored.Mtime,
	)
	switch {
	case err == nil:
		return &stored, nil
	case errors.Is(err, sql.ErrNoRows), dbutil.IsConflict(err):
		return r.GetByName(ctx, tag.UserID, tag.Name)
	default:
		return nil, err
	}
}

func (r *TagRepo) GetByName(ctx context.Context, userID, name string) (*model.Tag, error) {
	sqlStr, args, err := builder.BuildSelect("tags", map[string]interface{}{
		"user_id":  userID,
		"name_key": NameKey(name),
	}, tagFields)
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
	var tag model.Tag
	if err := rows.Scan(&tag.ID, &tag.UserID, &tag.Name, &tag.Ctime, &tag.Mtime); err != nil {
		return nil, err
	}
	return &tag, nil
}

func (r *TagRepo) ListByNames(ctx context.Context, userID string, names []string) ([]model.Tag, error) {
	if len(names) == 0 {
		return []model.Tag{}, nil
	}
	keys := make([]string, 0, len(names))
	for _, name := range names {
		keys = append(keys, NameKey(name))
	}
	where := map[string]interface{}{
		"user_id":     userID,
		"name_key in": dbutil.ToArgs(keys),
	}
	sqlStr, args, err := builder.BuildSelect("tags", where, tagFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := executor(ctx, r.db).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	tags := make([]model.Tag, 0)
	for rows.Next() {
		var tag model.Tag
		if err := rows.Scan(&tag.ID, &tag.UserID, &tag.Name, &tag.Ctime, &tag.Mtime); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (r *TagRepo) ListByNote(ctx context.Context, userID, noteID string) ([]model.Tag, error) {
	sqlStr := `
		SELECT t.id, t.user_id, t.name, t.ctime, t.mtime
		FROM tags t
		JOIN note_tags nt ON nt.tag_id = t.id AND nt.user_id = t.user_id
		WHERE nt.user_id = ? AND nt.note_id = ?
		ORDER BY t.name ASC
	`
	sqlStr, args := dbutil.Finalize(sqlStr, []interface{}{userID, noteID})
	rows, err := executor(ctx, r.db).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	tags := make([]model.Tag, 0)
	for rows.Next() {
		var tag model.Tag
		if err := rows.Scan(&tag.ID, &tag.UserID, &tag.Name, &tag.Ctime, &tag.Mtime); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
