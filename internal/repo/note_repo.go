package repo

import (
	"context"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/noteimport/internal/model"
	"github.com/xxxsen/noteimport/internal/pkg/dbutil"
	appErr "github.com/xxxsen/noteimport/internal/pkg/errors"
)

var noteFields = []string{
	"id", "user_id", "notebook_id", "title", "content", "plain_text",
	"source_url", "source_application", "author", "content_class",
	"latitude", "longitude", "altitude",
	"reminder_time", "reminder_done_time", "reminder_order",
	"ctime", "mtime",
}

type NoteRepo struct {
	db *sqlx.DB
}

func NewNoteRepo(db *sqlx.DB) *NoteRepo {
	return &NoteRepo{db: db}
}

func (r *NoteRepo) Create(ctx context.Context, note *model.Note) error {
	sqlStr, args, err := builder.BuildInsert("notes", []map[string]interface{}{{
		"id":                 note.ID,
		"user_id":            note.UserID,
		"notebook_id":        note.NotebookID,
		"title":              note.Title,
		"content":            note.Content,
		"plain_text":         note.PlainText,
		"source_url":         note.SourceURL,
		"source_application": note.SourceApplication,
		"author":             note.Author,
		"content_class":      note.ContentClass,
		"latitude":           note.Latitude,
		"longitude":          note.Longitude,
		"altitude":           note.Altitude,
		"reminder_time":      note.ReminderTime,
		"reminder_done_time": note.ReminderDoneTime,
		"reminder_order":     note.ReminderOrder,
		"ctime":              note.Ctime,
		"mtime":              note.Mtime,
	}})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = executor(ctx, r.db).ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *NoteRepo) GetByID(ctx context.Context, userID, noteID string) (*model.Note, error) {
	sqlStr, args, err := builder.BuildSelect("notes", map[string]interface{}{
		"id":      noteID,
		"user_id": userID,
	}, noteFields)
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
	note, err := scanNote(rows)
	if err != nil {
		return nil, err
	}
	return note, nil
}

func (r *NoteRepo) ListByNotebook(ctx context.Context, userID, notebookID string) ([]model.Note, error) {
	sqlStr, args, err := builder.BuildSelect("notes", map[string]interface{}{
		"user_id":     userID,
		"notebook_id": notebookID,
		"_orderby":    "ctime asc",
	}, noteFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := executor(ctx, r.db).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	notes := make([]model.Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, *note)
	}
	return notes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNote(row rowScanner) (*model.Note, error) {
	var note model.Note
	if err := row.Scan(
		&note.ID,
		&note.UserID,
		&note.NotebookID,
		&note.Title,
		&note.Content,
		&note.PlainText,
		&note.SourceURL,
		&note.SourceApplication,
		&note.Author,
		&note.ContentClass,
		&note.Latitude,
		&note.Longitude,
		&note.Altitude,
		&note.ReminderTime,
		&note.ReminderDoneTime,
		&note.ReminderOrder,
		&note.Ctime,
		&note.Mtime,
	); err != nil {
		return nil, err
	}
	return &note, nil
}
