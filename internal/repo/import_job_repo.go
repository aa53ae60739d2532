package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/noteimport/internal/model"
	"github.com/xxxsen/noteimport/internal/pkg/dbutil"
	appErr "github.com/xxxsen/noteimport/internal/pkg/errors"
)

var importJobFields = []string{
	"id", "user_id", "notebook_id", "source_filename", "format", "status",
	"total_notes", "imported_count", "failed_count", "errors_json", "warnings_json",
	"started_at", "completed_at", "ctime", "mtime",
}

// activeStatuses are the only statuses a job may still be moved out of.
var activeStatuses = []interface{}{model.ImportStatusPending, model.ImportStatusRunning}

type ImportJobRepo struct {
	db *sqlx.DB
}

func NewImportJobRepo(db *sqlx.DB) *ImportJobRepo {
	return &ImportJobRepo{db: db}
}

func (r *ImportJobRepo) Create(ctx context.Context, job *model.ImportJob) error {
	errorsJSON, warningsJSON, err := encodeReport(job)
	if err != nil {
		return err
	}
	sqlStr, args, err := builder.BuildInsert("import_jobs", []map[string]interface{}{{
		"id":              job.ID,
		"user_id":         job.UserID,
		"notebook_id":     job.NotebookID,
		"source_filename": job.SourceFilename,
		"format":          job.Format,
		"status":          job.Status,
		"total_notes":     nullableInt(job.TotalNotes),
		"imported_count":  job.ImportedCount,
		"failed_count":    job.FailedCount,
		"errors_json":     errorsJSON,
		"warnings_json":   warningsJSON,
		"started_at":      job.StartedAt,
		"completed_at":    job.CompletedAt,
		"ctime":           job.Ctime,
		"mtime":           job.Mtime,
	}})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = executor(ctx, r.db).ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ImportJobRepo) Get(ctx context.Context, userID, jobID string) (*model.ImportJob, error) {
	sqlStr, args, err := builder.BuildSelect("import_jobs", map[string]interface{}{
		"id":      jobID,
		"user_id": userID,
	}, importJobFields)
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
	return scanImportJob(rows)
}

func (r *ImportJobRepo) ListByUser(ctx context.Context, userID string, limit int) ([]model.ImportJob, error) {
	where := map[string]interface{}{
		"user_id":  userID,
		"_orderby": "ctime desc, id desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, uint(limit)}
	}
	sqlStr, args, err := builder.BuildSelect("import_jobs", where, importJobFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := executor(ctx, r.db).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	jobs := make([]model.ImportJob, 0)
	for rows.Next() {
		job, err := scanImportJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// UpdateProgress stores counters, the report and status of a job that has
// not reached a terminal status yet. It returns ErrNotFound when the job is
// missing or already finished.
func (r *ImportJobRepo) UpdateProgress(ctx context.Context, job *model.ImportJob) error {
	errorsJSON, warningsJSON, err := encodeReport(job)
	if err != nil {
		return err
	}
	where := map[string]interface{}{
		"id":        job.ID,
		"user_id":   job.UserID,
		"status in": activeStatuses,
	}
	update := map[string]interface{}{
		"notebook_id":    job.NotebookID,
		"status":         job.Status,
		"total_notes":    nullableInt(job.TotalNotes),
		"imported_count": job.ImportedCount,
		"failed_count":   job.FailedCount,
		"errors_json":    errorsJSON,
		"warnings_json":  warningsJSON,
		"started_at":     job.StartedAt,
		"completed_at":   job.CompletedAt,
		"mtime":          job.Mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("import_jobs", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := executor(ctx, r.db).ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res.RowsAffected())
}

// FailStale moves jobs that stayed active since before cutoff to failed and
// appends message to whatever errors they already recorded.
func (r *ImportJobRepo) FailStale(ctx context.Context, cutoff int64, message string, now int64) (int64, error) {
	report, err := json.Marshal([]model.ImportError{{Message: message}})
	if err != nil {
		return 0, err
	}
	sqlStr := `
		UPDATE import_jobs
		SET status = ?,
			errors_json = (COALESCE(NULLIF(errors_json, ''), '[]')::jsonb || ?::jsonb)::text,
			completed_at = ?,
			mtime = ?
		WHERE status IN (?, ?) AND mtime < ?
	`
	args := []interface{}{model.ImportStatusFailed, string(report), now, now}
	args = append(args, activeStatuses...)
	args = append(args, cutoff)
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := executor(ctx, r.db).ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanImportJob(row rowScanner) (*model.ImportJob, error) {
	var job model.ImportJob
	var total sql.NullInt64
	var errorsJSON, warningsJSON string
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.NotebookID,
		&job.SourceFilename,
		&job.Format,
		&job.Status,
		&total,
		&job.ImportedCount,
		&job.FailedCount,
		&errorsJSON,
		&warningsJSON,
		&job.StartedAt,
		&job.CompletedAt,
		&job.Ctime,
		&job.Mtime,
	); err != nil {
		return nil, err
	}
	if total.Valid {
		v := int(total.Int64)
		job.TotalNotes = &v
	}
	job.Errors = []model.ImportError{}
	job.Warnings = []model.ImportError{}
	if errorsJSON != "" {
		_ = json.Unmarshal([]byte(errorsJSON), &job.Errors)
	}
	if warningsJSON != "" {
		_ = json.Unmarshal([]byte(warningsJSON), &job.Warnings)
	}
	return &job, nil
}

func encodeReport(job *model.ImportJob) (string, string, error) {
	errs := job.Errors
	if errs == nil {
		errs = []model.ImportError{}
	}
	warnings := job.Warnings
	if warnings == nil {
		warnings = []model.ImportError{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return "", "", err
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return "", "", err
	}
	return string(errorsJSON), string(warningsJSON), nil
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
