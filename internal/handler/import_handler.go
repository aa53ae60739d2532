package handler

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/noteimport/internal/model"
	"github.com/xxxsen/noteimport/internal/pkg/errcode"
	"github.com/xxxsen/noteimport/internal/pkg/response"
	"github.com/xxxsen/noteimport/internal/service"
)

type Importer interface {
	Import(ctx context.Context, req service.ImportRequest) (*model.ImportJob, error)
}

type JobReader interface {
	Get(ctx context.Context, userID, jobID string) (*model.ImportJob, error)
	List(ctx context.Context, userID string, limit int) ([]model.ImportJob, error)
}

type ImportHandler struct {
	imports       Importer
	jobs          JobReader
	maxUploadSize int64
}

func NewImportHandler(imports Importer, jobs JobReader, maxUploadSize int64) *ImportHandler {
	return &ImportHandler{imports: imports, jobs: jobs, maxUploadSize: maxUploadSize}
}

type jobView struct {
	*model.ImportJob
	Progress int `json:"progress"`
}

func newJobView(job *model.ImportJob) jobView {
	return jobView{ImportJob: job, Progress: service.Progress(job)}
}

// Upload runs the import synchronously and answers with the final job.
func (h *ImportHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if h.maxUploadSize > 0 && file.Size > h.maxUploadSize {
		response.Error(c, errcode.ErrInvalidFile, "file too large (max "+formatUploadLimit(h.maxUploadSize)+")")
		return
	}
	modifiedAt, err := parseModifiedAt(c.PostForm("modified_at"))
	if err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid modified_at")
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()
	data, err := io.ReadAll(opened)
	if err != nil {
		response.Error(c, errcode.ErrImportFailed, "failed to read file")
		return
	}

	job, err := h.imports.Import(c.Request.Context(), service.ImportRequest{
		OwnerID:      getUserID(c),
		Filename:     file.Filename,
		MimeType:     file.Header.Get("Content-Type"),
		Data:         data,
		NotebookName: strings.TrimSpace(c.PostForm("notebook")),
		ModifiedAt:   modifiedAt,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, newJobView(job))
}

func (h *ImportHandler) Status(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		response.Error(c, errcode.ErrInvalid, "job_id required")
		return
	}
	job, err := h.jobs.Get(c.Request.Context(), getUserID(c), jobID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, newJobView(job))
}

func (h *ImportHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			response.Error(c, errcode.ErrInvalid, "invalid limit")
			return
		}
		limit = parsed
	}
	jobs, err := h.jobs.List(c.Request.Context(), getUserID(c), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	items := make([]jobView, 0, len(jobs))
	for i := range jobs {
		items = append(items, newJobView(&jobs[i]))
	}
	response.Success(c, gin.H{"items": items})
}

// parseModifiedAt accepts RFC 3339 or unix seconds; empty means unknown.
func parseModifiedAt(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t := time.Unix(secs, 0).UTC()
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
