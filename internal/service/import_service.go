package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/noteimport/internal/importer"
	"github.com/xxxsen/noteimport/internal/importer/enml"
	"github.com/xxxsen/noteimport/internal/model"
	"github.com/xxxsen/noteimport/internal/notify"
	appErr "github.com/xxxsen/noteimport/internal/pkg/errors"
	"github.com/xxxsen/noteimport/internal/pkg/timeutil"
)

type ImportRequest struct {
	OwnerID      string
	Filename     string
	MimeType     string
	Data         []byte
	NotebookName string
	// ModifiedAt is the upload's last modified time, used by single file formats.
	ModifiedAt *time.Time
}

type ImportOptions struct {
	Workers         int
	DefaultNotebook string
}

type ImportStores struct {
	Jobs        JobStore
	Notebooks   NotebookStore
	Notes       NoteStore
	NoteTags    NoteTagStore
	Attachments AttachmentStore
	Tx          TransactionManager
}

type ImportService struct {
	stores    ImportStores
	tags      *TagService
	objects   importer.ObjectStore
	publisher Publisher
	opts      ImportOptions
}

func NewImportService(stores ImportStores, tags *TagService, objects importer.ObjectStore, publisher Publisher, opts ImportOptions) *ImportService {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if strings.TrimSpace(opts.DefaultNotebook) == "" {
		opts.DefaultNotebook = model.DefaultNotebookName
	}
	if publisher == nil {
		publisher = notify.Nop{}
	}
	return &ImportService{
		stores:    stores,
		tags:      tags,
		objects:   objects,
		publisher: publisher,
		opts:      opts,
	}
}

// noteResult is the outcome of importing one note. A non nil err means no
// row of that note was committed.
type noteResult struct {
	title    string
	err      error
	degraded []model.ResourceFailure
}

// importRun carries the state shared by the notes of one job.
type importRun struct {
	job      *model.ImportJob
	resolver *importer.Resolver
	logger   *zap.Logger
	mu       sync.Mutex
}

// Import runs one upload to completion and returns the final job snapshot.
// An unsupported format is rejected before any job exists; every later
// failure is recorded on the returned job instead.
func (s *ImportService) Import(ctx context.Context, req ImportRequest) (*model.ImportJob, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, appErr.ErrInvalid
	}
	format, err := importer.Detect(req.Filename, req.MimeType)
	if err != nil {
		return nil, err
	}
	now := timeutil.NowUnix()
	job := &model.ImportJob{
		ID:             newID(),
		UserID:         req.OwnerID,
		SourceFilename: req.Filename,
		Format:         string(format),
		Status:         model.ImportStatusPending,
		Errors:         []model.ImportError{},
		Warnings:       []model.ImportError{},
		Ctime:          now,
		Mtime:          now,
	}
	if err := s.stores.Jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create import job: %w", err)
	}
	run := &importRun{
		job:      job,
		resolver: importer.NewResolver(s.objects, req.OwnerID),
		logger: logutil.GetLogger(ctx).With(
			zap.String("job_id", job.ID), zap.String("owner", job.UserID)),
	}
	run.logger.Info("import job created",
		zap.String("filename", req.Filename), zap.String("format", job.Format), zap.Int("size", len(req.Data)))

	notebook, err := s.ensureNotebook(ctx, req.OwnerID, req.NotebookName)
	if err != nil {
		return s.fail(ctx, run, fmt.Sprintf("resolve notebook: %v", err))
	}
	job.NotebookID = notebook.ID
	job.Status = model.ImportStatusRunning
	job.StartedAt = timeutil.NowUnix()
	if err := s.saveProgress(ctx, job); err != nil {
		return nil, err
	}

	doc, err := importer.Parse(ctx, format, req.Filename, req.Data, req.ModifiedAt)
	if err != nil {
		return s.fail(ctx, run, err.Error())
	}
	total := len(doc.Notes) + len(doc.Failures)
	job.TotalNotes = &total
	for _, failure := range doc.Failures {
		job.FailedCount++
		job.Errors = append(job.Errors, model.ImportError{NoteTitle: failure.Title, Message: failure.Message})
	}
	if err := s.saveProgress(ctx, job); err != nil {
		return nil, err
	}

	g := new(errgroup.Group)
	g.SetLimit(s.opts.Workers)
	for i := range doc.Notes {
		note := doc.Notes[i]
		g.Go(func() error {
			res := s.importNote(ctx, run, &note)
			s.record(ctx, run, res)
			return nil
		})
	}
	_ = g.Wait()
	return s.finish(ctx, run)
}

func (s *ImportService) ensureNotebook(ctx context.Context, userID, name string) (*model.Notebook, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = s.opts.DefaultNotebook
	}
	nb, err := s.stores.Notebooks.GetByName(ctx, userID, name)
	if err == nil {
		return nb, nil
	}
	if !appErr.IsNotFound(err) {
		return nil, err
	}
	now := timeutil.NowUnix()
	nb = &model.Notebook{ID: newID(), UserID: userID, Name: name, Ctime: now, Mtime: now}
	if err := s.stores.Notebooks.Create(ctx, nb); err != nil {
		if appErr.IsConflict(err) {
			return s.stores.Notebooks.GetByName(ctx, userID, name)
		}
		return nil, err
	}
	return nb, nil
}

func (s *ImportService) importNote(ctx context.Context, run *importRun, note *model.ExportNote) (res noteResult) {
	res.title = note.Title
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("%w: panic: %v", appErr.ErrNoteImport, r)
		}
	}()
	userID := run.job.UserID
	resolved := run.resolver.Resolve(ctx, note.Resources)
	for _, failed := range resolved.Failed {
		res.degraded = append(res.degraded, model.ResourceFailure{
			Hash:     failed.Hash,
			Filename: failed.Filename,
			Message:  failed.Err.Error(),
		})
	}

	content := note.RawContent
	if note.ContentFormat == model.ContentFormatENML {
		content = enml.Translate(note.RawContent, resolved.Resolved)
	}
	record := buildNote(userID, run.job.NotebookID, note, content)
	attachments := buildAttachments(userID, record.ID, note.Resources, resolved.Resolved, record.Ctime)

	var tags []model.Tag
	err := s.stores.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if tags, err = s.tags.EnsureTags(ctx, userID, note.TagNames); err != nil {
			return fmt.Errorf("upsert tags: %w", err)
		}
		if err := s.stores.Notes.Create(ctx, record); err != nil {
			return fmt.Errorf("create note: %w", err)
		}
		if len(tags) > 0 {
			ids := make([]string, 0, len(tags))
			for _, tag := range tags {
				ids = append(ids, tag.ID)
			}
			if err := s.stores.NoteTags.Link(ctx, userID, record.ID, ids); err != nil {
				return fmt.Errorf("link tags: %w", err)
			}
		}
		if len(attachments) > 0 {
			if err := s.stores.Attachments.CreateBatch(ctx, attachments); err != nil {
				return fmt.Errorf("create attachments: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		res.err = fmt.Errorf("%w: %v", appErr.ErrNoteImport, err)
		return res
	}
	s.tags.Remember(userID, tags)
	return res
}

func buildNote(userID, notebookID string, note *model.ExportNote, content string) *model.Note {
	created := timeutil.UnixOrNow(note.CreatedAt)
	updated := created
	if note.UpdatedAt != nil {
		updated = note.UpdatedAt.Unix()
	}
	record := &model.Note{
		ID:         newID(),
		UserID:     userID,
		NotebookID: notebookID,
		Title:      note.Title,
		Content:    content,
		PlainText:  importer.Plaintext(content),
		Ctime:      created,
		Mtime:      updated,
	}
	if attrs := note.Attributes; attrs != nil {
		record.SourceURL = attrs.SourceURL
		record.SourceApplication = attrs.SourceApplication
		if record.SourceApplication == "" {
			record.SourceApplication = attrs.Source
		}
		record.Author = attrs.Author
		record.ContentClass = attrs.ContentClass
		record.Latitude = attrs.Latitude
		record.Longitude = attrs.Longitude
		record.Altitude = attrs.Altitude
		record.ReminderOrder = attrs.ReminderOrder
		if attrs.ReminderTime != nil {
			record.ReminderTime = attrs.ReminderTime.Unix()
		}
		if attrs.ReminderDoneTime != nil {
			record.ReminderDoneTime = attrs.ReminderDoneTime.Unix()
		}
	}
	return record
}

// buildAttachments emits one row per distinct stored resource of a note.
func buildAttachments(userID, noteID string, resources []model.ExportResource, resolved map[string]importer.Resolved, ctime int64) []model.Attachment {
	out := make([]model.Attachment, 0, len(resolved))
	seen := make(map[string]struct{}, len(resolved))
	for _, res := range resources {
		hash := importer.ContentHash(res)
		item, ok := resolved[hash]
		if !ok {
			continue
		}
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}
		out = append(out, model.Attachment{
			ID:       newID(),
			UserID:   userID,
			NoteID:   noteID,
			Hash:     hash,
			FileKey:  item.FileKey,
			Locator:  item.Locator,
			MimeType: item.MimeType,
			Filename: item.Filename,
			Size:     item.Size,
			Width:    item.Width,
			Height:   item.Height,
			Ctime:    ctime,
		})
	}
	return out
}

// record folds one note outcome into the job and persists progress.
func (s *ImportService) record(ctx context.Context, run *importRun, res noteResult) {
	run.mu.Lock()
	defer run.mu.Unlock()
	job := run.job
	logger := run.logger.With(zap.String("note_title", res.title))
	if res.err != nil {
		job.FailedCount++
		job.Errors = append(job.Errors, model.ImportError{
			NoteTitle: res.title,
			Message:   res.err.Error(),
			Resources: res.degraded,
		})
		logger.Warn("note import failed", zap.Error(res.err))
	} else {
		job.ImportedCount++
		if len(res.degraded) > 0 {
			job.Warnings = append(job.Warnings, model.ImportError{
				NoteTitle: res.title,
				Message:   fmt.Sprintf("%d attachment(s) could not be stored", len(res.degraded)),
				Resources: res.degraded,
			})
			logger.Warn("note imported without some attachments", zap.Int("missing", len(res.degraded)))
		}
	}
	if err := s.saveProgress(ctx, job); err != nil {
		logger.Error("save import progress failed", zap.Error(err))
	}
}

func (s *ImportService) saveProgress(ctx context.Context, job *model.ImportJob) error {
	job.Mtime = timeutil.NowUnix()
	if err := s.stores.Jobs.UpdateProgress(ctx, job); err != nil {
		return fmt.Errorf("update import job: %w", err)
	}
	return nil
}

func (s *ImportService) fail(ctx context.Context, run *importRun, message string) (*model.ImportJob, error) {
	run.job.Errors = append(run.job.Errors, model.ImportError{Message: message})
	run.job.Status = model.ImportStatusFailed
	run.logger.Error("import job failed", zap.String("reason", message))
	return s.complete(ctx, run)
}

func (s *ImportService) finish(ctx context.Context, run *importRun) (*model.ImportJob, error) {
	job := run.job
	switch {
	case job.ImportedCount == 0:
		job.Status = model.ImportStatusFailed
		if job.TotalNotes != nil && *job.TotalNotes == 0 {
			job.Errors = append(job.Errors, model.ImportError{Message: "export contains no notes"})
		}
	case job.FailedCount == 0:
		job.Status = model.ImportStatusCompleted
	default:
		job.Status = model.ImportStatusCompletedWithErrors
	}
	return s.complete(ctx, run)
}

func (s *ImportService) complete(ctx context.Context, run *importRun) (*model.ImportJob, error) {
	job := run.job
	job.CompletedAt = timeutil.NowUnix()
	if err := s.saveProgress(ctx, job); err != nil {
		if !errors.Is(err, appErr.ErrNotFound) {
			return nil, err
		}
		// someone else already finished the job, report what is stored
		stored, getErr := s.stores.Jobs.Get(ctx, job.UserID, job.ID)
		if getErr != nil {
			return nil, err
		}
		job = stored
	}
	run.logger.Info("import job finished",
		zap.String("status", job.Status),
		zap.Int("imported", job.ImportedCount),
		zap.Int("failed", job.FailedCount))
	if err := s.publisher.Publish(ctx, notify.NewJobMessage(job)); err != nil {
		run.logger.Warn("publish job event failed", zap.Error(err))
	}
	return job, nil
}
