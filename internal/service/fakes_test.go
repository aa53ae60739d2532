package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xxxsen/noteimport/internal/model"
	"github.com/xxxsen/noteimport/internal/notify"
	appErr "github.com/xxxsen/noteimport/internal/pkg/errors"
)

// memDB is an in-memory stand in for the database. Transactions snapshot
// the note side tables and restore them on error.
type memDB struct {
	mu          sync.Mutex
	notebooks   map[string]model.Notebook
	notes       map[string]model.Note
	tags        map[string]model.Tag
	noteTags    []model.NoteTag
	attachments []model.Attachment
	jobs        map[string]model.ImportJob
	jobCreates  int
	progress    map[string][]int
	upserts     int
	upserted    []string
	listLimit   int

	failNoteTitle string
	failLink      bool
}

type memSnapshot struct {
	notebooks   map[string]model.Notebook
	notes       map[string]model.Note
	tags        map[string]model.Tag
	noteTags    []model.NoteTag
	attachments []model.Attachment
}

func newMemDB() *memDB {
	return &memDB{
		notebooks: make(map[string]model.Notebook),
		notes:     make(map[string]model.Note),
		tags:      make(map[string]model.Tag),
		jobs:      make(map[string]model.ImportJob),
		progress:  make(map[string][]int),
	}
}

func (db *memDB) stores() ImportStores {
	return ImportStores{
		Jobs:        memJobs{db},
		Notebooks:   memNotebooks{db},
		Notes:       memNotes{db},
		NoteTags:    memNoteTags{db},
		Attachments: memAttachments{db},
		Tx:          memTx{db},
	}
}

func (db *memDB) snapshot() memSnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	snap := memSnapshot{
		notebooks:   make(map[string]model.Notebook, len(db.notebooks)),
		notes:       make(map[string]model.Note, len(db.notes)),
		tags:        make(map[string]model.Tag, len(db.tags)),
		noteTags:    append([]model.NoteTag(nil), db.noteTags...),
		attachments: append([]model.Attachment(nil), db.attachments...),
	}
	for k, v := range db.notebooks {
		snap.notebooks[k] = v
	}
	for k, v := range db.notes {
		snap.notes[k] = v
	}
	for k, v := range db.tags {
		snap.tags[k] = v
	}
	return snap
}

func (db *memDB) restore(snap memSnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.notebooks = snap.notebooks
	db.notes = snap.notes
	db.tags = snap.tags
	db.noteTags = snap.noteTags
	db.attachments = snap.attachments
}

func (db *memDB) notesByTitle(title string) []model.Note {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []model.Note
	for _, n := range db.notes {
		if n.Title == title {
			out = append(out, n)
		}
	}
	return out
}

func (db *memDB) tagNames() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]string, 0, len(db.tags))
	for _, t := range db.tags {
		out = append(out, t.Name)
	}
	sort.Strings(out)
	return out
}

func (db *memDB) linksOf(noteID string) []model.NoteTag {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []model.NoteTag
	for _, l := range db.noteTags {
		if l.NoteID == noteID {
			out = append(out, l)
		}
	}
	return out
}

func (db *memDB) attachmentsOf(noteID string) []model.Attachment {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []model.Attachment
	for _, a := range db.attachments {
		if a.NoteID == noteID {
			out = append(out, a)
		}
	}
	return out
}

type memTx struct{ db *memDB }

func (t memTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := t.db.snapshot()
	if err := fn(ctx); err != nil {
		t.db.restore(snap)
		return err
	}
	return nil
}

type memJobs struct{ db *memDB }

func copyJob(job model.ImportJob) model.ImportJob {
	job.Errors = append([]model.ImportError(nil), job.Errors...)
	job.Warnings = append([]model.ImportError(nil), job.Warnings...)
	if job.TotalNotes != nil {
		total := *job.TotalNotes
		job.TotalNotes = &total
	}
	return job
}

func (r memJobs) Create(ctx context.Context, job *model.ImportJob) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.jobCreates++
	r.db.jobs[job.ID] = copyJob(*job)
	return nil
}

func (r memJobs) Get(ctx context.Context, userID, jobID string) (*model.ImportJob, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	job, ok := r.db.jobs[jobID]
	if !ok || job.UserID != userID {
		return nil, appErr.ErrNotFound
	}
	job = copyJob(job)
	return &job, nil
}

func (r memJobs) ListByUser(ctx context.Context, userID string, limit int) ([]model.ImportJob, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.listLimit = limit
	var out []model.ImportJob
	for _, job := range r.db.jobs {
		if job.UserID == userID {
			out = append(out, copyJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ctime > out[j].Ctime })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memJobs) UpdateProgress(ctx context.Context, job *model.ImportJob) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored, ok := r.db.jobs[job.ID]
	if !ok || model.IsTerminalStatus(stored.Status) {
		return appErr.ErrNotFound
	}
	if job.TotalNotes != nil && job.Processed() > *job.TotalNotes {
		return fmt.Errorf("processed %d exceeds total %d", job.Processed(), *job.TotalNotes)
	}
	r.db.jobs[job.ID] = copyJob(*job)
	r.db.progress[job.ID] = append(r.db.progress[job.ID], job.Processed())
	return nil
}

func (r memJobs) FailStale(ctx context.Context, cutoff int64, message string, now int64) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for id, job := range r.db.jobs {
		if model.IsTerminalStatus(job.Status) || job.Mtime >= cutoff {
			continue
		}
		job.Status = model.ImportStatusFailed
		job.Errors = []model.ImportError{{Message: message}}
		job.CompletedAt = now
		job.Mtime = now
		r.db.jobs[id] = job
		n++
	}
	return n, nil
}

type memNotebooks struct{ db *memDB }

func (r memNotebooks) Create(ctx context.Context, nb *model.Notebook) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.notebooks {
		if existing.UserID == nb.UserID && existing.Name == nb.Name {
			return appErr.ErrConflict
		}
	}
	r.db.notebooks[nb.ID] = *nb
	return nil
}

func (r memNotebooks) GetByName(ctx context.Context, userID, name string) (*model.Notebook, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, nb := range r.db.notebooks {
		if nb.UserID == userID && nb.Name == name {
			out := nb
			return &out, nil
		}
	}
	return nil, appErr.ErrNotFound
}

type memNotes struct{ db *memDB }

func (r memNotes) Create(ctx context.Context, note *model.Note) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failNoteTitle != "" && note.Title == r.db.failNoteTitle {
		return fmt.Errorf("insert note: constraint violation")
	}
	r.db.notes[note.ID] = *note
	return nil
}

type memTags struct{ db *memDB }

func (r memTags) Upsert(ctx context.Context, tag *model.Tag) (*model.Tag, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.upserts++
	r.db.upserted = append(r.db.upserted, tag.Name)
	key := tag.UserID + "|" + strings.ToLower(strings.TrimSpace(tag.Name))
	if existing, ok := r.db.tags[key]; ok {
		return &existing, nil
	}
	r.db.tags[key] = *tag
	out := *tag
	return &out, nil
}

type memNoteTags struct{ db *memDB }

func (r memNoteTags) Link(ctx context.Context, userID, noteID string, tagIDs []string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failLink {
		return fmt.Errorf("link failed")
	}
	for _, id := range tagIDs {
		r.db.noteTags = append(r.db.noteTags, model.NoteTag{UserID: userID, NoteID: noteID, TagID: id})
	}
	return nil
}

type memAttachments struct{ db *memDB }

func (r memAttachments) CreateBatch(ctx context.Context, items []model.Attachment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.attachments = append(r.db.attachments, items...)
	return nil
}

// memObjects stores bytes by key; keys listed in failKeys fail.
type memObjects struct {
	mu       sync.Mutex
	puts     map[string]int
	failKeys map[string]bool
}

func newMemObjects() *memObjects {
	return &memObjects{puts: make(map[string]int), failKeys: make(map[string]bool)}
}

func (o *memObjects) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failKeys[key] {
		return "", fmt.Errorf("storage unavailable")
	}
	o.puts[key]++
	return "/files/" + key, nil
}

type memPublisher struct {
	mu       sync.Mutex
	messages []notify.JobMessage
}

func (p *memPublisher) Publish(ctx context.Context, msg *notify.JobMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, *msg)
	return nil
}
