package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/xxxsen/noteimport/internal/importer"
	"github.com/xxxsen/noteimport/internal/importer/mocks"
	"github.com/xxxsen/noteimport/internal/model"
	appErr "github.com/xxxsen/noteimport/internal/pkg/errors"
)

type enexResource struct {
	data string
	mime string
	name string
}

func hashOf(data string) string {
	return importer.ContentHash(model.ExportResource{Data: []byte(data)})
}

func enexNote(title, created string, tags []string, body string, resources ...enexResource) string {
	var sb strings.Builder
	sb.WriteString("<note><title>" + title + "</title>")
	sb.WriteString("<content><![CDATA[<?xml version=\"1.0\" encoding=\"UTF-8\"?><en-note>" + body + "</en-note>]]></content>")
	if created != "" {
		sb.WriteString("<created>" + created + "</created>")
	}
	for _, tag := range tags {
		sb.WriteString("<tag>" + tag + "</tag>")
	}
	for _, res := range resources {
		sb.WriteString("<resource><data encoding=\"base64\">" + base64.StdEncoding.EncodeToString([]byte(res.data)) + "</data>")
		sb.WriteString("<mime>" + res.mime + "</mime>")
		if res.name != "" {
			sb.WriteString("<resource-attributes><file-name>" + res.name + "</file-name></resource-attributes>")
		}
		sb.WriteString("</resource>")
	}
	sb.WriteString("</note>")
	return sb.String()
}

func enexExport(notes ...string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?><en-export export-date="20240101T000000Z" application="Evernote">` +
		strings.Join(notes, "") + `</en-export>`)
}

func media(data, mime string) string {
	return fmt.Sprintf(`<en-media type="%s" hash="%s"/>`, mime, hashOf(data))
}

type ImportServiceTestSuite struct {
	suite.Suite
	db        *memDB
	objects   *memObjects
	publisher *memPublisher
	tags      *TagService
	service   *ImportService
}

func (s *ImportServiceTestSuite) SetupTest() {
	s.db = newMemDB()
	s.objects = newMemObjects()
	s.publisher = &memPublisher{}
	s.tags = NewTagService(memTags{s.db}, 128, time.Minute)
	s.service = NewImportService(s.db.stores(), s.tags, s.objects, s.publisher, ImportOptions{})
}

func TestImportServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ImportServiceTestSuite))
}

func (s *ImportServiceTestSuite) importENEX(data []byte) *model.ImportJob {
	job, err := s.service.Import(context.Background(), ImportRequest{
		OwnerID:  "u1",
		Filename: "export.enex",
		MimeType: "application/octet-stream",
		Data:     data,
	})
	s.Require().NoError(err)
	s.Require().NotNil(job)
	return job
}

func (s *ImportServiceTestSuite) TestGroceryList() {
	image := "fake-png-bytes"
	hash := hashOf(image)
	job := s.importENEX(enexExport(enexNote("Grocery List", "20231224T101500Z", []string{"errands", "home"},
		"<div>milk</div>"+media(image, "image/png"),
		enexResource{data: image, mime: "image/png", name: "list.png"})))

	s.Require().Equal(model.ImportStatusCompleted, job.Status)
	s.Require().NotNil(job.TotalNotes)
	s.Require().Equal(1, *job.TotalNotes)
	s.Require().Equal(1, job.ImportedCount)
	s.Require().Equal(0, job.FailedCount)
	s.Require().Empty(job.Errors)
	s.Require().NotZero(job.StartedAt)
	s.Require().NotZero(job.CompletedAt)

	notes := s.db.notesByTitle("Grocery List")
	s.Require().Len(notes, 1)
	note := notes[0]
	s.Require().Equal(job.NotebookID, note.NotebookID)
	s.Require().Equal(time.Date(2023, 12, 24, 10, 15, 0, 0, time.UTC).Unix(), note.Ctime)
	s.Require().Len(s.db.linksOf(note.ID), 2)
	s.Require().Equal([]string{"errands", "home"}, s.db.tagNames())

	attachments := s.db.attachmentsOf(note.ID)
	s.Require().Len(attachments, 1)
	s.Require().Equal(hash, attachments[0].Hash)
	s.Require().Equal("list.png", attachments[0].Filename)
	s.Require().Equal("/files/u1_"+hash+".png", attachments[0].Locator)
	s.Require().Contains(note.Content, `src="`+attachments[0].Locator+`"`)
	s.Require().NotContains(note.Content, `hash="`+hash+`"`)
	s.Require().Equal("milk", note.PlainText)

	stored, err := memJobs{s.db}.Get(context.Background(), "u1", job.ID)
	s.Require().NoError(err)
	s.Require().Equal(model.ImportStatusCompleted, stored.Status)

	s.Require().Len(s.publisher.messages, 1)
	s.Require().Equal(job.ID, s.publisher.messages[0].JobID)
	s.Require().Equal(model.ImportStatusCompleted, s.publisher.messages[0].Status)
}

func (s *ImportServiceTestSuite) TestPartialFailureIsolation() {
	job := s.importENEX(enexExport(
		enexNote("first", "20230101T000000Z", []string{"a"}, "<p>1</p>"),
		enexNote("broken", "not-a-date", []string{"b"}, "<p>2</p>", enexResource{data: "img", mime: "image/png"}),
		enexNote("third", "", nil, "<p>3</p>"),
	))
	s.Require().Equal(model.ImportStatusCompletedWithErrors, job.Status)
	s.Require().Equal(3, *job.TotalNotes)
	s.Require().Equal(2, job.ImportedCount)
	s.Require().Equal(1, job.FailedCount)
	s.Require().Len(job.Errors, 1)
	s.Require().Equal("broken", job.Errors[0].NoteTitle)
	s.Require().NotEmpty(job.Errors[0].Message)

	s.Require().Empty(s.db.notesByTitle("broken"))
	s.Require().Equal([]string{"a"}, s.db.tagNames())
	s.Require().Empty(s.objects.puts)
}

func (s *ImportServiceTestSuite) TestPersistenceFailureLeavesNoRows() {
	s.db.failNoteTitle = "doomed"
	job := s.importENEX(enexExport(
		enexNote("doomed", "", []string{"shared", "only-doomed"}, media("x", "image/png"), enexResource{data: "x", mime: "image/png"}),
		enexNote("fine", "", []string{"shared"}, "<p>ok</p>"),
	))
	s.Require().Equal(model.ImportStatusCompletedWithErrors, job.Status)
	s.Require().Equal(1, job.ImportedCount)
	s.Require().Equal(1, job.FailedCount)
	s.Require().Equal("doomed", job.Errors[0].NoteTitle)
	s.Require().Contains(job.Errors[0].Message, appErr.ErrNoteImport.Error())

	s.Require().Empty(s.db.notesByTitle("doomed"))
	s.Require().Empty(s.db.attachments)
	// the rolled back tag must not survive in the cache either
	s.Require().Equal([]string{"shared"}, s.db.tagNames())
	fine := s.db.notesByTitle("fine")
	s.Require().Len(fine, 1)
	links := s.db.linksOf(fine[0].ID)
	s.Require().Len(links, 1)
	tag, err := memTags{s.db}.Upsert(context.Background(), &model.Tag{UserID: "u1", Name: "shared"})
	s.Require().NoError(err)
	s.Require().Equal(tag.ID, links[0].TagID)
}

func (s *ImportServiceTestSuite) TestResourceFailureDegradesNote() {
	good, bad := "good-bytes", "bad-bytes"
	s.objects.failKeys[importer.StorageKey("u1", hashOf(bad), ".jpg")] = true
	job := s.importENEX(enexExport(enexNote("trip", "", nil,
		media(good, "image/png")+media(bad, "image/jpeg"),
		enexResource{data: good, mime: "image/png"},
		enexResource{data: bad, mime: "image/jpeg", name: "beach.jpg"},
	)))
	s.Require().Equal(model.ImportStatusCompleted, job.Status)
	s.Require().Equal(1, job.ImportedCount)
	s.Require().Len(job.Warnings, 1)
	s.Require().Equal("trip", job.Warnings[0].NoteTitle)
	s.Require().Len(job.Warnings[0].Resources, 1)
	s.Require().Equal("beach.jpg", job.Warnings[0].Resources[0].Filename)

	note := s.db.notesByTitle("trip")[0]
	s.Require().Contains(note.Content, `<img src="/files/u1_`+hashOf(good)+`.png"`)
	s.Require().Contains(note.Content, `<span class="media-missing" data-type="image/jpeg">`)
	s.Require().Len(s.db.attachmentsOf(note.ID), 1)
}

func (s *ImportServiceTestSuite) TestEmptyResourceDegradesNote() {
	job := s.importENEX(enexExport(
		enexNote("A", "", nil, "text survives"+media("", "image/png"),
			enexResource{data: "", mime: "image/png", name: "blank.png"}),
		enexNote("B", "", nil, "plain"),
	))
	s.Require().Equal(model.ImportStatusCompleted, job.Status)
	s.Require().Equal(2, job.ImportedCount)
	s.Require().Zero(job.FailedCount)
	s.Require().Len(job.Warnings, 1)
	s.Require().Equal("A", job.Warnings[0].NoteTitle)
	s.Require().Len(job.Warnings[0].Resources, 1)
	s.Require().Contains(job.Warnings[0].Resources[0].Message, "empty resource")

	note := s.db.notesByTitle("A")[0]
	s.Require().Contains(note.PlainText, "text survives")
	s.Require().Contains(note.Content, `<span class="media-missing" data-type="image/png">`)
	s.Require().Empty(s.db.attachmentsOf(note.ID))
}

func (s *ImportServiceTestSuite) TestDedupAcrossNotes() {
	ctrl := gomock.NewController(s.T())
	store := mocks.NewMockObjectStore(ctrl)
	logo := "company-logo"
	key := importer.StorageKey("u1", hashOf(logo), ".png")
	store.EXPECT().Put(gomock.Any(), key, "image/png", []byte(logo)).Return("https://cdn/"+key, nil).Times(1)
	s.service = NewImportService(s.db.stores(), s.tags, store, s.publisher, ImportOptions{})

	job := s.importENEX(enexExport(
		enexNote("memo 1", "", nil, media(logo, "image/png")+media(logo, "image/png"),
			enexResource{data: logo, mime: "image/png"}, enexResource{data: logo, mime: "image/png"}),
		enexNote("memo 2", "", nil, media(logo, "image/png"), enexResource{data: logo, mime: "image/png"}),
	))
	s.Require().Equal(model.ImportStatusCompleted, job.Status)
	for _, title := range []string{"memo 1", "memo 2"} {
		note := s.db.notesByTitle(title)[0]
		s.Require().Contains(note.Content, "https://cdn/"+key)
		s.Require().Len(s.db.attachmentsOf(note.ID), 1)
	}
	first := s.db.notesByTitle("memo 1")[0]
	s.Require().Equal(2, strings.Count(first.Content, "https://cdn/"+key))
}

func (s *ImportServiceTestSuite) TestUnsupportedFormatCreatesNoJob() {
	job, err := s.service.Import(context.Background(), ImportRequest{OwnerID: "u1", Filename: "notes.xlsx", Data: []byte("x")})
	s.Require().ErrorIs(err, appErr.ErrUnsupportedFormat)
	s.Require().Nil(job)
	s.Require().Zero(s.db.jobCreates)
	s.Require().Empty(s.db.notebooks)
}

func (s *ImportServiceTestSuite) TestMalformedExportFailsJob() {
	job := s.importENEX([]byte(`<en-export><note><title>x</title>`))
	s.Require().Equal(model.ImportStatusFailed, job.Status)
	s.Require().Nil(job.TotalNotes)
	s.Require().Len(job.Errors, 1)
	s.Require().Contains(job.Errors[0].Message, appErr.ErrMalformedExport.Error())
	s.Require().Empty(s.db.notes)
	s.Require().NotZero(job.CompletedAt)
	s.Require().Len(s.publisher.messages, 1)
}

func (s *ImportServiceTestSuite) TestEmptyExportFails() {
	job := s.importENEX(enexExport())
	s.Require().Equal(model.ImportStatusFailed, job.Status)
	s.Require().Equal(0, *job.TotalNotes)
	s.Require().Equal("export contains no notes", job.Errors[0].Message)
}

func (s *ImportServiceTestSuite) TestAllNotesFailed() {
	job := s.importENEX(enexExport(enexNote("bad", "garbage", nil, "")))
	s.Require().Equal(model.ImportStatusFailed, job.Status)
	s.Require().Equal(1, *job.TotalNotes)
	s.Require().Equal(1, job.FailedCount)
}

func (s *ImportServiceTestSuite) TestProgressIsMonotonic() {
	notes := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		created := ""
		if i%5 == 4 {
			created = "bad"
		}
		notes = append(notes, enexNote(fmt.Sprintf("n%d", i), created, nil, "<p>x</p>"))
	}
	job := s.importENEX(enexExport(notes...))
	s.Require().Equal(12, job.Processed())
	history := s.db.progress[job.ID]
	s.Require().NotEmpty(history)
	for i := 1; i < len(history); i++ {
		s.Require().GreaterOrEqual(history[i], history[i-1])
		s.Require().LessOrEqual(history[i], 12)
	}
}

func (s *ImportServiceTestSuite) TestNotebookResolution() {
	req := ImportRequest{OwnerID: "u1", Filename: "a.txt", Data: []byte("a")}
	first, err := s.service.Import(context.Background(), req)
	s.Require().NoError(err)
	second, err := s.service.Import(context.Background(), req)
	s.Require().NoError(err)
	s.Require().Equal(first.NotebookID, second.NotebookID)
	nb, err := memNotebooks{s.db}.GetByName(context.Background(), "u1", model.DefaultNotebookName)
	s.Require().NoError(err)
	s.Require().Equal(first.NotebookID, nb.ID)

	req.NotebookName = "  Work  "
	named, err := s.service.Import(context.Background(), req)
	s.Require().NoError(err)
	s.Require().NotEqual(first.NotebookID, named.NotebookID)
	_, err = memNotebooks{s.db}.GetByName(context.Background(), "u1", "Work")
	s.Require().NoError(err)
}

func (s *ImportServiceTestSuite) TestDocumentUpload() {
	modified := time.Date(2022, 5, 6, 7, 8, 9, 0, time.UTC)
	job, err := s.service.Import(context.Background(), ImportRequest{
		OwnerID:    "u1",
		Filename:   "ideas.txt",
		Data:       []byte("call <mom>\n& dad"),
		ModifiedAt: &modified,
	})
	s.Require().NoError(err)
	s.Require().Equal(model.ImportStatusCompleted, job.Status)
	s.Require().Equal("txt", job.Format)
	note := s.db.notesByTitle("ideas")[0]
	s.Require().Equal("<pre>call &lt;mom&gt;\n&amp; dad</pre>", note.Content)
	s.Require().Equal("call <mom> & dad", note.PlainText)
	s.Require().Equal(modified.Unix(), note.Ctime)
}

func (s *ImportServiceTestSuite) TestCorruptDocumentFailsJob() {
	job, err := s.service.Import(context.Background(), ImportRequest{OwnerID: "u1", Filename: "report.docx", Data: []byte("nope")})
	s.Require().NoError(err)
	s.Require().Equal(model.ImportStatusFailed, job.Status)
	s.Require().Contains(job.Errors[0].Message, appErr.ErrUnparseableFile.Error())
}

func (s *ImportServiceTestSuite) TestCaseInsensitiveTags() {
	s.importENEX(enexExport(
		enexNote("one", "", []string{"Home", "home", " HOME "}, ""),
		enexNote("two", "", []string{"hOmE", "Work"}, ""),
	))
	s.Require().Equal([]string{"Home", "Work"}, s.db.tagNames())
	one := s.db.notesByTitle("one")[0]
	two := s.db.notesByTitle("two")[0]
	s.Require().Len(s.db.linksOf(one.ID), 1)
	s.Require().Len(s.db.linksOf(two.ID), 2)
	s.Require().Equal(s.db.linksOf(one.ID)[0].TagID, s.db.linksOf(two.ID)[0].TagID)
}

func (s *ImportServiceTestSuite) TestParallelWorkers() {
	s.service = NewImportService(s.db.stores(), s.tags, s.objects, s.publisher, ImportOptions{Workers: 4})
	notes := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		notes = append(notes, enexNote(fmt.Sprintf("p%d", i), "", []string{"alpha", "Beta"},
			media("shared", "image/gif"), enexResource{data: "shared", mime: "image/gif"}))
	}
	job := s.importENEX(enexExport(notes...))
	s.Require().Equal(model.ImportStatusCompleted, job.Status)
	s.Require().Equal(20, job.ImportedCount)
	s.Require().Equal([]string{"Beta", "alpha"}, s.db.tagNames())
	s.Require().Equal(1, s.objects.puts[importer.StorageKey("u1", hashOf("shared"), ".gif")])
	s.Require().Len(s.db.attachments, 20)
}

func TestImportRequiresOwner(t *testing.T) {
	db := newMemDB()
	svc := NewImportService(db.stores(), NewTagService(memTags{db}, 0, 0), newMemObjects(), nil, ImportOptions{})
	_, err := svc.Import(context.Background(), ImportRequest{Filename: "a.txt"})
	require.ErrorIs(t, err, appErr.ErrInvalid)
}
