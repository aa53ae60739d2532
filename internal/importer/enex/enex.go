// Package enex decodes Evernote export documents into the canonical export
// model. Note bodies are kept as opaque ENML strings.
package enex

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/noteimport/internal/model"
	appErr "github.com/xxxsen/noteimport/internal/pkg/errors"
)

const (
	TimeLayout      = "20060102T150405Z"
	DefaultTitle    = "Untitled Note"
	defaultApp      = "evernote"
	base64Encoding  = "base64"
	exportElement   = "en-export"
	noteElement     = "note"
	defaultMimeType = "application/octet-stream"
)

type xmlNote struct {
	Title      *string            `xml:"title"`
	Content    string             `xml:"content"`
	Created    string             `xml:"created"`
	Updated    string             `xml:"updated"`
	Tags       []string           `xml:"tag"`
	Attributes *xmlNoteAttributes `xml:"note-attributes"`
	Resources  []xmlResource      `xml:"resource"`
}

type xmlNoteAttributes struct {
	SubjectDate       string `xml:"subject-date"`
	Latitude          string `xml:"latitude"`
	Longitude         string `xml:"longitude"`
	Altitude          string `xml:"altitude"`
	Author            string `xml:"author"`
	Source            string `xml:"source"`
	SourceURL         string `xml:"source-url"`
	SourceApplication string `xml:"source-application"`
	ReminderOrder     string `xml:"reminder-order"`
	ReminderTime      string `xml:"reminder-time"`
	ReminderDoneTime  string `xml:"reminder-done-time"`
	ContentClass      string `xml:"content-class"`
}

type xmlResource struct {
	Data       xmlData                `xml:"data"`
	Mime       string                 `xml:"mime"`
	Width      string                 `xml:"width"`
	Height     string                 `xml:"height"`
	Duration   string                 `xml:"duration"`
	Attributes *xmlResourceAttributes `xml:"resource-attributes"`
}

type xmlData struct {
	Encoding string `xml:"encoding,attr"`
	Value    string `xml:",chardata"`
}

type xmlResourceAttributes struct {
	SourceURL   string `xml:"source-url"`
	Timestamp   string `xml:"timestamp"`
	Latitude    string `xml:"latitude"`
	Longitude   string `xml:"longitude"`
	Altitude    string `xml:"altitude"`
	CameraMake  string `xml:"camera-make"`
	CameraModel string `xml:"camera-model"`
	FileName    string `xml:"file-name"`
	Attachment  string `xml:"attachment"`
}

// Parse streams an ENEX document note by note. Invalid XML or a note without
// a title element fails the document with ErrMalformedExport; any other bad
// note is listed in Failures and left out of Notes. Blank titles fall back to
// filename without its extension.
func Parse(ctx context.Context, r io.Reader, filename string) (*model.ExportDocument, error) {
	fallback := fallbackTitle(filename)
	dec := xml.NewDecoder(r)
	dec.Entity = xml.HTMLEntity
	doc := &model.ExportDocument{SourceApplication: defaultApp}
	index := 0
	seenRoot := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", appErr.ErrMalformedExport, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case exportElement:
			seenRoot = true
			readExportAttrs(ctx, doc, start)
		case noteElement:
			index++
			var raw xmlNote
			if err := dec.DecodeElement(&raw, &start); err != nil {
				return nil, fmt.Errorf("%w: note %d: %v", appErr.ErrMalformedExport, index, err)
			}
			if raw.Title == nil {
				return nil, fmt.Errorf("%w: note %d has no title", appErr.ErrMalformedExport, index)
			}
			note, err := convertNote(ctx, &raw, fallback)
			if err != nil {
				title := noteTitle(raw.Title, fallback)
				logutil.GetLogger(ctx).Warn("skip malformed enex note",
					zap.Int("index", index), zap.String("note_title", title), zap.Error(err))
				doc.Failures = append(doc.Failures, model.NoteFailure{Title: title, Message: err.Error()})
				continue
			}
			doc.Notes = append(doc.Notes, *note)
		}
	}
	if !seenRoot {
		return nil, fmt.Errorf("%w: no en-export element", appErr.ErrMalformedExport)
	}
	return doc, nil
}

func readExportAttrs(ctx context.Context, doc *model.ExportDocument, start xml.StartElement) {
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "export-date":
			ts, err := parseTime(attr.Value)
			if err != nil {
				logutil.GetLogger(ctx).Warn("ignore bad export-date", zap.String("value", attr.Value))
				continue
			}
			doc.ExportedAt = ts
		case "application":
			if v := strings.TrimSpace(attr.Value); v != "" {
				doc.SourceApplication = v
			}
		case "version":
			doc.Version = strings.TrimSpace(attr.Value)
		}
	}
}

// noteTitle falls back to the upload's name when the title element is blank.
func noteTitle(title *string, fallback string) string {
	if title != nil {
		if t := strings.TrimSpace(*title); t != "" {
			return t
		}
	}
	return fallback
}

func fallbackTitle(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	base = strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return DefaultTitle
	}
	return base
}

func convertNote(ctx context.Context, raw *xmlNote, fallback string) (*model.ExportNote, error) {
	created, err := parseTime(raw.Created)
	if err != nil {
		return nil, fmt.Errorf("created: %w", err)
	}
	updated, err := parseTime(raw.Updated)
	if err != nil {
		return nil, fmt.Errorf("updated: %w", err)
	}
	note := &model.ExportNote{
		Title:         noteTitle(raw.Title, fallback),
		RawContent:    strings.TrimSpace(raw.Content),
		ContentFormat: model.ContentFormatENML,
		CreatedAt:     created,
		UpdatedAt:     updated,
	}
	for _, tag := range raw.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			note.TagNames = append(note.TagNames, tag)
		}
	}
	// optional fields that fail to parse are dropped, never the note
	opt := optionalParser{logger: logutil.GetLogger(ctx).With(zap.String("note_title", note.Title))}
	if raw.Attributes != nil {
		note.Attributes = convertNoteAttributes(opt, raw.Attributes)
	}
	for i := range raw.Resources {
		res, err := convertResource(opt, &raw.Resources[i])
		if err != nil {
			return nil, fmt.Errorf("resource %d: %w", i+1, err)
		}
		note.Resources = append(note.Resources, *res)
	}
	return note, nil
}

func convertNoteAttributes(opt optionalParser, raw *xmlNoteAttributes) *model.NoteAttributes {
	return &model.NoteAttributes{
		SourceURL:         strings.TrimSpace(raw.SourceURL),
		Source:            strings.TrimSpace(raw.Source),
		SourceApplication: strings.TrimSpace(raw.SourceApplication),
		Author:            strings.TrimSpace(raw.Author),
		ContentClass:      strings.TrimSpace(raw.ContentClass),
		Latitude:          opt.floatField("latitude", raw.Latitude),
		Longitude:         opt.floatField("longitude", raw.Longitude),
		Altitude:          opt.floatField("altitude", raw.Altitude),
		SubjectDate:       opt.timeField("subject-date", raw.SubjectDate),
		ReminderTime:      opt.timeField("reminder-time", raw.ReminderTime),
		ReminderDoneTime:  opt.timeField("reminder-done-time", raw.ReminderDoneTime),
		ReminderOrder:     int64(opt.intField("reminder-order", raw.ReminderOrder)),
	}
}

// convertResource only fails on undecodable data. Empty data is passed on so
// the note keeps its text and the attachment is reported as missing.
func convertResource(opt optionalParser, raw *xmlResource) (*model.ExportResource, error) {
	data, err := decodeData(raw.Data)
	if err != nil {
		return nil, err
	}
	sum := md5.Sum(data)
	res := &model.ExportResource{
		Data:            data,
		MimeType:        strings.TrimSpace(raw.Mime),
		ContentHash:     hex.EncodeToString(sum[:]),
		Width:           opt.intField("width", raw.Width),
		Height:          opt.intField("height", raw.Height),
		DurationSeconds: opt.intField("duration", raw.Duration),
	}
	if res.MimeType == "" {
		res.MimeType = defaultMimeType
	}
	if raw.Attributes == nil {
		return res, nil
	}
	attrs := &model.ResourceAttributes{
		SourceURL:   strings.TrimSpace(raw.Attributes.SourceURL),
		CameraMake:  strings.TrimSpace(raw.Attributes.CameraMake),
		CameraModel: strings.TrimSpace(raw.Attributes.CameraModel),
		Latitude:    opt.floatField("resource latitude", raw.Attributes.Latitude),
		Longitude:   opt.floatField("resource longitude", raw.Attributes.Longitude),
		Altitude:    opt.floatField("resource altitude", raw.Attributes.Altitude),
		Timestamp:   opt.timeField("resource timestamp", raw.Attributes.Timestamp),
	}
	if v := strings.TrimSpace(raw.Attributes.Attachment); v != "" {
		attrs.Attachment, _ = strconv.ParseBool(v)
	}
	res.OriginalFilename = strings.TrimSpace(raw.Attributes.FileName)
	res.Attributes = attrs
	return res, nil
}

type optionalParser struct {
	logger *zap.Logger
}

func (p optionalParser) drop(field, value string, err error) {
	p.logger.Warn("drop invalid enex field", zap.String("field", field), zap.String("value", value), zap.Error(err))
}

func (p optionalParser) floatField(field, value string) *float64 {
	f, err := parseFloat(field, value)
	if err != nil {
		p.drop(field, value, err)
		return nil
	}
	return f
}

func (p optionalParser) intField(field, value string) int {
	n, err := parseInt(field, value)
	if err != nil {
		p.drop(field, value, err)
		return 0
	}
	return n
}

func (p optionalParser) timeField(field, value string) *time.Time {
	ts, err := parseTime(value)
	if err != nil {
		p.drop(field, value, err)
		return nil
	}
	return ts
}

func decodeData(data xmlData) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(data.Encoding))
	if encoding != "" && encoding != base64Encoding {
		return nil, fmt.Errorf("unsupported data encoding %q", data.Encoding)
	}
	compact := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, data.Value)
	if compact == "" {
		return []byte{}, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("decode resource data: %w", err)
	}
	return decoded, nil
}

func parseTime(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	ts, err := time.Parse(TimeLayout, value)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q", value)
	}
	ts = ts.UTC()
	return &ts, nil
}

func parseFloat(field, value string) (*float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", field, value)
	}
	return &f, nil
}

func parseInt(field, value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", field, value)
	}
	return n, nil
}
