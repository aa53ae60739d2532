// Package document wraps single file uploads (pdf, docx, txt, markdown) as a
// one note export document.
package document

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/noteimport/internal/model"
	appErr "github.com/xxxsen/noteimport/internal/pkg/errors"
)

type Kind string

const (
	KindPDF      Kind = "pdf"
	KindDOCX     Kind = "docx"
	KindText     Kind = "txt"
	KindMarkdown Kind = "markdown"
)

const sourceApplication = "upload"

type converter func(ctx context.Context, data []byte) (string, error)

var converters = map[Kind]converter{
	KindPDF:      convertPDF,
	KindDOCX:     convertDOCX,
	KindText:     convertText,
	KindMarkdown: convertMarkdown,
}

// Parse converts one file into a single HTML note. Any decode failure is
// reported as ErrUnparseableFile.
func Parse(ctx context.Context, kind Kind, filename string, data []byte, modifiedAt *time.Time) (*model.ExportDocument, error) {
	conv, ok := converters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", appErr.ErrUnsupportedFormat, kind)
	}
	content, err := conv(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", appErr.ErrUnparseableFile, filename, err)
	}
	ts := time.Now().UTC()
	if modifiedAt != nil && !modifiedAt.IsZero() {
		ts = modifiedAt.UTC()
	}
	created, updated := ts, ts
	exported := time.Now().UTC()
	return &model.ExportDocument{
		ExportedAt:        &exported,
		SourceApplication: sourceApplication,
		Notes: []model.ExportNote{{
			Title:         Title(filename),
			RawContent:    content,
			ContentFormat: model.ContentFormatHTML,
			CreatedAt:     &created,
			UpdatedAt:     &updated,
		}},
	}, nil
}

// Title is the base filename without its extension.
func Title(filename string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if base == "." || base == "/" {
		return "Untitled"
	}
	title := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if title == "" {
		return base
	}
	return title
}
