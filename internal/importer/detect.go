package importer

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	appErr "github.com/xxxsen/noteimport/internal/pkg/errors"
)

type Format string

const (
	FormatENEX     Format = "enex"
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
	FormatTXT      Format = "txt"
	FormatMarkdown Format = "markdown"
)

var extFormats = map[string]Format{
	".enex":     FormatENEX,
	".pdf":      FormatPDF,
	".docx":     FormatDOCX,
	".txt":      FormatTXT,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
}

var mimeFormats = map[string]Format{
	"application/enex+xml": FormatENEX,
	"application/pdf":      FormatPDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": FormatDOCX,
	"text/plain":    FormatTXT,
	"text/markdown": FormatMarkdown,
}

// IsDocument reports whether the format yields exactly one synthetic note.
func (f Format) IsDocument() bool {
	return f != FormatENEX
}

// Detect picks the parser for an upload. A recognised extension always wins
// over the declared mime type; an unrecognised one is rejected outright.
func Detect(filename, mimeType string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	if ext != "" {
		if format, ok := extFormats[ext]; ok {
			return format, nil
		}
		return "", fmt.Errorf("%w: %s", appErr.ErrUnsupportedFormat, ext)
	}
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeType))
	}
	if format, ok := mimeFormats[mediaType]; ok {
		return format, nil
	}
	return "", fmt.Errorf("%w: %q", appErr.ErrUnsupportedFormat, filename)
}
