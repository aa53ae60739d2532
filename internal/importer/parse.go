package importer

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/noteimport/internal/importer/document"
	"github.com/xxxsen/noteimport/internal/importer/enex"
	"github.com/xxxsen/noteimport/internal/model"
	appErr "github.com/xxxsen/noteimport/internal/pkg/errors"
)

var documentKinds = map[Format]document.Kind{
	FormatPDF:      document.KindPDF,
	FormatDOCX:     document.KindDOCX,
	FormatTXT:      document.KindText,
	FormatMarkdown: document.KindMarkdown,
}

// Parse decodes an upload already routed by Detect into the canonical export
// model.
func Parse(ctx context.Context, format Format, filename string, data []byte, modifiedAt *time.Time) (*model.ExportDocument, error) {
	if format == FormatENEX {
		return enex.Parse(ctx, bytes.NewReader(data), filename)
	}
	kind, ok := documentKinds[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", appErr.ErrUnsupportedFormat, format)
	}
	return document.Parse(ctx, kind, filename, data, modifiedAt)
}
