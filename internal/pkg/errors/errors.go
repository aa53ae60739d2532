package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalid      = errors.New("invalid")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal")

	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrMalformedExport   = errors.New("malformed export")
	ErrUnparseableFile   = errors.New("unparseable file")
	ErrNoteImport        = errors.New("note import failed")
	ErrResourceStorage   = errors.New("resource storage failed")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsDocumentLevel reports whether err aborts a whole import rather than a single note.
func IsDocumentLevel(err error) bool {
	return errors.Is(err, ErrMalformedExport) || errors.Is(err, ErrUnparseableFile)
}
