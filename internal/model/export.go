package model

import "time"

type ContentFormat string

const (
	ContentFormatENML ContentFormat = "enml"
	ContentFormatHTML ContentFormat = "html"
)

// ExportDocument is the format independent result of parsing one uploaded
// file. It lives for the duration of a single import and is never stored.
type ExportDocument struct {
	ExportedAt        *time.Time
	SourceApplication string
	Version           string
	Notes             []ExportNote
	// Failures lists notes the parser had to drop, in document order.
	Failures []NoteFailure
}

type ExportNote struct {
	Title         string
	RawContent    string
	ContentFormat ContentFormat
	CreatedAt     *time.Time
	UpdatedAt     *time.Time
	TagNames      []string
	Attributes    *NoteAttributes
	Resources     []ExportResource
}

type NoteAttributes struct {
	SourceURL         string
	Source            string
	SourceApplication string
	Author            string
	ContentClass      string
	Latitude          *float64
	Longitude         *float64
	Altitude          *float64
	SubjectDate       *time.Time
	ReminderTime      *time.Time
	ReminderDoneTime  *time.Time
	ReminderOrder     int64
}

type ExportResource struct {
	Data             []byte
	MimeType         string
	ContentHash      string
	Width            int
	Height           int
	DurationSeconds  int
	OriginalFilename string
	Attributes       *ResourceAttributes
}

type ResourceAttributes struct {
	SourceURL   string
	Latitude    *float64
	Longitude   *float64
	Altitude    *float64
	CameraMake  string
	CameraModel string
	Attachment  bool
	Timestamp   *time.Time
}

type NoteFailure struct {
	Title   string
	Message string
}
