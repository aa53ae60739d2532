package model

// Note is the persisted form of an imported note. Content holds the
// translated HTML body and PlainText its search projection.
type Note struct {
	ID                string   `json:"id"`
	UserID            string   `json:"user_id"`
	NotebookID        string   `json:"notebook_id"`
	Title             string   `json:"title"`
	Content           string   `json:"content"`
	PlainText         string   `json:"plain_text"`
	SourceURL         string   `json:"source_url"`
	SourceApplication string   `json:"source_application"`
	Author            string   `json:"author"`
	ContentClass      string   `json:"content_class"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
	Altitude          *float64 `json:"altitude,omitempty"`
	ReminderTime      int64    `json:"reminder_time"`
	ReminderDoneTime  int64    `json:"reminder_done_time"`
	ReminderOrder     int64    `json:"reminder_order"`
	Ctime             int64    `json:"ctime"`
	Mtime             int64    `json:"mtime"`
}

type Attachment struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	NoteID   string `json:"note_id"`
	Hash     string `json:"hash"`
	FileKey  string `json:"file_key"`
	Locator  string `json:"locator"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Ctime    int64  `json:"ctime"`
}
