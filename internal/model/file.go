package model

import "time"

// File is the metadata row persisted in the file service's files table.
// StoredName is the blob's object name on disk, not the client's filename.
type File struct {
	ID           int64     `db:"id" json:"id"`
	UserID       int64     `db:"user_id" json:"user_id"`
	OriginalName string    `db:"original_name" json:"original_name"`
	StoredName   string    `db:"stored_name" json:"stored_name"`
	MimeType     string    `db:"mime_type" json:"mime_type"`
	Size         int64     `db:"size" json:"size"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
