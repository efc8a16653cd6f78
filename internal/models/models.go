package models

import (
	"time"
)

// File status values. A row is "ready" only once both the description and the
// embedding are persisted and progress has reached 100.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// Processing stages tracked on the file row while the pipeline runs.
const (
	StageExtraction   = "extraction"
	StageCompression  = "compression"
	StageEmbedding    = "embedding"
	StageFinalization = "finalization"
)

// File type classification, derived from the filename extension.
const (
	FileTypePDF         = "pdf"
	FileTypeImage       = "image"
	FileTypeText        = "text"
	FileTypeCode        = "code"
	FileTypeSpreadsheet = "spreadsheet"
	FileTypeOther       = "other"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// FileRecord is one row per uploaded file. UserID is nullable: anonymous
// uploads are permitted and duplicate detection treats null as its own scope.
type FileRecord struct {
	ID              string    `db:"id" json:"id"`
	UserID          *string   `db:"user_id" json:"user_id"`
	Filename        string    `db:"filename" json:"filename"`
	FileType        string    `db:"file_type" json:"file_type"`
	ContentHash     string    `db:"content_hash" json:"content_hash"`
	FileSize        int64     `db:"file_size" json:"file_size"`
	Description     *string   `db:"description" json:"description"`
	Embedding       []float32 `db:"embedding" json:"embedding,omitempty"`
	Status          string    `db:"status" json:"status"`
	ProcessingStage *string   `db:"processing_stage" json:"processing_stage"`
	Progress        int       `db:"progress" json:"progress"`
	ErrorMessage    *string   `db:"error_message" json:"error_message"`
	UploadedAt      time.Time `db:"uploaded_at" json:"uploaded_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// ValidStatus reports whether s is one of the four file statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusReady, StatusFailed:
		return true
	}
	return false
}

// ValidFileType reports whether t is one of the six recognized file types.
func ValidFileType(t string) bool {
	switch t {
	case FileTypePDF, FileTypeImage, FileTypeText, FileTypeCode, FileTypeSpreadsheet, FileTypeOther:
		return true
	}
	return false
}
