package domain

import (
	"time"

	"github.com/google/uuid"
)

// FileStatus is the canonical lifecycle status for rows in file_records.
type FileStatus string

// Stable values (store these exact strings in the database).
const (
	FileStatusUploaded   FileStatus = "uploaded"
	FileStatusProcessing FileStatus = "processing"
	FileStatusDone       FileStatus = "done"
	FileStatusError      FileStatus = "error"
)

// Valid reports whether the status is one of the known lifecycle values.
func (s FileStatus) Valid() bool {
	switch s {
	case FileStatusUploaded, FileStatusProcessing, FileStatusDone, FileStatusError:
		return true
	}
	return false
}

// FileRecord is the durable state for one uploaded file.
type FileRecord struct {
	ID             uuid.UUID  `json:"id"`
	OwnerID        uuid.UUID  `json:"owner_id"`
	FileName       string     `json:"file_name"`
	FileType       string     `json:"file_type"`
	SizeBytes      int64      `json:"size_bytes"`
	StorageLocator string     `json:"storage_locator"`
	Status         FileStatus `json:"status"`
	RunID          *string    `json:"run_id,omitempty"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewFileRecord creates a record in the initial uploaded state.
func NewFileRecord(ownerID uuid.UUID, fileName, fileType string, sizeBytes int64, storageLocator string) FileRecord {
	now := time.Now()
	return FileRecord{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		FileName:       fileName,
		FileType:       fileType,
		SizeBytes:      sizeBytes,
		StorageLocator: storageLocator,
		Status:         FileStatusUploaded,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
