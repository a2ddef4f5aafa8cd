package domain

import (
	"time"

	"github.com/google/uuid"
)

// LogStatus classifies a processing log entry.
type LogStatus string

const (
	LogStatusStarted LogStatus = "started"
	LogStatusSuccess LogStatus = "success"
	LogStatusError   LogStatus = "error"
)

// Processing log operations recorded by the orchestrator and callback handler.
const (
	OperationSubmit    = "submit"
	OperationSubmitted = "submitted"
	OperationError     = "error"
	OperationCancel    = "cancel"
	OperationCallback  = "callback"
	OperationReconcile = "reconcile"
)

// ProcessingLogEntry captures one lifecycle transition for an uploaded file.
// Entries are append-only; they are never updated or deleted.
type ProcessingLogEntry struct {
	ID        uuid.UUID      `json:"id"`
	FileID    uuid.UUID      `json:"file_id"`
	OwnerID   uuid.UUID      `json:"owner_id"`
	Operation string         `json:"operation"`
	Status    LogStatus      `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
