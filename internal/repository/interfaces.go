package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rpattn/fileflow/internal/domain"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a keyed lookup matches no record.
var ErrNotFound = errors.New("record not found")

// FileRepository defines keyed access to file records.
//
// TransitionStatus is a single atomic compare-and-swap on the status
// column. The orchestrator relies on it as an optimistic lock: of two
// concurrent callers racing the same transition, exactly one sees true.
type FileRepository interface {
	Create(ctx context.Context, record domain.FileRecord) (domain.FileRecord, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.FileRecord, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.FileRecord, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.FileStatus, message string) (bool, error)
	SetRunID(ctx context.Context, id uuid.UUID, runID string) error
	SetError(ctx context.Context, id uuid.UUID, message string) error
	ListStaleProcessing(ctx context.Context, olderThan time.Time, limit int) ([]domain.FileRecord, error)
}

// ProcessingLogRepository appends to and reads the status ledger. Entries
// are append-only.
type ProcessingLogRepository interface {
	Record(ctx context.Context, entry domain.ProcessingLogEntry) error
	List(ctx context.Context, fileID uuid.UUID, limit, offset int) ([]domain.ProcessingLogEntry, error)
}
