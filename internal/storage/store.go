package storage

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Store persists raw upload payloads. Save returns the storage locator
// recorded on the file record and handed to the compute job as the file
// URL.
type Store interface {
	Save(ctx context.Context, ownerID, fileID uuid.UUID, fileName string, data []byte) (string, error)
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
	Delete(ctx context.Context, locator string) error
}
