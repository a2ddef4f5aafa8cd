package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rpattn/fileflow/internal/domain"
	"github.com/rpattn/fileflow/internal/parser"
	"github.com/rpattn/fileflow/internal/repository"
	"github.com/rpattn/fileflow/internal/storage"
	"github.com/rpattn/fileflow/internal/validation"

	"github.com/google/uuid"
	"github.com/phuslu/log"
)

// Service accepts uploads: it validates the dataset and, when the verdict
// is clean, persists the payload and its file record in the uploaded
// state, ready for job submission.
type Service struct {
	files  repository.FileRepository
	store  storage.Store
	logger log.Logger
}

// NewService creates a new ingestion service.
func NewService(files repository.FileRepository, store storage.Store, logger log.Logger) *Service {
	return &Service{
		files:  files,
		store:  store,
		logger: logger,
	}
}

// Request describes one upload.
type Request struct {
	OwnerID     uuid.UUID
	FileName    string
	ContentType string
	Policy      validation.Policy
	Data        io.Reader
}

// Result carries the validation verdict and, for accepted files, the
// persisted record.
type Result struct {
	Record     *domain.FileRecord `json:"record,omitempty"`
	Validation validation.Result  `json:"validation"`
}

// Accepted reports whether the upload passed validation and was persisted.
func (r Result) Accepted() bool {
	return r.Record != nil
}

// Upload validates the dataset and persists accepted files. A failed
// validation is not an error: the verdict comes back in full so the
// caller can show the defect list. Only infrastructure trouble (storage,
// database) surfaces as an error.
func (s *Service) Upload(ctx context.Context, req Request) (Result, error) {
	result := Result{}

	if req.OwnerID == uuid.Nil {
		return result, errors.New("owner id is required")
	}
	if strings.TrimSpace(req.FileName) == "" {
		return result, errors.New("file name is required")
	}
	if req.Data == nil {
		return result, errors.New("data reader is required")
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return result, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return result, errors.New("file is empty")
	}

	format, err := parser.DetectFormat(req.FileName, req.ContentType)
	if err != nil {
		result.Validation = validation.Result{
			Errors: []validation.Error{{
				Kind:    validation.KindStructureError,
				Message: err.Error(),
			}},
			Warnings: []string{},
		}
		return result, nil
	}

	result.Validation = validation.Validate(payload, format, req.Policy)
	if !result.Validation.IsValid {
		s.logger.Info().
			Str("owner_id", req.OwnerID.String()).
			Str("file_name", req.FileName).
			Int("errors", len(result.Validation.Errors)).
			Msg("upload rejected by validation")
		return result, nil
	}

	record := domain.NewFileRecord(req.OwnerID, req.FileName, string(format), int64(len(payload)), "")

	locator, err := s.store.Save(ctx, req.OwnerID, record.ID, req.FileName, payload)
	if err != nil {
		return result, fmt.Errorf("failed to store upload: %w", err)
	}
	record.StorageLocator = locator

	created, err := s.files.Create(ctx, record)
	if err != nil {
		// Best effort cleanup; the record is the source of truth.
		_ = s.store.Delete(ctx, locator)
		return result, fmt.Errorf("failed to create file record: %w", err)
	}

	s.logger.Info().
		Str("file_id", created.ID.String()).
		Str("owner_id", req.OwnerID.String()).
		Str("file_name", req.FileName).
		Int64("size_bytes", created.SizeBytes).
		Msg("upload accepted")

	result.Record = &created
	return result, nil
}
