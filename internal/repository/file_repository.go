package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/fileflow/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const fileColumns = `id, owner_id, file_name, file_type, size_bytes, storage_locator, status, run_id, error_message, created_at, updated_at`

type fileRepository struct {
	pool *pgxpool.Pool
}

// NewFileRepository wires a repository backed by pgxpool.
func NewFileRepository(pool *pgxpool.Pool) FileRepository {
	return &fileRepository{pool: pool}
}

func (r *fileRepository) Create(ctx context.Context, record domain.FileRecord) (domain.FileRecord, error) {
	if r.pool == nil {
		return domain.FileRecord{}, fmt.Errorf("file repository not initialized")
	}

	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO file_records (id, owner_id, file_name, file_type, size_bytes, storage_locator, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+fileColumns,
		record.ID,
		record.OwnerID,
		record.FileName,
		record.FileType,
		record.SizeBytes,
		record.StorageLocator,
		record.Status,
	)

	created, err := scanFileRecord(row)
	if err != nil {
		return domain.FileRecord{}, fmt.Errorf("failed to create file record: %w", err)
	}
	return created, nil
}

func (r *fileRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.FileRecord, error) {
	if r.pool == nil {
		return domain.FileRecord{}, fmt.Errorf("file repository not initialized")
	}

	row := r.pool.QueryRow(
		ctx,
		`SELECT `+fileColumns+` FROM file_records WHERE id = $1`,
		id,
	)

	record, err := scanFileRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FileRecord{}, ErrNotFound
		}
		return domain.FileRecord{}, fmt.Errorf("failed to load file record: %w", err)
	}
	return record, nil
}

func (r *fileRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.FileRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("file repository not initialized")
	}

	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+fileColumns+`
		 FROM file_records
		 WHERE owner_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		ownerID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list file records: %w", err)
	}
	defer rows.Close()

	return collectFileRecords(rows)
}

func (r *fileRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.FileStatus, message string) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("file repository not initialized")
	}

	var errorMessage any
	if message != "" {
		errorMessage = message
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE file_records
		 SET status = $3, error_message = $4, updated_at = now()
		 WHERE id = $1 AND status = $2`,
		id,
		from,
		to,
		errorMessage,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition file status: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *fileRepository) SetRunID(ctx context.Context, id uuid.UUID, runID string) error {
	if r.pool == nil {
		return fmt.Errorf("file repository not initialized")
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE file_records SET run_id = $2, updated_at = now() WHERE id = $1`,
		id,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to set run id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *fileRepository) SetError(ctx context.Context, id uuid.UUID, message string) error {
	if r.pool == nil {
		return fmt.Errorf("file repository not initialized")
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE file_records
		 SET status = $2, error_message = $3, updated_at = now()
		 WHERE id = $1`,
		id,
		domain.FileStatusError,
		message,
	)
	if err != nil {
		return fmt.Errorf("failed to mark file record as errored: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *fileRepository) ListStaleProcessing(ctx context.Context, olderThan time.Time, limit int) ([]domain.FileRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("file repository not initialized")
	}

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+fileColumns+`
		 FROM file_records
		 WHERE status = $1 AND updated_at < $2
		 ORDER BY updated_at ASC
		 LIMIT $3`,
		domain.FileStatusProcessing,
		olderThan,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale processing records: %w", err)
	}
	defer rows.Close()

	return collectFileRecords(rows)
}

func collectFileRecords(rows pgx.Rows) ([]domain.FileRecord, error) {
	records := []domain.FileRecord{}
	for rows.Next() {
		record, err := scanFileRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file record: %w", err)
		}
		records = append(records, record)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate file records: %w", rowsErr)
	}

	return records, nil
}

func scanFileRecord(row pgx.Row) (domain.FileRecord, error) {
	var (
		record       domain.FileRecord
		runID        pgtype.Text
		errorMessage pgtype.Text
		createdAt    pgtype.Timestamptz
		updatedAt    pgtype.Timestamptz
	)

	if err := row.Scan(
		&record.ID,
		&record.OwnerID,
		&record.FileName,
		&record.FileType,
		&record.SizeBytes,
		&record.StorageLocator,
		&record.Status,
		&runID,
		&errorMessage,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.FileRecord{}, err
	}

	if runID.Valid {
		value := runID.String
		record.RunID = &value
	}
	if errorMessage.Valid {
		value := errorMessage.String
		record.ErrorMessage = &value
	}
	if createdAt.Valid {
		record.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		record.UpdatedAt = updatedAt.Time
	}

	return record, nil
}
