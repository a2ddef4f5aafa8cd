package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rpattn/fileflow/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type processingLogRepository struct {
	pool *pgxpool.Pool
}

// NewProcessingLogRepository wires a repository backed by pgxpool.
func NewProcessingLogRepository(pool *pgxpool.Pool) ProcessingLogRepository {
	return &processingLogRepository{pool: pool}
}

func (r *processingLogRepository) Record(ctx context.Context, entry domain.ProcessingLogEntry) error {
	if r.pool == nil {
		return fmt.Errorf("processing log repository not initialized")
	}

	var details any
	if len(entry.Details) > 0 {
		encoded, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to serialize log details: %w", err)
		}
		details = encoded
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO processing_logs (file_id, owner_id, operation, status, details)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.FileID,
		entry.OwnerID,
		entry.Operation,
		entry.Status,
		details,
	)
	if err != nil {
		return fmt.Errorf("failed to record processing log: %w", err)
	}

	return nil
}

func (r *processingLogRepository) List(ctx context.Context, fileID uuid.UUID, limit, offset int) ([]domain.ProcessingLogEntry, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("processing log repository not initialized")
	}

	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, file_id, owner_id, operation, status, details, created_at
		 FROM processing_logs
		 WHERE file_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		fileID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.ProcessingLogEntry{}
	for rows.Next() {
		var (
			entry     domain.ProcessingLogEntry
			details   []byte
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.FileID,
			&entry.OwnerID,
			&entry.Operation,
			&entry.Status,
			&details,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan processing log: %w", scanErr)
		}

		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to decode log details: %w", err)
			}
		}
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}

		logs = append(logs, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate processing logs: %w", rowsErr)
	}

	return logs, nil
}
