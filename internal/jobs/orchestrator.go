package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/fileflow/internal/domain"
	"github.com/rpattn/fileflow/internal/repository"

	"github.com/google/uuid"
	"github.com/phuslu/log"
)

var (
	// ErrNotFound is returned when the file does not exist or is not
	// owned by the caller.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidState is returned when the file's status does not permit
	// the requested transition. A concurrent duplicate submission lands
	// here: the first caller wins the compare-and-swap, the second
	// observes the file already processing.
	ErrInvalidState = errors.New("file is not in a valid state for this operation")
)

// Stage names the orchestration step that failed.
type Stage string

const (
	StageLoad       Stage = "load"
	StageTransition Stage = "transition"
	StageSubmit     Stage = "submit"
	StagePersist    Stage = "persist"
	StageCancel     Stage = "cancel"
)

// OrchestrationError wraps a failure with the stage it happened in, so
// callers can distinguish infrastructure failures from state conflicts.
type OrchestrationError struct {
	Stage  Stage
	FileID uuid.UUID
	Err    error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("orchestration failed at %s for file %s: %v", e.Stage, e.FileID, e.Err)
}

func (e *OrchestrationError) Unwrap() error { return e.Err }

// Orchestrator drives the uploaded → processing → {done, error} lifecycle
// for validated files against the remote compute job API.
type Orchestrator struct {
	files  repository.FileRepository
	logs   repository.ProcessingLogRepository
	runs   RunLauncher
	logger log.Logger
}

// NewOrchestrator creates a new job orchestrator.
func NewOrchestrator(files repository.FileRepository, logs repository.ProcessingLogRepository, runs RunLauncher, logger log.Logger) *Orchestrator {
	return &Orchestrator{
		files:  files,
		logs:   logs,
		runs:   runs,
		logger: logger,
	}
}

// StartProcessing submits the file's content to the remote compute job.
// Files in the uploaded state are submitted; files in the error state are
// resubmitted.
//
// The status write happens before any network call: the compare-and-swap
// into processing is the optimistic lock that guarantees at most one
// in-flight submission per file. Any failure after that point
// flips the record to error — a file is never left in processing once this
// method returns an error.
func (o *Orchestrator) StartProcessing(ctx context.Context, fileID, ownerID uuid.UUID) (string, error) {
	record, err := o.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", &OrchestrationError{Stage: StageLoad, FileID: fileID, Err: ErrNotFound}
		}
		return "", &OrchestrationError{Stage: StageLoad, FileID: fileID, Err: err}
	}
	if record.OwnerID != ownerID {
		return "", &OrchestrationError{Stage: StageLoad, FileID: fileID, Err: ErrNotFound}
	}

	// Errored files may be resubmitted; the retry races the same CAS.
	ok, err := o.files.TransitionStatus(ctx, fileID, domain.FileStatusUploaded, domain.FileStatusProcessing, "")
	if err != nil {
		return "", &OrchestrationError{Stage: StageTransition, FileID: fileID, Err: err}
	}
	if !ok && record.Status == domain.FileStatusError {
		ok, err = o.files.TransitionStatus(ctx, fileID, domain.FileStatusError, domain.FileStatusProcessing, "")
		if err != nil {
			return "", &OrchestrationError{Stage: StageTransition, FileID: fileID, Err: err}
		}
	}
	if !ok {
		return "", &OrchestrationError{
			Stage:  StageTransition,
			FileID: fileID,
			Err:    fmt.Errorf("%w: status is %s", ErrInvalidState, record.Status),
		}
	}

	o.record(ctx, record, domain.OperationSubmit, domain.LogStatusStarted, nil)

	params := RunParameters{
		FileID:   record.ID.String(),
		OwnerID:  record.OwnerID.String(),
		FileURL:  record.StorageLocator,
		FileName: record.FileName,
		FileType: record.FileType,
	}

	runID, err := o.runs.SubmitRun(ctx, params)
	if err != nil {
		return "", o.fail(ctx, record, StageSubmit, fmt.Errorf("job submission failed: %w", err))
	}

	if err := o.files.SetRunID(ctx, fileID, runID); err != nil {
		return "", o.fail(ctx, record, StagePersist, fmt.Errorf("failed to persist run handle %s: %w", runID, err))
	}

	o.record(ctx, record, domain.OperationSubmitted, domain.LogStatusSuccess, map[string]any{"run_id": runID})
	o.logger.Info().
		Str("file_id", record.ID.String()).
		Str("run_id", runID).
		Msg("file submitted for processing")

	return runID, nil
}

// CheckStatus queries the remote run state. It never mutates the file
// record; reconciliation into done or error happens via the callback
// handler or the sweeper.
func (o *Orchestrator) CheckStatus(ctx context.Context, runID string) (domain.RunState, error) {
	return o.runs.GetRun(ctx, runID)
}

// Cancel requests cancellation of a submitted run. On remote failure the
// record is left unchanged; on success the file moves to error with a
// cancellation message.
func (o *Orchestrator) Cancel(ctx context.Context, fileID uuid.UUID, runID string) error {
	record, err := o.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &OrchestrationError{Stage: StageCancel, FileID: fileID, Err: ErrNotFound}
		}
		return &OrchestrationError{Stage: StageCancel, FileID: fileID, Err: err}
	}

	if err := o.runs.CancelRun(ctx, runID); err != nil {
		o.record(ctx, record, domain.OperationCancel, domain.LogStatusError, map[string]any{
			"run_id": runID,
			"error":  err.Error(),
		})
		return &OrchestrationError{Stage: StageCancel, FileID: fileID, Err: err}
	}

	if err := o.files.SetError(ctx, fileID, "cancelled by user"); err != nil {
		return &OrchestrationError{Stage: StageCancel, FileID: fileID, Err: err}
	}

	o.record(ctx, record, domain.OperationCancel, domain.LogStatusSuccess, map[string]any{"run_id": runID})
	return nil
}

// fail moves the record to error and appends the audit entry before
// surfacing the failure, so state and ledger never diverge from the
// reported outcome.
func (o *Orchestrator) fail(ctx context.Context, record domain.FileRecord, stage Stage, cause error) error {
	if err := o.files.SetError(ctx, record.ID, cause.Error()); err != nil {
		o.logger.Error().
			Str("file_id", record.ID.String()).
			Err(err).
			Msg("failed to mark file record as errored")
	}

	o.record(ctx, record, domain.OperationError, domain.LogStatusError, map[string]any{
		"stage": string(stage),
		"error": cause.Error(),
	})

	return &OrchestrationError{Stage: stage, FileID: record.ID, Err: cause}
}

func (o *Orchestrator) record(ctx context.Context, record domain.FileRecord, operation string, status domain.LogStatus, details map[string]any) {
	entry := domain.ProcessingLogEntry{
		FileID:    record.ID,
		OwnerID:   record.OwnerID,
		Operation: operation,
		Status:    status,
		Details:   details,
	}
	if err := o.logs.Record(ctx, entry); err != nil {
		o.logger.Error().
			Str("file_id", record.ID.String()).
			Str("operation", operation).
			Err(err).
			Msg("failed to append processing log entry")
	}
}
