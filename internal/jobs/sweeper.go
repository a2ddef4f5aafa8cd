package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/fileflow/internal/domain"
	"github.com/rpattn/fileflow/internal/repository"

	"github.com/phuslu/log"
	"github.com/robfig/cron/v3"
)

// SweeperConfig controls the reconciliation sweep.
type SweeperConfig struct {
	// Schedule is a cron expression; defaults to every minute.
	Schedule string

	// StaleAfter is how long a record may sit in processing before the
	// sweep polls the remote system about it.
	StaleAfter time.Duration

	// BatchSize bounds how many records one sweep examines.
	BatchSize int
}

// Sweeper reconciles file records stuck in processing. A crash or a
// dropped callback leaves a record in processing with no one to finish
// it; the sweeper polls the remote runs API for those records and applies
// the terminal state the callback would have delivered.
type Sweeper struct {
	files  repository.FileRepository
	logs   repository.ProcessingLogRepository
	runs   RunLauncher
	cron   *cron.Cron
	cfg    SweeperConfig
	logger log.Logger
}

// NewSweeper creates a reconciliation sweeper; call Start to schedule it.
func NewSweeper(files repository.FileRepository, logs repository.ProcessingLogRepository, runs RunLauncher, cfg SweeperConfig, logger log.Logger) *Sweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		files:  files,
		logs:   logs,
		runs:   runs,
		cron:   cron.New(),
		cfg:    cfg,
		logger: logger,
	}
}

// Start schedules the sweep.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if _, err := s.SweepOnce(ctx); err != nil {
			s.logger.Error().Err(err).Msg("reconciliation sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reconciliation sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info().Str("schedule", s.cfg.Schedule).Msg("reconciliation sweeper started")
	return nil
}

// Stop halts the schedule; a sweep already in flight finishes.
func (s *Sweeper) Stop() {
	s.cron.Stop()
}

// SweepOnce reconciles all stale processing records once and returns how
// many terminal transitions it applied.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.StaleAfter)

	records, err := s.files.ListStaleProcessing(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale processing records: %w", err)
	}

	applied := 0
	for _, record := range records {
		if s.reconcile(ctx, record) {
			applied++
		}
	}

	if len(records) > 0 {
		s.logger.Info().
			Int("examined", len(records)).
			Int("applied", applied).
			Msg("reconciliation sweep finished")
	}

	return applied, nil
}

func (s *Sweeper) reconcile(ctx context.Context, record domain.FileRecord) bool {
	if record.RunID == nil {
		// Submitted state was never persisted; nothing to poll.
		s.applyError(ctx, record, "", "processing record has no run handle")
		return true
	}

	state, err := s.runs.GetRun(ctx, *record.RunID)
	if err != nil {
		// Transient poll failure; the next sweep retries.
		s.logger.Warn().
			Str("file_id", record.ID.String()).
			Str("run_id", *record.RunID).
			Err(err).
			Msg("failed to poll stale run")
		return false
	}

	if !state.Terminal() {
		return false
	}

	if state.Succeeded() {
		applied, err := s.files.TransitionStatus(ctx, record.ID, domain.FileStatusProcessing, domain.FileStatusDone, "")
		if err != nil || !applied {
			return false
		}
		s.record(ctx, record, domain.LogStatusSuccess, map[string]any{
			"run_id":       *record.RunID,
			"result_state": string(state.ResultState),
		})
		return true
	}

	message := state.StateMessage
	if message == "" {
		message = fmt.Sprintf("compute job finished with result %s", state.ResultState)
	}
	s.applyError(ctx, record, *record.RunID, message)
	return true
}

func (s *Sweeper) applyError(ctx context.Context, record domain.FileRecord, runID, message string) {
	applied, err := s.files.TransitionStatus(ctx, record.ID, domain.FileStatusProcessing, domain.FileStatusError, message)
	if err != nil || !applied {
		return
	}

	details := map[string]any{"error": message}
	if runID != "" {
		details["run_id"] = runID
	}
	s.record(ctx, record, domain.LogStatusError, details)
}

func (s *Sweeper) record(ctx context.Context, record domain.FileRecord, status domain.LogStatus, details map[string]any) {
	entry := domain.ProcessingLogEntry{
		FileID:    record.ID,
		OwnerID:   record.OwnerID,
		Operation: domain.OperationReconcile,
		Status:    status,
		Details:   details,
	}
	if err := s.logs.Record(ctx, entry); err != nil {
		s.logger.Error().Str("file_id", record.ID.String()).Err(err).Msg("failed to append reconcile log entry")
	}
}
