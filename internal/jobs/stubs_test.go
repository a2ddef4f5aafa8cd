package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rpattn/fileflow/internal/domain"
	"github.com/rpattn/fileflow/internal/repository"

	"github.com/google/uuid"
	"github.com/phuslu/log"
)

// In-memory repository stubs with the same compare-and-swap semantics as
// the SQL implementations.

type stubFiles struct {
	mu      sync.Mutex
	records map[uuid.UUID]domain.FileRecord

	getErr        error
	transitionErr error
	setRunIDErr   error
	setErrorErr   error
}

func newStubFiles(records ...domain.FileRecord) *stubFiles {
	s := &stubFiles{records: make(map[uuid.UUID]domain.FileRecord)}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return s
}

func (s *stubFiles) get(id uuid.UUID) domain.FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id]
}

func (s *stubFiles) Create(ctx context.Context, record domain.FileRecord) (domain.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return record, nil
}

func (s *stubFiles) GetByID(ctx context.Context, id uuid.UUID) (domain.FileRecord, error) {
	if s.getErr != nil {
		return domain.FileRecord{}, s.getErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return domain.FileRecord{}, repository.ErrNotFound
	}
	return record, nil
}

func (s *stubFiles) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.FileRecord
	for _, record := range s.records {
		if record.OwnerID == ownerID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *stubFiles) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.FileStatus, message string) (bool, error) {
	if s.transitionErr != nil {
		return false, s.transitionErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok || record.Status != from {
		return false, nil
	}
	record.Status = to
	if message != "" {
		record.ErrorMessage = &message
	} else {
		record.ErrorMessage = nil
	}
	record.UpdatedAt = time.Now()
	s.records[id] = record
	return true, nil
}

func (s *stubFiles) SetRunID(ctx context.Context, id uuid.UUID, runID string) error {
	if s.setRunIDErr != nil {
		return s.setRunIDErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	record.RunID = &runID
	s.records[id] = record
	return nil
}

func (s *stubFiles) SetError(ctx context.Context, id uuid.UUID, message string) error {
	if s.setErrorErr != nil {
		return s.setErrorErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	record.Status = domain.FileStatusError
	record.ErrorMessage = &message
	s.records[id] = record
	return nil
}

func (s *stubFiles) ListStaleProcessing(ctx context.Context, olderThan time.Time, limit int) ([]domain.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.FileRecord
	for _, record := range s.records {
		if record.Status == domain.FileStatusProcessing && record.UpdatedAt.Before(olderThan) {
			out = append(out, record)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type stubLogs struct {
	mu      sync.Mutex
	entries []domain.ProcessingLogEntry
}

func (s *stubLogs) Record(ctx context.Context, entry domain.ProcessingLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubLogs) List(ctx context.Context, fileID uuid.UUID, limit, offset int) ([]domain.ProcessingLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ProcessingLogEntry
	for _, entry := range s.entries {
		if entry.FileID == fileID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *stubLogs) byOperation(operation string) []domain.ProcessingLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ProcessingLogEntry
	for _, entry := range s.entries {
		if entry.Operation == operation {
			out = append(out, entry)
		}
	}
	return out
}

type stubLauncher struct {
	submitFn func(ctx context.Context, params RunParameters) (string, error)
	getFn    func(ctx context.Context, runID string) (domain.RunState, error)
	cancelFn func(ctx context.Context, runID string) error
}

func (s *stubLauncher) SubmitRun(ctx context.Context, params RunParameters) (string, error) {
	if s.submitFn == nil {
		return "run-1", nil
	}
	return s.submitFn(ctx, params)
}

func (s *stubLauncher) GetRun(ctx context.Context, runID string) (domain.RunState, error) {
	if s.getFn == nil {
		return domain.RunState{LifeCycleState: domain.RunLifeCycleRunning}, nil
	}
	return s.getFn(ctx, runID)
}

func (s *stubLauncher) CancelRun(ctx context.Context, runID string) error {
	if s.cancelFn == nil {
		return nil
	}
	return s.cancelFn(ctx, runID)
}

func testLogger() log.Logger {
	return log.Logger{Level: log.PanicLevel}
}
