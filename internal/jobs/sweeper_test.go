package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rpattn/fileflow/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staleRecord(runID string) domain.FileRecord {
	record := processingRecord(runID)
	record.UpdatedAt = time.Now().Add(-time.Hour)
	return record
}

func newTestSweeper(files *stubFiles, logs *stubLogs, launcher *stubLauncher) *Sweeper {
	return NewSweeper(files, logs, launcher, SweeperConfig{StaleAfter: time.Minute}, testLogger())
}

func TestSweepAppliesTerminalSuccess(t *testing.T) {
	record := staleRecord("run-1")
	files := newStubFiles(record)
	logs := &stubLogs{}

	launcher := &stubLauncher{
		getFn: func(ctx context.Context, runID string) (domain.RunState, error) {
			return domain.RunState{
				LifeCycleState: domain.RunLifeCycleTerminated,
				ResultState:    domain.RunResultSuccess,
			}, nil
		},
	}

	applied, err := newTestSweeper(files, logs, launcher).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	assert.Equal(t, domain.FileStatusDone, files.get(record.ID).Status)

	entries := logs.byOperation(domain.OperationReconcile)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.LogStatusSuccess, entries[0].Status)
}

func TestSweepAppliesTerminalFailure(t *testing.T) {
	record := staleRecord("run-1")
	files := newStubFiles(record)
	logs := &stubLogs{}

	launcher := &stubLauncher{
		getFn: func(ctx context.Context, runID string) (domain.RunState, error) {
			return domain.RunState{
				LifeCycleState: domain.RunLifeCycleInternalError,
				ResultState:    domain.RunResultFailed,
				StateMessage:   "cluster lost",
			}, nil
		},
	}

	applied, err := newTestSweeper(files, logs, launcher).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	got := files.get(record.ID)
	assert.Equal(t, domain.FileStatusError, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "cluster lost", *got.ErrorMessage)
}

func TestSweepLeavesRunningRecords(t *testing.T) {
	record := staleRecord("run-1")
	files := newStubFiles(record)

	launcher := &stubLauncher{
		getFn: func(ctx context.Context, runID string) (domain.RunState, error) {
			return domain.RunState{LifeCycleState: domain.RunLifeCycleRunning}, nil
		},
	}

	applied, err := newTestSweeper(files, &stubLogs{}, launcher).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.Equal(t, domain.FileStatusProcessing, files.get(record.ID).Status)
}

// A poll failure is transient; the record stays for the next sweep.
func TestSweepSkipsOnPollFailure(t *testing.T) {
	record := staleRecord("run-1")
	files := newStubFiles(record)

	launcher := &stubLauncher{
		getFn: func(ctx context.Context, runID string) (domain.RunState, error) {
			return domain.RunState{}, errors.New("remote api unavailable")
		},
	}

	applied, err := newTestSweeper(files, &stubLogs{}, launcher).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.Equal(t, domain.FileStatusProcessing, files.get(record.ID).Status)
}

func TestSweepErrorsRecordsWithoutRunHandle(t *testing.T) {
	record := staleRecord("run-1")
	record.RunID = nil
	files := newStubFiles(record)
	logs := &stubLogs{}

	applied, err := newTestSweeper(files, logs, &stubLauncher{}).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	got := files.get(record.ID)
	assert.Equal(t, domain.FileStatusError, got.Status)
	require.Len(t, logs.byOperation(domain.OperationReconcile), 1)
}

func TestSweepIgnoresFreshRecords(t *testing.T) {
	record := processingRecord("run-1") // UpdatedAt is now, inside the stale window
	files := newStubFiles(record)

	polled := false
	launcher := &stubLauncher{
		getFn: func(ctx context.Context, runID string) (domain.RunState, error) {
			polled = true
			return domain.RunState{LifeCycleState: domain.RunLifeCycleRunning}, nil
		},
	}

	applied, err := newTestSweeper(files, &stubLogs{}, launcher).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.False(t, polled, "fresh processing records are not polled")
}
