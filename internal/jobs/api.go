package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rpattn/fileflow/internal/domain"
	"github.com/rpattn/fileflow/internal/remote"
)

// RunLauncher is the slice of the remote compute job API the orchestrator
// and sweeper need.
type RunLauncher interface {
	SubmitRun(ctx context.Context, params RunParameters) (string, error)
	GetRun(ctx context.Context, runID string) (domain.RunState, error)
	CancelRun(ctx context.Context, runID string) error
}

// RunParameters is the job submission payload handed to the remote system.
type RunParameters struct {
	FileID      string `json:"fileId"`
	OwnerID     string `json:"ownerId"`
	FileURL     string `json:"fileUrl"`
	FileName    string `json:"fileName"`
	FileType    string `json:"fileType"`
	CallbackURL string `json:"callbackUrl"`
}

// RunsConfig locates the remote job API.
type RunsConfig struct {
	// BaseURL is the root of the runs API, e.g. https://compute.example.com/api/jobs.
	BaseURL string

	// JobID identifies the pre-registered compute job to trigger.
	JobID int64

	// CallbackURL is handed to the job so it can report completion.
	CallbackURL string
}

// RunsAPI drives the external compute job over the guarded remote client.
type RunsAPI struct {
	client *remote.Client
	cfg    RunsConfig
}

// NewRunsAPI wires the runs API on top of a remote client.
func NewRunsAPI(client *remote.Client, cfg RunsConfig) *RunsAPI {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &RunsAPI{client: client, cfg: cfg}
}

// SubmitRun triggers the compute job for one file and returns the run
// handle the remote system assigned.
func (a *RunsAPI) SubmitRun(ctx context.Context, params RunParameters) (string, error) {
	if params.CallbackURL == "" {
		params.CallbackURL = a.cfg.CallbackURL
	}

	payload := map[string]any{
		"jobId":      a.cfg.JobID,
		"parameters": params,
	}

	resp, err := a.client.Post(ctx, a.cfg.BaseURL+"/run-now", payload)
	if err != nil {
		return "", fmt.Errorf("failed to submit run: %w", err)
	}

	var body struct {
		RunID json.Number `json:"runId"`
	}
	if err := resp.Decode(&body); err != nil {
		return "", err
	}
	if body.RunID.String() == "" {
		return "", errors.New("run submission response carried no run id")
	}

	return body.RunID.String(), nil
}

// GetRun fetches the current state of a submitted run.
func (a *RunsAPI) GetRun(ctx context.Context, runID string) (domain.RunState, error) {
	target := fmt.Sprintf("%s/runs/get?run_id=%s", a.cfg.BaseURL, url.QueryEscape(runID))

	resp, err := a.client.Get(ctx, target)
	if err != nil {
		return domain.RunState{}, fmt.Errorf("failed to fetch run %s: %w", runID, err)
	}

	var body struct {
		State domain.RunState `json:"state"`
	}
	if err := resp.Decode(&body); err != nil {
		return domain.RunState{}, err
	}

	return body.State, nil
}

// CancelRun asks the remote system to cancel a submitted run.
func (a *RunsAPI) CancelRun(ctx context.Context, runID string) error {
	payload := map[string]any{"run_id": runID}

	if _, err := a.client.Post(ctx, a.cfg.BaseURL+"/runs/cancel", payload); err != nil {
		return fmt.Errorf("failed to cancel run %s: %w", runID, err)
	}
	return nil
}
