package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rpattn/fileflow/internal/domain"
	"github.com/rpattn/fileflow/internal/repository"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// callbackSchema guards the inbound webhook: the payload comes from an
// external system, so it is validated structurally before any state change.
const callbackSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["fileId", "runId", "resultState"],
	"properties": {
		"fileId": {"type": "string", "minLength": 1},
		"runId": {"type": "string", "minLength": 1},
		"resultState": {"enum": ["SUCCESS", "FAILED", "TIMEDOUT", "CANCELED"]},
		"message": {"type": "string"}
	}
}`

// CallbackPayload is the terminal result the compute job reports back.
type CallbackPayload struct {
	FileID      string                `json:"fileId"`
	RunID       string                `json:"runId"`
	ResultState domain.RunResultState `json:"resultState"`
	Message     string                `json:"message,omitempty"`
}

// CallbackHandler applies the processing → done|error transition when the
// external job reports completion. Duplicate callbacks for the same file
// and run are acknowledged without double-applying state.
type CallbackHandler struct {
	files  repository.FileRepository
	logs   repository.ProcessingLogRepository
	schema *jsonschema.Schema
	logger log.Logger
}

// NewCallbackHandler wires the webhook endpoint.
func NewCallbackHandler(files repository.FileRepository, logs repository.ProcessingLogRepository, logger log.Logger) *CallbackHandler {
	return &CallbackHandler{
		files:  files,
		logs:   logs,
		schema: jsonschema.MustCompileString("callback.json", callbackSchema),
		logger: logger,
	}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var generic any
	if err := json.Unmarshal(body, &generic); err != nil {
		http.Error(w, "request body is not valid json", http.StatusBadRequest)
		return
	}
	if err := h.schema.Validate(generic); err != nil {
		http.Error(w, fmt.Sprintf("invalid callback payload: %v", err), http.StatusBadRequest)
		return
	}

	var payload CallbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid callback payload", http.StatusBadRequest)
		return
	}

	fileID, err := uuid.Parse(payload.FileID)
	if err != nil {
		http.Error(w, "invalid file id", http.StatusBadRequest)
		return
	}

	applied, err := h.apply(r, fileID, payload)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "file not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Str("file_id", payload.FileID).Err(err).Msg("callback processing failed")
		http.Error(w, "failed to apply callback", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	status := "applied"
	if !applied {
		status = "already_applied"
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// apply performs the idempotent terminal transition. The compare-and-swap
// from processing means a duplicate delivery finds the record already
// terminal and reports already_applied.
func (h *CallbackHandler) apply(r *http.Request, fileID uuid.UUID, payload CallbackPayload) (bool, error) {
	ctx := r.Context()

	record, err := h.files.GetByID(ctx, fileID)
	if err != nil {
		return false, err
	}

	if record.RunID != nil && *record.RunID != payload.RunID {
		return false, fmt.Errorf("callback run id %s does not match recorded run %s", payload.RunID, *record.RunID)
	}

	target := domain.FileStatusError
	message := payload.Message
	if payload.ResultState == domain.RunResultSuccess {
		target = domain.FileStatusDone
		message = ""
	} else if message == "" {
		message = fmt.Sprintf("compute job finished with result %s", payload.ResultState)
	}

	applied, err := h.files.TransitionStatus(ctx, fileID, domain.FileStatusProcessing, target, message)
	if err != nil {
		return false, err
	}
	if !applied {
		// Already terminal; duplicate delivery.
		return false, nil
	}

	logStatus := domain.LogStatusSuccess
	if target == domain.FileStatusError {
		logStatus = domain.LogStatusError
	}
	entry := domain.ProcessingLogEntry{
		FileID:    record.ID,
		OwnerID:   record.OwnerID,
		Operation: domain.OperationCallback,
		Status:    logStatus,
		Details: map[string]any{
			"run_id":       payload.RunID,
			"result_state": string(payload.ResultState),
		},
	}
	if err := h.logs.Record(ctx, entry); err != nil {
		h.logger.Error().Str("file_id", fileID.String()).Err(err).Msg("failed to append callback log entry")
	}

	return true, nil
}
