package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/fileflow/internal/auth"
	"github.com/rpattn/fileflow/internal/domain"
	"github.com/rpattn/fileflow/internal/jobs"
	"github.com/rpattn/fileflow/internal/remote"
	"github.com/rpattn/fileflow/internal/repository"
	"github.com/rpattn/fileflow/internal/validation"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phuslu/log"
)

// maxErrorsShown bounds the defect list reported to callers; the full
// count rides along so nothing is hidden.
const maxErrorsShown = 5

// Handler exposes the pipeline over HTTP.
type Handler struct {
	service      *Service
	files        repository.FileRepository
	logs         repository.ProcessingLogRepository
	orchestrator *jobs.Orchestrator
	logger       log.Logger
}

// NewHandler wires the HTTP surface.
func NewHandler(service *Service, files repository.FileRepository, logs repository.ProcessingLogRepository, orchestrator *jobs.Orchestrator, logger log.Logger) *Handler {
	return &Handler{
		service:      service,
		files:        files,
		logs:         logs,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// Routes mounts the API. The callback endpoint is unauthenticated by the
// owner scheme since it is invoked by the compute system, not a user.
func (h *Handler) Routes(callback http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/callbacks/runs", callback)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireOwner)
			r.Post("/files", h.upload)
			r.Get("/files", h.list)
			r.Get("/files/{fileID}", h.get)
			r.Post("/files/{fileID}/process", h.process)
			r.Get("/files/{fileID}/status", h.status)
			r.Post("/files/{fileID}/cancel", h.cancel)
			r.Get("/files/{fileID}/logs", h.listLogs)
		})
	})

	return r
}

// uploadResponse is the verdict returned for every upload attempt.
type uploadResponse struct {
	Record        any                `json:"record,omitempty"`
	Valid         bool               `json:"valid"`
	Errors        []validation.Error `json:"errors"`
	OmittedErrors int                `json:"omittedErrors,omitempty"`
	Warnings      []string           `json:"warnings"`
	Stats         validation.Stats   `json:"stats"`
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerIDFromContext(r.Context())

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	policy, err := policyFromForm(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := Request{
		OwnerID:     ownerID,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Policy:      policy,
		Data:        file,
	}

	result, err := h.service.Upload(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	bounded, omitted := result.Validation.Bounded(maxErrorsShown)
	resp := uploadResponse{
		Valid:         result.Validation.IsValid,
		Errors:        bounded,
		OmittedErrors: omitted,
		Warnings:      result.Validation.Warnings,
		Stats:         result.Validation.Stats,
	}

	status := http.StatusUnprocessableEntity
	if result.Accepted() {
		resp.Record = result.Record
		status = http.StatusCreated
	}

	writeJSON(w, status, resp)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerIDFromContext(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := h.files.ListByOwner(r.Context(), ownerID, limit, offset)
	if err != nil {
		http.Error(w, "failed to list files", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	record, ok := h.ownedRecord(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerIDFromContext(r.Context())

	fileID, err := uuid.Parse(chi.URLParam(r, "fileID"))
	if err != nil {
		http.Error(w, "invalid file id", http.StatusBadRequest)
		return
	}

	runID, err := h.orchestrator.StartProcessing(r.Context(), fileID, ownerID)
	if err != nil {
		h.orchestrationError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	record, ok := h.ownedRecord(w, r)
	if !ok {
		return
	}
	if record.RunID == nil {
		http.Error(w, "file has no submitted run", http.StatusConflict)
		return
	}

	state, err := h.orchestrator.CheckStatus(r.Context(), *record.RunID)
	if err != nil {
		h.orchestrationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	record, ok := h.ownedRecord(w, r)
	if !ok {
		return
	}
	if record.RunID == nil {
		http.Error(w, "file has no submitted run", http.StatusConflict)
		return
	}

	if err := h.orchestrator.Cancel(r.Context(), record.ID, *record.RunID); err != nil {
		h.orchestrationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	record, ok := h.ownedRecord(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := h.logs.List(r.Context(), record.ID, limit, offset)
	if err != nil {
		http.Error(w, "failed to list processing logs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) ownedRecord(w http.ResponseWriter, r *http.Request) (record domain.FileRecord, ok bool) {
	ownerID, _ := auth.OwnerIDFromContext(r.Context())

	fileID, err := uuid.Parse(chi.URLParam(r, "fileID"))
	if err != nil {
		http.Error(w, "invalid file id", http.StatusBadRequest)
		return record, false
	}

	found, err := h.files.GetByID(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "file not found", http.StatusNotFound)
			return record, false
		}
		http.Error(w, "failed to load file", http.StatusInternalServerError)
		return record, false
	}
	if found.OwnerID != ownerID {
		http.Error(w, "file not found", http.StatusNotFound)
		return record, false
	}

	return found, true
}

// orchestrationError maps pipeline failures onto HTTP statuses, keeping
// data errors (state conflicts) apart from infrastructure errors so the
// caller knows whether a retry makes sense.
func (h *Handler) orchestrationError(w http.ResponseWriter, err error) {
	var apiErr *remote.APIError

	switch {
	case errors.Is(err, jobs.ErrNotFound):
		http.Error(w, "file not found", http.StatusNotFound)
	case errors.Is(err, jobs.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, remote.ErrRateLimitExceeded):
		http.Error(w, "remote api budget exhausted, retry later", http.StatusTooManyRequests)
	case errors.As(err, &apiErr):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		h.logger.Error().Err(err).Msg("orchestration request failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// policyFromForm merges caller overrides into the default policy.
func policyFromForm(r *http.Request) (validation.Policy, error) {
	policy := validation.DefaultPolicy()

	if raw := strings.TrimSpace(r.FormValue("requiredColumns")); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				policy.RequiredColumns = append(policy.RequiredColumns, name)
			}
		}
	}

	boolFields := map[string]*bool{
		"allowEmptyValues":   &policy.AllowEmptyValues,
		"enableEmailCheck":   &policy.EnableEmailCheck,
		"enableDateCheck":    &policy.EnableDateCheck,
		"enableNumericCheck": &policy.EnableNumericCheck,
		"inferColumnRoles":   &policy.InferColumnRoles,
	}
	for field, target := range boolFields {
		if raw := strings.TrimSpace(r.FormValue(field)); raw != "" {
			value, err := strconv.ParseBool(raw)
			if err != nil {
				return policy, fmt.Errorf("invalid %s value: %q", field, raw)
			}
			*target = value
		}
	}

	intFields := map[string]*int{
		"maxRows":    &policy.MaxRows,
		"maxColumns": &policy.MaxColumns,
	}
	for field, target := range intFields {
		if raw := strings.TrimSpace(r.FormValue(field)); raw != "" {
			value, err := strconv.Atoi(raw)
			if err != nil || value < 0 {
				return policy, fmt.Errorf("invalid %s value: %q", field, raw)
			}
			*target = value
		}
	}

	if raw := strings.TrimSpace(r.FormValue("columnRoles")); raw != "" {
		roles := map[string]validation.Role{}
		if err := json.Unmarshal([]byte(raw), &roles); err != nil {
			return policy, fmt.Errorf("invalid columnRoles value: %v", err)
		}
		policy.ColumnRoles = roles
	}

	return policy, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
