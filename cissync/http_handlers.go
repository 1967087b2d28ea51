package cissync

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ClientAuthenticator extracts the caller identity from HTTP requests.
// Implementations should validate auth (e.g., JWT) and return the user id.
type ClientAuthenticator interface {
	GetUserID(r *http.Request) (string, error)
}

// HTTPSyncHandlers provides the HTTP surface of the sync engine: trigger a
// flow, inspect runs, reap stale ones.
type HTTPSyncHandlers struct {
	service       *SyncService
	authenticator ClientAuthenticator
	logger        *slog.Logger
}

func NewHTTPSyncHandlers(service *SyncService, authenticator ClientAuthenticator, logger *slog.Logger) *HTTPSyncHandlers {
	return &HTTPSyncHandlers{
		service:       service,
		authenticator: authenticator,
		logger:        logger,
	}
}

// RegisterRoutes attaches all sync endpoints to mux.
func (h *HTTPSyncHandlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /sync/admin/reap", h.HandleReapStaleRuns)
	mux.HandleFunc("GET /sync/runs/{id}", h.HandleGetRun)
	mux.HandleFunc("GET /sync/runs", h.HandleListRuns)
	mux.HandleFunc("POST /sync/{flow}", h.HandleRunSync)
}

// HandleRunSync triggers one flow. The response is the finalized run, or the
// running snapshot when the request asked for async execution.
func (h *HTTPSyncHandlers) HandleRunSync(w http.ResponseWriter, r *http.Request) {
	userID, err := h.authenticator.GetUserID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return
	}

	kind := FlowKind(r.PathValue("flow"))

	var req RunSyncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse request body")
			return
		}
	}

	params, err := h.buildParams(req, userID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	run := (*SyncRun)(nil)
	if req.Async {
		run, err = h.service.RunSyncAsync(r.Context(), kind, params)
	} else {
		run, err = h.service.RunSync(r.Context(), kind, params)
	}
	if err != nil {
		if errors.Is(err, ErrInvalidParams) {
			h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		h.logger.Error("failed to start sync run", "flow", kind, "error", err)
		h.writeError(w, http.StatusInternalServerError, "sync_failed", "failed to start sync run")
		return
	}

	status := http.StatusOK
	if req.Async {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, newSyncRunResponse(run))
}

// HandleGetRun returns one run by id.
func (h *HTTPSyncHandlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authenticator.GetUserID(r); err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "run id must be a UUID")
		return
	}

	run, err := h.service.GetSyncRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "no such sync run")
			return
		}
		h.logger.Error("failed to load sync run", "run_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to load sync run")
		return
	}
	h.writeJSON(w, http.StatusOK, newSyncRunResponse(run))
}

// HandleListRuns returns recent runs, newest first. Optional query params:
// flow, limit.
func (h *HTTPSyncHandlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authenticator.GetUserID(r); err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return
	}

	kind := FlowKind(r.URL.Query().Get("flow"))
	if kind != "" && !KnownFlow(kind) {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "unknown flow kind")
		return
	}

	limit := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 || parsed > 500 {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	runs, err := h.service.ListSyncRuns(r.Context(), kind, limit)
	if err != nil {
		h.logger.Error("failed to list sync runs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to list sync runs")
		return
	}

	resp := ListRunsResponse{Runs: make([]SyncRunResponse, 0, len(runs))}
	for i := range runs {
		resp.Runs = append(resp.Runs, newSyncRunResponse(&runs[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleReapStaleRuns marks long-stuck running runs failed. Optional query
// param max_age is a Go duration, e.g. "24h".
func (h *HTTPSyncHandlers) HandleReapStaleRuns(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authenticator.GetUserID(r); err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return
	}

	maxAge := time.Duration(0)
	if ageStr := r.URL.Query().Get("max_age"); ageStr != "" {
		parsed, err := time.ParseDuration(ageStr)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "max_age must be a positive duration")
			return
		}
		maxAge = parsed
	}

	n, err := h.service.ReapStaleRuns(r.Context(), maxAge)
	if err != nil {
		h.logger.Error("failed to reap stale runs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to reap stale runs")
		return
	}
	if maxAge <= 0 {
		maxAge = h.service.config.StaleRunMaxAge
	}
	h.writeJSON(w, http.StatusOK, ReapResponse{Reaped: n, MaxAge: maxAge.String()})
}

func (h *HTTPSyncHandlers) buildParams(req RunSyncRequest, userID string) (SyncParams, error) {
	p := SyncParams{
		Year:       req.Year,
		Month:      req.Month,
		BranchCode: req.BranchCode,
		IsFullSync: true,
	}
	if req.FullSync != nil {
		p.IsFullSync = *req.FullSync
	}
	if userID != "" {
		p.InitiatedBy = &userID
	}
	if req.StartDate != nil {
		t, err := time.Parse("2006-01-02", *req.StartDate)
		if err != nil {
			return p, errors.New("start_date must be YYYY-MM-DD")
		}
		p.StartDate = &t
	}
	if req.EndDate != nil {
		t, err := time.Parse("2006-01-02", *req.EndDate)
		if err != nil {
			return p, errors.New("end_date must be YYYY-MM-DD")
		}
		// Inclusive through the end of the day.
		t = t.Add(24*time.Hour - time.Second)
		p.EndDate = &t
	}
	return p, nil
}

func (h *HTTPSyncHandlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *HTTPSyncHandlers) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
