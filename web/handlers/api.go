package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/scrypster/stacksense/internal/config"
	"github.com/scrypster/stacksense/internal/storage"
	"github.com/scrypster/stacksense/pkg/types"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// StateService is the subset of services.StateService the API uses.
type StateService interface {
	Authoritative(ctx context.Context, userID string) (*types.Snapshot, error)
	Speculative(ctx context.Context, userID string, pending []types.LogEntry) (*types.Snapshot, error)
	AddLog(ctx context.Context, userID string, entry types.LogEntry) (*types.LogEntry, error)
	DeleteLog(ctx context.Context, userID, id string) error
	ListLogs(ctx context.Context, q storage.LogQuery) ([]types.LogEntry, error)
	Rules(ctx context.Context) (*types.RuleSnapshot, error)
}

// BreakerState reports the storage circuit breaker state.
type BreakerState interface {
	State() string
}

// APIHandlers contains HTTP handlers for the REST API.
type APIHandlers struct {
	svc     StateService
	config  *config.Config
	breaker BreakerState
	hub     *WebSocketHub
}

// NewAPIHandlers creates a new APIHandlers instance. breaker and hub may be
// nil; they only feed the health report.
func NewAPIHandlers(svc StateService, cfg *config.Config, breaker BreakerState, hub *WebSocketHub) *APIHandlers {
	return &APIHandlers{
		svc:     svc,
		config:  cfg,
		breaker: breaker,
		hub:     hub,
	}
}

// UserID resolves the acting user: the X-User-ID header, else the
// configured default.
func (h *APIHandlers) UserID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
		return id
	}
	return h.config.Security.DefaultUser
}

// Health handles GET /api/health.
func (h *APIHandlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Time: time.Now().UTC()}
	status := http.StatusOK

	if h.breaker != nil {
		resp.Storage = h.breaker.State()
		if resp.Storage == "open" {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	if h.hub != nil {
		resp.Subscribers = h.hub.ClientCount()
	}

	if status == http.StatusOK {
		rules, err := h.svc.Rules(r.Context())
		if err != nil {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			resp.RulesVersion = rules.Version
		}
	}

	respondJSON(w, status, resp)
}

// GetState handles GET /api/state - the authoritative snapshot.
func (h *APIHandlers) GetState(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Authoritative(r.Context(), h.UserID(r))
	if err != nil {
		respondServiceError(w, "failed to derive state", err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// PreviewState handles POST /api/state/preview - the snapshot as it would be
// with the pending logs stored.
func (h *APIHandlers) PreviewState(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	snap, err := h.svc.Speculative(r.Context(), h.UserID(r), req.PendingLogs)
	if err != nil {
		respondServiceError(w, "failed to derive preview", err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// ListLogs handles GET /api/logs?since=&until=&limit=.
// Bounds are RFC 3339 timestamps.
func (h *APIHandlers) ListLogs(w http.ResponseWriter, r *http.Request) {
	q := storage.LogQuery{
		UserID: h.UserID(r),
		Limit:  parseInt(r.URL.Query().Get("limit"), 0),
	}

	var err error
	if q.Since, err = parseTime(r.URL.Query().Get("since")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid since", err)
		return
	}
	if q.Until, err = parseTime(r.URL.Query().Get("until")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid until", err)
		return
	}

	logs, err := h.svc.ListLogs(r.Context(), q)
	if err != nil {
		respondServiceError(w, "failed to list logs", err)
		return
	}
	respondJSON(w, http.StatusOK, LogsResponse{Logs: logs, Total: len(logs)})
}

// CreateLog handles POST /api/logs.
func (h *APIHandlers) CreateLog(w http.ResponseWriter, r *http.Request) {
	var req LogRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	entry := types.LogEntry{
		ID:           req.ID,
		SupplementID: req.SupplementID,
		Dosage:       req.Dosage,
		Unit:         req.Unit,
	}
	if req.LoggedAt != nil {
		entry.LoggedAt = *req.LoggedAt
	}

	created, err := h.svc.AddLog(r.Context(), h.UserID(r), entry)
	if err != nil {
		respondServiceError(w, "failed to add log", err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// DeleteLog handles DELETE /api/logs/{id}.
func (h *APIHandlers) DeleteLog(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "log id is required", nil)
		return
	}

	if err := h.svc.DeleteLog(r.Context(), h.UserID(r), id); err != nil {
		respondServiceError(w, "failed to delete log", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetRules handles GET /api/rules.
func (h *APIHandlers) GetRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.Rules(r.Context())
	if err != nil {
		respondServiceError(w, "failed to load rules", err)
		return
	}
	respondJSON(w, http.StatusOK, rules)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// parseInt parses an integer from a string, returning defaultValue on failure.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent; nothing else can be written.
		log.Printf("handlers: failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}

	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}

	respondJSON(w, statusCode, errResp)
}

// respondServiceError maps storage sentinels onto HTTP status codes.
func respondServiceError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, message, err)
	case errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, storage.ErrAlreadyExists):
		respondError(w, http.StatusConflict, message, err)
	case errors.Is(err, storage.ErrCircuitOpen):
		respondError(w, http.StatusServiceUnavailable, message, err)
	default:
		log.Printf("handlers: %s: %v", message, err)
		respondError(w, http.StatusInternalServerError, message, nil)
	}
}
