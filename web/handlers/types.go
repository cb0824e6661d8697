package handlers

import (
	"time"

	"github.com/scrypster/stacksense/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthResponse is the response format for GET /api/health.
type HealthResponse struct {
	Status       string    `json:"status"`
	RulesVersion string    `json:"rules_version,omitempty"`
	Storage      string    `json:"storage,omitempty"`
	Subscribers  int       `json:"subscribers"`
	Time         time.Time `json:"time"`
}

// PreviewRequest is the request body for POST /api/state/preview.
type PreviewRequest struct {
	PendingLogs []types.LogEntry `json:"pending_logs"`
}

// LogRequest is the request body for POST /api/logs. LoggedAt defaults to
// the server's current minute.
type LogRequest struct {
	ID           string     `json:"id,omitempty"`
	SupplementID string     `json:"supplement_id"`
	Dosage       float64    `json:"dosage"`
	Unit         string     `json:"unit"`
	LoggedAt     *time.Time `json:"logged_at,omitempty"`
}

// LogsResponse is the response format for GET /api/logs.
type LogsResponse struct {
	Logs  []types.LogEntry `json:"logs"`
	Total int              `json:"total"`
}
