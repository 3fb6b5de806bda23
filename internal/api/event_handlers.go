package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/onnwee/vigil/internal/audit"
	"github.com/onnwee/vigil/internal/middleware"
)

// Recorder is the slice of the pipeline the ingest handler needs.
type Recorder interface {
	Record(ctx context.Context, ev audit.Event) *audit.Entry
}

// EventHandlers provides the audit event ingest endpoint.
type EventHandlers struct {
	recorder Recorder
}

// NewEventHandlers creates the ingest handlers.
func NewEventHandlers(recorder Recorder) *EventHandlers {
	return &EventHandlers{recorder: recorder}
}

// eventRequest is the wire shape for POST /v1/events.
type eventRequest struct {
	Action       string         `json:"action"`
	ActorID      string         `json:"actor_id"`
	ActorEmail   string         `json:"actor_email"`
	ActorName    string         `json:"actor_name"`
	Resource     string         `json:"resource"`
	Success      *bool          `json:"success"`
	ErrorCode    string         `json:"error_code"`
	ErrorMessage string         `json:"error_message"`
	Before       any            `json:"before"`
	After        any            `json:"after"`
	Details      any            `json:"details"`
	Method       string         `json:"method"`
	Path         string         `json:"path"`
	DurationMS   int64          `json:"duration_ms"`
	SessionID    string         `json:"session_id"`
	Risk         string         `json:"risk"`
	Metadata     map[string]any `json:"metadata"`
}

// eventResponse acknowledges an accepted event.
type eventResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// knownActions is built once from the taxonomy for request validation.
var knownActions = func() map[audit.Action]bool {
	m := make(map[audit.Action]bool)
	for _, a := range audit.Actions() {
		m[a] = true
	}
	return m
}()

// CreateEvent handles POST /v1/events. The request body carries the
// application-level event; IP address, user agent, and request ID are
// taken from the HTTP request itself. Analysis runs asynchronously, so
// a 202 only means the entry was persisted.
func (h *EventHandlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}

	if req.Action == "" {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "action is required")
		return
	}
	action := audit.Action(req.Action)
	if !knownActions[action] {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeUnknownAction,
			fmt.Sprintf("unknown action %q", req.Action))
		return
	}

	// Absent success defaults to true: most recorded actions succeed.
	success := true
	if req.Success != nil {
		success = *req.Success
	}

	details := req.Details
	if details == nil && req.Metadata != nil {
		details = req.Metadata
	}

	ev := audit.Event{
		Action:       action,
		ActorID:      req.ActorID,
		ActorEmail:   req.ActorEmail,
		ActorName:    req.ActorName,
		Resource:     req.Resource,
		Success:      success,
		ErrorCode:    req.ErrorCode,
		ErrorMessage: req.ErrorMessage,
		Before:       req.Before,
		After:        req.After,
		Details:      details,
		IPAddress:    middleware.ClientIP(r),
		UserAgent:    r.UserAgent(),
		Method:       req.Method,
		Path:         req.Path,
		DurationMS:   req.DurationMS,
		RequestID:    middleware.GetRequestID(r.Context()),
		SessionID:    req.SessionID,
		Risk:         audit.RiskLevel(req.Risk),
	}

	entry := h.recorder.Record(r.Context(), ev)
	if entry == nil {
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "failed to record event")
		return
	}

	writeJSON(w, http.StatusAccepted, eventResponse{ID: entry.ID, Status: "recorded"})
}
