package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/onnwee/vigil/internal/audit"
)

// AlertHandlers provides read access to security alerts.
type AlertHandlers struct {
	store audit.Store
}

// NewAlertHandlers creates the alert handlers.
func NewAlertHandlers(store audit.Store) *AlertHandlers {
	return &AlertHandlers{store: store}
}

// alertsResponse wraps the alert list.
type alertsResponse struct {
	Alerts []*audit.SecurityAlert `json:"alerts"`
}

// ListAlerts handles GET /v1/alerts.
//
// Query parameters:
//
//	type          filter by alert type (e.g. brute_force_login)
//	actor_email   filter by actor email
//	state         repeatable; filter by review state (PENDING, IN_REVIEW, RESOLVED)
//	created_after RFC3339 timestamp lower bound
//	limit         maximum number of alerts to return, 0 for all
func (h *AlertHandlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	q := r.URL.Query()
	filter := audit.AlertFilter{
		Type:       audit.AlertType(q.Get("type")),
		ActorEmail: q.Get("actor_email"),
	}

	for _, s := range q["state"] {
		switch state := audit.AlertState(s); state {
		case audit.AlertPending, audit.AlertInReview, audit.AlertResolved:
			filter.States = append(filter.States, state)
		default:
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "invalid state "+s)
			return
		}
	}

	if v := q.Get("created_after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "created_after must be RFC3339")
			return
		}
		filter.CreatedAfter = t
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	alerts, err := h.store.FindAlerts(r.Context(), filter, limit)
	if err != nil {
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []*audit.SecurityAlert{}
	}

	writeJSON(w, http.StatusOK, alertsResponse{Alerts: alerts})
}
