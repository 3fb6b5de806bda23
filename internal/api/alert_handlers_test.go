package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/vigil/internal/audit"
)

func seedAlerts(t *testing.T) *audit.InMemoryStore {
	t.Helper()
	store := audit.NewInMemoryStore()
	ctx := context.Background()

	now := time.Now().UTC()
	alerts := []*audit.SecurityAlert{
		{
			ID:         "alert-2",
			Type:       audit.AlertBulkDownload,
			Severity:   audit.RiskMedium,
			ActorEmail: "jorge@example.com",
			State:      audit.AlertResolved,
			CreatedAt:  now.Add(-48 * time.Hour),
			UpdatedAt:  now.Add(-47 * time.Hour),
		},
		{
			ID:         "alert-1",
			Type:       audit.AlertBruteForceLogin,
			Severity:   audit.RiskHigh,
			ActorEmail: "maria@example.com",
			State:      audit.AlertPending,
			CreatedAt:  now.Add(-10 * time.Minute),
			UpdatedAt:  now.Add(-10 * time.Minute),
		},
	}
	for _, a := range alerts {
		if err := store.CreateAlert(ctx, a); err != nil {
			t.Fatalf("CreateAlert() returned error: %v", err)
		}
	}
	return store
}

func TestListAlerts(t *testing.T) {
	h := NewAlertHandlers(seedAlerts(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/alerts", nil)
	w := httptest.NewRecorder()
	h.ListAlerts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp alertsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Alerts) != 2 {
		t.Errorf("len(alerts) = %d, want 2", len(resp.Alerts))
	}
}

func TestListAlerts_Filters(t *testing.T) {
	h := NewAlertHandlers(seedAlerts(t))

	tests := []struct {
		name    string
		query   string
		wantIDs []string
	}{
		{"by type", "?type=brute_force_login", []string{"alert-1"}},
		{"by state", "?state=RESOLVED", []string{"alert-2"}},
		{"by actor email", "?actor_email=maria@example.com", []string{"alert-1"}},
		{"by created_after", "?created_after=" + time.Now().UTC().Add(-time.Hour).Format(time.RFC3339), []string{"alert-1"}},
		{"no match", "?type=off_hours_login", nil},
		{"with limit", "?limit=1", []string{"alert-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/alerts"+tt.query, nil)
			w := httptest.NewRecorder()
			h.ListAlerts(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusOK, w.Body.String())
			}

			var resp alertsResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if len(resp.Alerts) != len(tt.wantIDs) {
				t.Fatalf("len(alerts) = %d, want %d", len(resp.Alerts), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if resp.Alerts[i].ID != id {
					t.Errorf("alerts[%d].ID = %q, want %q", i, resp.Alerts[i].ID, id)
				}
			}
		})
	}
}

func TestListAlerts_InvalidInput(t *testing.T) {
	h := NewAlertHandlers(seedAlerts(t))

	tests := []struct {
		name  string
		query string
	}{
		{"bad state", "?state=EXPLODED"},
		{"bad created_after", "?created_after=yesterday"},
		{"bad limit", "?limit=ten"},
		{"negative limit", "?limit=-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/alerts"+tt.query, nil)
			w := httptest.NewRecorder()
			h.ListAlerts(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}
