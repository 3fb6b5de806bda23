package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/vigil/internal/audit"
	"github.com/onnwee/vigil/internal/geo"
)

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(nil)
	err := n.NotifyAdmins(context.Background(), &audit.SecurityAlert{
		ID:   "a1",
		Type: audit.AlertBruteForceLogin,
	})
	if err != nil {
		t.Errorf("NotifyAdmins() = %v, want nil", err)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode webhook body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, srv.Client())
	err := n.NotifyAdmins(context.Background(), &audit.SecurityAlert{
		ID:       "a1",
		Type:     audit.AlertBulkDownload,
		Severity: audit.RiskHigh,
	})
	if err != nil {
		t.Fatalf("NotifyAdmins() returned error: %v", err)
	}
	if received == nil || received["id"] != "a1" {
		t.Errorf("webhook received %v, want alert a1", received)
	}
}

func TestWebhookNotifier_CoarsensLocation(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode webhook body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, srv.Client())
	err := n.NotifyAdmins(context.Background(), &audit.SecurityAlert{
		ID:   "a1",
		Type: audit.AlertUnusualGeography,
		Location: &audit.Location{
			Country:   "Colombia",
			City:      "Bogota",
			Latitude:  4.7110,
			Longitude: -74.0721,
		},
	})
	if err != nil {
		t.Fatalf("NotifyAdmins() returned error: %v", err)
	}

	loc, ok := received["location"].(map[string]any)
	if !ok {
		t.Fatalf("payload location = %v, want an object", received["location"])
	}
	if loc["country"] != "Colombia" || loc["city"] != "Bogota" {
		t.Errorf("location = %v, want Colombia/Bogota", loc)
	}
	want := geo.EncodeGeohash(4.7110, -74.0721, geo.CoarsePrecision)
	if loc["geohash"] != want {
		t.Errorf("geohash = %v, want %q", loc["geohash"], want)
	}
	for _, key := range []string{"latitude", "longitude"} {
		if _, present := loc[key]; present {
			t.Errorf("payload location leaked exact coordinate %q", key)
		}
	}
}

func TestWebhookNotifier_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, srv.Client())
	err := n.NotifyAdmins(context.Background(), &audit.SecurityAlert{ID: "a1"})
	if err == nil {
		t.Error("NotifyAdmins() = nil, want error for non-2xx status")
	}
}
