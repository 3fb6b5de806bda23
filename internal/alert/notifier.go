package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/onnwee/vigil/internal/audit"
	"github.com/onnwee/vigil/internal/geo"
)

// LogNotifier writes alert notifications to the structured log. It is
// the default sink when no webhook is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// NotifyAdmins implements Notifier.
func (n *LogNotifier) NotifyAdmins(ctx context.Context, alert *audit.SecurityAlert) error {
	n.logger.Warn("security alert requires attention",
		"alert_id", alert.ID,
		"type", alert.Type,
		"severity", alert.Severity,
		"title", alert.Title,
		"actor_email", alert.ActorEmail)
	return nil
}

// WebhookNotifier POSTs the alert as JSON to a configured endpoint
// (an incident channel webhook, a pager bridge, etc).
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook-backed notifier. A nil client
// selects http.DefaultClient.
func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookNotifier{url: url, client: client}
}

// coarseLocation is the outbound location form. Exact coordinates stay
// server-side; receivers get the country, city, and a coarse geohash
// cell.
type coarseLocation struct {
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
	Geohash string `json:"geohash,omitempty"`
}

type webhookPayload struct {
	*audit.SecurityAlert
	Location *coarseLocation `json:"location,omitempty"`
}

// NotifyAdmins implements Notifier.
func (n *WebhookNotifier) NotifyAdmins(ctx context.Context, alert *audit.SecurityAlert) error {
	payload := webhookPayload{SecurityAlert: alert}
	if loc := alert.Location; loc != nil {
		payload.Location = &coarseLocation{Country: loc.Country, City: loc.City}
		if loc.Latitude != 0 || loc.Longitude != 0 {
			payload.Location.Geohash = geo.EncodeGeohash(loc.Latitude, loc.Longitude, geo.CoarsePrecision)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
