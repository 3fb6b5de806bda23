// Package alert merges detector findings into persisted security
// alerts. Repeated findings of the same type for the same actor inside
// the dedup window update the open alert instead of creating duplicates,
// so a login storm never turns into alert spam.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/vigil/internal/audit"
	"github.com/onnwee/vigil/internal/jobs"
)

// Defaults for the aggregator.
const (
	DefaultDedupWindow      = time.Hour
	DefaultMaxSourceEntries = 50
)

// Notifier delivers alert notifications to administrators. Best-effort:
// failures are logged, never propagated, and never roll back the alert.
type Notifier interface {
	NotifyAdmins(ctx context.Context, alert *audit.SecurityAlert) error
}

// Config configures the Aggregator.
type Config struct {
	// DedupWindow is the trailing span within which same-type findings
	// for the same actor merge into one alert.
	DedupWindow time.Duration
	// MaxSourceEntries caps the contributing-entry list per alert;
	// the oldest IDs are dropped first.
	MaxSourceEntries int
	// NotifyMinSeverity is the lowest severity that triggers admin
	// notification.
	NotifyMinSeverity audit.RiskLevel
	// Logger for aggregation activity.
	Logger *slog.Logger
	// Metrics for alert counting. Optional.
	Metrics *Metrics
	// Jobs reports notification dispatch as a background job. Optional.
	Jobs jobs.Reporter
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Aggregator implements the upsert-with-dedup contract over a store.
type Aggregator struct {
	store    audit.Store
	notifier Notifier
	config   Config
}

// NewAggregator creates an Aggregator. The notifier may be nil, which
// disables notification entirely.
func NewAggregator(store audit.Store, notifier Notifier, config Config) *Aggregator {
	if config.DedupWindow == 0 {
		config.DedupWindow = DefaultDedupWindow
	}
	if config.MaxSourceEntries == 0 {
		config.MaxSourceEntries = DefaultMaxSourceEntries
	}
	if config.NotifyMinSeverity == "" {
		config.NotifyMinSeverity = audit.RiskHigh
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Aggregator{store: store, notifier: notifier, config: config}
}

// Upsert merges a finding into an open alert of the same type for the
// same actor created within the dedup window, or creates a new PENDING
// alert. The actor key is the ID and email pair: findings for distinct
// actor IDs never merge, even when both carry an unresolved (empty)
// email. Two findings racing to create the same alert may produce a
// transient duplicate; the next upsert merges into whichever alert the
// store returns first, so the condition self-heals.
func (g *Aggregator) Upsert(ctx context.Context, f audit.Finding) (*audit.SecurityAlert, error) {
	now := g.config.Now().UTC()

	existing, err := g.store.FindOpenAlert(ctx, audit.AlertFilter{
		Type:         f.Type,
		ActorID:      f.ActorID,
		ActorEmail:   f.ActorEmail,
		States:       []audit.AlertState{audit.AlertPending, audit.AlertInReview},
		CreatedAfter: now.Add(-g.config.DedupWindow),
	})
	if err != nil {
		return nil, fmt.Errorf("open alert lookup failed: %w", err)
	}

	if existing != nil {
		existing.EntryIDs = mergeEntryIDs(existing.EntryIDs, f.EntryIDs, g.config.MaxSourceEntries)
		existing.Description += fmt.Sprintf("\n%s %s", now.Format(time.RFC3339), f.Description)
		if f.Severity.AtLeast(existing.Severity) {
			existing.Severity = f.Severity
		}
		existing.UpdatedAt = now

		if err := g.store.UpdateAlert(ctx, existing); err != nil {
			return nil, fmt.Errorf("alert update failed: %w", err)
		}
		if g.config.Metrics != nil {
			g.config.Metrics.IncAlert(f.Type, OutcomeMerged)
		}
		g.config.Logger.Debug("finding merged into open alert",
			"alert_id", existing.ID,
			"type", f.Type,
			"entries", len(existing.EntryIDs))
		return existing, nil
	}

	created := &audit.SecurityAlert{
		ID:          uuid.New().String(),
		Type:        f.Type,
		Severity:    f.Severity,
		Title:       f.Title,
		Description: fmt.Sprintf("%s %s", now.Format(time.RFC3339), f.Description),
		ActorID:     f.ActorID,
		ActorEmail:  f.ActorEmail,
		IPAddress:   f.IPAddress,
		Location:    f.Location,
		EntryIDs:    capEntryIDs(f.EntryIDs, g.config.MaxSourceEntries),
		Metadata:    f.Metadata,
		State:       audit.AlertPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	notify := g.notifier != nil && f.Severity.AtLeast(g.config.NotifyMinSeverity)
	if notify {
		// Marked before the write so the persisted row reflects that
		// dispatch was attempted.
		created.Notified = true
		notifiedAt := now
		created.NotifiedAt = &notifiedAt
	}

	if err := g.store.CreateAlert(ctx, created); err != nil {
		return nil, fmt.Errorf("alert creation failed: %w", err)
	}
	if g.config.Metrics != nil {
		g.config.Metrics.IncAlert(f.Type, OutcomeCreated)
	}
	g.config.Logger.Info("security alert created",
		"alert_id", created.ID,
		"type", created.Type,
		"severity", created.Severity,
		"actor_email", created.ActorEmail)

	if notify {
		alertCopy := *created
		go g.notify(context.WithoutCancel(ctx), &alertCopy)
	}
	return created, nil
}

// notify delivers one notification, fire-and-forget.
func (g *Aggregator) notify(ctx context.Context, alert *audit.SecurityAlert) {
	err := jobs.Track(g.config.Jobs, jobs.JobTypeAlertNotify, func() error {
		return g.notifier.NotifyAdmins(ctx, alert)
	})
	if err != nil {
		g.config.Logger.Error("admin notification failed",
			"alert_id", alert.ID,
			"type", alert.Type,
			"error", err)
		if g.config.Metrics != nil {
			g.config.Metrics.IncNotification(NotifyFailed)
		}
		return
	}
	if g.config.Metrics != nil {
		g.config.Metrics.IncNotification(NotifySent)
	}
}

// mergeEntryIDs appends the new IDs that are not already present, then
// trims to max keeping the newest.
func mergeEntryIDs(existing, incoming []string, max int) []string {
	present := make(map[string]bool, len(existing))
	for _, id := range existing {
		present[id] = true
	}
	for _, id := range incoming {
		if !present[id] {
			existing = append(existing, id)
			present[id] = true
		}
	}
	return capEntryIDs(existing, max)
}

// capEntryIDs drops the oldest IDs (front of the slice) beyond max.
func capEntryIDs(ids []string, max int) []string {
	if max <= 0 || len(ids) <= max {
		return ids
	}
	return append([]string(nil), ids[len(ids)-max:]...)
}
